// Package player implements the per-tick consumer of a Timeline described
// in spec.md §4.5: on a fixed period it pulls samples from the timeline,
// writes them (with trailing silence) to its Output stream, and publishes
// state/time events.
package player

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/arung-agamani/turntable/internal/audio/core"
	"github.com/arung-agamani/turntable/internal/audio/events"
	"github.com/arung-agamani/turntable/internal/audio/timeline"
)

// State is a Player's ephemeral playback state.
type State int

const (
	Idle State = iota
	Playing
	Buffering
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Playing:
		return "Playing"
	case Buffering:
		return "Buffering"
	default:
		return "Unknown"
	}
}

// Pusher is the subset of Output the player needs: pushing a tick's worth
// of samples to the player's stream. Modeled as an interface so player
// doesn't import output directly (output already depends on nothing
// player-specific, but keeping the dependency one-directional mirrors how
// the teacher's Broadcaster takes an io.Writer rather than knowing about
// HTTP clients).
type Pusher interface {
	Push(player core.PlayerId, samples []core.Sample)
}

// Player runs a periodic tick against a Timeline and pushes the rendered
// buffer to an Output stream.
type Player struct {
	id       core.PlayerId
	timeline *timeline.Timeline
	bus      *events.Bus
	pusher   Pusher

	bufferSizeSamples int
	tickPeriod        time.Duration

	shouldPlay atomic.Bool
	state      atomic.Int32

	lastFirstSink atomic.Uint64

	cancel context.CancelFunc
}

// New creates a Player bound to timeline, publishing events on bus and
// pushing rendered ticks to pusher.
func New(tl *timeline.Timeline, bus *events.Bus, pusher Pusher, bufferSizeSamples int, tickPeriod time.Duration) *Player {
	p := &Player{
		id:                core.NewPlayerId(),
		timeline:          tl,
		bus:               bus,
		pusher:            pusher,
		bufferSizeSamples: bufferSizeSamples,
		tickPeriod:        tickPeriod,
	}
	p.shouldPlay.Store(false)
	return p
}

// Id returns the player's process-unique identifier.
func (p *Player) Id() core.PlayerId { return p.id }

// Timeline returns the player's timeline, so a queue policy or facade can
// call SetSinks/Seek on it.
func (p *Player) Timeline() *timeline.Timeline { return p.timeline }

// State returns the player's current ephemeral state.
func (p *Player) State() State { return State(p.state.Load()) }

// Play sets should_play so the next tick renders audio instead of silence.
func (p *Player) Play() { p.shouldPlay.Store(true) }

// Pause sets should_play false so the next tick renders silence.
func (p *Player) Pause() { p.shouldPlay.Store(false) }

// Seek sets the timeline's read offset; the very next tick renders from
// the new position.
func (p *Player) Seek(position int) { p.timeline.Seek(position) }

// Start runs the tick loop on a dedicated goroutine until ctx is
// cancelled. It measures ticks against a monotonic clock and logs (but
// never fails on) overruns, per spec.md §5.
func (p *Player) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	go func() {
		next := time.Now()
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			start := time.Now()
			p.tick()
			elapsed := time.Since(start)

			next = next.Add(p.tickPeriod)
			if elapsed > p.tickPeriod {
				slog.Warn("player tick overrun", "player", p.id, "elapsed", elapsed, "budget", p.tickPeriod)
				// Resync instead of trying to catch up a backlog of ticks.
				next = time.Now().Add(p.tickPeriod)
				continue
			}

			sleepFor := time.Until(next)
			if sleepFor > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(sleepFor):
				}
			}
		}
	}()
}

// Stop cancels the tick loop started by Start.
func (p *Player) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
}

func (p *Player) setState(s State) {
	old := State(p.state.Swap(int32(s)))
	if old != s {
		p.bus.EmitPlayerStateUpdate(p.id, s.String())
	}
}

func (p *Player) tick() {
	buf := make([]core.Sample, p.bufferSizeSamples)

	if !p.shouldPlay.Load() {
		p.pusher.Push(p.id, buf)
		p.setState(Idle)
		return
	}

	reads, buffering := p.timeline.Advance(p.bufferSizeSamples)

	sinks := p.timeline.Sinks()
	switch {
	case len(sinks) == 0:
		p.setState(Idle)
	case len(reads) == 0 && buffering:
		p.setState(Buffering)
	case len(reads) == 0:
		// Ran out of playable sinks without stalling: everything queued
		// has been fully played. Equivalent to an empty timeline.
		p.setState(Idle)
	default:
		p.setState(Playing)
	}

	written := 0
	for _, r := range reads {
		n, _ := r.Sink.Read(r.Offset, buf[written:written+r.Amount])
		written += n
		if n < r.Amount {
			break
		}
	}

	p.pusher.Push(p.id, buf)

	p.bus.EmitPlayerTimeUpdate(p.id, p.timeline.Offset(), p.timeline.TotalOffset())

	if len(reads) > 0 {
		newFirst := uint64(reads[0].Sink.Id())
		if old := p.lastFirstSink.Swap(newFirst); old != newFirst {
			p.bus.EmitPlayerAdvanced(p.id, reads[0].Sink.Id())
		}
	}
}
