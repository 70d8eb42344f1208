// Package timeline implements a player's ordered sequence of sinks and the
// sample-accurate advance/preload algorithms of spec.md §4.4.
package timeline

import (
	"sync"
	"sync/atomic"

	"github.com/arung-agamani/turntable/internal/audio/core"
	"github.com/arung-agamani/turntable/internal/audio/sink"
)

// Read is one contiguous span of samples to pull from a single sink during
// an Advance call.
type Read struct {
	Sink   *sink.Sink
	Offset int
	Amount int
}

// Preload names a sink that should be fed more data because its forward
// availability is below the preload threshold.
type Preload struct {
	Sink   core.SinkId
	Offset int
}

// Timeline is a player's ordered list of sinks sharing one read offset.
type Timeline struct {
	mu    sync.Mutex
	sinks []*sink.Sink

	offset      atomic.Int64 // position within the first playable sink
	totalOffset atomic.Int64 // cumulative samples emitted by this player
}

// New creates an empty Timeline.
func New() *Timeline {
	return &Timeline{}
}

// SetSinks replaces the playable sequence. It does not reset Offset;
// callers change Offset only via Seek.
func (t *Timeline) SetSinks(sinks []*sink.Sink) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sinks = append([]*sink.Sink(nil), sinks...)
}

// Sinks returns a snapshot of the current playable sequence.
func (t *Timeline) Sinks() []*sink.Sink {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*sink.Sink(nil), t.sinks...)
}

// Offset returns the current read position within the first sink.
func (t *Timeline) Offset() int { return int(t.offset.Load()) }

// TotalOffset returns the cumulative number of samples this timeline has
// emitted via Advance.
func (t *Timeline) TotalOffset() int { return int(t.totalOffset.Load()) }

// Seek sets the read offset directly. Seeking across sink boundaries is
// the caller's responsibility (typically the queue policy, which should
// also call SetSinks so the new offset lands in the intended sink).
func (t *Timeline) Seek(position int) {
	t.offset.Store(int64(position))
}

// playable reports whether a sink should participate in Advance/Preload:
// activated, not errored.
func playable(s *sink.Sink) bool {
	return s.Activation() == sink.Activated
}

// Advance drains up to amount samples across the ordered sinks, starting
// at the timeline's current offset in the first sink. It mutates Offset
// and TotalOffset as it goes and returns the reads a Player should
// perform, plus whether it stalled waiting for more data (buffering) as
// opposed to running out of playable sinks entirely (drained — which a
// Player reports the same as an empty timeline, i.e. Idle).
func (t *Timeline) Advance(amount int) (reads []Read, buffering bool) {
	t.mu.Lock()
	sinks := append([]*sink.Sink(nil), t.sinks...)
	t.mu.Unlock()

	remaining := amount
	offset := int(t.offset.Load())

	for _, s := range sinks {
		if remaining <= 0 {
			break
		}
		if !playable(s) {
			// Not yet activated: stall here, this sink may still start
			// playing. A terminal activation error is skipped entirely.
			if s.Activation() == sink.ActivationError {
				offset = 0
				continue
			}
			buffering = true
			break
		}

		distance, isEnd := s.DistanceFromVoid(offset)
		take := remaining
		if distance < take {
			take = distance
		}

		if take > 0 {
			reads = append(reads, Read{Sink: s, Offset: offset, Amount: take})
			remaining -= take
			newOffset := offset + take
			t.offset.Store(int64(newOffset))
			t.totalOffset.Add(int64(take))
			offset = newOffset
		}

		moveOn := !s.IsLoadable() && isEnd && (distance-take) == 0
		if !moveOn {
			buffering = remaining > 0
			break
		}
		offset = 0
	}

	return reads, buffering
}

// Preload walks the playable sinks and returns the ones whose forward
// availability (from the timeline's current offset, or 0 for sinks after
// the first) is below threshold and which can still receive more data. It
// stops at the first sink that isn't yet at the end of its loaded data,
// since feeding sinks further down the queue before the current one is
// full would not help this player.
func (t *Timeline) Preload(threshold int) []Preload {
	t.mu.Lock()
	sinks := append([]*sink.Sink(nil), t.sinks...)
	t.mu.Unlock()

	var out []Preload
	offset := int(t.offset.Load())

	for _, s := range sinks {
		if !playable(s) {
			break
		}

		distance, isEnd := s.DistanceFromVoid(offset)
		if distance < threshold && s.IsLoadable() {
			out = append(out, Preload{Sink: s.Id(), Offset: offset + distance})
		}
		if !isEnd {
			break
		}
		offset = 0
	}

	return out
}
