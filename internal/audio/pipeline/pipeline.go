// Package pipeline is the stable facade of spec.md §6: it owns the
// registries (players, sinks, queues, streams) and exposes create_player,
// ingest, set_sinks, consume_player and the play/pause/seek action
// surface, wiring together timeline, player, output, ingest and queue.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/arung-agamani/turntable/config"
	"github.com/arung-agamani/turntable/internal/audio/core"
	"github.com/arung-agamani/turntable/internal/audio/encode"
	"github.com/arung-agamani/turntable/internal/audio/events"
	"github.com/arung-agamani/turntable/internal/audio/ingest"
	"github.com/arung-agamani/turntable/internal/audio/input"
	"github.com/arung-agamani/turntable/internal/audio/output"
	"github.com/arung-agamani/turntable/internal/audio/player"
	"github.com/arung-agamani/turntable/internal/audio/queue"
	"github.com/arung-agamani/turntable/internal/audio/sink"
	"github.com/arung-agamani/turntable/internal/audio/timeline"
)

// reapInterval is how often the sink reaper sweeps for clearable sinks.
// Resolved per spec.md §5's "≈ every 5 minutes" and matching
// original_source/src/ingest/mod.rs's spawn_cleanup_thread.
const reapInterval = 5 * time.Minute

// minIdleBeforeClear matches spec.md §4.2's is_clearable threshold.
const minIdleBeforeClear = 3 * time.Minute

// preloadInterval is how often the pipeline sweeps every player's timeline
// for sinks whose forward availability has fallen below the preload
// threshold, per spec.md §4.4's decode-on-demand loop.
const preloadInterval = 250 * time.Millisecond

// playerEntry bundles everything the pipeline tracks per player: the
// player itself plus the queue driving it (a player can exist without a
// queue, e.g. directly fed via SetSinks).
type playerEntry struct {
	player *player.Player
	queue  queue.Queue
}

// Pipeline is the process-wide facade. Multiple rooms/stations share one
// Pipeline, each with their own player/queue, per spec.md's "multi-room"
// framing.
type Pipeline struct {
	cfg *config.Config
	bus *events.Bus

	ingestion *ingest.Ingestion
	output    *output.Output

	mu      sync.RWMutex
	players map[core.PlayerId]*playerEntry
	sinks   map[core.SinkId]*sink.Sink

	cancel context.CancelFunc
}

// New wires a Pipeline from its configuration. It starts the action-bus
// dispatcher and the sink reaper immediately; callers must call Shutdown
// to stop them.
func New(cfg *config.Config) *Pipeline {
	bus := events.NewBus()

	p := &Pipeline{
		cfg:       cfg,
		bus:       bus,
		ingestion: ingest.New(cfg, bus, 4, 256),
		output:    output.New(cfg.LatencyInSamples()),
		players:   make(map[core.PlayerId]*playerEntry),
		sinks:     make(map[core.SinkId]*sink.Sink),
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	go p.dispatchActions(ctx)
	go p.reapLoop(ctx)
	go p.preloadLoop(ctx)

	return p
}

// Bus exposes the pipeline's event bus for subscribers (e.g. cmd/server's
// event logger).
func (p *Pipeline) Bus() *events.Bus { return p.bus }

// CreatePlayer creates and starts a new player, registering its output
// stream.
func (p *Pipeline) CreatePlayer() core.PlayerId {
	tl := timeline.New()
	pl := player.New(tl, p.bus, p.output, p.cfg.BufferSizeInSamples(), time.Duration(p.cfg.BufferSizeSeconds*float64(time.Second)))

	p.output.RegisterPlayer(pl.Id())

	p.mu.Lock()
	p.players[pl.Id()] = &playerEntry{player: pl}
	p.mu.Unlock()

	pl.Start(context.Background())

	return pl.Id()
}

// AttachQueue binds a Queue to player, so NotifyQueueUpdate actions for
// it are serviced. The queue's Notifier should be a queue.BusNotifier
// targeting this player and the pipeline's bus.
func (p *Pipeline) AttachQueue(playerId core.PlayerId, q queue.Queue) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.players[playerId]; ok {
		e.queue = q
	}
}

// Ingest resolves src into an activated sink and registers it, returning
// its id plus what was learned while probing.
func (p *Pipeline) Ingest(ctx context.Context, src input.Input, cacheKey, nameHint string) (core.SinkId, input.ProbeResult, error) {
	res, err := p.ingestion.Ingest(ctx, src, cacheKey, nameHint)
	if err != nil {
		return 0, input.ProbeResult{}, err
	}

	p.mu.Lock()
	p.sinks[res.Sink.Id()] = res.Sink
	p.mu.Unlock()

	return res.Sink.Id(), res.Probe, nil
}

// SetSinks replaces player's playable sequence by id, dropping any id
// that isn't registered.
func (p *Pipeline) SetSinks(playerId core.PlayerId, sinkIds []core.SinkId) {
	p.mu.RLock()
	e, ok := p.players[playerId]
	var sinks []*sink.Sink
	for _, id := range sinkIds {
		if s, found := p.sinks[id]; found {
			sinks = append(sinks, s)
		}
	}
	p.mu.RUnlock()

	if ok {
		e.player.Timeline().SetSinks(sinks)
	}
}

// ConsumePlayer attaches a new consumer to player's output stream,
// encoding with enc.
func (p *Pipeline) ConsumePlayer(playerId core.PlayerId, enc encode.Encoder, latencyOverrideSamples int) (*output.Consumer, bool) {
	return p.output.ConsumePlayer(playerId, enc, latencyOverrideSamples)
}

// Play dispatches a PlayPlayer action.
func (p *Pipeline) Play(playerId core.PlayerId) {
	p.bus.Dispatch(events.PipelineAction{PlayPlayer: &events.PlayPlayerAction{Player: playerId}})
}

// Pause dispatches a PausePlayer action.
func (p *Pipeline) Pause(playerId core.PlayerId) {
	p.bus.Dispatch(events.PipelineAction{PausePlayer: &events.PausePlayerAction{Player: playerId}})
}

// Seek dispatches a SeekPlayer action.
func (p *Pipeline) Seek(playerId core.PlayerId, position int) {
	p.bus.Dispatch(events.PipelineAction{SeekPlayer: &events.SeekPlayerAction{Player: playerId, Position: position}})
}

// RequestLoad asks Ingestion to load more of sinkId's data, used by the
// preload sweep below and by callers servicing a buffering sink directly.
func (p *Pipeline) RequestLoad(ctx context.Context, sinkId core.SinkId, offset, amount int) {
	p.mu.RLock()
	s, ok := p.sinks[sinkId]
	p.mu.RUnlock()
	if !ok {
		return
	}
	p.ingestion.RequestLoad(ctx, sinkId, s, offset, amount)
}

func (p *Pipeline) playerById(id core.PlayerId) (*player.Player, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.players[id]
	if !ok {
		return nil, false
	}
	return e.player, true
}

// dispatchActions is the single consumer of the action bus: it applies
// PlayPlayer/PausePlayer/SeekPlayer directly and runs the queue-sync
// algorithm of spec.md §4.7 for NotifyQueueUpdate.
func (p *Pipeline) dispatchActions(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case a := <-p.bus.Actions():
			p.applyAction(ctx, a)
		}
	}
}

func (p *Pipeline) applyAction(ctx context.Context, a events.PipelineAction) {
	switch {
	case a.PlayPlayer != nil:
		if pl, ok := p.playerById(a.PlayPlayer.Player); ok {
			pl.Play()
		}
	case a.PausePlayer != nil:
		if pl, ok := p.playerById(a.PausePlayer.Player); ok {
			pl.Pause()
		}
	case a.SeekPlayer != nil:
		if pl, ok := p.playerById(a.SeekPlayer.Player); ok {
			pl.Seek(a.SeekPlayer.Position)
		}
	case a.NotifyQueueUpdate != nil:
		p.syncQueue(ctx, a.NotifyQueueUpdate.Player, a.NotifyQueueUpdate.Queue)
	}
}

// syncQueue implements spec.md §4.7's NotifyQueueUpdate algorithm:
// resolve each peeked item to a sink (reusing one if already activated),
// rebind the player's timeline, and activate items within the preload
// window (always at least the next three).
func (p *Pipeline) syncQueue(ctx context.Context, playerId core.PlayerId, queueId core.QueueId) {
	p.mu.RLock()
	e, ok := p.players[playerId]
	p.mu.RUnlock()
	if !ok || e.queue == nil {
		return
	}

	items := e.queue.Peek()

	var sinkIds []core.SinkId
	cumulative := 0.0

	for i, item := range items {
		var sinkId core.SinkId
		if item.HasSink {
			sinkId = item.Sink
		} else if shouldActivate(i, cumulative, p.cfg) {
			id, probe, err := p.ingestForItem(ctx, item)
			if err != nil {
				slog.Warn("queue item activation failed", "item", item.ItemId, "error", err)
				p.bus.EmitQueueItemActivationError(queueId, item.ItemId, err)
				e.queue.Skip(item.ItemId)
				continue
			}
			sinkId = id
			e.queue.SetItemSink(item.ItemId, sinkId)
			p.bus.EmitQueueItemActivated(queueId, item.ItemId, sinkId, probe.Title)
		} else {
			continue
		}

		sinkIds = append(sinkIds, sinkId)
		if item.HasLength {
			cumulative += item.LengthSeconds
		}
	}

	p.SetSinks(playerId, sinkIds)
}

// shouldActivate decides whether item at index i, with cumulative known
// seconds before it, should be eagerly activated: always the first three
// items (so unknown-length items still feed a lookahead), or any item
// within the configured preload window.
func shouldActivate(i int, cumulativeSeconds float64, cfg *config.Config) bool {
	if i < 3 {
		return true
	}
	return cumulativeSeconds < cfg.PreloadSizeSeconds
}

// ingestForItem resolves an item's stashed Input into an activated sink.
// Items without one (e.g. constructed directly in tests) fall back to
// input.Empty{}, which has no bytes to decode, so activation fails and
// the queue sync skips the item.
func (p *Pipeline) ingestForItem(ctx context.Context, item queue.Item) (core.SinkId, input.ProbeResult, error) {
	in := item.Input
	if in == nil {
		in = input.Empty{}
	}
	return p.Ingest(ctx, in, item.ItemId, item.Title)
}

// reapLoop periodically removes clearable sinks (spec.md §5's "low
// frequency pass").
func (p *Pipeline) reapLoop(ctx context.Context) {
	t := time.NewTicker(reapInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.reapOnce()
		}
	}
}

// preloadLoop periodically walks every player's timeline for sinks that
// need more decoded data and schedules it, closing the loop between
// Timeline.Preload and Ingestion.RequestLoad that spec.md §4.4 names as
// the decode-on-demand algorithm: without it, a sink's metadata is
// activated but never actually filled with samples.
func (p *Pipeline) preloadLoop(ctx context.Context) {
	t := time.NewTicker(preloadInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.preloadOnce(ctx)
		}
	}
}

func (p *Pipeline) preloadOnce(ctx context.Context) {
	p.mu.RLock()
	players := make([]*player.Player, 0, len(p.players))
	for _, e := range p.players {
		players = append(players, e.player)
	}
	p.mu.RUnlock()

	threshold := p.cfg.PreloadThresholdInSamples()
	amount := p.cfg.PreloadSizeInSamples()

	for _, pl := range players {
		for _, req := range pl.Timeline().Preload(threshold) {
			p.RequestLoad(ctx, req.Sink, req.Offset, amount)
		}
	}
}

func (p *Pipeline) reapOnce() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id, s := range p.sinks {
		if s.IsClearable(minIdleBeforeClear) {
			delete(p.sinks, id)
			p.ingestion.Forget(id)
		}
	}
}

// Shutdown stops every player, the action dispatcher, and the reaper.
func (p *Pipeline) Shutdown() {
	p.mu.RLock()
	for _, e := range p.players {
		e.player.Stop()
	}
	p.mu.RUnlock()

	p.cancel()
}
