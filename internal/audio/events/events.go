// Package events implements the pipeline's typed event and action buses
// described in spec.md §4.8: PipelineEvent flows out of components
// (state transitions, time updates, activation results) and
// PipelineAction flows in from the outside world (queue notifications,
// transport controls).
package events

import (
	"sync"

	"github.com/arung-agamani/turntable/internal/audio/core"
)

// PipelineEvent is the sum type of everything the pipeline reports.
// Exactly one of the pointer fields is non-nil.
type PipelineEvent struct {
	SinkLoadStateUpdate    *SinkLoadStateUpdate
	PlayerStateUpdate      *PlayerStateUpdateEvent
	PlayerTimeUpdate       *PlayerTimeUpdateEvent
	PlayerAdvanced         *PlayerAdvancedEvent
	QueueItemActivated     *QueueItemActivatedEvent
	QueueItemActivationError *QueueItemActivationErrorEvent
}

type SinkLoadStateUpdate struct {
	Sink  core.SinkId
	State string // sink.LoadState.String(), kept as a string to avoid an import cycle
}

type PlayerStateUpdateEvent struct {
	Player core.PlayerId
	State  string
}

type PlayerTimeUpdateEvent struct {
	Player   core.PlayerId
	Position int
	Total    int
}

type PlayerAdvancedEvent struct {
	Player  core.PlayerId
	NewSink core.SinkId
}

type QueueItemActivatedEvent struct {
	Queue  core.QueueId
	ItemId string
	Sink   core.SinkId
	Title  string
}

type QueueItemActivationErrorEvent struct {
	Queue  core.QueueId
	ItemId string
	Error  string
}

// PipelineAction is the sum type of everything the outside world (or a
// Queue's notifier) asks the pipeline to do.
type PipelineAction struct {
	NotifyQueueUpdate *NotifyQueueUpdateAction
	PlayPlayer        *PlayPlayerAction
	PausePlayer       *PausePlayerAction
	SeekPlayer        *SeekPlayerAction
}

type NotifyQueueUpdateAction struct {
	Queue  core.QueueId
	Player core.PlayerId
}

type PlayPlayerAction struct {
	Player core.PlayerId
}

type PausePlayerAction struct {
	Player core.PlayerId
}

type SeekPlayerAction struct {
	Player   core.PlayerId
	Position int
}

// Bus is a multi-producer/single-consumer pair of buffered event and
// action channels (see NewBus for what happens when a buffer is full). Events are coalesced only when the new event would not
// change observable state (see Emit); actions are never coalesced.
type Bus struct {
	events  chan PipelineEvent
	actions chan PipelineAction

	mu       sync.Mutex
	lastSink map[core.SinkId]string
	lastPlayerState map[core.PlayerId]string
}

// NewBus creates a Bus with generously buffered channels. Go channels
// aren't truly unbounded, so a large buffer approximates the spec's
// "multi-producer/single-consumer unbounded channels" without risking an
// emitter blocking on a slow/absent consumer; Emit/Dispatch fall back to a
// non-blocking send if the buffer is ever exhausted rather than stalling
// a decode worker or the player tick thread.
func NewBus() *Bus {
	return &Bus{
		events:          make(chan PipelineEvent, 4096),
		actions:         make(chan PipelineAction, 1024),
		lastSink:        make(map[core.SinkId]string),
		lastPlayerState: make(map[core.PlayerId]string),
	}
}

// Events returns the channel events are delivered on.
func (b *Bus) Events() <-chan PipelineEvent { return b.events }

// Actions returns the channel actions are delivered on.
func (b *Bus) Actions() <-chan PipelineAction { return b.actions }

func (b *Bus) emit(e PipelineEvent) {
	select {
	case b.events <- e:
	default:
	}
}

// EmitSinkLoadStateUpdate emits unless state is unchanged since the last
// emission for this sink.
func (b *Bus) EmitSinkLoadStateUpdate(sink core.SinkId, state string) {
	b.mu.Lock()
	if b.lastSink[sink] == state {
		b.mu.Unlock()
		return
	}
	b.lastSink[sink] = state
	b.mu.Unlock()

	b.emit(PipelineEvent{SinkLoadStateUpdate: &SinkLoadStateUpdate{Sink: sink, State: state}})
}

// EmitPlayerStateUpdate emits unless state is unchanged since the last
// emission for this player.
func (b *Bus) EmitPlayerStateUpdate(player core.PlayerId, state string) {
	b.mu.Lock()
	if b.lastPlayerState[player] == state {
		b.mu.Unlock()
		return
	}
	b.lastPlayerState[player] = state
	b.mu.Unlock()

	b.emit(PipelineEvent{PlayerStateUpdate: &PlayerStateUpdateEvent{Player: player, State: state}})
}

// EmitPlayerTimeUpdate is never coalesced: position/total always changes.
func (b *Bus) EmitPlayerTimeUpdate(player core.PlayerId, position, total int) {
	b.emit(PipelineEvent{PlayerTimeUpdate: &PlayerTimeUpdateEvent{Player: player, Position: position, Total: total}})
}

// EmitPlayerAdvanced signals that a player's first playable sink changed.
func (b *Bus) EmitPlayerAdvanced(player core.PlayerId, newSink core.SinkId) {
	b.emit(PipelineEvent{PlayerAdvanced: &PlayerAdvancedEvent{Player: player, NewSink: newSink}})
}

// EmitQueueItemActivated reports that a queue item's sink is now activated.
func (b *Bus) EmitQueueItemActivated(queue core.QueueId, itemId string, sink core.SinkId, title string) {
	b.emit(PipelineEvent{QueueItemActivated: &QueueItemActivatedEvent{Queue: queue, ItemId: itemId, Sink: sink, Title: title}})
}

// EmitQueueItemActivationError reports that a queue item's sink failed to
// activate.
func (b *Bus) EmitQueueItemActivationError(queue core.QueueId, itemId string, err error) {
	b.emit(PipelineEvent{QueueItemActivationError: &QueueItemActivationErrorEvent{Queue: queue, ItemId: itemId, Error: err.Error()}})
}

// Dispatch enqueues an action. Actions are never coalesced or dropped
// silently under normal operation; like Emit, it degrades to a dropped
// send only if the buffer is saturated, which would indicate a stalled
// consumer rather than expected operation.
func (b *Bus) Dispatch(a PipelineAction) {
	select {
	case b.actions <- a:
	default:
	}
}
