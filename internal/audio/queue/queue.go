// Package queue implements the Queue contract of spec.md §4.7 (peek,
// next, previous, reset, skip, notifier-driven updates) plus a concrete
// round-robin implementation grounded on
// original_source/src/queue/mod.rs's RoundRobin/SubQueue: each submitter
// gets their own ordered sub-queue, and the play order interleaves across
// submitters fairly instead of draining one submitter's additions before
// ever reaching another's.
package queue

import (
	"sync"

	"github.com/arung-agamani/turntable/internal/audio/core"
	"github.com/arung-agamani/turntable/internal/audio/events"
	"github.com/arung-agamani/turntable/internal/audio/input"
)

// Item is one entry a Queue can hand the pipeline to turn into a sink,
// mirroring spec.md §3's BoxedQueueItem. Input travels with the item so
// the pipeline can lazily produce a Loadable from it on activation; it is
// ignored once Sink is set.
type Item struct {
	ItemId        string
	Input         input.Input
	LengthSeconds float64
	HasLength     bool
	Sink          core.SinkId // none until the pipeline activates this item
	HasSink       bool
	Submitter     string
	Title         string
}

// Queue is the pluggable contract every ordering policy implements.
type Queue interface {
	// Peek returns the current item plus near-future items, in play
	// order.
	Peek() []Item
	// Next advances to the next item and returns it.
	Next() (Item, bool)
	// Previous moves back to the prior item and returns it.
	Previous() (Item, bool)
	// Reset clears all structural state.
	Reset()
	// Skip removes itemId wherever it is queued.
	Skip(itemId string)
	// SetItemSink records the sink activated for itemId, so future Peek
	// calls can reuse it instead of re-activating.
	SetItemSink(itemId string, sink core.SinkId)
}

// Notifier is injected into a Queue on construction; every structural
// change calls Notify, which dispatches a NotifyQueueUpdate action for
// the associated player (spec.md §4.7).
type Notifier interface {
	Notify()
}

// BusNotifier dispatches NotifyQueueUpdate on a pipeline event bus.
type BusNotifier struct {
	Bus    *events.Bus
	Queue  core.QueueId
	Player core.PlayerId
}

func (n *BusNotifier) Notify() {
	n.Bus.Dispatch(events.PipelineAction{
		NotifyQueueUpdate: &events.NotifyQueueUpdateAction{Queue: n.Queue, Player: n.Player},
	})
}

type subQueue struct {
	submitter string
	entries   []Item
}

// RoundRobinQueue is the reference Queue implementation: one sub-queue
// per submitter, consumed in rotation so no single submitter can
// monopolize the play order by adding many tracks at once.
type RoundRobinQueue struct {
	mu       sync.Mutex
	id       core.QueueId
	notifier Notifier

	subs    []*subQueue
	subIdx  map[string]int // submitter -> index into subs

	rotation int // index into subs of whose turn is next in the merged order
	current  int // position within the computed merged play order
	merged   []Item
}

// New creates an empty RoundRobinQueue that notifies n on every
// structural change.
func New(n Notifier) *RoundRobinQueue {
	return &RoundRobinQueue{
		id:       core.NewQueueId(),
		notifier: n,
		subIdx:   make(map[string]int),
	}
}

// Id returns the queue's process-unique identifier.
func (q *RoundRobinQueue) Id() core.QueueId { return q.id }

// Add appends tracks to submitter's sub-queue, creating it if this is
// their first addition, and notifies.
func (q *RoundRobinQueue) Add(submitter string, tracks []Item) {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx, ok := q.subIdx[submitter]
	if !ok {
		idx = len(q.subs)
		q.subIdx[submitter] = idx
		q.subs = append(q.subs, &subQueue{submitter: submitter})
	}
	q.subs[idx].entries = append(q.subs[idx].entries, tracks...)

	q.recompute()
	q.notifier.Notify()
}

// recompute rebuilds the merged play order by rotating through
// sub-queues that still have entries, taking one item from each in turn,
// grounded on original_source's RoundRobin::calculate.
func (q *RoundRobinQueue) recompute() {
	remaining := make([]int, len(q.subs)) // cursor into each sub's entries
	var merged []Item

	total := 0
	for _, s := range q.subs {
		total += len(s.entries)
	}

	r := q.rotation
	for len(merged) < total {
		advanced := false
		for i := 0; i < len(q.subs); i++ {
			s := q.subs[r%len(q.subs)]
			if remaining[r%len(q.subs)] < len(s.entries) {
				merged = append(merged, s.entries[remaining[r%len(q.subs)]])
				remaining[r%len(q.subs)]++
				r++
				advanced = true
				break
			}
			r++
		}
		if !advanced {
			break
		}
	}

	q.merged = merged
	if q.current > len(merged) {
		q.current = len(merged)
	}
}

// Peek returns the current item plus near-future items, in play order.
func (q *RoundRobinQueue) Peek() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.current >= len(q.merged) {
		return nil
	}
	return append([]Item(nil), q.merged[q.current:]...)
}

// Next advances to the next item and notifies.
func (q *RoundRobinQueue) Next() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.current+1 >= len(q.merged) {
		q.current = len(q.merged)
		q.notifier.Notify()
		return Item{}, false
	}
	q.current++
	if len(q.subs) > 0 {
		q.rotation++
	}
	q.notifier.Notify()
	return q.merged[q.current], true
}

// Previous moves back to the prior item and notifies.
func (q *RoundRobinQueue) Previous() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.current == 0 {
		return Item{}, false
	}
	q.current--
	q.notifier.Notify()
	return q.merged[q.current], true
}

// Reset clears all sub-queues and notifies.
func (q *RoundRobinQueue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.subs = nil
	q.subIdx = make(map[string]int)
	q.merged = nil
	q.current = 0
	q.rotation = 0
	q.notifier.Notify()
}

// Skip removes itemId from whichever sub-queue holds it and notifies.
func (q *RoundRobinQueue) Skip(itemId string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, s := range q.subs {
		for i, it := range s.entries {
			if it.ItemId == itemId {
				s.entries = append(s.entries[:i], s.entries[i+1:]...)
				q.recompute()
				q.notifier.Notify()
				return
			}
		}
	}
}

// SetItemSink records the sink activated for itemId so a future Peek
// doesn't need to re-activate it.
func (q *RoundRobinQueue) SetItemSink(itemId string, sinkId core.SinkId) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, s := range q.subs {
		for i := range s.entries {
			if s.entries[i].ItemId == itemId {
				s.entries[i].Sink = sinkId
				s.entries[i].HasSink = true
			}
		}
	}
	for i := range q.merged {
		if q.merged[i].ItemId == itemId {
			q.merged[i].Sink = sinkId
			q.merged[i].HasSink = true
		}
	}
}
