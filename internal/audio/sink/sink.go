// Package sink implements the per-source audio container described in
// spec.md §4.2: a Sink holds a source's decoded samples behind an
// activation state machine and a load state machine, and enforces that at
// most one write guard and one activation guard exist at a time.
package sink

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arung-agamani/turntable/internal/audio/core"
	"github.com/arung-agamani/turntable/internal/audio/rangebuffer"
)

// ActivationState is the discriminant of a Sink's activation.
type ActivationState int

const (
	Inactive ActivationState = iota
	Activating
	Activated
	ActivationError
)

func (s ActivationState) String() string {
	switch s {
	case Inactive:
		return "Inactive"
	case Activating:
		return "Activating"
	case Activated:
		return "Activated"
	case ActivationError:
		return "Error"
	default:
		return "Unknown"
	}
}

// LoadState is the discriminant of a Sink's load lifecycle.
type LoadState int

const (
	Idle LoadState = iota
	Loading
	Sealed
	LoadError
)

func (s LoadState) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Loading:
		return "Loading"
	case Sealed:
		return "Sealed"
	case LoadError:
		return "Error"
	default:
		return "Unknown"
	}
}

var (
	// ErrAlreadyActivating is a programmer error: a second ActivationGuard
	// was requested while one was already outstanding.
	ErrAlreadyActivating = errors.New("sink: already activating")
	// ErrAlreadyWriting is a programmer error: a second WriteGuard was
	// requested while one was already outstanding.
	ErrAlreadyWriting = errors.New("sink: write guard already held")
	// ErrTerminalState is returned when a caller tries to transition a
	// sealed or errored sink's load state.
	ErrTerminalState = errors.New("sink: load state is terminal")
)

// Sink is a PCM sample container for a single ingested source.
type Sink struct {
	id core.SinkId

	mu         sync.RWMutex // guards activation + activationErr + buffer swap
	activation ActivationState
	buffer     *rangebuffer.MultiRangeBuffer
	activationErr error

	loadMu   sync.Mutex // guards loadState + loadErr
	loadState LoadState
	loadErr   error

	activating    atomic.Bool // true while an ActivationGuard is outstanding
	writing       atomic.Bool // true while a WriteGuard is outstanding
	guardCount    atomic.Int32 // outstanding SinkGuard count

	lastInteraction atomic.Int64 // unix nanos
}

// New creates a sink in the Inactive state. It is registered and prepared
// by Ingestion before any read/write call is made against it.
func New() *Sink {
	s := &Sink{id: core.NewSinkId()}
	s.touch()
	return s
}

// Id returns the sink's process-unique identifier.
func (s *Sink) Id() core.SinkId { return s.id }

func (s *Sink) touch() {
	s.lastInteraction.Store(time.Now().UnixNano())
}

// ActivationGuard is a single-use token returned by BeginActivation. The
// holder must call Activate or Fail exactly once; failing to do so before
// the guard is dropped is a programmer error (the spec's "dropping without
// calling activate()/fail() is a programmer error" — we can't intercept Go
// GC finalization reliably, so we treat double-BeginActivation as the
// detectable half of that contract and panic there instead).
type ActivationGuard struct {
	sink *Sink
	done bool
}

// BeginActivation transitions Inactive -> Activating and returns a guard
// that must be resolved with Activate or Fail. Calling it while already
// activating is a programmer error and panics, matching spec.md §4.2's
// "Sink protocol violations ... programmer errors; panic with context".
func (s *Sink) BeginActivation() *ActivationGuard {
	if !s.activating.CompareAndSwap(false, true) {
		panic(fmt.Sprintf("sink %d: %v", s.id, ErrAlreadyActivating))
	}

	s.mu.Lock()
	s.activation = Activating
	s.mu.Unlock()
	s.touch()

	return &ActivationGuard{sink: s}
}

// Activate resolves the guard successfully, allocating the sink's sample
// buffer with the given known (or unknown, via hasLength=false) expected
// length.
func (g *ActivationGuard) Activate(expectedLength int, hasLength bool) {
	if g.done {
		panic("sink: activation guard already resolved")
	}
	g.done = true

	buf := rangebuffer.New()
	if hasLength {
		buf.SetExpectedLength(expectedLength)
	}

	g.sink.mu.Lock()
	g.sink.buffer = buf
	g.sink.activation = Activated
	g.sink.mu.Unlock()

	g.sink.loadMu.Lock()
	g.sink.loadState = Idle
	g.sink.loadMu.Unlock()

	g.sink.activating.Store(false)
	g.sink.touch()
}

// Fail resolves the guard with a terminal activation error.
func (g *ActivationGuard) Fail(err error) {
	if g.done {
		panic("sink: activation guard already resolved")
	}
	g.done = true

	g.sink.mu.Lock()
	g.sink.activation = ActivationError
	g.sink.activationErr = err
	g.sink.mu.Unlock()

	g.sink.activating.Store(false)
	g.sink.touch()
}

// Activation returns the sink's current activation state and, if it is
// Activated, a snapshot won't be returned here — callers use Read/Write.
func (s *Sink) Activation() ActivationState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activation
}

// ActivationErr returns the error recorded when activation failed, if
// the sink is in the Error activation state.
func (s *Sink) ActivationErr() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activationErr
}

// IsActivated reports whether the sink's buffer is ready to read/write.
func (s *Sink) IsActivated() bool {
	return s.Activation() == Activated
}

// IsActivatable reports whether the sink can still be asked to activate
// (i.e. hasn't already activated, failed, or begun activating).
func (s *Sink) IsActivatable() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activation == Inactive
}

// WriteGuard is the single-use exclusive write handle for a sink, obtained
// via BeginWrite. Release must be called exactly once (typically via
// defer) to return the sink to Idle unless Seal or Fail already moved it
// to a terminal state.
type WriteGuard struct {
	sink     *Sink
	released bool
}

// BeginWrite acquires the sink's exclusive write guard and transitions
// Idle -> Loading. Calling it while a guard is already held, or while the
// sink is in a terminal load state, panics per spec.md §4.2/§7 (these are
// invariant violations, not expected runtime conditions for a correctly
// written Ingestion worker).
func (s *Sink) BeginWrite() *WriteGuard {
	if !s.writing.CompareAndSwap(false, true) {
		panic(fmt.Sprintf("sink %d: %v", s.id, ErrAlreadyWriting))
	}

	s.loadMu.Lock()
	if s.loadState == Sealed || s.loadState == LoadError {
		s.loadMu.Unlock()
		s.writing.Store(false)
		panic(fmt.Sprintf("sink %d: %v", s.id, ErrTerminalState))
	}
	s.loadState = Loading
	s.loadMu.Unlock()
	s.touch()

	return &WriteGuard{sink: s}
}

// Write appends samples at offset into the sink's buffer. It may be
// called any number of times while the guard is held.
func (g *WriteGuard) Write(offset int, samples []core.Sample) {
	g.sink.mu.Lock()
	defer g.sink.mu.Unlock()
	if g.sink.buffer == nil {
		panic("sink: write before activation")
	}
	g.sink.buffer.Write(offset, samples)
	g.sink.touch()
}

// Seal marks the sink as terminally complete: no more data will ever be
// written. It also releases the write guard.
func (g *WriteGuard) Seal() {
	g.sink.loadMu.Lock()
	g.sink.loadState = Sealed
	g.sink.loadMu.Unlock()
	g.release()
}

// Fail marks the sink as terminally errored (skip on playback) and
// releases the write guard.
func (g *WriteGuard) Fail(err error) {
	g.sink.loadMu.Lock()
	g.sink.loadState = LoadError
	g.sink.loadErr = err
	g.sink.loadMu.Unlock()
	g.release()
}

// Release returns the sink to Idle (if it wasn't sealed/errored by this
// guard) and frees the write guard for reacquisition. Safe to call via
// defer after Seal/Fail; it is a no-op in that case.
func (g *WriteGuard) Release() {
	g.release()
}

func (g *WriteGuard) release() {
	if g.released {
		return
	}
	g.released = true

	g.sink.loadMu.Lock()
	if g.sink.loadState == Loading {
		g.sink.loadState = Idle
	}
	g.sink.loadMu.Unlock()

	g.sink.writing.Store(false)
	g.sink.touch()
}

// LoadState returns the sink's current load state.
func (s *Sink) LoadState() LoadState {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	return s.loadState
}

// LoadErr returns the error recorded when the sink entered LoadError.
func (s *Sink) LoadErr() error {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	return s.loadErr
}

// SinkGuard is a shared, non-exclusive read handle used by callers (e.g.
// a queue item referencing a sink) to keep a sink alive and ineligible for
// reaping while they hold it.
type SinkGuard struct {
	sink *Sink
}

// Acquire returns a new SinkGuard, incrementing the sink's outstanding
// guard count.
func (s *Sink) Acquire() *SinkGuard {
	s.guardCount.Add(1)
	s.touch()
	return &SinkGuard{sink: s}
}

// Release drops the guard, decrementing the sink's outstanding guard
// count. Safe to call at most once per guard.
func (g *SinkGuard) Release() {
	if g == nil {
		return
	}
	g.sink.guardCount.Add(-1)
}

// Read copies up to len(buf) samples starting at offset into buf.
func (s *Sink) Read(offset int, buf []core.Sample) (int, rangebuffer.ReadEnd) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.buffer == nil {
		return 0, rangebuffer.Gap
	}
	return s.buffer.Read(offset, buf)
}

// DistanceFromVoid reports how many samples are available from offset
// before the sink's next gap or end, and whether that is the final range.
func (s *Sink) DistanceFromVoid(offset int) (distance int, isEnd bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.buffer == nil {
		return 0, true
	}
	return s.buffer.DistanceFromVoid(offset)
}

// ExpectedLength returns the sink's total sample length, if known.
func (s *Sink) ExpectedLength() (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.buffer == nil {
		return 0, false
	}
	return s.buffer.ExpectedLength()
}

// ClearOutside retains only the samples within window of offset, chunked
// to chunkSize (a channel-frame boundary), reclaiming memory for audio the
// timeline no longer needs.
func (s *Sink) ClearOutside(offset, window, chunkSize int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buffer == nil {
		return
	}
	s.buffer.RetainWindow(offset, window, chunkSize)
}

// IsLoadable reports whether the sink could still receive further writes
// (i.e. hasn't sealed or errored).
func (s *Sink) IsLoadable() bool {
	st := s.LoadState()
	return st != Sealed && st != LoadError
}

// IsSkippable reports whether a playing timeline should treat the sink as
// void-ended and move past it: it's errored, or sealed with nothing left
// to read at the given offset.
func (s *Sink) IsSkippable(offset int) bool {
	if s.Activation() == ActivationError || s.LoadState() == LoadError {
		return true
	}
	if s.LoadState() != Sealed {
		return false
	}
	dist, _ := s.DistanceFromVoid(offset)
	return dist == 0
}

// IsClearable reports whether the sink has no outstanding write or shared
// guard and has been idle for at least minIdle.
func (s *Sink) IsClearable(minIdle time.Duration) bool {
	if s.writing.Load() || s.guardCount.Load() > 0 {
		return false
	}
	last := time.Unix(0, s.lastInteraction.Load())
	return time.Since(last) >= minIdle
}
