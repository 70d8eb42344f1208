// Package rangebuffer implements MultiRangeBuffer, the sparse sample
// buffer a Sink uses to store decoded audio that may arrive out of order
// (seeks, re-decodes) and with gaps.
package rangebuffer

import (
	"sort"

	"github.com/arung-agamani/turntable/internal/audio/core"
)

// ReadEnd describes why a Read call stopped.
type ReadEnd int

const (
	// More means the read filled the whole buffer and more data may follow.
	More ReadEnd = iota
	// Gap means the read stopped because it ran into an unwritten region.
	Gap
	// End means the read reached the buffer's expected length.
	End
)

func (e ReadEnd) String() string {
	switch e {
	case More:
		return "More"
	case Gap:
		return "Gap"
	case End:
		return "End"
	default:
		return "Unknown"
	}
}

// Range is a contiguous run of samples starting at absolute sample Offset.
type Range struct {
	Offset int
	Data   []core.Sample
}

func (r *Range) end() int { return r.Offset + len(r.Data) }

// MultiRangeBuffer is an ordered, pairwise-disjoint, non-adjacent set of
// Ranges. It models a single source's decoded samples, which may be
// written discontiguously (e.g. after a seek) and read from any offset.
//
// Not safe for concurrent use; callers (Sink) guard it with their own
// locks per spec: a write lock for mutation, a read lock for reads.
type MultiRangeBuffer struct {
	ranges []Range
	// expectedLength is the total sample length of the source, when known.
	expectedLength    int
	hasExpectedLength bool
}

// New creates an empty MultiRangeBuffer with no known expected length.
func New() *MultiRangeBuffer {
	return &MultiRangeBuffer{}
}

// SetExpectedLength records the source's total sample length. Once set it
// is treated as immutable by the rest of the pipeline (the sink enforces
// this at activation; the buffer itself will simply accept the latest
// call, since only Ingestion calls it and only once per spec).
func (b *MultiRangeBuffer) SetExpectedLength(length int) {
	b.expectedLength = length
	b.hasExpectedLength = true
}

// ExpectedLength returns the source's total sample length and whether it
// is known.
func (b *MultiRangeBuffer) ExpectedLength() (int, bool) {
	return b.expectedLength, b.hasExpectedLength
}

// Write appends samples at the given absolute offset, creating a new Range
// if none starts there, then merges any ranges that become overlapping or
// adjacent as a result.
func (b *MultiRangeBuffer) Write(offset int, samples []core.Sample) {
	if len(samples) == 0 {
		return
	}

	idx := b.indexOfRangeStarting(offset)
	if idx == -1 {
		cp := make([]core.Sample, len(samples))
		copy(cp, samples)
		b.insertSorted(Range{Offset: offset, Data: cp})
	} else {
		b.ranges[idx].Data = append(b.ranges[idx].Data, samples...)
	}

	b.mergeAll()
}

// indexOfRangeStarting returns the index of the range whose Offset exactly
// equals offset, or -1 if there is none.
func (b *MultiRangeBuffer) indexOfRangeStarting(offset int) int {
	for i := range b.ranges {
		if b.ranges[i].Offset == offset {
			return i
		}
	}
	return -1
}

func (b *MultiRangeBuffer) insertSorted(r Range) {
	i := sort.Search(len(b.ranges), func(i int) bool {
		return b.ranges[i].Offset >= r.Offset
	})
	b.ranges = append(b.ranges, Range{})
	copy(b.ranges[i+1:], b.ranges[i:])
	b.ranges[i] = r
}

// mergeAll re-establishes the sorted, pairwise-disjoint-and-non-adjacent
// invariant across the whole range list. It is simple rather than
// incremental because writes are infrequent relative to reads and ranges
// rarely number more than a handful per sink.
func (b *MultiRangeBuffer) mergeAll() {
	if len(b.ranges) < 2 {
		return
	}

	sort.Slice(b.ranges, func(i, j int) bool {
		return b.ranges[i].Offset < b.ranges[j].Offset
	})

	merged := b.ranges[:1]
	for _, next := range b.ranges[1:] {
		last := &merged[len(merged)-1]
		if next.Offset <= last.end() {
			// Overlapping or adjacent: merge next into last.
			overlap := last.end() - next.Offset
			if overlap < len(next.Data) {
				last.Data = append(last.Data, next.Data[overlap:]...)
			}
		} else {
			merged = append(merged, next)
		}
	}
	b.ranges = merged
}

// rangeContaining returns the index of the range that contains offset
// (Offset <= offset < end), or -1 if offset falls in a gap.
func (b *MultiRangeBuffer) rangeContaining(offset int) int {
	// ranges are sorted; a linear scan is fine given the small counts.
	for i := range b.ranges {
		if offset >= b.ranges[i].Offset && offset < b.ranges[i].end() {
			return i
		}
	}
	return -1
}

// rangeAtOrAfter returns the index of the first range whose Offset is >=
// offset, or -1 if none.
func (b *MultiRangeBuffer) rangeAtOrAfter(offset int) int {
	i := sort.Search(len(b.ranges), func(i int) bool {
		return b.ranges[i].Offset >= offset
	})
	if i == len(b.ranges) {
		return -1
	}
	return i
}

// Read copies contiguous samples starting at offset into buf, returning
// the number of samples actually copied and why the read stopped.
func (b *MultiRangeBuffer) Read(offset int, buf []core.Sample) (int, ReadEnd) {
	if b.hasExpectedLength && offset >= b.expectedLength {
		return 0, End
	}

	idx := b.rangeContaining(offset)
	if idx == -1 {
		return 0, Gap
	}

	r := &b.ranges[idx]
	available := r.end() - offset
	n := len(buf)
	if available < n {
		n = available
	}

	copy(buf[:n], r.Data[offset-r.Offset:offset-r.Offset+n])

	if b.hasExpectedLength && offset+n >= b.expectedLength {
		return n, End
	}
	if n < len(buf) {
		return n, Gap
	}
	return n, More
}

// DistanceFromVoid returns how many samples remain in the range containing
// offset before the next gap, and whether that range is the last one (no
// further ranges follow it). If offset itself is in a gap, distance is 0
// and isEnd reflects whether any range starts at or after offset.
func (b *MultiRangeBuffer) DistanceFromVoid(offset int) (distance int, isEnd bool) {
	idx := b.rangeContaining(offset)
	if idx == -1 {
		next := b.rangeAtOrAfter(offset)
		return 0, next == -1
	}

	r := &b.ranges[idx]
	distance = r.end() - offset
	isEnd = idx == len(b.ranges)-1
	return distance, isEnd
}

// RetainWindow drops ranges entirely outside [offset-window, offset+window]
// and, for kept ranges, trims samples outside that window, snapping the
// kept bounds down/up to chunkSize boundaries so channel-frame alignment
// is preserved.
func (b *MultiRangeBuffer) RetainWindow(offset, window, chunkSize int) {
	if chunkSize <= 0 {
		chunkSize = 1
	}

	lo := offset - window
	if lo < 0 {
		lo = 0
	}
	hi := offset + window

	snappedLo := (lo / chunkSize) * chunkSize
	// Inclusive upper bound of the chunk containing hi, not the start of
	// the following chunk.
	snappedHi := (hi/chunkSize)*chunkSize + (chunkSize - 1)

	kept := b.ranges[:0]
	for _, r := range b.ranges {
		if r.end() <= snappedLo || r.Offset > snappedHi {
			continue // entirely outside the window
		}

		start := r.Offset
		if start < snappedLo {
			start = snappedLo
		}
		end := r.end()
		if end > snappedHi+1 {
			end = snappedHi + 1
		}
		if end <= start {
			continue
		}

		r.Data = r.Data[start-r.Offset : end-r.Offset]
		r.Offset = start
		kept = append(kept, r)
	}
	b.ranges = kept
}

// Ranges returns a read-only snapshot of the current range list, used by
// tests to assert the sorted/disjoint/non-adjacent invariant.
func (b *MultiRangeBuffer) Ranges() []Range {
	out := make([]Range, len(b.ranges))
	copy(out, b.ranges)
	return out
}

// Len returns the number of distinct ranges currently stored.
func (b *MultiRangeBuffer) Len() int { return len(b.ranges) }
