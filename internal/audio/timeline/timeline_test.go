package timeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arung-agamani/turntable/internal/audio/core"
	"github.com/arung-agamani/turntable/internal/audio/sink"
)

func sealedSink(t *testing.T, data []core.Sample) *sink.Sink {
	t.Helper()
	s := sink.New()
	g := s.BeginActivation()
	g.Activate(len(data), true)
	wg := s.BeginWrite()
	wg.Write(0, data)
	wg.Seal()
	return s
}

func loadingSink(t *testing.T) *sink.Sink {
	t.Helper()
	s := sink.New()
	g := s.BeginActivation()
	g.Activate(0, false)
	return s
}

func TestAdvanceReadsAcrossTwoSealedSinks(t *testing.T) {
	s1 := sealedSink(t, []core.Sample{1, 2, 3, 4})
	s2 := sealedSink(t, []core.Sample{5, 6, 7, 8})

	tl := New()
	tl.SetSinks([]*sink.Sink{s1, s2})

	reads, buffering := tl.Advance(6)
	require.False(t, buffering)
	require.Len(t, reads, 2)
	assert.Equal(t, 4, reads[0].Amount)
	assert.Equal(t, 2, reads[1].Amount)
	assert.Equal(t, 6, tl.TotalOffset())
}

func TestAdvanceStopsAtUnplayableSinkAndReportsBuffering(t *testing.T) {
	s1 := sealedSink(t, []core.Sample{1, 2})
	stalled := loadingSink(t) // Activated but nothing written yet: Idle, not sealed.

	tl := New()
	tl.SetSinks([]*sink.Sink{s1, stalled})

	reads, buffering := tl.Advance(10)
	require.Len(t, reads, 1)
	assert.Equal(t, 2, reads[0].Amount)
	assert.True(t, buffering)
}

func TestAdvanceOnExhaustedSealedQueueIsIdleNotBuffering(t *testing.T) {
	s1 := sealedSink(t, []core.Sample{1, 2})

	tl := New()
	tl.SetSinks([]*sink.Sink{s1})

	reads, buffering := tl.Advance(2)
	require.Len(t, reads, 1)
	assert.False(t, buffering)

	// Second advance: nothing left, sink is sealed+drained -> not buffering.
	reads, buffering = tl.Advance(2)
	assert.Empty(t, reads)
	assert.False(t, buffering)
}

func TestAdvanceSkipsActivationErroredSink(t *testing.T) {
	failed := sink.New()
	g := failed.BeginActivation()
	g.Fail(assertErr)

	s2 := sealedSink(t, []core.Sample{9, 9})

	tl := New()
	tl.SetSinks([]*sink.Sink{failed, s2})

	reads, buffering := tl.Advance(2)
	require.Len(t, reads, 1)
	assert.Equal(t, s2, reads[0].Sink)
	assert.False(t, buffering)
}

func TestPreloadReturnsSinksBelowThreshold(t *testing.T) {
	s1 := sink.New()
	g := s1.BeginActivation()
	g.Activate(100, true)
	wg := s1.BeginWrite()
	wg.Write(0, make([]core.Sample, 3))
	wg.Release()

	tl := New()
	tl.SetSinks([]*sink.Sink{s1})

	preloads := tl.Preload(10)
	require.Len(t, preloads, 1)
	assert.Equal(t, s1.Id(), preloads[0].Sink)
}

func TestPreloadStopsAtFirstSinkNotYetAtEndOfLoadedData(t *testing.T) {
	s1 := sink.New()
	g := s1.BeginActivation()
	g.Activate(0, false)
	wg := s1.BeginWrite()
	wg.Write(0, make([]core.Sample, 50))
	wg.Write(200, make([]core.Sample, 50))
	wg.Release()

	s2 := loadingSink(t)

	tl := New()
	tl.SetSinks([]*sink.Sink{s1, s2})

	preloads := tl.Preload(10)
	// s1 has 50 loaded samples ahead (above threshold) followed by a gap
	// before its second range, so it isn't at the end of its loaded data
	// and the walk stops there: the empty s2 would otherwise be preloaded.
	assert.Empty(t, preloads)
}

var assertErr = &testError{"boom"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
