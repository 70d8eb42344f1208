package input

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arung-agamani/turntable/internal/audio/loadable"
)

func TestFileResolveProbesAndReturnsLoadable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "track.raw")
	require.NoError(t, os.WriteFile(path, []byte("not a real audio file"), 0o644))

	f := File{Path: path}
	l, probe, err := f.Resolve(context.Background())
	require.NoError(t, err)
	require.NotNil(t, l)

	assert.Equal(t, LengthUnknown, probe.Length.Kind)
	assert.Equal(t, path, probe.Title) // tag parse fails on non-audio data, falls back to path
}

func TestFileResolveMissingPathErrors(t *testing.T) {
	f := File{Path: "/does/not/exist"}
	_, _, err := f.Resolve(context.Background())
	assert.Error(t, err)
}

type stubResolver struct {
	gotRef string
}

func (r *stubResolver) Resolve(ctx context.Context, ref string) (loadable.Loadable, ProbeResult, error) {
	r.gotRef = ref
	return loadable.NewFile(nil, 0), ProbeResult{Title: ref}, nil
}

func TestYouTubeWithoutResolverErrors(t *testing.T) {
	y := YouTube{VideoID: "abc"}
	_, _, err := y.Resolve(context.Background())
	assert.Error(t, err)
}

func TestYouTubeDelegatesToInjectedResolver(t *testing.T) {
	r := &stubResolver{}
	y := YouTube{VideoID: "xyz123", Resolver: r}

	_, probe, err := y.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "xyz123", r.gotRef)
	assert.Equal(t, "xyz123", probe.Title)
}

func TestWaveDistrictWithoutResolverErrors(t *testing.T) {
	w := WaveDistrict{TrackID: "abc"}
	_, _, err := w.Resolve(context.Background())
	assert.Error(t, err)
}

func TestEmptyResolvesToZeroLengthExact(t *testing.T) {
	e := Empty{}
	l, probe, err := e.Resolve(context.Background())
	require.NoError(t, err)

	assert.Equal(t, LengthExact, probe.Length.Kind)
	assert.Equal(t, 0, probe.Length.Samples)

	buf := make([]byte, 4)
	res, err := l.Read(context.Background(), buf)
	assert.NoError(t, err)
	assert.True(t, res.End)
	assert.Equal(t, 0, res.N)
}

func TestLengthKindString(t *testing.T) {
	assert.Equal(t, "Exact", LengthExact.String())
	assert.Equal(t, "Approximate", LengthApproximate.String())
	assert.Equal(t, "Unknown", LengthUnknown.String())
}
