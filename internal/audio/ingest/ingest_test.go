package ingest

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arung-agamani/turntable/config"
	"github.com/arung-agamani/turntable/internal/audio/events"
	"github.com/arung-agamani/turntable/internal/audio/input"
	"github.com/arung-agamani/turntable/internal/audio/sink"
)

// buildWAV returns a minimal, correctly-sized 16-bit PCM WAV file
// (sampleRate, stereo) for the given interleaved samples, so decode.Open
// has something real to decode without pulling in fixture binaries.
func buildWAV(t *testing.T, sampleRate int, interleaved []int16) []byte {
	t.Helper()

	const channels = 2
	const bitsPerSample = 16
	dataSize := len(interleaved) * 2
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	buf := make([]byte, 0, 44+dataSize)
	buf = append(buf, 'R', 'I', 'F', 'F')
	buf = binary.LittleEndian.AppendUint32(buf, uint32(36+dataSize))
	buf = append(buf, 'W', 'A', 'V', 'E')
	buf = append(buf, 'f', 'm', 't', ' ')
	buf = binary.LittleEndian.AppendUint32(buf, 16)
	buf = binary.LittleEndian.AppendUint16(buf, 1) // PCM
	buf = binary.LittleEndian.AppendUint16(buf, channels)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(sampleRate))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(byteRate))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(blockAlign))
	buf = binary.LittleEndian.AppendUint16(buf, bitsPerSample)
	buf = append(buf, 'd', 'a', 't', 'a')
	buf = binary.LittleEndian.AppendUint32(buf, uint32(dataSize))
	for _, s := range interleaved {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(s))
	}

	return buf
}

func writeWAVFile(t *testing.T, sampleRate int, interleaved []int16) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "track.wav")
	require.NoError(t, os.WriteFile(path, buildWAV(t, sampleRate, interleaved), 0o644))
	return path
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.SampleRate = 44100
	cfg.Channels = 2
	return cfg
}

func TestIngestActivatesSinkFromWAVFileWithKnownLength(t *testing.T) {
	// 20 frames (40 interleaved int16 samples) of a rising ramp.
	samples := make([]int16, 40)
	for i := range samples {
		samples[i] = int16(i * 100)
	}
	path := writeWAVFile(t, 44100, samples)

	ig := New(testConfig(), events.NewBus(), 2, 16)
	result, err := ig.Ingest(context.Background(), input.File{Path: path}, "", "track.wav")
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.True(t, result.Sink.IsActivated())
	assert.Equal(t, sink.Idle, result.Sink.LoadState())

	length, known := result.Sink.ExpectedLength()
	assert.True(t, known)
	assert.Equal(t, 40, length)
}

func TestIngestUnknownExtensionFallsBackToMP3DecoderAndFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "track.bin")
	require.NoError(t, os.WriteFile(path, []byte("not an mp3 frame"), 0o644))

	ig := New(testConfig(), events.NewBus(), 2, 16)
	_, err := ig.Ingest(context.Background(), input.File{Path: path}, "", "track.bin")
	assert.Error(t, err)
}

func TestRunLoadWritesDecodedSamplesIntoSinkBuffer(t *testing.T) {
	samples := make([]int16, 40)
	for i := range samples {
		samples[i] = int16(i * 100)
	}
	path := writeWAVFile(t, 44100, samples)

	ig := New(testConfig(), events.NewBus(), 2, 16)
	result, err := ig.Ingest(context.Background(), input.File{Path: path}, "", "track.wav")
	require.NoError(t, err)

	ig.mu.Lock()
	ls := ig.loaders[result.Sink.Id()]
	ig.mu.Unlock()
	require.NotNil(t, ls)

	ig.runLoad(context.Background(), result.Sink, ls, 0, 40)

	assert.Equal(t, sink.Sealed, result.Sink.LoadState())

	out := make([]float32, 40)
	n, _ := result.Sink.Read(0, out)
	assert.Equal(t, 40, n)
	// First sample in, first sample out: 0 maps to 0.0.
	assert.InDelta(t, 0, out[0], 0.001)
}

func TestFrameOffsetAndSampleOffsetScaleByNativeSampleRateRatio(t *testing.T) {
	// Native rate half the pipeline rate: a pipeline-rate offset should
	// land on half as many native frames, and convert back exactly.
	path := writeWAVFile(t, 22050, make([]int16, 4))

	cfg := testConfig() // cfg.SampleRate = 44100
	ig := New(cfg, events.NewBus(), 2, 16)
	result, err := ig.Ingest(context.Background(), input.File{Path: path}, "", "track.wav")
	require.NoError(t, err)

	ig.mu.Lock()
	ls := ig.loaders[result.Sink.Id()]
	ig.mu.Unlock()
	require.NotNil(t, ls)

	assert.Equal(t, 5, ig.frameOffset(20, ls.dec))
	assert.Equal(t, 20, ig.sampleOffset(5, ls.dec))
}

func TestRunLoadSeeksCorrectlyWhenNativeRateDiffersFromPipelineRate(t *testing.T) {
	// 20 native frames at 22050Hz; pipeline runs at 44100Hz, a 2x upsample.
	nativeFrames := 20
	raw := make([]int16, nativeFrames*2)
	for i := 0; i < nativeFrames; i++ {
		v := int16(i * 1000)
		raw[i*2] = v
		raw[i*2+1] = v
	}
	path := writeWAVFile(t, 22050, raw)

	cfg := config.Default()
	cfg.SampleRate = 44100
	cfg.Channels = 2

	ig := New(cfg, events.NewBus(), 2, 16)
	result, err := ig.Ingest(context.Background(), input.File{Path: path}, "", "track.wav")
	require.NoError(t, err)

	length, known := result.Sink.ExpectedLength()
	require.True(t, known)
	require.Equal(t, 80, length) // 20 native frames, 2 channels, 2x rate ratio

	ig.mu.Lock()
	ls := ig.loaders[result.Sink.Id()]
	ig.mu.Unlock()
	require.NotNil(t, ls)

	// Request the second half directly, forcing a mid-stream seek past
	// the first half without ever decoding it.
	ig.runLoad(context.Background(), result.Sink, ls, 40, 40)

	assert.Equal(t, sink.Sealed, result.Sink.LoadState())

	out := make([]float32, 40)
	n, _ := result.Sink.Read(40, out)
	// Without sample-rate scaling, frameOffset(40) would resolve to
	// native frame 20 - exactly EOF - producing 0 samples instead of a
	// full 40-sample chunk from the correct native frame 10.
	assert.Equal(t, 40, n)
}

func TestForgetRemovesLoaderState(t *testing.T) {
	samples := make([]int16, 4)
	path := writeWAVFile(t, 44100, samples)

	ig := New(testConfig(), events.NewBus(), 2, 16)
	result, err := ig.Ingest(context.Background(), input.File{Path: path}, "", "track.wav")
	require.NoError(t, err)

	ig.Forget(result.Sink.Id())

	ig.mu.Lock()
	_, ok := ig.loaders[result.Sink.Id()]
	ig.mu.Unlock()
	assert.False(t, ok)
}
