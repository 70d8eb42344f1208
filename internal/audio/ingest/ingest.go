// Package ingest implements the Ingestion component of spec.md §4.3:
// given a Loadable, it creates and activates a Sink, then services
// load requests on a blocking decode worker pool, bridging the
// gopxl/beep-backed decode+resample chain to the sink's WriteGuard.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/arung-agamani/turntable/config"
	"github.com/arung-agamani/turntable/internal/audio/core"
	"github.com/arung-agamani/turntable/internal/audio/decode"
	"github.com/arung-agamani/turntable/internal/audio/events"
	"github.com/arung-agamani/turntable/internal/audio/input"
	"github.com/arung-agamani/turntable/internal/audio/resample"
	"github.com/arung-agamani/turntable/internal/audio/sink"
)

// Result is what Ingest hands back to a caller: the activated sink plus
// what was learned about it during probing.
type Result struct {
	Sink  *sink.Sink
	Probe input.ProbeResult
}

type loaderState struct {
	mu sync.Mutex

	reader    *decode.Reader
	dec       *decode.Decoder
	resampler *resample.Resampler

	format       decode.Format
	writeOffset  int // samples already written into the sink at native write cursor
	decodedAtRate int // sample offset (post-resample) the decoder is currently positioned at
}

// Ingestion orchestrates resolving inputs into activated sinks and
// servicing their load requests on a bounded worker pool, grounded on
// original_source/src/ingest/mod.rs's job-queue-plus-blocking-pool shape.
type Ingestion struct {
	cfg *config.Config
	bus *events.Bus

	probeCache *lru.Cache[string, input.ProbeResult]

	sem chan struct{} // bounds concurrent blocking decode jobs

	mu      sync.Mutex
	loaders map[core.SinkId]*loaderState
}

// New creates an Ingestion with workerCount concurrent decode jobs and a
// probe-result cache sized cacheSize.
func New(cfg *config.Config, bus *events.Bus, workerCount, cacheSize int) *Ingestion {
	cache, err := lru.New[string, input.ProbeResult](cacheSize)
	if err != nil {
		// Only returns an error for a non-positive size, which New's
		// caller controls; treat as a caller bug.
		panic(fmt.Sprintf("ingest: probe cache: %v", err))
	}

	return &Ingestion{
		cfg:        cfg,
		bus:        bus,
		probeCache: cache,
		sem:        make(chan struct{}, workerCount),
		loaders:    make(map[core.SinkId]*loaderState),
	}
}

// Ingest resolves (and so probes) src and builds its sink. src is resolved
// on every call; when cacheKey is non-empty and a probe result is already
// cached under it, that cached result is used instead of the fresh one.
// nameHint picks the decoder by extension.
func (ig *Ingestion) Ingest(ctx context.Context, src input.Input, cacheKey, nameHint string) (*Result, error) {
	var probe input.ProbeResult
	if cacheKey != "" {
		if cached, ok := ig.probeCache.Get(cacheKey); ok {
			probe = cached
		}
	}

	l, resolvedProbe, err := src.Resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("ingest: resolve %s: %w", src.Kind(), err)
	}
	if probe == (input.ProbeResult{}) {
		probe = resolvedProbe
	}
	if cacheKey != "" {
		ig.probeCache.Add(cacheKey, probe)
	}

	s := sink.New()
	guard := s.BeginActivation()

	format := decode.FormatFromName(nameHint)
	reader := decode.NewReader(ctx, l)
	streamer, beepFormat, err := decode.Open(format, reader)
	if err != nil {
		guard.Fail(err)
		ig.bus.EmitQueueItemActivationError(0, "", err)
		return nil, fmt.Errorf("ingest: decode %s: %w", src.Kind(), err)
	}

	dec := decode.New(streamer, beepFormat, resample.ChunkFrames)
	res := resample.New(streamer, int(beepFormat.SampleRate), ig.cfg.SampleRate)

	expected, hasLength := expectedLength(probe, dec, ig.cfg)
	guard.Activate(expected, hasLength)

	ig.mu.Lock()
	ig.loaders[s.Id()] = &loaderState{reader: reader, dec: dec, resampler: res, format: format}
	ig.mu.Unlock()

	ig.bus.EmitSinkLoadStateUpdate(s.Id(), s.LoadState().String())

	return &Result{Sink: s, Probe: probe}, nil
}

func expectedLength(probe input.ProbeResult, dec *decode.Decoder, cfg *config.Config) (int, bool) {
	if probe.Length.Kind == input.LengthExact && probe.Length.Samples > 0 {
		return probe.Length.Samples, true
	}
	if frames := dec.Len(); frames > 0 {
		ratio := float64(cfg.SampleRate) / float64(dec.SampleRate())
		return cfg.FramesToSamples(int(float64(frames) * ratio)), true
	}
	return 0, false
}

// Forget drops a sink's loader state, e.g. once its sink has been reaped.
func (ig *Ingestion) Forget(id core.SinkId) {
	ig.mu.Lock()
	defer ig.mu.Unlock()
	if ls, ok := ig.loaders[id]; ok {
		ls.dec.Close()
		delete(ig.loaders, id)
	}
}

// RequestLoad schedules a decode job on the worker pool: re-seek if
// needed, decode+resample until amount samples are produced or EOF, write
// them via the sink's WriteGuard, and seal/error on terminal conditions.
// It blocks until a worker slot is free (or ctx is done, in which case no
// job is scheduled); the job itself then runs asynchronously.
func (ig *Ingestion) RequestLoad(ctx context.Context, sinkId core.SinkId, sk *sink.Sink, offset, amount int) {
	ig.mu.Lock()
	ls, ok := ig.loaders[sinkId]
	ig.mu.Unlock()
	if !ok {
		return
	}

	select {
	case ig.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}

	go func() {
		defer func() { <-ig.sem }()
		ig.runLoad(ctx, sk, ls, offset, amount)
	}()
}

func (ig *Ingestion) runLoad(ctx context.Context, sk *sink.Sink, ls *loaderState, offset, amount int) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	// An earlier job for this sink may have sealed or errored it while
	// this one waited; BeginWrite on a terminal sink panics.
	if !sk.IsLoadable() {
		return
	}

	if offset != ls.decodedAtRate {
		seeked, err := ls.dec.Seek(ig.frameOffset(offset, ls.dec))
		if err != nil {
			ig.fail(sk, err)
			return
		}
		ls.decodedAtRate = ig.sampleOffset(seeked, ls.dec)

		discard := offset - ls.decodedAtRate
		ig.discardLeading(ls, discard)
		ls.decodedAtRate = offset
	}

	guard := sk.BeginWrite()
	defer guard.Release()

	writeOffset := offset
	produced := 0

	for produced < amount {
		if err := ctx.Err(); err != nil {
			guard.Fail(err)
			ig.bus.EmitSinkLoadStateUpdate(sk.Id(), sk.LoadState().String())
			return
		}

		samples, end, err := ls.resampler.NextChunk()
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("decode error, sealing sink as errored", "sink", sk.Id(), "error", err)
			guard.Fail(err)
			ig.bus.EmitSinkLoadStateUpdate(sk.Id(), sk.LoadState().String())
			return
		}

		if len(samples) > 0 {
			guard.Write(writeOffset, samples)
			writeOffset += len(samples)
			produced += len(samples)
			ls.decodedAtRate += len(samples)
		}

		if end {
			guard.Seal()
			ig.bus.EmitSinkLoadStateUpdate(sk.Id(), sk.LoadState().String())
			return
		}
	}

	ig.bus.EmitSinkLoadStateUpdate(sk.Id(), sk.LoadState().String())
}

func (ig *Ingestion) fail(sk *sink.Sink, err error) {
	guard := sk.BeginWrite()
	guard.Fail(err)
	ig.bus.EmitSinkLoadStateUpdate(sk.Id(), sk.LoadState().String())
}

// discardLeading decodes and throws away n already-resampled samples,
// used after a seek to land exactly on the requested offset when the
// decoder could only seek to a coarser boundary.
func (ig *Ingestion) discardLeading(ls *loaderState, n int) {
	for n > 0 {
		samples, end, err := ls.resampler.NextChunk()
		if err != nil || end {
			return
		}
		n -= len(samples)
	}
}

// frameOffset converts a pipeline-rate (post-resample) sample offset to
// the decoder's native frame position, scaling through the ratio between
// the decoder's native sample rate and the pipeline's, the same way
// expectedLength does.
func (ig *Ingestion) frameOffset(offset int, dec *decode.Decoder) int {
	pipelineFrames := ig.cfg.SamplesToFrames(offset)
	ratio := float64(dec.SampleRate()) / float64(ig.cfg.SampleRate)
	return int(float64(pipelineFrames) * ratio)
}

// sampleOffset converts a decoder-native frame position back to a
// pipeline-rate sample offset.
func (ig *Ingestion) sampleOffset(frames int, dec *decode.Decoder) int {
	ratio := float64(ig.cfg.SampleRate) / float64(dec.SampleRate())
	pipelineFrames := int(float64(frames) * ratio)
	return ig.cfg.FramesToSamples(pipelineFrames)
}
