// Package resample retargets a decoded stream to the pipeline's
// configured sample rate using gopxl/beep/effects.Resample, and
// implements the fixed-chunk pull/skip protocol of spec.md §4.3: decode
// in 1024-frame-per-channel chunks, and on first use skip the
// resampler's output delay to drop filter-priming silence.
package resample

import (
	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"

	"github.com/arung-agamani/turntable/internal/audio/core"
)

// ChunkFrames is the fixed pull size, in frames per channel, per spec.md
// §4.3.
const ChunkFrames = 1024

// quality is the sinc interpolation quality passed to effects.Resample;
// higher values trade CPU for fewer artifacts. beep.effects documents
// 1-4 as sane as a range.
const quality = 4

// Resampler wraps a beep.Streamer, converting its native sample rate to
// target and surfacing fixed-size chunks as interleaved core.Sample.
type Resampler struct {
	streamer beep.Streamer
	resample bool

	frameBuf     [][2]float64
	skipRemaining int
}

// New builds a Resampler. If srcRate == dstRate, no resampling is
// performed and chunks are passed through unchanged (a no-op
// effects.Resample would otherwise still cost a sinc convolution for
// nothing).
func New(src beep.Streamer, srcRate, dstRate int) *Resampler {
	r := &Resampler{frameBuf: make([][2]float64, ChunkFrames)}

	if srcRate == dstRate {
		r.streamer = src
		return r
	}

	resampled := effects.Resample(quality, beep.SampleRate(srcRate), beep.SampleRate(dstRate), src)
	r.streamer = resampled
	r.resample = true
	// beep's sinc resampler doesn't expose an explicit output-delay
	// getter; approximate filter-priming delay as quality*2 frames,
	// which are skipped on the first chunk pulled from this
	// instance (spec.md §4.3's "skip output_delay() * channel_count
	// leading samples").
	r.skipRemaining = quality * 2
	return r
}

// NextChunk decodes the next chunk, skipping any remaining priming delay
// first, and returns interleaved core.Sample plus end-of-stream.
func (r *Resampler) NextChunk() (samples []core.Sample, end bool, err error) {
	for r.skipRemaining > 0 {
		want := r.skipRemaining
		if want > len(r.frameBuf) {
			want = len(r.frameBuf)
		}
		n, ok := r.streamer.Stream(r.frameBuf[:want])
		r.skipRemaining -= n
		if !ok {
			if serr := r.streamer.Err(); serr != nil {
				return nil, true, serr
			}
			return nil, true, nil
		}
	}

	n, ok := r.streamer.Stream(r.frameBuf)
	if n > 0 {
		samples = make([]core.Sample, 0, n*2)
		for i := 0; i < n; i++ {
			samples = append(samples,
				core.Sample(r.frameBuf[i][0]),
				core.Sample(r.frameBuf[i][1]),
			)
		}
	}

	if !ok {
		if serr := r.streamer.Err(); serr != nil {
			return samples, true, serr
		}
		return samples, true, nil
	}

	return samples, false, nil
}
