// Package decode adapts gopxl/beep's per-format decoders to the
// pipeline's canonical interleaved float32 PCM model, grounded on the
// streamer-wrapping pattern shown in several pack examples (e.g.
// haryoiro/yutemal's BufferedStreamer) but built directly against
// beep.StreamSeekCloser rather than re-implementing ring buffering here —
// that's resample's and sink's job.
package decode

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/flac"
	"github.com/gopxl/beep/mp3"
	"github.com/gopxl/beep/vorbis"
	"github.com/gopxl/beep/wav"

	"github.com/arung-agamani/turntable/internal/audio/core"
	"github.com/arung-agamani/turntable/internal/audio/loadable"
)

// Reader adapts a loadable.Loadable into the io.ReadSeekCloser the beep
// decoders need: they read sequentially but Seek (used when Ingestion
// re-seeks a decoder) requires random access.
type Reader struct {
	ctx context.Context
	l   loadable.Loadable
	pos int64
}

// NewReader wraps l for use with Open. ctx bounds every Read/Seek call for
// the reader's lifetime; Ingestion passes the context of the Ingest call
// that created the sink, not that of each later load job.
func NewReader(ctx context.Context, l loadable.Loadable) *Reader {
	return &Reader{ctx: ctx, l: l}
}

func (r *Reader) Read(p []byte) (int, error) {
	res, err := r.l.Read(r.ctx, p)
	r.pos += int64(res.N)
	if err != nil {
		return res.N, err
	}
	if res.End && res.N == 0 {
		return 0, io.EOF
	}
	return res.N, nil
}

// Seek implements io.Seeker in terms of Loadable.Seek, which only
// supports absolute seeks; whence values other than io.SeekStart are
// resolved against the last known position.
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	target := offset
	switch whence {
	case io.SeekCurrent:
		target = r.pos + offset
	case io.SeekEnd:
		length, err := r.l.Length(r.ctx)
		if err != nil || !length.Known {
			return r.pos, fmt.Errorf("decode: seek from end: length unknown")
		}
		target = length.Bytes + offset
	}

	seeked, err := r.l.Seek(r.ctx, target)
	if err != nil {
		return r.pos, err
	}
	r.pos = seeked
	return seeked, nil
}

func (r *Reader) Close() error {
	if c, ok := r.l.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Format names a container/codec, used to pick the right beep decoder.
type Format int

const (
	MP3 Format = iota
	WAV
	Vorbis
	FLAC
)

// FormatFromName guesses a Format from a filename or URL by extension.
// Unrecognized extensions default to MP3, matching the teacher's
// resolver's "assume mp3 unless told otherwise" fallback for generic
// streams.
func FormatFromName(name string) Format {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".wav"):
		return WAV
	case strings.HasSuffix(lower, ".ogg"):
		return Vorbis
	case strings.HasSuffix(lower, ".flac"):
		return FLAC
	default:
		return MP3
	}
}

// Open decodes r according to format, returning a seekable beep streamer
// and its native format (sample rate, channel count, precision).
func Open(format Format, r io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error) {
	switch format {
	case WAV:
		return wav.Decode(r)
	case Vorbis:
		return vorbis.Decode(r)
	case FLAC:
		return flac.Decode(r)
	default:
		return mp3.Decode(r)
	}
}

// Decoder reads fixed-size chunks of interleaved float32 PCM at the
// streamer's native sample rate and channel count (2, per beep.Format).
// Resampling to config.SampleRate/config.Channels is resample's job; this
// type only bridges beep's [2]float64 frame model to core.Sample.
type Decoder struct {
	streamer beep.StreamSeekCloser
	format   beep.Format

	frameBuf [][2]float64
}

// New wraps a decoded streamer. chunkFrames sizes the internal scratch
// buffer used by NextChunk.
func New(streamer beep.StreamSeekCloser, format beep.Format, chunkFrames int) *Decoder {
	return &Decoder{
		streamer: streamer,
		format:   format,
		frameBuf: make([][2]float64, chunkFrames),
	}
}

// SampleRate returns the source's native sample rate.
func (d *Decoder) SampleRate() int { return int(d.format.SampleRate) }

// Channels is always 2 for beep.Format; mono sources are up-mixed by the
// decoder itself.
func (d *Decoder) Channels() int { return 2 }

// Len returns the streamer's total length in frames, if known.
func (d *Decoder) Len() int { return d.streamer.Len() }

// Position returns the streamer's current frame position.
func (d *Decoder) Position() int { return d.streamer.Position() }

// Seek moves the streamer to frame position pos, returning the actually
// reached position (beep streamers seek exactly, so this is pos unless
// an error occurs).
func (d *Decoder) Seek(pos int) (int, error) {
	if err := d.streamer.Seek(pos); err != nil {
		return d.streamer.Position(), fmt.Errorf("decode: seek: %w", err)
	}
	return pos, nil
}

// NextChunk decodes up to len(d.frameBuf) frames, returning them as
// interleaved core.Sample (stereo: L,R,L,R,...) and whether the stream is
// now exhausted. An error reported by the underlying streamer ends the
// stream: whatever decoded before it is returned with end=true and the
// error. Bad packets are not skipped individually; decoding does not
// continue past a streamer error.
func (d *Decoder) NextChunk() (samples []core.Sample, end bool, err error) {
	n, ok := d.streamer.Stream(d.frameBuf)
	if n > 0 {
		samples = make([]core.Sample, 0, n*2)
		for i := 0; i < n; i++ {
			samples = append(samples,
				core.Sample(d.frameBuf[i][0]),
				core.Sample(d.frameBuf[i][1]),
			)
		}
	}

	if !ok {
		if serr := d.streamer.Err(); serr != nil {
			return samples, true, fmt.Errorf("decode: %w", serr)
		}
		return samples, true, nil
	}

	return samples, false, nil
}

// Close releases the underlying streamer (and the reader it was opened
// from).
func (d *Decoder) Close() error { return d.streamer.Close() }
