package encode

import (
	"encoding/binary"
	"math"

	"github.com/arung-agamani/turntable/internal/audio/core"
)

// WAVEncoder converts pushed float32 PCM samples into a live, unbounded
// 16-bit PCM WAV byte stream, per spec.md §4.9. Because the stream has no
// known total length, it advertises 0xFFFFFFFF (the largest unsigned
// 32-bit value) for both the RIFF and data chunk sizes, matching how long-running
// broadcast encoders signal "more to come".
type WAVEncoder struct {
	sampleRate int
	channels   int

	headerSent bool
	pending    []core.Sample
}

// NewWAVEncoder creates a WAV encoder for the given sample rate/channel
// count. It implements encode.Encoder.
func NewWAVEncoder(sampleRate, channels int) *WAVEncoder {
	return &WAVEncoder{sampleRate: sampleRate, channels: channels}
}

const (
	liveStreamChunkSize = 0xFFFFFFFF
	bitsPerSample       = 16
)

func (e *WAVEncoder) ContentType() string { return "audio/wav" }

// Push queues samples for the next Bytes call.
func (e *WAVEncoder) Push(samples []core.Sample) {
	e.pending = append(e.pending, samples...)
}

// Bytes returns nil until some samples have been pushed. The first
// non-nil call prepends the 44-byte header exactly once.
func (e *WAVEncoder) Bytes() []byte {
	if len(e.pending) == 0 {
		return nil
	}

	out := make([]byte, 0, len(e.pending)*2+44)
	if !e.headerSent {
		out = append(out, e.header()...)
		e.headerSent = true
	}

	for _, s := range e.pending {
		out = binary.LittleEndian.AppendUint16(out, uint16(int16(sampleToPCM16(s))))
	}
	e.pending = e.pending[:0]

	return out
}

func sampleToPCM16(s core.Sample) int32 {
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	return int32(math.Round(float64(s) * 32767))
}

func (e *WAVEncoder) header() []byte {
	byteRate := e.sampleRate * e.channels * bitsPerSample / 8
	blockAlign := e.channels * bitsPerSample / 8

	h := make([]byte, 0, 44)
	h = append(h, 'R', 'I', 'F', 'F')
	h = binary.LittleEndian.AppendUint32(h, liveStreamChunkSize)
	h = append(h, 'W', 'A', 'V', 'E')
	h = append(h, 'f', 'm', 't', ' ')
	h = binary.LittleEndian.AppendUint32(h, 16)
	h = binary.LittleEndian.AppendUint16(h, 1) // PCM
	h = binary.LittleEndian.AppendUint16(h, uint16(e.channels))
	h = binary.LittleEndian.AppendUint32(h, uint32(e.sampleRate))
	h = binary.LittleEndian.AppendUint32(h, uint32(byteRate))
	h = binary.LittleEndian.AppendUint16(h, uint16(blockAlign))
	h = binary.LittleEndian.AppendUint16(h, bitsPerSample)
	h = append(h, 'd', 'a', 't', 'a')
	h = binary.LittleEndian.AppendUint32(h, liveStreamChunkSize)

	return h
}
