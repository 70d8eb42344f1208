// Package encode implements pipeline-facing audio encoders. The WAV
// encoder in wav.go is the only one spec.md mandates (§4.9); Encoder is
// kept as an interface so additional encoders (e.g. an ffmpeg-backed MP3
// encoder, adapted from the teacher's internal/ffmpeg.Encoder) can be
// plugged into output.Consumer without that package depending on this
// one's concrete types.
package encode

import "github.com/arung-agamani/turntable/internal/audio/core"

// Encoder turns pushed PCM samples into an outgoing byte stream. A new
// Encoder is created per Consumer; Bytes is called repeatedly as new
// samples arrive and returns nil until there is something to emit.
type Encoder interface {
	// Push queues samples for encoding.
	Push(samples []core.Sample)
	// Bytes drains and returns whatever encoded bytes are ready. It
	// returns nil (not an empty, non-nil slice) until the first call that
	// has something to emit.
	Bytes() []byte
	// ContentType is the MIME type clients should be served with.
	ContentType() string
}
