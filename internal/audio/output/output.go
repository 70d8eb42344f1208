// Package output implements the fan-out of a player's tick output to many
// encoder-backed consumers (spec.md §4.6): Output owns one Stream per
// player; a Stream keeps a small preload cache of recently-played samples
// so a newly attached Consumer can start producing bytes immediately, and
// pushes every tick to all attached producers.
package output

import (
	"sync"

	"github.com/arung-agamani/turntable/internal/audio/core"
	"github.com/arung-agamani/turntable/internal/audio/encode"
)

// producer is the push side of a Consumer: Stream.Push delivers samples
// to it; Consumer.Read drains it through its encoder.
type producer struct {
	mu      sync.Mutex
	samples []core.Sample
}

func (p *producer) push(samples []core.Sample) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.samples = append(p.samples, samples...)
}

func (p *producer) drain() []core.Sample {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.samples) == 0 {
		return nil
	}
	out := p.samples
	p.samples = nil
	return out
}

// Stream is the per-player fan-out point: a ring of recently-played
// samples (the preload cache) plus the set of currently-attached
// producers.
type Stream struct {
	mu            sync.Mutex
	preloadCache  []core.Sample
	latencySamples int
	producers     map[core.ConsumerId]*producer
}

func newStream(latencySamples int) *Stream {
	return &Stream{
		latencySamples: latencySamples,
		producers:      make(map[core.ConsumerId]*producer),
	}
}

// push delivers one tick's worth of samples: it's appended (and trimmed)
// into the preload cache and fanned out to every attached producer, all
// under the same lock so the two stay consistent with each other.
func (s *Stream) push(samples []core.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.preloadCache = append(s.preloadCache, samples...)
	if over := len(s.preloadCache) - s.latencySamples; over > 0 {
		s.preloadCache = s.preloadCache[over:]
	}

	for _, p := range s.producers {
		p.push(samples)
	}
}

// attach registers a new producer, preloading it with the current preload
// cache so its first read returns data immediately, and returns it.
func (s *Stream) attach(id core.ConsumerId, latencyOverrideSamples int) *producer {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := &producer{}

	preload := s.preloadCache
	if latencyOverrideSamples > 0 && latencyOverrideSamples < len(preload) {
		preload = preload[len(preload)-latencyOverrideSamples:]
	}
	p.samples = append(p.samples, preload...)

	s.producers[id] = p
	return p
}

func (s *Stream) detach(id core.ConsumerId) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.producers, id)
}

// ProducerCount returns the number of attached consumers, for monitoring.
func (s *Stream) ProducerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.producers)
}

// Output owns one Stream per registered player.
type Output struct {
	mu      sync.RWMutex
	streams map[core.PlayerId]*Stream

	defaultLatencySamples int
}

// New creates an Output whose streams default to latencySamples of
// preload cache.
func New(latencySamples int) *Output {
	return &Output{
		streams:               make(map[core.PlayerId]*Stream),
		defaultLatencySamples: latencySamples,
	}
}

// RegisterPlayer creates a new Stream for player, replacing none — calling
// it twice for the same player is a caller error and overwrites the prior
// stream (disconnecting any existing consumers), matching the spec's
// "owns only an id; back-references ... obtained at call sites" registry
// model: Output doesn't track player lifecycles itself.
func (o *Output) RegisterPlayer(player core.PlayerId) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.streams[player] = newStream(o.defaultLatencySamples)
}

// Push delivers a tick's output to player's stream. It is a no-op (and
// safe to call) if the player was never registered.
func (o *Output) Push(player core.PlayerId, samples []core.Sample) {
	o.mu.RLock()
	s, ok := o.streams[player]
	o.mu.RUnlock()
	if !ok {
		return
	}
	s.push(samples)
}

// Stream returns the stream registered for player, if any.
func (o *Output) Stream(player core.PlayerId) (*Stream, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	s, ok := o.streams[player]
	return s, ok
}

// Consumer is a per-listener encoded byte producer attached to a player's
// output stream. Dropping it (calling Close) removes it from the stream's
// producer map.
type Consumer struct {
	id       core.ConsumerId
	stream   *Stream
	encoder  encode.Encoder
	produced *producer
}

// ConsumePlayer constructs a Consumer for player using encoder enc,
// immediately preloading it from the stream's preload cache so the first
// Read returns data without waiting for a new tick. latencyOverrideSamples
// of 0 means "use the stream's full preload cache".
func (o *Output) ConsumePlayer(player core.PlayerId, enc encode.Encoder, latencyOverrideSamples int) (*Consumer, bool) {
	s, ok := o.Stream(player)
	if !ok {
		return nil, false
	}

	id := core.NewConsumerId()
	prod := s.attach(id, latencyOverrideSamples)

	c := &Consumer{id: id, stream: s, encoder: enc, produced: prod}
	c.encoder.Push(prod.drain())

	return c, true
}

// Read returns encoded bytes. The first call (once any samples have been
// produced) prepends the encoder's header; later calls drain whatever has
// been produced since.
func (c *Consumer) Read() []byte {
	c.encoder.Push(c.produced.drain())
	return c.encoder.Bytes()
}

// ContentType exposes the underlying encoder's MIME type.
func (c *Consumer) ContentType() string { return c.encoder.ContentType() }

// Close detaches the consumer from its stream. Safe to call multiple
// times.
func (c *Consumer) Close() {
	c.stream.detach(c.id)
}
