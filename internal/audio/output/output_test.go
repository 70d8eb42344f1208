package output

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arung-agamani/turntable/internal/audio/core"
)

type fakeEncoder struct {
	pushed []core.Sample
}

func (f *fakeEncoder) Push(samples []core.Sample) { f.pushed = append(f.pushed, samples...) }
func (f *fakeEncoder) Bytes() []byte {
	if len(f.pushed) == 0 {
		return nil
	}
	out := make([]byte, len(f.pushed))
	return out
}
func (f *fakeEncoder) ContentType() string { return "application/octet-stream" }

func TestPushWithoutRegisteredPlayerIsNoop(t *testing.T) {
	o := New(10)
	assert.NotPanics(t, func() {
		o.Push(core.PlayerId(999), []core.Sample{1, 2})
	})
}

func TestConsumePlayerPreloadsFromPreloadCache(t *testing.T) {
	o := New(4) // 4-sample preload cache
	playerId := core.NewPlayerId()
	o.RegisterPlayer(playerId)

	o.Push(playerId, []core.Sample{1, 2, 3, 4, 5, 6})

	enc := &fakeEncoder{}
	c, ok := o.ConsumePlayer(playerId, enc, 0)
	require.True(t, ok)
	defer c.Close()

	// The encoder should already have received the last 4 samples pushed
	// before this consumer attached.
	assert.Equal(t, []core.Sample{3, 4, 5, 6}, enc.pushed)
}

func TestPushFansOutToAllAttachedConsumers(t *testing.T) {
	o := New(0)
	playerId := core.NewPlayerId()
	o.RegisterPlayer(playerId)

	enc1 := &fakeEncoder{}
	enc2 := &fakeEncoder{}
	c1, _ := o.ConsumePlayer(playerId, enc1, 0)
	c2, _ := o.ConsumePlayer(playerId, enc2, 0)
	defer c1.Close()
	defer c2.Close()

	o.Push(playerId, []core.Sample{7, 8})

	c1.Read()
	c2.Read()

	assert.Equal(t, []core.Sample{7, 8}, enc1.pushed)
	assert.Equal(t, []core.Sample{7, 8}, enc2.pushed)
}

func TestCloseDetachesConsumerFromFutureFanOut(t *testing.T) {
	o := New(0)
	playerId := core.NewPlayerId()
	o.RegisterPlayer(playerId)

	s, _ := o.Stream(playerId)
	require.Equal(t, 0, s.ProducerCount())

	enc := &fakeEncoder{}
	c, _ := o.ConsumePlayer(playerId, enc, 0)
	assert.Equal(t, 1, s.ProducerCount())

	c.Close()
	assert.Equal(t, 0, s.ProducerCount())

	o.Push(playerId, []core.Sample{1})
	assert.Empty(t, enc.pushed)
}

func TestConsumePlayerUnregisteredPlayerFails(t *testing.T) {
	o := New(0)
	_, ok := o.ConsumePlayer(core.NewPlayerId(), &fakeEncoder{}, 0)
	assert.False(t, ok)
}
