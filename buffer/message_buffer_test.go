package buffer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/graphite-tools/graphite-proxy/buffer"
	"github.com/graphite-tools/graphite-proxy/message"
)

func msg(name string, value float64, ts uint64) message.Message {
	return message.New(name, value, ts, 0)
}

func TestAddThenTakeAllPreservesOrder(t *testing.T) {
	b := buffer.New("t.1", 10, false)
	b.Add(msg("t.1", 1, 10))
	b.Add(msg("t.1", 2, 20))
	b.Add(msg("t.1", 3, 30))

	out := b.TakeAll()
	assert.Len(t, out, 3)
	assert.Equal(t, uint64(10), out[0].Timestamp())
	assert.Equal(t, uint64(20), out[1].Timestamp())
	assert.Equal(t, uint64(30), out[2].Timestamp())
	assert.True(t, b.Empty())
}

func TestOverflowDropNew(t *testing.T) {
	b := buffer.New("t.3", 3, false)
	assert.True(t, b.Add(msg("t.3", 10, 40)))
	assert.True(t, b.Add(msg("t.3", 40, 60)))
	assert.True(t, b.Add(msg("t.3", 50, 70)))
	assert.False(t, b.Add(msg("t.3", 99, 80)))

	out := b.TakeAll()
	assert.Len(t, out, 3)
	assert.Equal(t, uint64(40), out[0].Timestamp())
	assert.Equal(t, uint64(60), out[1].Timestamp())
	assert.Equal(t, uint64(70), out[2].Timestamp())
	assert.Equal(t, uint64(3), b.Capacity())
}

func TestOverflowDropOldest(t *testing.T) {
	b := buffer.New("t.3", 3, true)
	assert.True(t, b.Add(msg("t.3", 10, 40)))
	assert.True(t, b.Add(msg("t.3", 40, 60)))
	assert.True(t, b.Add(msg("t.3", 50, 70)))
	assert.True(t, b.Add(msg("t.3", 99, 80)))

	out := b.TakeAll()
	assert.Len(t, out, 3)
	assert.Equal(t, uint64(60), out[0].Timestamp())
	assert.Equal(t, uint64(70), out[1].Timestamp())
	assert.Equal(t, uint64(80), out[2].Timestamp())
}

func TestHighWaterMarkMonotonic(t *testing.T) {
	b := buffer.New("t", 5, true)
	b.Add(msg("t", 1, 1))
	b.Add(msg("t", 1, 2))
	b.Add(msg("t", 1, 3))
	assert.Equal(t, uint64(3), b.HighWaterMark())

	b.TakeAll()
	b.Add(msg("t", 1, 4))
	assert.Equal(t, uint64(3), b.HighWaterMark(), "hwm should not decrease after drain")
}

func TestTakeOlderThan(t *testing.T) {
	b := buffer.New("t", 10, false)
	for _, ts := range []uint64{50, 10, 30, 20, 40} {
		b.Add(msg("t", 1, ts))
	}

	older := b.TakeOlderThan(20)
	assert.Len(t, older, 2)
	gotTs := []uint64{older[0].Timestamp(), older[1].Timestamp()}
	assert.ElementsMatch(t, []uint64{10, 20}, gotTs)

	remaining := b.TakeAll()
	assert.Len(t, remaining, 3)
	assert.Equal(t, uint64(50), remaining[0].Timestamp())
	assert.Equal(t, uint64(30), remaining[1].Timestamp())
	assert.Equal(t, uint64(40), remaining[2].Timestamp())
}

func TestTakeOlderThanEmptyBuffer(t *testing.T) {
	b := buffer.New("t", 10, false)
	assert.Nil(t, b.TakeOlderThan(100))
}

func TestTakeOlderThanAllOlder(t *testing.T) {
	b := buffer.New("t", 10, false)
	b.Add(msg("t", 1, 1))
	b.Add(msg("t", 1, 2))

	out := b.TakeOlderThan(100)
	assert.Len(t, out, 2)
	assert.True(t, b.Empty())
}

func TestTakeWithLimit(t *testing.T) {
	b := buffer.New("t", 10, false)
	b.Add(msg("t", 1, 1))
	b.Add(msg("t", 1, 2))
	b.Add(msg("t", 1, 3))

	out := b.Take(2)
	assert.Len(t, out, 2)
	assert.Equal(t, uint64(1), b.Size())
}

func TestCapacityClamp(t *testing.T) {
	b := buffer.New("t", 1<<40, true)
	assert.LessOrEqual(t, b.Capacity(), uint64(1<<24))
}
