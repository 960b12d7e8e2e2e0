package rtp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pkt(ext uint64) *Packet { return &Packet{ExtendedSeq: ext} }

func TestJitterBufferOrdersOutOfOrderArrivals(t *testing.T) {
	b := NewJitterBuffer(16)
	for _, seq := range []uint64{5, 7, 6, 8} {
		kept, _ := b.Push(pkt(seq))
		require.True(t, kept)
	}

	var order []uint64
	for {
		p, ok := b.Pop()
		if !ok {
			break
		}
		order = append(order, p.ExtendedSeq)
	}
	assert.Equal(t, []uint64{5, 6, 7, 8}, order)

	late, dup, overflow := b.Stats()
	assert.Zero(t, late)
	assert.Zero(t, dup)
	assert.Zero(t, overflow)
}

func TestJitterBufferDropsLateAfterDelivery(t *testing.T) {
	b := NewJitterBuffer(16)
	b.Push(pkt(10))
	p, ok := b.Pop()
	require.True(t, ok)
	assert.Equal(t, uint64(10), p.ExtendedSeq)

	kept, reason := b.Push(pkt(9))
	assert.False(t, kept)
	assert.Equal(t, dropLate, reason)
}

func TestJitterBufferDropsDuplicates(t *testing.T) {
	b := NewJitterBuffer(16)
	kept, _ := b.Push(pkt(1))
	require.True(t, kept)

	kept, reason := b.Push(pkt(1))
	assert.False(t, kept)
	assert.Equal(t, dropDuplicate, reason)
}

func TestJitterBufferOverflowDropsOldest(t *testing.T) {
	b := NewJitterBuffer(2)
	b.Push(pkt(1))
	b.Push(pkt(2))
	kept, _ := b.Push(pkt(3))
	assert.True(t, kept)
	assert.Equal(t, 2, b.Len())

	p, ok := b.Pop()
	require.True(t, ok)
	assert.Equal(t, uint64(2), p.ExtendedSeq) // 1 was evicted

	_, _, overflow := b.Stats()
	assert.Equal(t, uint64(1), overflow)
}

func TestJitterBufferFreeList(t *testing.T) {
	b := NewJitterBuffer(4)
	p := b.Get()
	p.Payload = make([]byte, 0, 256)
	b.Release(p)

	reused := b.Get()
	assert.Same(t, p, reused) // Get hands back the released packet, not a fresh one
	assert.Equal(t, 256, cap(reused.Payload)) // Payload's backing array survives Release
	assert.Len(t, reused.Payload, 0)
}
