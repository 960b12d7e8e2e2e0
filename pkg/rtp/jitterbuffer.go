package rtp

import (
	"container/heap"
	"sync"
)

// dropReason labels why JitterBuffer.Push refused a packet, for metrics.
type dropReason string

const (
	dropLate      dropReason = "late"
	dropDuplicate dropReason = "duplicate"
	dropOverflow  dropReason = "overflow"
)

// packetHeap is a container/heap min-heap ordered by extended sequence
// number, the bounded priority-ordered queue §9 calls for in place of the
// source's intrusive m_next packet linkage.
type packetHeap []*Packet

func (h packetHeap) Len() int            { return len(h) }
func (h packetHeap) Less(i, j int) bool  { return h[i].ExtendedSeq < h[j].ExtendedSeq }
func (h packetHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *packetHeap) Push(x interface{}) { *h = append(*h, x.(*Packet)) }
func (h *packetHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// JitterBuffer is the bounded, ordered packet queue described in §4.5: it
// holds inbound packets keyed by extended sequence number and hands them
// back out in that order, dropping late arrivals, duplicates, and (on
// overflow) the oldest undelivered packet. Every method takes the buffer's
// mutex, so the receiver's receive loop can Push while a consumer
// goroutine Pops.
type JitterBuffer struct {
	mu       sync.Mutex
	queue    packetHeap
	enqueued map[uint64]struct{}
	maxSize  int

	hasDelivered    bool
	deliveredCursor uint64

	freeList []*Packet

	late      uint64
	duplicate uint64
	overflow  uint64
}

// NewJitterBuffer constructs an empty buffer bounded to maxSize packets.
func NewJitterBuffer(maxSize int) *JitterBuffer {
	return &JitterBuffer{
		queue:    make(packetHeap, 0, maxSize),
		enqueued: make(map[uint64]struct{}, maxSize),
		maxSize:  maxSize,
	}
}

// Push enqueues p. It returns false, with the reason, if p was dropped
// instead (late or duplicate). On overflow it drops the oldest queued
// packet rather than refusing the new one, so p is kept and Push returns
// true; the eviction is counted in Stats' overflow count.
func (b *JitterBuffer) Push(p *Packet) (kept bool, reason dropReason) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.hasDelivered && p.ExtendedSeq <= b.deliveredCursor {
		b.late++
		return false, dropLate
	}
	if _, dup := b.enqueued[p.ExtendedSeq]; dup {
		b.duplicate++
		return false, dropDuplicate
	}

	if len(b.queue) >= b.maxSize {
		oldest := heap.Pop(&b.queue).(*Packet)
		delete(b.enqueued, oldest.ExtendedSeq)
		b.overflow++
		oldest.Payload = oldest.Payload[:0]
		if len(b.freeList) < b.maxSize {
			b.freeList = append(b.freeList, oldest)
		}
	}

	heap.Push(&b.queue, p)
	b.enqueued[p.ExtendedSeq] = struct{}{}
	return true, ""
}

// Pop removes and returns the lowest extended-sequence packet currently
// queued, or (nil, false) if the buffer is empty.
func (b *JitterBuffer) Pop() (*Packet, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.queue) == 0 {
		return nil, false
	}
	p := heap.Pop(&b.queue).(*Packet)
	delete(b.enqueued, p.ExtendedSeq)
	b.hasDelivered = true
	b.deliveredCursor = p.ExtendedSeq
	return p, true
}

// Len returns the number of packets currently queued.
func (b *JitterBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Stats returns the cumulative late/duplicate/overflow drop counts.
func (b *JitterBuffer) Stats() (late, duplicate, overflow uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.late, b.duplicate, b.overflow
}

// Get returns a *Packet from the free list, or a freshly allocated one if
// the list is empty. Receive-path decode uses this instead of allocating
// directly so steady-state operation reuses packet objects.
func (b *JitterBuffer) Get() *Packet {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.freeList)
	if n == 0 {
		return &Packet{}
	}
	p := b.freeList[n-1]
	b.freeList = b.freeList[:n-1]
	return p
}

// Release returns p to the free list after the consumer has finished with
// it, per §4.5's "returned to a free list" ownership rule. p.Payload's
// backing array is kept (truncated to zero length) rather than discarded,
// so the next decodeInto into this packet can reuse it instead of
// allocating.
func (b *JitterBuffer) Release(p *Packet) {
	p.Payload = p.Payload[:0]
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.freeList) < b.maxSize {
		b.freeList = append(b.freeList, p)
	}
}
