package rtp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReceiver(t *testing.T) *Receiver {
	t.Helper()
	ep, err := NewEndpoint(EndpointConfig{LocalAddr: "127.0.0.1:0"})
	require.NoError(t, err)
	t.Cleanup(func() { ep.Close() })

	r, err := NewReceiver(ReceiverConfig{
		LocalRTPAddr: "127.0.0.1:0",
		SampleRate:   48000,
		Channels:     1,
		Endpoint:     ep,
	})
	require.NoError(t, err)
	t.Cleanup(func() { r.Stop() })
	return r
}

func TestExtendedSequenceNumberWrap(t *testing.T) {
	r := newTestReceiver(t)

	seqs := []uint16{0xFFFE, 0xFFFF, 0x0000, 0x0001}
	var exts []uint64
	for _, s := range seqs {
		p := &Packet{SSRC: 1, SequenceNumber: s}
		r.assignExtendedSeq(p)
		exts = append(exts, p.ExtendedSeq)
	}

	assert.Equal(t, []uint64{0xFFFE, 0xFFFF, 0x10000, 0x10001}, exts)
}

func TestSSRCChangeResetsSourceState(t *testing.T) {
	r := newTestReceiver(t)

	r.assignExtendedSeq(&Packet{SSRC: 1, SequenceNumber: 100})
	r.assignExtendedSeq(&Packet{SSRC: 1, SequenceNumber: 101})
	assert.Equal(t, uint64(101), r.state.ext)

	p := &Packet{SSRC: 2, SequenceNumber: 5}
	r.assignExtendedSeq(p)
	assert.Equal(t, uint32(2), r.state.ssrc)
	assert.Equal(t, uint64(5), p.ExtendedSeq)
	assert.Equal(t, uint64(5), r.state.baseExt)
}

func TestLossAccountingFractionLost(t *testing.T) {
	r := newTestReceiver(t)

	// 100 expected (ext seq 0..99), one dropped in the middle (E3).
	for i := uint64(0); i < 100; i++ {
		if i == 50 {
			continue
		}
		r.mu.Lock()
		r.updateLossAccounting(&Packet{ExtendedSeq: i})
		r.mu.Unlock()
	}

	expected := r.state.intervalMaxExt - r.state.intervalFirstExt + 1
	lost := uint32(expected - r.state.intervalCount)
	fraction := calculateFractionLost(lost, uint32(expected))
	assert.Equal(t, uint8(3), fraction) // round(1/100*256) = 3
}
