package rtp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type loopbackFlow struct {
	senderEndpoint   *Endpoint
	receiverEndpoint *Endpoint
	sender           *Sender
	receiver         *Receiver
}

func newLoopbackFlow(t *testing.T, rtcpIntervalMs uint32) *loopbackFlow {
	t.Helper()

	recvEP, err := NewEndpoint(EndpointConfig{LocalAddr: "127.0.0.1:0"})
	require.NoError(t, err)

	sendEP, err := NewEndpoint(EndpointConfig{LocalAddr: "127.0.0.1:0"})
	require.NoError(t, err)

	require.NoError(t, sendEP.SetRemoteAddr(recvEP.LocalAddr().String()))
	require.NoError(t, recvEP.SetRemoteAddr(sendEP.LocalAddr().String()))

	recv, err := NewReceiver(ReceiverConfig{
		LocalRTPAddr: "127.0.0.1:0",
		SampleRate:   48000,
		Channels:     2,
		Endpoint:     recvEP,
		RRIntervalMs: rtcpIntervalMs,
	})
	require.NoError(t, err)

	send, err := NewSender(SenderConfig{
		LocalRTPAddr:     "127.0.0.1:0",
		RemoteRTPAddr:    recv.LocalAddr().String(),
		PayloadType:      PayloadPCM16,
		SampleRate:       48000,
		Endpoint:         sendEP,
		ReportIntervalMs: rtcpIntervalMs,
	})
	require.NoError(t, err)

	require.NoError(t, sendEP.Start())
	require.NoError(t, recvEP.Start())
	require.NoError(t, recv.Start())

	f := &loopbackFlow{senderEndpoint: sendEP, receiverEndpoint: recvEP, sender: send, receiver: recv}
	t.Cleanup(func() {
		send.Close()
		recv.Stop()
		sendEP.Close()
		recvEP.Close()
	})
	return f
}

// TestE1LoopbackInOrderDelivery sends 100 packets and checks the receiver
// delivers all of them in order.
func TestE1LoopbackInOrderDelivery(t *testing.T) {
	f := newLoopbackFlow(t, 60_000) // long enough that no SR/RR fires mid-test
	planes := [][]float32{make([]float32, 256), make([]float32, 256)}
	for i := range planes[0] {
		planes[0][i] = 0.1
		planes[1][i] = -0.1
	}

	for i := 0; i < 100; i++ {
		planes[0][0] = float32(i) / 128 // tag each packet with its send index
		require.NoError(t, f.sender.SendAudio(planes, 256))
	}

	out := [][]float32{make([]float32, 256), make([]float32, 256)}
	delivered := 0
	deadline := time.Now().Add(2 * time.Second)
	for delivered < 100 && time.Now().Before(deadline) {
		ok, err := f.receiver.Pull(out, 256)
		require.NoError(t, err)
		if ok {
			assert.InDelta(t, float64(delivered)/128, float64(out[0][0]), 1.0/32768)
			delivered++
		} else {
			time.Sleep(time.Millisecond)
		}
	}
	assert.Equal(t, 100, delivered)

	count, _, _ := f.receiver.Stats()
	assert.Equal(t, uint64(100), count)
}

// TestE2DuplicateSeqCountsOneDropNoLoss replays one sequence number twice
// via the sender's debug hook and checks the receiver keeps exactly one
// delivery and counts a duplicate drop, with no loss recorded.
func TestE2DuplicateSeqCountsOneDropNoLoss(t *testing.T) {
	f := newLoopbackFlow(t, 60_000)
	planes := [][]float32{make([]float32, 256), make([]float32, 256)}

	require.NoError(t, f.sender.SendAudio(planes, 256))
	f.sender.ForceSequenceNum(uint16(f.sender.sequenceNumber - 1)) // resend the same seq
	require.NoError(t, f.sender.SendAudio(planes, 256))

	time.Sleep(100 * time.Millisecond)

	late, dup, overflow := f.receiver.buffer.Stats()
	assert.Equal(t, uint64(1), dup)
	assert.Zero(t, late)
	assert.Zero(t, overflow)
	assert.Equal(t, 1, f.receiver.buffer.Len())

	f.receiver.mu.Lock()
	expected := f.receiver.state.intervalMaxExt - f.receiver.state.intervalFirstExt + 1
	received := f.receiver.state.intervalCount
	f.receiver.mu.Unlock()
	assert.LessOrEqual(t, expected, received) // no sequence gap, so no loss
}

// TestE4SRThenRRCarriesLSRAndDLSR sends one SR and checks the receiver
// records it, with the non-zero NTP middle-32 bits that its next RR
// carries as LSR (and measures DLSR from).
func TestE4SRThenRRCarriesLSRAndDLSR(t *testing.T) {
	f := newLoopbackFlow(t, 60_000)
	f.sender.ForceTimestamp(0)
	f.sender.nextReportTick = 0 // force the very first send to emit an SR

	planes := [][]float32{make([]float32, 256), make([]float32, 256)}
	require.NoError(t, f.sender.SendAudio(planes, 256))

	hasSR := func() bool {
		f.receiver.mu.Lock()
		defer f.receiver.mu.Unlock()
		return f.receiver.state.hasSR
	}

	deadline := time.Now().Add(time.Second)
	for !hasSR() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	f.receiver.mu.Lock()
	defer f.receiver.mu.Unlock()
	require.True(t, f.receiver.state.hasSR)
	assert.NotZero(t, f.receiver.state.lastSRMiddle32)
}
