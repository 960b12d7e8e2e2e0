package rtp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpointSendReceiveSenderReport(t *testing.T) {
	received := make(chan SenderReport, 1)

	a, err := NewEndpoint(EndpointConfig{LocalAddr: "127.0.0.1:0"})
	require.NoError(t, err)
	defer a.Close()

	b, err := NewEndpoint(EndpointConfig{LocalAddr: "127.0.0.1:0"})
	require.NoError(t, err)
	defer b.Close()

	b.SetHandlers(func(_ uint32, sr SenderReport) { received <- sr }, nil)

	require.NoError(t, a.SetRemoteAddr(b.LocalAddr().String()))
	require.NoError(t, a.Start())
	require.NoError(t, b.Start())

	sent := SenderReport{SSRC: 7, NTPSeconds: 1, NTPFraction: 2, RTPTimestamp: 3, PacketsSent: 4, OctetsSent: 5}
	require.NoError(t, a.SendSenderReport(sent))

	select {
	case got := <-received:
		assert.Equal(t, sent, got)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for SR")
	}
}

func TestEndpointStartTwiceFails(t *testing.T) {
	e, err := NewEndpoint(EndpointConfig{LocalAddr: "127.0.0.1:0"})
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.Start())
	assert.Error(t, e.Start())
}

func TestEndpointSendAfterCloseFails(t *testing.T) {
	e, err := NewEndpoint(EndpointConfig{LocalAddr: "127.0.0.1:0", RemoteAddr: "127.0.0.1:1"})
	require.NoError(t, err)
	require.NoError(t, e.Start())
	require.NoError(t, e.Close())

	err = e.SendSenderReport(SenderReport{})
	assert.ErrorIs(t, err, ErrClosed)
}
