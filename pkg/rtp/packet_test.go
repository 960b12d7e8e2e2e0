package rtp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeWireLayout(t *testing.T) {
	planes := [][]float32{{0}}
	data, err := encode(0x01020304, 0x1234, PayloadPCM16, 0xDEADBEEF, planes, 1)
	require.NoError(t, err)

	want := []byte{0x80, 0x60, 0x12, 0x34, 0x01, 0x02, 0x03, 0x04, 0xDE, 0xAD, 0xBE, 0xEF, 0x00, 0x00}
	assert.Equal(t, want, data)
}

func TestDecodeRejectsNonStrictHeader(t *testing.T) {
	data, err := encode(1, 1, PayloadPCM16, 1, [][]float32{{0}}, 1)
	require.NoError(t, err)

	data[0] = 0xA0 // padding bit set
	_, err = decode(data, 0)
	assert.ErrorIs(t, err, ErrBadVersion)
}

func TestDecodeRejectsTooShort(t *testing.T) {
	_, err := decode(make([]byte, headerSize), 0)
	assert.ErrorIs(t, err, ErrTooShort)
}

func TestDecodeRejectsInvalidPayloadType(t *testing.T) {
	data, err := encode(1, 1, PayloadPCM16, 1, [][]float32{{0}}, 1)
	require.NoError(t, err)

	data[1] = 99 // not 96/97/98
	_, err = decode(data, 0)
	assert.ErrorIs(t, err, ErrInvalidPayloadType)
}

func TestEncodeRejectsInvalidPayloadType(t *testing.T) {
	_, err := encode(0, 0, PayloadType(5), 0, [][]float32{{0}}, 1)
	assert.ErrorIs(t, err, ErrInvalidPayloadType)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	planes := [][]float32{{0.5, -0.5}, {0.25, -0.25}}
	data, err := encode(1000, 7, PayloadPCM16, 42, planes, 2)
	require.NoError(t, err)

	packet, err := decode(data, 123)
	require.NoError(t, err)
	assert.Equal(t, uint16(7), packet.SequenceNumber)
	assert.Equal(t, uint32(1000), packet.Timestamp)
	assert.Equal(t, uint32(42), packet.SSRC)
	assert.Equal(t, PayloadPCM16, packet.PayloadType)
	assert.Equal(t, uint32(123), packet.ArrivalTime)

	out := [][]float32{make([]float32, 2), make([]float32, 2)}
	require.NoError(t, packet.DecodeInto(out, 2))
	assert.InDelta(t, 0.5, float64(out[0][0]), 1.0/32768)
	assert.InDelta(t, 0.25, float64(out[1][0]), 1.0/32768)
}
