package rtp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSenderReportRoundTrip(t *testing.T) {
	sr := SenderReport{
		SSRC:         0x11223344,
		NTPSeconds:   123456,
		NTPFraction:  654321,
		RTPTimestamp: 999,
		PacketsSent:  10,
		OctetsSent:   2000,
	}
	data := MarshalSenderReport(sr)
	assert.Len(t, data, srWireSize)
	assert.Equal(t, byte(0x80), data[0])
	assert.Equal(t, byte(rtcpPT_SR), data[1])

	got, err := UnmarshalSenderReport(data)
	require.NoError(t, err)
	assert.Equal(t, sr, got)
}

func TestSenderReportBadLength(t *testing.T) {
	sr := MarshalSenderReport(SenderReport{})
	sr[2], sr[3] = 0, 5 // corrupt the length word
	_, err := UnmarshalSenderReport(sr)
	assert.ErrorIs(t, err, ErrBadRTCPLength)
}

func TestReceiverReportRoundTripWithNegativeCumulativeLoss(t *testing.T) {
	rr := ReceiverReport{
		ReporterSSRC:       1,
		ReporteeSSRC:       2,
		FractionLost:       26,
		CumulativeLost:     -5,
		ExtendedHighestSeq: 1000,
		Jitter:             42,
		LSR:                0xAABBCCDD,
		DLSR:               98304,
	}
	data := MarshalReceiverReport(rr)
	assert.Len(t, data, rrWireSize)
	assert.Equal(t, byte(0x81), data[0])

	got, err := UnmarshalReceiverReport(data)
	require.NoError(t, err)
	assert.Equal(t, rr, got)
}

func TestReceiverReportToleratesTrailingBytes(t *testing.T) {
	data := append(MarshalReceiverReport(ReceiverReport{}), 0xFF, 0xFF)
	_, err := UnmarshalReceiverReport(data)
	assert.NoError(t, err)
}

func TestFractionLost(t *testing.T) {
	assert.Equal(t, uint8(26), calculateFractionLost(10, 100))
	assert.Equal(t, uint8(3), calculateFractionLost(1, 100))
	assert.Equal(t, uint8(0), calculateFractionLost(0, 0))
	assert.Equal(t, uint8(255), calculateFractionLost(1000, 100))
}

func TestDLSRUnits(t *testing.T) {
	assert.Equal(t, uint32(98304), dlsrFromDuration(1500*time.Millisecond))
}

func TestJitterEstimatorConverges(t *testing.T) {
	jitter := 0.0
	const d = 40.0
	for i := 0; i < 500; i++ {
		jitter = calculateJitter(jitter, d)
	}
	assert.InDelta(t, d, jitter, 0.01)
}

func TestNTPMiddle32(t *testing.T) {
	secs, frac := uint32(0x0001ABCD), uint32(0x1234FFFF)
	mid := ntpMiddle32(secs, frac)
	assert.Equal(t, uint32(0xABCD1234), mid)
}
