package rtp

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

const (
	rtcpPT_SR = 200
	rtcpPT_RR = 201

	srLengthWords = 6 // words following the first word
	rrLengthWords = 7

	srWireSize = 28
	rrWireSize = 32

	// ntpUnixEpochOffset is the number of seconds between the NTP epoch
	// (1900-01-01) and the Unix epoch (1970-01-01).
	ntpUnixEpochOffset = 2208988800
)

// SenderReport is the RTCP SR block described in §4.2/§6: one report per
// datagram, no reception-report blocks (this system never mixes RTP
// streams, so a sender has nothing to report on besides itself).
type SenderReport struct {
	SSRC         uint32
	NTPSeconds   uint32
	NTPFraction  uint32
	RTPTimestamp uint32
	PacketsSent  uint32
	OctetsSent   uint32
}

// ReceiverReport is the RTCP RR block described in §4.2/§6: exactly one
// reception-report block (RC=1).
type ReceiverReport struct {
	ReporterSSRC       uint32
	ReporteeSSRC       uint32
	FractionLost       uint8
	CumulativeLost     int32 // stored as a 24-bit two's-complement value on the wire
	ExtendedHighestSeq uint32
	Jitter             uint32
	LSR                uint32
	DLSR               uint32
}

// MarshalSenderReport writes sr's wire bytes: header 0x80, PT=200,
// length=6, then the six SR fields, 28 bytes total.
func MarshalSenderReport(sr SenderReport) []byte {
	buf := make([]byte, srWireSize)
	buf[0] = 0x80
	buf[1] = rtcpPT_SR
	binary.BigEndian.PutUint16(buf[2:], srLengthWords)
	binary.BigEndian.PutUint32(buf[4:], sr.SSRC)
	binary.BigEndian.PutUint32(buf[8:], sr.NTPSeconds)
	binary.BigEndian.PutUint32(buf[12:], sr.NTPFraction)
	binary.BigEndian.PutUint32(buf[16:], sr.RTPTimestamp)
	binary.BigEndian.PutUint32(buf[20:], sr.PacketsSent)
	binary.BigEndian.PutUint32(buf[24:], sr.OctetsSent)
	return buf
}

// UnmarshalSenderReport parses an SR datagram. Per §9's Open Question 1,
// SR parsing is conservative: a length field other than 6 aborts parsing
// of the whole datagram with ErrBadRTCPLength rather than tolerating
// trailing bytes (unlike RR, see UnmarshalReceiverReport).
func UnmarshalSenderReport(data []byte) (SenderReport, error) {
	if len(data) < srWireSize {
		return SenderReport{}, fmt.Errorf("unmarshal SR: %d bytes: %w", len(data), ErrTooShort)
	}
	if data[1] != rtcpPT_SR {
		return SenderReport{}, fmt.Errorf("unmarshal SR: packet type %d: %w", data[1], ErrBadRTCPLength)
	}
	if length := binary.BigEndian.Uint16(data[2:]); length != srLengthWords {
		return SenderReport{}, fmt.Errorf("unmarshal SR: length word %d: %w", length, ErrBadRTCPLength)
	}

	return SenderReport{
		SSRC:         binary.BigEndian.Uint32(data[4:]),
		NTPSeconds:   binary.BigEndian.Uint32(data[8:]),
		NTPFraction:  binary.BigEndian.Uint32(data[12:]),
		RTPTimestamp: binary.BigEndian.Uint32(data[16:]),
		PacketsSent:  binary.BigEndian.Uint32(data[20:]),
		OctetsSent:   binary.BigEndian.Uint32(data[24:]),
	}, nil
}

// MarshalReceiverReport writes rr's wire bytes: header 0x81, PT=201,
// length=7, then the RR fields, 32 bytes total. CumulativeLost is packed
// as the low 24 bits of its two's-complement representation.
func MarshalReceiverReport(rr ReceiverReport) []byte {
	buf := make([]byte, rrWireSize)
	buf[0] = 0x81 // V=2, P=0, RC=1
	buf[1] = rtcpPT_RR
	binary.BigEndian.PutUint16(buf[2:], rrLengthWords)
	binary.BigEndian.PutUint32(buf[4:], rr.ReporterSSRC)
	binary.BigEndian.PutUint32(buf[8:], rr.ReporteeSSRC)
	buf[12] = rr.FractionLost
	lost := uint32(rr.CumulativeLost) & 0x00ffffff
	buf[13] = byte(lost >> 16)
	buf[14] = byte(lost >> 8)
	buf[15] = byte(lost)
	binary.BigEndian.PutUint32(buf[16:], rr.ExtendedHighestSeq)
	binary.BigEndian.PutUint32(buf[20:], rr.Jitter)
	binary.BigEndian.PutUint32(buf[24:], rr.LSR)
	binary.BigEndian.PutUint32(buf[28:], rr.DLSR)
	return buf
}

// UnmarshalReceiverReport parses an RR datagram. Per §9's Open Question 1,
// trailing bytes beyond the declared length are tolerated rather than
// rejected (the source's behavior), but a length field other than 7 is
// still an error.
func UnmarshalReceiverReport(data []byte) (ReceiverReport, error) {
	if len(data) < rrWireSize {
		return ReceiverReport{}, fmt.Errorf("unmarshal RR: %d bytes: %w", len(data), ErrTooShort)
	}
	if data[1] != rtcpPT_RR {
		return ReceiverReport{}, fmt.Errorf("unmarshal RR: packet type %d: %w", data[1], ErrBadRTCPLength)
	}
	if length := binary.BigEndian.Uint16(data[2:]); length != rrLengthWords {
		return ReceiverReport{}, fmt.Errorf("unmarshal RR: length word %d: %w", length, ErrBadRTCPLength)
	}

	lost := uint32(data[13])<<16 | uint32(data[14])<<8 | uint32(data[15])
	if lost&0x800000 != 0 {
		lost |= 0xff000000 // sign-extend the 24-bit two's-complement value
	}

	return ReceiverReport{
		ReporterSSRC:       binary.BigEndian.Uint32(data[4:]),
		ReporteeSSRC:       binary.BigEndian.Uint32(data[8:]),
		FractionLost:       data[12],
		CumulativeLost:     int32(lost),
		ExtendedHighestSeq: binary.BigEndian.Uint32(data[16:]),
		Jitter:             binary.BigEndian.Uint32(data[20:]),
		LSR:                binary.BigEndian.Uint32(data[24:]),
		DLSR:               binary.BigEndian.Uint32(data[28:]),
	}, nil
}

// PacketType returns the RTCP packet type byte (200 or 201) without fully
// decoding the body, for dispatch in the endpoint's receive loop.
func PacketType(data []byte) (byte, error) {
	if len(data) < 2 {
		return 0, fmt.Errorf("rtcp packet type: %w", ErrTooShort)
	}
	return data[1], nil
}

// ntpFromTime converts t to an NTP (seconds, fraction) pair: seconds since
// 1900-01-01, and the fractional second as a 32-bit fixed-point value
// (fraction * 2^32).
func ntpFromTime(t time.Time) (secs, frac uint32) {
	unixSecs := t.Unix()
	nanos := t.Nanosecond()
	secs = uint32(unixSecs + ntpUnixEpochOffset)
	frac = uint32(float64(nanos) / 1e9 * (1 << 32))
	return secs, frac
}

// ntpMiddle32 extracts the "middle 32 bits" of an NTP timestamp used as an
// SR's LSR field: the low 16 bits of the seconds part concatenated with
// the high 16 bits of the fraction part.
func ntpMiddle32(secs, frac uint32) uint32 {
	return (secs&0xffff)<<16 | (frac >> 16)
}

// dlsrFromDuration converts a wall-clock delay into an RTCP DLSR value:
// units of 1/65536 second.
func dlsrFromDuration(d time.Duration) uint32 {
	return uint32(d.Seconds() * 65536)
}

// calculateJitter applies RFC 3550 Appendix A.8's smoothing: the new
// jitter estimate given the previous estimate and the latest transit-time
// difference d (both in RTP-clock units).
func calculateJitter(prevJitter float64, d float64) float64 {
	return prevJitter + (math.Abs(d)-prevJitter)/16.0
}

// calculateFractionLost returns round(lost/expected * 256) clamped to
// [0, 255], or 0 when expected is 0.
func calculateFractionLost(lost, expected uint32) uint8 {
	if expected == 0 {
		return 0
	}
	f := math.Round(float64(lost) / float64(expected) * 256)
	if f < 0 {
		return 0
	}
	if f > 255 {
		return 255
	}
	return uint8(f)
}
