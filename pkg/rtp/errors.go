package rtp

import "errors"

// Sentinel errors for the RTP/RTCP codec and transport layers. Callers use
// errors.Is against these; call sites wrap them with fmt.Errorf("...: %w")
// to add packet-specific context.
var (
	// ErrTooShort is returned when a buffer is too small to hold a valid
	// RTP or RTCP packet of its declared kind.
	ErrTooShort = errors.New("rtp: packet too short")

	// ErrBadVersion is returned when the first octet of an RTP packet is
	// not exactly 0x80 (version 2, no padding, no extension, CC=0).
	ErrBadVersion = errors.New("rtp: unsupported version or header flags")

	// ErrInvalidPayloadType is returned when the payload type field does
	// not identify one of the three supported audio codings.
	ErrInvalidPayloadType = errors.New("rtp: invalid payload type")

	// ErrPayloadSizeMismatch is returned when an encoded payload's length
	// is not an exact multiple of the coding's per-sample size, or when a
	// caller-supplied buffer does not match the expected sample count.
	ErrPayloadSizeMismatch = errors.New("rtp: payload size mismatch")

	// ErrBadRTCPLength is returned when an RTCP packet's header length
	// field does not match the packet type's fixed wire length.
	ErrBadRTCPLength = errors.New("rtcp: bad packet length")

	// ErrBindFailed is returned when a sender, receiver, or RTCP endpoint
	// fails to acquire its UDP socket, or is started more than once.
	ErrBindFailed = errors.New("rtp: bind failed")

	// ErrSendFailed wraps a transient write error from a UDP socket.
	ErrSendFailed = errors.New("rtp: send failed")

	// ErrRecvFailed wraps a transient read error from a UDP socket.
	ErrRecvFailed = errors.New("rtp: receive failed")

	// ErrClosed is returned by operations attempted after Stop/Close, and
	// by an Endpoint's sends before Start.
	ErrClosed = errors.New("rtp: closed")
)
