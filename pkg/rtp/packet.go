package rtp

import (
	"fmt"

	pionrtp "github.com/pion/rtp"
)

const headerSize = 12

// Packet is a decoded RTP audio packet plus the receive-side bookkeeping
// the jitter buffer and receiver statistics need. Packets produced by
// decode are owned by the caller until returned to the jitter buffer's
// free list.
type Packet struct {
	SequenceNumber uint16
	Timestamp      uint32
	SSRC           uint32
	PayloadType    PayloadType
	Payload        []byte

	// ExtendedSeq is set by the receiver after decode; zero until then.
	// ArrivalTime is the arrival time (ms) that decode was given.
	ExtendedSeq uint64
	ArrivalTime uint32
}

// encode produces the wire bytes for one RTP audio packet: the fixed
// 12-byte header (first octet exactly 0x80, marker bit clear) followed by
// the quantized PCM payload for pt.
func encode(timestamp uint32, seqNum uint16, pt PayloadType, ssrc uint32, planes [][]float32, numSamples int) ([]byte, error) {
	if !pt.Valid() {
		return nil, fmt.Errorf("encode packet: %w", ErrInvalidPayloadType)
	}

	payload, err := encodePayload(pt, planes, numSamples)
	if err != nil {
		return nil, err
	}

	header := pionrtp.Header{
		Version:        2,
		PayloadType:    uint8(pt) & 0x7f,
		SequenceNumber: seqNum,
		Timestamp:      timestamp,
		SSRC:           ssrc,
	}

	headerBytes, err := header.Marshal()
	if err != nil {
		return nil, fmt.Errorf("encode packet: marshal header: %w", err)
	}

	buf := make([]byte, 0, len(headerBytes)+len(payload))
	buf = append(buf, headerBytes...)
	buf = append(buf, payload...)
	return buf, nil
}

// encodeInto is encode's scratch-buffer variant: it grows *scratch only
// when its capacity is too small and otherwise reuses the backing array,
// so a Sender driving repeated SendAudio calls does not allocate once
// *scratch has grown to the flow's steady-state packet size. The
// returned slice aliases *scratch and is only valid until the next call.
func encodeInto(scratch *[]byte, timestamp uint32, seqNum uint16, pt PayloadType, ssrc uint32, planes [][]float32, numSamples int) ([]byte, error) {
	if !pt.Valid() {
		return nil, fmt.Errorf("encode packet: %w", ErrInvalidPayloadType)
	}

	header := pionrtp.Header{
		Version:        2,
		PayloadType:    uint8(pt) & 0x7f,
		SequenceNumber: seqNum,
		Timestamp:      timestamp,
		SSRC:           ssrc,
	}

	payloadSize := len(planes) * numSamples * pt.BytesPerSample()
	total := header.MarshalSize() + payloadSize
	if cap(*scratch) < total {
		*scratch = make([]byte, total)
	} else {
		*scratch = (*scratch)[:total]
	}

	n, err := header.MarshalTo(*scratch)
	if err != nil {
		return nil, fmt.Errorf("encode packet: marshal header: %w", err)
	}

	if err := encodePayloadInto(pt, planes, numSamples, (*scratch)[n:]); err != nil {
		return nil, err
	}

	return *scratch, nil
}

// decode parses a raw RTP datagram into a freshly allocated Packet. It is
// a thin wrapper around decodeInto for callers (tests, one-off decodes)
// that don't have a reused Packet handy; the receive path uses
// decodeInto with a jitter-buffer-recycled Packet instead.
func decode(data []byte, arrivalTime uint32) (*Packet, error) {
	p := &Packet{}
	if err := decodeInto(p, data, arrivalTime); err != nil {
		return nil, err
	}
	return p, nil
}

// decodeInto parses a raw RTP datagram into p, reusing p.Payload's
// backing array when it's already large enough. Acceptance is strict:
// the first octet must equal 0x80 exactly (version 2, no padding, no
// extension, CC=0); anything else is rejected as ErrBadVersion even though
// github.com/pion/rtp's own Unmarshal would tolerate it.
func decodeInto(p *Packet, data []byte, arrivalTime uint32) error {
	if len(data) < headerSize+1 {
		return fmt.Errorf("decode packet: %d bytes: %w", len(data), ErrTooShort)
	}
	if data[0] != 0x80 {
		return fmt.Errorf("decode packet: first octet 0x%02x: %w", data[0], ErrBadVersion)
	}

	pt := PayloadType(data[1] & 0x7f)
	if !pt.Valid() {
		return fmt.Errorf("decode packet: payload type %d: %w", pt, ErrInvalidPayloadType)
	}

	var header pionrtp.Header
	n, err := header.Unmarshal(data)
	if err != nil {
		return fmt.Errorf("decode packet: unmarshal header: %w", err)
	}

	payloadLen := len(data) - n
	if cap(p.Payload) < payloadLen {
		p.Payload = make([]byte, payloadLen)
	} else {
		p.Payload = p.Payload[:payloadLen]
	}
	copy(p.Payload, data[n:])

	p.SequenceNumber = header.SequenceNumber
	p.Timestamp = header.Timestamp
	p.SSRC = header.SSRC
	p.PayloadType = pt
	p.ArrivalTime = arrivalTime
	return nil
}

// DecodeInto decodes p's payload into out (one pre-allocated slice of
// length numSamples per channel), per the PCM coding in p.PayloadType.
func (p *Packet) DecodeInto(out [][]float32, numSamples int) error {
	return decodePayload(p.PayloadType, p.Payload, out, numSamples)
}
