package rtp

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	pcm16Scale = 32768.5
	pcm24Scale = 8388607.5

	pcm16Min, pcm16Max = -32768, 32767
	pcm24Min, pcm24Max = -8388608, 8388607
)

// encodePayload quantizes a non-interleaved PCM plane array into the wire
// payload for pt: channel 0's samples first, then channel 1's, and so on.
// Each plane must hold exactly numSamples values in [-1, 1]; values outside
// that range are hard-clipped before quantization.
func encodePayload(pt PayloadType, planes [][]float32, numSamples int) ([]byte, error) {
	if !pt.Valid() {
		return nil, fmt.Errorf("encode payload: %w", ErrInvalidPayloadType)
	}

	out := make([]byte, len(planes)*numSamples*pt.BytesPerSample())
	if err := encodePayloadInto(pt, planes, numSamples, out); err != nil {
		return nil, err
	}
	return out, nil
}

// encodePayloadInto is encodePayload's scratch-buffer variant: out must
// already be sized to len(planes)*numSamples*pt.BytesPerSample(), letting
// callers on a hot path (the sender) reuse one buffer across packets
// instead of allocating per call.
func encodePayloadInto(pt PayloadType, planes [][]float32, numSamples int, out []byte) error {
	switch pt {
	case PayloadPCM16:
		off := 0
		for _, plane := range planes {
			for n := 0; n < numSamples; n++ {
				v := quantize(float64(plane[n]), pcm16Scale, pcm16Min, pcm16Max)
				binary.BigEndian.PutUint16(out[off:], uint16(int16(v)))
				off += 2
			}
		}
	case PayloadPCM24:
		off := 0
		for _, plane := range planes {
			for n := 0; n < numSamples; n++ {
				v := quantize(float64(plane[n]), pcm24Scale, pcm24Min, pcm24Max)
				out[off] = byte(v >> 16)
				out[off+1] = byte(v >> 8)
				out[off+2] = byte(v)
				off += 3
			}
		}
	case PayloadPCM32Float:
		off := 0
		for _, plane := range planes {
			for n := 0; n < numSamples; n++ {
				binary.BigEndian.PutUint32(out[off:], math.Float32bits(plane[n]))
				off += 4
			}
		}
	}

	return nil
}

// quantize clamps x to [-1, 1], rounds x*scale to the nearest integer, and
// clamps the result to [lo, hi] so that +1.0 (which rounds just past the
// representable maximum) saturates instead of wrapping.
func quantize(x, scale float64, lo, hi int64) int64 {
	if x > 1 {
		x = 1
	} else if x < -1 {
		x = -1
	}
	v := int64(math.Round(x * scale))
	if v < lo {
		v = lo
	} else if v > hi {
		v = hi
	}
	return v
}

// decodePayload reconstructs non-interleaved PCM planes from a wire
// payload. out must already have one slice per channel, each of length
// numSamples; decodePayload fills them in place. Returns
// ErrPayloadSizeMismatch if payload's length doesn't match
// channels*numSamples*bytesPerSample for pt.
func decodePayload(pt PayloadType, payload []byte, out [][]float32, numSamples int) error {
	if !pt.Valid() {
		return fmt.Errorf("decode payload: %w", ErrInvalidPayloadType)
	}

	want := len(out) * numSamples * pt.BytesPerSample()
	if len(payload) != want {
		return fmt.Errorf("decode payload: got %d bytes, want %d: %w", len(payload), want, ErrPayloadSizeMismatch)
	}

	switch pt {
	case PayloadPCM16:
		off := 0
		for _, plane := range out {
			for n := 0; n < numSamples; n++ {
				v := int16(binary.BigEndian.Uint16(payload[off:]))
				plane[n] = float32(float64(v) / pcm16Scale)
				off += 2
			}
		}
	case PayloadPCM24:
		off := 0
		for _, plane := range out {
			for n := 0; n < numSamples; n++ {
				word := uint32(payload[off])<<24 | uint32(payload[off+1])<<16 | uint32(payload[off+2])<<8
				v := int32(word) >> 8 // arithmetic shift, sign-extends bit 23
				f := float64(v) / pcm24Scale
				if f < -1 {
					f = -1 // -8388608/8388607.5 falls just below -1
				}
				plane[n] = float32(f)
				off += 3
			}
		}
	case PayloadPCM32Float:
		off := 0
		for _, plane := range out {
			for n := 0; n < numSamples; n++ {
				plane[n] = math.Float32frombits(binary.BigEndian.Uint32(payload[off:]))
				off += 4
			}
		}
	}

	return nil
}
