// Package rtp implements the SAM real-time audio transport layer: RTP
// packet encode/decode, rate-paced sending, jitter-ordered receiving, and
// the RTCP sender/receiver report protocol.
package rtp

// PayloadType identifies the audio sample coding carried by an RTP packet.
// Only the three codings SAM uses are supported; anything else is rejected
// by the codec rather than passed through.
type PayloadType uint8

const (
	// PayloadPCM16 carries signed 16-bit big-endian PCM samples.
	PayloadPCM16 PayloadType = 96
	// PayloadPCM24 carries signed 24-bit big-endian PCM samples.
	PayloadPCM24 PayloadType = 97
	// PayloadPCM32Float carries IEEE-754 32-bit float samples, passed
	// through without quantization.
	PayloadPCM32Float PayloadType = 98
)

// Valid reports whether pt is one of the three payload types this package
// understands.
func (pt PayloadType) Valid() bool {
	switch pt {
	case PayloadPCM16, PayloadPCM24, PayloadPCM32Float:
		return true
	default:
		return false
	}
}

// BytesPerSample returns the wire size in bytes of a single sample for pt.
// Callers must only invoke this after checking Valid.
func (pt PayloadType) BytesPerSample() int {
	switch pt {
	case PayloadPCM16:
		return 2
	case PayloadPCM24:
		return 3
	case PayloadPCM32Float:
		return 4
	default:
		return 0
	}
}

func (pt PayloadType) String() string {
	switch pt {
	case PayloadPCM16:
		return "PCM16"
	case PayloadPCM24:
		return "PCM24"
	case PayloadPCM32Float:
		return "PCM32Float"
	default:
		return "Unknown"
	}
}
