package rtp

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// randomUint32 draws a uniformly random uint32 from a cryptographic RNG.
// Per §9's design note, SAM's original global qrand-seeded PRNG is
// replaced with a per-flow draw at construction time.
func randomUint32() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("rtp: random uint32: %w", err)
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

// randomUint16 draws a uniformly random uint16 from a cryptographic RNG.
func randomUint16() (uint16, error) {
	v, err := randomUint32()
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
}
