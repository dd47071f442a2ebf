package models

import (
	"encoding/binary"
	"fmt"
)

// HashVersion identifies the hash layout below. Stores persist it and refuse
// to open data written with a different layout.
const HashVersion = 1

// Bit layout: [ f1 (FreqBits) | f2 (FreqBits) | dt (DeltaBits) ]
const (
	FreqBits  = 10
	DeltaBits = 12

	MaxHashFreq  = 1<<FreqBits - 1
	MaxHashDelta = 1<<DeltaBits - 1
)

// Hash is the packed (f1, f2, dt) key of a fingerprint.
type Hash uint32

// EncodeHash packs a frequency pair and time delta. ok is false when a
// component does not fit the layout.
func EncodeHash(f1, f2, dt int) (Hash, bool) {
	if f1 < 0 || f1 > MaxHashFreq || f2 < 0 || f2 > MaxHashFreq {
		return 0, false
	}
	if dt < 0 || dt > MaxHashDelta {
		return 0, false
	}
	h := uint32(f1)<<(FreqBits+DeltaBits) | uint32(f2)<<DeltaBits | uint32(dt)
	return Hash(h), true
}

// Decode unpacks the hash into its components.
func (h Hash) Decode() (f1, f2, dt int) {
	f1 = int(uint32(h) >> (FreqBits + DeltaBits) & MaxHashFreq)
	f2 = int(uint32(h) >> DeltaBits & MaxHashFreq)
	dt = int(uint32(h) & MaxHashDelta)
	return f1, f2, dt
}

// Bytes returns the 4-byte big-endian form used as a storage key.
func (h Hash) Bytes() []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(h))
	return b
}

// HashFromBytes is the inverse of Bytes.
func HashFromBytes(b []byte) (Hash, error) {
	if len(b) != 4 {
		return 0, fmt.Errorf("hash must be 4 bytes, got %d", len(b))
	}
	return Hash(binary.BigEndian.Uint32(b)), nil
}

func (h Hash) String() string {
	f1, f2, dt := h.Decode()
	return fmt.Sprintf("%d,%d,%d", f1, f2, dt)
}

// Fingerprint is a hash anchored at the time bin of its first peak.
type Fingerprint struct {
	Hash       Hash
	AnchorTime int
}

// FingerprintRecord is a persisted fingerprint linked to its song.
type FingerprintRecord struct {
	Hash   Hash
	Time   int
	SongID string
}
