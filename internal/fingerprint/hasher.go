package fingerprint

import (
	"encoding/binary"

	"github.com/OneOfOne/xxhash"
	"github.com/himanishpuri/soundz/pkg/models"
)

// Build pairs every peak with the following FanValue-1 peaks and hashes each
// pair whose time delta is within [0, MaxDelta]. The anchor peak's time bin
// becomes the fingerprint time.
//
// Output is deduplicated on (hash, anchor time) and keeps the order in which
// pairs were first produced, so the same peaks always give the same slice.
func Build(peaks []Peak, p Params) []models.Fingerprint {
	seen := make(map[models.Fingerprint]struct{})
	var out []models.Fingerprint

	for i, anchor := range peaks {
		for j := 1; j < p.FanValue && i+j < len(peaks); j++ {
			target := peaks[i+j]
			dt := target.TimeBin - anchor.TimeBin
			if dt < 0 || dt > p.MaxDelta {
				continue
			}

			h, ok := models.EncodeHash(anchor.FreqBin, target.FreqBin, dt)
			if !ok {
				continue
			}

			fp := models.Fingerprint{Hash: h, AnchorTime: anchor.TimeBin}
			if _, dup := seen[fp]; dup {
				continue
			}
			seen[fp] = struct{}{}
			out = append(out, fp)
		}
	}
	return out
}

// Digest is a 64-bit content checksum of an ordered fingerprint set.
func Digest(fps []models.Fingerprint) uint64 {
	buf := make([]byte, 0, len(fps)*8)
	for _, fp := range fps {
		buf = binary.BigEndian.AppendUint32(buf, uint32(fp.Hash))
		buf = binary.BigEndian.AppendUint32(buf, uint32(int32(fp.AnchorTime)))
	}
	return xxhash.Checksum64(buf)
}

// UniqueHashes returns the distinct hashes of fps in first-seen order.
func UniqueHashes(fps []models.Fingerprint) []models.Hash {
	seen := make(map[models.Hash]struct{}, len(fps))
	hashes := make([]models.Hash, 0, len(fps))
	for _, fp := range fps {
		if _, ok := seen[fp.Hash]; ok {
			continue
		}
		seen[fp.Hash] = struct{}{}
		hashes = append(hashes, fp.Hash)
	}
	return hashes
}
