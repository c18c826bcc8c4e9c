// Package fingerprint reduces the visible text of a UI snapshot to an
// opaque 64-bit value used to detect "the screen now shows a different
// item". The value reveals nothing about the text and is never persisted.
//
// Two properties hold: equal visible text yields equal fingerprints, and
// any text delta yields a different fingerprint with overwhelming
// likelihood. Collisions are tolerated; they cost a missed change, never
// a false one.
package fingerprint

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"

	"feedbreakd/internal/uisnapshot"
)

// Fingerprint is an opaque content hash. The zero value is reserved for
// "unknown or empty" and is never a valid change signal.
type Fingerprint uint64

// Unknown is the reserved empty fingerprint.
const Unknown Fingerprint = 0

// Known reports whether the fingerprint carries content information.
func (f Fingerprint) Known() bool { return f != Unknown }

// positionCell quantizes label coordinates so that sub-cell layout
// jitter between consecutive captures does not change the fingerprint.
const positionCell = 32

// Compute hashes every visible label under the snapshot root together
// with its quantized screen position. Labels are combined additively, so
// traversal order does not matter but on-screen position does. Returns
// Unknown for a nil snapshot or a screen with no visible text.
func Compute(s *uisnapshot.Snapshot) Fingerprint {
	labels := uisnapshot.VisibleLabels(s)
	if len(labels) == 0 {
		return Unknown
	}

	var sum uint64
	var buf [8]byte
	for _, l := range labels {
		binary.BigEndian.PutUint32(buf[0:4], uint32(l.Bounds.Left/positionCell))
		binary.BigEndian.PutUint32(buf[4:8], uint32(l.Bounds.Top/positionCell))
		sum += hash64(buf[:], l.Text)
	}
	return nonZero(sum)
}

// FromTexts hashes bare text fragments with no position information,
// for notifications that carry content text but no snapshot. Order
// independent. Returns Unknown for an empty input.
func FromTexts(texts []string) Fingerprint {
	var sum uint64
	seen := false
	for _, t := range texts {
		if t == "" {
			continue
		}
		seen = true
		sum += hash64(nil, t)
	}
	if !seen {
		return Unknown
	}
	return nonZero(sum)
}

func hash64(prefix []byte, text string) uint64 {
	h, _ := blake2b.New(8, nil)
	h.Write(prefix)
	h.Write([]byte(text))
	var out [8]byte
	copy(out[:], h.Sum(nil))
	return binary.BigEndian.Uint64(out[:])
}

// nonZero keeps real content from colliding with the reserved value.
func nonZero(v uint64) Fingerprint {
	if v == 0 {
		return 1
	}
	return Fingerprint(v)
}
