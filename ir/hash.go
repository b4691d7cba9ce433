package ir

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
)

// Hasher accumulates the structural hash of a type or attribute. Dialects
// feed every field that participates in equality, in a fixed order.
type Hasher struct {
	d   *xxhash.Digest
	buf [8]byte
}

func newHasher() *Hasher {
	return &Hasher{d: xxhash.New()}
}

func (h *Hasher) reset() {
	h.d.Reset()
}

// WriteString hashes s followed by a terminator, so adjacent strings do
// not run together.
func (h *Hasher) WriteString(s string) {
	_, _ = h.d.WriteString(s)
	_, _ = h.d.Write([]byte{0})
}

// WriteUint64 hashes v.
func (h *Hasher) WriteUint64(v uint64) {
	binary.LittleEndian.PutUint64(h.buf[:], v)
	_, _ = h.d.Write(h.buf[:])
}

// WriteInt hashes v.
func (h *Hasher) WriteInt(v int64) {
	h.WriteUint64(uint64(v))
}

// WriteFloat hashes the bit pattern of v.
func (h *Hasher) WriteFloat(v float64) {
	h.WriteUint64(math.Float64bits(v))
}

// WriteBool hashes v.
func (h *Hasher) WriteBool(v bool) {
	if v {
		h.WriteUint64(1)
	} else {
		h.WriteUint64(0)
	}
}

// WriteType hashes a nested type by identity.
func (h *Hasher) WriteType(t Type) {
	h.WriteUint64(uint64(t.h().Index())<<32 | uint64(t.h().Generation()))
}

// WriteAttr hashes a nested attribute by identity.
func (h *Hasher) WriteAttr(a Attr) {
	h.WriteUint64(uint64(a.h().Index())<<32 | uint64(a.h().Generation()))
}

// Sum64 returns the accumulated hash.
func (h *Hasher) Sum64() uint64 {
	return h.d.Sum64()
}
