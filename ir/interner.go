package ir

import (
	"github.com/deepnoodle-ai/irkit/arena"
	"github.com/deepnoodle-ai/irkit/errz"
)

// interned is the arena payload of a uniqued value: the storage object and
// the structural hash it was indexed under.
type interned[S any] struct {
	storage S
	hash    uint64
}

// interner dedups storage objects by structural hash and equality. It knows
// nothing about concrete kinds; it only calls the capability functions it
// was built with.
type interner[S any] struct {
	name   string
	arena  *arena.Arena[interned[S]]
	index  map[uint64][]arena.Handle[interned[S]]
	kind   func(S) string
	hashFn func(S, *Hasher)
	equal  func(a, b S) bool
	hasher *Hasher
}

func newInterner[S any](name string, owner uint32, kind func(S) string, hashFn func(S, *Hasher), equal func(a, b S) bool) *interner[S] {
	return &interner[S]{
		name:   name,
		arena:  arena.New[interned[S]](name, owner),
		index:  map[uint64][]arena.Handle[interned[S]]{},
		kind:   kind,
		hashFn: hashFn,
		equal:  equal,
		hasher: newHasher(),
	}
}

func (in *interner[S]) sum(h *Hasher, s S) uint64 {
	h.reset()
	h.WriteString(in.kind(s))
	in.hashFn(s, h)
	return h.Sum64()
}

// find looks for an entry structurally equal to s in the bucket for hash.
func (in *interner[S]) find(h *Hasher, s S, hash uint64) (arena.Handle[interned[S]], bool, error) {
	kind := in.kind(s)
	for _, cand := range in.index[hash] {
		entry, err := in.arena.Get(cand)
		if err != nil {
			return cand, false, errz.Wrap(err, errz.ErrKindInternerCorruption, in.name,
				"index references a dead entry")
		}
		if in.kind(entry.storage) != kind {
			continue
		}
		forward := in.equal(entry.storage, s)
		backward := in.equal(s, entry.storage)
		if forward != backward {
			return cand, false, errz.New(errz.ErrKindInternerCorruption, in.name,
				"equality of %s is not symmetric", kind)
		}
		if !forward {
			continue
		}
		if in.sum(h, entry.storage) != entry.hash {
			return cand, false, errz.New(errz.ErrKindInternerCorruption, in.name,
				"interned %s changed its hash after interning", kind)
		}
		return cand, true, nil
	}
	return arena.Handle[interned[S]]{}, false, nil
}

// intern returns the canonical handle for s, allocating it on a miss.
func (in *interner[S]) intern(s S) (arena.Handle[interned[S]], error) {
	hash := in.sum(in.hasher, s)
	handle, ok, err := in.find(in.hasher, s, hash)
	if err != nil {
		return arena.Handle[interned[S]]{}, err
	}
	if ok {
		return handle, nil
	}
	handle = in.arena.Alloc(interned[S]{storage: s, hash: hash})
	in.index[hash] = append(in.index[hash], handle)
	return handle, nil
}

// lookup is the read-only form of intern. It uses its own hasher so that
// concurrent readers do not share state.
func (in *interner[S]) lookup(s S) (arena.Handle[interned[S]], bool) {
	h := newHasher()
	handle, ok, err := in.find(h, s, in.sum(h, s))
	if err != nil {
		return handle, false
	}
	return handle, ok
}

func (in *interner[S]) get(handle arena.Handle[interned[S]]) (S, error) {
	entry, err := in.arena.Get(handle)
	if err != nil {
		var zero S
		return zero, err
	}
	return entry.storage, nil
}

func (in *interner[S]) all() []arena.Handle[interned[S]] {
	out := make([]arena.Handle[interned[S]], 0, in.arena.Len())
	for handle := range in.arena.All() {
		out = append(out, handle)
	}
	return out
}

// check re-derives the index from the stored entries and reports the first
// inconsistency: a stale hash, an entry missing from its bucket, or two
// structurally equal entries.
func (in *interner[S]) check() error {
	h := newHasher()
	indexed := 0
	for hash, bucket := range in.index {
		indexed += len(bucket)
		for i, handle := range bucket {
			entry, err := in.arena.Get(handle)
			if err != nil {
				return errz.Wrap(err, errz.ErrKindInternerCorruption, in.name,
					"index references a dead entry")
			}
			if entry.hash != hash || in.sum(h, entry.storage) != hash {
				return errz.New(errz.ErrKindInternerCorruption, in.name,
					"%s is filed under the wrong hash", in.kind(entry.storage))
			}
			for _, other := range bucket[i+1:] {
				o, err := in.arena.Get(other)
				if err != nil {
					return errz.Wrap(err, errz.ErrKindInternerCorruption, in.name,
						"index references a dead entry")
				}
				if in.kind(o.storage) == in.kind(entry.storage) && in.equal(o.storage, entry.storage) {
					return errz.New(errz.ErrKindInternerCorruption, in.name,
						"duplicate %s entries", in.kind(entry.storage))
				}
			}
		}
	}
	if indexed != in.arena.Len() {
		return errz.New(errz.ErrKindInternerCorruption, in.name,
			"%d entries stored, %d indexed", in.arena.Len(), indexed)
	}
	return nil
}
