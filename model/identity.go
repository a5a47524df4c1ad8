package model

import (
	"encoding/binary"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// unitSeparator joins identity components before hashing, matching
// the ASCII unit-separator convention spec.md's content-hash rule
// calls for.
const unitSeparator = "\x1f"

// Identity is the canonical triple used to key aggregate storage:
// (computed_name-or-name, testsuite, sorted+deduped flags).
type Identity struct {
	Name      string
	Testsuite string
	Flags     []string
}

// NewIdentity canonicalizes flags (sort + dedup) before constructing
// the identity.
func NewIdentity(name, testsuite string, flags []string) Identity {
	return Identity{
		Name:      name,
		Testsuite: testsuite,
		Flags:     CanonicalizeFlags(flags),
	}
}

// CanonicalizeFlags sorts and dedups a flag set.
func CanonicalizeFlags(flags []string) []string {
	if len(flags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(flags))
	out := make([]string, 0, len(flags))
	for _, f := range flags {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// concatForHash builds the UTF-8 string hashed to produce a TestID:
// name | 0x1F | testsuite | 0x1F | flag_1 | 0x1F | ... | flag_n
func (id Identity) concatForHash() string {
	var b strings.Builder
	b.Grow(len(id.Name) + len(id.Testsuite) + 2 + len(id.Flags)*8)
	b.WriteString(id.Name)
	b.WriteString(unitSeparator)
	b.WriteString(id.Testsuite)
	for _, f := range id.Flags {
		b.WriteString(unitSeparator)
		b.WriteString(f)
	}
	return b.String()
}

// TestID is a 16-byte, content-stable, non-cryptographic fingerprint
// of an Identity. It is built from two 64-bit xxhash digests over
// distinctly-prefixed input, which is a standard way to stretch a
// 64-bit hash to 128 bits without pulling in a dedicated 128-bit
// hash implementation.
type TestID [16]byte

// Hash computes the TestID for this identity.
func (id Identity) Hash() TestID {
	data := id.concatForHash()
	hi := xxhash.Sum64String("\x00" + data)
	lo := xxhash.Sum64String("\x01" + data)

	var out TestID
	binary.LittleEndian.PutUint64(out[0:8], hi)
	binary.LittleEndian.PutUint64(out[8:16], lo)
	return out
}
