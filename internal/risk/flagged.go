package risk

import (
	"sort"
	"strings"
)

// FlaggedSet is an immutable set of lower-cased addresses known to be risky.
// The zero value is an empty set. It is safe for concurrent reads.
type FlaggedSet struct {
	m map[string]struct{}
}

// NewFlaggedSet builds a set from addrs, trimming and lower-casing each entry.
// Empty entries are dropped.
func NewFlaggedSet(addrs ...string) FlaggedSet {
	m := make(map[string]struct{}, len(addrs))
	for _, a := range addrs {
		if k := normalize(a); k != "" {
			m[k] = struct{}{}
		}
	}
	return FlaggedSet{m: m}
}

// Has reports whether addr, compared case-insensitively, is flagged.
func (f FlaggedSet) Has(addr string) bool {
	if len(f.m) == 0 {
		return false
	}
	_, ok := f.m[normalize(addr)]
	return ok
}

func (f FlaggedSet) Len() int { return len(f.m) }

// Addresses returns the members in sorted order.
func (f FlaggedSet) Addresses() []string {
	out := make([]string, 0, len(f.m))
	for k := range f.m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Union returns a new set holding the members of f and other.
func (f FlaggedSet) Union(other FlaggedSet) FlaggedSet {
	m := make(map[string]struct{}, len(f.m)+len(other.m))
	for k := range f.m {
		m[k] = struct{}{}
	}
	for k := range other.m {
		m[k] = struct{}{}
	}
	return FlaggedSet{m: m}
}

func normalize(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
