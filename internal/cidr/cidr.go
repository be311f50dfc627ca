// Package cidr validates and classifies provider-supplied address ranges.
package cidr

import (
	"fmt"
	"net/netip"
	"sort"
	"strings"
)

// Family is an IP address family.
type Family string

const (
	// FamilyV4 is the IPv4 address family.
	FamilyV4 Family = "v4"
	// FamilyV6 is the IPv6 address family.
	FamilyV6 Family = "v6"
)

// Families lists every supported family in reporting order.
var Families = []Family{FamilyV4, FamilyV6}

// ParseFamily converts "v4"/"v6" (case-insensitive) to a Family.
func ParseFamily(s string) (Family, error) {
	switch Family(strings.ToLower(strings.TrimSpace(s))) {
	case FamilyV4:
		return FamilyV4, nil
	case FamilyV6:
		return FamilyV6, nil
	}
	return "", fmt.Errorf("cidr: unknown address family %q", s)
}

// String returns "IPv4" or "IPv6".
func (f Family) String() string {
	switch f {
	case FamilyV4:
		return "IPv4"
	case FamilyV6:
		return "IPv6"
	}
	return string(f)
}

// Range is a normalized network prefix tagged with its family.
// Two ranges are equal when their Prefix strings are equal.
type Range struct {
	Prefix string
	Family Family
}

func (r Range) String() string { return r.Prefix }

// Parse parses s as a network prefix and returns its normalized Range.
//
// A bare address is treated as a host prefix (/32 or /128). IPv4-mapped IPv6
// prefixes are classified as IPv4 and rendered in IPv4 form. Prefixes with
// host bits set are rejected.
func Parse(s string) (Range, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Range{}, fmt.Errorf("cidr: empty prefix")
	}

	var prefix netip.Prefix
	if strings.Contains(s, "/") {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return Range{}, fmt.Errorf("cidr: parse %q: %w", s, err)
		}
		prefix = p
	} else {
		addr, err := netip.ParseAddr(s)
		if err != nil {
			return Range{}, fmt.Errorf("cidr: parse %q: %w", s, err)
		}
		if addr.Zone() != "" {
			return Range{}, fmt.Errorf("cidr: parse %q: zoned addresses are not ranges", s)
		}
		prefix = netip.PrefixFrom(addr, addr.BitLen())
	}

	if prefix.Masked() != prefix {
		return Range{}, fmt.Errorf("cidr: parse %q: host bits set", s)
	}

	addr := prefix.Addr()
	if addr.Is4In6() {
		if prefix.Bits() < 96 {
			return Range{}, fmt.Errorf("cidr: parse %q: mapped prefix shorter than /96", s)
		}
		prefix = netip.PrefixFrom(addr.Unmap(), prefix.Bits()-96)
		addr = prefix.Addr()
	}

	family := FamilyV6
	if addr.Is4() {
		family = FamilyV4
	}
	return Range{Prefix: prefix.String(), Family: family}, nil
}

// Set is a set of ranges keyed by normalized prefix.
type Set map[string]Range

// NewSet returns a set holding the given ranges.
func NewSet(ranges ...Range) Set {
	s := make(Set, len(ranges))
	for _, r := range ranges {
		s.Add(r)
	}
	return s
}

// Add inserts r into the set.
func (s Set) Add(r Range) { s[r.Prefix] = r }

// Has reports whether r is a member of the set.
func (s Set) Has(r Range) bool {
	_, ok := s[r.Prefix]
	return ok
}

// Difference returns the members of s that are not in other.
func (s Set) Difference(other Set) Set {
	out := make(Set)
	for k, r := range s {
		if _, ok := other[k]; !ok {
			out[k] = r
		}
	}
	return out
}

// Sorted returns the members ordered by prefix string.
func (s Set) Sorted() []Range {
	out := make([]Range, 0, len(s))
	for _, r := range s {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Prefix < out[j].Prefix })
	return out
}

// State maps each family to its set of ranges. It is used both for the
// provider's desired ranges and for ranges observed in the firewall.
type State map[Family]Set

// NewState returns a State with an empty set for every family.
func NewState() State {
	st := make(State, len(Families))
	for _, f := range Families {
		st[f] = make(Set)
	}
	return st
}

// Add inserts r under its own family.
func (st State) Add(r Range) {
	set, ok := st[r.Family]
	if !ok {
		set = make(Set)
		st[r.Family] = set
	}
	set.Add(r)
}

// Get returns the set for f, never nil.
func (st State) Get(f Family) Set {
	if set, ok := st[f]; ok && set != nil {
		return set
	}
	return Set{}
}

// Count returns the number of ranges per family.
func (st State) Count() map[Family]int {
	out := make(map[Family]int, len(Families))
	for _, f := range Families {
		out[f] = len(st.Get(f))
	}
	return out
}

// Len returns the total number of ranges across families.
func (st State) Len() int {
	n := 0
	for _, set := range st {
		n += len(set)
	}
	return n
}

// Clone returns a deep copy so callers can hand out snapshots.
func (st State) Clone() State {
	out := make(State, len(st))
	for f, set := range st {
		cp := make(Set, len(set))
		for k, r := range set {
			cp[k] = r
		}
		out[f] = cp
	}
	return out
}
