package reconcile

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/plexsphere/cloudflare-ufw-sync/internal/cidr"
)

func sortedPrefixes(set cidr.Set) []string {
	out := []string{}
	for _, r := range set.Sorted() {
		out = append(out, r.Prefix)
	}
	return out
}

func TestComputeDiff_AddAndRemove(t *testing.T) {
	desired := mustState(t, "198.51.100.0/24", "203.0.113.0/24")
	current := mustState(t, "198.51.100.0/24", "192.0.2.0/24")

	diff := ComputeDiff(desired, current)

	if got := sortedPrefixes(diff.ToAdd.Get(cidr.FamilyV4)); !cmp.Equal(got, []string{"203.0.113.0/24"}) {
		t.Errorf("ToAdd v4 = %v", got)
	}
	if got := sortedPrefixes(diff.ToRemove.Get(cidr.FamilyV4)); !cmp.Equal(got, []string{"192.0.2.0/24"}) {
		t.Errorf("ToRemove v4 = %v", got)
	}
	if diff.IsEmpty() {
		t.Error("IsEmpty() = true, want false")
	}
}

func TestComputeDiff_ConvergedIsEmpty(t *testing.T) {
	st := mustState(t, "192.0.2.0/24", "2001:db8::/32")

	diff := ComputeDiff(st, st.Clone())
	if !diff.IsEmpty() {
		t.Errorf("diff not empty: add=%d remove=%d", diff.ToAdd.Len(), diff.ToRemove.Len())
	}
}

func TestComputeDiff_FamiliesIndependent(t *testing.T) {
	desired := mustState(t, "192.0.2.0/24")
	current := mustState(t, "2001:db8::/32")

	diff := ComputeDiff(desired, current)

	if got := sortedPrefixes(diff.ToAdd.Get(cidr.FamilyV4)); !cmp.Equal(got, []string{"192.0.2.0/24"}) {
		t.Errorf("ToAdd v4 = %v", got)
	}
	if got := sortedPrefixes(diff.ToRemove.Get(cidr.FamilyV6)); !cmp.Equal(got, []string{"2001:db8::/32"}) {
		t.Errorf("ToRemove v6 = %v", got)
	}
	if n := len(diff.ToAdd.Get(cidr.FamilyV6)) + len(diff.ToRemove.Get(cidr.FamilyV4)); n != 0 {
		t.Errorf("cross-family entries: %d", n)
	}
}

func TestComputeDiff_NilFamilies(t *testing.T) {
	diff := ComputeDiff(cidr.State{}, nil)
	if !diff.IsEmpty() {
		t.Error("IsEmpty() = false for two empty states")
	}
}
