package reconcile

import "github.com/plexsphere/cloudflare-ufw-sync/internal/cidr"

// Diff describes the ranges that must be added to and removed from the
// firewall to make it match the desired state.
type Diff struct {
	ToAdd    cidr.State
	ToRemove cidr.State
}

// IsEmpty reports whether there is nothing to change.
func (d Diff) IsEmpty() bool {
	return d.ToAdd.Len() == 0 && d.ToRemove.Len() == 0
}

// ComputeDiff compares desired against current, family by family.
// Ranges present in both are left untouched.
func ComputeDiff(desired, current cidr.State) Diff {
	diff := Diff{
		ToAdd:    cidr.NewState(),
		ToRemove: cidr.NewState(),
	}

	for _, f := range cidr.Families {
		d := desired.Get(f)
		c := current.Get(f)
		diff.ToAdd[f] = d.Difference(c)
		diff.ToRemove[f] = c.Difference(d)
	}
	return diff
}
