package cidr

import "log/slog"

// Validate parses each candidate and keeps those of the expected family.
// Malformed candidates and candidates of the other family are dropped with a
// warning; the batch is never aborted. The result is deduplicated.
func Validate(candidates []string, expected Family, logger *slog.Logger) Set {
	out := make(Set, len(candidates))
	for _, c := range candidates {
		r, err := Parse(c)
		if err != nil {
			logger.Warn("invalid CIDR dropped",
				"component", "cidr",
				"candidate", c,
				"reason", "parse",
				"error", err,
			)
			continue
		}
		if r.Family != expected {
			logger.Warn("CIDR family mismatch dropped",
				"component", "cidr",
				"candidate", c,
				"reason", "family",
				"expected", expected,
				"got", r.Family,
			)
			continue
		}
		out.Add(r)
	}

	if len(candidates) > 0 && len(out) == 0 {
		logger.Warn("no valid CIDRs in batch",
			"component", "cidr",
			"family", expected,
			"candidates", len(candidates),
		)
	}
	return out
}

// ValidateState validates a family-keyed candidate list, as decoded from the
// upstream provider, into a State. Families absent from raw yield empty sets.
func ValidateState(raw map[Family][]string, logger *slog.Logger) State {
	st := NewState()
	for f, candidates := range raw {
		st[f] = Validate(candidates, f, logger)
	}
	return st
}
