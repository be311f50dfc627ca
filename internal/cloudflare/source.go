package cloudflare

import (
	"context"
	"log/slog"

	"github.com/plexsphere/cloudflare-ufw-sync/internal/cidr"
)

// RangeFetcher retrieves raw candidate ranges per family.
type RangeFetcher interface {
	FetchRanges(ctx context.Context, families []cidr.Family) (map[cidr.Family][]string, error)
}

// Source adapts a RangeFetcher into validated desired state.
type Source struct {
	fetcher  RangeFetcher
	families []cidr.Family
	logger   *slog.Logger
}

// NewSource creates a Source requesting the given families.
func NewSource(fetcher RangeFetcher, families []cidr.Family, logger *slog.Logger) *Source {
	if len(families) == 0 {
		families = cidr.Families
	}
	return &Source{
		fetcher:  fetcher,
		families: families,
		logger:   logger,
	}
}

// Desired fetches and validates the published ranges. Families that were not
// requested are empty in the returned state, so their owned rules are
// removed on the next reconcile.
func (s *Source) Desired(ctx context.Context) (cidr.State, error) {
	raw, err := s.fetcher.FetchRanges(ctx, s.families)
	if err != nil {
		return nil, err
	}
	return cidr.ValidateState(raw, s.logger), nil
}
