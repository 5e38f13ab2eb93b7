package agents

import (
	"context"
	"fmt"

	"github.com/aristath/riskflow/internal/capabilities"
	"github.com/aristath/riskflow/internal/domain"
)

// Freshness policies accepted by pricing.resolve_pack
const (
	FreshnessRequireFresh = "require_fresh"
	FreshnessAllowStale   = "allow_stale"
)

// ResolvedPack is a usable pack with the provenance of its resolution.
// It encodes with the pack's "id" field so later steps can bind it as a pack id.
type ResolvedPack struct {
	domain.Pack
	Provenance domain.Provenance `json:"provenance"`
}

// ResolvePackAgent resolves a date or generated pack id to a canonical ready pack
type ResolvePackAgent struct {
	packs PackResolver
}

// NewResolvePackAgent creates a new pricing.resolve_pack agent
func NewResolvePackAgent(packs PackResolver) *ResolvePackAgent {
	return &ResolvePackAgent{packs: packs}
}

// Contract implements capabilities.Agent. Both inputs are optional: an unbound pack_id
// resolves the most recently published pack.
func (a *ResolvePackAgent) Contract() capabilities.Contract {
	return capabilities.Contract{
		Name: CapResolvePack,
	}
}

// Execute implements capabilities.Agent. The freshness input selects the policy:
// require_fresh (default, stale packs fail) or allow_stale (stale packs are returned with
// degraded provenance).
func (a *ResolvePackAgent) Execute(ctx context.Context, in capabilities.Input) (any, error) {
	freshness, err := in.StringOr("freshness", FreshnessRequireFresh)
	if err != nil {
		return nil, err
	}
	if freshness != FreshnessRequireFresh && freshness != FreshnessAllowStale {
		return nil, &domain.ValidationError{
			Field:  "freshness",
			Reason: fmt.Sprintf("unknown policy %q", freshness),
		}
	}

	var pack *domain.Pack
	if in.Has("pack_id") {
		packID, err := in.String("pack_id")
		if err != nil {
			return nil, err
		}
		pack, err = a.packs.GetPack(ctx, packID)
		if err != nil {
			return nil, err
		}
	} else {
		if pack, err = a.packs.GetLatestPack(ctx); err != nil {
			return nil, err
		}
	}

	provenance := domain.Computed("pricing_pack")
	if freshness == FreshnessAllowStale {
		if pack, provenance, err = a.packs.AllowStale(pack); err != nil {
			return nil, err
		}
	} else if pack, err = a.packs.RequireFresh(pack); err != nil {
		return nil, err
	}

	return &ResolvedPack{Pack: *pack, Provenance: provenance}, nil
}
