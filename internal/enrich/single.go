package enrich

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tenderscope/intel-cli/internal/model"
	"github.com/tenderscope/intel-cli/pkg/orglookup"
)

// SingleStore is the store surface needed to enrich one buyer on demand.
type SingleStore interface {
	Directory
	ProfileWriter
	ScoreReader
	GetBuyer(ctx context.Context, id int64) (*model.Buyer, error)
	BuyerAggregates(ctx context.Context, id int64) (personnel, documents int, err error)
	BoostBuyerPriority(ctx context.Context, id int64) error
	RestoreBuyerPriority(ctx context.Context, id int64) error
}

// RunSingle enriches one buyer end to end: classify, profile, rescore. The
// buyer's queue priority is boosted for the duration so any concurrent batch
// pass also picks it up first, then restored.
func RunSingle(ctx context.Context, st SingleStore, lookup orglookup.Client, buyerID int64, threshold float64) error {
	log := zap.L().With(zap.Int64("buyer_id", buyerID))

	if err := st.BoostBuyerPriority(ctx, buyerID); err != nil {
		return eris.Wrapf(err, "enrich: boost buyer %d", buyerID)
	}
	defer func() {
		if err := st.RestoreBuyerPriority(ctx, buyerID); err != nil {
			log.Warn("failed to restore buyer priority", zap.Error(err))
		}
	}()

	b, err := st.GetBuyer(ctx, buyerID)
	if err != nil {
		return err
	}

	if b.OrgType == "" || b.OrgType == OrgTypeUnknown {
		sources, err := st.ListDataSources(ctx)
		if err != nil {
			return eris.Wrap(err, "enrich: load registry")
		}
		if ds, _ := NewIndex(sources).Match(b.Name, defaultSingleThreshold(threshold)); ds != nil {
			b.OrgType = ds.OrgType
			b.DataSourceID = &ds.ID
			b.GovernanceURL = ds.GovernanceURL
			b.GovernancePlatform = ds.Platform
			b.BoardPapersURL = ds.BoardPapersURL
			b.Website = ds.Website
			if err := st.UpdateBuyerClassification(ctx, b); err != nil {
				return err
			}
		}
	}

	if lookup != nil {
		org, err := lookup.SearchByName(ctx, b.Name)
		if err != nil {
			log.Warn("profile lookup failed", zap.Error(err))
		} else if org != nil {
			b.Website = org.Website
			b.LogoURL = org.LogoURL
			b.LinkedInURL = org.LinkedInURL
			b.Description = org.Description
			b.StaffCount = org.EmployeeCount
			b.EnrichmentSources = append(b.EnrichmentSources, "orglookup")
			if err := st.UpdateBuyerProfile(ctx, b); err != nil {
				return err
			}
		}
	}

	refreshed, err := st.GetBuyer(ctx, buyerID)
	if err != nil {
		return err
	}
	personnel, documents, err := st.BuyerAggregates(ctx, buyerID)
	if err != nil {
		return err
	}
	return st.UpdateBuyerScore(ctx, buyerID, ComputeScore(refreshed, personnel, documents), ScoringVersion)
}

func defaultSingleThreshold(t float64) float64 {
	if t <= 0 {
		return 0.3
	}
	return t
}
