package source

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/tenderscope/intel-cli/internal/fetcher"
	"github.com/tenderscope/intel-cli/internal/model"
)

// awardStageCursor is the synthetic cursor that switches the Find a Tender
// stream from tender to award notices. The API rejects comma-separated
// stages, so the two are paged as consecutive sub-streams.
const awardStageCursor = "STAGE:award"

// FindATender pages the Find a Tender OCDS API. Continuation cursors are the
// full URLs from links.next; the stage is re-derived from the cursor itself
// so a resume after a crash lands in the right sub-stream.
type FindATender struct {
	fetcher      fetcher.Fetcher
	baseURL      string
	backfillFrom string
}

// NewFindATender creates a Find a Tender adapter.
func NewFindATender(f fetcher.Fetcher, baseURL, backfillFrom string) *FindATender {
	return &FindATender{fetcher: f, baseURL: baseURL, backfillFrom: backfillFrom}
}

// Name implements Source.
func (s *FindATender) Name() model.Source { return model.SourceFindATender }

// stageFromCursor reports whether the cursor belongs to the award sub-stream.
func stageFromCursor(cursor string) string {
	if cursor == awardStageCursor {
		return "award"
	}
	if strings.HasPrefix(cursor, "http") {
		if u, err := url.Parse(cursor); err == nil && u.Query().Get("stages") == "award" {
			return "award"
		}
	}
	return "tender"
}

func (s *FindATender) firstPageURL(stage, dateFrom string) string {
	updatedFrom := dateFrom
	if updatedFrom == "" {
		updatedFrom = s.backfillFrom
	}
	return fmt.Sprintf("%s?updatedFrom=%s&stages=%s&limit=100",
		s.baseURL, url.QueryEscape(updatedFrom), stage)
}

// FetchPage implements Source.
func (s *FindATender) FetchPage(ctx context.Context, req PageRequest) (Page, error) {
	stage := "tender"
	var pageURL string
	switch {
	case req.Cursor != nil && strings.HasPrefix(*req.Cursor, "http"):
		pageURL = *req.Cursor
		stage = stageFromCursor(pageURL)
	case req.Cursor != nil && *req.Cursor == awardStageCursor:
		stage = "award"
		pageURL = s.firstPageURL(stage, req.DateFrom)
	default:
		pageURL = s.firstPageURL(stage, req.DateFrom)
	}

	var pkg releasePackage
	if err := s.fetcher.GetJSON(ctx, pageURL, &pkg); err != nil {
		return Page{}, eris.Wrapf(err, "source: find a tender %s page", stage)
	}

	if len(pkg.Releases) == 0 {
		if stage == "tender" {
			// Tender sub-stream exhausted: switch to awards.
			return Page{NextCursor: strPtr(awardStageCursor)}, nil
		}
		return Page{}, nil
	}

	var next *string
	switch {
	case pkg.Links.Next != "":
		next = strPtr(pkg.Links.Next)
	case stage == "tender":
		next = strPtr(awardStageCursor)
	}

	return Page{Releases: pkg.Releases, NextCursor: next}, nil
}
