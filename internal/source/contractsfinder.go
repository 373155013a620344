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

// ContractsFinder pages the Contracts Finder OCDS search API. Unlike Find a
// Tender it accepts both stages in one request, filtered by publishedFrom.
type ContractsFinder struct {
	fetcher      fetcher.Fetcher
	baseURL      string
	backfillFrom string
}

// NewContractsFinder creates a Contracts Finder adapter.
func NewContractsFinder(f fetcher.Fetcher, baseURL, backfillFrom string) *ContractsFinder {
	return &ContractsFinder{fetcher: f, baseURL: baseURL, backfillFrom: backfillFrom}
}

// Name implements Source.
func (s *ContractsFinder) Name() model.Source { return model.SourceContractsFinder }

// FetchPage implements Source.
func (s *ContractsFinder) FetchPage(ctx context.Context, req PageRequest) (Page, error) {
	var pageURL string
	if req.Cursor != nil && strings.HasPrefix(*req.Cursor, "http") {
		pageURL = *req.Cursor
	} else {
		publishedFrom := req.DateFrom
		if publishedFrom == "" {
			publishedFrom = s.backfillFrom
		}
		pageURL = fmt.Sprintf("%s?publishedFrom=%s&stages=tender,award&limit=100",
			s.baseURL, url.QueryEscape(publishedFrom))
	}

	var pkg releasePackage
	if err := s.fetcher.GetJSON(ctx, pageURL, &pkg); err != nil {
		return Page{}, eris.Wrap(err, "source: contracts finder page")
	}

	if len(pkg.Releases) == 0 {
		return Page{}, nil
	}

	var next *string
	if pkg.Links.Next != "" {
		next = strPtr(pkg.Links.Next)
	}

	return Page{Releases: pkg.Releases, NextCursor: next}, nil
}
