// Package source implements paginated OCDS release adapters for the UK
// notice APIs. Each adapter exposes opaque cursors so the sync stage can
// checkpoint and resume mid-stream.
package source

import (
	"context"

	"github.com/tenderscope/intel-cli/internal/model"
	"github.com/tenderscope/intel-cli/internal/ocds"
)

// Page is one fetched page of releases. A nil NextCursor means the stream
// is exhausted; a non-nil cursor always resumes after this page's releases.
type Page struct {
	Releases   []ocds.Release
	NextCursor *string
}

// PageRequest asks for the next page. Cursor nil starts from the beginning.
// DateFrom bounds incremental fetches; empty means the adapter's backfill
// origin.
type PageRequest struct {
	Cursor   *string
	DateFrom string
}

// Source is a paginated release stream for one notice API.
type Source interface {
	Name() model.Source
	FetchPage(ctx context.Context, req PageRequest) (Page, error)
}

// releasePackage is the OCDS release package envelope both APIs return.
type releasePackage struct {
	Releases []ocds.Release `json:"releases"`
	Links    struct {
		Next string `json:"next"`
	} `json:"links"`
}

func strPtr(s string) *string { return &s }
