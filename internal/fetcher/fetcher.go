// Package fetcher downloads JSON pages from the public notice APIs with
// per-host rate limiting and retry.
package fetcher

import (
	"context"
)

// Fetcher defines the interface for fetching remote JSON documents.
type Fetcher interface {
	// GetJSON fetches the URL and decodes the response body into v.
	GetJSON(ctx context.Context, url string, v any) error
}
