package source

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFetcher serves canned JSON bodies by URL and records requests.
type fakeFetcher struct {
	responses map[string]string
	calls     []string
}

func (f *fakeFetcher) GetJSON(ctx context.Context, url string, v any) error {
	f.calls = append(f.calls, url)
	body, ok := f.responses[url]
	if !ok {
		return fmt.Errorf("unexpected url %s", url)
	}
	return json.Unmarshal([]byte(body), v)
}

const fatBase = "https://www.find-tender.service.gov.uk/api/1.0/ocdsReleasePackages"
const cfBase = "https://www.contractsfinder.service.gov.uk/Published/Notices/OCDS/Search"

func releasesBody(next string, ids ...string) string {
	type rel struct {
		ID string `json:"id"`
	}
	var rels []rel
	for _, id := range ids {
		rels = append(rels, rel{ID: id})
	}
	payload := map[string]any{"releases": rels}
	if next != "" {
		payload["links"] = map[string]string{"next": next}
	}
	b, _ := json.Marshal(payload)
	return string(b)
}

func TestFindATender_FirstPageStartsTenderStream(t *testing.T) {
	firstURL := fatBase + "?updatedFrom=2023-01-01&stages=tender&limit=100"
	f := &fakeFetcher{responses: map[string]string{
		firstURL: releasesBody(fatBase+"?cursor=abc&stages=tender", "n-1", "n-2"),
	}}
	s := NewFindATender(f, fatBase, "2023-01-01")

	page, err := s.FetchPage(context.Background(), PageRequest{})
	require.NoError(t, err)
	assert.Len(t, page.Releases, 2)
	require.NotNil(t, page.NextCursor)
	assert.Equal(t, fatBase+"?cursor=abc&stages=tender", *page.NextCursor)
	assert.Equal(t, []string{firstURL}, f.calls)
}

func TestFindATender_DateFromOverridesBackfill(t *testing.T) {
	wantURL := fatBase + "?updatedFrom=2026-02-01T00%3A00%3A00Z&stages=tender&limit=100"
	f := &fakeFetcher{responses: map[string]string{
		wantURL: releasesBody("", "n-1"),
	}}
	s := NewFindATender(f, fatBase, "2023-01-01")

	_, err := s.FetchPage(context.Background(), PageRequest{DateFrom: "2026-02-01T00:00:00Z"})
	require.NoError(t, err)
	assert.Equal(t, []string{wantURL}, f.calls)
}

func TestFindATender_FollowsFullURLCursor(t *testing.T) {
	cursor := fatBase + "?cursor=xyz&stages=tender"
	f := &fakeFetcher{responses: map[string]string{
		cursor: releasesBody("", "n-3"),
	}}
	s := NewFindATender(f, fatBase, "2023-01-01")

	page, err := s.FetchPage(context.Background(), PageRequest{Cursor: &cursor})
	require.NoError(t, err)
	assert.Len(t, page.Releases, 1)
	// Tender stream exhausted (no links.next): switch to the award stream.
	require.NotNil(t, page.NextCursor)
	assert.Equal(t, awardStageCursor, *page.NextCursor)
}

func TestFindATender_EmptyTenderPageSwitchesToAward(t *testing.T) {
	firstURL := fatBase + "?updatedFrom=2023-01-01&stages=tender&limit=100"
	f := &fakeFetcher{responses: map[string]string{
		firstURL: `{"releases": []}`,
	}}
	s := NewFindATender(f, fatBase, "2023-01-01")

	page, err := s.FetchPage(context.Background(), PageRequest{})
	require.NoError(t, err)
	assert.Empty(t, page.Releases)
	require.NotNil(t, page.NextCursor)
	assert.Equal(t, awardStageCursor, *page.NextCursor)
}

func TestFindATender_AwardCursorStartsAwardStream(t *testing.T) {
	awardURL := fatBase + "?updatedFrom=2023-01-01&stages=award&limit=100"
	f := &fakeFetcher{responses: map[string]string{
		awardURL: releasesBody("", "aw-1"),
	}}
	s := NewFindATender(f, fatBase, "2023-01-01")

	cursor := awardStageCursor
	page, err := s.FetchPage(context.Background(), PageRequest{Cursor: &cursor})
	require.NoError(t, err)
	assert.Len(t, page.Releases, 1)
	// Award stream exhausted: whole source is done.
	assert.Nil(t, page.NextCursor)
}

func TestFindATender_ResumedAwardURLStaysInAwardStream(t *testing.T) {
	// A crash can leave a full award-stage URL as the saved cursor. The
	// stage must come from the URL, not from in-memory state.
	cursor := fatBase + "?cursor=resume&stages=award"
	f := &fakeFetcher{responses: map[string]string{
		cursor: `{"releases": []}`,
	}}
	s := NewFindATender(f, fatBase, "2023-01-01")

	page, err := s.FetchPage(context.Background(), PageRequest{Cursor: &cursor})
	require.NoError(t, err)
	assert.Nil(t, page.NextCursor)
}

func TestFindATender_FetchErrorPropagates(t *testing.T) {
	f := &fakeFetcher{responses: map[string]string{}}
	s := NewFindATender(f, fatBase, "2023-01-01")

	_, err := s.FetchPage(context.Background(), PageRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "find a tender")
}

func TestContractsFinder_FirstPage(t *testing.T) {
	firstURL := cfBase + "?publishedFrom=2016-11-01&stages=tender,award&limit=100"
	f := &fakeFetcher{responses: map[string]string{
		firstURL: releasesBody(cfBase+"?cursor=tok", "cf-1"),
	}}
	s := NewContractsFinder(f, cfBase, "2016-11-01")

	page, err := s.FetchPage(context.Background(), PageRequest{})
	require.NoError(t, err)
	assert.Len(t, page.Releases, 1)
	require.NotNil(t, page.NextCursor)
	assert.Equal(t, cfBase+"?cursor=tok", *page.NextCursor)
}

func TestContractsFinder_FollowsCursorAndTerminates(t *testing.T) {
	cursor := cfBase + "?cursor=tok"
	f := &fakeFetcher{responses: map[string]string{
		cursor: releasesBody("", "cf-2"),
	}}
	s := NewContractsFinder(f, cfBase, "2016-11-01")

	page, err := s.FetchPage(context.Background(), PageRequest{Cursor: &cursor})
	require.NoError(t, err)
	assert.Len(t, page.Releases, 1)
	assert.Nil(t, page.NextCursor)
}

func TestContractsFinder_EmptyPageIsTerminal(t *testing.T) {
	firstURL := cfBase + "?publishedFrom=2016-11-01&stages=tender,award&limit=100"
	f := &fakeFetcher{responses: map[string]string{
		firstURL: `{"releases": []}`,
	}}
	s := NewContractsFinder(f, cfBase, "2016-11-01")

	page, err := s.FetchPage(context.Background(), PageRequest{})
	require.NoError(t, err)
	assert.Empty(t, page.Releases)
	assert.Nil(t, page.NextCursor)
}
