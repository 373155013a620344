package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelayedFetcher_PausesAfterEachRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	var slept []time.Duration
	d := NewDelayedFetcher(newTestFetcher(HTTPOptions{}), 10*time.Second)
	d.sleep = func(ctx context.Context, dur time.Duration) { slept = append(slept, dur) }

	var out map[string]any
	require.NoError(t, d.GetJSON(context.Background(), srv.URL, &out))
	require.NoError(t, d.GetJSON(context.Background(), srv.URL, &out))

	assert.Equal(t, []time.Duration{10 * time.Second, 10 * time.Second}, slept)
}

func TestDelayedFetcher_PausesOnFailureToo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	var slept int
	d := NewDelayedFetcher(newTestFetcher(HTTPOptions{}), time.Second)
	d.sleep = func(ctx context.Context, dur time.Duration) { slept++ }

	var out map[string]any
	err := d.GetJSON(context.Background(), srv.URL, &out)
	require.Error(t, err)
	assert.Equal(t, 1, slept)
}
