package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	errs "collectordl/pkg/errors"
	"collectordl/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const collectionJSON = `{
	"id": 42,
	"name": "Stream Practice",
	"uploader": {"username": "mapper"},
	"beatmapsets": [
		{"id": 100, "artist": "Camellia", "title": "Ghost"},
		{"id": 200, "title": "Untitled"},
		{"id": 100, "artist": "Camellia", "title": "Ghost"},
		{"id": 0}
	]
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *logger.TestLogger) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	testLog := logger.NewTestLogger()
	client := NewClient(Options{
		BaseURL:    server.URL + "/",
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
	}, testLog)
	return client, testLog
}

func TestGetCollection(t *testing.T) {
	client, testLog := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/collections/42", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, collectionJSON)
	})

	collection, err := client.GetCollection(context.Background(), 42)
	require.NoError(t, err)

	assert.Equal(t, 42, collection.ID)
	assert.Equal(t, "Stream Practice", collection.Name)
	assert.Equal(t, "mapper", collection.Uploader)
	require.Len(t, collection.Targets, 2)
	assert.Equal(t, 100, collection.Targets[0].ID)
	assert.Equal(t, "Camellia - Ghost", collection.Targets[0].DisplayName)
	assert.Equal(t, "Untitled", collection.Targets[1].DisplayName)
	assert.True(t, testLog.HasMessage("Collection fetched"))
}

func TestGetCollectionNotFound(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	_, err := client.GetCollection(context.Background(), 1)
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeNotFound, errs.TypeOf(err))
}

func TestGetCollectionRetriesServerErrors(t *testing.T) {
	var calls int32
	client, testLog := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, collectionJSON)
	})

	collection, err := client.GetCollection(context.Background(), 42)
	require.NoError(t, err)
	assert.Len(t, collection.Targets, 2)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, 2, testLog.Count("WARN", "Retrying HTTP request"))
	assert.Equal(t, 2, testLog.Count("WARN", "HTTP request server error"))
	assert.Len(t, testLog.ByLevel("WARN"), 4)
}

func TestGetCollectionGivesUp(t *testing.T) {
	var calls int32
	client, testLog := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.GetCollection(context.Background(), 42)
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeServerError, errs.TypeOf(err))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.True(t, testLog.HasMessage("Max retries exceeded"))
}

func TestGetCollectionBadJSON(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "{not json")
	})

	_, err := client.GetCollection(context.Background(), 42)
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeParsing, errs.TypeOf(err))
}

func TestGetCollectionCancelled(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	client.retryDelay = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.GetCollection(ctx, 42)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGetCollectionFallsBackToRequestedID(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"name": "no id", "beatmapsets": [{"id": 5}]}`)
	})

	collection, err := client.GetCollection(context.Background(), 77)
	require.NoError(t, err)
	assert.Equal(t, 77, collection.ID)
}

func TestFromIDs(t *testing.T) {
	collection := FromIDs("ad-hoc", []int{3, 1, 3, -2, 0, 2})

	assert.Equal(t, "ad-hoc", collection.Name)
	require.Len(t, collection.Targets, 3)
	assert.Equal(t, 3, collection.Targets[0].ID)
	assert.Equal(t, 1, collection.Targets[1].ID)
	assert.Equal(t, 2, collection.Targets[2].ID)
}

func TestCollectionURL(t *testing.T) {
	client := NewClient(Options{BaseURL: "https://example.com/"}, logger.NewNopLogger())
	assert.Equal(t, "https://example.com/api/collections/9", client.CollectionURL(9))
}
