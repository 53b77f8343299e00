package downloader

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"collectordl/pkg/logger"
	"collectordl/pkg/mirror"
	"collectordl/pkg/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockMirrorServer serves .osz archives under /primary/<id> and
// /alternate/<id> with configurable failures
type mockMirrorServer struct {
	server         *httptest.Server
	requestCount   int32
	rateLimitHits  int32
	rateLimitLeft  int32
	errorResponses map[string]int // "primary/<id>" or "alternate/<id>" to status
	authHeaders    []string
	mu             sync.RWMutex
}

func newMockMirrorServer() *mockMirrorServer {
	m := &mockMirrorServer{errorResponses: make(map[string]int)}

	mux := http.NewServeMux()
	mux.HandleFunc("/primary/", m.handleDownload)
	mux.HandleFunc("/alternate/", m.handleDownload)

	m.server = httptest.NewServer(mux)
	return m
}

func (m *mockMirrorServer) handleDownload(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&m.requestCount, 1)

	m.mu.Lock()
	m.authHeaders = append(m.authHeaders, r.Header.Get("Authorization"))
	m.mu.Unlock()

	key := strings.TrimPrefix(r.URL.Path, "/")
	id, err := strconv.Atoi(key[strings.LastIndex(key, "/")+1:])
	if err != nil {
		http.NotFound(w, r)
		return
	}

	if atomic.AddInt32(&m.rateLimitLeft, -1) >= 0 {
		atomic.AddInt32(&m.rateLimitHits, 1)
		w.Header().Set("Retry-After", "60")
		w.WriteHeader(http.StatusTooManyRequests)
		return
	}

	m.mu.RLock()
	code := m.errorResponses[key]
	m.mu.RUnlock()
	if code > 0 {
		http.Error(w, http.StatusText(code), code)
		return
	}

	w.Header().Set("Content-Type", "application/x-osu-beatmap-archive")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%d Artist - Title %d.osz"`, id, id))
	fmt.Fprintf(w, "osz-%d", id)
}

func (m *mockMirrorServer) SetErrorResponse(path string, code int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorResponses[path] = code
}

// EnableRateLimitForRequests answers the next count requests with 429
func (m *mockMirrorServer) EnableRateLimitForRequests(count int) {
	atomic.StoreInt32(&m.rateLimitLeft, int32(count))
}

func (m *mockMirrorServer) GetRequestCount() int {
	return int(atomic.LoadInt32(&m.requestCount))
}

func (m *mockMirrorServer) GetRateLimitHits() int {
	return int(atomic.LoadInt32(&m.rateLimitHits))
}

func (m *mockMirrorServer) Close() {
	m.server.Close()
}

func (m *mockMirrorServer) client(tokens mirror.TokenSource) *mirror.Client {
	return mirror.NewClient(mirror.Options{
		Primary:   m.server.URL + "/primary/%d",
		Alternate: m.server.URL + "/alternate/%d",
		Timeout:   5 * time.Second,
		Tokens:    tokens,
	}, logger.NewNopLogger())
}

type staticTokens map[string]string

func (s staticTokens) Token(host string) (string, error) {
	return s[host], nil
}

func runAgainstMirror(t *testing.T, srv *mockMirrorServer, tokens mirror.TokenSource, opts Options, dir string, ids ...int) (*recorder, error) {
	t.Helper()
	rec := &recorder{}
	store := storage.NewManager(dir, logger.NewNopLogger())
	o := New(srv.client(tokens), store, opts, rec, logger.NewNopLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := o.Run(ctx, collectionOf(ids...))
	if err == nil {
		require.NotNil(t, result)
		assert.Equal(t, len(ids), result.Terminal())
	}
	return rec, err
}

func TestIntegrationDownloadsCollection(t *testing.T) {
	srv := newMockMirrorServer()
	defer srv.Close()

	dir := filepath.Join(t.TempDir(), "Tech Maps")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "2 Already Here.osz"), []byte("x"), 0644))

	rec, err := runAgainstMirror(t, srv, nil, testOptions(), dir, 1, 2, 3)
	require.NoError(t, err)

	assert.Equal(t, 2, rec.count(EventDownloaded))
	assert.Equal(t, 1, rec.count(EventSkipped))
	assert.Equal(t, 2, srv.GetRequestCount(), "existing archive must not be requested")

	for _, id := range []int{1, 3} {
		content, err := os.ReadFile(filepath.Join(dir, fmt.Sprintf("%d Artist - Title %d.osz", id, id)))
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("osz-%d", id), string(content))
	}
}

func TestIntegrationRateLimitThenRecover(t *testing.T) {
	srv := newMockMirrorServer()
	defer srv.Close()
	srv.EnableRateLimitForRequests(3)

	opts := testOptions()
	opts.MaxRetries = 0

	rec, err := runAgainstMirror(t, srv, nil, opts, t.TempDir(), 10, 11)
	require.NoError(t, err)

	assert.Equal(t, 3, srv.GetRateLimitHits())
	assert.Equal(t, 2, rec.count(EventDownloaded), "rate limits never consume the retry budget")
	assert.Zero(t, rec.count(EventError))
}

func TestIntegrationFallsBackToAlternate(t *testing.T) {
	srv := newMockMirrorServer()
	defer srv.Close()
	srv.SetErrorResponse("primary/42", http.StatusInternalServerError)

	opts := testOptions()
	opts.MaxRetries = 1
	dir := t.TempDir()

	rec, err := runAgainstMirror(t, srv, nil, opts, dir, 42)
	require.NoError(t, err)

	assert.Equal(t, 1, rec.count(EventRetrying))
	require.Equal(t, 1, rec.count(EventDownloaded))
	assert.FileExists(t, filepath.Join(dir, "42 Artist - Title 42.osz"))
}

func TestIntegrationPermanentFailure(t *testing.T) {
	srv := newMockMirrorServer()
	defer srv.Close()
	srv.SetErrorResponse("primary/7", http.StatusNotFound)
	srv.SetErrorResponse("alternate/7", http.StatusNotFound)

	opts := testOptions()
	opts.MaxRetries = 2

	rec, err := runAgainstMirror(t, srv, nil, opts, t.TempDir(), 7)
	require.NoError(t, err, "failed targets are part of the result")

	assert.Equal(t, 3, srv.GetRequestCount())
	assert.Equal(t, 1, rec.count(EventError))
}

func TestIntegrationSendsMirrorToken(t *testing.T) {
	srv := newMockMirrorServer()
	defer srv.Close()

	host := mirror.HostOf(srv.server.URL)
	_, err := runAgainstMirror(t, srv, staticTokens{host: "secret"}, testOptions(), t.TempDir(), 5)
	require.NoError(t, err)

	srv.mu.RLock()
	defer srv.mu.RUnlock()
	require.Len(t, srv.authHeaders, 1)
	assert.Equal(t, "Bearer secret", srv.authHeaders[0])
}
