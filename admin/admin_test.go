package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/maxpert/commitlog-cdc/cfg"
	"github.com/maxpert/commitlog-cdc/codec"
	"github.com/maxpert/commitlog-cdc/event"
	"github.com/maxpert/commitlog-cdc/offset"
	"github.com/maxpert/commitlog-cdc/row"
	"github.com/maxpert/commitlog-cdc/schema"
	"github.com/maxpert/commitlog-cdc/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePipeline struct {
	stats []telemetry.QueueStats
	err   error
}

func (f *fakePipeline) QueueStats() []telemetry.QueueStats { return f.stats }
func (f *fakePipeline) Err() error                         { return f.err }

type fixture struct {
	router   chi.Router
	store    *offset.Store
	pipeline *fakePipeline
	schemas  *schema.Cached
	cdcDir   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := offset.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	static := schema.NewStatic()
	for _, id := range []schema.TableID{{Keyspace: "app", Table: "users"}, {Keyspace: "app", Table: "orders"}} {
		require.NoError(t, static.Put(id, []row.Column{{Name: "id", Type: codec.Native(codec.KindInt), Kind: row.Partition}}))
	}
	schemas, err := schema.NewCached(static, 8)
	require.NoError(t, err)

	f := &fixture{
		router:   chi.NewRouter(),
		store:    store,
		pipeline: &fakePipeline{},
		schemas:  schemas,
		cdcDir:   t.TempDir(),
	}
	RegisterRoutes(f.router, NewHandlers(store, f.pipeline, schemas, f.cdcDir))
	return f
}

func (f *fixture) do(t *testing.T, method, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var body map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func (f *fixture) touch(t *testing.T, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.cdcDir, name), []byte("x"), 0644))
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, http.MethodGet, "/admin/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["data"].(map[string]any)["status"])

	f.pipeline.err = errors.New("shard 0: sink unavailable")
	rec, body = f.do(t, http.MethodGet, "/admin/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "failed", body["status"])
	assert.Contains(t, body["error"], "sink unavailable")
}

func TestQueues(t *testing.T) {
	f := newFixture(t)
	f.pipeline.stats = []telemetry.QueueStats{
		{Shard: 0, Depth: 4, Capacity: 16},
		{Shard: 1, Depth: 0, Capacity: 16},
	}

	rec, body := f.do(t, http.MethodGet, "/admin/queues")
	require.Equal(t, http.StatusOK, rec.Code)

	queues := body["data"].([]any)
	require.Len(t, queues, 2)
	first := queues[0].(map[string]any)
	assert.Equal(t, float64(4), first["depth"])
	assert.Equal(t, 0.25, first["utilization"])
}

func TestOffsets_Pagination(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"CommitLog-7-1.log", "CommitLog-7-2.log", "CommitLog-7-3.log"} {
		require.NoError(t, f.store.MarkProcessed(event.Position{Segment: name, Offset: 9}))
	}

	rec, body := f.do(t, http.MethodGet, "/admin/offsets/?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["data"], 2)
	assert.Equal(t, true, body["has_more"])
	assert.Equal(t, "CommitLog-7-2.log", body["last_key"])

	rec, body = f.do(t, http.MethodGet, "/admin/offsets/?limit=2&from=CommitLog-7-2.log")
	require.Equal(t, http.StatusOK, rec.Code)
	page := body["data"].([]any)
	require.Len(t, page, 1)
	assert.Equal(t, "CommitLog-7-3.log", page[0].(map[string]any)["segment"])
	assert.NotContains(t, body, "has_more")

	rec, _ = f.do(t, http.MethodGet, "/admin/offsets/?limit=0")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOffsets_GetAndLatest(t *testing.T) {
	f := newFixture(t)

	rec, _ := f.do(t, http.MethodGet, "/admin/offsets/latest")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, f.store.MarkProcessed(event.Position{Segment: "/cdc/CommitLog-7-5.log", Offset: 120}))

	rec, body := f.do(t, http.MethodGet, "/admin/offsets/latest")
	require.Equal(t, http.StatusOK, rec.Code)
	latest := body["data"].(map[string]any)
	assert.Equal(t, "CommitLog-7-5.log", latest["segment"])
	assert.Equal(t, float64(120), latest["offset"])

	rec, body = f.do(t, http.MethodGet, "/admin/offsets/CommitLog-7-5.log")
	require.Equal(t, http.StatusOK, rec.Code)
	entry := body["data"].(map[string]any)
	assert.Equal(t, float64(120), entry["offset"])
	assert.Equal(t, false, entry["complete"])
	assert.NotEmpty(t, entry["updated_at"])

	rec, _ = f.do(t, http.MethodGet, "/admin/offsets/CommitLog-7-6.log")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/admin/offsets/passwd")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestForget(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.MarkSegmentComplete("CommitLog-7-8.log"))
	f.touch(t, "CommitLog-7-8.log")

	// Still pending, would be replayed
	rec, _ := f.do(t, http.MethodDelete, "/admin/offsets/CommitLog-7-8.log")
	assert.Equal(t, http.StatusConflict, rec.Code)
	_, ok, _ := f.store.Get("CommitLog-7-8.log")
	assert.True(t, ok)

	rec, _ = f.do(t, http.MethodDelete, "/admin/offsets/CommitLog-7-8.log?force=true")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	_, ok, _ = f.store.Get("CommitLog-7-8.log")
	assert.False(t, ok)
}

func TestPendingSegments(t *testing.T) {
	f := newFixture(t)
	f.touch(t, "CommitLog-7-20.log")
	f.touch(t, "CommitLog-7-10.log")
	f.touch(t, "CommitLog-7-10_cdc.idx")
	require.NoError(t, f.store.MarkProcessed(event.Position{Segment: "CommitLog-7-10.log", Offset: 3}))

	rec, body := f.do(t, http.MethodGet, "/admin/segments/pending")
	require.Equal(t, http.StatusOK, rec.Code)

	pending := body["data"].([]any)
	require.Len(t, pending, 2)
	oldest := pending[0].(map[string]any)
	assert.Equal(t, "CommitLog-7-10.log", oldest["segment"])
	assert.Equal(t, true, oldest["tracked"])
	assert.Equal(t, float64(3), oldest["offset"])
	newest := pending[1].(map[string]any)
	assert.Equal(t, false, newest["tracked"])
	assert.Equal(t, float64(-1), newest["offset"])

	require.NoError(t, os.RemoveAll(f.cdcDir))
	rec, _ = f.do(t, http.MethodGet, "/admin/segments/pending")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSchemaCache(t *testing.T) {
	f := newFixture(t)
	users := schema.TableID{Keyspace: "app", Table: "users"}
	orders := schema.TableID{Keyspace: "app", Table: "orders"}

	for _, id := range []schema.TableID{users, orders} {
		_, err := f.schemas.ColumnsOf(id)
		require.NoError(t, err)
	}

	rec, body := f.do(t, http.MethodGet, "/admin/schema/cache/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), body["data"].(map[string]any)["tables"])

	rec, _ = f.do(t, http.MethodDelete, "/admin/schema/cache/app.users")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, f.schemas.Len())

	rec, _ = f.do(t, http.MethodDelete, "/admin/schema/cache/users")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 1, f.schemas.Len())

	rec, _ = f.do(t, http.MethodDelete, "/admin/schema/cache/")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Zero(t, f.schemas.Len())

	// Invalidated tables reload from the provider
	_, err := f.schemas.ColumnsOf(users)
	require.NoError(t, err)
	assert.Equal(t, 1, f.schemas.Len())
}

func TestAuthMiddleware(t *testing.T) {
	original := cfg.Config.Admin.Secret
	defer func() { cfg.Config.Admin.Secret = original }()
	cfg.Config.Admin.Secret = "s3cret"

	f := newFixture(t)

	tests := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"wrong secret", "X-CDC-Secret", "nope", http.StatusUnauthorized},
		{"bad scheme", "Authorization", "Basic s3cret", http.StatusUnauthorized},
		{"header", "X-CDC-Secret", "s3cret", http.StatusOK},
		{"bearer", "Authorization", "Bearer s3cret", http.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/health", nil)
			if tc.header != "" {
				req.Header.Set(tc.header, tc.value)
			}
			rec := httptest.NewRecorder()
			f.router.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}
