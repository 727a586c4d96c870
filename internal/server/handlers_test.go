package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/okamoto/hr-dashboard/internal/config"
	"github.com/okamoto/hr-dashboard/internal/loader"
	"github.com/okamoto/hr-dashboard/internal/models"
	"github.com/okamoto/hr-dashboard/internal/store"
	"github.com/okamoto/hr-dashboard/internal/transformer"
	"github.com/okamoto/hr-dashboard/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubFetcher struct {
	mu      sync.Mutex
	users   []models.SourceUser
	err     error
	release chan struct{}
}

func (f *stubFetcher) FetchUsers(ctx context.Context) ([]models.SourceUser, error) {
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users, f.err
}

type stubChecker struct{ err error }

func (c stubChecker) HealthCheck(context.Context) error { return c.err }

type stubStats struct{}

func (stubStats) Stats() worker.PoolStats { return worker.PoolStats{QueueSize: 16, Persisted: 3} }

type testEnv struct {
	store   *store.Store
	loader  *loader.Loader
	subs    *SubscriberManager
	handler *Handler
	routes  http.Handler
}

func newTestEnv(t *testing.T, fetcher loader.Fetcher) *testEnv {
	t.Helper()
	logger := zap.NewNop()

	synth, err := transformer.NewRandomSynthesizer(42, logger)
	require.NoError(t, err)

	st := store.New(store.Options{}, nil, nil, logger)
	ld := loader.New(&config.LoaderConfig{Timeout: 5 * time.Second}, fetcher, synth, st, logger)
	t.Cleanup(ld.Close)

	subs := NewSubscriberManager(10, logger)
	h := NewHandler(Deps{
		Store:       st,
		Loader:      ld,
		Subscribers: subs,
		Persistence: stubStats{},
		Health:      map[string]HealthChecker{"database": stubChecker{}},
		Heartbeat:   time.Second,
		Logger:      logger,
	})
	h.now = func() time.Time { return time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC) }

	return &testEnv{store: st, loader: ld, subs: subs, handler: h, routes: h.Routes()}
}

func (e *testEnv) seed() {
	e.store.SetEmployees([]models.Employee{
		{ID: 1, FirstName: "Emily", LastName: "Johnson", Email: "emily@x.dummyjson.com", Department: models.DepartmentEngineering, Performance: 4},
		{ID: 2, FirstName: "Michael", LastName: "Williams", Email: "michael@acme.io", Department: models.DepartmentHR, Performance: 5},
		{ID: 3, FirstName: "Sophia", LastName: "Brown", Email: "sophia@x.dummyjson.com", Department: models.DepartmentEngineering, Performance: 2},
	})
}

func (e *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.routes.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, &stubFetcher{})
	rec := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","checks":{"database":"ok"}}`, rec.Body.String())

	env.handler.health["database"] = stubChecker{err: errors.New("locked")}
	rec = env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"degraded","checks":{"database":"unhealthy"}}`, rec.Body.String())
}

func TestLoadAndStatus(t *testing.T) {
	env := newTestEnv(t, &stubFetcher{users: []models.SourceUser{{ID: 1, FirstName: "A"}, {ID: 2, FirstName: "B"}}})

	rec := env.do(t, http.MethodGet, "/api/status", "")
	status := decode[StatusResponse](t, rec)
	assert.Equal(t, models.StatusNotStarted, status.Load.Status)
	require.NotNil(t, status.Persistence)
	assert.Equal(t, uint64(3), status.Persistence.Persisted)

	rec = env.do(t, http.MethodPost, "/api/load", "")
	require.Equal(t, http.StatusOK, rec.Code)
	state := decode[models.LoadState](t, rec)
	assert.Equal(t, models.StatusLoaded, state.Status)

	status = decode[StatusResponse](t, env.do(t, http.MethodGet, "/api/status", ""))
	assert.Equal(t, 2, status.Employees)
	assert.Equal(t, uint64(1), status.Revision)
	assert.Empty(t, status.Streams)

	sub, err := env.subs.Register("10.0.0.7:41000")
	require.NoError(t, err)
	status = decode[StatusResponse](t, env.do(t, http.MethodGet, "/api/status", ""))
	assert.Equal(t, 1, status.Subscribers)
	require.Len(t, status.Streams, 1)
	assert.Equal(t, sub.ID, status.Streams[0].ID)
	assert.Equal(t, "10.0.0.7:41000", status.Streams[0].RemoteAddr)
}

func TestLoad_FailureGatesViews(t *testing.T) {
	env := newTestEnv(t, &stubFetcher{err: errors.New("dial tcp: refused")})

	rec := env.do(t, http.MethodPost, "/api/load", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"error":"Failed to fetch employees"}`, rec.Body.String())

	for _, path := range []string{"/api/employees", "/api/employees/1", "/api/bookmarks", "/api/analytics"} {
		rec = env.do(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusBadGateway, rec.Code, path)
		assert.JSONEq(t, `{"error":"Failed to fetch employees"}`, rec.Body.String(), path)
	}
}

func TestLoading_Returns503(t *testing.T) {
	f := &stubFetcher{users: []models.SourceUser{{ID: 1}}, release: make(chan struct{})}
	env := newTestEnv(t, f)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = env.loader.Load(context.Background())
	}()
	require.Eventually(t, func() bool { return env.loader.State().Loading }, time.Second, 5*time.Millisecond)

	rec := env.do(t, http.MethodGet, "/api/employees", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"loading"}`, rec.Body.String())

	close(f.release)
	<-done
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/employees", "").Code)
}

func TestNotStarted_FirstViewStartsLoad(t *testing.T) {
	f := &stubFetcher{users: []models.SourceUser{{ID: 1, FirstName: "A"}, {ID: 2, FirstName: "B"}}, release: make(chan struct{})}
	env := newTestEnv(t, f)
	require.Equal(t, models.StatusNotStarted, env.loader.State().Status)

	for _, path := range []string{"/api/employees", "/api/bookmarks", "/api/analytics"} {
		rec := env.do(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
		assert.JSONEq(t, `{"status":"loading"}`, rec.Body.String(), path)
	}
	require.Eventually(t, func() bool { return env.loader.State().Loading }, time.Second, 5*time.Millisecond)

	close(f.release)
	require.Eventually(t, func() bool { return env.loader.State().Status == models.StatusLoaded }, time.Second, 5*time.Millisecond)

	rec := env.do(t, http.MethodGet, "/api/employees", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[EmployeeListResponse](t, rec).Employees, 2)
}

func TestNotStarted_HydratedStoreIsServed(t *testing.T) {
	env := newTestEnv(t, &stubFetcher{err: errors.New("unreachable")})
	env.seed()

	rec := env.do(t, http.MethodGet, "/api/employees", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.StatusNotStarted, env.loader.State().Status)
}

func TestListEmployees(t *testing.T) {
	env := newTestEnv(t, &stubFetcher{})
	env.seed()
	env.store.AddBookmark(3)

	resp := decode[EmployeeListResponse](t, env.do(t, http.MethodGet, "/api/employees", ""))
	assert.Len(t, resp.Employees, 3)
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, []models.Department{models.DepartmentEngineering, models.DepartmentHR}, resp.Departments)
	assert.Zero(t, resp.ActiveFilters)
	assert.True(t, resp.Employees[2].Bookmarked)

	resp = decode[EmployeeListResponse](t, env.do(t, http.MethodGet, "/api/employees?q=dummyjson&department=Engineering&rating=2,4", ""))
	require.Len(t, resp.Employees, 2)
	assert.Equal(t, 1, resp.Employees[0].ID)
	assert.Equal(t, 3, resp.Employees[1].ID)
	assert.Equal(t, 4, resp.ActiveFilters)

	resp = decode[EmployeeListResponse](t, env.do(t, http.MethodGet, "/api/employees?q=ACME.IO", ""))
	require.Len(t, resp.Employees, 1)
	assert.Equal(t, 2, resp.Employees[0].ID)
}

func TestListEmployees_InvalidCriteria(t *testing.T) {
	env := newTestEnv(t, &stubFetcher{})
	env.seed()

	for _, query := range []string{"rating=abc", "rating=6", "department=Legal"} {
		rec := env.do(t, http.MethodGet, "/api/employees?"+query, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, query)
	}
}

func TestGetEmployee(t *testing.T) {
	env := newTestEnv(t, &stubFetcher{})
	env.seed()

	rec := env.do(t, http.MethodGet, "/api/employees/2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[EmployeeDetailResponse](t, rec)
	assert.Equal(t, "Michael", detail.Employee.FirstName)
	assert.Equal(t, "5 Stars", detail.RatingLabel)
	assert.Equal(t, "blue", detail.PerformanceTone)
	assert.False(t, detail.Bookmarked)

	rec = env.do(t, http.MethodGet, "/api/employees/99", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Employee not found"}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/employees/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFeedback(t *testing.T) {
	env := newTestEnv(t, &stubFetcher{})
	env.seed()

	rec := env.do(t, http.MethodPost, "/api/employees/1/feedback", `{"rating":3,"comment":"solid quarter"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	emp := decode[models.Employee](t, rec)
	require.NotEmpty(t, emp.PerformanceHistory)
	assert.Equal(t, models.PerformanceRecord{Date: "2024-06-15", Rating: 3, Comment: "solid quarter"}, emp.PerformanceHistory[0])
	assert.Equal(t, 4, emp.Performance)

	tests := []struct {
		name   string
		target string
		body   string
		want   int
	}{
		{"rating too high", "/api/employees/1/feedback", `{"rating":6}`, http.StatusBadRequest},
		{"rating missing", "/api/employees/1/feedback", `{"comment":"hi"}`, http.StatusBadRequest},
		{"unknown field", "/api/employees/1/feedback", `{"rating":3,"stars":3}`, http.StatusBadRequest},
		{"malformed", "/api/employees/1/feedback", `{`, http.StatusBadRequest},
		{"unknown employee", "/api/employees/99/feedback", `{"rating":3}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, tt.target, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestBookmarkCommands(t *testing.T) {
	env := newTestEnv(t, &stubFetcher{})
	env.seed()

	resp := decode[BookmarkResponse](t, env.do(t, http.MethodPut, "/api/bookmarks/2", ""))
	assert.Equal(t, BookmarkResponse{ID: 2, Bookmarked: true, Changed: true}, resp)

	resp = decode[BookmarkResponse](t, env.do(t, http.MethodPut, "/api/bookmarks/2", ""))
	assert.False(t, resp.Changed)

	env.do(t, http.MethodPut, "/api/bookmarks/77", "")
	list := decode[BookmarksResponse](t, env.do(t, http.MethodGet, "/api/bookmarks", ""))
	assert.Equal(t, []int{2, 77}, list.IDs)
	require.Len(t, list.Employees, 1)
	assert.Equal(t, 2, list.Employees[0].ID)

	resp = decode[BookmarkResponse](t, env.do(t, http.MethodDelete, "/api/bookmarks/2", ""))
	assert.Equal(t, BookmarkResponse{ID: 2, Bookmarked: false, Changed: true}, resp)

	resp = decode[BookmarkResponse](t, env.do(t, http.MethodPost, "/api/bookmarks/3/toggle", ""))
	assert.True(t, resp.Bookmarked)
	resp = decode[BookmarkResponse](t, env.do(t, http.MethodPost, "/api/bookmarks/3/toggle", ""))
	assert.False(t, resp.Bookmarked)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPut, "/api/bookmarks/x", "").Code)
}

func TestAnalytics(t *testing.T) {
	env := newTestEnv(t, &stubFetcher{})
	env.seed()
	env.store.AddBookmark(1)

	rec := env.do(t, http.MethodGet, "/api/analytics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[AnalyticsResponse](t, rec)

	require.Len(t, resp.Departments, 2)
	assert.Equal(t, models.DepartmentEngineering, resp.Departments[0].Department)
	assert.InDelta(t, 3.0, resp.Departments[0].Average, 1e-9)
	assert.Equal(t, 3, resp.Summary.TotalEmployees)
	assert.Equal(t, 1, resp.Summary.TotalBookmarks)
	assert.Equal(t, "3.7", resp.AverageDisplay)
	require.Len(t, resp.BookmarkTrends, 6)
	assert.Equal(t, "Jun", resp.BookmarkTrends[5].Month)
}

func TestAnalytics_EmptyAverageIsNull(t *testing.T) {
	env := newTestEnv(t, &stubFetcher{users: []models.SourceUser{}})
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/load", "").Code)

	rec := env.do(t, http.MethodGet, "/api/analytics", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var raw struct {
		Summary map[string]any `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.Contains(t, raw.Summary, "averagePerformance")
	assert.Nil(t, raw.Summary["averagePerformance"])
	assert.EqualValues(t, 0, raw.Summary["totalEmployees"])
}

func TestRecover(t *testing.T) {
	env := newTestEnv(t, &stubFetcher{})
	h := env.handler.withRecover(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
