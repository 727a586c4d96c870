package server

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/okamoto/hr-dashboard/internal/loader"
	"github.com/okamoto/hr-dashboard/internal/models"
	"github.com/okamoto/hr-dashboard/internal/store"
	"github.com/okamoto/hr-dashboard/internal/views"
	"github.com/okamoto/hr-dashboard/internal/worker"
	"go.uber.org/zap"
)

const maxBodyBytes = 64 << 10

// HealthChecker is a dependency probed by /health
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// StatsProvider reports persistence worker statistics
type StatsProvider interface {
	Stats() worker.PoolStats
}

// Deps are the collaborators the handlers read from and write to
type Deps struct {
	Store       *store.Store
	Loader      *loader.Loader
	Subscribers *SubscriberManager
	Persistence StatsProvider
	Health      map[string]HealthChecker
	Heartbeat   time.Duration
	Logger      *zap.Logger
}

// Handler serves the dashboard routes
type Handler struct {
	store       *store.Store
	loader      *loader.Loader
	subs        *SubscriberManager
	persistence StatsProvider
	health      map[string]HealthChecker
	heartbeat   time.Duration
	validate    *validator.Validate
	logger      *zap.Logger
	now         func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewHandler creates the route handler
func NewHandler(d Deps) *Handler {
	heartbeat := d.Heartbeat
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	seed := uint64(time.Now().UnixNano())

	return &Handler{
		store:       d.Store,
		loader:      d.Loader,
		subs:        d.Subscribers,
		persistence: d.Persistence,
		health:      d.Health,
		heartbeat:   heartbeat,
		validate:    validator.New(),
		logger:      d.Logger,
		now:         time.Now,
		rng:         rand.New(rand.NewPCG(seed, seed>>1|1)),
	}
}

// Routes builds the router with middleware applied
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /api/status", h.handleStatus)
	mux.HandleFunc("POST /api/load", h.handleLoad)

	mux.HandleFunc("GET /api/employees", h.handleListEmployees)
	mux.HandleFunc("GET /api/employees/{id}", h.handleGetEmployee)
	mux.HandleFunc("POST /api/employees/{id}/feedback", h.handleFeedback)

	mux.HandleFunc("GET /api/bookmarks", h.handleListBookmarks)
	mux.HandleFunc("PUT /api/bookmarks/{id}", h.handleAddBookmark)
	mux.HandleFunc("DELETE /api/bookmarks/{id}", h.handleRemoveBookmark)
	mux.HandleFunc("POST /api/bookmarks/{id}/toggle", h.handleToggleBookmark)

	mux.HandleFunc("GET /api/analytics", h.handleAnalytics)
	mux.HandleFunc("GET /api/events", h.handleEvents)

	return h.withRecover(h.withLogging(mux))
}

// EmployeeItem is an employee annotated with its bookmark flag
type EmployeeItem struct {
	models.Employee
	Bookmarked bool `json:"bookmarked"`
}

// EmployeeListResponse is the dashboard view
type EmployeeListResponse struct {
	Employees     []EmployeeItem      `json:"employees"`
	Total         int                 `json:"total"`
	Departments   []models.Department `json:"departments"`
	Criteria      views.Criteria      `json:"criteria"`
	ActiveFilters int                 `json:"activeFilters"`
}

// EmployeeDetailResponse is the detail view
type EmployeeDetailResponse struct {
	Employee        models.Employee `json:"employee"`
	Bookmarked      bool            `json:"bookmarked"`
	RatingLabel     string          `json:"ratingLabel"`
	PerformanceTone string          `json:"performanceTone"`
}

// BookmarksResponse is the bookmarks view
type BookmarksResponse struct {
	Employees []models.Employee `json:"employees"`
	IDs       []int             `json:"ids"`
}

// BookmarkResponse is returned by bookmark commands
type BookmarkResponse struct {
	ID         int  `json:"id"`
	Bookmarked bool `json:"bookmarked"`
	Changed    bool `json:"changed"`
}

// AnalyticsResponse is the analytics view
type AnalyticsResponse struct {
	Departments    []views.DepartmentAverage `json:"departments"`
	Summary        views.Summary             `json:"summary"`
	AverageDisplay string                    `json:"averageDisplay"`
	BookmarkTrends []views.TrendPoint        `json:"bookmarkTrends"`
}

// StatusResponse is the service status
type StatusResponse struct {
	Load        models.LoadState        `json:"load"`
	Revision    uint64                  `json:"revision"`
	Employees   int                     `json:"employees"`
	Bookmarks   int                     `json:"bookmarks"`
	Subscribers int                     `json:"subscribers"`
	Streams     []models.SubscriberInfo `json:"streams"`
	Persistence *worker.PoolStats       `json:"persistence,omitempty"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.health))
	status := http.StatusOK

	for name, checker := range h.health {
		if err := checker.HealthCheck(r.Context()); err != nil {
			h.logger.Warn("health check failed", zap.String("component", name), zap.Error(err))
			checks[name] = "unhealthy"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	h.jsonResponse(w, status, map[string]any{"status": overall, "checks": checks})
}

func (h *Handler) handleStatus(w http.ResponseWriter, _ *http.Request) {
	snap := h.store.Snapshot()
	resp := StatusResponse{
		Load:        h.loader.State(),
		Revision:    snap.Revision,
		Employees:   len(snap.Employees),
		Bookmarks:   len(snap.Bookmarks),
		Subscribers: h.subs.Count(),
		Streams:     h.subs.All(),
	}
	if h.persistence != nil {
		stats := h.persistence.Stats()
		resp.Persistence = &stats
	}
	h.jsonResponse(w, http.StatusOK, resp)
}

func (h *Handler) handleLoad(w http.ResponseWriter, r *http.Request) {
	state, err := h.loader.Load(r.Context())
	switch {
	case err == nil:
		h.jsonResponse(w, http.StatusOK, state)
	case errors.Is(err, loader.ErrClosed):
		h.errorResponse(w, err)
	case state.Status == models.StatusFailed:
		h.jsonResponse(w, http.StatusBadGateway, map[string]string{"error": loader.FetchErrorMessage})
	default:
		h.logger.Warn("load request ended early", zap.Error(err))
		h.jsonResponse(w, http.StatusAccepted, state)
	}
}

// gate answers list routes while the collection is not usable. The first
// view request on an empty store starts the load, like opening the dashboard.
func (h *Handler) gate(w http.ResponseWriter) bool {
	state := h.loader.State()
	switch {
	case state.Status == models.StatusNotStarted && h.store.EmployeeCount() == 0:
		go h.startLoad()
		h.jsonResponse(w, http.StatusServiceUnavailable, map[string]string{"status": "loading"})
		return false
	case state.Loading:
		h.jsonResponse(w, http.StatusServiceUnavailable, map[string]string{"status": "loading"})
		return false
	case state.Status == models.StatusFailed && h.store.EmployeeCount() == 0:
		h.jsonResponse(w, http.StatusBadGateway, map[string]string{"error": state.Error})
		return false
	}
	return true
}

// startLoad runs the loader detached from any request. Concurrent calls
// share one fetch; Close on the loader ends it.
func (h *Handler) startLoad() {
	if _, err := h.loader.Load(context.Background()); err != nil && !errors.Is(err, loader.ErrClosed) {
		h.logger.Warn("background load failed", zap.Error(err))
	}
}

func (h *Handler) handleListEmployees(w http.ResponseWriter, r *http.Request) {
	if !h.gate(w) {
		return
	}

	criteria, err := h.parseCriteria(r)
	if err != nil {
		h.errorResponse(w, err)
		return
	}

	snap := h.store.Snapshot()
	filtered := views.Filter(snap.Employees, criteria)

	items := make([]EmployeeItem, 0, len(filtered))
	for _, e := range filtered {
		items = append(items, EmployeeItem{Employee: e, Bookmarked: slices.Contains(snap.Bookmarks, e.ID)})
	}

	h.jsonResponse(w, http.StatusOK, EmployeeListResponse{
		Employees:     items,
		Total:         len(snap.Employees),
		Departments:   views.Departments(snap.Employees),
		Criteria:      criteria,
		ActiveFilters: criteria.ActiveCount(),
	})
}

func (h *Handler) handleGetEmployee(w http.ResponseWriter, r *http.Request) {
	if !h.gate(w) {
		return
	}

	id, err := pathID(r)
	if err != nil {
		h.errorResponse(w, err)
		return
	}

	snap := h.store.Snapshot()
	emp, ok := views.FindEmployee(snap.Employees, id)
	if !ok {
		h.errorResponse(w, store.ErrEmployeeNotFound)
		return
	}

	h.jsonResponse(w, http.StatusOK, EmployeeDetailResponse{
		Employee:        emp,
		Bookmarked:      slices.Contains(snap.Bookmarks, id),
		RatingLabel:     views.RatingLabel(emp.Performance),
		PerformanceTone: views.PerformanceTone(emp.Performance),
	})
}

func (h *Handler) handleFeedback(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.errorResponse(w, err)
		return
	}

	var feedback models.Feedback
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&feedback); err != nil {
		h.errorResponse(w, &ValidationError{Field: "body", Message: "invalid JSON: " + err.Error()})
		return
	}

	emp, err := h.store.SubmitFeedback(id, feedback, h.now())
	if err != nil {
		h.errorResponse(w, fromValidator(err))
		return
	}

	h.jsonResponse(w, http.StatusCreated, emp)
}

func (h *Handler) handleListBookmarks(w http.ResponseWriter, _ *http.Request) {
	if !h.gate(w) {
		return
	}

	snap := h.store.Snapshot()
	h.jsonResponse(w, http.StatusOK, BookmarksResponse{
		Employees: views.Bookmarked(snap.Employees, snap.Bookmarks),
		IDs:       snap.Bookmarks,
	})
}

func (h *Handler) handleAddBookmark(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.errorResponse(w, err)
		return
	}

	added := h.store.AddBookmark(id)
	h.jsonResponse(w, http.StatusOK, BookmarkResponse{ID: id, Bookmarked: true, Changed: added})
}

func (h *Handler) handleRemoveBookmark(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.errorResponse(w, err)
		return
	}

	removed := h.store.RemoveBookmark(id)
	h.jsonResponse(w, http.StatusOK, BookmarkResponse{ID: id, Bookmarked: false, Changed: removed > 0})
}

func (h *Handler) handleToggleBookmark(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.errorResponse(w, err)
		return
	}

	bookmarked := h.store.ToggleBookmark(id)
	h.jsonResponse(w, http.StatusOK, BookmarkResponse{ID: id, Bookmarked: bookmarked, Changed: true})
}

func (h *Handler) handleAnalytics(w http.ResponseWriter, _ *http.Request) {
	if !h.gate(w) {
		return
	}

	snap := h.store.Snapshot()
	summary := views.Summarize(snap.Employees, snap.Bookmarks)

	h.rngMu.Lock()
	trends := views.BookmarkTrends(h.now(), h.rng)
	h.rngMu.Unlock()

	h.jsonResponse(w, http.StatusOK, AnalyticsResponse{
		Departments:    views.DepartmentAverages(snap.Employees),
		Summary:        summary,
		AverageDisplay: summary.AverageText(),
		BookmarkTrends: trends,
	})
}

// parseCriteria reads q, department and rating. department and rating may
// repeat or hold comma-separated values.
func (h *Handler) parseCriteria(r *http.Request) (views.Criteria, error) {
	q := r.URL.Query()
	criteria := views.Criteria{Query: q.Get("q")}

	for _, d := range splitValues(q["department"]) {
		criteria.Departments = append(criteria.Departments, models.Department(d))
	}
	for _, raw := range splitValues(q["rating"]) {
		rating, err := strconv.Atoi(raw)
		if err != nil {
			return views.Criteria{}, &ValidationError{Field: "rating", Message: "must be an integer"}
		}
		criteria.Ratings = append(criteria.Ratings, rating)
	}

	if err := h.validate.Struct(criteria); err != nil {
		return views.Criteria{}, fromValidator(err)
	}
	return criteria, nil
}

func splitValues(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func pathID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		return 0, &ValidationError{Field: "id", Message: "must be an integer"}
	}
	return id, nil
}

// jsonResponse writes a JSON response
func (h *Handler) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

// errorResponse maps err to a status code and writes {"error": ...}
func (h *Handler) errorResponse(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	h.jsonResponse(w, status, map[string]string{"error": errorMessage(err)})
}
