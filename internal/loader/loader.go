// Package loader fetches the employee collection from the external source
// once per session and writes it into the record store.
package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okamoto/hr-dashboard/internal/config"
	"github.com/okamoto/hr-dashboard/internal/models"
	"github.com/okamoto/hr-dashboard/internal/transformer"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// FetchErrorMessage is the only failure text surfaced to users
const FetchErrorMessage = "Failed to fetch employees"

var (
	// ErrClosed is returned once the loader has been closed
	ErrClosed = errors.New("loader closed")
	// ErrStale is returned when a fetch finished after it was superseded
	ErrStale = errors.New("stale load result discarded")
)

// Fetcher retrieves the raw user listing
type Fetcher interface {
	FetchUsers(ctx context.Context) ([]models.SourceUser, error)
}

// Target receives the loaded employees
type Target interface {
	EmployeeCount() int
	SetEmployees(employees []models.Employee)
}

// Loader runs the one-shot employee load
type Loader struct {
	fetcher     Fetcher
	synthesizer transformer.Synthesizer
	target      Target
	timeout     time.Duration
	logger      *zap.Logger
	now         func() time.Time

	group singleflight.Group

	mu     sync.RWMutex
	state  models.LoadState
	token  string
	ctx    context.Context
	cancel context.CancelFunc
	closed bool
}

// New creates a loader in the NotStarted state
func New(cfg *config.LoaderConfig, fetcher Fetcher, synthesizer transformer.Synthesizer, target Target, logger *zap.Logger) *Loader {
	ctx, cancel := context.WithCancel(context.Background())
	return &Loader{
		fetcher:     fetcher,
		synthesizer: synthesizer,
		target:      target,
		timeout:     cfg.Timeout,
		logger:      logger,
		now:         time.Now,
		state:       models.LoadState{Status: models.StatusNotStarted},
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Load fills the target when it is empty. A non-empty target returns
// immediately without touching the network. Concurrent calls share one
// request; ctx only bounds how long this caller waits for it.
func (l *Loader) Load(ctx context.Context) (models.LoadState, error) {
	l.mu.RLock()
	closed := l.closed
	l.mu.RUnlock()
	if closed {
		return l.State(), ErrClosed
	}

	if l.target.EmployeeCount() > 0 {
		l.markPresent()
		return l.State(), nil
	}

	ch := l.group.DoChan("employees", func() (interface{}, error) {
		return nil, l.run()
	})

	select {
	case res := <-ch:
		return l.State(), res.Err
	case <-ctx.Done():
		return l.State(), ctx.Err()
	}
}

// run performs a single fetch under a fresh request token
func (l *Loader) run() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	if l.target.EmployeeCount() > 0 {
		l.mu.Unlock()
		return nil
	}
	token := uuid.NewString()
	l.token = token
	l.state = models.LoadState{
		Status:    models.StatusLoading,
		Loading:   true,
		RequestID: token,
	}
	parent := l.ctx
	l.mu.Unlock()

	ctx := parent
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, l.timeout)
		defer cancel()
	}

	logger := l.logger.With(zap.String("request_id", token))
	logger.Info("loading employees")
	start := time.Now()

	users, err := l.fetcher.FetchUsers(ctx)

	var employees []models.Employee
	if err == nil {
		employees = l.synthesizer.Synthesize(users, l.now())
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.token != token || parent.Err() != nil {
		logger.Warn("discarding stale load result", zap.Error(err))
		if l.closed {
			return ErrClosed
		}
		return ErrStale
	}

	if err != nil {
		l.state = models.LoadState{
			Status:    models.StatusFailed,
			Error:     FetchErrorMessage,
			RequestID: token,
		}
		logger.Error("failed to load employees",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return fmt.Errorf("load employees: %w", err)
	}

	l.target.SetEmployees(employees)
	loadedAt := l.now()
	l.state = models.LoadState{
		Status:    models.StatusLoaded,
		RequestID: token,
		LoadedAt:  &loadedAt,
	}
	logger.Info("employees loaded",
		zap.Int("count", len(employees)),
		zap.Duration("elapsed", time.Since(start)))

	return nil
}

// markPresent records that the target was already populated, e.g. from the
// persisted cache, so status reads as Loaded.
func (l *Loader) markPresent() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state.Status == models.StatusNotStarted || l.state.Status == models.StatusFailed {
		loadedAt := l.now()
		l.state = models.LoadState{Status: models.StatusLoaded, LoadedAt: &loadedAt}
	}
}

// State returns a copy of the current load state
func (l *Loader) State() models.LoadState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	st := l.state
	if st.LoadedAt != nil {
		at := *st.LoadedAt
		st.LoadedAt = &at
	}
	return st
}

// Close cancels any in-flight request. Its result, if it still arrives, is
// not written to the target.
func (l *Loader) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	l.cancel()
	if l.state.Status == models.StatusLoading {
		l.state = models.LoadState{Status: models.StatusNotStarted}
	}
	l.logger.Info("loader closed")
}
