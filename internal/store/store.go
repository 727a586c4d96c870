// Package store holds the application state shared by every view: the
// employee collection and the bookmark set.
//
// A Store is created once by the shell and passed to its consumers. All
// mutations go through its methods, are applied in call order, and are
// visible to the next read. After each mutation the store notifies
// subscribers and hands a snapshot to the persister.
package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/okamoto/hr-dashboard/internal/models"
	"github.com/okamoto/hr-dashboard/internal/repository"
	"go.uber.org/zap"
)

// ErrEmployeeNotFound is returned by commands addressing an unknown employee
var ErrEmployeeNotFound = errors.New("employee not found")

// StateRepository loads and saves the persisted document. SaveRevision must
// not let an older revision replace a newer one.
type StateRepository interface {
	Load(ctx context.Context) (models.PersistedStore, bool, error)
	SaveRevision(ctx context.Context, revision uint64, payload []byte) (bool, error)
}

// Persister accepts snapshots for asynchronous writing
type Persister interface {
	Submit(job *models.PersistJob) error
}

// Options tune what the store persists
type Options struct {
	PersistEmployees bool
	// SubscriberBuffer is the channel capacity handed to each subscriber
	SubscriberBuffer int
}

// Snapshot is a consistent copy of the store contents
type Snapshot struct {
	Revision  uint64            `json:"revision"`
	Employees []models.Employee `json:"employees"`
	Bookmarks []int             `json:"bookmarks"`
}

// Store is the single in-memory authority for employees and bookmarks
type Store struct {
	mu        sync.RWMutex
	employees []models.Employee
	bookmarks []int
	revision  uint64

	opts      Options
	repo      StateRepository
	persister Persister
	validate  *validator.Validate
	logger    *zap.Logger
	now       func() time.Time

	subMu       sync.Mutex
	subscribers map[uint64]chan models.Change
	nextSubID   uint64
}

// New creates an empty store. repo and persister may be nil for an
// in-memory only store.
func New(opts Options, repo StateRepository, persister Persister, logger *zap.Logger) *Store {
	if opts.SubscriberBuffer <= 0 {
		opts.SubscriberBuffer = 16
	}
	return &Store{
		employees:   []models.Employee{},
		bookmarks:   []int{},
		opts:        opts,
		repo:        repo,
		persister:   persister,
		validate:    validator.New(),
		logger:      logger,
		now:         time.Now,
		subscribers: make(map[uint64]chan models.Change),
	}
}

// Hydrate replaces the in-memory state with the persisted one. A missing or
// unreadable document leaves the defaults in place; only storage access
// failures are returned.
func (s *Store) Hydrate(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}

	state, found, err := s.repo.Load(ctx)
	if errors.Is(err, repository.ErrCorruptState) {
		s.logger.Warn("ignoring persisted state with unexpected shape", zap.Error(err))
		return nil
	}
	if err != nil {
		return fmt.Errorf("hydrate store: %w", err)
	}
	if !found {
		s.logger.Info("no persisted state, starting empty")
		return nil
	}

	s.mu.Lock()
	if s.opts.PersistEmployees && state.Employees != nil {
		s.employees = cloneEmployees(state.Employees)
	}
	if state.Bookmarks != nil {
		s.bookmarks = slices.Clone(state.Bookmarks)
	}
	employees, bookmarks := len(s.employees), len(s.bookmarks)
	s.mu.Unlock()

	s.logger.Info("store hydrated",
		zap.Int("employees", employees),
		zap.Int("bookmarks", bookmarks))

	return nil
}

// SetEmployees replaces the entire employee collection. Entries are not validated.
func (s *Store) SetEmployees(employees []models.Employee) {
	s.mu.Lock()
	s.employees = cloneEmployees(employees)
	change := s.commitLocked(models.ChangeEmployees, 0)
	s.mu.Unlock()

	s.logger.Info("employees replaced", zap.Int("count", len(employees)))
	s.publish(change)
}

// AddBookmark adds id to the bookmark set. Adding an id that is already
// bookmarked is a no-op and returns false. The id is not checked against the
// employee collection.
func (s *Store) AddBookmark(id int) bool {
	s.mu.Lock()
	if slices.Contains(s.bookmarks, id) {
		s.mu.Unlock()
		s.logger.Debug("bookmark already present", zap.Int("employee_id", id))
		return false
	}
	s.bookmarks = append(s.bookmarks, id)
	change := s.commitLocked(models.ChangeBookmarks, id)
	s.mu.Unlock()

	s.publish(change)
	return true
}

// RemoveBookmark removes every occurrence of id and reports how many were removed
func (s *Store) RemoveBookmark(id int) int {
	s.mu.Lock()
	before := len(s.bookmarks)
	s.bookmarks = slices.DeleteFunc(s.bookmarks, func(b int) bool { return b == id })
	removed := before - len(s.bookmarks)
	if removed == 0 {
		s.mu.Unlock()
		return 0
	}
	change := s.commitLocked(models.ChangeBookmarks, id)
	s.mu.Unlock()

	s.publish(change)
	return removed
}

// ToggleBookmark removes id when bookmarked, adds it otherwise, and returns
// whether it is bookmarked afterwards.
func (s *Store) ToggleBookmark(id int) bool {
	if s.IsBookmarked(id) {
		s.RemoveBookmark(id)
		return false
	}
	s.AddBookmark(id)
	return true
}

// IsBookmarked reports whether id is in the bookmark set
func (s *Store) IsBookmarked(id int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Contains(s.bookmarks, id)
}

// SubmitFeedback records a rating and comment dated at as the newest
// performance history entry of the employee. The current performance score is
// not changed.
func (s *Store) SubmitFeedback(id int, feedback models.Feedback, at time.Time) (models.Employee, error) {
	if err := s.validate.Struct(feedback); err != nil {
		return models.Employee{}, fmt.Errorf("invalid feedback: %w", err)
	}

	record := models.PerformanceRecord{
		Date:    at.UTC().Format(models.DateLayout),
		Rating:  feedback.Rating,
		Comment: feedback.Comment,
	}

	s.mu.Lock()
	idx := slices.IndexFunc(s.employees, func(e models.Employee) bool { return e.ID == id })
	if idx < 0 {
		s.mu.Unlock()
		return models.Employee{}, fmt.Errorf("%w: %d", ErrEmployeeNotFound, id)
	}

	emp := s.employees[idx].Clone()
	emp.PerformanceHistory = append([]models.PerformanceRecord{record}, emp.PerformanceHistory...)
	s.employees[idx] = emp
	change := s.commitLocked(models.ChangeFeedback, id)
	s.mu.Unlock()

	s.logger.Info("feedback recorded",
		zap.Int("employee_id", id),
		zap.Int("rating", feedback.Rating))
	s.publish(change)

	return emp.Clone(), nil
}

// Reset clears employees and bookmarks and writes the empty state
// synchronously, so a restart right after a reset starts empty.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	s.employees = []models.Employee{}
	s.bookmarks = []int{}
	change := s.commitLocked(models.ChangeReset, 0)
	s.mu.Unlock()

	if err := s.Flush(ctx); err != nil {
		return fmt.Errorf("reset store: %w", err)
	}

	s.logger.Info("store reset")
	s.publish(change)
	return nil
}

// Employees returns a copy of the employee collection in load order
func (s *Store) Employees() []models.Employee {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneEmployees(s.employees)
}

// Employee returns the employee with the given id
func (s *Store) Employee(id int) (models.Employee, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.employees {
		if e.ID == id {
			return e.Clone(), true
		}
	}
	return models.Employee{}, false
}

// EmployeeCount returns the size of the employee collection
func (s *Store) EmployeeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.employees)
}

// Bookmarks returns a copy of the bookmark ids in insertion order
func (s *Store) Bookmarks() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.bookmarks)
}

// Snapshot returns employees, bookmarks and revision read under one lock
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Revision:  s.revision,
		Employees: cloneEmployees(s.employees),
		Bookmarks: slices.Clone(s.bookmarks),
	}
}

// Revision returns the number of mutations applied so far
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// Flush writes the current state synchronously, bypassing the persister.
// If a newer revision reaches storage first the flushed snapshot is dropped.
func (s *Store) Flush(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}

	s.mu.RLock()
	revision := s.revision
	payload, err := s.encodeLocked()
	s.mu.RUnlock()
	if err != nil {
		return err
	}

	stored, err := s.repo.SaveRevision(ctx, revision, payload)
	if err != nil {
		return fmt.Errorf("flush store: %w", err)
	}
	if !stored {
		s.logger.Debug("flush superseded by newer snapshot", zap.Uint64("revision", revision))
	}
	return nil
}

// commitLocked bumps the revision and schedules persistence. Callers hold s.mu.
func (s *Store) commitLocked(kind models.ChangeKind, employeeID int) models.Change {
	s.revision++
	now := s.now()

	if s.persister != nil {
		payload, err := s.encodeLocked()
		if err != nil {
			s.logger.Error("failed to encode snapshot", zap.Error(err))
		} else if err := s.persister.Submit(&models.PersistJob{
			Revision:    s.revision,
			Payload:     payload,
			SubmittedAt: now,
		}); err != nil {
			s.logger.Warn("snapshot not queued",
				zap.Uint64("revision", s.revision),
				zap.Error(err))
		}
	}

	return models.Change{
		Revision:   s.revision,
		Kind:       kind,
		EmployeeID: employeeID,
		At:         now,
	}
}

func (s *Store) encodeLocked() ([]byte, error) {
	state := models.PersistedStore{Bookmarks: s.bookmarks}
	if s.opts.PersistEmployees {
		state.Employees = s.employees
	}
	return repository.Encode(state)
}

func cloneEmployees(in []models.Employee) []models.Employee {
	out := make([]models.Employee, len(in))
	for i, e := range in {
		out[i] = e.Clone()
	}
	return out
}
