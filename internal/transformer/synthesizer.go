// Package transformer converts source user records into dashboard employees.
//
// The source API carries identity and contact fields only. Department,
// performance, bio and performance history are mock data produced by a
// Synthesizer; a real HR backend would supply them through a different
// Synthesizer without touching anything downstream.
package transformer

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/okamoto/hr-dashboard/internal/models"
	"go.uber.org/zap"
)

// Synthesizer turns source users into employees, filling in the fields the
// source does not provide.
type Synthesizer interface {
	Synthesize(users []models.SourceUser, now time.Time) []models.Employee
}

// RandomSynthesizer generates department, performance, bio and history
// uniformly at random. It is safe for concurrent use.
type RandomSynthesizer struct {
	mu     sync.Mutex
	rng    *rand.Rand
	logger *zap.Logger
}

// NewRandomSynthesizer creates a synthesizer. A zero seed draws one from crypto/rand.
func NewRandomSynthesizer(seed int64, logger *zap.Logger) (*RandomSynthesizer, error) {
	if seed == 0 {
		s, err := newSeed()
		if err != nil {
			return nil, err
		}
		seed = s
	}

	return &RandomSynthesizer{
		rng:    rand.New(rand.NewPCG(uint64(seed), uint64(seed)>>1|1)),
		logger: logger,
	}, nil
}

func newSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

// Synthesize maps every user to an employee, preserving input order
func (s *RandomSynthesizer) Synthesize(users []models.SourceUser, now time.Time) []models.Employee {
	s.mu.Lock()
	defer s.mu.Unlock()

	employees := make([]models.Employee, 0, len(users))
	for _, u := range users {
		employees = append(employees, s.employee(u, now))
	}

	s.logger.Debug("synthesized employees", zap.Int("count", len(employees)))
	return employees
}

func (s *RandomSynthesizer) employee(u models.SourceUser, now time.Time) models.Employee {
	return models.Employee{
		ID:                 u.ID,
		FirstName:          u.FirstName,
		LastName:           u.LastName,
		Email:              u.Email,
		Age:                u.Age,
		Department:         models.Departments[s.rng.IntN(len(models.Departments))],
		Performance:        s.rating(),
		Address:            FormatAddress(u.Address),
		Phone:              u.Phone,
		Bio:                Bio(s.rng.IntN(10) + 1),
		PerformanceHistory: s.history(now),
	}
}

func (s *RandomSynthesizer) rating() int {
	return s.rng.IntN(models.MaxRating-models.MinRating+1) + models.MinRating
}

// history builds HistoryLength entries, most recent first, one per 30-day step back from now
func (s *RandomSynthesizer) history(now time.Time) []models.PerformanceRecord {
	records := make([]models.PerformanceRecord, models.HistoryLength)
	for i := range records {
		records[i] = models.PerformanceRecord{
			Date:   HistoryDate(now, i),
			Rating: s.rating(),
		}
	}
	return records
}

// HistoryDate returns the UTC calendar date i intervals before now
func HistoryDate(now time.Time, i int) string {
	return now.Add(-time.Duration(i) * models.HistoryInterval).UTC().Format(models.DateLayout)
}

// FormatAddress joins the street and city of a source address
func FormatAddress(a models.SourceAddress) string {
	return a.Address + ", " + a.City
}

// Bio renders the templated biography for a tenure in years
func Bio(years int) string {
	return fmt.Sprintf("Experienced professional with %d years in the industry.", years)
}
