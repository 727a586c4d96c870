package views

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/okamoto/hr-dashboard/internal/models"
)

// TrendMonths is the number of months in the bookmark trend series
const TrendMonths = 6

// DepartmentAverage is the mean performance of one department
type DepartmentAverage struct {
	Department models.Department `json:"department"`
	Average    float64           `json:"average"`
	Count      int               `json:"count"`
}

// Summary is the headline block of the analytics page
type Summary struct {
	TotalEmployees int `json:"totalEmployees"`
	TotalBookmarks int `json:"totalBookmarks"`
	// AveragePerformance is nil when there are no employees
	AveragePerformance *float64 `json:"averagePerformance"`
}

// AverageText formats the average with one decimal, or "N/A" when undefined
func (s Summary) AverageText() string {
	if s.AveragePerformance == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.1f", *s.AveragePerformance)
}

// TrendPoint is one month of the bookmark trend series
type TrendPoint struct {
	Month string `json:"month"`
	Value int    `json:"value"`
}

// DepartmentAverages groups employees by department, in order of first
// appearance. Departments with no employees are absent.
func DepartmentAverages(employees []models.Employee) []DepartmentAverage {
	var out []DepartmentAverage
	index := make(map[models.Department]int)
	totals := make([]int, 0)

	for _, e := range employees {
		i, ok := index[e.Department]
		if !ok {
			i = len(out)
			index[e.Department] = i
			out = append(out, DepartmentAverage{Department: e.Department})
			totals = append(totals, 0)
		}
		out[i].Count++
		totals[i] += e.Performance
	}

	for i := range out {
		out[i].Average = float64(totals[i]) / float64(out[i].Count)
	}
	if out == nil {
		out = []DepartmentAverage{}
	}
	return out
}

// Summarize counts employees and bookmarks and averages performance. The
// bookmark count is the raw list length, so ids of unknown employees count.
func Summarize(employees []models.Employee, bookmarks []int) Summary {
	s := Summary{
		TotalEmployees: len(employees),
		TotalBookmarks: len(bookmarks),
	}
	if len(employees) == 0 {
		return s
	}

	total := 0
	for _, e := range employees {
		total += e.Performance
	}
	avg := float64(total) / float64(len(employees))
	s.AveragePerformance = &avg
	return s
}

// BookmarkTrends returns a mock series for the last TrendMonths months,
// oldest first and ending with the month of now, each valued 1..10.
func BookmarkTrends(now time.Time, rng *rand.Rand) []TrendPoint {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	out := make([]TrendPoint, TrendMonths)
	for i := range out {
		month := first.AddDate(0, i-(TrendMonths-1), 0)
		out[i] = TrendPoint{
			Month: month.Month().String()[:3],
			Value: rng.IntN(10) + 1,
		}
	}
	return out
}

// RatingLabel renders a rating as "1 Star" or "N Stars"
func RatingLabel(rating int) string {
	if rating == 1 {
		return "1 Star"
	}
	return fmt.Sprintf("%d Stars", rating)
}

// PerformanceTone is the badge colour for a rating
func PerformanceTone(rating int) string {
	switch rating {
	case 1:
		return "red"
	case 2:
		return "orange"
	case 3:
		return "yellow"
	case 4:
		return "green"
	case 5:
		return "blue"
	default:
		return "gray"
	}
}
