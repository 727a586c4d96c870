package models

import (
	"time"
)

// Department is one of the fixed organisational units an employee can belong to
type Department string

const (
	DepartmentEngineering Department = "Engineering"
	DepartmentMarketing   Department = "Marketing"
	DepartmentSales       Department = "Sales"
	DepartmentHR          Department = "HR"
	DepartmentFinance     Department = "Finance"
	DepartmentOperations  Department = "Operations"
)

// Departments lists every valid department in display order
var Departments = []Department{
	DepartmentEngineering,
	DepartmentMarketing,
	DepartmentSales,
	DepartmentHR,
	DepartmentFinance,
	DepartmentOperations,
}

// Valid reports whether d is one of the known departments
func (d Department) Valid() bool {
	for _, known := range Departments {
		if d == known {
			return true
		}
	}
	return false
}

// Rating bounds for performance scores
const (
	MinRating = 1
	MaxRating = 5
)

// HistoryLength is the number of synthetic performance history entries per employee
const HistoryLength = 6

// HistoryInterval separates consecutive performance history entries
const HistoryInterval = 30 * 24 * time.Hour

// DateLayout is the calendar date format used for performance history
const DateLayout = "2006-01-02"

// Employee is a single record shown on the dashboard
type Employee struct {
	ID                 int                 `json:"id"`
	FirstName          string              `json:"firstName"`
	LastName           string              `json:"lastName"`
	Email              string              `json:"email"`
	Age                int                 `json:"age"`
	Department         Department          `json:"department"`
	Performance        int                 `json:"performance"`
	Address            string              `json:"address"`
	Phone              string              `json:"phone"`
	Bio                string              `json:"bio"`
	PerformanceHistory []PerformanceRecord `json:"performanceHistory"`
}

// Clone returns a deep copy so callers can't mutate shared history slices
func (e Employee) Clone() Employee {
	out := e
	if e.PerformanceHistory != nil {
		out.PerformanceHistory = make([]PerformanceRecord, len(e.PerformanceHistory))
		copy(out.PerformanceHistory, e.PerformanceHistory)
	}
	return out
}

// PerformanceRecord is one dated rating, most recent first in Employee.PerformanceHistory
type PerformanceRecord struct {
	Date    string `json:"date"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment,omitempty"`
}

// Feedback is a rating and comment submitted for an employee
type Feedback struct {
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"max=1000"`
}
