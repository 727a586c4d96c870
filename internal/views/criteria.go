// Package views computes the read-only projections shown by the dashboard.
// Every function is pure: it takes the current collection and returns a new
// value without touching the store.
package views

import (
	"slices"

	"github.com/okamoto/hr-dashboard/internal/models"
)

// Criteria is the dashboard's search and filter state
type Criteria struct {
	Query       string              `json:"query"`
	Departments []models.Department `json:"departments" validate:"dive,oneof=Engineering Marketing Sales HR Finance Operations"`
	Ratings     []int               `json:"ratings" validate:"dive,min=1,max=5"`
}

// ActiveCount is the number of selected departments and ratings, plus one
// for a non-empty query.
func (c Criteria) ActiveCount() int {
	n := len(c.Departments) + len(c.Ratings)
	if c.Query != "" {
		n++
	}
	return n
}

// ToggleDepartment selects d, or deselects it if already selected
func (c *Criteria) ToggleDepartment(d models.Department) {
	if i := slices.Index(c.Departments, d); i >= 0 {
		c.Departments = slices.Delete(c.Departments, i, i+1)
		return
	}
	c.Departments = append(c.Departments, d)
}

// ToggleRating selects r, or deselects it if already selected
func (c *Criteria) ToggleRating(r int) {
	if i := slices.Index(c.Ratings, r); i >= 0 {
		c.Ratings = slices.Delete(c.Ratings, i, i+1)
		return
	}
	c.Ratings = append(c.Ratings, r)
}

// Clear resets the query and every selection
func (c *Criteria) Clear() {
	c.Query = ""
	c.Departments = nil
	c.Ratings = nil
}
