package views

import (
	"slices"
	"strings"

	"github.com/okamoto/hr-dashboard/internal/models"
	"golang.org/x/text/cases"
)

// Filter returns the employees matching every part of c, in collection order.
//
// The query is a caseless substring match against first name, last name,
// email or department; an empty query matches everyone. An empty department
// or rating selection imposes no constraint.
func Filter(employees []models.Employee, c Criteria) []models.Employee {
	fold := cases.Fold()
	query := fold.String(c.Query)

	out := make([]models.Employee, 0, len(employees))
	for _, e := range employees {
		if query != "" && !matchesQuery(fold, e, query) {
			continue
		}
		if len(c.Departments) > 0 && !slices.Contains(c.Departments, e.Department) {
			continue
		}
		if len(c.Ratings) > 0 && !slices.Contains(c.Ratings, e.Performance) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func matchesQuery(fold cases.Caser, e models.Employee, query string) bool {
	for _, field := range []string{e.FirstName, e.LastName, e.Email, string(e.Department)} {
		if strings.Contains(fold.String(field), query) {
			return true
		}
	}
	return false
}

// Departments lists the distinct departments present, in order of first appearance
func Departments(employees []models.Employee) []models.Department {
	out := []models.Department{}
	for _, e := range employees {
		if !slices.Contains(out, e.Department) {
			out = append(out, e.Department)
		}
	}
	return out
}

// Bookmarked returns the employees whose id is bookmarked, in collection
// order. Bookmarked ids with no matching employee are skipped.
func Bookmarked(employees []models.Employee, bookmarks []int) []models.Employee {
	set := make(map[int]struct{}, len(bookmarks))
	for _, id := range bookmarks {
		set[id] = struct{}{}
	}

	out := make([]models.Employee, 0, len(bookmarks))
	for _, e := range employees {
		if _, ok := set[e.ID]; ok {
			out = append(out, e)
		}
	}
	return out
}

// FindEmployee looks up an employee by id
func FindEmployee(employees []models.Employee, id int) (models.Employee, bool) {
	i := slices.IndexFunc(employees, func(e models.Employee) bool { return e.ID == id })
	if i < 0 {
		return models.Employee{}, false
	}
	return employees[i], true
}
