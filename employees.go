package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/okamoto/hr-dashboard/internal/models"
	"github.com/okamoto/hr-dashboard/internal/server"
	"github.com/okamoto/hr-dashboard/internal/views"
	"github.com/spf13/cobra"
)

var (
	employeesQuery       string
	employeesDepartments []string
	employeesRatings     []int
	employeesBookmarked  bool
)

var employeesCmd = &cobra.Command{
	Use:   "employees [id]",
	Short: "List or show employees",
	Long: `Print employees as JSON, loading them from the source if the local cache is
empty. With an id, print that employee. Otherwise filter by --query,
--department and --rating.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEmployees,
}

func init() {
	employeesCmd.Flags().StringVarP(&employeesQuery, "query", "q", "", "Case-insensitive search on name, email or department")
	employeesCmd.Flags().StringSliceVarP(&employeesDepartments, "department", "d", nil, "Department to include (repeatable)")
	employeesCmd.Flags().IntSliceVarP(&employeesRatings, "rating", "r", nil, "Performance rating to include (repeatable)")
	employeesCmd.Flags().BoolVar(&employeesBookmarked, "bookmarked", false, "Only bookmarked employees")
	rootCmd.AddCommand(employeesCmd)
}

func runEmployees(cmd *cobra.Command, args []string) error {
	criteria := views.Criteria{Query: employeesQuery, Ratings: employeesRatings}
	for _, d := range employeesDepartments {
		criteria.Departments = append(criteria.Departments, models.Department(d))
	}
	if err := validator.New().Struct(criteria); err != nil {
		return fmt.Errorf("invalid filter: %w", err)
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.openStore(cmd.Context(), nil); err != nil {
		return err
	}
	if err := a.ensureLoaded(cmd.Context()); err != nil {
		return err
	}

	snap := a.store.Snapshot()

	if len(args) == 1 {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid employee id %q", args[0])
		}
		emp, ok := views.FindEmployee(snap.Employees, id)
		if !ok {
			return errors.New(server.MsgEmployeeNotFound)
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"employee":        emp,
			"ratingLabel":     views.RatingLabel(emp.Performance),
			"performanceTone": views.PerformanceTone(emp.Performance),
		})
	}

	employees := snap.Employees
	if employeesBookmarked {
		employees = views.Bookmarked(employees, snap.Bookmarks)
	}
	return printJSON(cmd.OutOrStdout(), views.Filter(employees, criteria))
}
