package main

import (
	"math/rand/v2"
	"time"

	"github.com/okamoto/hr-dashboard/internal/views"
	"github.com/spf13/cobra"
)

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Print department averages, summary and bookmark trends",
	RunE:  runAnalytics,
}

func init() {
	rootCmd.AddCommand(analyticsCmd)
}

func runAnalytics(cmd *cobra.Command, _ []string) error {
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
	summary := views.Summarize(snap.Employees, snap.Bookmarks)
	now := time.Now()
	seed := uint64(now.UnixNano())

	return printJSON(cmd.OutOrStdout(), map[string]any{
		"departments":    views.DepartmentAverages(snap.Employees),
		"summary":        summary,
		"averageDisplay": summary.AverageText(),
		"bookmarkTrends": views.BookmarkTrends(now, rand.New(rand.NewPCG(seed, seed>>1|1))),
	})
}
