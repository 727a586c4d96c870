package main

import (
	"fmt"
	"strconv"

	"github.com/okamoto/hr-dashboard/internal/views"
	"github.com/spf13/cobra"
)

var bookmarksCmd = &cobra.Command{
	Use:   "bookmarks",
	Short: "List and edit bookmarked employees",
	RunE:  runBookmarksList,
}

var bookmarksAddCmd = &cobra.Command{
	Use:   "add <id>...",
	Short: "Bookmark employees",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return editBookmarks(cmd, args, func(a *app, id int) string {
			if a.store.AddBookmark(id) {
				return "added"
			}
			return "already bookmarked"
		})
	},
}

var bookmarksRemoveCmd = &cobra.Command{
	Use:     "remove <id>...",
	Aliases: []string{"rm"},
	Short:   "Remove bookmarks",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return editBookmarks(cmd, args, func(a *app, id int) string {
			if a.store.RemoveBookmark(id) > 0 {
				return "removed"
			}
			return "not bookmarked"
		})
	},
}

func init() {
	bookmarksCmd.AddCommand(bookmarksAddCmd, bookmarksRemoveCmd)
	rootCmd.AddCommand(bookmarksCmd)
}

func runBookmarksList(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.openStore(cmd.Context(), nil); err != nil {
		return err
	}

	snap := a.store.Snapshot()
	return printJSON(cmd.OutOrStdout(), map[string]any{
		"ids":       snap.Bookmarks,
		"employees": views.Bookmarked(snap.Employees, snap.Bookmarks),
	})
}

// editBookmarks parses every id before applying fn, so a typo changes nothing
func editBookmarks(cmd *cobra.Command, args []string, fn func(*app, int) string) error {
	ids := make([]int, 0, len(args))
	for _, arg := range args {
		id, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("invalid employee id %q", arg)
		}
		ids = append(ids, id)
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.openStore(cmd.Context(), nil); err != nil {
		return err
	}

	for _, id := range ids {
		fmt.Fprintf(cmd.OutOrStdout(), "%d: %s\n", id, fn(a, id))
	}
	return nil
}
