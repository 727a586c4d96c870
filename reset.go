package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resetPurge bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear cached employees and bookmarks",
	Long: `Clear the employee collection and bookmarks. The next command that needs
employees fetches them again. With --purge the storage entry is deleted
instead of overwritten with an empty state.`,
	RunE: runReset,
}

func init() {
	resetCmd.Flags().BoolVar(&resetPurge, "purge", false, "Delete the storage entry entirely")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if resetPurge {
		if err := a.state.Clear(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "purged %s\n", a.state.Key())
		return nil
	}

	if err := a.openStore(cmd.Context(), nil); err != nil {
		return err
	}
	if err := a.store.Reset(cmd.Context()); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "state cleared")
	return nil
}
