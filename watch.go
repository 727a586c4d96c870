package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strings"
	"syscall"

	"github.com/okamoto/hr-dashboard/pkg/protocol"
	"github.com/spf13/cobra"
)

var (
	watchURL   string
	watchCount int
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the change stream of a running server",
	Long: `Connect to a running "hrdash serve" and print every store change as it
happens. Stops on Ctrl-C, when the server closes or ends the stream, or
after --count change events.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchURL, "url", "http://localhost:8080", "Base URL of the server")
	watchCmd.Flags().IntVarP(&watchCount, "count", "n", 0, "Exit after this many change events (0 = unlimited)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return watchEvents(ctx, http.DefaultClient, strings.TrimRight(watchURL, "/"), watchCount, cmd.OutOrStdout())
}

// watchEvents prints events from baseURL/api/events until the stream ends,
// ctx is cancelled, or limit change events were seen.
func watchEvents(ctx context.Context, client *http.Client, baseURL string, limit int, out io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/events", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	reader := protocol.NewReader(resp.Body)
	seen := 0
	for {
		ev, err := reader.ReadEvent()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		fmt.Fprintf(out, "%s %s\n", ev.Type, ev.Data)

		if ev.Type == protocol.EventError {
			return nil
		}

		if ev.Type == protocol.EventChange {
			seen++
			if limit > 0 && seen >= limit {
				return nil
			}
		}
	}
}
