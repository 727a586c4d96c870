package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/okamoto/hr-dashboard/internal/models"
	"github.com/okamoto/hr-dashboard/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newSource serves a fixed user page and counts requests
func newSource(t *testing.T, n int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		page := models.SourceUsersPage{Limit: n, Total: n}
		for i := 1; i <= n; i++ {
			page.Users = append(page.Users, models.SourceUser{
				ID: i, FirstName: fmt.Sprintf("User%d", i), LastName: "Test",
				Email: fmt.Sprintf("user%d@corp.example", i),
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(page)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func writeConfig(t *testing.T, sourceURL string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(`source:
  base_url: %s
storage:
  path: %s
synth:
  seed: 11
logging:
  level: error
  output_path: stderr
`, sourceURL, filepath.Join(dir, "state.db"))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCLI_BookmarksPersistAcrossRuns(t *testing.T) {
	src, _ := newSource(t, 3)
	cfg := writeConfig(t, src.URL)

	out, err := execute(t, cfg, "bookmarks", "add", "3", "7", "3")
	require.NoError(t, err)
	assert.Equal(t, "3: added\n7: added\n3: already bookmarked\n", out)

	out, err = execute(t, cfg, "bookmarks")
	require.NoError(t, err)
	var list struct {
		IDs []int `json:"ids"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	assert.ElementsMatch(t, []int{3, 7}, list.IDs)

	out, err = execute(t, cfg, "bookmarks", "remove", "3")
	require.NoError(t, err)
	assert.Equal(t, "3: removed\n", out)

	_, err = execute(t, cfg, "bookmarks", "add", "x")
	assert.Error(t, err)
}

func TestCLI_EmployeesLoadOnce(t *testing.T) {
	src, calls := newSource(t, 4)
	cfg := writeConfig(t, src.URL)

	out, err := execute(t, cfg, "employees", "--query", "user2")
	require.NoError(t, err)
	var employees []models.Employee
	require.NoError(t, json.Unmarshal([]byte(out), &employees))
	require.Len(t, employees, 1)
	assert.Equal(t, 2, employees[0].ID)

	out, err = execute(t, cfg, "employees", "4")
	require.NoError(t, err)
	assert.Contains(t, out, `"ratingLabel"`)
	assert.Equal(t, int32(1), calls.Load())

	_, err = execute(t, cfg, "employees", "--query", "", "99")
	assert.EqualError(t, err, "Employee not found")

	_, err = execute(t, cfg, "employees", "--rating", "9")
	assert.Error(t, err)
}

func TestCLI_LoadFailure(t *testing.T) {
	src := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer src.Close()
	cfg := writeConfig(t, src.URL)

	_, err := execute(t, cfg, "analytics")
	assert.EqualError(t, err, "Failed to fetch employees")
}

func TestCLI_AnalyticsAndReset(t *testing.T) {
	src, calls := newSource(t, 5)
	cfg := writeConfig(t, src.URL)

	out, err := execute(t, cfg, "analytics")
	require.NoError(t, err)
	var resp struct {
		Summary struct {
			TotalEmployees int `json:"totalEmployees"`
		} `json:"summary"`
		BookmarkTrends []json.RawMessage `json:"bookmarkTrends"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 5, resp.Summary.TotalEmployees)
	assert.Len(t, resp.BookmarkTrends, 6)

	out, err = execute(t, cfg, "reset")
	require.NoError(t, err)
	assert.Equal(t, "state cleared\n", out)

	_, err = execute(t, cfg, "analytics")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())

	out, err = execute(t, cfg, "reset", "--purge")
	require.NoError(t, err)
	assert.Equal(t, "purged hr-dashboard-storage\n", out)
	resetPurge = false
}

func TestWatchEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_ = protocol.WriteEvent(w, "0", protocol.EventStatus, map[string]string{"status": "loaded"})
		_ = protocol.WriteComment(w, "ping")
		_ = protocol.WriteEvent(w, "1", protocol.EventChange, map[string]string{"kind": "bookmarks"})
		_ = protocol.WriteEvent(w, "2", protocol.EventChange, map[string]string{"kind": "feedback"})
	}))
	defer srv.Close()

	var out bytes.Buffer
	require.NoError(t, watchEvents(context.Background(), srv.Client(), srv.URL, 1, &out))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Equal(t, []string{`status {"status":"loaded"}`, `change {"kind":"bookmarks"}`}, lines)

	out.Reset()
	require.NoError(t, watchEvents(context.Background(), srv.Client(), srv.URL, 0, &out))
	assert.Len(t, strings.Split(strings.TrimSpace(out.String()), "\n"), 3)
}

func TestWatchEvents_StopsOnServerClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_ = protocol.WriteEvent(w, "0", protocol.EventStatus, map[string]string{"status": "loaded"})
		_ = protocol.WriteEvent(w, "", protocol.EventError, map[string]string{"error": "stream closed by server"})
		_ = protocol.WriteEvent(w, "1", protocol.EventChange, map[string]string{"kind": "bookmarks"})
	}))
	defer srv.Close()

	var out bytes.Buffer
	require.NoError(t, watchEvents(context.Background(), srv.Client(), srv.URL, 0, &out))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Equal(t, []string{`status {"status":"loaded"}`, `error {"error":"stream closed by server"}`}, lines)
}

func TestWatchEvents_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"too many event subscribers"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := watchEvents(context.Background(), srv.Client(), srv.URL, 0, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printJSON(&buf, map[string]int{"a": 1}))
	assert.Equal(t, "{\n  \"a\": 1\n}\n", buf.String())
}
