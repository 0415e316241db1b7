package history

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/example/command-translator/internal/models"
)

func openSQLite(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(context.Background(), "sqlite3", path)
	if err != nil {
		if strings.Contains(err.Error(), "cgo") || strings.Contains(err.Error(), "CGO_ENABLED") {
			t.Skipf("sqlite3 driver unavailable: %v", err)
		}
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndRecent(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()

	ok := &models.HistoryEntry{
		Text:            "set a timer for 15 minutes",
		TemplateVersion: "v1",
		Schema:          "command",
		Command:         models.Command{"action": "set_timer", "parameters": map[string]any{"duration_minutes": 15}},
		Attempts:        1,
		Model:           "llama3-8b-8192",
		TotalTokens:     140,
		Duration:        850 * time.Millisecond,
		CreatedAt:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	failed := &models.HistoryEntry{
		Text:              "blorp",
		TemplateVersion:   "v1",
		Schema:            "command",
		ErrorKind:         "translation_failed",
		ErrorMessage:      "translation failed after 3 attempt(s)",
		Attempts:          3,
		TransportFailures: 1,
		Duration:          2 * time.Second,
	}
	for _, e := range []*models.HistoryEntry{ok, failed} {
		if err := s.Record(ctx, e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if ok.ID == 0 || failed.ID <= ok.ID {
		t.Fatalf("expected increasing ids, got %d and %d", ok.ID, failed.ID)
	}
	if failed.CreatedAt.IsZero() {
		t.Error("expected Record to stamp CreatedAt")
	}

	got, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].ID != failed.ID || got[1].ID != ok.ID {
		t.Errorf("expected newest first, got ids %d, %d", got[0].ID, got[1].ID)
	}

	first := got[1]
	params, _ := first.Command["parameters"].(map[string]any)
	if first.Command["action"] != "set_timer" || params["duration_minutes"] != json.Number("15") {
		t.Errorf("unexpected command %v", first.Command)
	}
	if first.Duration != 850*time.Millisecond || first.TotalTokens != 140 || first.Model != "llama3-8b-8192" {
		t.Errorf("unexpected entry %+v", first)
	}
	if !first.CreatedAt.Equal(ok.CreatedAt) {
		t.Errorf("created_at = %s, want %s", first.CreatedAt, ok.CreatedAt)
	}

	second := got[0]
	if second.Command != nil || second.ErrorKind != "translation_failed" || second.TransportFailures != 1 {
		t.Errorf("unexpected failed entry %+v", second)
	}

	limited, err := s.Recent(ctx, 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("expected 1 entry with limit, got %d (%v)", len(limited), err)
	}
}

func TestOpenUnsupportedDriver(t *testing.T) {
	if _, err := Open(context.Background(), "mysql", "dsn"); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}
