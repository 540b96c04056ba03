package sqlite

import (
	"context"
	"encoding/json"
	"testing"
)

func TestLogActionAndRecentActions(t *testing.T) {
	log := NewActionLog(openTestStore(t, newTestClock()))
	ctx := context.Background()

	entries := []struct {
		kind, status, detail string
		metadata             map[string]interface{}
	}{
		{"policy_decision", "allow", "", map[string]interface{}{"tool": "post_tweet"}},
		{"policy_decision", "deny", "tool is blocked", map[string]interface{}{"tool": "delete_tweet"}},
		{"config_reload", "ok", "", nil},
	}
	for _, e := range entries {
		if err := log.LogAction(ctx, e.kind, e.status, e.detail, e.metadata); err != nil {
			t.Fatalf("LogAction(%s) error = %v", e.kind, err)
		}
	}

	rows, err := log.RecentActions(ctx, "policy_decision", 10)
	if err != nil {
		t.Fatalf("RecentActions() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	// Newest first.
	if rows[0].Status != "deny" || rows[1].Status != "allow" {
		t.Errorf("order = %s, %s", rows[0].Status, rows[1].Status)
	}
	if rows[0].Detail != "tool is blocked" {
		t.Errorf("detail = %q", rows[0].Detail)
	}

	var meta map[string]interface{}
	if err := json.Unmarshal([]byte(rows[0].Metadata), &meta); err != nil {
		t.Fatalf("metadata is not JSON: %q", rows[0].Metadata)
	}
	if meta["tool"] != "delete_tweet" {
		t.Errorf("metadata tool = %v", meta["tool"])
	}
}

func TestLogActionEmptyMetadata(t *testing.T) {
	log := NewActionLog(openTestStore(t, newTestClock()))
	ctx := context.Background()

	if err := log.LogAction(ctx, "config_reload", "ok", "", nil); err != nil {
		t.Fatalf("LogAction() error = %v", err)
	}

	rows, err := log.RecentActions(ctx, "config_reload", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if rows[0].Metadata != "" {
		t.Errorf("metadata = %q, want empty", rows[0].Metadata)
	}
}

func TestRecentActionsLimit(t *testing.T) {
	log := NewActionLog(openTestStore(t, newTestClock()))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := log.LogAction(ctx, "policy_decision", "allow", "", nil); err != nil {
			t.Fatal(err)
		}
	}

	rows, err := log.RecentActions(ctx, "policy_decision", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Errorf("got %d rows, want 3", len(rows))
	}
}
