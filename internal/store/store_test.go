package store

import (
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMigrationsApplyOnce(t *testing.T) {
	s := openTestStore(t)

	var version int
	if err := s.db.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version); err != nil {
		t.Fatalf("reading schema version: %v", err)
	}
	if version < 1 {
		t.Fatalf("schema version = %d, want at least 1", version)
	}

	// Re-running migrations against an already-migrated database is a no-op.
	if err := s.migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	for _, table := range []string{"embedding_records", "portals", "recency_entries", "ai_usage"} {
		var name string
		err := s.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing after migration: %v", table, err)
		}
	}
}

func TestConsumeAIBudget(t *testing.T) {
	s := openTestStore(t)

	for i := 0; i < 3; i++ {
		ok, err := s.ConsumeAIBudget("user-1", 3, time.Hour)
		if err != nil {
			t.Fatalf("consume %d: %v", i+1, err)
		}
		if !ok {
			t.Fatalf("consume %d denied, want allowed within limit", i+1)
		}
	}

	ok, err := s.ConsumeAIBudget("user-1", 3, time.Hour)
	if err != nil {
		t.Fatalf("over-limit consume: %v", err)
	}
	if ok {
		t.Fatal("consume allowed past the limit")
	}

	// Budgets are per owner.
	ok, err = s.ConsumeAIBudget("user-2", 3, time.Hour)
	if err != nil {
		t.Fatalf("other owner: %v", err)
	}
	if !ok {
		t.Fatal("other owner denied, budgets must be independent")
	}
}

func TestConsumeAIBudgetWindowRollover(t *testing.T) {
	s := openTestStore(t)

	window := 50 * time.Millisecond
	ok, err := s.ConsumeAIBudget("user-1", 1, window)
	if err != nil || !ok {
		t.Fatalf("first consume: ok=%v err=%v", ok, err)
	}
	if ok, _ := s.ConsumeAIBudget("user-1", 1, window); ok {
		t.Fatal("second consume in same window allowed")
	}

	// Wait past the window boundary; the budget resets.
	time.Sleep(2 * window)
	ok, err = s.ConsumeAIBudget("user-1", 1, window)
	if err != nil {
		t.Fatalf("post-rollover consume: %v", err)
	}
	if !ok {
		t.Fatal("budget did not reset after the window rolled over")
	}
}
