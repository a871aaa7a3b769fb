package history

import (
	"os"
	"testing"
	"time"

	"github.com/starford/ansuz/internal/difflog"
	"github.com/starford/ansuz/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "ansuz-history-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func entry(turn int, target, outcome string) difflog.Entry {
	return difflog.Entry{
		Target:     target,
		ChangeType: models.ChangeAdd,
		Outcome:    outcome,
		Reason:     "test",
		Turn:       turn,
		At:         time.Now(),
	}
}

func TestInsertAndRecent(t *testing.T) {
	db := testDB(t)
	for i := 1; i <= 3; i++ {
		if err := db.Insert(entry(i, "f:a", "applied")); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	rows, err := db.Recent(2, "", "")
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0].Turn != 3 || rows[1].Turn != 2 {
		t.Errorf("newest-first order broken: %+v", rows)
	}
}

func TestRecentFilters(t *testing.T) {
	db := testDB(t)
	_ = db.Insert(entry(1, "f:a", "applied"))
	_ = db.Insert(entry(2, "f:b", "rejected:duplicate_content"))
	_ = db.Insert(entry(3, "f:a", "rejected:turn_budget"))

	rejected, err := db.Recent(10, "rejected", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(rejected) != 2 {
		t.Errorf("rejected rows = %d, want 2", len(rejected))
	}

	target, err := db.Recent(10, "", "f:a")
	if err != nil {
		t.Fatal(err)
	}
	if len(target) != 2 {
		t.Errorf("target rows = %d, want 2", len(target))
	}

	both, err := db.Recent(10, "rejected", "f:a")
	if err != nil {
		t.Fatal(err)
	}
	if len(both) != 1 || both[0].Outcome != "rejected:turn_budget" {
		t.Errorf("combined filter rows = %+v", both)
	}
}

func TestRebuildReplacesContent(t *testing.T) {
	db := testDB(t)
	_ = db.Insert(entry(1, "stale:x", "applied"))

	if err := db.Rebuild([]difflog.Entry{entry(5, "f:a", "applied"), entry(6, "f:b", "applied")}); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	rows, err := db.Recent(10, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	for _, r := range rows {
		if r.Target == "stale:x" {
			t.Error("stale row survived rebuild")
		}
	}
}

func TestTurnRange(t *testing.T) {
	db := testDB(t)
	for i := 1; i <= 5; i++ {
		_ = db.Insert(entry(i, "f:a", "applied"))
	}
	rows, err := db.TurnRange(2, 4)
	if err != nil {
		t.Fatalf("TurnRange: %v", err)
	}
	if len(rows) != 3 || rows[0].Turn != 2 || rows[2].Turn != 4 {
		t.Errorf("rows = %+v", rows)
	}
}
