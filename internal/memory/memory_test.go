package memory

import (
	"strings"
	"testing"

	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/storage"
)

func newManager(t *testing.T) (*Manager, storage.Provider) {
	t.Helper()
	prov, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return NewManager(prov), prov
}

func TestRecordPersists(t *testing.T) {
	m, prov := newManager(t)
	err := m.Record(models.TurnLog{
		Turn:     3,
		Summary:  "explored the cave",
		Failures: []string{"fell in lava"},
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	turns, err := prov.Read("turns.log")
	if err != nil {
		t.Fatalf("read turns: %v", err)
	}
	if !strings.Contains(string(turns), "turn 3: explored the cave") {
		t.Errorf("turns log = %q", turns)
	}
	alerts, err := prov.Read("alerts.log")
	if err != nil {
		t.Fatalf("read alerts: %v", err)
	}
	if !strings.Contains(string(alerts), "turn 3: failure: fell in lava") {
		t.Errorf("alerts log = %q", alerts)
	}
}

func TestHighlightsNewestAlertFirst(t *testing.T) {
	m, _ := newManager(t)
	_ = m.Record(models.TurnLog{Turn: 1, Summary: "one"})
	_ = m.Record(models.TurnLog{Turn: 2, Summary: "two", Warnings: []string{"low health"}})
	_ = m.Record(models.TurnLog{Turn: 3, Summary: "three"})

	got := m.Highlights(3)
	if len(got) != 3 {
		t.Fatalf("highlights = %v", got)
	}
	if !strings.Contains(got[0], "warning: low health") {
		t.Errorf("first highlight = %q, want the newest alert", got[0])
	}
	if !strings.Contains(got[1], "turn 3") || !strings.Contains(got[2], "turn 2") {
		t.Errorf("summaries not newest first: %v", got)
	}
}

func TestHighlightsEmpty(t *testing.T) {
	m, _ := newManager(t)
	if got := m.Highlights(3); len(got) != 0 {
		t.Errorf("highlights = %v, want none", got)
	}
}
