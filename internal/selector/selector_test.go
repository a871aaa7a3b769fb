package selector

import (
	"testing"

	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/playbook"
	"github.com/starford/ansuz/internal/storage"
)

func seedStore(t *testing.T, sections ...*models.Section) *playbook.Store {
	t.Helper()
	prov, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	store, err := playbook.NewStore(prov)
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range sections {
		s.File = "f"
	}
	if err := store.ReplaceFile("f", sections); err != nil {
		t.Fatal(err)
	}
	return store
}

func sec(id string, conf float64, usage, turn int, tags ...string) *models.Section {
	return &models.Section{
		ID:          id,
		Title:       "Section " + id,
		Content:     "content of " + id,
		Tags:        tags,
		UsageCount:  usage,
		Confidence:  conf,
		LastUpdated: turn,
	}
}

func ids(sections []*models.Section) []string {
	out := make([]string, len(sections))
	for i, s := range sections {
		out[i] = s.ID
	}
	return out
}

func TestPreviewDeterministic(t *testing.T) {
	store := seedStore(t,
		sec("a", 0.5, 0, 1), sec("b", 0.5, 0, 1), sec("c", 0.5, 0, 1))
	s := New(store, DefaultWeights())

	first := ids(s.Preview(2, 0, nil))
	for i := 0; i < 10; i++ {
		again := ids(s.Preview(2, 0, nil))
		if len(again) != len(first) {
			t.Fatalf("run %d: length changed", i)
		}
		for j := range first {
			if again[j] != first[j] {
				t.Fatalf("run %d: order changed: %v vs %v", i, first, again)
			}
		}
	}
	// Equal scores fall back to insertion order.
	if first[0] != "a" || first[1] != "b" {
		t.Errorf("tie-break order = %v, want insertion order", first)
	}
}

func TestFragmentBudget(t *testing.T) {
	store := seedStore(t, sec("a", 0.9, 0, 1), sec("b", 0.8, 0, 1), sec("c", 0.7, 0, 1))
	s := New(store, DefaultWeights())
	got := s.Preview(2, 0, nil)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
}

func TestCharBudgetNeverExceeded(t *testing.T) {
	store := seedStore(t, sec("a", 0.9, 0, 1), sec("b", 0.8, 0, 1), sec("c", 0.7, 0, 1))
	s := New(store, DefaultWeights())

	for budget := 1; budget <= 60; budget += 7 {
		total := 0
		for _, chosen := range s.Preview(0, budget, nil) {
			total += len(chosen.Content)
		}
		if total > budget {
			t.Errorf("budget %d exceeded: %d chars", budget, total)
		}
	}
}

func TestCharBudgetStopsAtFirstOverflow(t *testing.T) {
	// All contents are 12 chars ("content of x"). Budget of 25 admits two
	// sections, then stops; it does not skip ahead to a smaller one.
	store := seedStore(t, sec("a", 0.9, 0, 1), sec("b", 0.8, 0, 1), sec("c", 0.7, 0, 1))
	s := New(store, DefaultWeights())
	got := ids(s.Preview(0, 25, nil))
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("selection = %v, want [a b]", got)
	}
}

func TestTagBias(t *testing.T) {
	store := seedStore(t,
		sec("plain", 0.5, 0, 1),
		sec("tagged", 0.5, 0, 1, "io", "retry"))
	s := New(store, DefaultWeights())

	got := ids(s.Preview(1, 0, []string{"io"}))
	if len(got) != 1 || got[0] != "tagged" {
		t.Errorf("selection = %v, want the tag-matching section", got)
	}
}

func TestUsageInverted(t *testing.T) {
	store := seedStore(t,
		sec("worn", 0.5, 10, 1),
		sec("fresh", 0.5, 0, 1))
	s := New(store, DefaultWeights())

	got := ids(s.Preview(1, 0, nil))
	if len(got) != 1 || got[0] != "fresh" {
		t.Errorf("selection = %v, want the under-used section", got)
	}
}

func TestSelectTouchesUsage(t *testing.T) {
	store := seedStore(t, sec("a", 0.9, 0, 1), sec("b", 0.1, 0, 1))
	s := New(store, DefaultWeights())

	chosen, err := s.Select(1, 0, nil)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(chosen) != 1 || chosen[0].ID != "a" {
		t.Fatalf("chosen = %v", ids(chosen))
	}

	a, _ := store.ReadSection("f", "a")
	b, _ := store.ReadSection("f", "b")
	if a.UsageCount != 1 || b.UsageCount != 0 {
		t.Errorf("usage a=%d b=%d, want 1 and 0", a.UsageCount, b.UsageCount)
	}
}

func TestPreviewNoSideEffect(t *testing.T) {
	store := seedStore(t, sec("a", 0.9, 0, 1))
	s := New(store, DefaultWeights())
	_ = s.Preview(1, 0, nil)
	a, _ := store.ReadSection("f", "a")
	if a.UsageCount != 0 {
		t.Errorf("Preview bumped usage to %d", a.UsageCount)
	}
}

func TestEmptyStore(t *testing.T) {
	prov, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	store, err := playbook.NewStore(prov)
	if err != nil {
		t.Fatal(err)
	}
	s := New(store, DefaultWeights())
	if got := s.Preview(3, 100, nil); got != nil {
		t.Errorf("Preview on empty store = %v", got)
	}
}
