package engine

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/starford/ansuz/internal/curator"
	"github.com/starford/ansuz/internal/difflog"
	"github.com/starford/ansuz/internal/memory"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/playbook"
	"github.com/starford/ansuz/internal/reasoner"
	"github.com/starford/ansuz/internal/reflector"
	"github.com/starford/ansuz/internal/refine"
	"github.com/starford/ansuz/internal/selector"
	"github.com/starford/ansuz/internal/storage"
)

func newEngine(t *testing.T, cfg Config) (*Engine, *playbook.Store) {
	t.Helper()
	prov, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	store, err := playbook.NewStore(prov)
	if err != nil {
		t.Fatal(err)
	}
	log := difflog.New(prov)
	cur := curator.New(store, log, nil, nil, slog.Default(), curator.Config{DefaultConfidence: 0.5, MaxPerTurn: 5})
	sel := selector.New(store, selector.DefaultWeights())
	ref := refine.New(store, cur, selector.RetentionWeights(), 1, slog.Default())
	adapter := reflector.NewAdapter(5)

	var mem *memory.Manager
	if !cfg.Enabled {
		memProv, err := storage.NewFS(t.TempDir())
		if err != nil {
			t.Fatal(err)
		}
		mem = memory.NewManager(memProv)
	}
	return New(cfg, store, cur, sel, ref, adapter, nil, mem, slog.Default()), store
}

func enabledConfig() Config {
	return Config{Enabled: true, RefineInterval: 10, MaxSections: 6, ContextFragments: 3, ContextChars: 4000}
}

func TestDisabledFallsBackToMemory(t *testing.T) {
	e, store := newEngine(t, Config{Enabled: false, ContextFragments: 3})
	res, err := e.RunTurn(context.Background(), models.TurnLog{Turn: 1, Summary: "scouted ahead"}, nil)
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if len(res.Context) != 1 || !strings.Contains(res.Context[0], "scouted ahead") {
		t.Errorf("context = %v", res.Context)
	}
	if len(store.ListFiles()) != 0 {
		t.Errorf("disabled engine touched the store: %v", store.ListFiles())
	}
}

func TestTurnAppliesReflection(t *testing.T) {
	e, store := newEngine(t, enabledConfig())
	reflection := []byte(`{"diffs":[
		{"target":"tactics:dig","change_type":"add","content":"Dig down carefully.","tags":["mining"]}
	]}`)

	res, err := e.RunTurn(context.Background(), models.TurnLog{Turn: 1}, reflection)
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if res.Applied != 1 || res.Rejected != 0 {
		t.Fatalf("result = %+v", res)
	}
	sec, err := store.ReadSection("tactics", "dig")
	if err != nil {
		t.Fatalf("ReadSection: %v", err)
	}
	if sec.Content != "Dig down carefully." {
		t.Errorf("content = %q", sec.Content)
	}
	// The new section flows into the next turn's context.
	if len(res.Context) != 1 || !strings.Contains(res.Context[0], "Dig down carefully.") {
		t.Errorf("context = %v", res.Context)
	}
}

func TestTurnAddThenUpdate(t *testing.T) {
	e, store := newEngine(t, enabledConfig())
	_, err := e.RunTurn(context.Background(), models.TurnLog{Turn: 1},
		[]byte(`[{"target":"f:a","change_type":"add","content":"first draft"}]`))
	if err != nil {
		t.Fatal(err)
	}
	res, err := e.RunTurn(context.Background(), models.TurnLog{Turn: 2},
		[]byte(`[{"target":"f:a","change_type":"update","content":"second draft","conf_delta":0.1}]`))
	if err != nil {
		t.Fatal(err)
	}
	if res.Applied != 1 {
		t.Fatalf("result = %+v", res)
	}
	sec, _ := store.ReadSection("f", "a")
	if sec.Content != "second draft" || sec.Confidence != 0.6 || sec.LastUpdated != 2 {
		t.Errorf("section = %+v", sec)
	}
}

func TestTurnSurfacesWarnings(t *testing.T) {
	e, _ := newEngine(t, enabledConfig())
	res, err := e.RunTurn(context.Background(), models.TurnLog{Turn: 1}, []byte("not json at all"))
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if res.Applied != 0 || len(res.Warnings) == 0 {
		t.Errorf("result = %+v, want warnings and no applies", res)
	}
}

func TestRefineCadence(t *testing.T) {
	cfg := enabledConfig()
	cfg.RefineInterval = 3
	cfg.MaxSections = 2
	e, store := newEngine(t, cfg)

	// Grow past the budget on non-refine turns.
	for turn, id := range map[int]string{1: "a", 2: "b"} {
		if _, err := e.RunTurn(context.Background(), models.TurnLog{Turn: turn},
			[]byte(`[{"target":"f:`+id+`","change_type":"add","content":"body of `+id+`"}]`)); err != nil {
			t.Fatal(err)
		}
	}
	res, err := e.RunTurn(context.Background(), models.TurnLog{Turn: 3},
		[]byte(`[{"target":"f:c","change_type":"add","content":"body of c"}]`))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Refined) == 0 {
		t.Fatal("turn 3 should have run a refine pass")
	}
	f, _ := store.GetFile("f")
	if len(f.Sections) > 2 {
		t.Errorf("sections = %d, want at most 2 after refine", len(f.Sections))
	}
}

type stubReasoner struct {
	out []byte
	err error
}

func (s stubReasoner) Reflect(_ context.Context, _ reasoner.Request) ([]byte, error) {
	return s.out, s.err
}

func TestReasonerInvokedWhenNoReflection(t *testing.T) {
	e, store := newEngine(t, enabledConfig())
	e.rsn = stubReasoner{out: []byte(`[{"target":"f:a","content":"from reasoner"}]`)}

	res, err := e.RunTurn(context.Background(), models.TurnLog{Turn: 1}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Applied != 1 {
		t.Fatalf("result = %+v", res)
	}
	if _, err := store.ReadSection("f", "a"); err != nil {
		t.Errorf("section missing: %v", err)
	}
}

func TestReasonerFailureContained(t *testing.T) {
	e, _ := newEngine(t, enabledConfig())
	e.rsn = stubReasoner{err: context.DeadlineExceeded}

	res, err := e.RunTurn(context.Background(), models.TurnLog{Turn: 1}, nil)
	if err != nil {
		t.Fatalf("RunTurn should contain reasoner failure, got %v", err)
	}
	if res.Applied != 0 || len(res.Warnings) == 0 {
		t.Errorf("result = %+v", res)
	}
}
