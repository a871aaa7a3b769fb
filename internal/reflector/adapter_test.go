package reflector

import (
	"testing"

	"github.com/starford/ansuz/internal/models"
)

var turn7 = models.TurnLog{Turn: 7, Summary: "did things"}

func TestDeriveEnvelope(t *testing.T) {
	a := NewAdapter(0)
	out := []byte(`{"diffs":[{"target":"tactics:a","change_type":"add","content":"lesson"}]}`)
	diffs, warnings := a.Derive(turn7, out)
	if len(warnings) != 0 {
		t.Fatalf("warnings = %v", warnings)
	}
	if len(diffs) != 1 {
		t.Fatalf("diffs = %d, want 1", len(diffs))
	}
	d := diffs[0]
	if d.Target != "tactics:a" || d.Type != models.ChangeAdd || d.Content != "lesson" {
		t.Errorf("diff = %+v", d)
	}
	if d.Turn != 7 {
		t.Errorf("turn = %d, want 7", d.Turn)
	}
	if d.Reason != "turn 7 reflection" {
		t.Errorf("reason = %q", d.Reason)
	}
}

func TestDeriveBareArray(t *testing.T) {
	a := NewAdapter(0)
	out := []byte(`[{"target":"f:a","content":"x"},{"target":"f:b","content":"y"}]`)
	diffs, warnings := a.Derive(turn7, out)
	if len(warnings) != 0 || len(diffs) != 2 {
		t.Fatalf("diffs = %d warnings = %v", len(diffs), warnings)
	}
	// change_type defaults to add.
	if diffs[0].Type != models.ChangeAdd {
		t.Errorf("type = %q", diffs[0].Type)
	}
}

func TestDeriveEmptyOutput(t *testing.T) {
	a := NewAdapter(0)
	for _, out := range [][]byte{nil, []byte(""), []byte("   \n")} {
		diffs, warnings := a.Derive(turn7, out)
		if diffs != nil || warnings != nil {
			t.Errorf("Derive(%q) = %v, %v, want nothing", out, diffs, warnings)
		}
	}
}

func TestDeriveGarbage(t *testing.T) {
	a := NewAdapter(0)
	diffs, warnings := a.Derive(turn7, []byte("I could not produce JSON today."))
	if len(diffs) != 0 {
		t.Errorf("diffs = %v", diffs)
	}
	if len(warnings) != 1 {
		t.Errorf("warnings = %v, want one", warnings)
	}
}

func TestDeriveDropsInvalidFragments(t *testing.T) {
	a := NewAdapter(0)
	out := []byte(`[
		{"target":"f:ok","content":"fine"},
		{"change_type":"add","content":"no target"},
		{"target":"f:x","change_type":"explode","content":"y"},
		{"target":"f:y","change_type":"update"},
		{"target":"f:z","change_type":"merge"}
	]`)
	diffs, warnings := a.Derive(turn7, out)
	if len(diffs) != 1 || diffs[0].Target != "f:ok" {
		t.Fatalf("diffs = %+v", diffs)
	}
	if len(warnings) != 4 {
		t.Errorf("warnings = %v, want 4", warnings)
	}
}

func TestDeriveCapsAtMax(t *testing.T) {
	a := NewAdapter(2)
	out := []byte(`[
		{"target":"f:a","content":"1"},
		{"target":"f:b","content":"2"},
		{"target":"f:c","content":"3"}
	]`)
	diffs, _ := a.Derive(turn7, out)
	if len(diffs) != 2 {
		t.Errorf("diffs = %d, want capped at 2", len(diffs))
	}
}

func TestDerivePriorityClamped(t *testing.T) {
	a := NewAdapter(0)
	out := []byte(`[{"target":"f:a","content":"x","priority":7.5}]`)
	diffs, _ := a.Derive(turn7, out)
	if len(diffs) != 1 || diffs[0].Priority != 1 {
		t.Errorf("priority = %v, want 1", diffs[0].Priority)
	}
}
