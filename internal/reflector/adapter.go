// Package reflector translates raw reasoning output into structured
// diffs. It is a pure adapter: unparseable fragments are dropped and
// surfaced as warnings, never as errors, so a malformed reflection can
// never fail a turn.
package reflector

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/starford/ansuz/internal/models"
)

// rawDiff mirrors the reasoner's JSON diff shape before validation.
type rawDiff struct {
	Target     string   `json:"target"`
	ChangeType string   `json:"change_type"`
	Content    string   `json:"content"`
	Title      string   `json:"title"`
	Tags       []string `json:"tags"`
	Sources    []string `json:"sources"`
	ConfDelta  float64  `json:"conf_delta"`
	Priority   float64  `json:"priority"`
	Reason     string   `json:"reason"`
}

type envelope struct {
	Diffs []json.RawMessage `json:"diffs"`
}

// Adapter converts reasoning output into diffs.
type Adapter struct {
	maxPerTurn int
}

// NewAdapter creates an adapter; maxPerTurn caps the derived diffs
// (0 = unlimited).
func NewAdapter(maxPerTurn int) *Adapter {
	return &Adapter{maxPerTurn: maxPerTurn}
}

// Derive parses the reasoner's output into zero or more well-formed
// diffs attributed to the given turn. The returned warnings describe
// fragments that were dropped.
func (a *Adapter) Derive(log models.TurnLog, output []byte) ([]models.Diff, []string) {
	fragments, warn := splitFragments(output)
	warnings := warn

	var diffs []models.Diff
	for i, frag := range fragments {
		d, w := a.convert(log, frag, i)
		if w != "" {
			warnings = append(warnings, w)
			continue
		}
		diffs = append(diffs, d)
		if a.maxPerTurn > 0 && len(diffs) >= a.maxPerTurn {
			break
		}
	}
	return diffs, warnings
}

// splitFragments accepts either {"diffs":[...]} or a bare JSON array.
// Anything else yields no fragments and one warning.
func splitFragments(output []byte) ([]json.RawMessage, []string) {
	trimmed := strings.TrimSpace(string(output))
	if trimmed == "" {
		return nil, nil
	}

	var env envelope
	if err := json.Unmarshal([]byte(trimmed), &env); err == nil && env.Diffs != nil {
		return env.Diffs, nil
	}
	var arr []json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &arr); err == nil {
		return arr, nil
	}
	return nil, []string{"malformed reasoning output: not a diff envelope or array"}
}

func (a *Adapter) convert(log models.TurnLog, frag json.RawMessage, i int) (models.Diff, string) {
	var r rawDiff
	if err := json.Unmarshal(frag, &r); err != nil {
		return models.Diff{}, fmt.Sprintf("diff %d: malformed JSON object", i)
	}

	r.Target = strings.TrimSpace(r.Target)
	if r.Target == "" {
		return models.Diff{}, fmt.Sprintf("diff %d: missing target", i)
	}
	ct := models.ChangeType(strings.TrimSpace(r.ChangeType))
	if ct == "" {
		ct = models.ChangeAdd
	}
	if !ct.Valid() {
		return models.Diff{}, fmt.Sprintf("diff %d: unknown change_type %q", i, r.ChangeType)
	}
	if (ct == models.ChangeAdd || ct == models.ChangeUpdate) && strings.TrimSpace(r.Content) == "" {
		return models.Diff{}, fmt.Sprintf("diff %d: %s without content", i, ct)
	}
	if ct == models.ChangeMerge && len(r.Sources) == 0 {
		return models.Diff{}, fmt.Sprintf("diff %d: merge without sources", i)
	}

	reason := strings.TrimSpace(r.Reason)
	if reason == "" {
		reason = "turn " + fmt.Sprint(log.Turn) + " reflection"
	}
	return models.Diff{
		Target:    r.Target,
		Type:      ct,
		Content:   r.Content,
		Title:     strings.TrimSpace(r.Title),
		Tags:      r.Tags,
		Sources:   r.Sources,
		ConfDelta: r.ConfDelta,
		Priority:  clampPriority(r.Priority),
		Reason:    reason,
		Turn:      log.Turn,
	}, ""
}

func clampPriority(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
