package models

import (
	"fmt"
	"strings"
)

// ChangeType enumerates the supported playbook mutations.
type ChangeType string

const (
	ChangeAdd    ChangeType = "add"
	ChangeUpdate ChangeType = "update"
	ChangeRemove ChangeType = "remove"
	ChangeMerge  ChangeType = "merge"
)

// Valid reports whether c is one of the closed set of change types.
func (c ChangeType) Valid() bool {
	switch c {
	case ChangeAdd, ChangeUpdate, ChangeRemove, ChangeMerge:
		return true
	}
	return false
}

// Diff is a single structured mutation request against the playbook.
// Target is a file name, or "file:section_id" for section-scoped changes.
type Diff struct {
	Target    string     `json:"target"`
	Type      ChangeType `json:"change_type"`
	Content   string     `json:"content,omitempty"`
	Title     string     `json:"title,omitempty"`
	Tags      []string   `json:"tags,omitempty"`
	Sources   []string   `json:"sources,omitempty"`    // merge: ids consumed by the merge
	ConfDelta float64    `json:"conf_delta,omitempty"` // update: bounded confidence adjustment
	Priority  float64    `json:"priority,omitempty"`
	Reason    string     `json:"reason"`
	Turn      int        `json:"turn"`
}

// SplitTarget separates a diff target into its file name and optional
// section id. "fear:lava-pits" yields ("fear", "lava-pits");
// "fear" yields ("fear", "").
func SplitTarget(target string) (file, id string) {
	if i := strings.IndexByte(target, ':'); i >= 0 {
		return target[:i], target[i+1:]
	}
	return target, ""
}

// Outcome values recorded in the diff log.
const (
	OutcomeApplied = "applied"
)

// RejectedOutcome formats a rejection outcome for the diff log.
func RejectedOutcome(reason string) string {
	return fmt.Sprintf("rejected:%s", reason)
}

// AppliedChange describes a successfully applied diff.
type AppliedChange struct {
	Diff    Diff     `json:"diff"`
	File    string   `json:"file"`
	Section string   `json:"section"`
	Removed []string `json:"removed,omitempty"` // ids consumed by merge/remove
}

// RefinementReport summarises one grow-and-refine pass over a file.
type RefinementReport struct {
	File     string   `json:"file"`
	Before   int      `json:"before"`
	After    int      `json:"after"`
	Kept     []string `json:"kept,omitempty"`
	Merged   []string `json:"merged,omitempty"` // ids of the consolidated sections produced
	Rejected int      `json:"rejected"`
}
