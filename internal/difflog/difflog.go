// Package difflog maintains the append-only audit record of every diff
// ever presented to the curator, independent of current store content.
// One JSON object per line; replayable without the store.
package difflog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/storage"
)

// HistoryPath is the log location relative to the store root. The .jsonl
// extension keeps it out of the playbook file scan.
const HistoryPath = "deltas/history.jsonl"

// Entry is one recorded curation attempt. The diff is carried verbatim;
// Outcome is "applied" or "rejected:<reason>".
type Entry struct {
	Target     string            `json:"target"`
	ChangeType models.ChangeType `json:"change_type"`
	Content    string            `json:"content,omitempty"`
	Title      string            `json:"title,omitempty"`
	Tags       []string          `json:"tags,omitempty"`
	Sources    []string          `json:"sources,omitempty"`
	ConfDelta  float64           `json:"conf_delta,omitempty"`
	Priority   float64           `json:"priority,omitempty"`
	Reason     string            `json:"reason"`
	Turn       int               `json:"turn"`
	Outcome    string            `json:"outcome"`
	At         time.Time         `json:"at"`
}

// FromDiff builds a log entry for a diff and its outcome.
func FromDiff(d models.Diff, outcome string, at time.Time) Entry {
	return Entry{
		Target:     d.Target,
		ChangeType: d.Type,
		Content:    d.Content,
		Title:      d.Title,
		Tags:       d.Tags,
		Sources:    d.Sources,
		ConfDelta:  d.ConfDelta,
		Priority:   d.Priority,
		Reason:     d.Reason,
		Turn:       d.Turn,
		Outcome:    outcome,
		At:         at,
	}
}

// Log appends entries under the store root.
type Log struct {
	fs storage.Provider
}

// New creates a diff log writing below the given store root.
func New(fs storage.Provider) *Log {
	return &Log{fs: fs}
}

// Append records one entry. Failures here are reported but must not
// block curation; the caller decides how loudly to complain.
func (l *Log) Append(e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("difflog: marshal: %w", err)
	}
	if err := l.fs.Append(HistoryPath, append(data, '\n')); err != nil {
		return fmt.Errorf("difflog: append: %w", err)
	}
	return nil
}

// Replay reads every recorded entry in order. A missing log file is an
// empty history, not an error. Unparseable lines are skipped: the log
// may legitimately end in a torn line after a crash.
func (l *Log) Replay() ([]Entry, error) {
	data, err := l.fs.Read(HistoryPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("difflog: read: %w", err)
	}

	var out []Entry
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("difflog: scan: %w", err)
	}
	return out, nil
}
