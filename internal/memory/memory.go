// Package memory is the fallback knowledge path used when curation is
// disabled: a plain, unbounded turn-log memory with no scoring, no
// consolidation, and no audit trail. It exists so a run can opt out of
// the playbook engine without losing all cross-turn recall.
package memory

import (
	"fmt"
	"strings"

	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/storage"
)

const (
	turnLogFile  = "turns.log"
	alertLogFile = "alerts.log"
)

// Manager accumulates per-turn notes in memory and mirrors them to two
// flat log files under its own root.
type Manager struct {
	fs     storage.Provider
	turns  []string
	alerts []string
}

// NewManager creates a manager persisting under the given provider root.
func NewManager(fs storage.Provider) *Manager {
	return &Manager{fs: fs}
}

// Record appends the turn's summary and alerts and persists both logs.
func (m *Manager) Record(log models.TurnLog) error {
	if s := strings.TrimSpace(log.Summary); s != "" {
		m.turns = append(m.turns, fmt.Sprintf("turn %d: %s", log.Turn, s))
	}
	for _, f := range log.Failures {
		m.alerts = append(m.alerts, fmt.Sprintf("turn %d: failure: %s", log.Turn, f))
	}
	for _, w := range log.Warnings {
		m.alerts = append(m.alerts, fmt.Sprintf("turn %d: warning: %s", log.Turn, w))
	}

	if err := m.persist(turnLogFile, m.turns); err != nil {
		return err
	}
	return m.persist(alertLogFile, m.alerts)
}

// Highlights returns the most recent notes for prompt injection, newest
// alerts first, then recent turn summaries, capped at limit.
func (m *Manager) Highlights(limit int) []string {
	if limit <= 0 {
		limit = 3
	}
	var out []string
	if n := len(m.alerts); n > 0 {
		out = append(out, m.alerts[n-1])
	}
	for i := len(m.turns) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.turns[i])
	}
	return out
}

func (m *Manager) persist(name string, lines []string) error {
	data := []byte(strings.Join(lines, "\n") + "\n")
	if err := m.fs.Write(name, data); err != nil {
		return fmt.Errorf("memory: persist %s: %w", name, err)
	}
	return nil
}
