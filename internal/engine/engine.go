// Package engine drives the per-turn curation pipeline: context
// selection → external reflection → diff derivation → curation →
// periodic refine. Every per-turn failure is contained at the turn
// boundary; the surrounding simulation loop never sees it as fatal.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/ansuz/internal/curator"
	"github.com/starford/ansuz/internal/memory"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/playbook"
	"github.com/starford/ansuz/internal/reasoner"
	"github.com/starford/ansuz/internal/reflector"
	"github.com/starford/ansuz/internal/refine"
	"github.com/starford/ansuz/internal/selector"
)

// Config tunes the turn pipeline.
type Config struct {
	Enabled          bool // curation on; off falls back to plain turn-log memory
	RefineInterval   int  // turns between refine passes, 0 = never
	MaxSections      int  // per-file budget enforced by refine
	ContextFragments int
	ContextChars     int
}

// Engine executes turns against one store. Strictly sequential: one
// RunTurn at a time per run.
type Engine struct {
	cfg     Config
	store   *playbook.Store
	cur     *curator.Curator
	sel     *selector.Selector
	ref     *refine.Refiner
	adapter *reflector.Adapter
	rsn     reasoner.Reasoner // nil when reflection is external-push only
	mem     *memory.Manager
	logger  *slog.Logger
}

// New assembles an engine. rsn and mem may be nil depending on mode.
func New(cfg Config, store *playbook.Store, cur *curator.Curator, sel *selector.Selector, ref *refine.Refiner, adapter *reflector.Adapter, rsn reasoner.Reasoner, mem *memory.Manager, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{cfg: cfg, store: store, cur: cur, sel: sel, ref: ref, adapter: adapter, rsn: rsn, mem: mem, logger: logger}
}

// TurnResult summarises one pipeline pass.
type TurnResult struct {
	Turn     int                       `json:"turn"`
	Context  []string                  `json:"context"`
	Applied  int                       `json:"applied"`
	Rejected int                       `json:"rejected"`
	Warnings []string                  `json:"warnings,omitempty"`
	Refined  []models.RefinementReport `json:"refined,omitempty"`
}

// RunTurn executes one full turn. reflection is the external reasoning
// output for the turn; when nil and a reasoner client is configured, the
// engine invokes it itself. The returned context is the playbook slice
// for the NEXT decision cycle.
func (e *Engine) RunTurn(ctx context.Context, log models.TurnLog, reflection []byte) (*TurnResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res := &TurnResult{Turn: log.Turn}

	if !e.cfg.Enabled {
		if err := e.mem.Record(log); err != nil {
			e.logger.Warn("engine: memory record failed", slog.String("error", err.Error()))
			res.Warnings = append(res.Warnings, err.Error())
		}
		res.Context = e.mem.Highlights(e.cfg.ContextFragments)
		return res, nil
	}

	if reflection == nil && e.rsn != nil {
		raw, err := e.rsn.Reflect(ctx, reasoner.Request{
			Turn:    log.Turn,
			Log:     log,
			Context: e.contextSnippets(e.sel.Preview(e.cfg.ContextFragments, e.cfg.ContextChars, log.Tags)),
		})
		if err != nil {
			// Timeout or failure degrades to zero diffs this turn.
			e.logger.Warn("engine: reflection unavailable",
				slog.Int("turn", log.Turn),
				slog.String("error", err.Error()))
			res.Warnings = append(res.Warnings, err.Error())
		} else {
			reflection = raw
		}
	}

	diffs, warnings := e.adapter.Derive(log, reflection)
	res.Warnings = append(res.Warnings, warnings...)
	for _, w := range warnings {
		e.logger.Warn("engine: malformed diff dropped", slog.Int("turn", log.Turn), slog.String("detail", w))
	}

	applied, rejected := e.cur.ApplyAll(diffs)
	res.Applied = len(applied)
	res.Rejected = rejected

	// Refine runs before selection: the returned context reflects the
	// consolidated store, not sections about to be merged away.
	if e.cfg.RefineInterval > 0 && log.Turn > 0 && log.Turn%e.cfg.RefineInterval == 0 {
		reports, err := e.ref.RefineAll(e.cfg.MaxSections, log.Turn)
		if err != nil {
			// Prior store state remains valid; the run continues on it.
			e.logger.Error("engine: refine pass failed", slog.Int("turn", log.Turn), slog.String("error", err.Error()))
			res.Warnings = append(res.Warnings, err.Error())
		}
		res.Refined = reports
	}

	sections, err := e.sel.Select(e.cfg.ContextFragments, e.cfg.ContextChars, log.Tags)
	if err != nil {
		e.logger.Warn("engine: usage tracking failed", slog.String("error", err.Error()))
		res.Warnings = append(res.Warnings, err.Error())
		sections = e.sel.Preview(e.cfg.ContextFragments, e.cfg.ContextChars, log.Tags)
	}
	res.Context = e.contextSnippets(sections)
	return res, nil
}

func (e *Engine) contextSnippets(sections []*models.Section) []string {
	out := make([]string, len(sections))
	for i, sec := range sections {
		out[i] = fmt.Sprintf("### %s\n%s", sec.Title, sec.Content)
	}
	return out
}

// Store exposes the underlying store for read-only surfaces.
func (e *Engine) Store() *playbook.Store { return e.store }
