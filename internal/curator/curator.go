// Package curator applies structured diffs to the playbook store. It is
// the only component that mutates sections; every attempt, applied or
// rejected, lands in the diff log with its outcome before Apply returns.
package curator

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/difflog"
	"github.com/starford/ansuz/internal/history"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/playbook"
)

// Rejection reasons recorded in the diff log outcome field.
const (
	ReasonBadTarget        = "bad_target"
	ReasonUnsupported      = "unsupported_change_type"
	ReasonEmptyContent     = "empty_content"
	ReasonDuplicateID      = "duplicate_id"
	ReasonDuplicateContent = "duplicate_content"
	ReasonNotFound         = "not_found"
	ReasonTurnBudget       = "turn_budget"
	ReasonStorageWrite     = "storage_write"
)

// EventFunc receives a notification after each recorded curation attempt.
type EventFunc func(target, changeType, outcome string, turn int)

// Config tunes curation behaviour.
type Config struct {
	DefaultConfidence float64 // initial confidence for added sections
	MergeSeparator    string  // content join used when a merge carries no body
	MaxPerTurn        int     // applied-diff cap per turn, 0 = unlimited
}

// Curator validates and applies diffs.
type Curator struct {
	store  *playbook.Store
	log    *difflog.Log
	hist   *history.DB
	events EventFunc
	logger *slog.Logger
	cfg    Config
	now    func() time.Time

	lastTurn    int
	turnApplied int
}

// New creates a curator. hist and events may be nil.
func New(store *playbook.Store, log *difflog.Log, hist *history.DB, events EventFunc, logger *slog.Logger, cfg Config) *Curator {
	if cfg.DefaultConfidence <= 0 || cfg.DefaultConfidence > 1 {
		cfg.DefaultConfidence = 0.5
	}
	if cfg.MergeSeparator == "" {
		cfg.MergeSeparator = "\n\n"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Curator{
		store:    store,
		log:      log,
		hist:     hist,
		events:   events,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
		lastTurn: -1,
	}
}

// Apply validates a single diff and applies it to the store. The diff is
// recorded in the log regardless of outcome. On rejection the store is
// untouched and the returned error wraps the matching apperr sentinel.
func (c *Curator) Apply(d models.Diff) (*models.AppliedChange, error) {
	if c.cfg.MaxPerTurn > 0 {
		if d.Turn != c.lastTurn {
			c.lastTurn = d.Turn
			c.turnApplied = 0
		}
		if c.turnApplied >= c.cfg.MaxPerTurn {
			return nil, c.reject(d, ReasonTurnBudget, apperr.ErrMalformed)
		}
	}
	return c.apply(d)
}

// ApplyRefinement applies a diff produced by the grow-and-refine pass.
// Identical to Apply except the per-turn budget does not apply: the
// budget throttles reflection output, not consolidation.
func (c *Curator) ApplyRefinement(d models.Diff) (*models.AppliedChange, error) {
	return c.apply(d)
}

func (c *Curator) apply(d models.Diff) (*models.AppliedChange, error) {
	file, id := models.SplitTarget(d.Target)
	if file == "" {
		return nil, c.reject(d, ReasonBadTarget, apperr.ErrMalformed)
	}
	if !d.Type.Valid() {
		return nil, c.reject(d, ReasonUnsupported, apperr.ErrMalformed)
	}

	var (
		change *models.AppliedChange
		reason string
		serr   error
	)
	switch d.Type {
	case models.ChangeAdd:
		change, reason, serr = c.applyAdd(d, file, id)
	case models.ChangeUpdate:
		change, reason, serr = c.applyUpdate(d, file, id)
	case models.ChangeRemove:
		change, reason, serr = c.applyRemove(d, file, id)
	case models.ChangeMerge:
		change, reason, serr = c.applyMerge(d, file, id)
	}

	if serr != nil {
		return nil, c.rejectErr(d, ReasonStorageWrite, serr)
	}
	if reason != "" {
		return nil, c.reject(d, reason, reasonSentinel(reason))
	}

	c.turnApplied++
	c.record(d, models.OutcomeApplied)
	return change, nil
}

// ApplyAll sorts diffs by descending priority (stable: earlier diffs win
// ties) and applies each in turn. It returns the applied changes and the
// number of rejections; individual errors never abort the batch.
func (c *Curator) ApplyAll(diffs []models.Diff) ([]models.AppliedChange, int) {
	ordered := append([]models.Diff(nil), diffs...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority > ordered[j].Priority })

	var applied []models.AppliedChange
	rejected := 0
	for _, d := range ordered {
		change, err := c.Apply(d)
		if err != nil {
			rejected++
			c.logger.Warn("curator: diff rejected",
				slog.String("target", d.Target),
				slog.String("change_type", string(d.Type)),
				slog.String("error", err.Error()))
			continue
		}
		applied = append(applied, *change)
	}
	return applied, rejected
}

func (c *Curator) applyAdd(d models.Diff, file, id string) (*models.AppliedChange, string, error) {
	if strings.TrimSpace(d.Content) == "" {
		return nil, ReasonEmptyContent, nil
	}
	snap := c.store.Snapshot(file)
	if id == "" {
		id = uuid.NewString()[:8]
	}
	if snap.Section(id) != nil {
		return nil, ReasonDuplicateID, nil
	}
	if c.store.Contains(file, d.Content) {
		return nil, ReasonDuplicateContent, nil
	}

	sec := &models.Section{
		ID:          id,
		File:        file,
		Title:       sectionTitle(d, id),
		Content:     strings.TrimSpace(d.Content),
		Tags:        dedupe(d.Tags),
		UsageCount:  0,
		Confidence:  clamp(c.cfg.DefaultConfidence),
		LastUpdated: d.Turn,
	}
	snap.Sections = append(snap.Sections, sec)
	if err := c.store.ReplaceFile(file, snap.Sections); err != nil {
		return nil, "", err
	}
	return &models.AppliedChange{Diff: d, File: file, Section: id}, "", nil
}

func (c *Curator) applyUpdate(d models.Diff, file, id string) (*models.AppliedChange, string, error) {
	if id == "" {
		return nil, ReasonBadTarget, nil
	}
	if strings.TrimSpace(d.Content) == "" {
		return nil, ReasonEmptyContent, nil
	}
	snap := c.store.Snapshot(file)
	sec := snap.Section(id)
	if sec == nil {
		return nil, ReasonNotFound, nil
	}

	sec.Content = strings.TrimSpace(d.Content)
	if d.Title != "" {
		sec.Title = d.Title
	}
	if len(d.Tags) > 0 {
		sec.Tags = unionTags(sec.Tags, d.Tags)
	}
	sec.Confidence = clamp(sec.Confidence + boundedDelta(d.ConfDelta))
	sec.LastUpdated = d.Turn

	if err := c.store.ReplaceFile(file, snap.Sections); err != nil {
		return nil, "", err
	}
	return &models.AppliedChange{Diff: d, File: file, Section: id}, "", nil
}

func (c *Curator) applyRemove(d models.Diff, file, id string) (*models.AppliedChange, string, error) {
	if id == "" {
		return nil, ReasonBadTarget, nil
	}
	snap := c.store.Snapshot(file)
	idx := -1
	for i, s := range snap.Sections {
		if s.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, ReasonNotFound, nil
	}
	next := append(snap.Sections[:idx:idx], snap.Sections[idx+1:]...)
	if err := c.store.ReplaceFile(file, next); err != nil {
		return nil, "", err
	}
	return &models.AppliedChange{Diff: d, File: file, Section: id, Removed: []string{id}}, "", nil
}

func (c *Curator) applyMerge(d models.Diff, file, id string) (*models.AppliedChange, string, error) {
	if id == "" || len(d.Sources) == 0 {
		return nil, ReasonBadTarget, nil
	}
	snap := c.store.Snapshot(file)

	// Merging into an existing id consumes that section as well.
	sources := append([]string(nil), d.Sources...)
	if snap.Section(id) != nil && !containsStr(sources, id) {
		sources = append([]string{id}, sources...)
	}
	if len(sources) < 2 {
		return nil, ReasonBadTarget, nil
	}

	consumed := make([]*models.Section, 0, len(sources))
	for _, sid := range sources {
		sec := snap.Section(sid)
		if sec == nil {
			return nil, ReasonNotFound, nil
		}
		consumed = append(consumed, sec)
	}

	merged := &models.Section{
		ID:          id,
		File:        file,
		Title:       mergeTitle(d, consumed),
		Content:     mergeContent(d, consumed, c.cfg.MergeSeparator),
		Tags:        mergeTags(d, consumed),
		LastUpdated: d.Turn,
	}
	for _, sec := range consumed {
		merged.UsageCount += sec.UsageCount
		if sec.Confidence > merged.Confidence {
			merged.Confidence = sec.Confidence
		}
	}
	merged.Confidence = clamp(merged.Confidence)

	// Rebuild the file: merged section takes the position of the first
	// consumed section, the rest disappear.
	drop := make(map[string]struct{}, len(sources))
	for _, sid := range sources {
		drop[sid] = struct{}{}
	}
	next := make([]*models.Section, 0, len(snap.Sections))
	placed := false
	for _, s := range snap.Sections {
		if _, gone := drop[s.ID]; gone {
			if !placed {
				next = append(next, merged)
				placed = true
			}
			continue
		}
		next = append(next, s)
	}

	if err := c.store.ReplaceFile(file, next); err != nil {
		return nil, "", err
	}
	return &models.AppliedChange{Diff: d, File: file, Section: id, Removed: sources}, "", nil
}

// record appends the outcome to the diff log and mirrors it into the
// history index and event feed.
func (c *Curator) record(d models.Diff, outcome string) {
	entry := difflog.FromDiff(d, outcome, c.now().UTC())
	if err := c.log.Append(entry); err != nil {
		c.logger.Error("curator: diff log append failed", slog.String("error", err.Error()))
	}
	if c.hist != nil {
		if err := c.hist.Insert(entry); err != nil {
			c.logger.Warn("curator: history insert failed", slog.String("error", err.Error()))
		}
	}
	if c.events != nil {
		c.events(d.Target, string(d.Type), outcome, d.Turn)
	}
}

func (c *Curator) reject(d models.Diff, reason string, sentinel error) error {
	c.record(d, models.RejectedOutcome(reason))
	return fmt.Errorf("curator: %s %s: %s: %w", d.Type, d.Target, reason, sentinel)
}

func (c *Curator) rejectErr(d models.Diff, reason string, err error) error {
	c.record(d, models.RejectedOutcome(reason))
	return fmt.Errorf("curator: %s %s: %w", d.Type, d.Target, err)
}

func reasonSentinel(reason string) error {
	switch reason {
	case ReasonNotFound:
		return apperr.ErrNotFound
	case ReasonDuplicateID, ReasonDuplicateContent:
		return apperr.ErrDuplicateID
	default:
		return apperr.ErrMalformed
	}
}

// clamp bounds confidence to [0,1] and rounds to two decimals so the
// value survives the rendered-file round trip unchanged.
func clamp(v float64) float64 {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return math.Round(v*100) / 100
}

// boundedDelta limits a confidence adjustment to [-1,1].
func boundedDelta(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}

func sectionTitle(d models.Diff, id string) string {
	if d.Title != "" {
		return d.Title
	}
	line := strings.TrimSpace(strings.SplitN(d.Content, "\n", 2)[0])
	line = strings.TrimLeft(line, "# ")
	if line != "" {
		const maxTitle = 72
		if len(line) > maxTitle {
			line = line[:maxTitle]
		}
		return line
	}
	return id
}

func mergeTitle(d models.Diff, consumed []*models.Section) string {
	if d.Title != "" {
		return d.Title
	}
	return consumed[0].Title
}

func mergeContent(d models.Diff, consumed []*models.Section, sep string) string {
	if strings.TrimSpace(d.Content) != "" {
		return strings.TrimSpace(d.Content)
	}
	parts := make([]string, len(consumed))
	for i, s := range consumed {
		parts[i] = s.Content
	}
	return strings.Join(parts, sep)
}

func mergeTags(d models.Diff, consumed []*models.Section) []string {
	all := append([]string(nil), d.Tags...)
	for _, s := range consumed {
		all = append(all, s.Tags...)
	}
	return dedupe(all)
}

func unionTags(a, b []string) []string {
	return dedupe(append(append([]string(nil), a...), b...))
}

func dedupe(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	var out []string
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func containsStr(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// IsRejection reports whether err is a curation rejection rather than an
// infrastructure failure.
func IsRejection(err error) bool {
	return errors.Is(err, apperr.ErrNotFound) ||
		errors.Is(err, apperr.ErrDuplicateID) ||
		errors.Is(err, apperr.ErrMalformed)
}
