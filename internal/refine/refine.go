// Package refine implements the periodic grow-and-refine pass: scored,
// lossy consolidation that bounds per-file section count. All mutation
// is expressed as ordinary merge diffs applied through the curator, so
// the audit trail stays single-path.
package refine

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/starford/ansuz/internal/curator"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/playbook"
	"github.com/starford/ansuz/internal/selector"
)

// Refiner consolidates playbook files down to a section budget.
type Refiner struct {
	store   *playbook.Store
	cur     *curator.Curator
	weights selector.Weights
	pool    int // K: consolidated sections produced per pass
	logger  *slog.Logger
}

// New creates a refiner. pool is clamped to at least 1.
func New(store *playbook.Store, cur *curator.Curator, weights selector.Weights, pool int, logger *slog.Logger) *Refiner {
	if pool < 1 {
		pool = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Refiner{store: store, cur: cur, weights: weights, pool: pool, logger: logger}
}

// Refine consolidates one file to at most maxSections sections. When the
// file is within budget this is a no-op. Otherwise the top
// maxSections-K sections by retention score are kept verbatim and the
// remaining tail is merged, grouped by tag similarity, into exactly K
// consolidated sections. A maxSections of 1 keeps nothing verbatim and
// collapses the file into a single section. Content that ends up in no
// surviving section is permanently gone; that is the policy, not an
// accident.
func (r *Refiner) Refine(file string, maxSections, turn int) (*models.RefinementReport, error) {
	f, err := r.store.GetFile(file)
	if err != nil {
		return nil, err
	}
	if maxSections < 1 {
		return nil, fmt.Errorf("refine: %s: max sections %d out of range", file, maxSections)
	}
	report := &models.RefinementReport{File: file, Before: len(f.Sections), After: len(f.Sections)}
	if len(f.Sections) <= maxSections {
		return report, nil
	}

	k := r.pool
	if k >= maxSections {
		k = maxSections - 1
	}
	if k < 1 {
		// maxSections == 1: nothing kept verbatim, the whole file
		// collapses into one consolidated section.
		k = 1
	}

	maxUsage, maxTurn := 0, 0
	for _, sec := range f.Sections {
		if sec.UsageCount > maxUsage {
			maxUsage = sec.UsageCount
		}
		if sec.LastUpdated > maxTurn {
			maxTurn = sec.LastUpdated
		}
	}

	// Stable sort keeps insertion order for equal scores.
	order := make([]int, len(f.Sections))
	scores := make([]float64, len(f.Sections))
	for i, sec := range f.Sections {
		order[i] = i
		scores[i] = r.weights.RetentionScore(sec, maxUsage, maxTurn)
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })

	keepN := maxSections - k
	for _, i := range order[:keepN] {
		report.Kept = append(report.Kept, f.Sections[i].ID)
	}
	tail := make([]*models.Section, 0, len(order)-keepN)
	for _, i := range order[keepN:] {
		tail = append(tail, f.Sections[i])
	}

	for _, bucket := range groupByTags(tail, k) {
		if len(bucket) == 1 {
			// Already a single section; it survives as-is.
			report.Merged = append(report.Merged, bucket[0].ID)
			continue
		}
		diff := mergeDiff(file, bucket, f, turn)
		if _, err := r.cur.ApplyRefinement(diff); err != nil {
			if curator.IsRejection(err) {
				report.Rejected++
				r.logger.Warn("refine: merge rejected",
					slog.String("file", file),
					slog.String("error", err.Error()))
				continue
			}
			return nil, fmt.Errorf("refine: %s: %w", file, err)
		}
		report.Merged = append(report.Merged, bucket[0].ID)
	}

	after, err := r.store.GetFile(file)
	if err != nil {
		return nil, err
	}
	report.After = len(after.Sections)
	r.logger.Info("refine: pass complete",
		slog.String("file", file),
		slog.Int("before", report.Before),
		slog.Int("after", report.After))
	return report, nil
}

// RefineAll refines every file in the store.
func (r *Refiner) RefineAll(maxSections, turn int) ([]models.RefinementReport, error) {
	var out []models.RefinementReport
	for _, name := range r.store.ListFiles() {
		rep, err := r.Refine(name, maxSections, turn)
		if err != nil {
			return out, err
		}
		out = append(out, *rep)
	}
	return out, nil
}

// mergeDiff builds the audit-visible merge for one bucket. The merged
// section takes the id of the bucket's highest-scoring member; sources
// are listed in the file's insertion order so concatenation is stable.
func mergeDiff(file string, bucket []*models.Section, f *models.PlaybookFile, turn int) models.Diff {
	pos := make(map[string]int, len(f.Sections))
	for i, sec := range f.Sections {
		pos[sec.ID] = i
	}
	sources := make([]string, len(bucket))
	for i, sec := range bucket {
		sources[i] = sec.ID
	}
	sort.SliceStable(sources, func(a, b int) bool { return pos[sources[a]] < pos[sources[b]] })

	return models.Diff{
		Target:  file + ":" + bucket[0].ID,
		Type:    models.ChangeMerge,
		Sources: sources,
		Reason:  "grow-and-refine consolidation",
		Turn:    turn,
	}
}

// groupByTags distributes sections into k buckets, preferring buckets
// whose accumulated tag set overlaps the section's tags. The k
// highest-scoring sections seed the buckets; ties go to the earliest
// bucket.
func groupByTags(tail []*models.Section, k int) [][]*models.Section {
	if k > len(tail) {
		k = len(tail)
	}
	buckets := make([][]*models.Section, k)
	bucketTags := make([]map[string]struct{}, k)
	for i := 0; i < k; i++ {
		buckets[i] = []*models.Section{tail[i]}
		bucketTags[i] = tagSet(tail[i].Tags)
	}

	for _, sec := range tail[k:] {
		best, bestScore := 0, -1.0
		for i := range buckets {
			score := jaccard(tagSet(sec.Tags), bucketTags[i])
			if score > bestScore {
				best, bestScore = i, score
			}
		}
		buckets[best] = append(buckets[best], sec)
		for _, t := range sec.Tags {
			bucketTags[best][t] = struct{}{}
		}
	}
	return buckets
}

func tagSet(tags []string) map[string]struct{} {
	out := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		out[t] = struct{}{}
	}
	return out
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
