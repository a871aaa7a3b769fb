// Package selector chooses a bounded, deterministic slice of playbook
// content for the next turn's prompt.
package selector

import (
	"sort"

	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/playbook"
)

// Weights combine the scoring factors. They are configuration, not
// constants: the source material never fixed an exact formula.
type Weights struct {
	Confidence float64 `yaml:"confidence"`
	Usage      float64 `yaml:"usage"`
	Recency    float64 `yaml:"recency"`
	Tags       float64 `yaml:"tags"`
}

// DefaultWeights favours trusted but under-used knowledge so newly
// curated sections are not starved by veterans.
func DefaultWeights() Weights {
	return Weights{Confidence: 0.4, Usage: 0.2, Recency: 0.2, Tags: 0.2}
}

// RetentionWeights is the refine-pass preset: confidence and usage
// dominate so proven knowledge survives consolidation.
func RetentionWeights() Weights {
	return Weights{Confidence: 0.45, Usage: 0.35, Recency: 0.15, Tags: 0.05}
}

// Score rates one section. maxUsage and maxTurn normalise usage and
// recency across the candidate set; queryTags may be nil. The usage
// factor is inverted: rarely used sections score higher.
func (w Weights) Score(sec *models.Section, maxUsage, maxTurn int, queryTags []string) float64 {
	score := w.Confidence * sec.Confidence

	if maxUsage > 0 {
		score += w.Usage * (1 - float64(sec.UsageCount)/float64(maxUsage))
	} else {
		score += w.Usage
	}
	if maxTurn > 0 {
		score += w.Recency * (float64(sec.LastUpdated) / float64(maxTurn))
	}
	if len(queryTags) > 0 {
		overlap := 0
		for _, t := range queryTags {
			if sec.HasTag(t) {
				overlap++
			}
		}
		score += w.Tags * float64(overlap) / float64(len(queryTags))
	}
	return score
}

// RetentionScore rates a section for a refine pass: same factors, usage
// counts positively (proven knowledge is kept, not rotated out).
func (w Weights) RetentionScore(sec *models.Section, maxUsage, maxTurn int) float64 {
	score := w.Confidence * sec.Confidence
	if maxUsage > 0 {
		score += w.Usage * (float64(sec.UsageCount) / float64(maxUsage))
	}
	if maxTurn > 0 {
		score += w.Recency * (float64(sec.LastUpdated) / float64(maxTurn))
	}
	return score
}

// Selector performs budgeted context selection against the store.
type Selector struct {
	store   *playbook.Store
	weights Weights
}

// New creates a selector.
func New(store *playbook.Store, weights Weights) *Selector {
	return &Selector{store: store, weights: weights}
}

// Select returns sections by descending score until either
// budgetFragments sections are chosen or adding the next section would
// exceed budgetChars of concatenated content. Ties break by insertion
// order, earlier wins, so identical snapshots and budgets produce
// identical output. Each selected section's usage count is incremented
// and persisted; Preview is the read-only variant.
func (s *Selector) Select(budgetFragments, budgetChars int, queryTags []string) ([]*models.Section, error) {
	chosen := s.pick(budgetFragments, budgetChars, queryTags)

	byFile := make(map[string][]string)
	for _, sec := range chosen {
		byFile[sec.File] = append(byFile[sec.File], sec.ID)
	}
	for file, ids := range byFile {
		if err := s.store.Touch(file, ids); err != nil {
			return nil, err
		}
	}
	return chosen, nil
}

// Preview is Select without the usage side effect.
func (s *Selector) Preview(budgetFragments, budgetChars int, queryTags []string) []*models.Section {
	return s.pick(budgetFragments, budgetChars, queryTags)
}

func (s *Selector) pick(budgetFragments, budgetChars int, queryTags []string) []*models.Section {
	candidates := s.store.AllSections()
	if len(candidates) == 0 {
		return nil
	}

	maxUsage, maxTurn := 0, 0
	for _, sec := range candidates {
		if sec.UsageCount > maxUsage {
			maxUsage = sec.UsageCount
		}
		if sec.LastUpdated > maxTurn {
			maxTurn = sec.LastUpdated
		}
	}

	// Stable sort over insertion-ordered candidates: equal scores keep
	// insertion order, which is the documented tie-break.
	scores := make([]float64, len(candidates))
	order := make([]int, len(candidates))
	for i, sec := range candidates {
		scores[i] = s.weights.Score(sec, maxUsage, maxTurn, queryTags)
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })

	var out []*models.Section
	chars := 0
	for _, i := range order {
		if budgetFragments > 0 && len(out) >= budgetFragments {
			break
		}
		sec := candidates[i]
		if budgetChars > 0 && chars+len(sec.Content) > budgetChars {
			break
		}
		chars += len(sec.Content)
		out = append(out, sec)
	}
	return out
}
