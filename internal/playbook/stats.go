package playbook

import "github.com/starford/ansuz/internal/models"

// Stats recomputes the aggregate view of the store: file count, section
// count, and the exact sum of content lengths. O(total sections), no
// caching; the dashboard polls at a cadence this easily sustains.
func (s *Store) Stats() models.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := models.Stats{Files: len(s.order)}
	for _, name := range s.order {
		for _, sec := range s.files[name].Sections {
			st.Sections++
			st.Characters += len(sec.Content)
		}
	}
	return st
}
