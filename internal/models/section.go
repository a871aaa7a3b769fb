// Package models defines the domain types for Ansuz.
package models

// Section is the smallest addressable unit of playbook knowledge.
type Section struct {
	ID          string   `json:"id"`
	File        string   `json:"file"`
	Title       string   `json:"title"`
	Content     string   `json:"content"`
	Tags        []string `json:"tags,omitempty"`
	UsageCount  int      `json:"usage_count"`
	Confidence  float64  `json:"confidence"`
	LastUpdated int      `json:"last_updated"`
}

// Clone returns a deep copy of the section.
func (s *Section) Clone() *Section {
	c := *s
	if s.Tags != nil {
		c.Tags = append([]string(nil), s.Tags...)
	}
	return &c
}

// HasTag reports whether tag is present in the section's tag set.
func (s *Section) HasTag(tag string) bool {
	for _, t := range s.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// PlaybookFile is an ordered sequence of sections sharing a logical topic.
// Ordering is insertion order except after a refine pass, which may
// re-order by retention score.
type PlaybookFile struct {
	Name     string     `json:"name"`
	Sections []*Section `json:"sections"`
}

// Section returns the section with the given id, or nil.
func (f *PlaybookFile) Section(id string) *Section {
	for _, s := range f.Sections {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// Clone returns a deep copy of the file.
func (f *PlaybookFile) Clone() *PlaybookFile {
	c := &PlaybookFile{Name: f.Name, Sections: make([]*Section, len(f.Sections))}
	for i, s := range f.Sections {
		c.Sections[i] = s.Clone()
	}
	return c
}

// Stats is the derived aggregate view of the store, recomputed on demand.
type Stats struct {
	Files      int `json:"files"`
	Sections   int `json:"sections"`
	Characters int `json:"characters"`
}
