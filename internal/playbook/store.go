// Package playbook implements the durable knowledge store: named files,
// each an ordered list of sections, persisted one Markdown document per
// file and regenerated in full on every write.
package playbook

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/parser"
	"github.com/starford/ansuz/internal/storage"
)

// Store holds the playbook in memory and mirrors every change to disk
// through atomic whole-file rewrites. It is the single source of truth
// for section state within a run; mutation goes through the curator.
//
// Reads are guarded by an RWMutex because the HTTP and MCP surfaces read
// concurrently with the turn loop. There is still exactly one writer.
type Store struct {
	mu    sync.RWMutex
	fs    storage.Provider
	files map[string]*models.PlaybookFile
	order []string // file names, insertion order
}

// NewStore loads every playbook file under the provider root. A persisted
// file that fails to parse aborts initialization: no safe default content
// can be synthesized for a corrupt store.
func NewStore(fs storage.Provider) (*Store, error) {
	s := &Store{fs: fs, files: make(map[string]*models.PlaybookFile)}

	metas, err := fs.List("")
	if err != nil {
		return nil, fmt.Errorf("playbook: scan root: %w", err)
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].Path < metas[j].Path })

	for _, m := range metas {
		data, err := fs.Read(m.Path)
		if err != nil {
			return nil, fmt.Errorf("playbook: load %s: %w", m.Path, err)
		}
		name := strings.TrimSuffix(m.Path, ".md")
		pf, err := parser.Parse(name, data)
		if err != nil {
			return nil, fmt.Errorf("playbook: corrupt store: %w", err)
		}
		s.files[name] = pf
		s.order = append(s.order, name)
	}
	return s, nil
}

// ListFiles returns file names in insertion order.
func (s *Store) ListFiles() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// GetFile returns a snapshot copy of the named file.
func (s *Store) GetFile(name string) (*models.PlaybookFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.files[name]
	if !ok {
		return nil, fmt.Errorf("playbook: file %q: %w", name, apperr.ErrNotFound)
	}
	return f.Clone(), nil
}

// ReadSection returns a snapshot copy of one section.
func (s *Store) ReadSection(file, id string) (*models.Section, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.files[file]
	if !ok {
		return nil, fmt.Errorf("playbook: file %q: %w", file, apperr.ErrNotFound)
	}
	sec := f.Section(id)
	if sec == nil {
		return nil, fmt.Errorf("playbook: section %q in %q: %w", id, file, apperr.ErrNotFound)
	}
	return sec.Clone(), nil
}

// AllSections returns snapshot copies of every section in global
// insertion order (files in insertion order, sections in file order).
func (s *Store) AllSections() []*models.Section {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Section
	for _, name := range s.order {
		for _, sec := range s.files[name].Sections {
			out = append(out, sec.Clone())
		}
	}
	return out
}

// Snapshot returns a mutable copy of the named file for the curator to
// rework, or an empty file if it does not exist yet.
func (s *Store) Snapshot(name string) *models.PlaybookFile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if f, ok := s.files[name]; ok {
		return f.Clone()
	}
	return &models.PlaybookFile{Name: name}
}

// ReplaceFile atomically persists the given section list as the new
// content of the named file, then swaps it into memory. When sections is
// empty the on-disk file is removed. If the write fails the in-memory
// state is left untouched, so the prior store version remains valid.
func (s *Store) ReplaceFile(name string, sections []*models.Section) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(sections) == 0 {
		if _, ok := s.files[name]; !ok {
			return nil
		}
		if err := s.fs.Delete(filePath(name)); err != nil {
			return fmt.Errorf("playbook: %w: %w", apperr.ErrStorage, err)
		}
		delete(s.files, name)
		for i, n := range s.order {
			if n == name {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
		return nil
	}

	next := &models.PlaybookFile{Name: name, Sections: sections}
	if err := s.fs.Write(filePath(name), parser.Render(next)); err != nil {
		return fmt.Errorf("playbook: %w: %w", apperr.ErrStorage, err)
	}
	if _, ok := s.files[name]; !ok {
		s.order = append(s.order, name)
	}
	s.files[name] = next
	return nil
}

// Touch increments usage counts for the given section ids and rewrites
// the affected file. Usage tracking is the one mutation that bypasses
// the diff pipeline: it is bookkeeping about selection, not knowledge.
func (s *Store) Touch(file string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[file]
	if !ok {
		return fmt.Errorf("playbook: file %q: %w", file, apperr.ErrNotFound)
	}
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	touched := false
	for _, sec := range f.Sections {
		if _, ok := want[sec.ID]; ok {
			sec.UsageCount++
			touched = true
		}
	}
	if !touched {
		return nil
	}
	if err := s.fs.Write(filePath(file), parser.Render(f)); err != nil {
		return fmt.Errorf("playbook: %w: %w", apperr.ErrStorage, err)
	}
	return nil
}

// Contains reports whether the named file already carries content
// verbatim in one of its sections.
func (s *Store) Contains(file, content string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.files[file]
	if !ok {
		return false
	}
	needle := strings.TrimSpace(content)
	if needle == "" {
		return false
	}
	for _, sec := range f.Sections {
		if strings.Contains(sec.Content, needle) {
			return true
		}
	}
	return false
}

// filePath maps a logical file name to its on-disk path. Path
// separators are flattened so a file name can never leave the root.
func filePath(name string) string {
	return strings.ReplaceAll(name, "/", "_") + ".md"
}
