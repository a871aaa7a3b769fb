package playbook

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/starford/ansuz/internal/parser"
)

// ReloadFile re-reads one file from disk and swaps it into memory. Used
// by monitor mode, where another process owns the writes; the atomic
// rename on the writer side guarantees we see a complete document. A
// file that vanished between event and read is dropped.
func (s *Store) ReloadFile(path string) error {
	name := strings.TrimSuffix(path, ".md")

	data, err := s.fs.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.DropFile(name)
			return nil
		}
		return fmt.Errorf("playbook: reload %s: %w", path, err)
	}
	pf, err := parser.Parse(name, data)
	if err != nil {
		return fmt.Errorf("playbook: reload %s: %w", path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[name]; !ok {
		s.order = append(s.order, name)
	}
	s.files[name] = pf
	return nil
}

// DropFile removes a file from memory without touching disk.
func (s *Store) DropFile(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[name]; !ok {
		return
	}
	delete(s.files, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}
