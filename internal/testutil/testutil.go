// Package testutil provides shared test helpers for setting up playbook stores and databases.
package testutil

import (
	"os"
	"testing"

	"github.com/starford/ansuz/internal/history"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/playbook"
	"github.com/starford/ansuz/internal/storage"
)

// TestDB creates a temporary SQLite history index that is automatically cleaned up.
func TestDB(t *testing.T) *history.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "ansuz-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := history.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestProvider creates a temporary playbook root with a storage.Provider.
func TestProvider(t *testing.T) (string, storage.Provider) {
	t.Helper()
	root := t.TempDir()
	prov, err := storage.NewFS(root)
	if err != nil {
		t.Fatal(err)
	}
	return root, prov
}

// TestStore creates an empty playbook store on a temporary root.
func TestStore(t *testing.T) (*playbook.Store, storage.Provider) {
	t.Helper()
	_, prov := TestProvider(t)
	store, err := playbook.NewStore(prov)
	if err != nil {
		t.Fatal(err)
	}
	return store, prov
}

// Section builds a section with sensible defaults for tests.
func Section(id, content string, tags ...string) *models.Section {
	return &models.Section{
		ID:         id,
		Title:      "Section " + id,
		Content:    content,
		Tags:       tags,
		Confidence: 0.5,
	}
}

// SeedFile writes a playbook file with the given sections directly into the store.
func SeedFile(t *testing.T, store *playbook.Store, name string, sections ...*models.Section) {
	t.Helper()
	for _, s := range sections {
		s.File = name
	}
	if err := store.ReplaceFile(name, sections); err != nil {
		t.Fatal(err)
	}
}
