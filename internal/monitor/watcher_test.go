package monitor

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/parser"
	"github.com/starford/ansuz/internal/playbook"
	"github.com/starford/ansuz/internal/storage"
)

// watcherTestEnv sets up a store root, provider, and store for watcher tests.
func watcherTestEnv(t *testing.T) (string, storage.Provider, *playbook.Store) {
	t.Helper()
	root := t.TempDir()
	prov, err := storage.NewFS(root)
	if err != nil {
		t.Fatal(err)
	}
	store, err := playbook.NewStore(prov)
	if err != nil {
		t.Fatal(err)
	}
	return root, prov, store
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func rendered(name string, sections ...*models.Section) []byte {
	for _, s := range sections {
		s.File = name
	}
	return parser.Render(&models.PlaybookFile{Name: name, Sections: sections})
}

func startWatcher(t *testing.T, root string, prov storage.Provider, store *playbook.Store) func() []string {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	var mu sync.Mutex
	var events []string
	go Watch(ctx, store, prov, root, logger, func(kind, file string) {
		mu.Lock()
		events = append(events, kind+":"+file)
		mu.Unlock()
	})

	time.Sleep(100 * time.Millisecond)
	return func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), events...)
	}
}

func TestWatcher_NewFileLoaded(t *testing.T) {
	root, prov, store := watcherTestEnv(t)
	events := startWatcher(t, root, prov, store)

	data := rendered("tactics", &models.Section{ID: "a", Title: "A", Content: "body", Confidence: 0.5})
	if err := os.WriteFile(filepath.Join(root, "tactics.md"), data, 0o644); err != nil {
		t.Fatal(err)
	}

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		_, err := store.ReadSection("tactics", "a")
		return err == nil
	}, "new file never appeared in the store")

	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		for _, e := range events() {
			if e == "updated:tactics" {
				return true
			}
		}
		return false
	}, "no updated event emitted")
}

func TestWatcher_WriteReloads(t *testing.T) {
	root, prov, _ := watcherTestEnv(t)
	path := filepath.Join(root, "tactics.md")
	if err := os.WriteFile(path, rendered("tactics",
		&models.Section{ID: "a", Title: "A", Content: "old", Confidence: 0.5}), 0o644); err != nil {
		t.Fatal(err)
	}
	store, err := playbook.NewStore(prov)
	if err != nil {
		t.Fatal(err)
	}
	_ = startWatcher(t, root, prov, store)

	if err := os.WriteFile(path, rendered("tactics",
		&models.Section{ID: "a", Title: "A", Content: "new", Confidence: 0.5}), 0o644); err != nil {
		t.Fatal(err)
	}

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		sec, err := store.ReadSection("tactics", "a")
		return err == nil && sec.Content == "new"
	}, "updated content never reached the store")
}

func TestWatcher_RemoveDropsFile(t *testing.T) {
	root, prov, _ := watcherTestEnv(t)
	path := filepath.Join(root, "tactics.md")
	if err := os.WriteFile(path, rendered("tactics",
		&models.Section{ID: "a", Title: "A", Content: "x", Confidence: 0.5}), 0o644); err != nil {
		t.Fatal(err)
	}
	store, err := playbook.NewStore(prov)
	if err != nil {
		t.Fatal(err)
	}
	events := startWatcher(t, root, prov, store)

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		_, err := store.GetFile("tactics")
		return err != nil
	}, "removed file still in the store")

	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		for _, e := range events() {
			if e == "removed:tactics" {
				return true
			}
		}
		return false
	}, "no removed event emitted")
}

func TestWatcher_CorruptWriteKeepsOldView(t *testing.T) {
	root, prov, _ := watcherTestEnv(t)
	path := filepath.Join(root, "tactics.md")
	if err := os.WriteFile(path, rendered("tactics",
		&models.Section{ID: "a", Title: "A", Content: "good", Confidence: 0.5}), 0o644); err != nil {
		t.Fatal(err)
	}
	store, err := playbook.NewStore(prov)
	if err != nil {
		t.Fatal(err)
	}
	_ = startWatcher(t, root, prov, store)

	if err := os.WriteFile(path, []byte("## broken heading without id\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	// The reload fails and the previous view must survive.
	time.Sleep(500 * time.Millisecond)
	sec, err := store.ReadSection("tactics", "a")
	if err != nil || sec.Content != "good" {
		t.Errorf("previous view lost: %v %+v", err, sec)
	}
}
