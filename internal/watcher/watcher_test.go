package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/paravault/internal/apperr"
	"github.com/starford/paravault/internal/models"
	"github.com/starford/paravault/internal/noteservice"
	"github.com/starford/paravault/internal/para"
	"github.com/starford/paravault/internal/testutil"
)

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

func startWatcher(t *testing.T, svc *noteservice.Service, paths *para.Resolver, cb EventCallback) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := Watch(ctx, svc, paths, testutil.DiscardLogger(), cb); err != nil {
			t.Errorf("Watch: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	time.Sleep(100 * time.Millisecond)
}

func exists(svc *noteservice.Service, p string) bool {
	_, err := svc.Read(context.Background(), p)
	return err == nil
}

func TestWatcher_NewFileIndexed(t *testing.T) {
	svc, paths := testutil.TestService(t, nil)

	var mu sync.Mutex
	var events []string
	startWatcher(t, svc, paths, func(kind, path string) {
		mu.Lock()
		events = append(events, kind+":"+path)
		mu.Unlock()
	})

	_ = os.WriteFile(filepath.Join(paths.Root(), "projects", "new.md"), []byte("# New\n[[other]]"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return exists(svc, "projects/new.md")
	}, "new file not picked up by watcher")

	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range events {
			if e == "updated:projects/new.md" {
				return true
			}
		}
		return false
	}, "expected updated:projects/new.md callback")

	if got := svc.BrokenLinks(context.Background()); len(got) != 1 {
		t.Errorf("graph not refreshed: %v", got)
	}
}

func TestWatcher_IgnoresFilesOutsideCategories(t *testing.T) {
	svc, paths := testutil.TestService(t, nil)

	var mu sync.Mutex
	var events []string
	startWatcher(t, svc, paths, func(kind, path string) {
		mu.Lock()
		events = append(events, kind+":"+path)
		mu.Unlock()
	})

	_ = os.WriteFile(filepath.Join(paths.Root(), "loose.md"), []byte("x"), 0o644)
	_ = os.WriteFile(filepath.Join(paths.Root(), "projects", "image.png"), []byte("x"), 0o644)
	_ = os.WriteFile(filepath.Join(paths.Root(), "projects", "marker.md"), []byte("x"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return exists(svc, "projects/marker.md")
	}, "marker not picked up")

	mu.Lock()
	defer mu.Unlock()
	for _, e := range events {
		if e == "updated:loose.md" || e == "updated:projects/image.png" {
			t.Errorf("unexpected event %s", e)
		}
	}
}

func TestWatcher_NewDirWatched(t *testing.T) {
	svc, paths := testutil.TestService(t, nil)
	startWatcher(t, svc, paths, nil)

	subDir := filepath.Join(paths.Root(), "areas", "health")
	_ = os.MkdirAll(subDir, 0o755)
	time.Sleep(100 * time.Millisecond)

	_ = os.WriteFile(filepath.Join(subDir, "deep.md"), []byte("# Deep"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return exists(svc, "areas/health/deep.md")
	}, "file in new subdir not picked up by watcher")
}

func TestWatcher_DeleteForgets(t *testing.T) {
	svc, paths := testutil.TestService(t, map[string]string{"projects/del.md": "# Delete Me"})
	if !exists(svc, "projects/del.md") {
		t.Fatal("precondition: file should be loaded")
	}
	startWatcher(t, svc, paths, nil)

	_ = os.Remove(filepath.Join(paths.Root(), "projects", "del.md"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		_, err := svc.Read(context.Background(), "projects/del.md")
		return errors.Is(err, apperr.ErrNotFound)
	}, "deleted file still in memory")
}

func TestWatcher_RenameReconciles(t *testing.T) {
	svc, paths := testutil.TestService(t, map[string]string{"projects/old.md": "# Rename"})
	startWatcher(t, svc, paths, nil)

	_ = os.Rename(filepath.Join(paths.Root(), "projects", "old.md"), filepath.Join(paths.Root(), "archives", "renamed.md"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return !exists(svc, "projects/old.md") && exists(svc, "archives/renamed.md")
	}, "rename reconciliation failed: old path should be forgotten and new path loaded")
}

func TestWatcher_OwnWritesAreNoops(t *testing.T) {
	svc, paths := testutil.TestService(t, nil)
	startWatcher(t, svc, paths, nil)

	ctx := context.Background()
	d, err := svc.Create(ctx, "resources/own.md", models.Metadata{Title: "Own"}, "body")
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(300 * time.Millisecond)

	got, err := svc.Read(ctx, "resources/own.md")
	if err != nil {
		t.Fatal(err)
	}
	if got.Checksum != d.Checksum {
		t.Errorf("watcher changed a document the service just wrote")
	}
}
