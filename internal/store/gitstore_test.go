package store

import (
	"context"
	"errors"
	"testing"

	"awards/bot/internal/document"
)

func TestGitRemoteLifecycle(t *testing.T) {
	remote := NewGit(t.TempDir() + "/repo")
	ctx := context.Background()

	if _, _, err := remote.Load(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load() on missing repo error = %v, want ErrNotFound", err)
	}

	doc := document.Default()
	doc.Active = document.NewRun("g1", "Winter Awards", "u1", "chan-1", testTime())
	v1, err := remote.Save(ctx, doc, "")
	if err != nil {
		t.Fatalf("initial Save() error = %v", err)
	}
	if v1 == "" {
		t.Fatal("expected a commit hash")
	}

	loaded, version, err := remote.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if version != v1 {
		t.Fatalf("version = %q, want %q", version, v1)
	}
	if loaded.Active == nil || loaded.Active.Name != "Winter Awards" {
		t.Fatalf("unexpected loaded document: %+v", loaded.Active)
	}

	loaded.Active.Status = document.StatusOpen
	v2, err := remote.Save(ctx, loaded, v1)
	if err != nil {
		t.Fatalf("second Save() error = %v", err)
	}
	if v2 == v1 {
		t.Fatal("commit hash did not advance")
	}
}

func TestGitRemoteStaleTokenConflicts(t *testing.T) {
	remote := NewGit(t.TempDir() + "/repo")
	ctx := context.Background()

	doc := document.Default()
	v1, err := remote.Save(ctx, doc, "")
	if err != nil {
		t.Fatalf("initial Save() error = %v", err)
	}
	if _, err := remote.Save(ctx, doc, v1); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}

	// v1 is no longer HEAD.
	if _, err := remote.Save(ctx, doc, v1); !errors.Is(err, ErrConflict) {
		t.Fatalf("Save() with stale token error = %v, want ErrConflict", err)
	}

	// An empty token against an existing repo is also stale.
	if _, err := remote.Save(ctx, doc, ""); !errors.Is(err, ErrConflict) {
		t.Fatalf("Save() with empty token error = %v, want ErrConflict", err)
	}
}
