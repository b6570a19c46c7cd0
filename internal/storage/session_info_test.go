package storage

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestSessionInfoRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore returned error: %v", err)
	}

	in := SessionInfo{
		SessionID:      "s1",
		AgentType:      "claude",
		ResumeToken:    "up-1",
		PermissionMode: "plan",
		WorkDir:        "/work",
	}
	if err := store.Save(in); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	got, err := store.Load("s1")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if got.ResumeToken != "up-1" || got.PermissionMode != "plan" || got.WorkDir != "/work" {
		t.Fatalf("unexpected info: %+v", got)
	}
	if got.UpdatedAtMs == 0 {
		t.Fatalf("expected UpdatedAtMs to be set")
	}
}

func TestLoadMissingIsNotFound(t *testing.T) {
	store, _ := NewStore(t.TempDir())
	_, err := store.Load("nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateCreatesAndMerges(t *testing.T) {
	store, _ := NewStore(t.TempDir())

	if err := store.Update("s1", func(i *SessionInfo) { i.WorkDir = "/w" }); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if err := store.Update("s1", func(i *SessionInfo) {
		i.ResumeToken = "up-2"
		i.SessionID = "hijack"
	}); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}

	got, err := store.Load("s1")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if got.SessionID != "s1" {
		t.Fatalf("expected session id to be preserved, got %q", got.SessionID)
	}
	if got.WorkDir != "/w" || got.ResumeToken != "up-2" {
		t.Fatalf("expected merged info, got %+v", got)
	}

	list, err := store.List()
	if err != nil || len(list) != 1 {
		t.Fatalf("expected one listed entry, got %v (err=%v)", list, err)
	}

	if err := store.Delete("s1"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, err := store.Load("s1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestSessionInfoPathIsScoped(t *testing.T) {
	store, _ := NewStore(t.TempDir())
	path, err := store.path("a/b")
	if err != nil {
		t.Fatalf("path returned error: %v", err)
	}
	if filepath.Base(filepath.Dir(path)) != "a_b" {
		t.Fatalf("expected session id to be sanitized in path, got %q", path)
	}
	if _, err := store.path(".."); err == nil {
		t.Fatalf("expected error for traversal id")
	}
	if _, err := NewStore(""); err == nil {
		t.Fatalf("expected error for empty home")
	}
}
