package spool

import (
	"errors"
	"testing"
	"time"

	"github.com/logpatrol/logpatrol/pkg/types"
)

func unrecognized(raw string) *types.Event {
	return &types.Event{
		ServiceID:  "svc-1",
		SourceFile: "server.ADM",
		Category:   types.CategoryUnrecognized,
		Raw:        raw,
	}
}

func TestAdd_RecordsEntry(t *testing.T) {
	s, err := New(Config{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.Close()

	if err := s.Add(unrecognized("?? strange line")); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	entries := s.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Raw != "?? strange line" || entries[0].ServiceID != "svc-1" {
		t.Errorf("entry fields: got %+v", entries[0])
	}
	if entries[0].SeenAt.IsZero() {
		t.Error("seen time must be set")
	}
}

func TestAdd_FullSpoolDropsNewest(t *testing.T) {
	s, err := New(Config{Dir: t.TempDir(), MaxEntries: 2})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.Close()

	_ = s.Add(unrecognized("one"))
	_ = s.Add(unrecognized("two"))

	if err := s.Add(unrecognized("three")); !errors.Is(err, ErrSpoolFull) {
		t.Fatalf("expected ErrSpoolFull, got %v", err)
	}
	if s.Len() != 2 {
		t.Errorf("expected 2 entries, got %d", s.Len())
	}
	if s.Dropped() != 1 {
		t.Errorf("expected 1 dropped, got %d", s.Dropped())
	}
}

func TestClose_PersistsAndRejectsWrites(t *testing.T) {
	dir := t.TempDir()

	s, err := New(Config{Dir: dir})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	_ = s.Add(unrecognized("survives restart"))
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := s.Add(unrecognized("late")); !errors.Is(err, ErrSpoolClosed) {
		t.Errorf("expected ErrSpoolClosed, got %v", err)
	}

	reopened, err := New(Config{Dir: dir})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	entries := reopened.Entries()
	if len(entries) != 1 || entries[0].Raw != "survives restart" {
		t.Errorf("entries not restored, got %v", entries)
	}
}

func TestExpire_DropsOldEntries(t *testing.T) {
	s, err := New(Config{Dir: t.TempDir(), MaxAge: time.Hour})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.Close()

	_ = s.Add(unrecognized("old"))
	_ = s.Add(unrecognized("new"))

	// Age the first entry past the cutoff.
	s.mu.Lock()
	s.entries[0].SeenAt = time.Now().Add(-2 * time.Hour)
	s.mu.Unlock()

	s.expire()

	entries := s.Entries()
	if len(entries) != 1 || entries[0].Raw != "new" {
		t.Errorf("expected only the fresh entry, got %v", entries)
	}
}

func TestClose_IsIdempotent(t *testing.T) {
	s, err := New(Config{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close must be a no-op, got %v", err)
	}
}
