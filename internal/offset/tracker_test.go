package offset

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/logpatrol/logpatrol/internal/logging"
	"github.com/logpatrol/logpatrol/pkg/types"
)

func testLogger() *logging.Logger {
	return logging.New(logging.Config{Level: "error", Format: "json"})
}

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	tracker, err := NewTracker(t.TempDir(), time.Hour, testLogger())
	if err != nil {
		t.Fatalf("NewTracker failed: %v", err)
	}
	return tracker
}

func staticDownload(content string) DownloadFunc {
	return func(ctx context.Context) ([]byte, error) {
		return []byte(content), nil
	}
}

func TestReadDelta_NewFile(t *testing.T) {
	tracker := newTestTracker(t)
	meta := types.FileMeta{Path: "/games/config/server.ADM", Name: "server.ADM", Size: 11}

	delta, err := tracker.ReadDelta(context.Background(), "svc-1", meta, staticDownload("first lines"))
	if err != nil {
		t.Fatalf("ReadDelta failed: %v", err)
	}
	if string(delta.Content) != "first lines" {
		t.Errorf("expected full content, got %q", delta.Content)
	}
	if delta.NewOffset != 11 {
		t.Errorf("expected offset 11, got %d", delta.NewOffset)
	}
	if delta.Rotated {
		t.Error("new file should not report rotation")
	}
}

func TestReadDelta_OnlyNewBytes(t *testing.T) {
	tracker := newTestTracker(t)
	meta := types.FileMeta{Path: "/games/config/server.ADM", Name: "server.ADM", Size: 6}

	delta, err := tracker.ReadDelta(context.Background(), "svc-1", meta, staticDownload("line1\n"))
	if err != nil {
		t.Fatalf("ReadDelta failed: %v", err)
	}
	tracker.Commit("svc-1", meta.Path, delta.NewOffset, types.FileKindAdminLog)

	meta.Size = 12
	delta, err = tracker.ReadDelta(context.Background(), "svc-1", meta, staticDownload("line1\nline2\n"))
	if err != nil {
		t.Fatalf("ReadDelta failed: %v", err)
	}
	if string(delta.Content) != "line2\n" {
		t.Errorf("expected only appended bytes, got %q", delta.Content)
	}
	if delta.NewOffset != 12 {
		t.Errorf("expected offset 12, got %d", delta.NewOffset)
	}
}

func TestReadDelta_UnchangedFileDownloadsNothing(t *testing.T) {
	tracker := newTestTracker(t)
	meta := types.FileMeta{Path: "/games/config/server.RPT", Name: "server.RPT", Size: 100}
	tracker.Commit("svc-1", meta.Path, 100, types.FileKindServerReport)

	downloads := 0
	delta, err := tracker.ReadDelta(context.Background(), "svc-1", meta, func(ctx context.Context) ([]byte, error) {
		downloads++
		return nil, nil
	})
	if err != nil {
		t.Fatalf("ReadDelta failed: %v", err)
	}
	if downloads != 0 {
		t.Errorf("unchanged file should not be downloaded, got %d downloads", downloads)
	}
	if len(delta.Content) != 0 {
		t.Errorf("expected empty delta, got %q", delta.Content)
	}
	if delta.NewOffset != 100 {
		t.Errorf("offset must not move, got %d", delta.NewOffset)
	}
}

func TestReadDelta_UncommittedReadIsRepeatable(t *testing.T) {
	tracker := newTestTracker(t)
	meta := types.FileMeta{Path: "/games/config/server.ADM", Name: "server.ADM", Size: 5}

	for i := 0; i < 2; i++ {
		delta, err := tracker.ReadDelta(context.Background(), "svc-1", meta, staticDownload("abcde"))
		if err != nil {
			t.Fatalf("ReadDelta %d failed: %v", i, err)
		}
		if string(delta.Content) != "abcde" {
			t.Errorf("read %d: expected same delta until commit, got %q", i, delta.Content)
		}
	}
}

func TestReadDelta_RotationYieldsCurrentContent(t *testing.T) {
	tracker := newTestTracker(t)
	meta := types.FileMeta{Path: "/games/config/server.ADM", Name: "server.ADM", Size: 500}
	tracker.Commit("svc-1", meta.Path, 500, types.FileKindAdminLog)

	// File was replaced upstream and is now smaller.
	rotated := make([]byte, 50)
	for i := range rotated {
		rotated[i] = 'x'
	}
	meta.Size = 50

	delta, err := tracker.ReadDelta(context.Background(), "svc-1", meta, func(ctx context.Context) ([]byte, error) {
		return rotated, nil
	})
	if err != nil {
		t.Fatalf("ReadDelta failed: %v", err)
	}
	if !delta.Rotated {
		t.Error("expected rotation to be detected")
	}
	if len(delta.Content) != 50 {
		t.Errorf("expected exactly 50 new bytes after rotation, got %d", len(delta.Content))
	}
	if delta.NewOffset != 50 {
		t.Errorf("expected offset reset to 50, got %d", delta.NewOffset)
	}
}

func TestReadDelta_ShrunkBetweenListAndDownload(t *testing.T) {
	tracker := newTestTracker(t)
	meta := types.FileMeta{Path: "/games/config/server.ADM", Name: "server.ADM", Size: 200}
	tracker.Commit("svc-1", meta.Path, 100, types.FileKindAdminLog)

	// Listing said the file grew, but the downloaded body is shorter than
	// the committed offset.
	delta, err := tracker.ReadDelta(context.Background(), "svc-1", meta, staticDownload("short"))
	if err != nil {
		t.Fatalf("ReadDelta failed: %v", err)
	}
	if !delta.Rotated {
		t.Error("expected shrink to be treated as rotation")
	}
	if string(delta.Content) != "short" {
		t.Errorf("expected whole file as delta, got %q", delta.Content)
	}
}

func TestForget_RemovesOnlyThatService(t *testing.T) {
	tracker := newTestTracker(t)
	tracker.Commit("svc-1", "/games/config/a.ADM", 10, types.FileKindAdminLog)
	tracker.Commit("svc-1", "/games/config/b.RPT", 20, types.FileKindServerReport)
	tracker.Commit("svc-2", "/games/config/a.ADM", 30, types.FileKindAdminLog)

	tracker.Forget("svc-1")

	if _, ok := tracker.Position("svc-1", "/games/config/a.ADM"); ok {
		t.Error("svc-1 positions should be gone")
	}
	if _, ok := tracker.Position("svc-1", "/games/config/b.RPT"); ok {
		t.Error("svc-1 positions should be gone")
	}
	if pos, ok := tracker.Position("svc-2", "/games/config/a.ADM"); !ok || pos.Size != 30 {
		t.Error("svc-2 positions must survive")
	}
}

func TestSaveAndLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()

	tracker, err := NewTracker(dir, time.Hour, testLogger())
	if err != nil {
		t.Fatalf("NewTracker failed: %v", err)
	}
	tracker.Commit("svc-1", "/games/config/server.ADM", 1234, types.FileKindAdminLog)
	if err := tracker.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	reloaded, err := NewTracker(dir, time.Hour, testLogger())
	if err != nil {
		t.Fatalf("NewTracker failed: %v", err)
	}
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	pos, ok := reloaded.Position("svc-1", "/games/config/server.ADM")
	if !ok {
		t.Fatal("position not restored")
	}
	if pos.Size != 1234 {
		t.Errorf("expected restored offset 1234, got %d", pos.Size)
	}
	if pos.Kind != types.FileKindAdminLog {
		t.Errorf("expected restored kind, got %q", pos.Kind)
	}
}

func TestLoad_MissingStateFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	tracker, err := NewTracker(dir, time.Hour, testLogger())
	if err != nil {
		t.Fatalf("NewTracker failed: %v", err)
	}
	if err := tracker.Load(); err != nil {
		t.Fatalf("Load of empty state dir should succeed, got %v", err)
	}
}

func TestSave_WritesAtomically(t *testing.T) {
	dir := t.TempDir()
	tracker, err := NewTracker(dir, time.Hour, testLogger())
	if err != nil {
		t.Fatalf("NewTracker failed: %v", err)
	}
	tracker.Commit("svc-1", "/games/config/server.ADM", 1, types.FileKindAdminLog)
	if err := tracker.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	for _, entry := range entries {
		if filepath.Ext(entry.Name()) == ".tmp" {
			t.Errorf("temp file %s left behind", entry.Name())
		}
	}
}
