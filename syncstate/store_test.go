package syncstate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pithecene-io/boothbridge/types"
)

func TestOpen_MissingFileIsEmpty(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "sync.json"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
	if _, ok := s.LastCheck(); ok {
		t.Error("expected no lastCheck")
	}
}

func TestPut_PersistsImmediately(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "sync.json")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	rec := types.SyncRecord{
		RemoteID:  "m1",
		RemoteURL: "https://cdn/m1.jpg",
		SyncedAt:  time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC),
		LocalPath: "/captures/cloud/a.jpg",
		SizeKB:    12,
	}
	if err := s.Put("cloud/a.jpg", rec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, ok := reopened.Get("cloud/a.jpg")
	if !ok {
		t.Fatal("record not persisted")
	}
	if got != rec {
		t.Errorf("got %+v, want %+v", got, rec)
	}
}

func TestPut_FileFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.json")
	s, _ := Open(path)
	_ = s.Put("wedding/cloud/a.jpg", types.SyncRecord{RemoteID: "1", RemoteURL: "u"})

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for _, want := range []string{`"synced"`, `"wedding/cloud/a.jpg"`, `"remoteId"`, `"remoteUrl"`, `"syncedAt"`, `"localPath"`, `"sizeKB"`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("file missing %s:\n%s", want, data)
		}
	}
}

func TestOpen_CorruptFileMovedAside(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sync.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	clock := func() time.Time { return time.Unix(1700000000, 0) }
	s, err := Open(path, WithClock(clock))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
	if _, err := os.Stat(path + ".corrupt-1700000000"); err != nil {
		t.Errorf("corrupt file not moved aside: %v", err)
	}
}

func TestTouch_SetsLastCheck(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.json")
	at := time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)
	s, _ := Open(path, WithClock(func() time.Time { return at }))

	if err := s.Touch(); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	reopened, _ := Open(path)
	got, ok := reopened.LastCheck()
	if !ok || !got.Equal(at) {
		t.Errorf("LastCheck() = %v, %v; want %v", got, ok, at)
	}
}

func TestPut_PersistFailureKeepsMemory(t *testing.T) {
	dir := t.TempDir()
	// A directory at the target path makes the rename fail.
	path := filepath.Join(dir, "sync.json")
	s, _ := Open(path)
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(path, "x"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := s.Put("k", types.SyncRecord{RemoteID: "1"}); err == nil {
		t.Fatal("expected persist error")
	}
	if !s.Has("k") {
		t.Error("in-memory record lost after persist failure")
	}
}

func TestKeysAndSnapshot(t *testing.T) {
	s, _ := Open(filepath.Join(t.TempDir(), "sync.json"))
	_ = s.Put("b", types.SyncRecord{RemoteID: "2"})
	_ = s.Put("a", types.SyncRecord{RemoteID: "1"})

	keys := s.Keys()
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Errorf("Keys() = %v", keys)
	}

	snap := s.Snapshot()
	delete(snap.Synced, "a")
	if !s.Has("a") {
		t.Error("Snapshot is not a copy")
	}
}
