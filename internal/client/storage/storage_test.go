package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rfidvision/rfidlog/internal/models"
)

func sampleEntry(id string) models.LogEntry {
	return models.LogEntry{
		SubmissionID:  id,
		UserID:        7,
		ItemsAdded:    []models.ItemChange{{ItemID: 1, Quantity: 2}},
		ItemsReturned: []models.ItemChange{},
		Comment:       "c",
	}
}

func TestLoad_FileNotExist(t *testing.T) {
	ls := New(filepath.Join(t.TempDir(), "pending.json"))
	if err := ls.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(ls.List()) != 0 {
		t.Errorf("expected no entries, got %d", len(ls.List()))
	}
}

func TestLoad_FileExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending.json")
	buf, _ := json.Marshal(map[string]any{"entries": []models.LogEntry{sampleEntry("1")}})
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatal(err)
	}

	ls := New(path)
	if err := ls.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	got, ok := ls.Get("1")
	if !ok || got.UserID != 7 || len(got.ItemsAdded) != 1 {
		t.Errorf("unexpected entry: %+v", got)
	}
}

func TestLoad_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending.json")
	if err := os.WriteFile(path, []byte("not-json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := New(path).Load(); err == nil {
		t.Error("expected decode error")
	}
}

func TestPut_PersistsAndReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending.json")
	ls := New(path)

	if err := ls.Put(sampleEntry("b")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := ls.Put(sampleEntry("a")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	updated := sampleEntry("b")
	updated.Comment = "second try"
	if err := ls.Put(updated); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	list := ls.List()
	if len(list) != 2 || list[0].SubmissionID != "a" || list[1].Comment != "second try" {
		t.Errorf("unexpected list: %+v", list)
	}

	// read back through a fresh store
	again := New(path)
	if err := again.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(again.List()) != 2 {
		t.Errorf("expected 2 entries on disk, got %d", len(again.List()))
	}
}

func TestRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending.json")
	ls := New(path)
	_ = ls.Put(sampleEntry("x"))

	if err := ls.Remove("x"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, ok := ls.Get("x"); ok {
		t.Error("entry still present")
	}
	if err := ls.Remove("missing"); err != nil {
		t.Errorf("Remove of unknown id: %v", err)
	}

	buf, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	var out LocalStorage
	if err := json.Unmarshal(buf, &out); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if len(out.Entries) != 0 {
		t.Errorf("unexpected saved data: %+v", out.Entries)
	}
}

func TestNew_DefaultPath(t *testing.T) {
	if New("").path != DefaultFile {
		t.Errorf("expected default path %q", DefaultFile)
	}
}
