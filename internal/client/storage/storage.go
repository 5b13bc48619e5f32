// Package storage keeps log entries whose submission failed in a local JSON
// file, so a station restart does not lose a reconciled transaction.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/rfidvision/rfidlog/internal/models"
)

// DefaultFile is used when no path is configured.
const DefaultFile = "pending_logs.json"

// LocalStorage is a mutex-guarded set of pending log entries keyed by
// SubmissionID and mirrored to a JSON file.
type LocalStorage struct {
	Entries []models.LogEntry `json:"entries"`

	path string
	mu   sync.Mutex
}

// New returns an empty store backed by path.
func New(path string) *LocalStorage {
	if path == "" {
		path = DefaultFile
	}
	return &LocalStorage{path: path, Entries: []models.LogEntry{}}
}

// Load replaces the in-memory entries with the file contents. A missing
// file is an empty store.
func (ls *LocalStorage) Load() error {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	f, err := os.Open(ls.path)
	if err != nil {
		if os.IsNotExist(err) {
			ls.Entries = []models.LogEntry{}
			return nil
		}
		return err
	}
	defer f.Close()

	var onDisk struct {
		Entries []models.LogEntry `json:"entries"`
	}
	if err := json.NewDecoder(f).Decode(&onDisk); err != nil {
		return fmt.Errorf("decode %s: %w", ls.path, err)
	}
	if onDisk.Entries == nil {
		onDisk.Entries = []models.LogEntry{}
	}
	ls.Entries = onDisk.Entries
	return nil
}

// Save writes the entries to the file.
func (ls *LocalStorage) Save() error {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.save()
}

func (ls *LocalStorage) save() error {
	f, err := os.Create(ls.path)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(ls)
}

// Put adds entry, replacing one with the same SubmissionID, and saves.
func (ls *LocalStorage) Put(entry models.LogEntry) error {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	for i := range ls.Entries {
		if ls.Entries[i].SubmissionID == entry.SubmissionID {
			ls.Entries[i] = entry
			return ls.save()
		}
	}
	ls.Entries = append(ls.Entries, entry)
	return ls.save()
}

// Get returns the entry with the given SubmissionID.
func (ls *LocalStorage) Get(submissionID string) (models.LogEntry, bool) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	for _, e := range ls.Entries {
		if e.SubmissionID == submissionID {
			return e, true
		}
	}
	return models.LogEntry{}, false
}

// Remove deletes the entry with the given SubmissionID and saves. Removing
// an unknown ID is not an error and does not touch the file.
func (ls *LocalStorage) Remove(submissionID string) error {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	for i, e := range ls.Entries {
		if e.SubmissionID == submissionID {
			ls.Entries = append(ls.Entries[:i], ls.Entries[i+1:]...)
			return ls.save()
		}
	}
	return nil
}

// List returns a copy of the pending entries ordered by SubmissionID.
func (ls *LocalStorage) List() []models.LogEntry {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	out := append([]models.LogEntry(nil), ls.Entries...)
	sort.Slice(out, func(i, j int) bool { return out[i].SubmissionID < out[j].SubmissionID })
	return out
}
