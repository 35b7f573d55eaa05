package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"tokenLiquidity/internal/model"
)

// Journal remembers which settlement steps already completed.
type Journal interface {
	LoadJournal(ctx context.Context, txid string) (model.JournalEntry, bool, error)
	SaveJournal(ctx context.Context, entry model.JournalEntry) error
}

// MemoryJournal is a process-local Journal.
type MemoryJournal struct {
	mu      sync.Mutex
	entries map[string]model.JournalEntry
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{entries: make(map[string]model.JournalEntry)}
}

func (j *MemoryJournal) LoadJournal(_ context.Context, txid string) (model.JournalEntry, bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	entry, ok := j.entries[txid]
	return entry, ok, nil
}

func (j *MemoryJournal) SaveJournal(_ context.Context, entry model.JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries[entry.Txid] = merge(j.entries[entry.Txid], entry)
	return nil
}

// merge keeps steps recorded earlier that entry does not repeat.
func merge(prev, entry model.JournalEntry) model.JournalEntry {
	if entry.BurnTxid == "" {
		entry.BurnTxid = prev.BurnTxid
	}
	if entry.PayoutTxid == "" {
		entry.PayoutTxid = prev.PayoutTxid
	}
	entry.UpdatedAt = time.Now().UTC()
	return entry
}

type journalFile struct {
	Entries   map[string]model.JournalEntry `json:"entries"`
	UpdatedAt string                        `json:"updated_at"`
}

// FileJournal keeps the journal in one JSON file, rewritten atomically on
// each save so a restart resumes settlements that paid out before their txid
// was marked seen.
type FileJournal struct {
	path string
	mu   sync.Mutex
}

func NewFileJournal(path string) *FileJournal {
	return &FileJournal{path: path}
}

func (j *FileJournal) LoadJournal(_ context.Context, txid string) (model.JournalEntry, bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	state, err := j.read()
	if err != nil {
		return model.JournalEntry{}, false, err
	}
	entry, ok := state.Entries[txid]
	return entry, ok, nil
}

func (j *FileJournal) SaveJournal(_ context.Context, entry model.JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	state, err := j.read()
	if err != nil {
		return err
	}
	state.Entries[entry.Txid] = merge(state.Entries[entry.Txid], entry)
	return j.write(state)
}

func (j *FileJournal) read() (journalFile, error) {
	state := journalFile{Entries: make(map[string]model.JournalEntry)}

	data, err := os.ReadFile(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return state, nil
		}
		return state, fmt.Errorf("read journal file: %w", err)
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return state, fmt.Errorf("parse journal file: %w", err)
	}
	if state.Entries == nil {
		state.Entries = make(map[string]model.JournalEntry)
	}
	return state, nil
}

func (j *FileJournal) write(state journalFile) error {
	dir := filepath.Dir(j.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create journal dir: %w", err)
		}
	}

	state.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal journal file: %w", err)
	}

	tmpPath := j.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write journal tmp: %w", err)
	}
	if err := os.Rename(tmpPath, j.path); err != nil {
		return fmt.Errorf("rename journal file: %w", err)
	}
	return nil
}
