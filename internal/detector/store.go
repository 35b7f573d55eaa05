package detector

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// SeenStore persists seen sets so a restart does not settle twice.
type SeenStore interface {
	LoadSeen(ctx context.Context, chain string) ([]string, error)
	AppendSeen(ctx context.Context, chain string, txids ...string) error
}

type seenFile struct {
	Chains    map[string][]string `json:"chains"`
	UpdatedAt string              `json:"updated_at"`
}

// FileSeenStore keeps every chain's seen set in one JSON file, rewritten
// atomically on each append.
type FileSeenStore struct {
	path string
	mu   sync.Mutex
}

func NewFileSeenStore(path string) *FileSeenStore {
	return &FileSeenStore{path: path}
}

func (s *FileSeenStore) LoadSeen(_ context.Context, chain string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.read()
	if err != nil {
		return nil, err
	}
	return state.Chains[chain], nil
}

func (s *FileSeenStore) AppendSeen(_ context.Context, chain string, txids ...string) error {
	if len(txids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.read()
	if err != nil {
		return err
	}
	set := NewSeenSet(state.Chains[chain]...)
	set.Add(txids...)
	state.Chains[chain] = set.IDs()

	return s.write(state)
}

func (s *FileSeenStore) read() (seenFile, error) {
	state := seenFile{Chains: make(map[string][]string)}

	stat, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return state, nil
		}
		return state, fmt.Errorf("stat seen file: %w", err)
	}
	if stat.IsDir() {
		return state, fmt.Errorf("seen path is a directory")
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return state, fmt.Errorf("read seen file: %w", err)
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return state, fmt.Errorf("parse seen file: %w", err)
	}
	if state.Chains == nil {
		state.Chains = make(map[string][]string)
	}
	return state, nil
}

func (s *FileSeenStore) write(state seenFile) error {
	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create seen dir: %w", err)
		}
	}

	state.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal seen file: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write seen tmp: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename seen file: %w", err)
	}
	return nil
}
