package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"tokenLiquidity/internal/model"
	"tokenLiquidity/internal/storage/postgres"
)

// SnapshotStore persists the last known price state.
type SnapshotStore interface {
	LoadSnapshot(ctx context.Context) (model.Snapshot, error)
	SaveSnapshot(ctx context.Context, snap model.Snapshot) error
}

// ErrNoSnapshot is returned when nothing was saved yet.
var ErrNoSnapshot = fmt.Errorf("%w: no price snapshot saved", model.ErrCollaborator)

// FileSnapshotStore stores the snapshot in a local JSON file.
type FileSnapshotStore struct {
	Path string
}

func (s *FileSnapshotStore) LoadSnapshot(ctx context.Context) (model.Snapshot, error) {
	if s == nil || s.Path == "" {
		return model.Snapshot{}, ErrNoSnapshot
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.Snapshot{}, ErrNoSnapshot
		}
		return model.Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}

	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return model.Snapshot{}, fmt.Errorf("parse snapshot: %w", err)
	}
	return snap, nil
}

func (s *FileSnapshotStore) SaveSnapshot(ctx context.Context, snap model.Snapshot) error {
	if s == nil || s.Path == "" {
		return nil
	}
	dir := filepath.Dir(s.Path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot tmp: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// DBSnapshotStore stores the snapshot in the price_snapshots table.
type DBSnapshotStore struct {
	Store *postgres.Store
	Name  string
}

func (s *DBSnapshotStore) LoadSnapshot(ctx context.Context) (model.Snapshot, error) {
	if s == nil || s.Store == nil {
		return model.Snapshot{}, ErrNoSnapshot
	}
	snap, ok, err := s.Store.LoadSnapshot(ctx, s.Name)
	if err != nil {
		return model.Snapshot{}, err
	}
	if !ok {
		return model.Snapshot{}, ErrNoSnapshot
	}
	return snap, nil
}

func (s *DBSnapshotStore) SaveSnapshot(ctx context.Context, snap model.Snapshot) error {
	if s == nil || s.Store == nil {
		return nil
	}
	return s.Store.SaveSnapshot(ctx, s.Name, snap)
}
