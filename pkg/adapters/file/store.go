// Package file stores checkpoints as JSON documents on the local filesystem.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/arbiter/pkg/domain"
	"github.com/aretw0/arbiter/pkg/ports"
)

// ErrInvalidThreadID is returned for identifiers that cannot be used as a file name.
var ErrInvalidThreadID = errors.New("invalid thread id")

// Store implements ports.CheckpointStore using the local filesystem.
// It stores one JSON file per thread in a configured directory.
type Store struct {
	BasePath string
}

var _ ports.CheckpointStore = (*Store)(nil)

// NewStore creates a new Store with the given base path.
// If basePath is empty, it defaults to ".arbiter/threads".
func NewStore(basePath string) *Store {
	if basePath == "" {
		basePath = filepath.Join(".arbiter", "threads")
	}
	return &Store{BasePath: basePath}
}

func (f *Store) path(threadID string) (string, error) {
	if threadID == "" || strings.ContainsAny(threadID, `/\`) || threadID == "." || threadID == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidThreadID, threadID)
	}
	return filepath.Join(f.BasePath, threadID+".json"), nil
}

// Save writes the checkpoint to a temporary file and renames it into place,
// so readers see either the previous or the new state.
func (f *Store) Save(ctx context.Context, threadID string, state *domain.State) error {
	target, err := f.path(threadID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(f.BasePath, 0o755); err != nil {
		return fmt.Errorf("failed to ensure thread directory: %w", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tmp, err := os.CreateTemp(f.BasePath, threadID+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close checkpoint: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("failed to commit checkpoint: %w", err)
	}
	return nil
}

// Load retrieves the checkpoint from its JSON file.
func (f *Store) Load(ctx context.Context, threadID string) (*domain.State, error) {
	target, err := f.path(threadID)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrThreadNotFound
		}
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	return domain.DecodeState(data)
}

// Delete removes the checkpoint file.
func (f *Store) Delete(ctx context.Context, threadID string) error {
	target, err := f.path(threadID)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// List returns all stored thread IDs.
func (f *Store) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(f.BasePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}

	threads := []string{}
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() && filepath.Ext(name) == ".json" {
			threads = append(threads, strings.TrimSuffix(name, ".json"))
		}
	}
	sort.Strings(threads)
	return threads, nil
}
