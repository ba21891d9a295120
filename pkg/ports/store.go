package ports

import (
	"context"

	"github.com/aretw0/arbiter/pkg/domain"
)

// CheckpointStore persists the State Container per thread.
// Save must be crash-consistent: a reader observes either the previous or the new state.
type CheckpointStore interface {
	// Save persists the state for a given thread ID.
	Save(ctx context.Context, threadID string, state *domain.State) error

	// Load retrieves the state for a given thread ID.
	// Returns domain.ErrThreadNotFound if the thread does not exist.
	Load(ctx context.Context, threadID string) (*domain.State, error)

	// Delete removes the state for a given thread ID.
	Delete(ctx context.Context, threadID string) error

	// List returns the IDs of every stored thread.
	List(ctx context.Context) ([]string, error)
}
