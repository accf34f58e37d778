package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/helixir/interaction-miner/internal/domain"
)

// WorkspaceRepository persists workspaces.
type WorkspaceRepository interface {
	// Create inserts a workspace. Returns domain.ErrAlreadyExists on a
	// duplicate name.
	Create(ctx context.Context, ws *domain.Workspace) error

	// Get retrieves a workspace by ID.
	Get(ctx context.Context, id uuid.UUID) (*domain.Workspace, error)

	// GetByName retrieves a workspace by its unique name.
	GetByName(ctx context.Context, name string) (*domain.Workspace, error)

	// EnsureByName returns the workspace called name, creating it if needed.
	// Concurrent callers converge on the same row.
	EnsureByName(ctx context.Context, name, description string) (*domain.Workspace, error)

	// List returns every workspace with its job and interaction counts.
	List(ctx context.Context) ([]domain.WorkspaceSummary, error)
}
