package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/helixir/interaction-miner/internal/domain"
)

const workspaceColumns = `id, name, description, created_at, updated_at`

// Compile-time interface verification.
var _ WorkspaceRepository = (*PgWorkspaceRepository)(nil)

// PgWorkspaceRepository is a PostgreSQL implementation of WorkspaceRepository.
type PgWorkspaceRepository struct {
	db DBTX
}

// NewPgWorkspaceRepository creates a new PostgreSQL workspace repository.
func NewPgWorkspaceRepository(db DBTX) *PgWorkspaceRepository {
	return &PgWorkspaceRepository{db: db}
}

// Create inserts a new workspace.
func (r *PgWorkspaceRepository) Create(ctx context.Context, ws *domain.Workspace) error {
	if ws == nil {
		return domain.NewValidationError("workspace", "workspace cannot be nil")
	}
	if strings.TrimSpace(ws.Name) == "" {
		return domain.NewValidationError("name", "workspace name is required")
	}
	if ws.ID == uuid.Nil {
		ws.ID = uuid.New()
	}
	now := time.Now().UTC()
	if ws.CreatedAt.IsZero() {
		ws.CreatedAt = now
	}
	ws.UpdatedAt = now

	_, err := r.db.Exec(ctx,
		`INSERT INTO workspaces (id, name, description, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		ws.ID, ws.Name, ws.Description, ws.CreatedAt, ws.UpdatedAt,
	)
	if err != nil {
		if isPgUniqueViolation(err) {
			return domain.NewAlreadyExistsError("workspace", ws.Name)
		}
		return fmt.Errorf("failed to create workspace: %w", err)
	}
	return nil
}

// Get retrieves a workspace by ID.
func (r *PgWorkspaceRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Workspace, error) {
	ws, err := scanWorkspace(r.db.QueryRow(ctx, `SELECT `+workspaceColumns+` FROM workspaces WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("workspace", id.String())
		}
		return nil, fmt.Errorf("failed to get workspace: %w", err)
	}
	return ws, nil
}

// GetByName retrieves a workspace by name.
func (r *PgWorkspaceRepository) GetByName(ctx context.Context, name string) (*domain.Workspace, error) {
	ws, err := scanWorkspace(r.db.QueryRow(ctx, `SELECT `+workspaceColumns+` FROM workspaces WHERE name = $1`, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("workspace", name)
		}
		return nil, fmt.Errorf("failed to get workspace: %w", err)
	}
	return ws, nil
}

// EnsureByName upserts the workspace by name and returns the stored row.
func (r *PgWorkspaceRepository) EnsureByName(ctx context.Context, name, description string) (*domain.Workspace, error) {
	if strings.TrimSpace(name) == "" {
		return nil, domain.NewValidationError("name", "workspace name is required")
	}
	now := time.Now().UTC()

	// The no-op update makes RETURNING yield the existing row on conflict.
	query := `
		INSERT INTO workspaces (id, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING ` + workspaceColumns

	ws, err := scanWorkspace(r.db.QueryRow(ctx, query, uuid.New(), name, description, now))
	if err != nil {
		return nil, fmt.Errorf("failed to ensure workspace: %w", err)
	}
	return ws, nil
}

// List returns all workspaces ordered by name with aggregate counts.
func (r *PgWorkspaceRepository) List(ctx context.Context) ([]domain.WorkspaceSummary, error) {
	query := `
		SELECT w.id, w.name, w.description, w.created_at, w.updated_at,
			(SELECT COUNT(*) FROM jobs j WHERE j.workspace_id = w.id),
			(SELECT COUNT(*) FROM interactions i WHERE i.workspace_id = w.id)
		FROM workspaces w
		ORDER BY w.name`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}
	defer rows.Close()

	var out []domain.WorkspaceSummary
	for rows.Next() {
		var s domain.WorkspaceSummary
		if err := rows.Scan(
			&s.ID, &s.Name, &s.Description, &s.CreatedAt, &s.UpdatedAt,
			&s.JobCount, &s.InteractionCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan workspace: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workspaces: %w", err)
	}
	return out, nil
}

func scanWorkspace(row pgx.Row) (*domain.Workspace, error) {
	var ws domain.Workspace
	if err := row.Scan(&ws.ID, &ws.Name, &ws.Description, &ws.CreatedAt, &ws.UpdatedAt); err != nil {
		return nil, err
	}
	return &ws, nil
}
