package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/helixir/interaction-miner/internal/domain"
)

const interactionColumns = `id, job_id, workspace_id, independent_variable, dependent_variable,
		effect, reference, date_published, created_at`

// Compile-time interface verification.
var _ InteractionRepository = (*PgInteractionRepository)(nil)

// PgInteractionRepository is a PostgreSQL implementation of InteractionRepository.
type PgInteractionRepository struct {
	db DBTX
}

// NewPgInteractionRepository creates a new PostgreSQL interaction repository.
func NewPgInteractionRepository(db DBTX) *PgInteractionRepository {
	return &PgInteractionRepository{db: db}
}

// InsertWithProgress inserts the interaction and bumps the job counters atomically.
func (r *PgInteractionRepository) InsertWithProgress(ctx context.Context, interaction *domain.Interaction, update domain.ProgressUpdate) (bool, error) {
	var inserted bool
	err := inTx(ctx, r.db, func(tx DBTX) error {
		var err error
		inserted, err = insertInteraction(ctx, tx, interaction)
		if err != nil || !inserted {
			return err
		}
		return NewPgJobRepository(tx).AppendProgress(ctx, interaction.JobID, update)
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

func insertInteraction(ctx context.Context, db DBTX, i *domain.Interaction) (bool, error) {
	if err := validateInteraction(i); err != nil {
		return false, err
	}

	query := `
		INSERT INTO interactions (
			id, job_id, workspace_id, independent_variable, dependent_variable,
			effect, reference, date_published, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT ON CONSTRAINT interactions_job_tuple_key DO NOTHING`

	result, err := db.Exec(ctx, query,
		i.ID, i.JobID, i.WorkspaceID, i.IndependentVariable, i.DependentVariable,
		i.Effect, i.Reference, i.DatePublished, i.CreatedAt,
	)
	if err != nil {
		if isPgForeignKeyViolation(err) {
			return false, domain.NewNotFoundError("job", i.JobID.String())
		}
		return false, fmt.Errorf("failed to insert interaction: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

func validateInteraction(i *domain.Interaction) error {
	switch {
	case i == nil:
		return domain.NewValidationError("interaction", "interaction cannot be nil")
	case i.ID == uuid.Nil:
		return domain.NewValidationError("id", "interaction ID is required")
	case i.JobID == uuid.Nil:
		return domain.NewValidationError("job_id", "job ID is required")
	case i.WorkspaceID == uuid.Nil:
		return domain.NewValidationError("workspace_id", "workspace ID is required")
	case strings.TrimSpace(i.IndependentVariable) == "":
		return domain.NewValidationError("independent_variable", "required")
	case strings.TrimSpace(i.DependentVariable) == "":
		return domain.NewValidationError("dependent_variable", "required")
	case i.Effect != domain.EffectIncrease && i.Effect != domain.EffectDecrease:
		return domain.NewValidationError("effect", "must be increase or decrease")
	case strings.TrimSpace(i.Reference) == "":
		return domain.NewValidationError("reference", "required")
	}
	return nil
}

// List retrieves interactions for a job or a workspace, newest first.
func (r *PgInteractionRepository) List(ctx context.Context, filter domain.InteractionFilter) ([]*domain.Interaction, int64, error) {
	if err := validateInteractionFilter(&filter); err != nil {
		return nil, 0, err
	}

	conditions := []string{}
	args := []interface{}{}
	argIndex := 1

	if filter.JobID != nil {
		conditions = append(conditions, fmt.Sprintf("job_id = $%d", argIndex))
		args = append(args, *filter.JobID)
		argIndex++
	}
	if filter.WorkspaceID != nil {
		conditions = append(conditions, fmt.Sprintf("workspace_id = $%d", argIndex))
		args = append(args, *filter.WorkspaceID)
		argIndex++
	}
	whereClause := strings.Join(conditions, " AND ")

	var total int64
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM interactions WHERE "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count interactions: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM interactions
		WHERE %s
		ORDER BY created_at DESC, id
		LIMIT $%d OFFSET $%d`, interactionColumns, whereClause, argIndex, argIndex+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list interactions: %w", err)
	}
	interactions, err := collectInteractions(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to scan interactions: %w", err)
	}
	return interactions, total, nil
}

func collectInteractions(rows pgx.Rows) ([]*domain.Interaction, error) {
	defer rows.Close()

	var out []*domain.Interaction
	for rows.Next() {
		var i domain.Interaction
		if err := rows.Scan(
			&i.ID, &i.JobID, &i.WorkspaceID, &i.IndependentVariable, &i.DependentVariable,
			&i.Effect, &i.Reference, &i.DatePublished, &i.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, &i)
	}
	return out, rows.Err()
}
