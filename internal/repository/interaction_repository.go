package repository

import (
	"context"

	"github.com/helixir/interaction-miner/internal/domain"
)

// InteractionRepository persists extracted causal claims.
type InteractionRepository interface {
	// InsertWithProgress stores the interaction unless the same (iv, dv,
	// effect, reference) tuple already exists for its job and, only when a
	// row was written, applies update to the job in the same transaction.
	InsertWithProgress(ctx context.Context, interaction *domain.Interaction, update domain.ProgressUpdate) (bool, error)

	// List returns interactions newest first, narrowed to a job or a
	// workspace, with the total match count.
	List(ctx context.Context, filter domain.InteractionFilter) ([]*domain.Interaction, int64, error)
}

func validateInteractionFilter(f *domain.InteractionFilter) error {
	if f.JobID == nil && f.WorkspaceID == nil {
		return domain.NewValidationError("filter", "job_id or workspace_id is required")
	}
	applyPaginationDefaults(&f.Limit, &f.Offset)
	return nil
}
