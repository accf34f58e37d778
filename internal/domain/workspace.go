package domain

import (
	"time"

	"github.com/google/uuid"
)

// DefaultWorkspaceName is the workspace jobs land in when none is named.
const DefaultWorkspaceName = "Default"

// Workspace groups jobs and their interactions for one research context.
type Workspace struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// WorkspaceSummary is a workspace with aggregate counts.
type WorkspaceSummary struct {
	Workspace
	JobCount         int `json:"job_count"`
	InteractionCount int `json:"interaction_count"`
}
