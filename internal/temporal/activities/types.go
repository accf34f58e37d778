// Package activities provides the Temporal activities that drive one
// extraction job: starting it, running its engine, stopping it and
// recording an abandoned run.
//
// Inputs and outputs cross the Temporal serialization boundary, so all
// fields are exported.
package activities

import "github.com/google/uuid"

// JobInput identifies the job an activity acts on.
type JobInput struct {
	JobID uuid.UUID `json:"job_id"`
}
