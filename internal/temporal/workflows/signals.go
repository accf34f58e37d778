// Package workflows defines the Temporal workflow that drives one
// extraction job when jobs are dispatched durably.
package workflows

// StopSignal requests that the job stop at its next node boundary.
type StopSignal struct {
	// Reason is free text recorded in the worker log.
	Reason string `json:"reason,omitempty"`
}
