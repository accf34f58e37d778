package engine

// Node identifies a workflow state machine node.
type Node string

const (
	NodeCreateQuery         Node = "create_query"
	NodeSearchLiterature    Node = "search_literature"
	NodeFilterCandidates    Node = "filter_candidates"
	NodeCheckRelevance      Node = "check_relevance"
	NodeAcquireDocument     Node = "acquire_document"
	NodeExtractInteractions Node = "extract_interactions"
	NodeDone                Node = "done"
	NodeStopped             Node = "stopped"
)

// IsTerminal reports whether the run ends at n.
func (n Node) IsTerminal() bool {
	return n == NodeDone || n == NodeStopped
}

// Label is the step tag written into job log entries.
func (n Node) Label() string {
	switch n {
	case NodeCreateQuery:
		return "QUERY"
	case NodeSearchLiterature:
		return "SEARCH"
	case NodeFilterCandidates:
		return "FILTER"
	case NodeCheckRelevance:
		return "ABSTRACT"
	case NodeAcquireDocument:
		return "DOWNLOAD"
	case NodeExtractInteractions:
		return "EXTRACT"
	default:
		return "STATUS"
	}
}

// Reason explains why a run reached a terminal node.
type Reason string

const (
	// ReasonTargetReached: interactionsFound reached minInteractions.
	ReasonTargetReached Reason = "target_reached"
	// ReasonQueriesExhausted: no novel query could be produced.
	ReasonQueriesExhausted Reason = "queries_exhausted"
	// ReasonStepLimit: the node execution bound was hit.
	ReasonStepLimit Reason = "step_limit"
	// ReasonStopRequested: a caller asked the job to stop.
	ReasonStopRequested Reason = "stop_requested"
	// ReasonCancelled: the run's context was cancelled, usually on shutdown.
	ReasonCancelled Reason = "cancelled"
)

// Exhausted reports whether the run ended without error and without
// reaching its target.
func (r Reason) Exhausted() bool {
	return r == ReasonQueriesExhausted || r == ReasonStepLimit
}
