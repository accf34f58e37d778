package engine

import (
	"maps"
	"slices"

	"github.com/helixir/interaction-miner/internal/domain"
)

// State is the per-job workflow state. It is a value: every node receives a
// State and returns a new one, and the with* helpers copy any slice or map
// they change so earlier values are never mutated.
type State struct {
	topic           string
	minInteractions int

	triedQueries []string
	tried        map[string]struct{}
	checked      map[string]struct{}
	pending      []domain.Paper

	currentQuery string
	currentPaper *domain.Paper
	document     *domain.Document

	interactionsFound int
	papersChecked     int
	steps             int
	queryFailures     int
	reason            Reason
}

// NewState returns the initial state for a job.
func NewState(topic string, minInteractions int) State {
	return State{
		topic:           topic,
		minInteractions: minInteractions,
		tried:           map[string]struct{}{},
		checked:         map[string]struct{}{},
	}
}

// Topic returns the variable of interest.
func (s State) Topic() string { return s.topic }

// MinInteractions returns the termination target.
func (s State) MinInteractions() int { return s.minInteractions }

// TriedQueries returns the queries issued so far, in issue order.
func (s State) TriedQueries() []string { return slices.Clone(s.triedQueries) }

// HasTried reports whether q was already issued.
func (s State) HasTried(q string) bool {
	_, ok := s.tried[q]
	return ok
}

// Checked reports whether the paper with the given DOI was already evaluated.
func (s State) Checked(doi string) bool {
	_, ok := s.checked[domain.NormalizeDOI(doi)]
	return ok
}

// CheckedCount returns the number of distinct papers evaluated.
func (s State) CheckedCount() int { return len(s.checked) }

// Pending returns the candidates awaiting a relevance check.
func (s State) Pending() []domain.Paper { return slices.Clone(s.pending) }

// CurrentQuery returns the query being worked.
func (s State) CurrentQuery() string { return s.currentQuery }

// CurrentPaper returns the paper in flight, or nil.
func (s State) CurrentPaper() *domain.Paper { return s.currentPaper }

// InteractionsFound returns the number of interactions stored by this run.
func (s State) InteractionsFound() int { return s.interactionsFound }

// PapersChecked returns the number of papers whose evaluation finished.
func (s State) PapersChecked() int { return s.papersChecked }

// Steps returns the number of node executions so far.
func (s State) Steps() int { return s.steps }

// Reason returns why the run reached a terminal node, if it has.
func (s State) Reason() Reason { return s.reason }

func (s State) withQuery(q string) State {
	s.triedQueries = append(slices.Clone(s.triedQueries), q)
	s.tried = maps.Clone(s.tried)
	s.tried[q] = struct{}{}
	s.currentQuery = q
	s.queryFailures = 0
	return s
}

func (s State) withQueryFailure() State {
	s.queryFailures++
	return s
}

func (s State) withPending(papers []domain.Paper) State {
	s.pending = slices.Clone(papers)
	return s
}

// popCandidate removes the head of pending, marks its DOI checked and makes
// it the current paper.
func (s State) popCandidate() (State, domain.Paper) {
	paper := s.pending[0]
	s.pending = slices.Clone(s.pending[1:])
	s.checked = maps.Clone(s.checked)
	s.checked[domain.NormalizeDOI(paper.DOI)] = struct{}{}
	s.currentPaper = &paper
	return s, paper
}

func (s State) withDocument(doc *domain.Document) State {
	s.document = doc
	return s
}

// finishPaper clears the in-flight paper and counts it as checked.
func (s State) finishPaper() State {
	s.currentPaper = nil
	s.document = nil
	s.papersChecked++
	return s
}

func (s State) withInteractions(n int) State {
	s.interactionsFound += n
	return s
}

func (s State) withStep() State {
	s.steps++
	return s
}

func (s State) withReason(r Reason) State {
	s.reason = r
	return s
}
