// Package engine implements the per-job literature mining state machine.
//
// A run threads an immutable State through the nodes CreateQuery,
// SearchLiterature, FilterCandidates, CheckRelevance, AcquireDocument and
// ExtractInteractions until it reaches Done or Stopped. Stop requests and
// context cancellation are checked at every node boundary; work already in
// flight is never preempted.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/helixir/interaction-miner/internal/domain"
	"github.com/helixir/interaction-miner/internal/observability"
)

// Errors returned by Run.
var (
	// ErrNoProgress is returned when a node produced neither a state change
	// nor a valid next node.
	ErrNoProgress = errors.New("engine made no progress")
)

// Config bounds a single run.
type Config struct {
	// StepLimit caps total node executions.
	StepLimit int
	// MaxSearchResults caps the number of papers requested per query.
	MaxSearchResults int
	// MaxDocumentChars truncates document text before extraction.
	MaxDocumentChars int
	// MaxQueryFailures is the number of consecutive query generation
	// failures tolerated before the strategy space is treated as exhausted.
	MaxQueryFailures int
}

// DefaultConfig returns the production bounds.
func DefaultConfig() Config {
	return Config{
		StepLimit:        400,
		MaxSearchResults: 100,
		MaxDocumentChars: 400_000,
		MaxQueryFailures: 3,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.StepLimit <= 0 {
		c.StepLimit = d.StepLimit
	}
	if c.MaxSearchResults <= 0 || c.MaxSearchResults > d.MaxSearchResults {
		c.MaxSearchResults = d.MaxSearchResults
	}
	if c.MaxDocumentChars <= 0 {
		c.MaxDocumentChars = d.MaxDocumentChars
	}
	if c.MaxQueryFailures <= 0 {
		c.MaxQueryFailures = d.MaxQueryFailures
	}
	return c
}

// Deps holds the external collaborators a run calls out to.
type Deps struct {
	Queries   QueryGenerator
	Search    SearchProvider
	Relevance RelevanceChecker
	Documents DocumentAcquirer
	Extractor InteractionExtractor
	Logger    zerolog.Logger
	Metrics   *observability.Metrics
	Clock     func() time.Time
	NewID     func() uuid.UUID
	Config    Config
}

// Engine drives runs. It holds no per-job state and is safe for concurrent
// use by multiple jobs.
type Engine struct {
	queries   QueryGenerator
	search    SearchProvider
	relevance RelevanceChecker
	documents DocumentAcquirer
	extractor InteractionExtractor
	logger    zerolog.Logger
	metrics   *observability.Metrics
	clock     func() time.Time
	newID     func() uuid.UUID
	cfg       Config
}

// New creates an Engine.
func New(deps Deps) (*Engine, error) {
	switch {
	case deps.Queries == nil:
		return nil, fmt.Errorf("engine: query generator is required")
	case deps.Search == nil:
		return nil, fmt.Errorf("engine: search provider is required")
	case deps.Relevance == nil:
		return nil, fmt.Errorf("engine: relevance checker is required")
	case deps.Documents == nil:
		return nil, fmt.Errorf("engine: document acquirer is required")
	case deps.Extractor == nil:
		return nil, fmt.Errorf("engine: interaction extractor is required")
	}

	e := &Engine{
		queries:   deps.Queries,
		search:    deps.Search,
		relevance: deps.Relevance,
		documents: deps.Documents,
		extractor: deps.Extractor,
		logger:    deps.Logger.With().Str("component", "engine").Logger(),
		metrics:   deps.Metrics,
		clock:     deps.Clock,
		newID:     deps.NewID,
		cfg:       deps.Config.withDefaults(),
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	if e.newID == nil {
		e.newID = uuid.New
	}
	return e, nil
}

// Config returns the effective bounds.
func (e *Engine) Config() Config { return e.cfg }

// Job identifies the job a run belongs to.
type Job struct {
	ID          uuid.UUID
	WorkspaceID uuid.UUID
}

// Result is the outcome of a run that reached a terminal node.
type Result struct {
	State    State
	Terminal Node
	Reason   Reason
}

// Stopped reports whether the run ended because a stop was requested.
func (r Result) Stopped() bool { return r.Reason == ReasonStopRequested }

// run carries the per-call collaborators of one Run invocation.
type run struct {
	*Engine
	job    Job
	rec    Recorder
	logger zerolog.Logger
}

// Run drives state from NodeCreateQuery until a terminal node is reached.
//
// Run returns a non-nil error only for fatal failures: a Recorder write
// failure, a failure reading the stop flag, or a collaborator error that
// reports itself as fatal (see IsFatal). In that case the returned Result
// still holds the last state reached.
func (e *Engine) Run(ctx context.Context, job Job, state State, rec Recorder, stop StopChecker) (Result, error) {
	r := &run{
		Engine: e,
		job:    job,
		rec:    rec,
		logger: observability.WithJobContext(e.logger, job.ID.String(), job.WorkspaceID.String(), state.Topic()),
	}
	return r.loop(ctx, state, NodeCreateQuery, stop)
}

func (r *run) loop(ctx context.Context, state State, next Node, stop StopChecker) (Result, error) {
	for {
		if next.IsTerminal() {
			return Result{State: state, Terminal: next, Reason: state.Reason()}, nil
		}

		if stop != nil {
			stopped, err := stop.StopRequested(ctx)
			if err != nil && ctx.Err() == nil {
				return Result{State: state}, fmt.Errorf("read stop flag: %w", err)
			}
			if err == nil && stopped {
				state = state.withReason(ReasonStopRequested)
				r.logger.Info().Str("pending_node", string(next)).Msg("stop requested, halting")
				if err := r.progress(context.WithoutCancel(ctx), NodeStopped, "Stop requested by user", 0, 0); err != nil {
					return Result{State: state}, err
				}
				return Result{State: state, Terminal: NodeStopped, Reason: ReasonStopRequested}, nil
			}
		}

		if ctx.Err() != nil {
			state = state.withReason(ReasonCancelled)
			return Result{State: state, Terminal: NodeStopped, Reason: ReasonCancelled}, nil
		}

		if state.Steps() >= r.cfg.StepLimit {
			state = state.withReason(ReasonStepLimit)
			msg := fmt.Sprintf("Step limit of %d reached with %d/%d interactions", r.cfg.StepLimit, state.InteractionsFound(), state.MinInteractions())
			r.logger.Warn().Int("steps", state.Steps()).Msg("step limit reached")
			if err := r.progress(ctx, NodeStopped, msg, 0, 0); err != nil {
				return Result{State: state}, err
			}
			return Result{State: state, Terminal: NodeStopped, Reason: ReasonStepLimit}, nil
		}

		state = state.withStep()
		r.metrics.RecordNode(string(next))
		nodeLogger := observability.WithNodeContext(r.logger, string(next), state.Steps())
		nodeLogger.Trace().Msg("entering node")

		var err error
		state, next, err = r.step(ctx, state, next)
		if err != nil {
			return Result{State: state}, err
		}
	}
}

func (r *run) step(ctx context.Context, state State, node Node) (State, Node, error) {
	switch node {
	case NodeCreateQuery:
		return r.createQuery(ctx, state)
	case NodeSearchLiterature:
		return r.searchLiterature(ctx, state)
	case NodeFilterCandidates:
		return r.filterCandidates(ctx, state)
	case NodeCheckRelevance:
		return r.checkRelevance(ctx, state)
	case NodeAcquireDocument:
		return r.acquireDocument(ctx, state)
	case NodeExtractInteractions:
		return r.extractInteractions(ctx, state)
	default:
		return state, node, fmt.Errorf("%w: unknown node %q", ErrNoProgress, node)
	}
}

func (r *run) createQuery(ctx context.Context, state State) (State, Node, error) {
	query, err := r.queries.GenerateQuery(ctx, state.Topic(), state.TriedQueries())
	switch {
	case errors.Is(err, domain.ErrQueriesExhausted):
		return r.exhausted(ctx, state, "Query generator has no further strategies")
	case err != nil:
		if IsFatal(err) {
			return state, NodeStopped, fmt.Errorf("generate query: %w", err)
		}
		if ctx.Err() != nil {
			return state, NodeCreateQuery, nil
		}
		state = state.withQueryFailure()
		r.logger.Warn().Err(err).Int("failures", state.queryFailures).Msg("query generation failed")
		if err := r.progress(ctx, NodeCreateQuery, "Query generation failed: "+err.Error(), 0, 0); err != nil {
			return state, NodeStopped, err
		}
		if state.queryFailures >= r.cfg.MaxQueryFailures {
			return r.exhausted(ctx, state, fmt.Sprintf("Query generation failed %d times in a row", state.queryFailures))
		}
		return state, NodeCreateQuery, nil
	}

	if query == "" || state.HasTried(query) {
		state = state.withQueryFailure()
		r.logger.Debug().Str("query", query).Msg("generator repeated a query")
		if state.queryFailures >= r.cfg.MaxQueryFailures {
			return r.exhausted(ctx, state, "No novel search query could be produced")
		}
		return state, NodeCreateQuery, nil
	}

	state = state.withQuery(query)
	if err := r.progress(ctx, NodeCreateQuery, "Generated query: "+query, 0, 0); err != nil {
		return state, NodeStopped, err
	}
	return state, NodeSearchLiterature, nil
}

func (r *run) exhausted(ctx context.Context, state State, msg string) (State, Node, error) {
	state = state.withReason(ReasonQueriesExhausted)
	r.logger.Info().Int("queries", len(state.triedQueries)).Msg("query strategies exhausted")
	if err := r.progress(ctx, NodeDone, msg, 0, 0); err != nil {
		return state, NodeDone, err
	}
	return state, NodeDone, nil
}

func (r *run) searchLiterature(ctx context.Context, state State) (State, Node, error) {
	start := r.clock()
	papers, err := r.search.Search(ctx, state.CurrentQuery(), r.cfg.MaxSearchResults)
	elapsed := r.clock().Sub(start).Seconds()
	if err != nil {
		if IsFatal(err) {
			return state, NodeStopped, fmt.Errorf("search: %w", err)
		}
		r.metrics.RecordSearchFailed(r.search.Name(), elapsed)
		r.logger.Warn().Err(err).Str("query", state.CurrentQuery()).Msg("search failed")
		if err := r.progress(ctx, NodeSearchLiterature, "Search failed: "+err.Error(), 0, 0); err != nil {
			return state, NodeStopped, err
		}
		return state.withPending(nil), NodeCreateQuery, nil
	}
	if len(papers) > r.cfg.MaxSearchResults {
		papers = papers[:r.cfg.MaxSearchResults]
	}
	r.metrics.RecordSearchCompleted(r.search.Name(), len(papers), elapsed)

	msg := fmt.Sprintf("Found %d papers on %s", len(papers), r.search.Name())
	if err := r.progress(ctx, NodeSearchLiterature, msg, 0, 0); err != nil {
		return state, NodeStopped, err
	}
	return state.withPending(papers), NodeFilterCandidates, nil
}

// filterCandidates drops papers without a DOI, papers already checked and
// duplicates within the pending list.
func (r *run) filterCandidates(ctx context.Context, state State) (State, Node, error) {
	pending := state.pending
	kept := make([]domain.Paper, 0, len(pending))
	seen := make(map[string]struct{}, len(pending))
	var noDOI, dup int
	for _, p := range pending {
		doi := domain.NormalizeDOI(p.DOI)
		if doi == "" {
			noDOI++
			continue
		}
		if _, ok := seen[doi]; ok || state.Checked(doi) {
			dup++
			continue
		}
		seen[doi] = struct{}{}
		p.DOI = doi
		kept = append(kept, p)
	}

	if noDOI > 0 || dup > 0 {
		r.logger.Debug().Int("no_doi", noDOI).Int("already_checked", dup).Int("remaining", len(kept)).Msg("filtered candidates")
	}
	state = state.withPending(kept)
	if len(kept) == 0 {
		if len(pending) > 0 {
			if err := r.progress(ctx, NodeFilterCandidates, "No unchecked papers left for this query", 0, 0); err != nil {
				return state, NodeStopped, err
			}
		}
		return state, NodeCreateQuery, nil
	}
	return state, NodeCheckRelevance, nil
}

func (r *run) checkRelevance(ctx context.Context, state State) (State, Node, error) {
	if len(state.pending) == 0 {
		return state, NodeFilterCandidates, nil
	}
	state, paper := state.popCandidate()
	logger := observability.WithPaperContext(r.logger, paper.DOI, paper.PMID)

	relevant, err := r.relevance.CheckRelevance(ctx, state.Topic(), paper)
	if err != nil {
		if IsFatal(err) {
			return state, NodeStopped, fmt.Errorf("check relevance: %w", err)
		}
		logger.Warn().Err(err).Msg("relevance check failed, treating as rejected")
		relevant = false
	}
	if !relevant {
		state = state.finishPaper()
		r.metrics.RecordPaperChecked("rejected")
		if err := r.progress(ctx, NodeCheckRelevance, "Rejected: "+paperLabel(paper), 0, 1); err != nil {
			return state, NodeStopped, err
		}
		return state, NodeFilterCandidates, nil
	}

	if err := r.progress(ctx, NodeCheckRelevance, "Accepted: "+paperLabel(paper), 0, 0); err != nil {
		return state, NodeStopped, err
	}
	return state, NodeAcquireDocument, nil
}

func (r *run) acquireDocument(ctx context.Context, state State) (State, Node, error) {
	paper := state.CurrentPaper()
	if paper == nil {
		return state, NodeFilterCandidates, nil
	}

	doc, err := r.documents.Acquire(ctx, *paper)
	if err == nil && (doc == nil || doc.Text == "") {
		err = &domain.UnavailableError{DOI: paper.DOI, Attempts: []domain.SourceAttempt{{Source: "converter", Reason: "empty text"}}}
	}
	if err != nil {
		if IsFatal(err) {
			return state, NodeStopped, fmt.Errorf("acquire document: %w", err)
		}
		state = state.finishPaper()
		r.metrics.RecordDocumentUnavailable()
		r.metrics.RecordPaperChecked("unavailable")
		paperLogger := observability.WithPaperContext(r.logger, paper.DOI, paper.PMID)
		paperLogger.Info().Err(err).Msg("full text unavailable")
		if err := r.progress(ctx, NodeAcquireDocument, "Could not download "+paper.DOI+": "+unavailableReason(err), 0, 1); err != nil {
			return state, NodeStopped, err
		}
		return state, NodeFilterCandidates, nil
	}

	msg := fmt.Sprintf("Downloaded %s from %s (%d chars)", paper.DOI, doc.Source, utf8.RuneCountInString(doc.Text))
	if err := r.progress(ctx, NodeAcquireDocument, msg, 0, 0); err != nil {
		return state, NodeStopped, err
	}
	return state.withDocument(doc), NodeExtractInteractions, nil
}

func (r *run) extractInteractions(ctx context.Context, state State) (State, Node, error) {
	paper := state.CurrentPaper()
	if paper == nil || state.document == nil {
		return state, NodeFilterCandidates, nil
	}
	logger := observability.WithPaperContext(r.logger, paper.DOI, paper.PMID)
	text := truncateRunes(state.document.Text, r.cfg.MaxDocumentChars)

	claims, err := r.extractor.ExtractInteractions(ctx, state.Topic(), text)
	if err != nil {
		if IsFatal(err) {
			return state, NodeStopped, fmt.Errorf("extract interactions: %w", err)
		}
		logger.Warn().Err(err).Int("claims", len(claims)).Msg("extraction ended early")
	}

	stored := 0
	for _, c := range claims {
		effect, nerr := domain.NormalizeEffect(c.Effect)
		if nerr != nil {
			r.metrics.RecordClaimRejected("effect")
			logger.Debug().Str("effect", c.Effect).Msg("skipping claim with unrecognized effect")
			continue
		}
		if !domain.MatchesTopic(state.Topic(), c.IV, c.DV) {
			r.metrics.RecordClaimRejected("topic")
			logger.Debug().Str("iv", c.IV).Str("dv", c.DV).Msg("skipping claim off topic")
			continue
		}

		interaction := domain.Interaction{
			ID:                  r.newID(),
			JobID:               r.job.ID,
			WorkspaceID:         r.job.WorkspaceID,
			IndependentVariable: c.IV,
			DependentVariable:   c.DV,
			Effect:              effect,
			Reference:           paper.DOI,
			DatePublished:       paper.PublishedDate,
			CreatedAt:           r.clock(),
		}
		update := domain.ProgressUpdate{
			Entry:                  r.entry(NodeExtractInteractions, "Stored interaction: "+interaction.String()),
			InteractionsFoundDelta: 1,
		}
		inserted, rerr := r.rec.RecordInteraction(ctx, interaction, update)
		if rerr != nil {
			return state.withInteractions(stored), NodeStopped, fmt.Errorf("record interaction: %w", rerr)
		}
		if !inserted {
			r.metrics.RecordClaimRejected("duplicate")
			continue
		}
		stored++
		r.metrics.RecordInteractionStored()
	}

	state = state.withInteractions(stored).finishPaper()
	r.metrics.RecordPaperChecked("extracted")
	msg := fmt.Sprintf("Extracted %d of %d claims from %s; %d/%d interactions", stored, len(claims), paper.DOI, state.InteractionsFound(), state.MinInteractions())
	if err := r.progress(ctx, NodeExtractInteractions, msg, 0, 1); err != nil {
		return state, NodeStopped, err
	}

	if state.InteractionsFound() >= state.MinInteractions() {
		state = state.withReason(ReasonTargetReached)
		return state, NodeDone, nil
	}
	return state, NodeFilterCandidates, nil
}

func (r *run) entry(node Node, msg string) domain.LogEntry {
	return domain.LogEntry{At: r.clock(), Step: node.Label(), Message: msg}
}

// progress writes one log entry and its counter deltas.
func (r *run) progress(ctx context.Context, node Node, msg string, interactions, papers int) error {
	err := r.rec.Progress(ctx, domain.ProgressUpdate{
		Entry:                  r.entry(node, msg),
		InteractionsFoundDelta: interactions,
		PapersCheckedDelta:     papers,
	})
	if err != nil {
		return fmt.Errorf("record progress: %w", err)
	}
	return nil
}

func paperLabel(p domain.Paper) string {
	if p.Title == "" {
		return p.DOI
	}
	return fmt.Sprintf("%s (%s)", p.Title, p.DOI)
}

func unavailableReason(err error) string {
	var ue *domain.UnavailableError
	if errors.As(err, &ue) && ue.Paywalled() {
		return "paywalled"
	}
	return err.Error()
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}
