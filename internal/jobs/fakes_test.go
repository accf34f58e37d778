package jobs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/helixir/interaction-miner/internal/domain"
	"github.com/helixir/interaction-miner/internal/engine"
	"github.com/helixir/interaction-miner/internal/repository"
)

// memStore is an in-memory stand-in for the Postgres repositories with the
// same status rules.
type memStore struct {
	mu           sync.Mutex
	jobs         map[uuid.UUID]*domain.Job
	interactions []*domain.Interaction
	workspaces   map[uuid.UUID]*domain.Workspace

	finishErr error
	stopReads int
}

func newMemStore() *memStore {
	return &memStore{
		jobs:       map[uuid.UUID]*domain.Job{},
		workspaces: map[uuid.UUID]*domain.Workspace{},
	}
}

func (s *memStore) jobRepo() *memJobs                 { return &memJobs{s} }
func (s *memStore) interactionRepo() *memInteractions { return &memInteractions{s} }
func (s *memStore) workspaceRepo() *memWorkspaces     { return &memWorkspaces{s} }

func (s *memStore) snapshot(id uuid.UUID) domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := *s.jobs[id]
	j.Logs = append([]domain.LogEntry(nil), j.Logs...)
	return j
}

func (s *memStore) addJob(status domain.JobStatus) *domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	job := &domain.Job{
		ID:              uuid.New(),
		WorkspaceID:     uuid.New(),
		Topic:           "sleep",
		MinInteractions: 1,
		Status:          status,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if status == domain.JobStatusRunning {
		job.StartedAt = &now
	}
	s.jobs[job.ID] = job
	cp := *job
	return &cp
}

type memJobs struct{ s *memStore }

var _ repository.JobRepository = (*memJobs)(nil)

func (r *memJobs) Create(_ context.Context, job *domain.Job) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.jobs[job.ID]; ok {
		return domain.NewAlreadyExistsError("job", job.ID.String())
	}
	cp := *job
	r.s.jobs[job.ID] = &cp
	return nil
}

func (r *memJobs) Get(_ context.Context, id uuid.UUID) (*domain.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	j, ok := r.s.jobs[id]
	if !ok {
		return nil, domain.NewNotFoundError("job", id.String())
	}
	cp := *j
	return &cp, nil
}

func (r *memJobs) List(_ context.Context, filter repository.JobFilter) ([]*domain.Job, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.Job
	for _, j := range r.s.jobs {
		if filter.WorkspaceID != nil && j.WorkspaceID != *filter.WorkspaceID {
			continue
		}
		cp := *j
		out = append(out, &cp)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	return out, int64(len(out)), nil
}

func (r *memJobs) Start(_ context.Context, id uuid.UUID, entry domain.LogEntry) (*domain.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	j, ok := r.s.jobs[id]
	if !ok {
		return nil, domain.NewNotFoundError("job", id.String())
	}
	if j.Status != domain.JobStatusPending {
		return nil, domain.ErrInvalidStatusTransition
	}
	j.Status = domain.JobStatusRunning
	at := entry.At
	j.StartedAt = &at
	j.Logs = append(j.Logs, entry)
	j.CurrentStep = entry.Message
	cp := *j
	return &cp, nil
}

func (r *memJobs) ClaimPending(_ context.Context, limit int, entry domain.LogEntry) ([]*domain.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var pending []*domain.Job
	for _, j := range r.s.jobs {
		if j.Status == domain.JobStatusPending {
			pending = append(pending, j)
		}
	}
	sort.Slice(pending, func(a, b int) bool { return pending[a].CreatedAt.Before(pending[b].CreatedAt) })
	if len(pending) > limit {
		pending = pending[:limit]
	}
	out := make([]*domain.Job, 0, len(pending))
	for _, j := range pending {
		j.Status = domain.JobStatusRunning
		at := entry.At
		j.StartedAt = &at
		j.Logs = append(j.Logs, entry)
		cp := *j
		out = append(out, &cp)
	}
	return out, nil
}

func (r *memJobs) AppendProgress(_ context.Context, id uuid.UUID, update domain.ProgressUpdate) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	j, ok := r.s.jobs[id]
	if !ok {
		return domain.NewNotFoundError("job", id.String())
	}
	if j.Status != domain.JobStatusRunning {
		return domain.ErrJobNotRunning
	}
	j.Logs = append(j.Logs, update.Entry)
	j.CurrentStep = update.Entry.Message
	j.InteractionsFound += update.InteractionsFoundDelta
	j.PapersChecked += update.PapersCheckedDelta
	return nil
}

func (r *memJobs) RequestStop(_ context.Context, id uuid.UUID, entry domain.LogEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	j, ok := r.s.jobs[id]
	if !ok {
		return domain.NewNotFoundError("job", id.String())
	}
	if j.Status != domain.JobStatusRunning {
		return domain.ErrJobNotRunning
	}
	j.StopRequested = true
	j.Logs = append(j.Logs, entry)
	return nil
}

func (r *memJobs) IsStopRequested(_ context.Context, id uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.stopReads++
	j, ok := r.s.jobs[id]
	if !ok {
		return false, domain.NewNotFoundError("job", id.String())
	}
	return j.StopRequested, nil
}

func (r *memJobs) Finish(_ context.Context, id uuid.UUID, outcome domain.JobOutcome, entry domain.LogEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.finishErr != nil {
		return r.s.finishErr
	}
	j, ok := r.s.jobs[id]
	if !ok {
		return domain.NewNotFoundError("job", id.String())
	}
	if j.Status != domain.JobStatusRunning {
		return domain.ErrInvalidStatusTransition
	}
	j.Status = outcome.Status
	j.ErrorMessage = outcome.ErrorMessage
	at := entry.At
	j.CompletedAt = &at
	j.Logs = append(j.Logs, entry)
	j.CurrentStep = entry.Message
	return nil
}

func (r *memJobs) SetWorkflowID(_ context.Context, id uuid.UUID, workflowID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	j, ok := r.s.jobs[id]
	if !ok {
		return domain.NewNotFoundError("job", id.String())
	}
	j.TemporalWorkflowID = workflowID
	return nil
}

func (r *memJobs) Delete(_ context.Context, id uuid.UUID, force bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	j, ok := r.s.jobs[id]
	if !ok {
		return domain.NewNotFoundError("job", id.String())
	}
	if j.Status == domain.JobStatusRunning && !force {
		return domain.ErrJobRunning
	}
	delete(r.s.jobs, id)
	kept := r.s.interactions[:0]
	for _, i := range r.s.interactions {
		if i.JobID != id {
			kept = append(kept, i)
		}
	}
	r.s.interactions = kept
	return nil
}

func (r *memJobs) ListStuck(_ context.Context, cutoff time.Time) ([]*domain.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.Job
	for _, j := range r.s.jobs {
		if j.Status == domain.JobStatusRunning && j.StartedAt != nil && j.StartedAt.Before(cutoff) {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memJobs) FailStuck(_ context.Context, cutoff time.Time, message string, entry domain.LogEntry) ([]uuid.UUID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var ids []uuid.UUID
	for _, j := range r.s.jobs {
		if j.Status == domain.JobStatusRunning && j.StartedAt != nil && j.StartedAt.Before(cutoff) {
			j.Status = domain.JobStatusFailed
			j.StopRequested = true
			j.ErrorMessage = message
			j.Logs = append(j.Logs, entry)
			ids = append(ids, j.ID)
		}
	}
	return ids, nil
}

type memInteractions struct{ s *memStore }

var _ repository.InteractionRepository = (*memInteractions)(nil)

// seed stores an interaction directly, bypassing job progress.
func (r *memInteractions) seed(in *domain.Interaction) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.insertLocked(in)
}

func (r *memInteractions) insertLocked(in *domain.Interaction) bool {
	for _, existing := range r.s.interactions {
		if existing.JobID == in.JobID &&
			existing.IndependentVariable == in.IndependentVariable &&
			existing.DependentVariable == in.DependentVariable &&
			existing.Effect == in.Effect &&
			existing.Reference == in.Reference {
			return false
		}
	}
	cp := *in
	r.s.interactions = append(r.s.interactions, &cp)
	return true
}

func (r *memInteractions) InsertWithProgress(_ context.Context, in *domain.Interaction, update domain.ProgressUpdate) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if j, ok := r.s.jobs[in.JobID]; ok && j.Status != domain.JobStatusRunning {
		return false, domain.ErrJobNotRunning
	}
	if !r.insertLocked(in) {
		return false, nil
	}
	if j, ok := r.s.jobs[in.JobID]; ok {
		j.Logs = append(j.Logs, update.Entry)
		j.CurrentStep = update.Entry.Message
		j.InteractionsFound += update.InteractionsFoundDelta
		j.PapersChecked += update.PapersCheckedDelta
	}
	return true, nil
}

func (r *memInteractions) List(_ context.Context, filter domain.InteractionFilter) ([]*domain.Interaction, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.Interaction
	for _, i := range r.s.interactions {
		if filter.JobID != nil && i.JobID != *filter.JobID {
			continue
		}
		if filter.WorkspaceID != nil && i.WorkspaceID != *filter.WorkspaceID {
			continue
		}
		cp := *i
		out = append(out, &cp)
	}
	return out, int64(len(out)), nil
}

type memWorkspaces struct{ s *memStore }

var _ repository.WorkspaceRepository = (*memWorkspaces)(nil)

func (r *memWorkspaces) Create(_ context.Context, ws *domain.Workspace) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.workspaces {
		if existing.Name == ws.Name {
			return domain.NewAlreadyExistsError("workspace", ws.Name)
		}
	}
	cp := *ws
	r.s.workspaces[ws.ID] = &cp
	return nil
}

func (r *memWorkspaces) Get(_ context.Context, id uuid.UUID) (*domain.Workspace, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ws, ok := r.s.workspaces[id]
	if !ok {
		return nil, domain.NewNotFoundError("workspace", id.String())
	}
	cp := *ws
	return &cp, nil
}

func (r *memWorkspaces) GetByName(_ context.Context, name string) (*domain.Workspace, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, ws := range r.s.workspaces {
		if ws.Name == name {
			cp := *ws
			return &cp, nil
		}
	}
	return nil, domain.NewNotFoundError("workspace", name)
}

func (r *memWorkspaces) EnsureByName(ctx context.Context, name, description string) (*domain.Workspace, error) {
	if ws, err := r.GetByName(ctx, name); err == nil {
		return ws, nil
	}
	ws := &domain.Workspace{ID: uuid.New(), Name: name, Description: description}
	if err := r.Create(ctx, ws); err != nil {
		return nil, err
	}
	return ws, nil
}

func (r *memWorkspaces) List(_ context.Context) ([]domain.WorkspaceSummary, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.WorkspaceSummary
	for _, ws := range r.s.workspaces {
		sum := domain.WorkspaceSummary{Workspace: *ws}
		for _, j := range r.s.jobs {
			if j.WorkspaceID == ws.ID {
				sum.JobCount++
			}
		}
		for _, i := range r.s.interactions {
			if i.WorkspaceID == ws.ID {
				sum.InteractionCount++
			}
		}
		out = append(out, sum)
	}
	return out, nil
}

// fakeEngine runs fn in place of the workflow.
type fakeEngine struct {
	fn func(ctx context.Context, job engine.Job, rec engine.Recorder, stop engine.StopChecker) (engine.Reason, error)
}

func (f *fakeEngine) Run(ctx context.Context, job engine.Job, state engine.State, rec engine.Recorder, stop engine.StopChecker) (engine.Result, error) {
	reason, err := f.fn(ctx, job, rec, stop)
	return engine.Result{State: state, Reason: reason}, err
}

// recordingDispatcher remembers dispatched jobs.
type recordingDispatcher struct {
	mu   sync.Mutex
	jobs []uuid.UUID
	err  error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, job *domain.Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.jobs = append(d.jobs, job.ID)
	return nil
}

// funcLocker runs fn only when held is false.
type funcLocker struct {
	held  bool
	calls int
}

func (l *funcLocker) WithAdvisoryLock(ctx context.Context, _ int64, fn func(ctx context.Context) error) (bool, error) {
	l.calls++
	if l.held {
		return false, nil
	}
	return true, fn(ctx)
}
