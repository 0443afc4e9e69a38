// Package orchestrator runs pipeline stages: it checks preconditions, creates
// jobs, invokes agents and closes jobs out with their artifacts and usage.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/flow-agents/internal/agents"
	"github.com/jonathan/flow-agents/internal/artifacts"
	"github.com/jonathan/flow-agents/internal/blob"
	"github.com/jonathan/flow-agents/internal/db"
	"github.com/jonathan/flow-agents/internal/ledger"
	"github.com/jonathan/flow-agents/internal/types"
)

// DefaultStageCeiling bounds a whole stage run.
const DefaultStageCeiling = 300 * time.Second

// closeTimeout bounds the failure write after the stage context is gone.
const closeTimeout = 10 * time.Second

// Store is the persistence the orchestrator needs.
type Store interface {
	db.ProjectStore
	db.ArtifactStore
	db.JobStore
	db.ApprovalStore
	db.RunLogStore
}

// DispatchRequest names the job to run. Every id must agree with the stored job.
type DispatchRequest struct {
	Stage           string
	ProjectID       uuid.UUID
	InputArtifactID uuid.UUID
	JobID           uuid.UUID
	Channels        []string
}

// RunResult is a successful stage run.
type RunResult struct {
	Job       *types.Job
	Artifacts []types.Artifact
	Approvals []types.Approval
	RunLog    *types.RunLog
}

// Orchestrator owns stage execution.
type Orchestrator struct {
	store        Store
	ledger       *ledger.Ledger
	artifacts    *artifacts.Store
	agents       map[string]agents.Agent
	logger       *slog.Logger
	now          func() time.Time
	ceiling      time.Duration
	defaultModel string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithStageCeiling bounds each Run. Zero disables the bound.
func WithStageCeiling(d time.Duration) Option {
	return func(o *Orchestrator) { o.ceiling = d }
}

// WithDefaultModel names the model recorded for runs that fail before the backend answers.
func WithDefaultModel(model string) Option {
	return func(o *Orchestrator) { o.defaultModel = model }
}

// New builds an Orchestrator. Every agent must be named after a registered stage.
func New(store Store, blobs blob.Store, stageAgents []agents.Agent, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		store:        store,
		ledger:       ledger.New(store),
		artifacts:    artifacts.New(store, blobs),
		agents:       make(map[string]agents.Agent, len(stageAgents)),
		logger:       slog.Default(),
		now:          time.Now,
		ceiling:      DefaultStageCeiling,
		defaultModel: "unknown",
	}
	for _, a := range stageAgents {
		if _, err := Lookup(a.Name()); err != nil {
			return nil, err
		}
		o.agents[a.Name()] = a
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Ledger exposes the job ledger.
func (o *Orchestrator) Ledger() *ledger.Ledger {
	return o.ledger
}

// Artifacts exposes the artifact store.
func (o *Orchestrator) Artifacts() *artifacts.Store {
	return o.artifacts
}

// Prepare checks that the project has everything stage needs and creates its job.
// When something is missing it returns *PreconditionError and creates nothing.
func (o *Orchestrator) Prepare(ctx context.Context, projectID uuid.UUID, stage string) (*types.Job, error) {
	def, err := Lookup(stage)
	if err != nil {
		return nil, err
	}
	if _, err := o.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}

	var missing []string
	input, err := o.artifacts.Latest(ctx, projectID, def.InputTypes...)
	switch {
	case artifacts.IsNotFound(err):
		missing = append(missing, strings.Join(def.InputTypes, " or "))
	case err != nil:
		return nil, err
	}
	for _, aux := range def.Auxiliary {
		if !aux.Required {
			continue
		}
		_, err := o.artifacts.Latest(ctx, projectID, aux.Type)
		switch {
		case artifacts.IsNotFound(err):
			missing = append(missing, aux.Type)
		case err != nil:
			return nil, err
		}
	}
	if len(missing) > 0 {
		return nil, &PreconditionError{Stage: stage, Missing: missing}
	}

	return o.ledger.CreateJob(ctx, projectID, stage, input.ID)
}

// runState tracks what a run has done so far for the failure path.
type runState struct {
	start  time.Time
	model  string
	result *agents.Result
	logged bool
}

// Run executes a prepared job. A dispatch that does not match its job returns a
// *RejectedError and leaves the job alone. Every later failure ends in a
// best-effort transition to failed carrying the error text, written on a
// context detached from ctx.
func (o *Orchestrator) Run(ctx context.Context, req DispatchRequest) (*RunResult, error) {
	logger := o.logger.With("job_id", req.JobID, "project_id", req.ProjectID, "stage", req.Stage)
	state := &runState{start: o.now(), model: o.defaultModel}

	if o.ceiling > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.ceiling)
		defer cancel()
	}

	logger.Info("stage started")
	res, err := o.run(ctx, req, state, logger)
	var rejected *RejectedError
	if errors.As(err, &rejected) {
		logger.Warn("dispatch rejected", "error", err)
		return nil, err
	}
	if err != nil {
		logger.Error("stage failed", "error", err, "duration_ms", o.since(state.start))
		o.fail(ctx, req, state, err, logger)
		return nil, err
	}
	logger.Info("stage finished", "status", res.Job.Status, "artifacts", len(res.Artifacts), "duration_ms", o.since(state.start))
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context, req DispatchRequest, state *runState, logger *slog.Logger) (*RunResult, error) {
	job, err := o.ledger.GetJob(ctx, req.JobID)
	if err != nil {
		return nil, &RejectedError{JobID: req.JobID, Err: fmt.Errorf("failed to load job: %w", err)}
	}
	if err := checkJob(job, req); err != nil {
		return nil, &RejectedError{JobID: req.JobID, Err: err}
	}

	def, err := Lookup(req.Stage)
	if err != nil {
		return nil, err
	}
	agent, ok := o.agents[req.Stage]
	if !ok {
		return nil, fmt.Errorf("no agent registered for stage %s", req.Stage)
	}

	in, err := o.loadInput(ctx, def, req)
	if err != nil {
		return nil, err
	}

	result, err := agent.Invoke(ctx, in)
	if err != nil {
		return nil, err
	}
	state.result = result
	if result.Model != "" {
		state.model = result.Model
	}
	if len(result.Outputs) == 0 {
		return nil, fmt.Errorf("%s agent produced no artifacts", req.Stage)
	}

	written, primary, err := o.writeOutputs(ctx, result.Outputs)
	if err != nil {
		return nil, err
	}

	runLog := o.logRun(ctx, req.JobID, state, logger)

	status := types.JobStatusDone
	if def.RequiresApproval {
		status = types.JobStatusNeedsApproval
	}
	if err := o.ledger.UpdateStatus(ctx, req.JobID, types.JobUpdate{Status: status, OutputArtifactID: &primary}); err != nil {
		return nil, fmt.Errorf("failed to close job: %w", err)
	}

	out := &RunResult{Artifacts: written, RunLog: runLog}
	if def.RequiresApproval {
		ids := make([]uuid.UUID, len(written))
		for i, a := range written {
			ids[i] = a.ID
		}
		approvals, err := o.store.InsertApprovals(ctx, req.ProjectID, ids)
		if err != nil {
			logger.Error("failed to create approvals", "error", err)
		}
		out.Approvals = approvals
	}

	if out.Job, err = o.ledger.GetJob(ctx, req.JobID); err != nil {
		return nil, fmt.Errorf("failed to reload job: %w", err)
	}
	return out, nil
}

// RejectedError reports a dispatch that names a missing job or does not match
// the stored one. Nothing is written for it: no status change, no run log.
type RejectedError struct {
	JobID uuid.UUID
	Err   error
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("dispatch rejected for job %s: %v", e.JobID, e.Err)
}

func (e *RejectedError) Unwrap() error { return e.Err }

// checkJob requires the stored job to match the dispatch and still be running.
func checkJob(job *types.Job, req DispatchRequest) error {
	switch {
	case job.ProjectID != req.ProjectID:
		return fmt.Errorf("job %s belongs to project %s, not %s", job.ID, job.ProjectID, req.ProjectID)
	case job.Type != req.Stage:
		return fmt.Errorf("job %s is a %s job, not %s", job.ID, job.Type, req.Stage)
	case job.InputArtifactID != req.InputArtifactID:
		return fmt.Errorf("job %s was prepared with input %s, not %s", job.ID, job.InputArtifactID, req.InputArtifactID)
	case job.Status != types.JobStatusRunning:
		return fmt.Errorf("job %s is %s, not running", job.ID, job.Status)
	}
	return nil
}

// loadInput reads the project, the primary input and the auxiliary artifacts concurrently.
func (o *Orchestrator) loadInput(ctx context.Context, def StageDefinition, req DispatchRequest) (*agents.Input, error) {
	in := &agents.Input{Auxiliary: make(map[string][]types.Artifact), Channels: req.Channels}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := o.store.GetProject(gctx, req.ProjectID)
		if err != nil {
			return fmt.Errorf("failed to load project: %w", err)
		}
		in.Project = p
		return nil
	})
	g.Go(func() error {
		a, err := o.artifacts.Get(gctx, req.InputArtifactID)
		if err != nil {
			return fmt.Errorf("failed to load input artifact %s: %w", req.InputArtifactID, err)
		}
		if a.ProjectID != req.ProjectID {
			return fmt.Errorf("input artifact %s belongs to another project", a.ID)
		}
		if !slices.Contains(def.InputTypes, a.Type) {
			return fmt.Errorf("input artifact %s has type %s, %s needs %s", a.ID, a.Type, def.Name, strings.Join(def.InputTypes, " or "))
		}
		in.Primary = a
		return nil
	})
	for _, aux := range def.Auxiliary {
		g.Go(func() error {
			var found []types.Artifact
			if aux.All {
				list, err := o.artifacts.List(gctx, req.ProjectID, aux.Type)
				if err != nil {
					return fmt.Errorf("failed to load %s: %w", aux.Type, err)
				}
				found = list
			} else {
				a, err := o.artifacts.Latest(gctx, req.ProjectID, aux.Type)
				switch {
				case artifacts.IsNotFound(err):
				case err != nil:
					return fmt.Errorf("failed to load %s: %w", aux.Type, err)
				default:
					found = []types.Artifact{*a}
				}
			}
			if aux.Required && len(found) == 0 {
				return &PreconditionError{Stage: def.Name, Missing: []string{aux.Type}}
			}
			mu.Lock()
			in.Auxiliary[aux.Type] = found
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return in, nil
}

// writeOutputs writes every output in order, uploading file data first, and returns
// the written artifacts with the primary one's id.
func (o *Orchestrator) writeOutputs(ctx context.Context, outputs []agents.Output) ([]types.Artifact, uuid.UUID, error) {
	written := make([]types.Artifact, 0, len(outputs))
	var primary uuid.UUID
	for _, out := range outputs {
		var (
			a   *types.Artifact
			err error
		)
		if out.File != nil {
			a, err = o.artifacts.PutFile(ctx, out.Artifact.ProjectID, out.Artifact.Type, out.Artifact.Title, out.File.Name, out.File.Data)
		} else {
			a, err = o.artifacts.Put(ctx, &out.Artifact)
		}
		if err != nil {
			return nil, uuid.Nil, fmt.Errorf("failed to store %s: %w", out.Artifact.Type, err)
		}
		written = append(written, *a)
		if out.Primary && primary == uuid.Nil {
			primary = a.ID
		}
	}
	if primary == uuid.Nil {
		primary = written[0].ID
	}
	return written, primary, nil
}

// logRun records usage accounting. A failed write is logged, never returned.
func (o *Orchestrator) logRun(ctx context.Context, jobID uuid.UUID, state *runState, logger *slog.Logger) *types.RunLog {
	state.logged = true
	entry := &types.RunLog{
		JobID:      jobID,
		Model:      state.model,
		DurationMs: o.since(state.start),
	}
	if state.result != nil {
		in, out := state.result.Usage.TokensIn, state.result.Usage.TokensOut
		entry.TokensIn = &in
		entry.TokensOut = &out
		entry.CostEstimate = types.EstimateCost(entry.Model, entry.TokensIn, entry.TokensOut)
	}
	saved, err := o.store.InsertRunLog(ctx, entry)
	if err != nil {
		logger.Warn("failed to record run log", "error", err)
		return nil
	}
	return saved
}

// fail is the failure close-out. It runs on a context that survives cancellation of ctx.
func (o *Orchestrator) fail(ctx context.Context, req DispatchRequest, state *runState, cause error, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()

	if !state.logged {
		o.logRun(ctx, req.JobID, state, logger)
	}
	if err := o.ledger.Fail(ctx, req.JobID, cause.Error()); err != nil {
		var te *types.TransitionError
		switch {
		case errors.As(err, &te):
			logger.Warn("job not marked failed", "status", te.From, "error", err)
		default:
			logger.Error("failed to mark job failed", "error", err)
		}
	}
}

func (o *Orchestrator) since(start time.Time) int64 {
	return o.now().Sub(start).Milliseconds()
}
