// Package poller waits for a job to reach a terminal status. It only reads; a
// job that outlives the budget is reported as still running, never changed.
package poller

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/flow-agents/internal/types"
)

// Defaults sized for a 300s stage ceiling plus dispatch latency.
const (
	DefaultInterval = 5 * time.Second
	DefaultBudget   = 6 * time.Minute
)

// JobFetcher reads a job's current state.
type JobFetcher interface {
	GetJob(ctx context.Context, id uuid.UUID) (*types.Job, error)
}

// Config sets the polling cadence.
type Config struct {
	Interval time.Duration
	Budget   time.Duration
	// OnChange is called whenever the observed status differs from the previous poll.
	OnChange func(job *types.Job)
}

// Outcome is the result of Wait. Exactly one of Terminal and StillRunning is true.
type Outcome struct {
	// Job is the last successfully read state; nil if every read failed.
	Job          *types.Job
	Terminal     bool
	StillRunning bool
	Polls        int
	Elapsed      time.Duration
	// LastErr is the most recent read error, kept for display.
	LastErr error
}

// Poller polls one JobFetcher.
type Poller struct {
	fetcher JobFetcher
	cfg     Config
	now     func() time.Time
}

// New returns a Poller. Zero Config fields take the defaults.
func New(fetcher JobFetcher, cfg Config) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Budget <= 0 {
		cfg.Budget = DefaultBudget
	}
	return &Poller{fetcher: fetcher, cfg: cfg, now: time.Now}
}

// Wait reads the job immediately and then every interval until it is terminal or
// the budget runs out. Read errors are remembered and retried on the next tick.
// Only cancellation of ctx is returned as an error.
func (p *Poller) Wait(ctx context.Context, jobID uuid.UUID) (*Outcome, error) {
	start := p.now()
	budget := time.NewTimer(p.cfg.Budget)
	defer budget.Stop()
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	out := &Outcome{}
	var lastStatus types.JobStatus
	for {
		out.Polls++
		job, err := p.fetcher.GetJob(ctx, jobID)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			out.LastErr = fmt.Errorf("poll %d: %w", out.Polls, err)
		default:
			out.Job = job
			if job.Status != lastStatus {
				lastStatus = job.Status
				if p.cfg.OnChange != nil {
					p.cfg.OnChange(job)
				}
			}
			if job.Status.IsTerminal() {
				out.Terminal = true
				out.Elapsed = p.now().Sub(start)
				return out, nil
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-budget.C:
			out.StillRunning = true
			out.Elapsed = p.now().Sub(start)
			return out, nil
		case <-ticker.C:
		}
	}
}
