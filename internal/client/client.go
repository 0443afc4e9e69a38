// Package client talks to the pipeline HTTP API. Project snapshots are cached
// per project and dropped whenever the client changes or observes a change
// to that project.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/flow-agents/internal/poller"
	"github.com/jonathan/flow-agents/internal/types"
)

// Defaults for Config.
const (
	DefaultTimeout   = 30 * time.Second
	DefaultCacheSize = 64
)

// Config holds client configuration.
type Config struct {
	// BaseURL is the API root, e.g. "http://localhost:8080".
	BaseURL string
	// Timeout bounds each request. Synchronous dispatches need more than the stage ceiling.
	Timeout   time.Duration
	CacheSize int
	// HTTPClient overrides the transport; Timeout is ignored when set.
	HTTPClient *http.Client
}

// APIError is a non-2xx answer from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api returned %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client is an API client with a read-through project snapshot cache.
type Client struct {
	baseURL string
	http    *http.Client
	cache   *lru.Cache[uuid.UUID, *types.ProjectSnapshot]

	// gens counts invalidations per project. A load only fills the cache if
	// no invalidation happened while it was in flight.
	mu   sync.Mutex
	gens map[uuid.UUID]uint64
}

var _ poller.JobFetcher = (*Client)(nil)

// New creates a Client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("API base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid API base URL: %w", err)
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	cache, err := lru.New[uuid.UUID, *types.ProjectSnapshot](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		http:    httpClient,
		cache:   cache,
		gens:    make(map[uuid.UUID]uint64),
	}, nil
}

// CreateProject creates a project.
func (c *Client) CreateProject(ctx context.Context, req *types.CreateProjectRequest) (*types.Project, error) {
	var out types.Project
	if err := c.do(ctx, http.MethodPost, "/projects", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListProjects lists every project.
func (c *Client) ListProjects(ctx context.Context) ([]types.Project, error) {
	var out struct {
		Projects []types.Project `json:"projects"`
	}
	if err := c.do(ctx, http.MethodGet, "/projects", nil, &out); err != nil {
		return nil, err
	}
	return out.Projects, nil
}

// GetProject reads one project.
func (c *Client) GetProject(ctx context.Context, id uuid.UUID) (*types.Project, error) {
	var out types.Project
	if err := c.do(ctx, http.MethodGet, "/projects/"+id.String(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadArtifact stores an onboarding report.
func (c *Client) UploadArtifact(ctx context.Context, projectID uuid.UUID, req *types.UploadArtifactRequest) (*types.Artifact, error) {
	var out types.Artifact
	if err := c.do(ctx, http.MethodPost, "/projects/"+projectID.String()+"/artifacts", req, &out); err != nil {
		return nil, err
	}
	c.Invalidate(projectID)
	return &out, nil
}

// ListArtifacts lists a project's artifacts newest first, optionally of some types only.
func (c *Client) ListArtifacts(ctx context.Context, projectID uuid.UUID, artifactTypes ...string) ([]types.Artifact, error) {
	path := "/projects/" + projectID.String() + "/artifacts"
	if len(artifactTypes) > 0 {
		path += "?type=" + url.QueryEscape(strings.Join(artifactTypes, ","))
	}
	var out struct {
		Artifacts []types.Artifact `json:"artifacts"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Artifacts, nil
}

// GetArtifact reads one artifact.
func (c *Client) GetArtifact(ctx context.Context, id uuid.UUID) (*types.Artifact, error) {
	var out types.Artifact
	if err := c.do(ctx, http.MethodGet, "/artifacts/"+id.String(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LatestArtifact returns the newest artifact of the first type in preference that has one.
func (c *Client) LatestArtifact(ctx context.Context, projectID uuid.UUID, preference ...string) (*types.Artifact, error) {
	var out types.Artifact
	path := "/projects/" + projectID.String() + "/artifacts/latest?type=" + url.QueryEscape(strings.Join(preference, ","))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateJob creates a job for stage from the project's latest input.
func (c *Client) CreateJob(ctx context.Context, projectID uuid.UUID, stage string) (*types.Job, error) {
	var out types.Job
	if err := c.do(ctx, http.MethodPost, "/projects/"+projectID.String()+"/jobs", &types.CreateJobRequest{Type: stage}, &out); err != nil {
		return nil, err
	}
	c.Invalidate(projectID)
	return &out, nil
}

// ListJobs lists a project's jobs newest first.
func (c *Client) ListJobs(ctx context.Context, projectID uuid.UUID) ([]types.Job, error) {
	var out struct {
		Jobs []types.Job `json:"jobs"`
	}
	if err := c.do(ctx, http.MethodGet, "/projects/"+projectID.String()+"/jobs", nil, &out); err != nil {
		return nil, err
	}
	return out.Jobs, nil
}

// GetJob reads a job. Seeing a terminal status drops the project's snapshot.
func (c *Client) GetJob(ctx context.Context, id uuid.UUID) (*types.Job, error) {
	var out types.Job
	if err := c.do(ctx, http.MethodGet, "/jobs/"+id.String(), nil, &out); err != nil {
		return nil, err
	}
	if out.Status.IsTerminal() {
		c.Invalidate(out.ProjectID)
	}
	return &out, nil
}

// ListRunLogs lists a job's usage records.
func (c *Client) ListRunLogs(ctx context.Context, jobID uuid.UUID) ([]types.RunLog, error) {
	var out struct {
		Runs []types.RunLog `json:"runs"`
	}
	if err := c.do(ctx, http.MethodGet, "/jobs/"+jobID.String()+"/runs", nil, &out); err != nil {
		return nil, err
	}
	return out.Runs, nil
}

// Dispatch sends a prepared job to its stage worker. A worker that accepted the
// request answers Success even though the run may later fail.
func (c *Client) Dispatch(ctx context.Context, stage string, body *types.DispatchBody, wait bool) (*types.DispatchResponse, error) {
	path := "/workers/" + url.PathEscape(stage)
	if wait {
		path += "?wait=true"
	}
	var out types.DispatchResponse
	err := c.do(ctx, http.MethodPost, path, body, &out)
	if projectID, perr := uuid.Parse(body.ProjectID); perr == nil {
		c.Invalidate(projectID)
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// RunStage prepares and dispatches a stage in one call.
func (c *Client) RunStage(ctx context.Context, projectID uuid.UUID, stage string, channels []string, wait bool) (*types.RunStageResponse, error) {
	path := "/projects/" + projectID.String() + "/stages/" + url.PathEscape(stage) + "/run"
	if wait {
		path += "?wait=true"
	}
	var out types.RunStageResponse
	err := c.do(ctx, http.MethodPost, path, &types.RunStageRequest{Channels: channels}, &out)
	c.Invalidate(projectID)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListApprovals lists a project's approvals; status "" means all.
func (c *Client) ListApprovals(ctx context.Context, projectID uuid.UUID, status string) ([]types.Approval, error) {
	path := "/projects/" + projectID.String() + "/approvals"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	var out struct {
		Approvals []types.Approval `json:"approvals"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Approvals, nil
}

// DecideApproval approves or rejects a pending approval.
func (c *Client) DecideApproval(ctx context.Context, id uuid.UUID, status string) (*types.Approval, error) {
	var out types.Approval
	if err := c.do(ctx, http.MethodPost, "/approvals/"+id.String(), &types.DecideApprovalRequest{Status: status}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Snapshot returns the project with its artifacts and jobs, from cache when
// possible. The returned value is shared and must not be modified.
func (c *Client) Snapshot(ctx context.Context, projectID uuid.UUID) (*types.ProjectSnapshot, error) {
	if snap, ok := c.cache.Get(projectID); ok {
		return snap, nil
	}

	gen := c.generation(projectID)
	snap := &types.ProjectSnapshot{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := c.GetProject(gctx, projectID)
		if err != nil {
			return err
		}
		snap.Project = *p
		return nil
	})
	g.Go(func() error {
		list, err := c.ListArtifacts(gctx, projectID)
		snap.Artifacts = list
		return err
	})
	g.Go(func() error {
		jobs, err := c.ListJobs(gctx, projectID)
		snap.Jobs = jobs
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.gens[projectID] == gen {
		c.cache.Add(projectID, snap)
	}
	c.mu.Unlock()
	return snap, nil
}

// Invalidate drops the cached snapshot of projectID and keeps any load already
// in flight from caching what it read.
func (c *Client) Invalidate(projectID uuid.UUID) {
	c.mu.Lock()
	c.gens[projectID]++
	c.cache.Remove(projectID)
	c.mu.Unlock()
}

func (c *Client) generation(projectID uuid.UUID) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[projectID]
}

// WaitForJob polls the job until it is terminal or the budget in cfg runs out.
// A job still running at the end is reported in the outcome, not as an error.
func (c *Client) WaitForJob(ctx context.Context, jobID uuid.UUID, cfg poller.Config) (*poller.Outcome, error) {
	return poller.New(c, cfg).Wait(ctx, jobID)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// errorMessage pulls the "error" field out of an error body, falling back to the raw text.
func errorMessage(data []byte) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		if body.Message != "" {
			return body.Error + ": " + body.Message
		}
		return body.Error
	}
	return strings.TrimSpace(string(data))
}
