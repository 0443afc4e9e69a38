package server

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strconv"

	"github.com/google/uuid"

	"github.com/jonathan/flow-agents/internal/agents"
	"github.com/jonathan/flow-agents/internal/orchestrator"
	"github.com/jonathan/flow-agents/internal/types"
)

type runOutcome struct {
	res *orchestrator.RunResult
	err error
}

// handleDispatch is the worker endpoint. It answers 4xx when the request is
// malformed, or, with wait, when it does not match its job. Every later
// failure is recorded on the job.
func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	stage := r.PathValue("stage")
	if _, err := orchestrator.Lookup(stage); err != nil {
		s.writeError(w, r, err)
		return
	}
	var body types.DispatchBody
	if err := decodeJSON(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := body.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := checkChannels(body.Channels); err != nil {
		s.writeError(w, r, err)
		return
	}
	wait, err := waitParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	req := orchestrator.DispatchRequest{
		Stage:           stage,
		ProjectID:       uuid.MustParse(body.ProjectID),
		InputArtifactID: uuid.MustParse(body.InputArtifactID),
		JobID:           uuid.MustParse(body.JobID),
		Channels:        body.Channels,
	}
	status, resp := s.dispatch(r, req, wait)
	s.jsonResponse(w, status, resp)
}

// handleRunStage prepares a job and dispatches it in one call.
func (s *Server) handleRunStage(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	stage := r.PathValue("stage")
	if _, err := orchestrator.Lookup(stage); err != nil {
		s.writeError(w, r, err)
		return
	}
	var body types.RunStageRequest
	if err := decodeOptionalJSON(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := body.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := checkChannels(body.Channels); err != nil {
		s.writeError(w, r, err)
		return
	}
	wait, err := waitParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	job, err := s.orch.Prepare(r.Context(), projectID, stage)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status, resp := s.dispatch(r, orchestrator.DispatchRequest{
		Stage:           stage,
		ProjectID:       projectID,
		InputArtifactID: job.InputArtifactID,
		JobID:           job.ID,
		Channels:        body.Channels,
	}, wait)
	s.jsonResponse(w, status, types.RunStageResponse{DispatchResponse: resp, Job: job})
}

// dispatch starts the run detached from the request. Without wait it
// acknowledges immediately; with wait it reports the run's outcome.
func (s *Server) dispatch(r *http.Request, req orchestrator.DispatchRequest, wait bool) (int, types.DispatchResponse) {
	done := s.startRun(context.WithoutCancel(r.Context()), req)
	if !wait {
		return http.StatusAccepted, types.DispatchResponse{Success: true, JobID: req.JobID, Status: types.JobStatusRunning}
	}

	select {
	case out := <-done:
		var rejected *orchestrator.RejectedError
		if errors.As(out.err, &rejected) {
			return HTTPStatus(out.err), types.DispatchResponse{JobID: req.JobID, Error: out.err.Error()}
		}
		if out.err != nil {
			return http.StatusInternalServerError, types.DispatchResponse{JobID: req.JobID, Status: types.JobStatusFailed, Error: out.err.Error()}
		}
		return http.StatusOK, types.DispatchResponse{
			Success:   true,
			JobID:     req.JobID,
			Status:    out.res.Job.Status,
			Artifacts: out.res.Artifacts,
		}
	case <-r.Context().Done():
		// The run carries on; its outcome lands on the job.
		return http.StatusAccepted, types.DispatchResponse{Success: true, JobID: req.JobID, Status: types.JobStatusRunning}
	}
}

// startRun runs the stage in its own goroutine, tracked for graceful shutdown.
func (s *Server) startRun(ctx context.Context, req orchestrator.DispatchRequest) <-chan runOutcome {
	done := make(chan runOutcome, 1)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		res, err := s.orch.Run(ctx, req)
		done <- runOutcome{res: res, err: err}
	}()
	return done
}

func checkChannels(channels []string) error {
	for _, c := range channels {
		if !slices.Contains(agents.KnownChannels, c) {
			return &ValidationError{Field: "channels", Message: "unknown channel " + strconv.Quote(c)}
		}
	}
	return nil
}

func waitParam(r *http.Request) (bool, error) {
	raw := r.URL.Query().Get("wait")
	if raw == "" {
		return false, nil
	}
	wait, err := strconv.ParseBool(raw)
	if err != nil {
		return false, &ValidationError{Field: "wait", Message: "must be a boolean"}
	}
	return wait, nil
}
