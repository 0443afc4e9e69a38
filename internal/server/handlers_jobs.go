package server

import (
	"net/http"

	"github.com/jonathan/flow-agents/internal/poller"
	"github.com/jonathan/flow-agents/internal/types"
)

// handleCreateJob checks the stage's preconditions and creates its job from
// the project's latest input. Nothing is created when an input is missing.
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req types.CreateJobRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}

	job, err := s.orch.Prepare(r.Context(), projectID, req.Type)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := s.store.GetProject(r.Context(), projectID); err != nil {
		s.writeError(w, r, err)
		return
	}

	jobs, err := s.orch.Ledger().ListJobs(r.Context(), projectID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []types.Job{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// handleGetJob is the polling read.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	job, err := s.orch.Ledger().GetJob(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, job)
}

func (s *Server) handleListRunLogs(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := s.orch.Ledger().GetJob(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}

	runs, err := s.store.ListRunLogs(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if runs == nil {
		runs = []types.RunLog{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"runs":  runs,
		"count": len(runs),
	})
}

// handleJobEvents streams a job's status changes as server-sent events. The
// stream ends with "complete" on a terminal status or "timeout" when the poll
// budget runs out; the job itself is never touched.
func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := s.orch.Ledger().GetJob(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}

	stream, err := newJobStream(w, id)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	cfg := s.events
	cfg.OnChange = func(job *types.Job) {
		if err := stream.status(job); err != nil {
			s.logger.Debug("event stream write failed", "job_id", id, "error", err)
		}
	}
	outcome, err := poller.New(s.orch.Ledger(), cfg).Wait(r.Context(), id)
	if err != nil {
		// Client went away.
		return
	}
	if err := stream.finish(outcome); err != nil {
		s.logger.Debug("event stream write failed", "job_id", id, "error", err)
	}
}
