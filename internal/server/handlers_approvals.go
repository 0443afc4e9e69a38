package server

import (
	"net/http"

	"github.com/jonathan/flow-agents/internal/types"
)

func (s *Server) handleListApprovals(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status := r.URL.Query().Get("status")
	switch status {
	case "", types.ApprovalPending, types.ApprovalApproved, types.ApprovalRejected:
	default:
		s.writeError(w, r, &ValidationError{Field: "status", Message: "must be pending, approved or rejected"})
		return
	}
	if _, err := s.store.GetProject(r.Context(), projectID); err != nil {
		s.writeError(w, r, err)
		return
	}

	approvals, err := s.store.ListApprovals(r.Context(), projectID, status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if approvals == nil {
		approvals = []types.Approval{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"approvals": approvals,
		"count":     len(approvals),
	})
}

// handleDecideApproval approves or rejects a pending approval. Deciding twice is a 409.
func (s *Server) handleDecideApproval(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req types.DecideApprovalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}

	approval, err := s.store.DecideApproval(r.Context(), id, req.Status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, approval)
}
