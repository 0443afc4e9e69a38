package server

import (
	"net/http"
	"strings"

	"github.com/jonathan/flow-agents/internal/types"
)

// handleUploadArtifact stores an onboarding report, the only artifact a caller writes.
func (s *Server) handleUploadArtifact(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req types.UploadArtifactRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}
	switch {
	case types.IsJSONType(req.Type) && len(req.ContentJSON) == 0:
		s.writeError(w, r, &ValidationError{Field: "content_json", Message: "is required for " + req.Type})
		return
	case !types.IsJSONType(req.Type) && strings.TrimSpace(req.Content) == "":
		s.writeError(w, r, &ValidationError{Field: "content", Message: "is required for " + req.Type})
		return
	}
	if _, err := s.store.GetProject(r.Context(), projectID); err != nil {
		s.writeError(w, r, err)
		return
	}

	artifact, err := s.orch.Artifacts().Put(r.Context(), req.NewArtifact(projectID))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, artifact)
}

// handleListArtifacts lists a project's artifacts newest first, optionally
// restricted by ?type=a,b.
func (s *Server) handleListArtifacts(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := s.store.GetProject(r.Context(), projectID); err != nil {
		s.writeError(w, r, err)
		return
	}

	list, err := s.orch.Artifacts().List(r.Context(), projectID, queryList(r, "type")...)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []types.Artifact{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"artifacts": list,
		"count":     len(list),
	})
}

// handleLatestArtifact answers ?type=a,b with the newest artifact of the first
// type in the list that has one.
func (s *Server) handleLatestArtifact(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	preference := queryList(r, "type")
	if len(preference) == 0 {
		s.writeError(w, r, &ValidationError{Field: "type", Message: "is required"})
		return
	}

	artifact, err := s.orch.Artifacts().Latest(r.Context(), projectID, preference...)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, artifact)
}

func (s *Server) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	artifact, err := s.orch.Artifacts().Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, artifact)
}
