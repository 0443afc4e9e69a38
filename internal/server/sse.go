package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/jonathan/flow-agents/internal/poller"
	"github.com/jonathan/flow-agents/internal/types"
)

// Job event names.
const (
	eventStatus   = "status"
	eventComplete = "complete"
	eventTimeout  = "timeout"
)

// jobStream writes one job's server-sent events. Event ids count up from 1 so a
// client can tell how many status changes it missed.
type jobStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
	jobID   uuid.UUID
	seq     int
}

func newJobStream(w http.ResponseWriter, jobID uuid.UUID) (*jobStream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("streaming not supported")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &jobStream{w: w, flusher: flusher, jobID: jobID}, nil
}

func (s *jobStream) send(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event, err)
	}
	s.seq++
	if _, err := fmt.Fprintf(s.w, "id: %d\nevent: %s\ndata: %s\n\n", s.seq, event, payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// status reports an observed change.
func (s *jobStream) status(job *types.Job) error {
	return s.send(eventStatus, job)
}

// finish closes the stream with the poll outcome: the terminal job, or a
// still-running notice carrying the last read error, if any.
func (s *jobStream) finish(out *poller.Outcome) error {
	if out.Terminal {
		return s.send(eventComplete, out.Job)
	}
	notice := map[string]any{
		"job_id":     s.jobID,
		"status":     types.JobStatusRunning,
		"elapsed_ms": out.Elapsed.Milliseconds(),
	}
	if out.LastErr != nil {
		notice["last_error"] = out.LastErr.Error()
	}
	return s.send(eventTimeout, notice)
}
