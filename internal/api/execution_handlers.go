package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/outreach-orchestrator/internal/pkg/httputil"
	"github.com/ignite/outreach-orchestrator/internal/pkg/logger"
	"github.com/ignite/outreach-orchestrator/internal/worker"
)

// ExecuteCampaign handles POST /api/campaigns/{id}/execute. By default the
// run starts in the background and 202 is returned; with ?wait=true the
// request blocks and returns the ExecutionResult.
func (h *Handlers) ExecuteCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.campaigns.Get(r.Context(), id); err != nil {
		respondServiceError(w, err, "failed to load campaign")
		return
	}
	wait := r.URL.Query().Get("wait") == "true"
	switch err := h.begin(id, !wait); {
	case errors.Is(err, errShuttingDown):
		httputil.ErrorCode(w, http.StatusServiceUnavailable, "SHUTTING_DOWN", "server is shutting down")
		return
	case err != nil:
		httputil.ErrorCode(w, http.StatusConflict, string(worker.RunLocked), "campaign is already executing on this instance")
		return
	}

	if wait {
		defer h.end(id)
		res := h.executor.Execute(r.Context(), id)
		httputil.JSON(w, executionStatusCode(res), res)
		return
	}

	go func() {
		defer h.wg.Done()
		defer h.end(id)
		res := h.executor.Execute(h.baseCtx, id)
		logger.Info("background_execution_finished", "campaign_id", id,
			"status", string(res.Status), "processed", res.Processed)
	}()
	httputil.Accepted(w, map[string]string{"campaign_id": id, "status": "STARTED"})
}

func executionStatusCode(res worker.ExecutionResult) int {
	switch res.Status {
	case worker.RunLocked:
		return http.StatusConflict
	case worker.RunError:
		if res.Retryable {
			return http.StatusServiceUnavailable
		}
		return http.StatusInternalServerError
	}
	return http.StatusOK
}

var (
	errShuttingDown   = errors.New("shutting down")
	errAlreadyRunning = errors.New("already executing")
)

// begin registers an execution. Background runs are added to the wait group
// under the same lock Shutdown takes, so none can start after it.
func (h *Handlers) begin(id string, background bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return errShuttingDown
	}
	if h.inflight[id] {
		return errAlreadyRunning
	}
	h.inflight[id] = true
	if background {
		h.wg.Add(1)
	}
	return nil
}

func (h *Handlers) end(id string) {
	h.mu.Lock()
	delete(h.inflight, id)
	h.mu.Unlock()
}
