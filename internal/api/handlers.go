// Package api exposes the orchestrator's HTTP control plane: campaign
// lifecycle actions, lead import, execution triggers, unsubscribe links,
// health and metrics.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/ignite/outreach-orchestrator/internal/pkg/apperrors"
	"github.com/ignite/outreach-orchestrator/internal/pkg/httputil"
	"github.com/ignite/outreach-orchestrator/internal/service/audit"
	"github.com/ignite/outreach-orchestrator/internal/service/campaign"
	"github.com/ignite/outreach-orchestrator/internal/service/lead"
	"github.com/ignite/outreach-orchestrator/internal/worker"
)

// Executor runs one campaign execution.
type Executor interface {
	Execute(ctx context.Context, campaignID string) worker.ExecutionResult
}

// Handlers contains all HTTP handlers.
type Handlers struct {
	campaigns *campaign.Service
	leads     *lead.Service
	recorder  *audit.Recorder
	executor  Executor

	mu       sync.Mutex
	closing  bool
	inflight map[string]bool
	wg       sync.WaitGroup
	baseCtx  context.Context
	cancel   context.CancelFunc
	started  time.Time
}

// NewHandlers creates the handler set.
func NewHandlers(campaigns *campaign.Service, leads *lead.Service, recorder *audit.Recorder, executor Executor) *Handlers {
	ctx, cancel := context.WithCancel(context.Background())
	return &Handlers{
		campaigns: campaigns,
		leads:     leads,
		recorder:  recorder,
		executor:  executor,
		inflight:  make(map[string]bool),
		baseCtx:   ctx,
		cancel:    cancel,
		started:   time.Now(),
	}
}

// Shutdown refuses new executions, cancels background ones and waits until
// they return or ctx expires. A cancelled execution still finishes its
// current lead.
func (h *Handlers) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	h.mu.Unlock()
	h.cancel()
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HealthCheck reports liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]interface{}{
		"status":             "ok",
		"uptime_seconds":     int64(time.Since(h.started).Seconds()),
		"running_executions": h.runningCount(),
	})
}

func (h *Handlers) runningCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.inflight)
}

// respondServiceError maps service errors to status codes. 5xx responses
// carry publicMsg only; the full error is logged.
func respondServiceError(w http.ResponseWriter, err error, publicMsg string) {
	switch {
	case errors.Is(err, campaign.ErrNotFound):
		httputil.Error(w, http.StatusNotFound, "campaign not found")
	case errors.Is(err, lead.ErrNotFound):
		httputil.Error(w, http.StatusNotFound, "lead not found")
	case errors.Is(err, campaign.ErrInvalidTransition):
		httputil.Error(w, http.StatusConflict, "campaign status does not allow this action")
	case errors.Is(err, lead.ErrInvalidToken):
		httputil.Error(w, http.StatusForbidden, "invalid unsubscribe token")
	case apperrors.Is(err, apperrors.KindValidation):
		httputil.Error(w, http.StatusBadRequest, err.Error())
	default:
		httputil.InternalError(w, err, publicMsg)
	}
}
