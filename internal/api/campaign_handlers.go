package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/outreach-orchestrator/internal/domain"
	"github.com/ignite/outreach-orchestrator/internal/pkg/httputil"
	"github.com/ignite/outreach-orchestrator/internal/service/campaign"
)

const (
	defaultListLimit = 50
	defaultLogLimit  = 100
	maxLimit         = 1000
)

// CreateCampaign handles POST /api/campaigns.
func (h *Handlers) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var input campaign.CreateInput
	if !httputil.Decode(w, r, &input) {
		return
	}
	c, err := h.campaigns.Create(r.Context(), input)
	if err != nil {
		respondServiceError(w, err, "failed to create campaign")
		return
	}
	httputil.Created(w, c)
}

// ListCampaigns handles GET /api/campaigns?status=&limit=.
func (h *Handlers) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	f := campaign.ListFilter{
		Status: domain.CampaignStatus(strings.ToUpper(r.URL.Query().Get("status"))),
		Limit:  parseLimit(r, defaultListLimit),
	}
	list, err := h.campaigns.List(r.Context(), f)
	if err != nil {
		respondServiceError(w, err, "failed to list campaigns")
		return
	}
	if list == nil {
		list = []domain.Campaign{}
	}
	httputil.OK(w, map[string]interface{}{"campaigns": list, "count": len(list)})
}

// GetCampaign handles GET /api/campaigns/{id}. The response bundles lead
// counts per status and the campaign's metric counters.
func (h *Handlers) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, err := h.campaigns.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, err, "failed to load campaign")
		return
	}
	stats, err := h.leads.Stats(r.Context(), id)
	if err != nil {
		respondServiceError(w, err, "failed to load lead stats")
		return
	}
	metrics, err := h.recorder.Snapshot(r.Context(), domain.CampaignScope(id))
	if err != nil {
		respondServiceError(w, err, "failed to load metrics")
		return
	}
	httputil.OK(w, map[string]interface{}{
		"campaign":   c,
		"lead_stats": stats,
		"metrics":    metrics,
	})
}

// QueueCampaign handles POST /api/campaigns/{id}/queue.
func (h *Handlers) QueueCampaign(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.campaigns.Queue, "failed to queue campaign")
}

// PauseCampaign handles POST /api/campaigns/{id}/pause.
func (h *Handlers) PauseCampaign(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.campaigns.Pause, "failed to pause campaign")
}

// ResumeCampaign handles POST /api/campaigns/{id}/resume.
func (h *Handlers) ResumeCampaign(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.campaigns.Resume, "failed to resume campaign")
}

// AbortCampaign handles POST /api/campaigns/{id}/abort. A running campaign
// goes to ABORTING and the worker finalizes it.
func (h *Handlers) AbortCampaign(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.campaigns.Abort, "failed to abort campaign")
}

func (h *Handlers) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id string) error, publicMsg string) {
	id := chi.URLParam(r, "id")
	if err := fn(r.Context(), id); err != nil {
		respondServiceError(w, err, publicMsg)
		return
	}
	c, err := h.campaigns.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, err, publicMsg)
		return
	}
	httputil.OK(w, c)
}

// CampaignLogs handles GET /api/campaigns/{id}/logs?limit=.
func (h *Handlers) CampaignLogs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.campaigns.Get(r.Context(), id); err != nil {
		respondServiceError(w, err, "failed to load campaign")
		return
	}
	entries, err := h.recorder.History(r.Context(), id, parseLimit(r, defaultLogLimit))
	if err != nil {
		respondServiceError(w, err, "failed to load logs")
		return
	}
	if entries == nil {
		entries = []domain.LogEntry{}
	}
	httputil.OK(w, map[string]interface{}{"logs": entries, "count": len(entries)})
}

func parseLimit(r *http.Request, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return def
	}
	if n > maxLimit {
		return maxLimit
	}
	return n
}
