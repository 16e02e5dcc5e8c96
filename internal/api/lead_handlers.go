package api

import (
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/outreach-orchestrator/internal/domain"
	"github.com/ignite/outreach-orchestrator/internal/pkg/httputil"
	"github.com/ignite/outreach-orchestrator/internal/service/lead"
)

// MaxImportRows bounds a single import request.
const MaxImportRows = 10000

type importRequest struct {
	Leads []lead.ImportInput `json:"leads"`
}

// ImportLeads handles POST /api/campaigns/{id}/leads. Leads are appended to
// the queue in request order.
func (h *Handlers) ImportLeads(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req importRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if len(req.Leads) == 0 {
		httputil.Error(w, http.StatusBadRequest, "leads must not be empty")
		return
	}
	if len(req.Leads) > MaxImportRows {
		httputil.Error(w, http.StatusRequestEntityTooLarge, "too many leads in one request")
		return
	}

	c, err := h.campaigns.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, err, "failed to load campaign")
		return
	}
	if c.Status == domain.CampaignAborting || c.IsTerminal() {
		httputil.Error(w, http.StatusConflict, "campaign no longer accepts leads")
		return
	}

	res, err := h.leads.Import(r.Context(), id, req.Leads)
	if err != nil {
		respondServiceError(w, err, "failed to import leads")
		return
	}
	httputil.OK(w, res)
}

var unsubscribedPage = template.Must(template.New("unsubscribed").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Unsubscribed</title></head>
<body><p>{{.}}</p></body></html>
`))

// Unsubscribe handles GET and POST /unsubscribe/{leadID}?token=. POST is
// the one-click form mail clients send for List-Unsubscribe-Post.
func (h *Handlers) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	leadID := chi.URLParam(r, "leadID")
	token := r.URL.Query().Get("token")
	if token == "" {
		httputil.Error(w, http.StatusBadRequest, "token is required")
		return
	}
	if err := h.leads.Unsubscribe(r.Context(), leadID, token); err != nil {
		respondServiceError(w, err, "failed to unsubscribe")
		return
	}

	if r.Method == http.MethodPost {
		httputil.OK(w, map[string]string{"status": string(domain.LeadUnsubscribed)})
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	unsubscribedPage.Execute(w, "You have been unsubscribed and will not receive further emails.")
}
