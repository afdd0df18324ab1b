package httpapi

import (
	"net/http"

	"azubi-engine/internal/campaign"
	"azubi-engine/internal/domain"
	"azubi-engine/internal/events"
)

type CampaignHandler struct {
	Campaigns Campaigns
	Store     Store
	Hub       *events.Hub
}

func (h CampaignHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req campaign.CreateRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	c, err := h.Campaigns.Create(r.Context(), req)
	if err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_campaign", err.Error())
		return
	}
	WriteJSON(w, http.StatusCreated, c)
}

func (h CampaignHandler) List(w http.ResponseWriter, r *http.Request) {
	cs, err := h.Store.ListCampaigns(r.Context())
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	if cs == nil {
		cs = []domain.Campaign{}
	}
	writeJSON(w, cs)
}

func (h CampaignHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.Campaigns.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		writeCampaignError(w, r, err)
		return
	}
	writeJSON(w, s)
}

// Action handles POST /campaigns/{id}/{start|pause|resume} and answers with
// the campaign's summary afterwards.
func (h CampaignHandler) Action(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var err error
	switch r.PathValue("action") {
	case "start":
		err = h.Campaigns.Start(r.Context(), id)
	case "pause":
		err = h.Campaigns.Pause(r.Context(), id)
	case "resume":
		err = h.Campaigns.Resume(r.Context(), id)
	default:
		WriteError(w, r, http.StatusNotFound, "not_found", "unknown campaign action")
		return
	}
	if err != nil {
		writeCampaignError(w, r, err)
		return
	}

	s, err := h.Campaigns.Status(r.Context(), id)
	if err != nil {
		writeCampaignError(w, r, err)
		return
	}
	h.Hub.Publish(events.MakeEvent(RequestIDFrom(r.Context()), events.TypeCampaignProgress, events.SourceAPI, events.CampaignProgressOf(s)))
	writeJSON(w, s)
}

func writeCampaignError(w http.ResponseWriter, r *http.Request, err error) {
	writeEngineError(w, r, err, "campaign_error")
}
