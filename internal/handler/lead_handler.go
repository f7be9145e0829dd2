package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/model"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/service"
)

// LeadHandler serves staff actions on a single lead: manual control and the
// consent ledger.
type LeadHandler struct {
	HumanControl *service.HumanControlService
	Consents     *service.ConsentService
}

func NewLeadHandler(hc *service.HumanControlService, consents *service.ConsentService) *LeadHandler {
	return &LeadHandler{HumanControl: hc, Consents: consents}
}

// Routes mounts the lead endpoints under /leads/{id}.
func (h *LeadHandler) Routes(r chi.Router) {
	r.Post("/leads/{id}/human-control", h.TakeControlHandler)
	r.Delete("/leads/{id}/human-control", h.ReleaseControlHandler)
	r.Get("/leads/{id}/consents", h.ListConsentsHandler)
	r.Post("/leads/{id}/consents", h.RecordConsentHandler)
	r.Delete("/leads/{id}/consents/{type}", h.WithdrawConsentHandler)
}

func (h *LeadHandler) TakeControlHandler(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		StaffID string `json:"staff_id"`
		Reason  string `json:"reason"`
	}
	if err := DecodeJSON(r, &payload); err != nil {
		WriteError(w, r, err)
		return
	}

	lead, err := h.HumanControl.TakeControl(r.Context(), OrganizationID(r), chi.URLParam(r, "id"), payload.StaffID, payload.Reason)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, lead)
}

func (h *LeadHandler) ReleaseControlHandler(w http.ResponseWriter, r *http.Request) {
	lead, err := h.HumanControl.Release(r.Context(), OrganizationID(r), chi.URLParam(r, "id"), r.URL.Query().Get("staff_id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, lead)
}

func (h *LeadHandler) ListConsentsHandler(w http.ResponseWriter, r *http.Request) {
	records, err := h.Consents.List(r.Context(), OrganizationID(r), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"data": records})
}

func (h *LeadHandler) RecordConsentHandler(w http.ResponseWriter, r *http.Request) {
	var in service.ConsentInput
	if err := DecodeJSON(r, &in); err != nil {
		WriteError(w, r, err)
		return
	}

	rec, err := h.Consents.Record(r.Context(), OrganizationID(r), chi.URLParam(r, "id"), in)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, rec)
}

func (h *LeadHandler) WithdrawConsentHandler(w http.ResponseWriter, r *http.Request) {
	t := model.ConsentType(chi.URLParam(r, "type"))
	n, err := h.Consents.Withdraw(r.Context(), OrganizationID(r), chi.URLParam(r, "id"), t)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"consent_type": t, "withdrawn": n})
}
