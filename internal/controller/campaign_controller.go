package controller

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/handler"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/model"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/service"
)

type CampaignController struct {
	CampaignService *service.CampaignService
}

type lifecycleFunc func(ctx context.Context, orgID, id string) (*model.Campaign, error)

func (c *CampaignController) lifecycle(fn lifecycleFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		campaign, err := fn(r.Context(), handler.OrganizationID(r), chi.URLParam(r, "id"))
		if err != nil {
			handler.WriteError(w, r, err)
			return
		}
		handler.WriteJSON(w, http.StatusOK, campaign)
	}
}

func (c *CampaignController) Activate(w http.ResponseWriter, r *http.Request) {
	c.lifecycle(c.CampaignService.Activate)(w, r)
}

func (c *CampaignController) Pause(w http.ResponseWriter, r *http.Request) {
	c.lifecycle(c.CampaignService.Pause)(w, r)
}

func (c *CampaignController) Resume(w http.ResponseWriter, r *http.Request) {
	c.lifecycle(c.CampaignService.Resume)(w, r)
}

func (c *CampaignController) Cancel(w http.ResponseWriter, r *http.Request) {
	c.lifecycle(c.CampaignService.Cancel)(w, r)
}

func (c *CampaignController) Complete(w http.ResponseWriter, r *http.Request) {
	c.lifecycle(c.CampaignService.Complete)(w, r)
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	status := r.URL.Query().Get("status")

	campaigns, pagination, err := c.CampaignService.ListCampaigns(r.Context(), handler.OrganizationID(r), page, pageSize, status)
	if err != nil {
		handler.WriteError(w, r, err)
		return
	}

	handler.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"data":       campaigns,
		"pagination": pagination,
	})
}

func (c *CampaignController) GetCampaignDetails(w http.ResponseWriter, r *http.Request) {
	details, err := c.CampaignService.GetCampaignDetailsWithStats(r.Context(), handler.OrganizationID(r), chi.URLParam(r, "id"))
	if err != nil {
		handler.WriteError(w, r, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, details)
}

func (c *CampaignController) ListRecipients(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

	recipients, err := c.CampaignService.ListRecipients(r.Context(), handler.OrganizationID(r), chi.URLParam(r, "id"), page, pageSize)
	if err != nil {
		handler.WriteError(w, r, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, map[string]interface{}{"data": recipients})
}

func (c *CampaignController) PersonalizedPreview(w http.ResponseWriter, r *http.Request) {
	var body struct {
		LeadID           string        `json:"lead_id"`
		Channel          model.Channel `json:"channel"`
		OverrideTemplate *string       `json:"override_template"`
	}
	if err := handler.DecodeJSON(r, &body); err != nil {
		handler.WriteError(w, r, err)
		return
	}

	preview, err := c.CampaignService.RenderPreview(r.Context(), handler.OrganizationID(r), chi.URLParam(r, "id"),
		body.LeadID, body.Channel, body.OverrideTemplate)
	if err != nil {
		handler.WriteError(w, r, err)
		return
	}

	handler.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"rendered_message": preview.Body,
		"subject":          preview.Subject,
		"channel":          preview.Channel,
		"used_template":    body.OverrideTemplate,
		"lead_id":          body.LeadID,
	})
}
