package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/handler"
)

// NewRouter wires every API route. All routes except /healthz require the
// organization header.
func NewRouter(campaigns *CampaignController, tasks *TaskController, leads *handler.LeadHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		handler.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(handler.RequireOrganization)

		r.Post("/tasks", tasks.CreateTask)
		r.Get("/tasks/{id}", tasks.GetTask)
		r.Post("/tasks/{id}/run", tasks.RunTask)

		r.Get("/campaigns", campaigns.ListCampaigns)
		r.Get("/campaigns/{id}", campaigns.GetCampaignDetails)
		r.Get("/campaigns/{id}/recipients", campaigns.ListRecipients)
		r.Post("/campaigns/{id}/activate", campaigns.Activate)
		r.Post("/campaigns/{id}/pause", campaigns.Pause)
		r.Post("/campaigns/{id}/resume", campaigns.Resume)
		r.Post("/campaigns/{id}/cancel", campaigns.Cancel)
		r.Post("/campaigns/{id}/complete", campaigns.Complete)
		r.Post("/campaigns/{id}/personalized-preview", campaigns.PersonalizedPreview)

		leads.Routes(r)
	})
	return r
}
