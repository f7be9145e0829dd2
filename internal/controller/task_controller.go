package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/handler"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/model"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/pkg/logger"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/service"
)

type TaskController struct {
	TaskService *service.TaskService
	Runner      service.TaskRunner
}

// CreateTask is the staff "call now" entry point. Due tasks are enqueued
// immediately; future ones wait for the sweeper.
func (c *TaskController) CreateTask(w http.ResponseWriter, r *http.Request) {
	var in service.CreateTaskInput
	if err := handler.DecodeJSON(r, &in); err != nil {
		handler.WriteError(w, r, err)
		return
	}

	task, err := c.TaskService.CreateTask(r.Context(), handler.OrganizationID(r), in)
	if err != nil {
		handler.WriteError(w, r, err)
		return
	}
	handler.WriteJSON(w, http.StatusCreated, task)
}

func (c *TaskController) GetTask(w http.ResponseWriter, r *http.Request) {
	task, err := c.TaskService.Get(r.Context(), handler.OrganizationID(r), chi.URLParam(r, "id"))
	if err != nil {
		handler.WriteError(w, r, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, task)
}

// RunTask evaluates a task synchronously. The body may carry lead_id; the
// tenant always comes from the header.
func (c *TaskController) RunTask(w http.ResponseWriter, r *http.Request) {
	var inv model.TaskInvocation
	if err := handler.DecodeJSON(r, &inv); err != nil {
		handler.WriteError(w, r, err)
		return
	}
	inv.TaskID = chi.URLParam(r, "id")
	inv.OrganizationID = handler.OrganizationID(r)

	res, err := c.Runner.Run(r.Context(), inv)
	if err != nil {
		logger.Alert("direct task invocation failed", "task_id", inv.TaskID, "error", err)
		handler.WriteError(w, r, err)
		return
	}
	if !res.Success {
		logger.Alert("task did not succeed", "task_id", inv.TaskID, "channel", res.Channel, "error", res.Error)
	}
	handler.WriteJSON(w, http.StatusOK, res)
}
