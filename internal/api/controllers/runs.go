package controllers

import (
	"net/http"
	"net/url"

	"github.com/labstack/echo/v5"

	"zipfetch/internal/app"
	"zipfetch/internal/queue"
)

type RunsController struct {
	App   *app.Context
	Queue *queue.Manager
}

// Create enqueues a new fetch for the given URL.
func (ctrl *RunsController) Create(c *echo.Context) error {
	var req CreateRunRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	if req.URL == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "url is required"})
	}

	if u, err := url.Parse(req.URL); err != nil || u.Scheme == "" || u.Host == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "url must be absolute"})
	}

	extract := ctrl.App.Config.Extract.Enabled
	if req.Extract != nil {
		extract = *req.Extract
	}

	run, err := ctrl.Queue.Add(req.URL, extract)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}

	return c.JSON(http.StatusAccepted, toRunResponse(run))
}

// List returns every run the store knows about. The live queue holds the
// authoritative copy of in-flight runs, so those shadow their stored rows.
func (ctrl *RunsController) List(c *echo.Context) error {
	stored, err := ctrl.App.Store.GetRuns()
	if err != nil {
		ctrl.App.Logger.Error("Failed to list runs: %v", err)
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to list runs"})
	}

	live := make(map[string]bool)
	resp := RunListResponse{Runs: make([]RunResponse, 0, len(stored))}
	for _, run := range ctrl.Queue.GetAllRuns() {
		live[run.ID] = true
		resp.Runs = append(resp.Runs, toRunResponse(run))
	}
	for _, run := range stored {
		if !live[run.ID] {
			resp.Runs = append(resp.Runs, toRunResponse(run))
		}
	}

	return c.JSON(http.StatusOK, resp)
}

// Active returns the currently executing run, if any.
func (ctrl *RunsController) Active(c *echo.Context) error {
	run := ctrl.Queue.GetActiveRun()
	if run == nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, toRunResponse(run))
}

// Get returns a single run by ID.
func (ctrl *RunsController) Get(c *echo.Context) error {
	id := c.Param("id")

	run, ok := ctrl.Queue.GetRun(id)
	if !ok {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "run not found"})
	}

	return c.JSON(http.StatusOK, toRunResponse(run))
}

// Cancel stops a queued or running run.
func (ctrl *RunsController) Cancel(c *echo.Context) error {
	id := c.Param("id")

	if !ctrl.Queue.Cancel(id) {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "no cancellable run with that id"})
	}

	return c.NoContent(http.StatusNoContent)
}
