package controllers

import (
	"time"

	"zipfetch/internal/domain"
)

type CreateRunRequest struct {
	URL     string `json:"url"`
	Extract *bool  `json:"extract,omitempty"`
}

type RunResponse struct {
	ID           string `json:"id"`
	URL          string `json:"url"`
	Destination  string `json:"destination"`
	Stage        string `json:"stage"`
	BytesWritten int64  `json:"bytes_written"`
	TotalBytes   int64  `json:"total_bytes"`
	Extract      bool   `json:"extract"`
	StartedAt    string `json:"started_at"`
	Error        string `json:"error,omitempty"`
}

type RunListResponse struct {
	Runs []RunResponse `json:"runs"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func toRunResponse(run *domain.Run) RunResponse {
	return RunResponse{
		ID:           run.ID,
		URL:          run.URL,
		Destination:  run.Destination,
		Stage:        string(run.Stage),
		BytesWritten: run.BytesWritten.Load(),
		TotalBytes:   run.TotalBytes,
		Extract:      run.Extract,
		StartedAt:    run.StartedAt.Format(time.RFC3339),
		Error:        run.Error,
	}
}
