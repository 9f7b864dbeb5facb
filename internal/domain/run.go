package domain

import (
	"context"
	"sync/atomic"
	"time"
)

// Stage is the pipeline state machine position for a run.
type Stage string

const (
	StageIdle        Stage = "idle"
	StageDownloading Stage = "downloading"
	StageVerifying   Stage = "verifying"
	StageExtracting  Stage = "extracting"
	StageDone        Stage = "done"
	StageFailed      Stage = "failed"
)

// Terminal reports whether the stage is a final state.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed
}

// Run represents one fetch-verify-extract pipeline invocation, persisted to
// the run store and exposed over the status API.
type Run struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	Destination string `json:"destination"`
	PointerURL  string `json:"pointer_url"`
	Stage       Stage  `json:"stage"`

	BytesWritten atomic.Int64 `json:"-"`
	TotalBytes   int64        `json:"total_bytes"`

	Extract bool `json:"extract"`

	StartedAt time.Time `json:"started_at"`
	Error     string    `json:"error,omitempty"`

	CancelFunc context.CancelFunc `json:"-"`
}
