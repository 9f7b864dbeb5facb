package domain

import (
	"sync/atomic"
	"time"
)

// DownloadTask describes a single artifact fetch. The destination file is
// append-only across retries: bytes already on disk are never discarded,
// only extended from the resume offset.
type DownloadTask struct {
	URL         string
	Destination string
	ChunkSize   int
	MaxRetries  int
	RetryDelay  time.Duration
	Timeout     time.Duration
}

// TransferState tracks the byte counters for one download. ResumedFrom is
// the on-disk size when the task started; Transferred counts bytes written
// this session. TotalSize is zero when the server omits Content-Length, in
// which case progress degrades to a count-only mode.
type TransferState struct {
	ResumedFrom int64
	Transferred atomic.Int64
	TotalSize   int64
}

// Written returns the total bytes on disk accounted for so far.
func (t *TransferState) Written() int64 {
	return t.ResumedFrom + t.Transferred.Load()
}

// ExtractionJob describes one container extraction. Depth starts at -1 at
// the public entry point and is incremented by exactly one at the start of
// every extraction call, so the outermost container extracts at depth 0.
type ExtractionJob struct {
	ContainerPath string
	ExtractTo     string
	Depth         int
	MaxDepth      int
}
