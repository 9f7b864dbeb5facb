// Package download implements the resumable, retrying HTTP downloader.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"zipfetch/internal/domain"
	"zipfetch/internal/fsutil"
	"zipfetch/internal/infra/logger"
)

const DefaultChunkSize = 1024

// ProgressFunc observes bytes accumulated on disk. total is zero when the
// server omitted Content-Length. The callback is a pure side effect and
// never influences control flow.
type ProgressFunc func(written, total int64)

// Downloader streams a URL to a local file in chunks, resuming from the
// current file size on every attempt. Retryable transport errors are
// absorbed up to the task's retry budget; everything else surfaces
// immediately.
type Downloader struct {
	log        logger.Log
	onProgress ProgressFunc
}

func NewDownloader(log logger.Log, onProgress ProgressFunc) *Downloader {
	return &Downloader{
		log:        logger.OrNop(log),
		onProgress: onProgress,
	}
}

// Download runs the retry loop for one task. The retry budget counts
// retries after the initial attempt: MaxRetries=3 means four attempts in
// total. Exhausting the budget returns ErrRetriesExhausted wrapping the
// last transport error.
//
// The destination is opened in append mode on every attempt and the resume
// offset is recomputed from the on-disk size, so bytes already written are
// never discarded, even after a mid-chunk failure.
func (d *Downloader) Download(ctx context.Context, task domain.DownloadTask) (*domain.TransferState, error) {
	if task.ChunkSize <= 0 {
		task.ChunkSize = DefaultChunkSize
	}
	if task.Timeout <= 0 {
		task.Timeout = 60 * time.Second
	}

	created, err := fsutil.EnsureDirectory(task.Destination, false)
	if err != nil {
		return nil, err
	}
	if created {
		d.log.Debug("Created directory for: %s", task.Destination)
	}

	state := &domain.TransferState{}
	if info, err := os.Stat(task.Destination); err == nil {
		state.ResumedFrom = info.Size()
		d.log.Info("Resuming download of %s from byte %d", task.URL, state.ResumedFrom)
	}

	// The client timeout covers a single request including its body read; a
	// stalled stream trips it and the next attempt resumes from the new
	// on-disk offset.
	client := &http.Client{Timeout: task.Timeout}

	retryCount := 0
	for {
		err := d.attempt(ctx, client, task, state)
		if err == nil {
			d.log.Info("Download complete: %s (%d bytes this session)", task.Destination, state.Transferred.Load())
			return state, nil
		}

		if errors.Is(err, domain.ErrRangeAlreadySatisfied) {
			d.log.Info("Server reports range already satisfied, file is complete: %s", task.Destination)
			return state, nil
		}

		if ctx.Err() != nil {
			return state, ctx.Err()
		}

		if !errors.Is(err, domain.ErrTransport) {
			// Filesystem and request-construction failures are fatal.
			return state, err
		}

		retryCount++
		d.log.Error("Error occurred: %v", err)
		d.log.Warn("retry_count: %d, max_retries: %d", retryCount, task.MaxRetries)

		if retryCount > task.MaxRetries {
			d.log.Warn("Max retries (%d) reached. Download terminated.", task.MaxRetries)
			return state, fmt.Errorf("%w (%d): %v", domain.ErrRetriesExhausted, task.MaxRetries, err)
		}

		d.log.Warn("Retrying download in %s...", task.RetryDelay)
		select {
		case <-ctx.Done():
			return state, ctx.Err()
		case <-time.After(task.RetryDelay):
		}
	}
}

// attempt performs one streaming GET, appending the body to the destination
// chunk by chunk.
func (d *Downloader) attempt(ctx context.Context, client *http.Client, task domain.DownloadTask, state *domain.TransferState) error {
	var offset int64
	if info, err := os.Stat(task.Destination); err == nil {
		offset = info.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, task.URL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusRequestedRangeNotSatisfiable {
		return domain.ErrRangeAlreadySatisfied
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: unexpected status %s", domain.ErrTransport, resp.Status)
	}

	// Content-Length of a range response is the remaining bytes. Zero or
	// unknown means progress degrades to count-only mode.
	if resp.ContentLength > 0 {
		state.TotalSize = offset + resp.ContentLength
	} else {
		state.TotalSize = 0
	}

	// Append mode: earlier bytes are never truncated, only extended.
	f, err := os.OpenFile(task.Destination, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open %s: %w", task.Destination, err)
	}
	defer f.Close()

	buf := make([]byte, task.ChunkSize)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return fmt.Errorf("write %s: %w", task.Destination, werr)
			}
			state.Transferred.Add(int64(n))
			if d.onProgress != nil {
				d.onProgress(state.Written(), state.TotalSize)
			}
		} else if rerr == nil {
			d.log.Warn("Empty chunk")
		}

		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return fmt.Errorf("%w: %v", domain.ErrTransport, rerr)
		}
	}
}
