// Package pipeline sequences the download, verify, and extract stages.
// Control flow is linear with a hard gate after verification: extraction
// never runs on unverified content.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"zipfetch/internal/checksum"
	"zipfetch/internal/domain"
	"zipfetch/internal/download"
	"zipfetch/internal/extraction"
	"zipfetch/internal/infra/config"
	"zipfetch/internal/infra/logger"
)

// Store persists run state transitions. A nil store disables persistence.
type Store interface {
	SaveRun(run *domain.Run) error
}

var stageTransitions = map[domain.Stage][]domain.Stage{
	domain.StageIdle:        {domain.StageDownloading},
	domain.StageDownloading: {domain.StageVerifying, domain.StageFailed},
	domain.StageVerifying:   {domain.StageExtracting, domain.StageDone, domain.StageFailed},
	domain.StageExtracting:  {domain.StageDone, domain.StageFailed},
}

type Pipeline struct {
	cfg   *config.Config
	log   logger.Log
	store Store

	downloader *download.Downloader
	verifier   *checksum.Verifier
	extractor  *extraction.Extractor
}

// New wires the three stages together. The onProgress observers feed the
// run's byte counter and any external tracker; both may be nil.
func New(cfg *config.Config, log logger.Log, store Store, onDownload download.ProgressFunc, onExtract extraction.ProgressFunc) *Pipeline {
	log = logger.OrNop(log)
	return &Pipeline{
		cfg:        cfg,
		log:        log,
		store:      store,
		downloader: download.NewDownloader(log, onDownload),
		verifier:   checksum.NewVerifier(cfg.Verify.PointerTimeout, log),
		extractor:  extraction.NewExtractor(cfg.Extract.Workers, log, onExtract),
	}
}

// Run drives one artifact through the state machine. The run must start in
// StageIdle. A checksum mismatch is fatal and never triggers a re-download.
func (p *Pipeline) Run(ctx context.Context, run *domain.Run) error {
	if run.Stage != domain.StageIdle {
		return fmt.Errorf("run %s is in stage %s, want %s", run.ID, run.Stage, domain.StageIdle)
	}

	if err := p.transition(run, domain.StageDownloading); err != nil {
		return err
	}

	state, err := p.downloader.Download(ctx, domain.DownloadTask{
		URL:         run.URL,
		Destination: run.Destination,
		ChunkSize:   p.cfg.Download.ChunkSize,
		MaxRetries:  p.cfg.Download.MaxRetries,
		RetryDelay:  p.cfg.Download.RetryDelay,
		Timeout:     p.cfg.Download.Timeout,
	})
	if state != nil {
		run.BytesWritten.Store(state.Written())
		run.TotalBytes = state.TotalSize
	}
	if err != nil {
		return p.fail(run, fmt.Errorf("download stage: %w", err))
	}

	if err := p.transition(run, domain.StageVerifying); err != nil {
		return err
	}

	if p.cfg.Verify.Enabled {
		pointerURL := run.PointerURL
		if pointerURL == "" {
			pointerURL, err = checksum.DerivePointerURL(run.URL)
			if err != nil {
				return p.fail(run, fmt.Errorf("verify stage: derive pointer url: %w", err))
			}
			run.PointerURL = pointerURL
		}

		match, err := p.verifier.Verify(ctx, run.Destination, pointerURL)
		if err != nil {
			return p.fail(run, fmt.Errorf("verify stage: %w", err))
		}
		if !match {
			return p.fail(run, fmt.Errorf("verify stage: %s: %w", run.Destination, domain.ErrIntegrityMismatch))
		}
		p.log.Info("Checksum verified for: %s", run.Destination)
	} else {
		p.log.Warn("Checksum verification disabled for: %s", run.Destination)
	}

	if run.Extract {
		isContainer, err := extraction.IsContainer(run.Destination)
		if err != nil {
			return p.fail(run, fmt.Errorf("extract stage: %w", err))
		}

		if isContainer {
			if err := p.transition(run, domain.StageExtracting); err != nil {
				return err
			}

			extractTo := filepath.Dir(run.Destination)
			if err := p.extractor.ExtractArchive(ctx, run.Destination, extractTo, p.cfg.Extract.MaxDepth); err != nil {
				return p.fail(run, fmt.Errorf("extract stage: %w", err))
			}
		} else {
			p.log.Info("Not a container, skipping extraction: %s", run.Destination)
		}
	}

	return p.transition(run, domain.StageDone)
}

func (p *Pipeline) transition(run *domain.Run, to domain.Stage) error {
	if !allowed(run.Stage, to) {
		return fmt.Errorf("invalid stage transition for run %s: %s -> %s", run.ID, run.Stage, to)
	}

	p.log.Debug("Run %s: %s -> %s", run.ID, run.Stage, to)
	run.Stage = to

	if p.store != nil {
		if err := p.store.SaveRun(run); err != nil {
			// Persistence is observability; it never halts the pipeline.
			p.log.Error("Failed to persist run %s: %v", run.ID, err)
		}
	}

	return nil
}

// fail records the failure with its stage context and moves the run to the
// terminal Failed state.
func (p *Pipeline) fail(run *domain.Run, cause error) error {
	run.Error = cause.Error()
	p.log.Error("Run %s failed in stage %s: %v", run.ID, run.Stage, cause)

	run.Stage = domain.StageFailed
	if p.store != nil {
		if err := p.store.SaveRun(run); err != nil {
			p.log.Error("Failed to persist run %s: %v", run.ID, err)
		}
	}

	return cause
}

func allowed(from, to domain.Stage) bool {
	for _, next := range stageTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// FailureClass maps a pipeline error to the exit-status classes automation
// reacts to.
func FailureClass(err error) string {
	switch {
	case errors.Is(err, domain.ErrRetriesExhausted):
		return "download exhausted retries"
	case errors.Is(err, domain.ErrIntegrityMismatch), errors.Is(err, domain.ErrPointerFetch):
		return "integrity check failed"
	case errors.Is(err, domain.ErrBadArchive), errors.Is(err, domain.ErrRecursionLimit):
		return "extraction failed"
	default:
		return "failed"
	}
}
