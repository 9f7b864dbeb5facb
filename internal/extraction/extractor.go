// Package extraction implements recursive, depth-bounded ZIP extraction.
// Nested containers discovered at the same level are extracted by a bounded
// pool of concurrent workers, each owning a disjoint target subtree.
package extraction

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"zipfetch/internal/domain"
	"zipfetch/internal/fsutil"
	"zipfetch/internal/infra/logger"
)

// ProgressFunc observes entries processed out of the running total. It is a
// pure side effect and never affects extraction order or outcome.
type ProgressFunc func(processed, total int64)

type Extractor struct {
	log        logger.Log
	workers    int
	onProgress ProgressFunc

	processed atomic.Int64
	total     atomic.Int64
}

func NewExtractor(workers int, log logger.Log, onProgress ProgressFunc) *Extractor {
	if workers <= 0 {
		workers = 4
	}
	return &Extractor{
		log:        logger.OrNop(log),
		workers:    workers,
		onProgress: onProgress,
	}
}

// ExtractArchive extracts the container at containerPath into extractTo,
// recursing into nested containers up to maxDepth levels below the outermost
// extraction. The top-level container is left intact; every nested container
// is deleted once it has been fully extracted.
func (e *Extractor) ExtractArchive(ctx context.Context, containerPath, extractTo string, maxDepth int) error {
	e.processed.Store(0)
	e.total.Store(0)

	// Depth -1 is the "before the first extraction" sentinel; Extract
	// increments it, so the outermost container extracts at depth 0.
	return e.Extract(ctx, domain.ExtractionJob{
		ContainerPath: containerPath,
		ExtractTo:     extractTo,
		Depth:         -1,
		MaxDepth:      maxDepth,
	})
}

// Extract runs one extraction level. The job's depth is incremented by
// exactly one on entry.
func (e *Extractor) Extract(ctx context.Context, job domain.ExtractionJob) error {
	job.Depth++

	abs, err := filepath.Abs(job.ContainerPath)
	if err != nil {
		return err
	}

	e.log.Info("Unzipping '%s' (depth %d of %d)", abs, job.Depth, job.MaxDepth)

	if _, err := os.Stat(abs); os.IsNotExist(err) {
		return fmt.Errorf("container not found: '%s': %w", abs, os.ErrNotExist)
	}

	if _, err := fsutil.EnsureDirectory(job.ExtractTo, true); err != nil {
		return err
	}

	r, err := zip.OpenReader(abs)
	if err != nil {
		if errors.Is(err, zip.ErrFormat) {
			return fmt.Errorf("%w: '%s': %v", domain.ErrBadArchive, abs, err)
		}
		return fmt.Errorf("open container '%s': %w", abs, err)
	}
	defer r.Close()

	e.total.Add(int64(len(r.File)))
	e.log.Debug("Extraction of %d entries has started", len(r.File))

	var nested []string
	for _, f := range r.File {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		target, err := e.extractEntry(f, job.ExtractTo)
		if err != nil {
			return err
		}

		done := e.processed.Add(1)
		if e.onProgress != nil {
			e.onProgress(done, e.total.Load())
		}

		if target == "" || f.FileInfo().IsDir() {
			continue
		}

		if ok, err := IsContainer(target); err == nil && ok {
			nested = append(nested, target)
		}
	}

	if len(nested) > 0 {
		if err := e.extractNested(ctx, nested, job); err != nil {
			return err
		}
	}

	e.log.Info("Unzipped '%s' to '%s'", abs, job.ExtractTo)
	return nil
}

// extractNested fans the discovered nested containers out to a bounded
// worker pool and joins results before returning. Every successfully
// extracted nested container is removed from disk.
func (e *Extractor) extractNested(ctx context.Context, nested []string, parent domain.ExtractionJob) error {
	childDepth := parent.Depth + 1
	if childDepth > parent.MaxDepth {
		return fmt.Errorf("%w: nesting depth %d exceeds maximum %d", domain.ErrRecursionLimit, childDepth, parent.MaxDepth)
	}

	sem := make(chan struct{}, e.workers)
	var wg sync.WaitGroup

	var mu sync.Mutex
	var errs []error

	for _, containerPath := range nested {
		wg.Add(1)
		go func(path string) {
			defer wg.Done()

			select {
			case <-ctx.Done():
				mu.Lock()
				errs = append(errs, ctx.Err())
				mu.Unlock()
				return
			case sem <- struct{}{}:
			}
			defer func() { <-sem }()

			// Sibling directory named after the entry minus the extension;
			// each worker owns a disjoint subtree.
			target := strings.TrimSuffix(path, ContainerExt)

			err := e.Extract(ctx, domain.ExtractionJob{
				ContainerPath: path,
				ExtractTo:     target,
				Depth:         parent.Depth,
				MaxDepth:      parent.MaxDepth,
			})
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("nested container '%s': %w", path, err))
				mu.Unlock()
				return
			}

			// Nested containers are consumed by extraction; only the
			// top-level container is left for the caller to manage.
			if err := os.Remove(path); err != nil {
				e.log.Warn("Failed to remove consumed container '%s': %v", path, err)
			}
		}(containerPath)
	}

	wg.Wait()

	return errors.Join(errs...)
}

// extractEntry writes a single container entry under destDir, preserving
// its relative path. Entries that would escape destDir are rejected.
func (e *Extractor) extractEntry(f *zip.File, destDir string) (string, error) {
	name := filepath.FromSlash(f.Name)
	if !filepath.IsLocal(name) {
		return "", fmt.Errorf("%w: unsafe entry path %q", domain.ErrBadArchive, f.Name)
	}

	target := filepath.Join(destDir, name)

	if f.FileInfo().IsDir() {
		if err := os.MkdirAll(target, 0755); err != nil {
			return "", fmt.Errorf("create entry directory: %w", err)
		}
		return target, nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return "", fmt.Errorf("create entry directory: %w", err)
	}

	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("%w: entry %q: %v", domain.ErrBadArchive, f.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return "", fmt.Errorf("create '%s': %w", target, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, rc); err != nil {
		return "", fmt.Errorf("%w: entry %q: %v", domain.ErrBadArchive, f.Name, err)
	}

	return target, nil
}
