// Package queue runs fetch pipelines one at a time in serve mode.
package queue

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/ksuid"

	"zipfetch/internal/app"
	"zipfetch/internal/domain"
)

type Manager struct {
	mu     sync.RWMutex
	runner app.Runner
	store  app.Store
	outDir string

	queue     []*domain.Run
	activeRun *domain.Run

	newJobChan chan struct{}
}

// NewManager initializes a Manager. When loadExisting is true, runs that
// never reached a terminal stage are re-queued from the database; their
// partial downloads resume from the bytes already on disk.
func NewManager(appCtx *app.Context, loadExisting bool) *Manager {
	var active []*domain.Run

	if loadExisting && appCtx.Store != nil {
		var err error
		active, err = appCtx.Store.GetActiveRuns()
		if err != nil {
			active = make([]*domain.Run, 0)
		}
		for _, r := range active {
			// Re-queued runs restart the state machine; the downloader
			// picks up from the on-disk offset.
			r.Stage = domain.StageIdle
		}
	}

	return &Manager{
		runner:     appCtx.Runner,
		store:      appCtx.Store,
		outDir:     appCtx.Config.Download.OutDir,
		queue:      active,
		newJobChan: make(chan struct{}, 1),
	}
}

// Add creates a new run for the URL and notifies the Start loop.
func (m *Manager) Add(rawURL string, extract bool) (*domain.Run, error) {
	name, err := deriveFileName(rawURL)
	if err != nil {
		return nil, err
	}

	run := &domain.Run{
		ID:          ksuid.New().String(),
		URL:         rawURL,
		Destination: filepath.Join(m.outDir, name),
		Stage:       domain.StageIdle,
		Extract:     extract,
		StartedAt:   time.Now(),
	}

	if m.store != nil {
		if err := m.store.SaveRun(run); err != nil {
			return nil, fmt.Errorf("failed to save run to database: %w", err)
		}
	}

	m.mu.Lock()
	m.queue = append(m.queue, run)
	m.mu.Unlock()

	// Signal the Start() loop that there is work to do
	select {
	case m.newJobChan <- struct{}{}:
	default:
		// Signal already pending, no need to block
	}

	return run, nil
}

// Start processes queued runs sequentially until ctx is cancelled.
func (m *Manager) Start(ctx context.Context) {
	for {
		var next *domain.Run

		m.mu.RLock()
		for _, run := range m.queue {
			if run.Stage == domain.StageIdle {
				next = run
				break
			}
		}
		m.mu.RUnlock()

		if next == nil {
			select {
			case <-m.newJobChan:
				continue
			case <-ctx.Done():
				return
			}
		}

		m.mu.Lock()
		m.activeRun = next
		runCtx, cancel := context.WithCancel(ctx)
		next.CancelFunc = cancel
		m.mu.Unlock()

		err := m.runner.Run(runCtx, next)

		m.finalizeRun(next, err)
		cancel()

		if ctx.Err() != nil {
			return
		}
	}
}

// GetActiveRun allows the API to see what's currently running.
func (m *Manager) GetActiveRun() *domain.Run {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeRun
}

// GetRun searches the live queue for a specific ID, falling back to the
// database for finished runs.
func (m *Manager) GetRun(id string) (*domain.Run, bool) {
	m.mu.RLock()
	for _, run := range m.queue {
		if run.ID == id {
			m.mu.RUnlock()
			return run, true
		}
	}
	m.mu.RUnlock()

	if m.store != nil {
		run, err := m.store.GetRun(id)
		if err == nil && run != nil {
			return run, true
		}
	}

	return nil, false
}

// GetAllRuns returns a copy of the current queue slice.
func (m *Manager) GetAllRuns() []*domain.Run {
	m.mu.RLock()
	defer m.mu.RUnlock()

	runs := make([]*domain.Run, len(m.queue))
	copy(runs, m.queue)
	return runs
}

// Cancel stops a queued or running run. Finished runs are left alone.
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, run := range m.queue {
		if run.ID == id {
			if run.Stage.Terminal() {
				return false
			}

			if run.CancelFunc != nil {
				run.CancelFunc()
			}

			return true
		}
	}
	return false
}

func (m *Manager) finalizeRun(run *domain.Run, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil && errors.Is(err, context.Canceled) {
		run.Stage = domain.StageFailed
		run.Error = "Cancelled by user"
		if m.store != nil {
			_ = m.store.SaveRun(run)
		}
	}
	// Other outcomes are already persisted by the pipeline's own
	// transitions.

	m.activeRun = nil
	m.removeFromLiveQueue(run.ID)
}

// removeFromLiveQueue keeps the active slice small by removing finished runs
func (m *Manager) removeFromLiveQueue(id string) {
	for i, run := range m.queue {
		if run.ID == id {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			break
		}
	}
}

// deriveFileName picks the destination file name from the last URL path
// segment.
func deriveFileName(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", rawURL, err)
	}

	name := filepath.Base(u.Path)
	if name == "." || name == "/" || strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("cannot derive a file name from %q", rawURL)
	}

	return name, nil
}
