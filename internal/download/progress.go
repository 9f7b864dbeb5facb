package download

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// Tracker renders single-line CLI progress from counters fed by the
// downloader's Observe callback. It never influences the transfer itself.
type Tracker struct {
	written atomic.Int64
	total   atomic.Int64

	startedAt time.Time
}

func NewTracker() *Tracker {
	return &Tracker{startedAt: time.Now()}
}

// Observe is a ProgressFunc.
func (t *Tracker) Observe(written, total int64) {
	t.written.Store(written)
	t.total.Store(total)
}

// Start renders until ctx is cancelled.
func (t *Tracker) Start(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	var lastBytes int64

	for {
		select {
		case <-ticker.C:
			current := t.written.Load()
			delta := current - lastBytes
			lastBytes = current

			speedMbps := float64(delta) * 8 / (1024 * 1024)
			t.render(speedMbps, false)
		case <-ctx.Done():
			return
		}
	}
}

// Finish renders the final summary line.
func (t *Tracker) Finish() {
	t.render(0, true)
	fmt.Println()
}

func (t *Tracker) render(speedMbps float64, final bool) {
	current := t.written.Load()
	total := t.total.Load()

	elapsed := time.Since(t.startedAt)

	// Unknown total: count-only mode.
	if total <= 0 {
		fmt.Printf("\r%d KB downloaded | %s elapsed      ", current/1024, elapsed.Truncate(time.Second))
		return
	}

	percent := float64(current) / float64(total) * 100

	displaySpeed := speedMbps
	etaStr := "calc..."

	if final {
		percent = 100.0

		seconds := elapsed.Seconds()
		if seconds < 0.1 {
			seconds = 0.1
		}
		avgBytesPerSec := float64(current) / seconds
		displaySpeed = (avgBytesPerSec * 8) / (1024 * 1024)
		if current == 0 {
			displaySpeed = 0
		}
		etaStr = elapsed.Truncate(time.Second).String()
	} else {
		avgBytesPerSec := float64(current) / elapsed.Seconds()
		if avgBytesPerSec > 0 {
			remainingBytes := total - current
			etaSeconds := int(float64(remainingBytes) / avgBytesPerSec)
			etaStr = (time.Duration(etaSeconds) * time.Second).String()
		}
	}

	const barWidth = 20
	completedWidth := int(percent / 100 * barWidth)
	bar := strings.Repeat("=", completedWidth)
	if completedWidth < barWidth {
		bar += ">" + strings.Repeat(" ", barWidth-completedWidth-1)
	}

	speedLabel := "Speed"
	timeLabel := "ETA"
	if final {
		speedLabel = "Avg"
		timeLabel = "Time"
	}

	fmt.Printf("\r[%s] %5.1f%% | %s: %6.2f Mbps | %s: %-7s | %d/%d KB      ",
		bar, percent, speedLabel, displaySpeed, timeLabel, etaStr, current/1024, total/1024)
}
