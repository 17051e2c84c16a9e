package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	ProgressBar   = "█"
	ProgressEmpty = "░"
)

// Bar renders a fixed-width progress bar for done out of total
func Bar(done, total, width int) string {
	filled := 0
	if total > 0 {
		filled = done * width / total
	}
	if filled > width {
		filled = width
	}
	return strings.Repeat(ProgressBar, filled) + strings.Repeat(ProgressEmpty, width-filled)
}

// StatusTracker follows a batch run account by account
type StatusTracker struct {
	mu        sync.Mutex
	total     int
	done      int
	failed    int
	articles  int
	saved     int
	StartTime time.Time
}

// NewStatusTracker creates a tracker for total accounts
func NewStatusTracker(total int) *StatusTracker {
	return &StatusTracker{total: total, StartTime: time.Now()}
}

// AccountStarted prints the account being scraped
func (st *StatusTracker) AccountStarted(name string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	printf("\n%s [%s] %d/%d %s\n",
		Magenta("[SCRAPING]"),
		Bar(st.done, st.total, 20),
		st.done+1,
		st.total,
		Cyan(Truncate(name, 40)),
	)
}

// AccountFinished records the outcome of one account
func (st *StatusTracker) AccountFinished(name string, articles, saved int, err error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.done++
	if err != nil {
		st.failed++
		printf("%s %s: %v\n", Red("✗"), Truncate(name, 40), err)
		return
	}
	st.articles += articles
	st.saved += saved
	printf("%s %s: %d articles, %d saved\n", Green("✓"), Truncate(name, 40), articles, saved)
}

// AccountSkipped records an account finished in an earlier run
func (st *StatusTracker) AccountSkipped(name string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.done++
	printf("%s %s %s\n", Dim("↷"), Truncate(name, 40), Dim("(done in previous run)"))
}

// Summary returns a one-line summary of the batch
func (st *StatusTracker) Summary() string {
	st.mu.Lock()
	defer st.mu.Unlock()
	return fmt.Sprintf("%d/%d accounts, %d failed, %d articles, %d saved in %s",
		st.done, st.total, st.failed, st.articles, st.saved, formatDuration(time.Since(st.StartTime)))
}

// GetElapsedTime returns the elapsed time since tracking started
func (st *StatusTracker) GetElapsedTime() time.Duration {
	return time.Since(st.StartTime)
}
