package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// ProgressDisplay shows a single updating line while the articles of one
// account are saved
type ProgressDisplay struct {
	mu        sync.Mutex
	account   string
	total     int
	done      int
	errors    int
	current   string
	startTime time.Time
	isDebug   bool
}

// NewProgressDisplay creates a new progress display
func NewProgressDisplay(account string, total int, debug bool) *ProgressDisplay {
	return &ProgressDisplay{
		account:   account,
		total:     total,
		startTime: time.Now(),
		isDebug:   debug,
	}
}

// Advance marks one article as handled. A non-nil err counts as a failure.
func (p *ProgressDisplay) Advance(title string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done++
	p.current = title
	if err != nil {
		p.errors++
	}

	if p.isDebug {
		if err != nil {
			printf("%s %s - %v\n", Red("✗"), Truncate(title, 50), err)
		} else {
			printf("%s %s\n", Green("✓"), Truncate(title, 50))
		}
		return
	}
	p.printProgress()
}

// printProgress prints the minimal progress line
func (p *ProgressDisplay) printProgress() {
	line := fmt.Sprintf("%s [%s] %d/%d • %s",
		Cyan(Truncate(p.account, 20)),
		Bar(p.done, p.total, 20),
		p.done,
		p.total,
		p.calculateETA(),
	)
	if p.current != "" {
		line += " • " + Truncate(p.current, 40)
	}
	if p.errors > 0 {
		line += " • " + Red(fmt.Sprintf("%d errors", p.errors))
	}

	printf("\r%s\r%s", strings.Repeat(" ", 120), line)
}

// Complete prints the final summary
func (p *ProgressDisplay) Complete() {
	p.mu.Lock()
	defer p.mu.Unlock()

	elapsed := time.Since(p.startTime)
	printf("\n%s Saved %d articles from %s in %s\n",
		Green("✓"),
		p.done-p.errors,
		p.account,
		formatDuration(elapsed),
	)
	if p.errors > 0 {
		printf("  %s %d articles failed\n", Dim("•"), p.errors)
	}
}

// calculateETA estimates time remaining
func (p *ProgressDisplay) calculateETA() string {
	if p.done == 0 {
		return "calculating..."
	}
	elapsed := time.Since(p.startTime)
	perItem := elapsed / time.Duration(p.done)
	return formatDuration(perItem * time.Duration(p.total-p.done))
}
