package downloader

import (
	"sync"

	"collectordl/pkg/models"
)

// completion counts targets reaching a terminal state. Each slot settles at
// most once; when every slot has settled, done is closed exactly once.
type completion struct {
	mu         sync.Mutex
	total      int
	settled    []bool
	count      int
	downloaded int
	skipped    int
	failed     []models.Target
	done       chan struct{}
	once       sync.Once
}

type settlement int

const (
	settleDownloaded settlement = iota
	settleSkipped
	settleFailed
)

func newCompletion(total int) *completion {
	c := &completion{
		total:   total,
		settled: make([]bool, total),
		done:    make(chan struct{}),
	}
	if total == 0 {
		c.once.Do(func() { close(c.done) })
	}
	return c
}

// settle records the terminal state of slot. It reports false if the slot
// had already settled.
func (c *completion) settle(slot int, how settlement, target models.Target) bool {
	c.mu.Lock()
	if slot < 0 || slot >= c.total || c.settled[slot] {
		c.mu.Unlock()
		return false
	}
	c.settled[slot] = true
	c.count++

	switch how {
	case settleDownloaded:
		c.downloaded++
	case settleSkipped:
		c.skipped++
	case settleFailed:
		c.failed = append(c.failed, target)
	}
	finished := c.count == c.total
	c.mu.Unlock()

	if finished {
		c.once.Do(func() { close(c.done) })
	}
	return true
}

// snapshot returns the counts so far
func (c *completion) snapshot(runID string) *models.RunResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	failed := make([]models.Target, len(c.failed))
	copy(failed, c.failed)
	return &models.RunResult{
		RunID:      runID,
		Total:      c.total,
		Downloaded: c.downloaded,
		Skipped:    c.skipped,
		Failed:     failed,
	}
}
