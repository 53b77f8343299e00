package ui

import (
	"fmt"
	"strings"
	"time"

	"collectordl/internal/downloader"
)

const (
	ProgressBar   = "█"
	ProgressEmpty = "░"
)

// Attempt is a download currently in flight
type Attempt struct {
	ID        int
	Name      string
	Attempt   int
	Alternate bool
	Started   time.Time
}

// Tracker folds run events into counters. It is not safe for concurrent
// use; observers receive events one at a time.
type Tracker struct {
	Total       int
	Downloaded  int
	Skipped     int
	Failed      int
	Retries     int
	RateLimits  int
	Bytes       int64
	Indexed     int
	IndexTotal  int
	Paused      bool
	PausedAt    time.Time
	StartTime   time.Time
	Finished    bool
	Cancelled   bool
	Active      map[int]*Attempt
	LastEvent   downloader.Event
	activeOrder []int
}

// NewTracker creates a tracker for a run of total targets
func NewTracker(total int) *Tracker {
	return &Tracker{
		Total:     total,
		StartTime: time.Now(),
		Active:    make(map[int]*Attempt),
	}
}

// Apply updates the counters from e
func (st *Tracker) Apply(e downloader.Event) {
	st.LastEvent = e

	switch e.Kind {
	case downloader.EventIndexing:
		st.Indexed = e.Processed
		st.IndexTotal = e.Total

	case downloader.EventDownloading:
		// Any start after a pause means the cooldown is over
		st.Paused = false
		if _, ok := st.Active[e.Target.ID]; !ok {
			st.activeOrder = append(st.activeOrder, e.Target.ID)
		}
		st.Active[e.Target.ID] = &Attempt{
			ID:        e.Target.ID,
			Name:      e.Target.String(),
			Attempt:   e.Attempt,
			Alternate: e.UseAlternate,
			Started:   e.Time,
		}

	case downloader.EventDownloaded:
		st.Downloaded++
		st.Bytes += e.Bytes
		st.finishAttempt(e.Target.ID)

	case downloader.EventSkipped:
		st.Skipped++

	case downloader.EventRetrying:
		st.Retries++
		st.finishAttempt(e.Target.ID)

	case downloader.EventRateLimited:
		st.RateLimits++
		if e.Paused {
			st.Paused = true
			st.PausedAt = e.Time
		}
		st.finishAttempt(e.Target.ID)

	case downloader.EventError:
		st.Failed++
		st.finishAttempt(e.Target.ID)

	case downloader.EventCancelled:
		st.Cancelled = true
		st.Paused = false
		st.Active = make(map[int]*Attempt)
		st.activeOrder = nil

	case downloader.EventEnd:
		st.Finished = true
		st.Paused = false
		if e.Result != nil {
			st.Total = e.Result.Total
			st.Downloaded = e.Result.Downloaded
			st.Skipped = e.Result.Skipped
			st.Failed = len(e.Result.Failed)
		}
		st.Active = make(map[int]*Attempt)
		st.activeOrder = nil
	}
}

func (st *Tracker) finishAttempt(id int) {
	delete(st.Active, id)
	for i, v := range st.activeOrder {
		if v == id {
			st.activeOrder = append(st.activeOrder[:i], st.activeOrder[i+1:]...)
			break
		}
	}
}

// ActiveAttempts returns in-flight attempts in start order
func (st *Tracker) ActiveAttempts() []*Attempt {
	out := make([]*Attempt, 0, len(st.activeOrder))
	for _, id := range st.activeOrder {
		if a, ok := st.Active[id]; ok {
			out = append(out, a)
		}
	}
	return out
}

// Settled returns the number of targets in a terminal state
func (st *Tracker) Settled() int {
	return st.Downloaded + st.Skipped + st.Failed
}

// Fraction returns settled/total in [0, 1]
func (st *Tracker) Fraction() float64 {
	if st.Total <= 0 {
		return 1
	}
	f := float64(st.Settled()) / float64(st.Total)
	if f > 1 {
		f = 1
	}
	return f
}

// Bar renders a fixed-width text progress bar
func (st *Tracker) Bar(width int) string {
	filled := int(st.Fraction() * float64(width))
	return strings.Repeat(ProgressBar, filled) + strings.Repeat(ProgressEmpty, width-filled)
}

// GetElapsedTime returns the elapsed time since tracking started
func (st *Tracker) GetElapsedTime() time.Duration {
	return time.Since(st.StartTime)
}

// GetDownloadRate returns the average download rate (items per minute)
func (st *Tracker) GetDownloadRate() float64 {
	elapsed := st.GetElapsedTime().Minutes()
	if elapsed == 0 {
		return 0
	}
	return float64(st.Downloaded) / elapsed
}

// ETA estimates the time until every target settles. It is zero until the
// first download completes.
func (st *Tracker) ETA() time.Duration {
	if st.Downloaded == 0 {
		return 0
	}
	remaining := st.Total - st.Settled()
	if remaining <= 0 {
		return 0
	}
	perItem := st.GetElapsedTime() / time.Duration(st.Downloaded)
	return perItem * time.Duration(remaining)
}

// FormatBytes formats bytes in a human-readable way
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// FormatDuration formats a duration in a human-readable way
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	} else {
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
