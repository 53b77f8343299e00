package models

import (
	"fmt"
	"time"

	"collectordl/pkg/filename"
)

// Target is a single catalog entry to download
type Target struct {
	ID          int    `json:"id"`
	DisplayName string `json:"display_name"`
}

func (t Target) String() string {
	if t.DisplayName == "" {
		return fmt.Sprintf("%d", t.ID)
	}
	return fmt.Sprintf("%d %s", t.ID, t.DisplayName)
}

// Collection is an ordered set of targets with a display name
type Collection struct {
	ID       int      `json:"id"`
	Name     string   `json:"name"`
	Uploader string   `json:"uploader,omitempty"`
	Targets  []Target `json:"targets"`
}

// SanitizedName returns a directory name for the collection
func (c *Collection) SanitizedName() string {
	name := filename.Sanitize(c.Name)
	if name == "" || name == "." || name == ".." {
		return fmt.Sprintf("collection-%d", c.ID)
	}
	return name
}

// RunResult summarises a completed download run
type RunResult struct {
	RunID      string        `json:"run_id"`
	Total      int           `json:"total"`
	Downloaded int           `json:"downloaded"`
	Skipped    int           `json:"skipped"`
	Failed     []Target      `json:"failed"`
	Duration   time.Duration `json:"duration"`
}

// Terminal returns the number of targets that reached a terminal state
func (r *RunResult) Terminal() int {
	return r.Downloaded + r.Skipped + len(r.Failed)
}

// FailedIDs returns the ids of permanently failed targets in completion order
func (r *RunResult) FailedIDs() []int {
	ids := make([]int, 0, len(r.Failed))
	for _, t := range r.Failed {
		ids = append(ids, t.ID)
	}
	return ids
}
