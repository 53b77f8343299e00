package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"collectordl/internal/downloader"
	"collectordl/pkg/models"
)

// ProgressDisplay prints a single refreshing progress line, or one line per
// event in verbose mode. It implements downloader.Observer.
type ProgressDisplay struct {
	mu         sync.Mutex
	out        io.Writer
	collection string
	tracker    *Tracker
	verbose    bool
	color      bool
}

// NewProgressDisplay creates a display for a run over collection
func NewProgressDisplay(out io.Writer, collection *models.Collection, verbose, color bool) *ProgressDisplay {
	return &ProgressDisplay{
		out:        out,
		collection: collection.Name,
		tracker:    NewTracker(len(collection.Targets)),
		verbose:    verbose,
		color:      color,
	}
}

// Tracker returns the underlying counters
func (p *ProgressDisplay) Tracker() *Tracker {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tracker
}

// OnEvent implements downloader.Observer
func (p *ProgressDisplay) OnEvent(e downloader.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.tracker.Apply(e)

	switch e.Kind {
	case downloader.EventEnd:
		p.printSummary(e.Result)
		return
	case downloader.EventCancelled:
		if r := e.Result; r != nil {
			fmt.Fprintf(p.out, "\n%s cancelled after %d of %d\n", p.paint(Yellow, "⚠"), r.Terminal(), r.Total)
		}
		return
	}
	if p.verbose {
		p.printEvent(e)
		return
	}
	if e.Kind == downloader.EventIndexing && e.Processed != e.Total {
		return
	}
	p.printProgress()
}

func (p *ProgressDisplay) paint(f func(string) string, s string) string {
	if !p.color {
		return s
	}
	return f(s)
}

// printProgress prints the minimal progress line
func (p *ProgressDisplay) printProgress() {
	st := p.tracker

	line := fmt.Sprintf("%s [%s] %d/%d • %.1f/min • %s",
		p.paint(Cyan, p.collection),
		st.Bar(20),
		st.Settled(),
		st.Total,
		st.GetDownloadRate(),
		FormatBytes(st.Bytes),
	)
	if eta := st.ETA(); eta > 0 {
		line += " • eta " + FormatDuration(eta)
	}
	if st.Failed > 0 {
		line += " • " + p.paint(Red, fmt.Sprintf("%d failed", st.Failed))
	}
	if st.Paused {
		line += " • " + p.paint(Yellow, "rate limited, paused")
	}

	// Clear line and print
	fmt.Fprintf(p.out, "\r%s\r%s", strings.Repeat(" ", 120), line)
}

// printEvent prints one line per event in verbose mode
func (p *ProgressDisplay) printEvent(e downloader.Event) {
	switch e.Kind {
	case downloader.EventIndexing:
		if e.Processed == e.Total {
			fmt.Fprintf(p.out, "%s indexed %d existing entries\n", p.paint(Magenta, "→"), e.Total)
		}
	case downloader.EventDownloading:
		mirror := "primary"
		if e.UseAlternate {
			mirror = "alternate"
		}
		fmt.Fprintf(p.out, "%s %s (attempt %d, %s)\n", p.paint(Dim, "↓"), e.Target, e.Attempt, mirror)
	case downloader.EventDownloaded:
		fmt.Fprintf(p.out, "%s %s • %s\n", p.paint(Green, "✓"), e.Filename, FormatBytes(e.Bytes))
	case downloader.EventSkipped:
		fmt.Fprintf(p.out, "%s %s already present\n", p.paint(Dim, "="), e.Target)
	case downloader.EventRetrying:
		fmt.Fprintf(p.out, "%s %s retrying: %v\n", p.paint(Yellow, "↻"), e.Target, e.Err)
	case downloader.EventRateLimited:
		if e.Paused {
			fmt.Fprintf(p.out, "%s rate limited on %s, pausing downloads\n", p.paint(Yellow, "⚠"), e.Target)
		}
	case downloader.EventError:
		fmt.Fprintf(p.out, "%s %s failed: %v\n", p.paint(Red, "✗"), e.Target, e.Err)
	}
}

// printSummary prints the end-of-run summary
func (p *ProgressDisplay) printSummary(result *models.RunResult) {
	if result == nil {
		return
	}
	if !p.verbose {
		fmt.Fprintln(p.out)
	}

	fmt.Fprintf(p.out, "\n%s %d downloaded, %d skipped, %d failed of %d in %s\n",
		p.paint(Green, "✓"),
		result.Downloaded,
		result.Skipped,
		len(result.Failed),
		result.Total,
		FormatDuration(result.Duration),
	)
	fmt.Fprintf(p.out, "  %s %s written\n", p.paint(Dim, "•"), FormatBytes(p.tracker.Bytes))

	for _, t := range result.Failed {
		fmt.Fprintf(p.out, "  %s %s\n", p.paint(Red, "✗"), t)
	}
}
