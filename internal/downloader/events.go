package downloader

import (
	"time"

	"collectordl/pkg/models"
)

// EventKind identifies a progress event
type EventKind string

const (
	EventIndexing    EventKind = "indexing"
	EventDownloading EventKind = "downloading"
	EventDownloaded  EventKind = "downloaded"
	EventRetrying    EventKind = "retrying"
	EventError       EventKind = "error"
	EventSkipped     EventKind = "skipped"
	EventRateLimited EventKind = "rate_limited"
	EventEnd         EventKind = "end"
	EventCancelled   EventKind = "cancelled"
)

// Event is one progress notification from a run. Which fields are set
// depends on Kind.
type Event struct {
	Kind   EventKind
	RunID  string
	Time   time.Time
	Target models.Target

	// indexing
	Processed int
	Total     int

	// downloading, retrying, rate_limited
	Attempt      int
	UseAlternate bool

	// downloaded
	Filename string
	Bytes    int64

	// retrying, error
	Err error

	// rate_limited: whether this signal paused the queue
	Paused bool

	// end, cancelled: the final or partial result
	Result *models.RunResult
}

// Observer receives run events. Calls are serialized by the orchestrator.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(Event)

// OnEvent calls f(e)
func (f ObserverFunc) OnEvent(e Event) {
	f(e)
}

// MultiObserver fans events out to several observers in order
type MultiObserver []Observer

// OnEvent forwards e to every non-nil observer
func (m MultiObserver) OnEvent(e Event) {
	for _, o := range m {
		if o != nil {
			o.OnEvent(e)
		}
	}
}
