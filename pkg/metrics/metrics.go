// Package metrics exports download run progress as Prometheus collectors.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"collectordl/internal/downloader"
	"collectordl/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Observer turns run events into Prometheus metrics. Register it next to
// the progress display with downloader.MultiObserver.
type Observer struct {
	events      *prometheus.CounterVec
	targets     *prometheus.CounterVec
	inFlight    prometheus.Gauge
	paused      prometheus.Counter
	bytes       prometheus.Counter
	runDuration prometheus.Histogram
}

// NewObserver registers the collectors against reg. A nil reg uses the
// default registerer.
func NewObserver(reg prometheus.Registerer) (*Observer, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	o := &Observer{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collectordl_events_total",
			Help: "Run events partitioned by kind.",
		}, []string{"kind"}),
		targets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collectordl_targets_total",
			Help: "Targets reaching a terminal state partitioned by result.",
		}, []string{"result"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "collectordl_attempts_in_flight",
			Help: "Download attempts currently running.",
		}),
		paused: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "collectordl_rate_limit_pauses_total",
			Help: "Times the queue was paused by a rate limit.",
		}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "collectordl_downloaded_bytes_total",
			Help: "Bytes written to disk.",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "collectordl_run_duration_seconds",
			Help:    "Wall time per completed run.",
			Buckets: []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600},
		}),
	}
	for _, collector := range []prometheus.Collector{
		o.events,
		o.targets,
		o.inFlight,
		o.paused,
		o.bytes,
		o.runDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register run collector: %w", err)
		}
	}
	return o, nil
}

// OnEvent implements downloader.Observer
func (o *Observer) OnEvent(e downloader.Event) {
	o.events.WithLabelValues(string(e.Kind)).Inc()

	switch e.Kind {
	case downloader.EventDownloading:
		o.inFlight.Inc()
	case downloader.EventDownloaded:
		o.inFlight.Dec()
		o.targets.WithLabelValues("downloaded").Inc()
		if e.Bytes > 0 {
			o.bytes.Add(float64(e.Bytes))
		}
	case downloader.EventRetrying:
		o.inFlight.Dec()
	case downloader.EventRateLimited:
		o.inFlight.Dec()
		if e.Paused {
			o.paused.Inc()
		}
	case downloader.EventError:
		o.inFlight.Dec()
		o.targets.WithLabelValues("failed").Inc()
	case downloader.EventSkipped:
		o.targets.WithLabelValues("skipped").Inc()
	case downloader.EventCancelled:
		o.inFlight.Set(0)
	case downloader.EventEnd:
		o.inFlight.Set(0)
		if e.Result != nil && e.Result.Duration > 0 {
			o.runDuration.Observe(e.Result.Duration.Seconds())
		}
	}
}

// Server exposes a registry over HTTP at /metrics
type Server struct {
	srv    *http.Server
	logger logger.Logger
}

// NewServer creates a metrics server for addr
func NewServer(addr string, gatherer prometheus.Gatherer, log logger.Logger) *Server {
	if log == nil {
		log = logger.GetLogger()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: log.WithField("component", "metrics"),
	}
}

// Serve listens until ctx is done, then shuts the server down
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("metrics listen: %w", err)
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	s.logger.InfoWithFields("Metrics server listening", map[string]interface{}{
		"addr": ln.Addr().String(),
	})

	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics shutdown: %w", err)
	}
	return nil
}
