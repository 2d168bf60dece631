// Package metrics holds the prometheus collectors of the relay and the
// writer and serves them over HTTP.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Relay collectors. All methods are safe on a nil receiver.
type Relay struct {
	published        prometheus.Counter
	publishedBytes   prometheus.Counter
	decodeErrors     *prometheus.CounterVec
	transportErrors  prometheus.Counter
	throttleSeconds  prometheus.Counter
	checkpointSaves  prometheus.Counter
	checkpointFile   prometheus.Gauge
	checkpointOffset prometheus.Gauge
}

func NewRelay(reg prometheus.Registerer) *Relay {
	f := promauto.With(reg)
	return &Relay{
		published: f.NewCounter(prometheus.CounterOpts{
			Name: "blockrelay_published_records_total",
			Help: "Records handed to the broker.",
		}),
		publishedBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "blockrelay_published_bytes_total",
			Help: "Envelope bytes handed to the broker.",
		}),
		decodeErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "blockrelay_decode_stops_total",
			Help: "Read cycles stopped at a malformed record, labeled by kind.",
		}, []string{"kind"}),
		transportErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "blockrelay_transport_errors_total",
			Help: "Publish failures that aborted a cycle.",
		}),
		throttleSeconds: f.NewCounter(prometheus.CounterOpts{
			Name: "blockrelay_throttle_seconds_total",
			Help: "Time spent waiting on the rate limiter.",
		}),
		checkpointSaves: f.NewCounter(prometheus.CounterOpts{
			Name: "blockrelay_checkpoint_saves_total",
			Help: "Checkpoint flushes to durable storage.",
		}),
		checkpointFile: f.NewGauge(prometheus.GaugeOpts{
			Name: "blockrelay_checkpoint_file",
			Help: "File index of the last persisted checkpoint.",
		}),
		checkpointOffset: f.NewGauge(prometheus.GaugeOpts{
			Name: "blockrelay_checkpoint_offset_bytes",
			Help: "Byte offset of the last persisted checkpoint.",
		}),
	}
}

func (m *Relay) Published(bytes int) {
	if m == nil {
		return
	}
	m.published.Inc()
	m.publishedBytes.Add(float64(bytes))
}

func (m *Relay) DecodeStop(kind string) {
	if m == nil {
		return
	}
	m.decodeErrors.WithLabelValues(kind).Inc()
}

func (m *Relay) TransportError() {
	if m == nil {
		return
	}
	m.transportErrors.Inc()
}

func (m *Relay) Throttled(d time.Duration) {
	if m == nil {
		return
	}
	m.throttleSeconds.Add(d.Seconds())
}

func (m *Relay) CheckpointSaved(file, offset uint32) {
	if m == nil {
		return
	}
	m.checkpointSaves.Inc()
	m.checkpointFile.Set(float64(file))
	m.checkpointOffset.Set(float64(offset))
}

// Writer collectors. All methods are safe on a nil receiver.
type Writer struct {
	written      prometheus.Counter
	writtenBytes prometheus.Counter
	dropped      *prometheus.CounterVec
}

func NewWriter(reg prometheus.Registerer) *Writer {
	f := promauto.With(reg)
	return &Writer{
		written: f.NewCounter(prometheus.CounterOpts{
			Name: "blockwriter_written_records_total",
			Help: "Records written back to block files.",
		}),
		writtenBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "blockwriter_written_bytes_total",
			Help: "Record bytes written back to block files.",
		}),
		dropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "blockwriter_dropped_records_total",
			Help: "Received messages dropped as malformed, labeled by reason.",
		}, []string{"reason"}),
	}
}

func (m *Writer) Written(bytes int64) {
	if m == nil {
		return
	}
	m.written.Inc()
	m.writtenBytes.Add(float64(bytes))
}

func (m *Writer) Dropped(reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(reason).Inc()
}

// Serve exposes /metrics and /healthz on addr until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, ready func() bool, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if ready != nil && !ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintln(w, "not ready")
			return
		}
		fmt.Fprintln(w, "ok")
	})
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	logger.Info("metrics server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
