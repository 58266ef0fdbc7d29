// Package metrics exports timeline ingest counters for prometheus.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ThomasJRyan/Nitrix/internal/timeline"
)

// Collector implements timeline.Observer.
type Collector struct {
	registry *prometheus.Registry

	events       *prometheus.CounterVec
	unseenRooms  prometheus.Gauge
	syncRequests *prometheus.CounterVec
}

// NewCollector registers the nitrix metrics on a private registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nitrix_timeline_events_total",
				Help: "Events offered to the timeline store",
			},
			[]string{"source", "outcome", "malformed"},
		),
		unseenRooms: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "nitrix_timeline_unseen_rooms",
				Help: "Rooms with unseen messages",
			},
		),
		syncRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nitrix_sync_requests_total",
				Help: "Sync requests by result",
			},
			[]string{"result"},
		),
	}
	c.registry.MustRegister(c.events, c.unseenRooms, c.syncRequests)
	return c
}

// ObserveIngest implements timeline.Observer.
func (c *Collector) ObserveIngest(source timeline.Source, outcome timeline.Outcome, malformed bool) {
	c.events.WithLabelValues(string(source), string(outcome), strconv.FormatBool(malformed)).Inc()
}

// ObserveUnseen implements timeline.Observer.
func (c *Collector) ObserveUnseen(rooms int) {
	c.unseenRooms.Set(float64(rooms))
}

// ObserveSync counts one sync round trip.
func (c *Collector) ObserveSync(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.syncRequests.WithLabelValues(result).Inc()
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (c *Collector) Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", listener.Addr().String()).Msg("metrics endpoint listening")
	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
