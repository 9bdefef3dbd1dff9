// Package metrics defines the Prometheus metrics of the access controller and
// an optional listener exposing them.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const namespace = "cardgate"

// DecisionsTotal counts authorization decisions.
// Labels:
//   - decision: "granted", "unknown", "blocked", "expired", "insufficient", "unavailable"
//   - mode: session mode when the card was presented
var DecisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "decisions_total",
		Help:      "Total number of card authorization decisions.",
	},
	[]string{"decision", "mode"},
)

// ActuatorCommandsTotal counts commands handed to the actuator.
var ActuatorCommandsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "actuator_commands_total",
		Help:      "Total number of actuator commands issued, by command.",
	},
	[]string{"command"},
)

// ActuatorFailuresTotal counts commands the actuator dropped.
// Label:
//   - reason: "no_port", "open", "write"
var ActuatorFailuresTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "actuator_failures_total",
		Help:      "Total number of actuator commands dropped because of a fault.",
	},
	[]string{"reason"},
)

// CaptureRetriesTotal counts failed attempts to capture or release the reader.
var CaptureRetriesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "capture_retries_total",
		Help:      "Total number of failed reader capture/release attempts.",
	},
	[]string{"op"},
)

// AuditLinesTotal counts audit lines written, by destination log and category.
var AuditLinesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audit_lines_total",
		Help:      "Total number of audit lines appended.",
	},
	[]string{"log", "category"},
)

// SessionMode reports the current session mode (0 standard, 1 locked, 2 console).
var SessionMode = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "session_mode",
		Help:      "Current session mode: 0 standard, 1 locked, 2 console.",
	},
)

// Config holds the metrics listener settings.
type Config struct {
	Listen string `yaml:"listen"` // e.g. "127.0.0.1:9105"; empty disables the listener
}

// Serve exposes /metrics until ctx is cancelled. It returns immediately when
// no listen address is configured.
func Serve(ctx context.Context, cfg Config, log zerolog.Logger) {
	if cfg.Listen == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", cfg.Listen).Msg("Metrics listener started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("Metrics listener stopped")
	}
}
