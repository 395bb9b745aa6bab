// Package onceguard is a thin public facade over the internal dedup
// coordinator: stable aliases plus a couple of convenience constructors,
// so embedders never need to import internal/*.
package onceguard

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/onceguard/internal/audit"
	"github.com/loykin/onceguard/internal/auth"
	"github.com/loykin/onceguard/internal/config"
	"github.com/loykin/onceguard/internal/dedup"
	"github.com/loykin/onceguard/internal/metrics"
	iapi "github.com/loykin/onceguard/internal/server"
)

// Re-export core types for external consumers. These are aliases so
// conversions between the public and internal packages are zero-cost.

type (
	Coordinator  = dedup.Coordinator[dedup.StringKey]
	Config       = dedup.Config[dedup.StringKey]
	Store        = dedup.Store[dedup.StringKey]
	Process      = dedup.Process
	Key          = dedup.Key
	StringKey    = dedup.StringKey
	Sample       = dedup.Sample
	Status       = dedup.Status
	PollStrategy = dedup.PollStrategy
	AuditSink    = audit.Sink
	AuditEvent   = audit.Event
	AuthService  = auth.Service
	FileConfig   = config.FileConfig
)

const (
	NotSeen = dedup.NotSeen
	Seen    = dedup.Seen
)

var ErrPollTimeout = dedup.ErrPollTimeout

// New builds a Coordinator over store using cfg. logger may be nil.
func New(store Store, cfg Config, logger *slog.Logger) *Coordinator {
	return dedup.New[dedup.StringKey](store, cfg, logger)
}

// ExponentialBackoff builds a capped-exponential poll strategy.
func ExponentialBackoff(initial, maxTotal, maxDelay time.Duration, multiplier float64) PollStrategy {
	return dedup.ExponentialBackoff(initial, maxTotal, maxDelay, multiplier)
}

// LoadConfig reads a TOML deployment config, applying ONCEGUARD_*
// environment overrides.
func LoadConfig(path string) (*FileConfig, error) {
	return config.Load(path)
}

// NewHTTPServer builds an *http.Server exposing coord's try-start/
// complete/status API. sink and authSvc may be nil.
func NewHTTPServer(addr, basePath string, coord *Coordinator, processorID string, sink AuditSink, authSvc *AuthService) *http.Server {
	return iapi.NewServer(addr, basePath, coord, processorID, sink, authSvc)
}

// RegisterMetrics registers coordinator Prometheus collectors with r.
func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }

// RegisterMetricsDefault registers coordinator Prometheus collectors with
// the default registry.
func RegisterMetricsDefault() error { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the
// default registry. It blocks until the listener fails.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
