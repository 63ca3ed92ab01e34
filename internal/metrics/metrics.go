// Package metrics holds the Prometheus counters cipherlog exports.
//
// Each Metrics value owns its registry, so tests and multiple sessions in
// one process never collide on registration.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Metrics is the set of counters updated by the services.
type Metrics struct {
	Registry *prometheus.Registry

	// messages appended to a group log by this process
	MessagesAppended prometheus.Counter
	// log entries skipped because they did not decrypt
	EntriesUndecryptable prometheus.Counter
	// bans written to the registry
	BansIssued prometheus.Counter
	// sends rejected by the rate limiter
	RateLimited prometheus.Counter
	// polls that observed a changed log
	PollChanges prometheus.Counter
}

// New registers a fresh set of counters.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		MessagesAppended: f.NewCounter(prometheus.CounterOpts{
			Name: "cipherlog_messages_appended_total",
			Help: "The total number of messages appended to a group log",
		}),
		EntriesUndecryptable: f.NewCounter(prometheus.CounterOpts{
			Name: "cipherlog_entries_undecryptable_total",
			Help: "The total number of log entries omitted because they did not decrypt",
		}),
		BansIssued: f.NewCounter(prometheus.CounterOpts{
			Name: "cipherlog_bans_issued_total",
			Help: "The total number of bans issued",
		}),
		RateLimited: f.NewCounter(prometheus.CounterOpts{
			Name: "cipherlog_rate_limited_total",
			Help: "The total number of sends rejected by the rate limiter",
		}),
		PollChanges: f.NewCounter(prometheus.CounterOpts{
			Name: "cipherlog_poll_changes_total",
			Help: "The total number of polls that observed a changed log",
		}),
	}
}

// OrNew returns m, or a fresh unexported set when m is nil.
func OrNew(m *Metrics) *Metrics {
	if m == nil {
		return New()
	}
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, log *logrus.Entry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.WithField("addr", addr).Info("serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
