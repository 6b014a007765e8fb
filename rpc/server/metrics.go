package server

import (
	"fmt"
	"net/http"

	vm "github.com/VictoriaMetrics/metrics"
)

// Operation counters. GetOrCreate keeps registration idempotent when several
// servers share a process, as they do in tests.
var (
	acquireGranted  = vm.GetOrCreateCounter(`distlockd_acquire_total{result="granted"}`)
	acquireDenied   = vm.GetOrCreateCounter(`distlockd_acquire_total{result="denied_timeout"}`)
	releases        = vm.GetOrCreateCounter(`distlockd_release_total`)
	protocolErrors  = vm.GetOrCreateCounter(`distlockd_protocol_errors_total`)
	ownershipErrors = vm.GetOrCreateCounter(`distlockd_ownership_errors_total`)
	activeSessions  = vm.GetOrCreateCounter(`distlockd_active_sessions`)
)

// startMetrics exposes the Prometheus scrape endpoint when one is
// configured. Returns nil when metrics are disabled.
func (s *Server) startMetrics() *http.Server {
	if s.config.MetricsEndpoint == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		vm.WritePrometheus(w, true)

		// Table gauges are sampled at scrape time instead of being
		// maintained on every state transition.
		stats := s.table.Stats()
		fmt.Fprintf(w, "distlockd_held_locks %d\n", stats.Held)
		fmt.Fprintf(w, "distlockd_waiting_sessions %d\n", stats.Waiting)
		fmt.Fprintf(w, "distlockd_hold_expired_total %d\n", stats.Expired)
	})

	srv := &http.Server{Addr: s.config.MetricsEndpoint, Handler: mux}
	go func() {
		logger.Infof("metrics endpoint on http://%s/metrics", s.config.MetricsEndpoint)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("metrics endpoint failed: %v", err)
		}
	}()
	return srv
}
