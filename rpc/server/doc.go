// Package server implements the TCP front end of the lock service.
//
// The server accepts plain TCP connections and runs one session goroutine
// per connection. Each session gets a server-generated UUID at accept time;
// that UUID, not the socket, is the ownership identity the lock table sees.
// A session reads newline-terminated commands, dispatches them against the
// shared lock table and writes one response line per command.
//
// # Fault Containment
//
// A session is a fault domain of its own. Malformed lines are answered with
// an ERROR response and the connection stays open; transport errors and
// disconnects end only that session. Whatever ends a session, the deferred
// cleanup releases every lock the session holds and removes its queued
// waiters, which hands contested locks to the next waiter in line.
//
// # Shutdown
//
// Cancelling the context passed to Serve closes the listener, interrupts all
// blocked acquires and drains the session goroutines, bounded by the
// configured drain timeout. Sessions still alive after the timeout have
// their connections force-closed. No lock state survives a restart.
//
// # Metrics
//
// When a metrics endpoint is configured the server exposes Prometheus
// metrics over HTTP: operation counters maintained inline and table gauges
// sampled at scrape time.
package server
