// Package metrics provides observability hooks for build and analytics metrics.
//
// The package implements the Null Object pattern: components receive a
// Recorder through dependency injection and default to NoopRecorder, whose
// methods inline to nothing. Enabling metrics means swapping in
// PrometheusRecorder against a registry served by the daemon's HTTP
// endpoint; no call sites change.
package metrics
