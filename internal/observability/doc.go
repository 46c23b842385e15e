// Package observability builds the process logger, the Prometheus
// collectors that record generation attempts and runs, and the optional
// OpenTelemetry tracer provider.
package observability
