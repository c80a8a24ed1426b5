// Package tracing installs an OpenTelemetry tracer provider for session
// operations. Nothing here is required: without a provider, sessions use the
// global no-op tracer.
package tracing
