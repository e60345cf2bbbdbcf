// Package tracing provides access to the process tracer.
package tracing

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Tracer returns a named tracer from the global provider set up by awsinit.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
