package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/chcalder/msal-react-obo-aisearch-demo"

// Span attribute keys for the On-Behalf-Of gateway domain.
var (
	AttrUserOID          = attribute.Key("oboapi.user.oid")
	AttrUserUPN          = attribute.Key("oboapi.user.upn")
	AttrGroupCount       = attribute.Key("oboapi.groups.count")
	AttrExchangeTarget   = attribute.Key("oboapi.exchange.target")
	AttrExchangeOutcome  = attribute.Key("oboapi.exchange.outcome")
	AttrSearchAuthMode   = attribute.Key("oboapi.search.auth_mode")
	AttrFilterOutcome    = attribute.Key("oboapi.filter.outcome")
	AttrDownstreamStatus = attribute.Key("oboapi.downstream.status")
	AttrResultCount      = attribute.Key("oboapi.search.result_count")
)

// Tracer returns the project-wide OTel tracer.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan creates a new span with the given name and optional attributes.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := Tracer().Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

// SetSpanError records an error on the span and sets its status to Error.
func SetSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetSpanOK sets the span status to OK.
func SetSpanOK(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}
