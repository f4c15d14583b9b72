// Package middleware provides HTTP middleware for the ledger service.
package middleware

import (
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// MaxRequestIDLength caps request IDs taken from headers; anything
	// longer is truncated rather than trusted.
	MaxRequestIDLength = 128
	// MaxActorIDLength caps actor IDs. A real actor is a UUID, 36 chars.
	MaxActorIDLength = 64
)

var uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// TracingConfig holds configuration for the tracing middleware.
type TracingConfig struct {
	// ServiceName is the name of the service for trace identification.
	ServiceName string
	// Enabled controls whether tracing is active.
	Enabled bool
}

// DefaultTracingConfig returns default tracing configuration.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		ServiceName: "clinicpos-backend",
		Enabled:     true,
	}
}

// Tracing returns OpenTelemetry tracing middleware with default configuration.
func Tracing() gin.HandlerFunc {
	return TracingWithConfig(DefaultTracingConfig())
}

// TracingWithConfig wraps otelgin and enriches each span with the request ID
// and the actor stamped by the POS gateway. Span names follow otelgin's
// "METHOD route" convention, e.g. "POST /api/v1/ledger/consume".
func TracingWithConfig(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return passthrough
	}

	base := otelgin.Middleware(cfg.ServiceName)

	return func(c *gin.Context) {
		// otelgin opens the span; the enrichment has to run after it
		base(c)

		span := trace.SpanFromContext(c.Request.Context())
		if span.IsRecording() {
			enrichSpanWithAttributes(c, span)
		}
	}
}

func enrichSpanWithAttributes(c *gin.Context, span trace.Span) {
	if requestID := getTraceRequestID(c); requestID != "" {
		span.SetAttributes(attribute.String("request_id", requestID))
	}
	if actorID := getTraceActorID(c); actorID != "" {
		span.SetAttributes(attribute.String("actor_id", actorID))
	}
}

// getTraceRequestID prefers the ID placed in the gin context by the
// RequestID middleware; the raw header is the length-capped fallback.
func getTraceRequestID(c *gin.Context) string {
	if requestID, exists := c.Get("request_id"); exists {
		if id, ok := requestID.(string); ok && id != "" {
			return id
		}
	}

	headerID := c.GetHeader("X-Request-ID")
	if len(headerID) > MaxRequestIDLength {
		return headerID[:MaxRequestIDLength]
	}
	return headerID
}

// getTraceActorID reads the gateway-stamped actor header. Only UUID-shaped
// values make it into trace attributes.
func getTraceActorID(c *gin.Context) string {
	headerActorID := c.GetHeader("X-Actor-ID")
	if headerActorID != "" && isValidActorID(headerActorID) {
		return headerActorID
	}
	return ""
}

func isValidActorID(actorID string) bool {
	if len(actorID) > MaxActorIDLength {
		return false
	}
	return uuidRegex.MatchString(actorID)
}

// SpanErrorMarker marks spans for 4xx/5xx responses. It must sit after the
// Tracing middleware in the chain so the span already exists. Shortfall
// conflicts show up as errors here too; the span attributes carry the status
// code so dashboards can separate 409s from genuine failures.
func SpanErrorMarker() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			return
		}

		statusCode := c.Writer.Status()
		if statusCode < http.StatusBadRequest {
			return
		}

		var errorMessage string
		switch {
		case statusCode >= http.StatusInternalServerError:
			errorMessage = "Internal Server Error"
		case statusCode == http.StatusUnauthorized:
			errorMessage = "Unauthorized"
		case statusCode == http.StatusNotFound:
			errorMessage = "Not Found"
		default:
			errorMessage = "Client Error"
		}

		span.SetStatus(codes.Error, errorMessage)
		span.SetAttributes(attribute.Int("http.status_code", statusCode))
	}
}
