// Package telemetry wraps Sentry tracing for the ingestion and query paths.
package telemetry

import (
	"context"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/getsentry/sentry-go"
)

const (
	serviceName  = "docingest"
	flushTimeout = 5 * time.Second
)

// Headers that carry tenant credentials and never leave the process.
var sensitiveHeaders = []string{"Authorization", "Cookie", "X-Api-Key"}

var apiKeyPattern = regexp.MustCompile(`hrk_[0-9a-fA-F]{8,}`)

// Config holds the configuration for Sentry initialization.
type Config struct {
	DSN         string
	Environment string
	// TracesSampleRate falls back to SampleRate when not positive.
	TracesSampleRate float64
	Debug            bool
}

// SampleRate is the default trace sample rate: a tenth of requests in
// production, all of them elsewhere.
func SampleRate(production bool) float64 {
	if production {
		return 0.1
	}
	return 1.0
}

// Init starts Sentry and returns a flush function. Without a DSN, or when the
// client cannot start, tracing is off and the flush function is a no-op.
func Init(cfg Config, logger *slog.Logger) func() {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DSN == "" {
		return func() {}
	}

	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	rate := cfg.TracesSampleRate
	if rate <= 0 {
		rate = SampleRate(cfg.Environment == "production")
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		EnableTracing:    true,
		TracesSampleRate: rate,
		Debug:            cfg.Debug,
		ServerName:       serviceName,
		TracesSampler: sentry.TracesSampler(func(ctx sentry.SamplingContext) float64 {
			if ctx.Span.Name == "GET /health" {
				return 0.0
			}
			var emptySpanID sentry.SpanID
			if ctx.Span.ParentSpanID != emptySpanID {
				if ctx.Span.Sampled.Bool() {
					return 1.0
				}
				return 0.0
			}
			return rate
		}),
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return scrubEvent(event)
		},
	})
	if err != nil {
		logger.Warn("sentry init failed, continuing without tracing", "error", err)
		return func() {}
	}

	logger.Info("sentry tracing initialized", "environment", cfg.Environment, "sample_rate", rate)
	return func() { sentry.Flush(flushTimeout) }
}

// scrubEvent drops credential headers and masks API keys quoted in messages.
func scrubEvent(event *sentry.Event) *sentry.Event {
	if event == nil {
		return nil
	}
	if event.Request != nil {
		for _, h := range sensitiveHeaders {
			for name := range event.Request.Headers {
				if http.CanonicalHeaderKey(name) == h {
					delete(event.Request.Headers, name)
				}
			}
		}
	}
	event.Message = maskAPIKeys(event.Message)
	for i := range event.Exception {
		event.Exception[i].Value = maskAPIKeys(event.Exception[i].Value)
	}
	return event
}

func maskAPIKeys(s string) string {
	return apiKeyPattern.ReplaceAllString(s, "hrk_[redacted]")
}

// SpanAttributes tag a span with the tenant and document it works on.
type SpanAttributes struct {
	CompanyID  string
	DocumentID string
	Step       string
	Operation  string
}

// Span wraps sentry.Span; a nil inner span makes every method a no-op.
type Span struct {
	inner *sentry.Span
}

func (s *Span) End() {
	if s.inner != nil {
		s.inner.Finish()
	}
}

// Fail marks the span as errored and records err on it without reporting an
// event. Reporting is left to the HTTP layer so one failure is one event.
func (s *Span) Fail(err error) {
	if s.inner == nil {
		return
	}
	s.inner.Status = sentry.SpanStatusInternalError
	if err != nil {
		s.inner.SetData("error", maskAPIKeys(err.Error()))
	}
}

func (s *Span) Context() context.Context {
	if s.inner != nil {
		return s.inner.Context()
	}
	return context.Background()
}

func setAttributes(span *sentry.Span, attrs SpanAttributes) {
	if span == nil {
		return
	}
	if attrs.CompanyID != "" {
		span.SetTag("company_id", attrs.CompanyID)
	}
	if attrs.DocumentID != "" {
		span.SetTag("document_id", attrs.DocumentID)
	}
	if attrs.Step != "" {
		span.SetData("step", attrs.Step)
	}
	if attrs.Operation != "" {
		span.SetData("operation", attrs.Operation)
	}
}

// StartSpan starts a child of the span in ctx, or a new transaction when
// there is none (background jobs).
func StartSpan(ctx context.Context, name string, attrs SpanAttributes) (context.Context, *Span) {
	var span *sentry.Span
	if parent := sentry.SpanFromContext(ctx); parent != nil {
		span = parent.StartChild(name)
	} else {
		span = sentry.StartSpan(ctx, name, sentry.WithTransactionName(name))
	}
	setAttributes(span, attrs)
	return span.Context(), &Span{inner: span}
}

// StartTransaction starts a root span for work that is not an HTTP request.
func StartTransaction(ctx context.Context, name, op string) (context.Context, *Span) {
	options := []sentry.SpanOption{sentry.WithTransactionName(name)}
	if op != "" {
		options = append(options, sentry.WithOpName(op))
	}
	span := sentry.StartSpan(ctx, op, options...)
	return span.Context(), &Span{inner: span}
}

func hubFrom(ctx context.Context) *sentry.Hub {
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		return hub
	}
	return sentry.CurrentHub()
}

func CaptureError(ctx context.Context, err error) {
	hubFrom(ctx).CaptureException(err)
}

func CaptureMessage(ctx context.Context, message string) {
	hubFrom(ctx).CaptureMessage(message)
}

// AddBreadcrumb records a step of the current request for later events.
func AddBreadcrumb(ctx context.Context, category, message string) {
	hubFrom(ctx).AddBreadcrumb(&sentry.Breadcrumb{
		Type:      "default",
		Category:  category,
		Message:   message,
		Level:     sentry.LevelInfo,
		Timestamp: time.Now(),
	}, nil)
}
