package pages

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/pageman/internal/log"
)

const tracerName = "github.com/keithlinneman/pageman/internal/pages"

// Observer receives operation outcomes, typically backed by Prometheus.
type Observer interface {
	ObserveOp(op, result string, d time.Duration)
	VersionCreated()
	TrashArchived(ok bool)
}

type nopObserver struct{}

func (nopObserver) ObserveOp(string, string, time.Duration) {}
func (nopObserver) VersionCreated()                         {}
func (nopObserver) TrashArchived(bool)                      {}

// instr bundles the clock, logging, metrics and tracing shared by Engine and
// Lifecycle.
type instr struct {
	now    func() time.Time
	loc    *time.Location
	obs    Observer
	logger log.Logger
	tracer trace.Tracer
}

func defaultInstr() instr {
	return instr{
		now:    time.Now,
		loc:    time.UTC,
		obs:    nopObserver{},
		logger: log.Nop(),
		tracer: otel.Tracer(tracerName),
	}
}

// Option configures an Engine or a Lifecycle.
type Option func(*instr)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(i *instr) {
		if now != nil {
			i.now = now
		}
	}
}

// WithLocation sets the zone version times are reported in. Ids and trash
// prefixes are always minted in UTC so they sort in creation order across
// daylight saving changes.
func WithLocation(loc *time.Location) Option {
	return func(i *instr) {
		if loc != nil {
			i.loc = loc
		}
	}
}

func WithObserver(o Observer) Option {
	return func(i *instr) {
		if o != nil {
			i.obs = o
		}
	}
}

func WithLogger(l log.Logger) Option {
	return func(i *instr) {
		if l != nil {
			i.logger = l
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(i *instr) {
		if t != nil {
			i.tracer = t
		}
	}
}

func (i *instr) stamp() time.Time { return i.now().UTC() }

// run wraps one operation in a span, a metrics sample and a log line.
// Client errors (not found, invalid input) log at info, the rest at error.
func (i *instr) run(ctx context.Context, op, page string, fn func(context.Context) ([]any, error)) error {
	start := time.Now()
	ctx, span := i.tracer.Start(ctx, "pages."+op, trace.WithAttributes(
		attribute.String("page", page),
	))
	defer span.End()

	kv, err := fn(ctx)
	result := Result(err)
	i.obs.ObserveOp(op, result, time.Since(start))
	span.SetAttributes(attribute.String("result", result))

	kv = append([]any{"op", op, "page", page, "result", result}, kv...)
	switch result {
	case "ok":
		i.logger.Info(ctx, "page operation", kv...)
	case "not_found", "invalid_input", "canceled":
		span.SetStatus(codes.Error, result)
		i.logger.Info(ctx, "page operation rejected", append(kv, "reason", err.Error())...)
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, result)
		i.logger.Error(ctx, err, "page operation failed", kv...)
	}
	return err
}
