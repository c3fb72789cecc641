// Package stores implements the OIDC storage contracts of the domain package
// over a reactive.Store.
//
// Reads run against the last synchronized snapshot. Writes submit a mutation
// intent and return before it has been applied; callers that need to observe
// their own write use WaitVisible.
package stores

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"go.pilab.hu/oidcstore/codec"
	"go.pilab.hu/oidcstore/domain"
	"go.pilab.hu/oidcstore/identity"
	"go.pilab.hu/oidcstore/internal/audit"
	"go.pilab.hu/oidcstore/internal/telemetry"
	"go.pilab.hu/oidcstore/log"
	"go.pilab.hu/oidcstore/metrics"
	"go.pilab.hu/oidcstore/query"
	"go.pilab.hu/oidcstore/reactive"
	"go.pilab.hu/oidcstore/tracing"
)

// base carries what every store needs.
type base struct {
	store     reactive.Store
	ids       *identity.Mapper
	codec     *codec.Codec
	logger    log.Logger
	component string
	now       func() time.Time
}

func newBase(store reactive.Store, ids *identity.Mapper, c *codec.Codec, logger log.Logger, component string) base {
	if c == nil {
		c = codec.New(logger)
	}
	return base{
		store:     store,
		ids:       ids,
		codec:     c,
		logger:    log.OrNop(logger).With(map[string]interface{}{"component": component}),
		component: component,
		now:       time.Now,
	}
}

// audit records the outcome of a destructive operation.
func (b base) audit(ctx context.Context, action, target string, err error) {
	audit.Log(ctx, b.component, action, target, "", err)
}

// operation is a traced and timed store call.
type operation struct {
	trace.Span
	ctx   context.Context
	name  string
	start time.Time
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, *operation) {
	ctx, span := tracing.Tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, &operation{Span: span, ctx: ctx, name: name, start: time.Now()}
}

func finish(op *operation, err error) {
	if err != nil {
		op.RecordError(err)
		op.SetStatus(codes.Error, err.Error())
	}
	telemetry.RecordOperation(op.ctx, op.name, err != nil, time.Since(op.start))
	op.End()
}

// materialize copies the current snapshot of a table into a query.
func materialize[R any](name reactive.TableName, t reactive.Table[R]) *query.Query[R] {
	rows := slices.Collect(t.Iter())
	metrics.RowsScanned.WithLabelValues(string(name)).Add(float64(len(rows)))
	return query.Of(rows)
}

// page streams count items of q after offset. A count of zero or less means
// no limit.
func page[T any](ctx context.Context, q *query.Query[T], count, offset int) iter.Seq2[T, error] {
	if offset < 0 {
		return query.Fail[T](fmt.Errorf("%w: offset must not be negative", domain.ErrValidation))
	}
	q = q.Skip(offset)
	if count > 0 {
		q = q.Take(count)
	}
	return query.Stream(ctx, q.Seq())
}

func countWith[T any](q *query.Query[T], proj query.Projection[T]) (int64, error) {
	if proj == nil {
		return 0, fmt.Errorf("%w: projection is required", domain.ErrValidation)
	}
	var n int64
	for range proj(q.Seq()) {
		n++
	}
	return n, nil
}

func getWith[T any](q *query.Query[T], proj query.Projection[T]) (any, error) {
	if proj == nil {
		return nil, fmt.Errorf("%w: projection is required", domain.ErrValidation)
	}
	for v := range proj(q.Seq()) {
		return v, nil
	}
	return nil, nil
}

func listWith[T any](ctx context.Context, q *query.Query[T], proj query.Projection[T]) iter.Seq2[any, error] {
	if proj == nil {
		return query.Fail[any](fmt.Errorf("%w: projection is required", domain.ErrValidation))
	}
	return query.Stream(ctx, proj(q.Seq()))
}

func required(field, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s is required", domain.ErrValidation, field)
	}
	return nil
}

// staleErr reports a descriptor whose row could not be resolved for a
// mutation.
func staleErr(kind, id string) error {
	return fmt.Errorf("%w: %s %q: %w", domain.ErrConcurrency, kind, id, domain.ErrNotFound)
}

func checkToken(kind, id, stored, held string) error {
	if stored != held {
		return fmt.Errorf("%w: %s %q was modified since it was read", domain.ErrConcurrency, kind, id)
	}
	return nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
