// Package otel decorates an attachment store with OpenTelemetry spans and
// metrics.
package otel

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"correspondence/internal/attachment"
)

const instrumentationName = "correspondence/internal/attachment"

// Store wraps a backend. Each operation gets a client span plus duration,
// count and error instruments; Save and Open also count bytes.
type Store struct {
	backend attachment.Store
	tracer  trace.Tracer

	duration metric.Float64Histogram
	count    metric.Int64Counter
	errors   metric.Int64Counter
	bytes    metric.Int64Counter
}

var _ attachment.Store = (*Store)(nil)

type options struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

type Option func(*options)

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracerProvider = tp
		}
	}
}

func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		if mp != nil {
			o.meterProvider = mp
		}
	}
}

// New defaults to the global tracer and meter providers.
func New(backend attachment.Store, opts ...Option) (*Store, error) {
	o := &options{
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(o)
	}

	s := &Store{backend: backend, tracer: o.tracerProvider.Tracer(instrumentationName)}
	meter := o.meterProvider.Meter(instrumentationName)

	var err error
	if s.duration, err = meter.Float64Histogram("attachment.operation.duration",
		metric.WithDescription("Duration of attachment store operations"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("init duration histogram: %w", err)
	}
	if s.count, err = meter.Int64Counter("attachment.operation.count",
		metric.WithDescription("Number of attachment store operations"),
	); err != nil {
		return nil, fmt.Errorf("init operation counter: %w", err)
	}
	if s.errors, err = meter.Int64Counter("attachment.operation.errors",
		metric.WithDescription("Number of failed attachment store operations"),
	); err != nil {
		return nil, fmt.Errorf("init error counter: %w", err)
	}
	if s.bytes, err = meter.Int64Counter("attachment.bytes",
		metric.WithDescription("Bytes written to or read from the attachment store"),
		metric.WithUnit("By"),
	); err != nil {
		return nil, fmt.Errorf("init bytes counter: %w", err)
	}
	return s, nil
}

func (s *Store) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "attachment."+op,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// finish records metrics and span status for one operation.
func (s *Store) finish(ctx context.Context, span trace.Span, op string, start time.Time, err error) {
	attrs := metric.WithAttributes(attribute.String("operation", op))
	s.duration.Record(ctx, time.Since(start).Seconds(), attrs)
	s.count.Add(ctx, 1, attrs)
	if err != nil {
		s.errors.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}

func (s *Store) Save(ctx context.Context, folder, filename string, content io.Reader) (string, error) {
	ctx, span := s.start(ctx, "save",
		attribute.String("attachment.folder", folder),
		attribute.String("attachment.filename", filename),
	)
	defer span.End()
	start := time.Now()

	counting := &countingReader{reader: content}
	p, err := s.backend.Save(ctx, folder, filename, counting)
	s.finish(ctx, span, "save", start, err)
	if err == nil {
		span.SetAttributes(
			attribute.String("attachment.path", p),
			attribute.Int64("attachment.bytes", counting.n),
		)
		s.bytes.Add(ctx, counting.n, metric.WithAttributes(attribute.String("direction", "in")))
	}
	return p, err
}

func (s *Store) Delete(ctx context.Context, p string) error {
	ctx, span := s.start(ctx, "delete", attribute.String("attachment.path", p))
	defer span.End()
	start := time.Now()

	err := s.backend.Delete(ctx, p)
	s.finish(ctx, span, "delete", start, err)
	return err
}

func (s *Store) Exists(ctx context.Context, p string) (bool, error) {
	ctx, span := s.start(ctx, "exists", attribute.String("attachment.path", p))
	defer span.End()
	start := time.Now()

	ok, err := s.backend.Exists(ctx, p)
	s.finish(ctx, span, "exists", start, err)
	span.SetAttributes(attribute.Bool("attachment.exists", ok))
	return ok, err
}

// Open ends its span when the returned reader is closed.
func (s *Store) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	ctx, span := s.start(ctx, "open", attribute.String("attachment.path", p))
	start := time.Now()

	rc, err := s.backend.Open(ctx, p)
	s.finish(ctx, span, "open", start, err)
	if err != nil {
		span.End()
		return nil, err
	}
	return &instrumentedReader{ReadCloser: rc, ctx: ctx, span: span, store: s}, nil
}

type countingReader struct {
	reader io.Reader
	n      int64
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.n += int64(n)
	return n, err
}

type instrumentedReader struct {
	io.ReadCloser
	ctx    context.Context
	span   trace.Span
	store  *Store
	n      int64
	closed bool
}

func (r *instrumentedReader) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	r.n += int64(n)
	return n, err
}

func (r *instrumentedReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	err := r.ReadCloser.Close()
	r.store.bytes.Add(r.ctx, r.n, metric.WithAttributes(attribute.String("direction", "out")))
	r.span.SetAttributes(attribute.Int64("attachment.bytes", r.n))
	if err != nil {
		r.span.RecordError(err)
	}
	r.span.End()
	return err
}
