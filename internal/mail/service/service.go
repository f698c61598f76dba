// Package service implements the incoming and outgoing mail registers:
// number uniqueness across both kinds, date rules, attachment handling,
// division-scoped access and read tracking.
package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"correspondence/internal/audit"
	mailmetrics "correspondence/internal/mail/metrics"
	"correspondence/internal/mail/models"
	"correspondence/internal/query"
	"correspondence/pkg/domain"
	dErrors "correspondence/pkg/domain-errors"
	"correspondence/pkg/platform/sentinel"
	"correspondence/pkg/platform/tx"
	"correspondence/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store,Attachments,TxRunner,AuditPublisher

const instrumentationName = "correspondence/internal/mail/service"

// Store persists mail of both kinds. A number already held by any record is
// reported as sentinel.Conflict(models.ConstraintMailNumber).
type Store interface {
	Create(ctx context.Context, mail *models.Mail) error
	Update(ctx context.Context, mail *models.Mail) error
	Delete(ctx context.Context, kind models.Kind, id domain.MailID) error
	FindByID(ctx context.Context, kind models.Kind, id domain.MailID) (*models.Mail, error)
	FindNumber(ctx context.Context, number string) (models.NumberOwner, error)
	List(ctx context.Context, kind models.Kind, filter query.Filter, page query.Page) ([]*models.Mail, int, error)
	ListUnread(ctx context.Context, kind models.Kind, user domain.UserID, division domain.Division) ([]*models.Mail, error)
	MarkRead(ctx context.Context, kind models.Kind, id domain.MailID, user domain.UserID, at time.Time) (bool, error)
	Count(ctx context.Context, kind models.Kind) (int, error)
}

// Attachments stores the file attached to each record.
type Attachments interface {
	Save(ctx context.Context, folder, filename string, content io.Reader) (string, error)
	Delete(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, base audit.Event) error
}

// Service runs the mail registers.
type Service struct {
	store          Store
	files          Attachments
	tx             TxRunner
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *mailmetrics.Metrics
	tracer         trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *mailmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTxRunner(runner TxRunner) Option {
	return func(s *Service) {
		s.tx = runner
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) {
		if tp != nil {
			s.tracer = tp.Tracer(instrumentationName)
		}
	}
}

// New constructs a Service. Without WithTxRunner units of work are serialised
// in process, which is only correct for in-memory stores.
func New(store Store, files Attachments, opts ...Option) *Service {
	s := &Service{store: store, files: files}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = tx.NewMemoryRunner()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.tracer == nil {
		s.tracer = otel.GetTracerProvider().Tracer(instrumentationName)
	}
	return s
}

// startSpan opens an internal span for op. The returned func ends it and
// records the operation's outcome.
func (s *Service) startSpan(ctx context.Context, kind models.Kind, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	attrs = append(attrs, attribute.String("mail.kind", kind.String()))
	ctx, span := s.tracer.Start(ctx, "mail."+op,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
		if s.metrics != nil {
			s.metrics.ObserveOperation(kind.String(), op, start, err)
		}
	}
}

func wrapMailErr(err error, msg string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "mail not found")
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

func duplicateNumber(where models.Kind) error {
	msg := "mail number is already registered"
	if where != "" {
		msg = "mail number is already registered as " + where.String() + " mail"
	}
	return dErrors.New(dErrors.CodeConflict, msg).
		WithReason(models.ReasonDuplicateMailNumber).WithField("mail_number")
}

func outOfScope() error {
	return dErrors.New(dErrors.CodeForbidden, "mail must belong to your division").
		WithReason(models.ReasonDivisionScope).WithField("division")
}

// asValidation converts a model invariant violation into a client-facing
// validation error, keeping reason and field.
func asValidation(err error) error {
	var de *dErrors.Error
	if errors.As(err, &de) && de.Code == dErrors.CodeInvariantViolation {
		return dErrors.New(dErrors.CodeValidation, de.Message).WithReason(de.Reason).WithField(de.Field)
	}
	return err
}

func (s *Service) logAudit(ctx context.Context, event audit.Action, actor models.Actor, mail *models.Mail, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	attributes = append(attributes,
		"user_id", actor.ID,
		"mail_kind", mail.Kind,
		"mail_id", mail.ID,
		"mail_number", mail.MailNumber,
	)
	args := append(attributes, "event", event.String(), "log_type", "audit")
	s.logger.InfoContext(ctx, event.String(), args...)
	if s.auditPublisher == nil {
		return
	}
	e := audit.Event{
		UserID:   actor.ID,
		Subject:  mail.Kind.String() + ":" + mail.MailNumber,
		Action:   event.String(),
		Division: mail.Division,
	}
	if err := s.auditPublisher.Emit(ctx, e); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "event", event.String(), "error", err)
	}
}
