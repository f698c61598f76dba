// Package service manages the secretary's letter templates and their files.
package service

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"correspondence/internal/attachment"
	"correspondence/internal/audit"
	"correspondence/internal/query"
	"correspondence/internal/template/models"
	"correspondence/pkg/domain"
	dErrors "correspondence/pkg/domain-errors"
	"correspondence/pkg/platform/sentinel"
	"correspondence/pkg/platform/tx"
	"correspondence/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store,Attachments

type Store interface {
	Create(ctx context.Context, t *models.Template) error
	Delete(ctx context.Context, id domain.TemplateID) error
	FindByID(ctx context.Context, id domain.TemplateID) (*models.Template, error)
	List(ctx context.Context, search string, page query.Page) ([]*models.Template, int, error)
	Count(ctx context.Context) (int, error)
}

type Attachments interface {
	Save(ctx context.Context, folder, filename string, content io.Reader) (string, error)
	Delete(ctx context.Context, path string) error
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, base audit.Event) error
}

type Service struct {
	store          Store
	files          Attachments
	tx             TxRunner
	logger         *slog.Logger
	auditPublisher AuditPublisher
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

func WithTxRunner(runner TxRunner) Option {
	return func(s *Service) {
		s.tx = runner
	}
}

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
	return s
}

// Create stores the file, then the template. A name conflict found on
// commit removes the stored file again.
func (s *Service) Create(ctx context.Context, fields models.Fields, upload *attachment.Upload, author domain.UserID) (*models.Template, error) {
	if upload.Empty() {
		return nil, dErrors.New(dErrors.CodeValidation, "an attachment is required").
			WithReason(models.ReasonAttachmentRequired).WithField(attachment.FilePart)
	}
	t, err := models.NewTemplate(fields, author, requestcontext.Now(ctx))
	if err != nil {
		var de *dErrors.Error
		if errors.As(err, &de) {
			return nil, dErrors.New(dErrors.CodeValidation, de.Message).WithField(de.Field)
		}
		return nil, err
	}

	path, err := s.files.Save(ctx, attachment.FolderTemplates, upload.Filename, upload.Content)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDependency, "failed to store attachment")
	}
	t.AttachmentPath = path

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.store.Create(txCtx, t); err != nil {
			if sentinel.ConstraintOf(err) == models.ConstraintName {
				return dErrors.New(dErrors.CodeConflict, "a template with this name already exists").
					WithReason(models.ReasonNameConflict).WithField("name")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create template")
		}
		return nil
	})
	if err != nil {
		s.discard(ctx, path)
		return nil, err
	}

	s.logAudit(ctx, audit.EventTemplateCreated, author, t)
	return t, nil
}

// Delete removes the template, then its file. A missing file is not an error.
func (s *Service) Delete(ctx context.Context, id domain.TemplateID, actor domain.UserID) error {
	var deleted *models.Template
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		t, err := s.find(txCtx, id)
		if err != nil {
			return err
		}
		if err := s.store.Delete(txCtx, id); err != nil {
			return wrapTemplateErr(err, "failed to delete template")
		}
		deleted = t
		return nil
	})
	if err != nil {
		return err
	}
	s.discard(ctx, deleted.AttachmentPath)
	s.logAudit(ctx, audit.EventTemplateDeleted, actor, deleted)
	return nil
}

func (s *Service) Get(ctx context.Context, id domain.TemplateID) (*models.Template, error) {
	return s.find(ctx, id)
}

// List pages templates ordered by name.
func (s *Service) List(ctx context.Context, search string, page query.Page) (query.Result[*models.Template], error) {
	items, total, err := s.store.List(ctx, search, page)
	if err != nil {
		return query.Result[*models.Template]{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list templates")
	}
	return query.Result[*models.Template]{Items: items, Pagination: query.PaginationFor(page, total)}, nil
}

func (s *Service) Count(ctx context.Context) (int, error) {
	n, err := s.store.Count(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count templates")
	}
	return n, nil
}

// Download is an open template file. The caller closes Content.
type Download struct {
	Filename string
	Content  io.ReadCloser
}

func (s *Service) OpenAttachment(ctx context.Context, id domain.TemplateID) (*Download, error) {
	t, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	rc, err := s.files.Open(ctx, t.AttachmentPath)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.logger.ErrorContext(ctx, "attachment missing from file store",
				"request_id", requestcontext.RequestID(ctx),
				"template_id", id,
				"attachment_path", t.AttachmentPath,
			)
			return nil, dErrors.New(dErrors.CodeNotFound, "attachment not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeDependency, "failed to open attachment")
	}
	return &Download{Filename: attachment.DisplayName(t.AttachmentPath), Content: rc}, nil
}

func (s *Service) find(ctx context.Context, id domain.TemplateID) (*models.Template, error) {
	t, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, wrapTemplateErr(err, "failed to load template")
	}
	return t, nil
}

func wrapTemplateErr(err error, msg string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "template not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

// discard removes a file no template points at. Failure is logged with the
// leaked path.
func (s *Service) discard(ctx context.Context, path string) {
	if err := s.files.Delete(context.WithoutCancel(ctx), path); err != nil {
		s.logger.ErrorContext(ctx, "leaked attachment",
			"request_id", requestcontext.RequestID(ctx),
			"attachment_path", path,
			"error", err,
		)
	}
}

func (s *Service) logAudit(ctx context.Context, event audit.Action, actor domain.UserID, t *models.Template) {
	s.logger.InfoContext(ctx, event.String(),
		"request_id", requestcontext.RequestID(ctx),
		"user_id", actor,
		"template_id", t.ID,
		"event", event.String(),
		"log_type", "audit",
	)
	if s.auditPublisher == nil {
		return
	}
	if err := s.auditPublisher.Emit(ctx, audit.Event{UserID: actor, Subject: "template:" + t.Name, Action: event.String()}); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "event", event.String(), "error", err)
	}
}
