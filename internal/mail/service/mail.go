package service

import (
	"context"
	"errors"
	"io"

	"go.opentelemetry.io/otel/attribute"

	"correspondence/internal/attachment"
	"correspondence/internal/audit"
	"correspondence/internal/mail/models"
	"correspondence/internal/query"
	"correspondence/pkg/domain"
	dErrors "correspondence/pkg/domain-errors"
	"correspondence/pkg/platform/sentinel"
	"correspondence/pkg/requestcontext"
)

// Create registers a record of kind with its mandatory attachment. The file
// is stored first; if the record cannot be committed the file is removed
// again on a best-effort basis.
func (s *Service) Create(ctx context.Context, kind models.Kind, fields models.Fields, upload *attachment.Upload, actor models.Actor) (mail *models.Mail, err error) {
	ctx, end := s.startSpan(ctx, kind, "create")
	defer func() { end(err) }()

	if upload.Empty() {
		return nil, dErrors.New(dErrors.CodeValidation, "an attachment is required").
			WithReason(models.ReasonAttachmentRequired).WithField("file")
	}
	if !actor.Scope.IsNone() {
		switch {
		case fields.Division.IsNone():
			fields.Division = actor.Scope
		case fields.Division != actor.Scope:
			return nil, outOfScope()
		}
	}

	now := requestcontext.Now(ctx)
	mail, err = models.NewMail(kind, fields, actor.ID, now)
	if err != nil {
		return nil, asValidation(err)
	}
	// reject a taken number before writing the file
	if err := s.checkNumber(ctx, mail.MailNumber, kind, 0); err != nil {
		return nil, err
	}

	path, err := s.files.Save(ctx, folderFor(kind), upload.Filename, upload.Content)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDependency, "failed to store attachment")
	}
	mail.AttachmentPath = path

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.checkNumber(txCtx, mail.MailNumber, kind, 0); err != nil {
			return err
		}
		if err := s.store.Create(txCtx, mail); err != nil {
			return s.mapWriteErr(err, "failed to create mail")
		}
		return nil
	})
	if err != nil {
		s.discardAttachment(ctx, kind, path, "create")
		return nil, err
	}

	s.logAudit(ctx, audit.EventMailCreated, actor, mail)
	if s.metrics != nil {
		s.metrics.IncrementCreated(kind.String())
	}
	return mail, nil
}

// Update applies patch and, when upload is given, replaces the attachment.
// The new file is stored before the record changes and the old file is
// removed only after the change commits.
func (s *Service) Update(ctx context.Context, kind models.Kind, id domain.MailID, patch models.Patch, upload *attachment.Upload, actor models.Actor) (mail *models.Mail, err error) {
	ctx, end := s.startSpan(ctx, kind, "update", attribute.Int64("mail.id", int64(id)))
	defer func() { end(err) }()

	replacing := !upload.Empty()
	if patch.IsEmpty() && !replacing {
		return nil, dErrors.New(dErrors.CodeValidation, "nothing to update")
	}
	if patch.Division != nil && !actor.Sees(*patch.Division) {
		return nil, outOfScope()
	}

	// fail fast on an unknown or hidden record before storing a file
	if _, err := s.find(ctx, kind, id, actor); err != nil {
		return nil, err
	}

	var newPath string
	if replacing {
		newPath, err = s.files.Save(ctx, folderFor(kind), upload.Filename, upload.Content)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeDependency, "failed to store attachment")
		}
	}

	var oldPath string
	now := requestcontext.Now(ctx)
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		current, err := s.find(txCtx, kind, id, actor)
		if err != nil {
			return err
		}
		numberChanged := patch.MailNumber != nil && *patch.MailNumber != current.MailNumber
		if err := patch.ApplyTo(current, now); err != nil {
			return asValidation(err)
		}
		if numberChanged {
			if err := s.checkNumber(txCtx, current.MailNumber, kind, id); err != nil {
				return err
			}
		}
		if replacing {
			oldPath = current.AttachmentPath
			current.AttachmentPath = newPath
		}
		if err := s.store.Update(txCtx, current); err != nil {
			return s.mapWriteErr(err, "failed to update mail")
		}
		mail = current
		return nil
	})
	if err != nil {
		if replacing {
			s.discardAttachment(ctx, kind, newPath, "update")
		}
		return nil, err
	}

	if replacing && oldPath != "" && oldPath != newPath {
		s.discardAttachment(ctx, kind, oldPath, "replace")
	}
	s.logAudit(ctx, audit.EventMailUpdated, actor, mail, "attachment_replaced", replacing)
	if s.metrics != nil {
		s.metrics.IncrementUpdated(kind.String())
	}
	return mail, nil
}

// Delete removes the record, then its attachment. A missing file is not an
// error.
func (s *Service) Delete(ctx context.Context, kind models.Kind, id domain.MailID, actor models.Actor) (err error) {
	ctx, end := s.startSpan(ctx, kind, "delete", attribute.Int64("mail.id", int64(id)))
	defer func() { end(err) }()

	var deleted *models.Mail
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		mail, err := s.find(txCtx, kind, id, actor)
		if err != nil {
			return err
		}
		if err := s.store.Delete(txCtx, kind, id); err != nil {
			return wrapMailErr(err, "failed to delete mail")
		}
		deleted = mail
		return nil
	})
	if err != nil {
		return err
	}

	if deleted.AttachmentPath != "" {
		s.removeAttachment(ctx, kind, deleted.AttachmentPath)
	}
	s.logAudit(ctx, audit.EventMailDeleted, actor, deleted)
	if s.metrics != nil {
		s.metrics.IncrementDeleted(kind.String())
	}
	return nil
}

// Get returns a record visible to actor. Records outside the actor's
// division are reported as not found.
func (s *Service) Get(ctx context.Context, kind models.Kind, id domain.MailID, actor models.Actor) (mail *models.Mail, err error) {
	ctx, end := s.startSpan(ctx, kind, "get", attribute.Int64("mail.id", int64(id)))
	defer func() { end(err) }()
	return s.find(ctx, kind, id, actor)
}

// List pages records of kind ordered by mail date, newest first. The caller
// injects the division filter.
func (s *Service) List(ctx context.Context, kind models.Kind, filter query.Filter, page query.Page) (res query.Result[*models.Mail], err error) {
	ctx, end := s.startSpan(ctx, kind, "list",
		attribute.Int("page", page.Number),
		attribute.Int("per_page", page.PerPage),
		attribute.String("division", filter.Division.String()),
	)
	defer func() { end(err) }()

	items, total, err := s.store.List(ctx, kind, filter, page)
	if err != nil {
		return query.Result[*models.Mail]{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list mail")
	}
	return query.Result[*models.Mail]{Items: items, Pagination: query.PaginationFor(page, total)}, nil
}

// MarkRead records that actor read the record. Repeating it changes nothing.
func (s *Service) MarkRead(ctx context.Context, kind models.Kind, id domain.MailID, actor models.Actor) (err error) {
	ctx, end := s.startSpan(ctx, kind, "mark_read", attribute.Int64("mail.id", int64(id)))
	defer func() { end(err) }()

	mail, err := s.find(ctx, kind, id, actor)
	if err != nil {
		return err
	}
	added, err := s.store.MarkRead(ctx, kind, id, actor.ID, requestcontext.Now(ctx))
	if err != nil {
		return wrapMailErr(err, "failed to mark mail as read")
	}
	if !added {
		return nil
	}
	s.logAudit(ctx, audit.EventMailRead, actor, mail)
	if s.metrics != nil {
		s.metrics.IncrementReads(kind.String())
	}
	return nil
}

// ListUnread returns records of kind in division (every division when none)
// that user has not read, newest insertion first.
func (s *Service) ListUnread(ctx context.Context, kind models.Kind, user domain.UserID, division domain.Division) (mail []*models.Mail, err error) {
	ctx, end := s.startSpan(ctx, kind, "list_unread")
	defer func() { end(err) }()

	mail, err = s.store.ListUnread(ctx, kind, user, division)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list unread mail")
	}
	return mail, nil
}

// Count returns the number of records of kind.
func (s *Service) Count(ctx context.Context, kind models.Kind) (int, error) {
	n, err := s.store.Count(ctx, kind)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count mail")
	}
	return n, nil
}

// Download is an open attachment. The caller closes Content.
type Download struct {
	Filename string
	Content  io.ReadCloser
}

// OpenAttachment opens the file of a record visible to actor.
func (s *Service) OpenAttachment(ctx context.Context, kind models.Kind, id domain.MailID, actor models.Actor) (dl *Download, err error) {
	ctx, end := s.startSpan(ctx, kind, "open_attachment", attribute.Int64("mail.id", int64(id)))
	defer func() { end(err) }()

	mail, err := s.find(ctx, kind, id, actor)
	if err != nil {
		return nil, err
	}
	rc, err := s.files.Open(ctx, mail.AttachmentPath)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.logger.ErrorContext(ctx, "attachment missing from file store",
				"request_id", requestcontext.RequestID(ctx),
				"mail_kind", kind,
				"mail_id", id,
				"attachment_path", mail.AttachmentPath,
			)
			return nil, dErrors.New(dErrors.CodeNotFound, "attachment not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeDependency, "failed to open attachment")
	}
	return &Download{Filename: attachment.DisplayName(mail.AttachmentPath), Content: rc}, nil
}

func folderFor(kind models.Kind) string {
	if kind == models.KindIncoming {
		return attachment.FolderIncoming
	}
	return attachment.FolderOutgoing
}

func (s *Service) find(ctx context.Context, kind models.Kind, id domain.MailID, actor models.Actor) (*models.Mail, error) {
	mail, err := s.store.FindByID(ctx, kind, id)
	if err != nil {
		return nil, wrapMailErr(err, "failed to load mail")
	}
	if !actor.Sees(mail.Division) {
		return nil, dErrors.New(dErrors.CodeNotFound, "mail not found")
	}
	return mail, nil
}

// checkNumber reports a conflict when number is held by any record other
// than (kind, self).
func (s *Service) checkNumber(ctx context.Context, number string, kind models.Kind, self domain.MailID) error {
	owner, err := s.store.FindNumber(ctx, number)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return nil
	case err != nil:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check mail number")
	case owner.Kind == kind && owner.ID == self:
		return nil
	default:
		return duplicateNumber(owner.Kind)
	}
}

func (s *Service) mapWriteErr(err error, msg string) error {
	if sentinel.ConstraintOf(err) == models.ConstraintMailNumber {
		return duplicateNumber("")
	}
	return wrapMailErr(err, msg)
}

// discardAttachment removes a file no committed record points at. Failure
// leaves an orphan that is logged for reconciliation.
func (s *Service) discardAttachment(ctx context.Context, kind models.Kind, path, stage string) {
	if err := s.files.Delete(context.WithoutCancel(ctx), path); err != nil {
		s.logger.ErrorContext(ctx, "leaked attachment",
			"request_id", requestcontext.RequestID(ctx),
			"mail_kind", kind,
			"stage", stage,
			"attachment_path", path,
			"error", err,
		)
		if s.metrics != nil {
			s.metrics.IncrementLeakedAttachments()
		}
	}
}

// removeAttachment deletes the file of a deleted record. Absence is fine.
func (s *Service) removeAttachment(ctx context.Context, kind models.Kind, path string) {
	ok, err := s.files.Exists(ctx, path)
	if err == nil && !ok {
		s.logger.WarnContext(ctx, "attachment already absent",
			"request_id", requestcontext.RequestID(ctx),
			"mail_kind", kind,
			"attachment_path", path,
		)
		return
	}
	s.discardAttachment(ctx, kind, path, "delete")
}
