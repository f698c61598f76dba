package service

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"correspondence/internal/attachment"
	attachmentmemory "correspondence/internal/attachment/memory"
	"correspondence/internal/audit"
	auditmemory "correspondence/internal/audit/store/memory"
	mailmetrics "correspondence/internal/mail/metrics"
	"correspondence/internal/mail/models"
	mailstore "correspondence/internal/mail/store"
	"correspondence/internal/query"
	"correspondence/pkg/domain"
	dErrors "correspondence/pkg/domain-errors"
	"correspondence/pkg/requestcontext"
)

// MailRulesSuite exercises the service against the in-memory stores.
type MailRulesSuite struct {
	suite.Suite
	ctx       context.Context
	now       time.Time
	store     *mailstore.InMemoryStore
	files     *attachmentmemory.Store
	auditLog  *auditmemory.InMemoryStore
	metrics   *mailmetrics.Metrics
	spans     *tracetest.SpanRecorder
	service   *Service
	secretary models.Actor
	dataStaff models.Actor
	hrStaff   models.Actor
}

func TestMailRulesSuite(t *testing.T) {
	suite.Run(t, new(MailRulesSuite))
}

func (s *MailRulesSuite) SetupTest() {
	s.now = time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.store = mailstore.NewInMemory()
	s.files = attachmentmemory.New()
	s.auditLog = auditmemory.NewInMemoryStore()
	s.metrics = mailmetrics.New(prometheus.NewRegistry())
	s.spans = tracetest.NewSpanRecorder()
	s.service = New(s.store, s.files,
		WithAuditPublisher(audit.NewPublisher(s.auditLog)),
		WithMetrics(s.metrics),
		WithTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(s.spans))),
	)
	s.secretary = models.Actor{ID: 1}
	s.dataStaff = models.Actor{ID: 2, Scope: domain.DivisionDataAndInformation}
	s.hrStaff = models.Actor{ID: 3, Scope: domain.DivisionHumanResourcesAndCommunity}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func upload(name, content string) *attachment.Upload {
	return &attachment.Upload{Filename: name, Size: int64(len(content)), Content: strings.NewReader(content)}
}

func fields(number string) models.Fields {
	return models.Fields{
		MailNumber:  number,
		MailDate:    day(2025, 3, 1),
		HandledDate: day(2025, 3, 3),
		Sender:      "Dinas Kominfo",
		AddressedTo: "Kepala Kantor",
		Subject:     "Annual Report",
		Division:    domain.DivisionDataAndInformation,
	}
}

func (s *MailRulesSuite) create(kind models.Kind, f models.Fields) *models.Mail {
	m, err := s.service.Create(s.ctx, kind, f, upload("surat.pdf", "%PDF"), s.secretary)
	s.Require().NoError(err)
	return m
}

func (s *MailRulesSuite) requireReason(err error, code dErrors.Code, reason string) {
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, code), "got %v", err)
	s.Equal(reason, dErrors.ReasonOf(err))
}

func (s *MailRulesSuite) TestCreate() {
	s.Run("stores record and attachment", func() {
		m := s.create(models.KindIncoming, fields("001/X/2025"))

		s.NotZero(m.ID)
		s.Equal(s.now, m.InsertedAt)
		s.Require().NotNil(m.InsertedBy)
		s.Equal(s.secretary.ID, *m.InsertedBy)
		s.Empty(m.ReadBy)
		s.True(strings.HasPrefix(m.AttachmentPath, attachment.FolderIncoming+"/"))
		s.Contains(s.files.Paths(), m.AttachmentPath)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.Created.WithLabelValues("incoming")))
		s.Contains(s.auditLog.Actions(), audit.EventMailCreated.String())
	})

	s.Run("attachment is mandatory", func() {
		_, err := s.service.Create(s.ctx, models.KindIncoming, fields("002/X/2025"), nil, s.secretary)
		s.requireReason(err, dErrors.CodeValidation, models.ReasonAttachmentRequired)

		_, err = s.service.Create(s.ctx, models.KindIncoming, fields("002/X/2025"), upload("empty.pdf", ""), s.secretary)
		s.requireReason(err, dErrors.CodeValidation, models.ReasonAttachmentRequired)
	})

	s.Run("outgoing mail drops sender", func() {
		m := s.create(models.KindOutgoing, fields("003/X/2025"))
		s.Empty(m.Sender)
		s.True(strings.HasPrefix(m.AttachmentPath, attachment.FolderOutgoing+"/"))
	})
}

func (s *MailRulesSuite) TestCreate_FutureDates() {
	tomorrow := s.now.AddDate(0, 0, 1)
	before := len(s.files.Paths())

	f := fields("F-1")
	f.MailDate = tomorrow
	_, err := s.service.Create(s.ctx, models.KindIncoming, f, upload("a.pdf", "x"), s.secretary)
	s.requireReason(err, dErrors.CodeValidation, models.ReasonFutureDate)

	f = fields("F-2")
	f.HandledDate = tomorrow
	_, err = s.service.Create(s.ctx, models.KindOutgoing, f, upload("a.pdf", "x"), s.secretary)
	s.requireReason(err, dErrors.CodeValidation, models.ReasonFutureDate)

	s.Len(s.files.Paths(), before, "rejected mail must not leave files behind")

	f = fields("F-3")
	f.MailDate, f.HandledDate = day(2025, 3, 10), day(2025, 3, 10)
	_, err = s.service.Create(s.ctx, models.KindIncoming, f, upload("a.pdf", "x"), s.secretary)
	s.NoError(err, "today is not in the future")
}

func (s *MailRulesSuite) TestMailNumber_UniqueAcrossKinds() {
	incoming := s.create(models.KindIncoming, fields("A1"))
	files := len(s.files.Paths())

	_, err := s.service.Create(s.ctx, models.KindOutgoing, fields("A1"), upload("b.pdf", "x"), s.secretary)
	s.requireReason(err, dErrors.CodeConflict, models.ReasonDuplicateMailNumber)
	s.Contains(err.Error(), "incoming")
	s.Len(s.files.Paths(), files)

	s.Require().NoError(s.service.Delete(s.ctx, models.KindIncoming, incoming.ID, s.secretary))

	reused, err := s.service.Create(s.ctx, models.KindOutgoing, fields("A1"), upload("b.pdf", "x"), s.secretary)
	s.Require().NoError(err)
	s.Equal("A1", reused.MailNumber)
}

func (s *MailRulesSuite) TestCreate_DivisionScoping() {
	s.Run("own division is injected", func() {
		f := fields("D-1")
		f.Division = domain.DivisionNone
		m, err := s.service.Create(s.ctx, models.KindIncoming, f, upload("a.pdf", "x"), s.hrStaff)
		s.Require().NoError(err)
		s.Equal(domain.DivisionHumanResourcesAndCommunity, m.Division)
	})

	s.Run("other division is refused", func() {
		_, err := s.service.Create(s.ctx, models.KindIncoming, fields("D-2"), upload("a.pdf", "x"), s.hrStaff)
		s.requireReason(err, dErrors.CodeForbidden, models.ReasonDivisionScope)
	})

	s.Run("secretary may file without a division", func() {
		f := fields("D-3")
		f.Division = domain.DivisionNone
		m, err := s.service.Create(s.ctx, models.KindOutgoing, f, upload("a.pdf", "x"), s.secretary)
		s.Require().NoError(err)
		s.True(m.Division.IsNone())
	})
}

func (s *MailRulesSuite) TestUpdate() {
	m := s.create(models.KindIncoming, fields("U-1"))
	other := s.create(models.KindOutgoing, fields("U-2"))

	s.Run("same number is not a conflict", func() {
		number := "U-1"
		subject := "Revised Annual Report"
		updated, err := s.service.Update(s.ctx, models.KindIncoming, m.ID, models.Patch{MailNumber: &number, Subject: &subject}, nil, s.dataStaff)
		s.Require().NoError(err)
		s.Equal("Revised Annual Report", updated.Subject)
		s.Equal(m.AttachmentPath, updated.AttachmentPath)
	})

	s.Run("number held by the other kind", func() {
		number := other.MailNumber
		_, err := s.service.Update(s.ctx, models.KindIncoming, m.ID, models.Patch{MailNumber: &number}, nil, s.secretary)
		s.requireReason(err, dErrors.CodeConflict, models.ReasonDuplicateMailNumber)
	})

	s.Run("renumbering frees the old number", func() {
		number := "U-1b"
		_, err := s.service.Update(s.ctx, models.KindIncoming, m.ID, models.Patch{MailNumber: &number}, nil, s.secretary)
		s.Require().NoError(err)

		again := s.create(models.KindOutgoing, fields("U-1"))
		s.Equal("U-1", again.MailNumber)
	})

	s.Run("future date in patch", func() {
		future := s.now.AddDate(0, 1, 0)
		_, err := s.service.Update(s.ctx, models.KindIncoming, m.ID, models.Patch{HandledDate: &future}, nil, s.secretary)
		s.requireReason(err, dErrors.CodeValidation, models.ReasonFutureDate)
	})

	s.Run("empty update", func() {
		_, err := s.service.Update(s.ctx, models.KindIncoming, m.ID, models.Patch{}, nil, s.secretary)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("moving out of own division", func() {
		hr := domain.DivisionHumanResourcesAndCommunity
		_, err := s.service.Update(s.ctx, models.KindIncoming, m.ID, models.Patch{Division: &hr}, nil, s.dataStaff)
		s.requireReason(err, dErrors.CodeForbidden, models.ReasonDivisionScope)
	})

	s.Run("hidden record", func() {
		subject := "x"
		_, err := s.service.Update(s.ctx, models.KindIncoming, m.ID, models.Patch{Subject: &subject}, nil, s.hrStaff)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *MailRulesSuite) TestUpdate_ReplacesAttachmentAfterCommit() {
	m := s.create(models.KindIncoming, fields("R-1"))

	updated, err := s.service.Update(s.ctx, models.KindIncoming, m.ID, models.Patch{}, upload("revisi.pdf", "v2"), s.secretary)
	s.Require().NoError(err)
	s.NotEqual(m.AttachmentPath, updated.AttachmentPath)
	s.Equal("revisi.pdf", attachment.DisplayName(updated.AttachmentPath))

	paths := s.files.Paths()
	s.Contains(paths, updated.AttachmentPath)
	s.NotContains(paths, m.AttachmentPath)
}

func (s *MailRulesSuite) TestUpdate_FailedCommitKeepsOldAttachment() {
	m := s.create(models.KindIncoming, fields("R-2"))
	s.create(models.KindIncoming, fields("R-3"))

	number := "R-3"
	_, err := s.service.Update(s.ctx, models.KindIncoming, m.ID, models.Patch{MailNumber: &number}, upload("new.pdf", "v2"), s.secretary)
	s.requireReason(err, dErrors.CodeConflict, models.ReasonDuplicateMailNumber)

	got, err := s.service.Get(s.ctx, models.KindIncoming, m.ID, s.secretary)
	s.Require().NoError(err)
	s.Equal(m.AttachmentPath, got.AttachmentPath)
	s.Contains(s.files.Paths(), m.AttachmentPath)
	s.Len(s.files.Paths(), 2, "the new upload is discarded")
}

func (s *MailRulesSuite) TestDelete() {
	m := s.create(models.KindOutgoing, fields("X-1"))

	s.Run("hidden record", func() {
		err := s.service.Delete(s.ctx, models.KindOutgoing, m.ID, s.hrStaff)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("removes record and file", func() {
		s.Require().NoError(s.service.Delete(s.ctx, models.KindOutgoing, m.ID, s.dataStaff))
		s.NotContains(s.files.Paths(), m.AttachmentPath)

		_, err := s.service.Get(s.ctx, models.KindOutgoing, m.ID, s.secretary)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("missing file is not an error", func() {
		n := s.create(models.KindOutgoing, fields("X-2"))
		s.Require().NoError(s.files.Delete(s.ctx, n.AttachmentPath))
		s.NoError(s.service.Delete(s.ctx, models.KindOutgoing, n.ID, s.secretary))
	})

	s.Run("unknown id", func() {
		err := s.service.Delete(s.ctx, models.KindOutgoing, 999, s.secretary)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *MailRulesSuite) TestMarkRead_Idempotent() {
	m := s.create(models.KindIncoming, fields("M-1"))

	s.Require().NoError(s.service.MarkRead(s.ctx, models.KindIncoming, m.ID, s.dataStaff))
	s.Require().NoError(s.service.MarkRead(s.ctx, models.KindIncoming, m.ID, s.dataStaff))

	got, err := s.service.Get(s.ctx, models.KindIncoming, m.ID, s.secretary)
	s.Require().NoError(err)
	s.Equal([]domain.UserID{s.dataStaff.ID}, got.ReadBy)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Reads.WithLabelValues("incoming")))

	reads := 0
	for _, a := range s.auditLog.Actions() {
		if a == audit.EventMailRead.String() {
			reads++
		}
	}
	s.Equal(1, reads)

	err = s.service.MarkRead(s.ctx, models.KindIncoming, m.ID, s.hrStaff)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound), "other divisions cannot see the record")
}

func (s *MailRulesSuite) TestList_Search() {
	s.create(models.KindIncoming, fields("S-1"))
	other := fields("S-2")
	other.Subject = "Budget Plan"
	s.create(models.KindIncoming, other)

	page, err := query.NewPage(1, 10)
	s.Require().NoError(err)

	for _, term := range []string{"annual", "REPORT", "nual"} {
		res, err := s.service.List(s.ctx, models.KindIncoming, query.Filter{Search: term}, page)
		s.Require().NoError(err)
		s.Require().Len(res.Items, 1, term)
		s.Equal("Annual Report", res.Items[0].Subject)
	}

	res, err := s.service.List(s.ctx, models.KindIncoming, query.Filter{Search: "kominfo"}, page)
	s.Require().NoError(err)
	s.Len(res.Items, 2, "sender is searchable")
}

func (s *MailRulesSuite) TestList_PaginationAndOrder() {
	for i := 1; i <= 7; i++ {
		f := fields("P-" + string(rune('0'+i)))
		f.MailDate = day(2025, 2, i)
		s.create(models.KindOutgoing, f)
	}

	page, err := query.NewPage(1, 3)
	s.Require().NoError(err)
	res, err := s.service.List(s.ctx, models.KindOutgoing, query.Filter{}, page)
	s.Require().NoError(err)
	s.Equal(query.Pagination{Total: 7, Page: 1, PerPage: 3, TotalPages: 3}, res.Pagination)
	s.Require().Len(res.Items, 3)
	s.Equal("P-7", res.Items[0].MailNumber)
	s.Equal("P-5", res.Items[2].MailNumber)

	beyond, err := query.NewPage(4, 3)
	s.Require().NoError(err)
	res, err = s.service.List(s.ctx, models.KindOutgoing, query.Filter{}, beyond)
	s.Require().NoError(err)
	s.Empty(res.Items)
	s.Equal(7, res.Pagination.Total)

	start, end, err := query.ParseDateRange("2025-02-02", "2025-02-04")
	s.Require().NoError(err)
	res, err = s.service.List(s.ctx, models.KindOutgoing, query.Filter{Start: start, End: end}, page)
	s.Require().NoError(err)
	s.Equal(3, res.Pagination.Total)
}

func (s *MailRulesSuite) TestList_DivisionFilter() {
	s.create(models.KindIncoming, fields("V-1"))
	hr := fields("V-2")
	hr.Division = domain.DivisionHumanResourcesAndCommunity
	s.create(models.KindIncoming, hr)

	page, _ := query.NewPage(1, 10)
	res, err := s.service.List(s.ctx, models.KindIncoming, query.Filter{Division: s.hrStaff.Scope}, page)
	s.Require().NoError(err)
	s.Require().Len(res.Items, 1)
	s.Equal("V-2", res.Items[0].MailNumber)

	res, err = s.service.List(s.ctx, models.KindIncoming, query.Filter{}, page)
	s.Require().NoError(err)
	s.Len(res.Items, 2)
}

func (s *MailRulesSuite) TestOpenAttachment() {
	m, err := s.service.Create(s.ctx, models.KindIncoming, fields("O-1"), upload("Undangan Rapat.pdf", "%PDF-1.7"), s.secretary)
	s.Require().NoError(err)

	dl, err := s.service.OpenAttachment(s.ctx, models.KindIncoming, m.ID, s.dataStaff)
	s.Require().NoError(err)
	defer dl.Content.Close()
	s.Equal("Undangan_Rapat.pdf", dl.Filename)
	data, err := io.ReadAll(dl.Content)
	s.Require().NoError(err)
	s.Equal("%PDF-1.7", string(data))

	s.Require().NoError(s.files.Delete(s.ctx, m.AttachmentPath))
	_, err = s.service.OpenAttachment(s.ctx, models.KindIncoming, m.ID, s.secretary)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *MailRulesSuite) TestListUnread() {
	first := s.create(models.KindIncoming, fields("N-1"))
	s.ctx = requestcontext.WithTime(s.ctx, s.now.Add(time.Minute))
	second := s.create(models.KindIncoming, fields("N-2"))
	hr := fields("N-3")
	hr.Division = domain.DivisionHumanResourcesAndCommunity
	s.create(models.KindIncoming, hr)

	s.Require().NoError(s.service.MarkRead(s.ctx, models.KindIncoming, first.ID, s.dataStaff))

	unread, err := s.service.ListUnread(s.ctx, models.KindIncoming, s.dataStaff.ID, s.dataStaff.Scope)
	s.Require().NoError(err)
	s.Require().Len(unread, 1)
	s.Equal(second.ID, unread[0].ID)

	all, err := s.service.ListUnread(s.ctx, models.KindIncoming, s.secretary.ID, domain.DivisionNone)
	s.Require().NoError(err)
	s.Len(all, 3)
	s.Equal(first.ID, all[len(all)-1].ID, "newest insertion first")
}

func (s *MailRulesSuite) TestSpans() {
	m := s.create(models.KindIncoming, fields("T-1"))
	_, _ = s.service.Get(s.ctx, models.KindIncoming, m.ID+100, s.secretary)

	var names []string
	for _, span := range s.spans.Ended() {
		names = append(names, span.Name())
	}
	s.Equal([]string{"mail.create", "mail.get"}, names)
}
