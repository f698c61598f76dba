package handler

import (
	"time"

	"correspondence/internal/attachment"
	"correspondence/internal/mail/models"
	"correspondence/internal/query"
	"correspondence/pkg/domain"
)

// MailResponse is the public view of a record. The handled date is keyed by
// kind: received_date for incoming mail, sent_date for outgoing mail. The
// storage path is never exposed; attachment_name is the uploaded file name.
type MailResponse struct {
	ID             int64     `json:"id"`
	Kind           string    `json:"kind"`
	MailNumber     string    `json:"mail_number"`
	MailDate       string    `json:"mail_date"`
	ReceivedDate   string    `json:"received_date,omitempty"`
	SentDate       string    `json:"sent_date,omitempty"`
	Sender         string    `json:"sender,omitempty"`
	AddressedTo    string    `json:"addressed_to"`
	Subject        string    `json:"subject"`
	Notes          string    `json:"notes"`
	Division       string    `json:"division"`
	AttachmentName string    `json:"attachment_name"`
	InsertedBy     *int64    `json:"inserted_by"`
	InsertedAt     time.Time `json:"inserted_at"`
	ReadBy         []int64   `json:"read_by"`
	IsRead         bool      `json:"is_read"`
}

type MailListResponse struct {
	Items      []MailResponse   `json:"items"`
	Pagination query.Pagination `json:"pagination"`
}

// toMailResponse renders m for viewer, who decides is_read.
func toMailResponse(m *models.Mail, viewer domain.UserID) MailResponse {
	resp := MailResponse{
		ID:             int64(m.ID),
		Kind:           m.Kind.String(),
		MailNumber:     m.MailNumber,
		MailDate:       m.MailDate.Format(models.DateLayout),
		Sender:         m.Sender,
		AddressedTo:    m.AddressedTo,
		Subject:        m.Subject,
		Notes:          m.Notes,
		Division:       m.Division.String(),
		AttachmentName: attachment.DisplayName(m.AttachmentPath),
		InsertedAt:     m.InsertedAt,
		ReadBy:         make([]int64, 0, len(m.ReadBy)),
		IsRead:         m.IsReadBy(viewer),
	}
	handled := m.HandledDate.Format(models.DateLayout)
	if m.Kind == models.KindIncoming {
		resp.ReceivedDate = handled
	} else {
		resp.SentDate = handled
	}
	if m.InsertedBy != nil {
		id := int64(*m.InsertedBy)
		resp.InsertedBy = &id
	}
	for _, u := range m.ReadBy {
		resp.ReadBy = append(resp.ReadBy, int64(u))
	}
	return resp
}
