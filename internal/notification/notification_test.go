package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	mailmodels "correspondence/internal/mail/models"
	mailstore "correspondence/internal/mail/store"
	"correspondence/internal/notification/mocks"
	"correspondence/pkg/domain"
	dErrors "correspondence/pkg/domain-errors"
	"correspondence/pkg/requestcontext"
)

func at(hour int) time.Time {
	return time.Date(2025, 3, 10, hour, 0, 0, 0, time.UTC)
}

func TestUnreadFor_MergesAndOrders(t *testing.T) {
	ctrl := gomock.NewController(t)
	principals := mocks.NewMockPrincipalLoader(ctrl)
	source := mocks.NewMockMailSource(ctrl)
	svc := New(principals, source, nil)
	ctx := context.Background()

	principals.EXPECT().LoadPrincipal(ctx, domain.UserID(4)).
		Return(requestcontext.Caller{ID: 4, Role: domain.RoleStaff, Division: domain.DivisionDataAndInformation}, nil)
	source.EXPECT().ListUnread(ctx, mailmodels.KindIncoming, domain.UserID(4), domain.DivisionDataAndInformation).
		Return([]*mailmodels.Mail{
			{ID: 3, Kind: mailmodels.KindIncoming, Sender: "Dinas Kominfo", Subject: "Permintaan Data", InsertedAt: at(11), Division: domain.DivisionDataAndInformation},
			{ID: 1, Kind: mailmodels.KindIncoming, Sender: "BPS", Subject: "Sensus", InsertedAt: at(8), Division: domain.DivisionDataAndInformation},
		}, nil)
	source.EXPECT().ListUnread(ctx, mailmodels.KindOutgoing, domain.UserID(4), domain.DivisionDataAndInformation).
		Return([]*mailmodels.Mail{
			{ID: 2, Kind: mailmodels.KindOutgoing, AddressedTo: "Bupati", Subject: "Laporan", InsertedAt: at(9), Division: domain.DivisionDataAndInformation},
			{ID: 5, Kind: mailmodels.KindOutgoing, AddressedTo: "Camat", Subject: "Balasan", InsertedAt: at(8), Division: domain.DivisionDataAndInformation},
		}, nil)

	feed, err := svc.UnreadFor(ctx, 4)
	require.NoError(t, err)

	var ids []string
	for _, n := range feed {
		ids = append(ids, n.ID)
		assert.False(t, n.IsRead)
	}
	assert.Equal(t, []string{"in-3", "out-2", "in-1", "out-5"}, ids, "equal times keep incoming first")

	assert.Equal(t, "New Incoming Mail", feed[0].Title)
	assert.Equal(t, "Mail from Dinas Kominfo regarding 'Permintaan Data' has been received.", feed[0].Message)
	assert.Equal(t, "New Outgoing Mail", feed[1].Title)
	assert.Equal(t, "Mail to Bupati regarding 'Laporan' has been created.", feed[1].Message)
	assert.Equal(t, domain.MailID(2), feed[1].MailID)
}

func TestUnreadFor_Errors(t *testing.T) {
	ctrl := gomock.NewController(t)
	principals := mocks.NewMockPrincipalLoader(ctrl)
	source := mocks.NewMockMailSource(ctrl)
	svc := New(principals, source, nil)
	ctx := context.Background()

	principals.EXPECT().LoadPrincipal(ctx, domain.UserID(9)).Return(requestcontext.Caller{}, dErrors.New(dErrors.CodeNotFound, "user not found"))
	_, err := svc.UnreadFor(ctx, 9)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

	principals.EXPECT().LoadPrincipal(ctx, domain.UserID(1)).Return(requestcontext.Caller{ID: 1, Role: domain.RoleSecretary}, nil)
	source.EXPECT().ListUnread(ctx, mailmodels.KindIncoming, domain.UserID(1), domain.DivisionNone).Return(nil, errors.New("db down"))
	_, err = svc.UnreadFor(ctx, 1)
	assert.Error(t, err)
}

func TestUnreadFor_ExcludesReadMail(t *testing.T) {
	ctx := context.Background()
	store := mailstore.NewInMemory()
	author := domain.UserID(1)
	for i, division := range []domain.Division{domain.DivisionTechnicalAndLegal, domain.DivisionTechnicalAndLegal, domain.DivisionLogisticsAndFinance} {
		require.NoError(t, store.Create(ctx, &mailmodels.Mail{
			Kind:        mailmodels.KindIncoming,
			MailNumber:  "N-" + string(rune('1'+i)),
			Sender:      "Sender",
			Subject:     "Subject",
			AddressedTo: "Kepala",
			Division:    division,
			InsertedBy:  &author,
			InsertedAt:  at(8 + i),
		}))
	}
	_, err := store.MarkRead(ctx, mailmodels.KindIncoming, 1, 6, at(12))
	require.NoError(t, err)

	ctrl := gomock.NewController(t)
	principals := mocks.NewMockPrincipalLoader(ctrl)
	principals.EXPECT().LoadPrincipal(ctx, domain.UserID(6)).
		Return(requestcontext.Caller{ID: 6, Role: domain.RoleSubDivisionHead, Division: domain.DivisionTechnicalAndLegal}, nil)
	principals.EXPECT().LoadPrincipal(ctx, domain.UserID(1)).
		Return(requestcontext.Caller{ID: 1, Role: domain.RoleSecretary}, nil)
	svc := New(principals, store, nil)

	feed, err := svc.UnreadFor(ctx, 6)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, "in-2", feed[0].ID)

	feed, err = svc.UnreadFor(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, feed, 3)
}
