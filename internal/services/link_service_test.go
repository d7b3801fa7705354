package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/example/paylink/internal/models"
)

func TestCreateLink(t *testing.T) {
	db := setupTestDB(t)
	merchant := createTestMerchant(t, db)
	svc := NewLinkService(db, 30)

	link, err := svc.CreateLink(context.Background(), merchant.ID, "Consultoria", decimal.RequireFromString("25.50"))
	require.NoError(t, err)

	assert.Equal(t, models.LinkStatusPending, link.Status)
	assert.Nil(t, link.PaidAt)
	assert.True(t, link.Amount.Equal(decimal.RequireFromString("25.50")))
	assert.Equal(t, merchant.ID, link.MerchantID)

	stored := reloadLink(t, db, link.ID)
	assert.Equal(t, models.LinkStatusPending, stored.Status)
}

func TestCreateLinkValidation(t *testing.T) {
	db := setupTestDB(t)
	merchant := createTestMerchant(t, db)
	svc := NewLinkService(db, 30)
	ctx := context.Background()

	var validationErr *ValidationError

	_, err := svc.CreateLink(ctx, merchant.ID, "", decimal.RequireFromString("10"))
	require.ErrorAs(t, err, &validationErr)

	_, err = svc.CreateLink(ctx, merchant.ID, "   ", decimal.RequireFromString("10"))
	require.ErrorAs(t, err, &validationErr)

	_, err = svc.CreateLink(ctx, merchant.ID, "Pedido", decimal.Zero)
	require.ErrorAs(t, err, &validationErr)

	_, err = svc.CreateLink(ctx, merchant.ID, "Pedido", decimal.RequireFromString("-5"))
	require.ErrorAs(t, err, &validationErr)

	_, err = svc.CreateLink(ctx, uuid.New(), "Pedido", decimal.RequireFromString("10"))
	require.ErrorIs(t, err, ErrMerchantNotFound)
}

func TestGetLinkNotFound(t *testing.T) {
	db := setupTestDB(t)
	svc := NewLinkService(db, 30)

	_, err := svc.GetLink(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrLinkNotFound)
}

func TestGetLinkLazyExpiry(t *testing.T) {
	db := setupTestDB(t)
	merchant := createTestMerchant(t, db)
	svc := NewLinkService(db, 30)
	link := createTestLink(t, db, merchant.ID, "10.00")

	backdate(t, db, link.ID, 31*24*time.Hour)

	got, err := svc.GetLink(context.Background(), link.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LinkStatusExpired, got.Status)

	// The transition is persisted, not just reported.
	stored := reloadLink(t, db, link.ID)
	assert.Equal(t, models.LinkStatusExpired, stored.Status)
}

func TestGetLinkFreshStaysPending(t *testing.T) {
	db := setupTestDB(t)
	merchant := createTestMerchant(t, db)
	svc := NewLinkService(db, 30)
	link := createTestLink(t, db, merchant.ID, "10.00")

	got, err := svc.GetLink(context.Background(), link.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LinkStatusPending, got.Status)
}

func TestCancelLink(t *testing.T) {
	db := setupTestDB(t)
	merchant := createTestMerchant(t, db)
	svc := NewLinkService(db, 30)
	ctx := context.Background()
	link := createTestLink(t, db, merchant.ID, "10.00")

	require.NoError(t, svc.CancelLink(ctx, link.ID, merchant.ID))
	assert.Equal(t, models.LinkStatusCancelled, reloadLink(t, db, link.ID).Status)

	// Double cancellation is an idempotent success.
	require.NoError(t, svc.CancelLink(ctx, link.ID, merchant.ID))
}

func TestCancelLinkPermission(t *testing.T) {
	db := setupTestDB(t)
	owner := createTestMerchant(t, db)
	stranger := createTestMerchant(t, db)
	svc := NewLinkService(db, 30)
	link := createTestLink(t, db, owner.ID, "10.00")

	err := svc.CancelLink(context.Background(), link.ID, stranger.ID)
	require.ErrorIs(t, err, ErrPermission)
	assert.Equal(t, models.LinkStatusPending, reloadLink(t, db, link.ID).Status)
}

func TestCancelLinkTerminalStates(t *testing.T) {
	db := setupTestDB(t)
	merchant := createTestMerchant(t, db)
	svc := NewLinkService(db, 30)
	ctx := context.Background()

	paid := createTestLink(t, db, merchant.ID, "10.00")
	markPaid(t, db, paid.ID, "MP1")
	require.ErrorIs(t, svc.CancelLink(ctx, paid.ID, merchant.ID), ErrInvalidState)

	expired := createTestLink(t, db, merchant.ID, "10.00")
	require.NoError(t, db.Model(&models.PaymentLink{}).Where("id = ?", expired.ID).Update("status", models.LinkStatusExpired).Error)
	require.ErrorIs(t, svc.CancelLink(ctx, expired.ID, merchant.ID), ErrInvalidState)
}

func TestListLinks(t *testing.T) {
	db := setupTestDB(t)
	merchant := createTestMerchant(t, db)
	other := createTestMerchant(t, db)
	svc := NewLinkService(db, 30)

	first := createTestLink(t, db, merchant.ID, "10.00")
	backdate(t, db, first.ID, 48*time.Hour)

	paid := createTestLink(t, db, merchant.ID, "25.50")
	markPaid(t, db, paid.ID, "MP123")

	stale := createTestLink(t, db, merchant.ID, "7.00")
	backdate(t, db, stale.ID, 31*24*time.Hour)

	createTestLink(t, db, other.ID, "99.00")

	links, stats, err := svc.ListLinks(context.Background(), merchant.ID, 0, 0)
	require.NoError(t, err)

	require.Len(t, links, 3)
	// Newest first; the stale link was expired by the bulk lazy-expiry pass.
	assert.Equal(t, paid.ID, links[0].ID)
	assert.Equal(t, first.ID, links[1].ID)
	assert.Equal(t, stale.ID, links[2].ID)

	assert.Equal(t, int64(3), stats.TotalLinks)
	assert.Equal(t, int64(1), stats.PaidLinks)
	assert.Equal(t, int64(1), stats.PendingLinks)
	assert.True(t, stats.TotalReceived.Equal(decimal.RequireFromString("25.50")),
		"total received %s", stats.TotalReceived)

	assert.Equal(t, models.LinkStatusExpired, reloadLink(t, db, stale.ID).Status)
}

func TestListLinksUnknownMerchant(t *testing.T) {
	db := setupTestDB(t)
	svc := NewLinkService(db, 30)

	_, _, err := svc.ListLinks(context.Background(), uuid.New(), 0, 0)
	require.ErrorIs(t, err, ErrMerchantNotFound)
}

func TestListLinksPagination(t *testing.T) {
	db := setupTestDB(t)
	merchant := createTestMerchant(t, db)
	svc := NewLinkService(db, 30)

	for i := 0; i < 5; i++ {
		createTestLink(t, db, merchant.ID, "10.00")
	}

	links, stats, err := svc.ListLinks(context.Background(), merchant.ID, 2, 0)
	require.NoError(t, err)
	assert.Len(t, links, 2)
	assert.Equal(t, int64(5), stats.TotalLinks)
}

func backdate(t *testing.T, db *gorm.DB, linkID uuid.UUID, age time.Duration) {
	t.Helper()
	require.NoError(t, db.Model(&models.PaymentLink{}).
		Where("id = ?", linkID).
		Update("created_at", time.Now().Add(-age)).Error)
}

func markPaid(t *testing.T, db *gorm.DB, linkID uuid.UUID, paymentID string) {
	t.Helper()
	now := time.Now()
	require.NoError(t, db.Model(&models.PaymentLink{}).
		Where("id = ?", linkID).
		Updates(map[string]any{
			"status":     models.LinkStatusPaid,
			"payment_id": paymentID,
			"paid_at":    now,
		}).Error)
}
