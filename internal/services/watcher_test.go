package services

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/paylink/internal/gateway"
	"github.com/example/paylink/internal/models"
)

func TestWatcherConfirmsOnPaid(t *testing.T) {
	db := setupTestDB(t)
	merchant := createTestMerchant(t, db)
	fake := &fakeGateway{
		createResp: pendingPixPayment("MP55"),
		getQueue: []*gateway.Payment{
			pendingPixPayment("MP55"),
			approvedPaymentPix("MP55"),
		},
	}
	_, payments := newBridge(db, fake)
	watcher := NewStatusWatcher(payments, 10*time.Millisecond, time.Second)
	link := createTestLink(t, db, merchant.ID, "10.00")

	_, err := payments.ProcessPayment(context.Background(), link.ID, &PaymentAttempt{
		Amount:          decimal.RequireFromString("10.00"),
		PaymentMethodID: "pix",
	})
	require.NoError(t, err)

	watcher.Watch(link.ID, "MP55")
	require.True(t, watcher.Watching(link.ID))

	require.Eventually(t, func() bool {
		return reloadLink(t, db, link.ID).Status == models.LinkStatusPaid
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return !watcher.Watching(link.ID)
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, int64(1), countNotifications(t, db, link.ID))
}

func TestWatcherStop(t *testing.T) {
	db := setupTestDB(t)
	merchant := createTestMerchant(t, db)
	fake := &fakeGateway{getResp: pendingPixPayment("MP55")}
	_, payments := newBridge(db, fake)
	watcher := NewStatusWatcher(payments, 10*time.Millisecond, time.Minute)
	link := createTestLink(t, db, merchant.ID, "10.00")

	watcher.Watch(link.ID, "MP55")
	require.True(t, watcher.Watching(link.ID))

	watcher.Stop(link.ID)
	assert.False(t, watcher.Watching(link.ID))

	// A stopped watch never confirms.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, models.LinkStatusPending, reloadLink(t, db, link.ID).Status)
}

func TestWatcherTimeout(t *testing.T) {
	db := setupTestDB(t)
	merchant := createTestMerchant(t, db)
	fake := &fakeGateway{getResp: pendingPixPayment("MP55")}
	_, payments := newBridge(db, fake)
	watcher := NewStatusWatcher(payments, 5*time.Millisecond, 30*time.Millisecond)
	link := createTestLink(t, db, merchant.ID, "10.00")

	watcher.Watch(link.ID, "MP55")

	require.Eventually(t, func() bool {
		return !watcher.Watching(link.ID)
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, models.LinkStatusPending, reloadLink(t, db, link.ID).Status)
}

func TestWatcherStopsOnTerminalLink(t *testing.T) {
	db := setupTestDB(t)
	merchant := createTestMerchant(t, db)
	fake := &fakeGateway{getResp: pendingPixPayment("MP55")}
	_, payments := newBridge(db, fake)
	watcher := NewStatusWatcher(payments, 10*time.Millisecond, time.Minute)
	link := createTestLink(t, db, merchant.ID, "10.00")
	markPaid(t, db, link.ID, "MP55")

	watcher.Watch(link.ID, "MP55")

	require.Eventually(t, func() bool {
		return !watcher.Watching(link.ID)
	}, time.Second, 5*time.Millisecond)

	// Already-terminal links need no gateway traffic.
	_, gets := fake.calls()
	assert.Zero(t, gets)
}

func TestWatcherDoubleWatchIsNoOp(t *testing.T) {
	db := setupTestDB(t)
	merchant := createTestMerchant(t, db)
	fake := &fakeGateway{getResp: pendingPixPayment("MP55")}
	_, payments := newBridge(db, fake)
	watcher := NewStatusWatcher(payments, 10*time.Millisecond, time.Minute)
	link := createTestLink(t, db, merchant.ID, "10.00")

	watcher.Watch(link.ID, "MP55")
	watcher.Watch(link.ID, "MP55")
	assert.True(t, watcher.Watching(link.ID))

	watcher.Stop(link.ID)
	assert.False(t, watcher.Watching(link.ID))
}
