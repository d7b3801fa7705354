package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// StatusWatcher polls the gateway for asynchronous payment methods (PIX)
// whose confirmation arrives out of band. Each watched link gets one
// cancellable task; exactly one of confirmation, explicit Stop or timeout
// terminates it. The public poll endpoint stays a stateless read, so the
// watcher only shortens confirmation latency when the payer closes the tab
// and the webhook is delayed.
type StatusWatcher struct {
	payments *PaymentService
	interval time.Duration
	timeout  time.Duration

	mu      sync.Mutex
	watches map[uuid.UUID]*watch
}

type watch struct {
	cancel context.CancelFunc
}

// NewStatusWatcher creates a watcher with the given poll cadence and bound.
func NewStatusWatcher(payments *PaymentService, interval, timeout time.Duration) *StatusWatcher {
	return &StatusWatcher{
		payments: payments,
		interval: interval,
		timeout:  timeout,
		watches:  make(map[uuid.UUID]*watch),
	}
}

// Watch starts polling the gateway for the given link. A link already being
// watched is left alone.
func (w *StatusWatcher) Watch(linkID uuid.UUID, gatewayPaymentID string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, exists := w.watches[linkID]; exists {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	wch := &watch{cancel: cancel}
	w.watches[linkID] = wch

	go w.run(ctx, wch, linkID, gatewayPaymentID)
}

// Stop cancels the watch for a link. Stopping an unwatched link is a no-op.
func (w *StatusWatcher) Stop(linkID uuid.UUID) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if wch, exists := w.watches[linkID]; exists {
		wch.cancel()
		delete(w.watches, linkID)
	}
}

// Watching reports whether a link currently has an active watch.
func (w *StatusWatcher) Watching(linkID uuid.UUID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, exists := w.watches[linkID]
	return exists
}

// finish removes the task's own registration; a newer watch registered for
// the same link after an external Stop is left untouched.
func (w *StatusWatcher) finish(linkID uuid.UUID, wch *watch) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if current, exists := w.watches[linkID]; exists && current == wch {
		current.cancel()
		delete(w.watches, linkID)
	}
}

func (w *StatusWatcher) run(ctx context.Context, wch *watch, linkID uuid.UUID, gatewayPaymentID string) {
	defer w.finish(linkID, wch)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("link_id", linkID.String()).Msg("payment watch ended without confirmation")
			return
		case <-ticker.C:
			done, err := w.payments.RefreshStatus(ctx, linkID, gatewayPaymentID)
			if err != nil {
				// Transient gateway or storage trouble; the next tick reads
				// again and the webhook remains the fallback channel.
				log.Warn().Err(err).Str("link_id", linkID.String()).Msg("payment watch poll failed")
				continue
			}
			if done {
				log.Info().Str("link_id", linkID.String()).Msg("payment watch finished")
				return
			}
		}
	}
}
