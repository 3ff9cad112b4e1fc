// Package sweeper removes orphaned bundle add-ons left behind when a main
// product leaves the cart through a path the proxy does not intercept.
package sweeper

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"bundle-proxy/internal/cart"
	"bundle-proxy/internal/model"
	"bundle-proxy/internal/notify"
	"bundle-proxy/internal/reconcile"
)

const (
	// DefaultInterval is the periodic sweep cadence while a cart page is open.
	DefaultInterval = 30 * time.Second

	// DefaultSettle is how long to wait after an observed cart mutation before
	// sweeping, so the storefront has finished its own follow-up requests.
	DefaultSettle = 1500 * time.Millisecond
)

// Sweeper runs orphan reconciliation passes against the live cart.
type Sweeper struct {
	svc      cart.Service
	hub      *notify.Hub
	logger   *slog.Logger
	settle   time.Duration
	inFlight atomic.Bool
}

// New creates a sweeper. A zero settle duration selects DefaultSettle.
func New(svc cart.Service, hub *notify.Hub, settle time.Duration, logger *slog.Logger) *Sweeper {
	if settle <= 0 {
		settle = DefaultSettle
	}
	return &Sweeper{
		svc:    svc,
		hub:    hub,
		logger: logger,
		settle: settle,
	}
}

// Trigger runs one sweep pass now. Overlapping triggers are dropped rather
// than queued: the flag is a debounce, not a lock, and a dropped pass is
// harmless because the next one re-reads the cart from scratch.
func (s *Sweeper) Trigger(ctx context.Context) {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.logger.Debug("sweep already in flight, skipping")
		return
	}
	defer s.inFlight.Store(false)

	s.sweep(ctx)
}

// ObserveCartMutation schedules a sweep after the settle delay. Called when
// the proxy sees a cart change request it did not initiate, such as a
// quantity update or line removal from the cart page.
func (s *Sweeper) ObserveCartMutation(ctx context.Context) {
	go func() {
		select {
		case <-time.After(s.settle):
			s.Trigger(ctx)
		case <-ctx.Done():
		}
	}()
}

// Run sweeps on a fixed interval until the context is cancelled. Meant to be
// active only while a cart or checkout page is open.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Trigger(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	snapshot, err := s.svc.GetCart(ctx)
	if err != nil {
		s.logger.Error("sweep: cart read failed", "error", err)
		return
	}

	orphans := reconcile.CollectOrphans(snapshot)
	updates := reconcile.OrphanUpdates(orphans)
	if updates == nil {
		return
	}

	if _, err := s.svc.UpdateQuantities(ctx, updates); err != nil {
		// Leave the orphans for the next pass. Remediation is idempotent, so
		// no backoff or retry bookkeeping is needed.
		s.logger.Error("sweep: orphan removal failed", "lines", len(updates), "error", err)
		return
	}

	s.logger.Info("sweep: removed orphaned add-ons", "lines", len(updates), "groups", orphanGroups(orphans))
	s.hub.Publish(notify.RemovedNotice(len(updates)))
	s.hub.Publish(notify.CartRefresh())
}

// orphanGroups counts the distinct bundle groups among orphaned lines.
func orphanGroups(orphans []cart.Line) int {
	groups := make(map[string]struct{}, len(orphans))
	for i := range orphans {
		groups[model.GroupIDOf(orphans[i].Properties)] = struct{}{}
	}
	return len(groups)
}
