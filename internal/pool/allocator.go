// Package pool manages the single-use payment address pool.
package pool

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"fulfillment/internal/clock"
	"fulfillment/internal/domain"
)

var tracer = otel.Tracer("pool-allocator")

// Store is the persistence port for the allocator.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	ClaimUnused(ctx context.Context) (*domain.PoolAddress, error)
	AddressForUpdate(ctx context.Context, address string) (*domain.PoolAddress, error)
	SaveAddress(ctx context.Context, addr *domain.PoolAddress) error
	InsertAddress(ctx context.Context, address string) (bool, error)
	PoolStats(ctx context.Context) (domain.PoolStats, error)
}

// Allocator hands out addresses. Claiming locks the row and marks it
// used in the same transaction, so two concurrent allocations can never
// observe the same unused address.
type Allocator struct {
	store       Store
	file        *FileStore
	clock       clock.Clock
	allocations prometheus.Counter
	log         zerolog.Logger
}

func NewAllocator(store Store, file *FileStore, clk clock.Clock, reg prometheus.Registerer, log zerolog.Logger) *Allocator {
	allocations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pool_allocations_total",
		Help: "Pool addresses handed out.",
	})
	reg.MustRegister(allocations)

	return &Allocator{
		store:       store,
		file:        file,
		clock:       clk,
		allocations: allocations,
		log:         log.With().Str("component", "pool").Logger(),
	}
}

// Allocate claims one unused address for the given buyer and order.
// Returns ErrPoolExhausted when none are free.
func (a *Allocator) Allocate(ctx context.Context, buyerID int64, orderID uint) (string, error) {
	ctx, span := tracer.Start(ctx, "pool.Allocate")
	defer span.End()

	var address string
	err := a.store.WithTx(ctx, func(ctx context.Context) error {
		addr, err := a.store.ClaimUnused(ctx)
		if err != nil {
			return err
		}
		a.markUsed(addr, buyerID, orderID)
		if err := a.store.SaveAddress(ctx, addr); err != nil {
			return err
		}
		address = addr.Address
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	a.afterClaim(address)
	return address, nil
}

// MarkUsed claims a specific known address. It fails when the address
// does not exist or was already used, so calling it twice with the same
// address is safe: the second call reports ErrAddressUsed and changes
// nothing.
func (a *Allocator) MarkUsed(ctx context.Context, address string, buyerID int64, orderID uint) error {
	ctx, span := tracer.Start(ctx, "pool.MarkUsed")
	defer span.End()

	err := a.store.WithTx(ctx, func(ctx context.Context) error {
		addr, err := a.store.AddressForUpdate(ctx, address)
		if err != nil {
			return err
		}
		if addr.IsUsed {
			return domain.ErrAddressUsed
		}
		a.markUsed(addr, buyerID, orderID)
		return a.store.SaveAddress(ctx, addr)
	})
	if err != nil {
		span.RecordError(err)
		return err
	}

	a.afterClaim(address)
	return nil
}

// Replenish bulk-inserts addresses, skipping any already known, and
// returns how many were new.
func (a *Allocator) Replenish(ctx context.Context, addresses []string) (int, error) {
	inserted := 0
	for _, address := range addresses {
		created, err := a.store.InsertAddress(ctx, address)
		if err != nil {
			return inserted, err
		}
		if created {
			inserted++
		}
	}
	return inserted, nil
}

// ReplenishFromFile imports every address currently in the backing
// file. Called at startup and by the file watcher.
func (a *Allocator) ReplenishFromFile(ctx context.Context) (int, error) {
	addresses, err := a.file.Load()
	if err != nil {
		return 0, err
	}
	inserted, err := a.Replenish(ctx, addresses)
	if err != nil {
		return inserted, err
	}
	if inserted > 0 {
		a.log.Info().Int("count", inserted).Msg("loaded new pool addresses from file")
	}
	return inserted, nil
}

// Add inserts new addresses and appends the genuinely new ones to the
// backing file.
func (a *Allocator) Add(ctx context.Context, addresses []string) (int, error) {
	fresh := make([]string, 0, len(addresses))
	for _, address := range addresses {
		created, err := a.store.InsertAddress(ctx, address)
		if err != nil {
			return len(fresh), err
		}
		if created {
			fresh = append(fresh, address)
		}
	}
	if err := a.file.Append(fresh); err != nil {
		return len(fresh), err
	}
	return len(fresh), nil
}

// Stats reports the pool totals.
func (a *Allocator) Stats(ctx context.Context) (domain.PoolStats, error) {
	return a.store.PoolStats(ctx)
}

func (a *Allocator) markUsed(addr *domain.PoolAddress, buyerID int64, orderID uint) {
	now := a.clock.Now()
	addr.IsUsed = true
	addr.UsedBy = &buyerID
	addr.UsedAt = &now
	addr.OrderID = &orderID
}

// afterClaim removes a consumed address from the backing file so it is
// never re-imported. Best-effort: the database already holds the used
// flag, so a failed rewrite only risks a redundant skip on the next
// reload.
func (a *Allocator) afterClaim(address string) {
	if err := a.file.Remove(address); err != nil {
		a.log.Warn().Err(err).Str("address", address).Msg("failed to remove address from backing file")
	}
	a.allocations.Inc()
}
