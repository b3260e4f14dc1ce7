package inventory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"fulfillment/internal/clock"
	"fulfillment/internal/domain"
)

var tracer = otel.Tracer("inventory-engine")

// PoolReservationWindow is the fixed hold window for address-pool
// orders. Settlement on that rail is slow, so the window is long.
const PoolReservationWindow = 7 * 24 * time.Hour

// DefaultCashTimeoutHours applies when the runtime setting is absent.
const DefaultCashTimeoutHours = 24

// Line is one requested item of a reservation.
type Line struct {
	ItemName string
	Quantity int
}

// Stats is a point-in-time ledger snapshot for one item.
type Stats struct {
	Stock     int
	Reserved  int
	Available int
}

// Engine owns every mutation of the stock ledger. All four operations
// run inside a row-locked transaction: order row first, then item rows
// sorted by name, so that concurrent orders touching overlapping items
// always acquire locks in the same order.
type Engine struct {
	store    Store
	settings Settings
	cache    CacheInvalidator
	events   EventSink
	clock    clock.Clock
	metrics  *Metrics
	log      zerolog.Logger
}

func NewEngine(store Store, settings Settings, cache CacheInvalidator, events EventSink, clk clock.Clock, metrics *Metrics, log zerolog.Logger) *Engine {
	return &Engine{
		store:    store,
		settings: settings,
		cache:    cache,
		events:   events,
		clock:    clk,
		metrics:  metrics,
		log:      log.With().Str("component", "inventory").Logger(),
	}
}

// Reserve places an all-or-nothing hold on every line of the order and
// stamps the reservation deadline by payment method. On any shortfall
// the whole transaction rolls back and the error names the offending
// item.
func (e *Engine) Reserve(ctx context.Context, orderID uint, lines []Line, method domain.PaymentMethod) error {
	ctx, span := tracer.Start(ctx, "inventory.Reserve")
	defer span.End()
	span.SetAttributes(attribute.Int("order.id", int(orderID)), attribute.Int("lines", len(lines)))

	for _, line := range lines {
		if line.Quantity <= 0 {
			return domain.ErrInvalidQuantity
		}
	}
	// An order may list the same item on several lines; the check and
	// the increment must both see the summed quantity.
	merged := coalescedLines(lines)

	touched := make([]string, 0, len(merged))

	err := e.store.WithTx(ctx, func(ctx context.Context) error {
		order, err := e.store.OrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status.Terminal() {
			return domain.ErrOrderTerminal
		}
		if !order.CanTransition(domain.OrderStatusReserved) {
			return domain.ErrInvalidTransition
		}

		// Lock and check every item before mutating anything, so the
		// availability check runs against one consistent snapshot.
		items := make([]*domain.Item, 0, len(merged))
		for _, line := range merged {
			item, err := e.store.ItemForUpdate(ctx, line.ItemName)
			if err != nil {
				return errors.Wrapf(err, "item %q", line.ItemName)
			}
			if available := item.Available(); available < line.Quantity {
				return &domain.InsufficientStockError{
					ItemName:  line.ItemName,
					Available: available,
					Requested: line.Quantity,
				}
			}
			items = append(items, item)
		}

		for i, line := range merged {
			item := items[i]
			item.ReservedQuantity += line.Quantity
			if err := e.store.SaveItem(ctx, item); err != nil {
				return err
			}
			entry := &domain.AuditEntry{
				ItemName:       line.ItemName,
				ChangeType:     domain.AuditReserve,
				QuantityChange: line.Quantity,
				OrderID:        &orderID,
				Comment:        fmt.Sprintf("reserved for order %s (%s payment)", orderRef(order), method),
			}
			if err := e.store.AppendAudit(ctx, entry); err != nil {
				return err
			}
			touched = append(touched, line.ItemName)
		}

		deadline := e.clock.Now().Add(e.reservationWindow(ctx, method))
		return e.store.SetOrderReservation(ctx, orderID, domain.OrderStatusReserved, deadline)
	})
	if err != nil {
		span.RecordError(err)
		return err
	}

	e.afterMutation(ctx, domain.AuditReserve, touched)
	e.metrics.Reservations.Inc()
	for _, line := range merged {
		e.events.Publish(ctx, StockEvent{Type: domain.AuditReserve, ItemName: line.ItemName, Quantity: line.Quantity})
	}
	return nil
}

// Release hands the order's held quantity back to the ledger and clears
// the deadline. Releasing more than is currently held floors the
// reserved count at zero; the clamp is recorded as a manual correction
// so double releases stay visible in the audit trail.
func (e *Engine) Release(ctx context.Context, orderID uint, reason string) error {
	ctx, span := tracer.Start(ctx, "inventory.Release")
	defer span.End()
	span.SetAttributes(attribute.Int("order.id", int(orderID)))

	touched := make([]string, 0, 4)
	released := make([]Line, 0, 4)

	err := e.store.WithTx(ctx, func(ctx context.Context) error {
		order, err := e.store.OrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}

		for _, oi := range sortedOrderItems(order.Items) {
			item, err := e.store.ItemForUpdate(ctx, oi.ItemName)
			if err != nil {
				if errors.Is(err, domain.ErrItemNotFound) {
					// The item was removed from the catalog while held.
					// Nothing left to release for it.
					continue
				}
				return err
			}

			item.ReservedQuantity -= oi.Quantity
			clamped := false
			if item.ReservedQuantity < 0 {
				item.ReservedQuantity = 0
				clamped = true
			}
			if err := e.store.SaveItem(ctx, item); err != nil {
				return err
			}

			entry := &domain.AuditEntry{
				ItemName:       oi.ItemName,
				ChangeType:     domain.AuditRelease,
				QuantityChange: -oi.Quantity,
				OrderID:        &orderID,
				Comment:        fmt.Sprintf("%s - %s", reason, orderRef(order)),
			}
			if err := e.store.AppendAudit(ctx, entry); err != nil {
				return err
			}
			if clamped {
				correction := &domain.AuditEntry{
					ItemName:       oi.ItemName,
					ChangeType:     domain.AuditManual,
					QuantityChange: 0,
					OrderID:        &orderID,
					Comment:        "reserved quantity clamped to zero on release",
				}
				if err := e.store.AppendAudit(ctx, correction); err != nil {
					return err
				}
				e.log.Warn().Str("item", oi.ItemName).Uint("order_id", orderID).
					Msg("reserved quantity went negative on release, clamped")
			}

			touched = append(touched, oi.ItemName)
			released = append(released, Line{ItemName: oi.ItemName, Quantity: oi.Quantity})
		}

		return e.store.ClearOrderDeadline(ctx, orderID)
	})
	if err != nil {
		span.RecordError(err)
		return err
	}

	e.afterMutation(ctx, domain.AuditRelease, touched)
	e.metrics.Releases.Inc()
	for _, line := range released {
		e.events.Publish(ctx, StockEvent{Type: domain.AuditRelease, ItemName: line.ItemName, Quantity: line.Quantity, Reason: reason})
	}
	return nil
}

// Deduct permanently removes the order's quantities from both on-hand
// and reserved stock upon confirmed fulfillment. Driving on-hand stock
// negative aborts the transaction with an integrity error: it means the
// reservation invariant was violated upstream and needs an operator,
// not a retry. Reservation slack is tolerated and clamped.
func (e *Engine) Deduct(ctx context.Context, orderID uint, actorID int64) error {
	ctx, span := tracer.Start(ctx, "inventory.Deduct")
	defer span.End()
	span.SetAttributes(attribute.Int("order.id", int(orderID)))

	touched := make([]string, 0, 4)
	deducted := make([]Line, 0, 4)

	err := e.store.WithTx(ctx, func(ctx context.Context) error {
		order, err := e.store.OrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status.Terminal() {
			return domain.ErrOrderTerminal
		}
		if order.Status == domain.OrderStatusPending {
			return domain.ErrNeverReserved
		}

		for _, oi := range sortedOrderItems(order.Items) {
			item, err := e.store.ItemForUpdate(ctx, oi.ItemName)
			if err != nil {
				return errors.Wrapf(err, "item %q", oi.ItemName)
			}

			if item.StockQuantity-oi.Quantity < 0 {
				return &domain.IntegrityError{
					ItemName: oi.ItemName,
					Stock:    item.StockQuantity,
					Deducted: oi.Quantity,
				}
			}
			item.StockQuantity -= oi.Quantity
			item.ReservedQuantity -= oi.Quantity
			if item.ReservedQuantity < 0 {
				item.ReservedQuantity = 0
			}
			if err := e.store.SaveItem(ctx, item); err != nil {
				return err
			}

			entry := &domain.AuditEntry{
				ItemName:       oi.ItemName,
				ChangeType:     domain.AuditDeduct,
				QuantityChange: -oi.Quantity,
				OrderID:        &orderID,
				ActorID:        &actorID,
				Comment:        fmt.Sprintf("order confirmed: %s", orderRef(order)),
			}
			if err := e.store.AppendAudit(ctx, entry); err != nil {
				return err
			}

			touched = append(touched, oi.ItemName)
			deducted = append(deducted, Line{ItemName: oi.ItemName, Quantity: oi.Quantity})
		}

		return e.store.ClearOrderDeadline(ctx, orderID)
	})
	if err != nil {
		span.RecordError(err)
		if domain.IsIntegrity(err) {
			e.log.Error().Err(err).Uint("order_id", orderID).
				Msg("data-integrity fault: deduction aborted")
			e.metrics.IntegrityFaults.Inc()
		}
		return err
	}

	e.afterMutation(ctx, domain.AuditDeduct, touched)
	e.metrics.Deductions.Inc()
	for _, line := range deducted {
		e.events.Publish(ctx, StockEvent{Type: domain.AuditDeduct, ItemName: line.ItemName, Quantity: line.Quantity})
	}
	return nil
}

// Restock adds quantity to a single item's on-hand stock.
func (e *Engine) Restock(ctx context.Context, name string, qty int, actorID int64, comment string) error {
	ctx, span := tracer.Start(ctx, "inventory.Restock")
	defer span.End()
	span.SetAttributes(attribute.String("item.name", name), attribute.Int("item.quantity", qty))

	if qty <= 0 {
		return domain.ErrInvalidQuantity
	}
	if comment == "" {
		comment = "stock added"
	}

	err := e.store.WithTx(ctx, func(ctx context.Context) error {
		item, err := e.store.ItemForUpdate(ctx, name)
		if err != nil {
			return err
		}
		item.StockQuantity += qty
		if err := e.store.SaveItem(ctx, item); err != nil {
			return err
		}
		return e.store.AppendAudit(ctx, &domain.AuditEntry{
			ItemName:       name,
			ChangeType:     domain.AuditAdd,
			QuantityChange: qty,
			ActorID:        &actorID,
			Comment:        comment,
		})
	})
	if err != nil {
		span.RecordError(err)
		return err
	}

	e.afterMutation(ctx, domain.AuditAdd, []string{name})
	e.metrics.Restocks.Inc()
	e.events.Publish(ctx, StockEvent{Type: domain.AuditAdd, ItemName: name, Quantity: qty})
	return nil
}

// Stats returns the current ledger snapshot for one item.
func (e *Engine) Stats(ctx context.Context, name string) (Stats, error) {
	item, err := e.store.Item(ctx, name)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Stock:     item.StockQuantity,
		Reserved:  item.ReservedQuantity,
		Available: item.Available(),
	}, nil
}

func (e *Engine) reservationWindow(ctx context.Context, method domain.PaymentMethod) time.Duration {
	if method == domain.PaymentAddressPool {
		return PoolReservationWindow
	}
	hours := e.settings.Int(ctx, domain.SettingCashTimeoutHours, DefaultCashTimeoutHours)
	return time.Duration(hours) * time.Hour
}

// afterMutation notifies the cache collaborator outside the
// transaction. Failures are the invalidator's problem to log.
func (e *Engine) afterMutation(ctx context.Context, _ domain.AuditType, names []string) {
	for _, name := range names {
		e.cache.InvalidateItem(ctx, name)
	}
}

// coalescedLines sums duplicate item names into one line each and
// returns the result in canonical lock order (sorted by name).
func coalescedLines(lines []Line) []Line {
	totals := make(map[string]int, len(lines))
	for _, line := range lines {
		totals[line.ItemName] += line.Quantity
	}
	out := make([]Line, 0, len(totals))
	for name, qty := range totals {
		out = append(out, Line{ItemName: name, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemName < out[j].ItemName })
	return out
}

func sortedOrderItems(items []domain.OrderItem) []domain.OrderItem {
	out := make([]domain.OrderItem, len(items))
	copy(out, items)
	sort.Slice(out, func(i, j int) bool { return out[i].ItemName < out[j].ItemName })
	return out
}

func orderRef(o *domain.Order) string {
	if o.Code != "" {
		return o.Code
	}
	return fmt.Sprintf("#%d", o.ID)
}
