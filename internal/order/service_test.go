package order

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fulfillment/internal/clock"
	"fulfillment/internal/domain"
	"fulfillment/internal/inventory"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeStore struct {
	nextID uint
	orders map[uint]*domain.Order
	buyers map[int64]*domain.Buyer
	items  map[string]*domain.Item
	inTx   bool

	// reloadErr fails reads outside a transaction.
	reloadErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		nextID: 1,
		orders: make(map[uint]*domain.Order),
		buyers: make(map[int64]*domain.Buyer),
		items:  make(map[string]*domain.Item),
	}
}

func (s *fakeStore) snapshot() (map[uint]*domain.Order, map[int64]*domain.Buyer) {
	orders := make(map[uint]*domain.Order, len(s.orders))
	for id, o := range s.orders {
		copied := *o
		copied.Items = append([]domain.OrderItem(nil), o.Items...)
		orders[id] = &copied
	}
	buyers := make(map[int64]*domain.Buyer, len(s.buyers))
	for id, b := range s.buyers {
		copied := *b
		buyers[id] = &copied
	}
	return orders, buyers
}

func (s *fakeStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx {
		return fn(ctx)
	}
	s.inTx = true
	defer func() { s.inTx = false }()

	orders, buyers := s.snapshot()
	if err := fn(ctx); err != nil {
		s.orders = orders
		s.buyers = buyers
		return err
	}
	return nil
}

func (s *fakeStore) CreateOrder(_ context.Context, order *domain.Order) error {
	order.ID = s.nextID
	s.nextID++
	copied := *order
	copied.Items = append([]domain.OrderItem(nil), order.Items...)
	s.orders[order.ID] = &copied
	return nil
}

func (s *fakeStore) byCode(code string) (*domain.Order, error) {
	for _, o := range s.orders {
		if o.Code == code {
			copied := *o
			copied.Items = append([]domain.OrderItem(nil), o.Items...)
			return &copied, nil
		}
	}
	return nil, domain.ErrOrderNotFound
}

func (s *fakeStore) OrderByCode(_ context.Context, code string) (*domain.Order, error) {
	if !s.inTx && s.reloadErr != nil {
		return nil, s.reloadErr
	}
	return s.byCode(code)
}

func (s *fakeStore) OrderByCodeForUpdate(_ context.Context, code string) (*domain.Order, error) {
	return s.byCode(code)
}

func (s *fakeStore) UpdateOrderStatus(_ context.Context, orderID uint, status domain.OrderStatus) error {
	o, ok := s.orders[orderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	o.Status = status
	return nil
}

func (s *fakeStore) MarkOrderCompleted(_ context.Context, orderID uint, status domain.OrderStatus, at time.Time) error {
	o, ok := s.orders[orderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	o.Status = status
	o.CompletedAt = &at
	o.ReservedUntil = nil
	return nil
}

func (s *fakeStore) SetOrderPaymentAddress(_ context.Context, orderID uint, address string) error {
	o, ok := s.orders[orderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	o.PaymentAddress = &address
	return nil
}

func (s *fakeStore) CodeExists(_ context.Context, code string) (bool, error) {
	_, err := s.byCode(code)
	return err == nil, nil
}

func (s *fakeStore) Item(_ context.Context, name string) (*domain.Item, error) {
	item, ok := s.items[name]
	if !ok {
		return nil, domain.ErrItemNotFound
	}
	copied := *item
	return &copied, nil
}

func (s *fakeStore) EnsureBuyer(_ context.Context, buyerID int64, username string) error {
	if _, ok := s.buyers[buyerID]; !ok {
		s.buyers[buyerID] = &domain.Buyer{BuyerID: buyerID, Username: username}
	}
	return nil
}

func (s *fakeStore) BuyerForUpdate(_ context.Context, buyerID int64) (*domain.Buyer, error) {
	b, ok := s.buyers[buyerID]
	if !ok {
		return nil, domain.ErrBuyerNotFound
	}
	copied := *b
	return &copied, nil
}

func (s *fakeStore) SaveBuyer(_ context.Context, buyer *domain.Buyer) error {
	copied := *buyer
	s.buyers[buyer.BuyerID] = &copied
	return nil
}

// fakeEngine mimics the status side effects the real engine performs so
// the service sees consistent state inside the transaction.
type fakeEngine struct {
	store      *fakeStore
	reserveErr error
	deductErr  error
	reserved   []uint
	released   []uint
	deducted   []uint
	reasons    []string
}

func (e *fakeEngine) Reserve(_ context.Context, orderID uint, _ []inventory.Line, _ domain.PaymentMethod) error {
	if e.reserveErr != nil {
		return e.reserveErr
	}
	e.reserved = append(e.reserved, orderID)
	if o, ok := e.store.orders[orderID]; ok {
		o.Status = domain.OrderStatusReserved
		until := testNow.Add(24 * time.Hour)
		o.ReservedUntil = &until
	}
	return nil
}

func (e *fakeEngine) Release(_ context.Context, orderID uint, reason string) error {
	e.released = append(e.released, orderID)
	e.reasons = append(e.reasons, reason)
	return nil
}

func (e *fakeEngine) Deduct(_ context.Context, orderID uint, _ int64) error {
	if e.deductErr != nil {
		return e.deductErr
	}
	e.deducted = append(e.deducted, orderID)
	return nil
}

type fakeAllocator struct {
	address string
	err     error
	calls   int
}

func (a *fakeAllocator) Allocate(context.Context, int64, uint) (string, error) {
	a.calls++
	if a.err != nil {
		return "", a.err
	}
	return a.address, nil
}

type fakeNotifier struct {
	messages []string
}

func (n *fakeNotifier) Notify(_ context.Context, _ int64, text string) bool {
	n.messages = append(n.messages, text)
	return true
}

type fixture struct {
	store     *fakeStore
	engine    *fakeEngine
	allocator *fakeAllocator
	notifier  *fakeNotifier
	service   *Service
}

func newFixture() *fixture {
	store := newFakeStore()
	engine := &fakeEngine{store: store}
	allocator := &fakeAllocator{address: "addr-001"}
	notifier := &fakeNotifier{}
	service := NewService(store, engine, allocator, notifier, clock.NewFixed(testNow), zerolog.Nop())
	return &fixture{store: store, engine: engine, allocator: allocator, notifier: notifier, service: service}
}

func (f *fixture) withItem(name string, price int64) *fixture {
	f.store.items[name] = &domain.Item{Name: name, Price: decimal.NewFromInt(price), StockQuantity: 100}
	return f
}

func (f *fixture) withBuyer(id int64, bonus int64) *fixture {
	f.store.buyers[id] = &domain.Buyer{BuyerID: id, Username: "tester", BonusBalance: decimal.NewFromInt(bonus)}
	return f
}

func (f *fixture) placedOrder(t *testing.T, method domain.PaymentMethod) *domain.Order {
	t.Helper()
	order, err := f.service.Checkout(context.Background(), CheckoutInput{
		BuyerID:  7,
		Username: "tester",
		Lines:    []inventory.Line{{ItemName: "Widget", Quantity: 2}},
		Method:   method,
	})
	require.NoError(t, err)
	return order
}

func TestService_Checkout(t *testing.T) {
	t.Run("creates a reserved order with snapshot pricing", func(t *testing.T) {
		f := newFixture().withItem("Widget", 25)

		order, err := f.service.Checkout(context.Background(), CheckoutInput{
			BuyerID:  7,
			Username: "tester",
			Lines:    []inventory.Line{{ItemName: "Widget", Quantity: 3}},
			Method:   domain.PaymentCash,
		})
		require.NoError(t, err)

		assert.Len(t, order.Code, 6)
		assert.Equal(t, domain.OrderStatusReserved, order.Status)
		assert.True(t, order.TotalPrice.Equal(decimal.NewFromInt(75)))
		require.Len(t, order.Items, 1)
		assert.True(t, order.Items[0].Price.Equal(decimal.NewFromInt(25)))
		require.NotNil(t, order.ReservedUntil)
		assert.Equal(t, []uint{order.ID}, f.engine.reserved)
		assert.Zero(t, f.allocator.calls)
	})

	t.Run("address-pool orders get an address assigned", func(t *testing.T) {
		f := newFixture().withItem("Widget", 25)

		order, err := f.service.Checkout(context.Background(), CheckoutInput{
			BuyerID:  7,
			Username: "tester",
			Lines:    []inventory.Line{{ItemName: "Widget", Quantity: 1}},
			Method:   domain.PaymentAddressPool,
		})
		require.NoError(t, err)

		require.NotNil(t, order.PaymentAddress)
		assert.Equal(t, "addr-001", *order.PaymentAddress)
		assert.Equal(t, 1, f.allocator.calls)
	})

	t.Run("pool exhaustion rolls back the whole checkout", func(t *testing.T) {
		f := newFixture().withItem("Widget", 25)
		f.allocator.err = domain.ErrPoolExhausted

		_, err := f.service.Checkout(context.Background(), CheckoutInput{
			BuyerID:  7,
			Username: "tester",
			Lines:    []inventory.Line{{ItemName: "Widget", Quantity: 1}},
			Method:   domain.PaymentAddressPool,
		})
		assert.ErrorIs(t, err, domain.ErrPoolExhausted)
		assert.Empty(t, f.store.orders)
	})

	t.Run("bonus is deducted from the balance", func(t *testing.T) {
		f := newFixture().withItem("Widget", 25).withBuyer(7, 30)

		order, err := f.service.Checkout(context.Background(), CheckoutInput{
			BuyerID:  7,
			Username: "tester",
			Lines:    []inventory.Line{{ItemName: "Widget", Quantity: 1}},
			Method:   domain.PaymentCash,
			Bonus:    decimal.NewFromInt(10),
		})
		require.NoError(t, err)

		assert.True(t, order.BonusApplied.Equal(decimal.NewFromInt(10)))
		assert.True(t, f.store.buyers[7].BonusBalance.Equal(decimal.NewFromInt(20)))
	})

	t.Run("bonus above balance is rejected without side effects", func(t *testing.T) {
		f := newFixture().withItem("Widget", 25).withBuyer(7, 5)

		_, err := f.service.Checkout(context.Background(), CheckoutInput{
			BuyerID:  7,
			Username: "tester",
			Lines:    []inventory.Line{{ItemName: "Widget", Quantity: 1}},
			Method:   domain.PaymentCash,
			Bonus:    decimal.NewFromInt(10),
		})
		assert.ErrorIs(t, err, ErrInsufficientBonus)
		assert.True(t, f.store.buyers[7].BonusBalance.Equal(decimal.NewFromInt(5)))
		assert.Empty(t, f.store.orders)
	})

	t.Run("failed post-commit reload surfaces instead of stale state", func(t *testing.T) {
		f := newFixture().withItem("Widget", 25)
		f.store.reloadErr = errors.New("connection reset")

		_, err := f.service.Checkout(context.Background(), CheckoutInput{
			BuyerID:  7,
			Username: "tester",
			Lines:    []inventory.Line{{ItemName: "Widget", Quantity: 1}},
			Method:   domain.PaymentCash,
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "reload failed")

		// The checkout itself committed; only the readback failed.
		require.Len(t, f.store.orders, 1)
		for _, o := range f.store.orders {
			assert.Equal(t, domain.OrderStatusReserved, o.Status)
		}
	})

	t.Run("rejects empty and non-positive lines", func(t *testing.T) {
		f := newFixture().withItem("Widget", 25)

		_, err := f.service.Checkout(context.Background(), CheckoutInput{BuyerID: 7, Method: domain.PaymentCash})
		assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

		_, err = f.service.Checkout(context.Background(), CheckoutInput{
			BuyerID: 7,
			Lines:   []inventory.Line{{ItemName: "Widget", Quantity: 0}},
			Method:  domain.PaymentCash,
		})
		assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
	})
}

func TestService_Confirm(t *testing.T) {
	t.Run("reserved order confirms and notifies", func(t *testing.T) {
		f := newFixture().withItem("Widget", 25)
		order := f.placedOrder(t, domain.PaymentCash)

		require.NoError(t, f.service.Confirm(context.Background(), order.Code, 9))
		assert.Equal(t, domain.OrderStatusConfirmed, f.store.orders[order.ID].Status)
		require.Len(t, f.notifier.messages, 1)
		assert.Contains(t, f.notifier.messages[0], "confirmed")
	})

	t.Run("delivered order cannot be confirmed", func(t *testing.T) {
		f := newFixture().withItem("Widget", 25)
		order := f.placedOrder(t, domain.PaymentCash)
		require.NoError(t, f.service.Confirm(context.Background(), order.Code, 9))
		require.NoError(t, f.service.Deliver(context.Background(), order.Code, 9))

		err := f.service.Confirm(context.Background(), order.Code, 9)
		assert.ErrorIs(t, err, domain.ErrOrderTerminal)
	})

	t.Run("unknown code", func(t *testing.T) {
		f := newFixture()
		err := f.service.Confirm(context.Background(), "ZZZZZZ", 9)
		assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	})
}

func TestService_Deliver(t *testing.T) {
	t.Run("deducts stock and accumulates buyer spend", func(t *testing.T) {
		f := newFixture().withItem("Widget", 25)
		order := f.placedOrder(t, domain.PaymentCash)
		require.NoError(t, f.service.Confirm(context.Background(), order.Code, 9))

		require.NoError(t, f.service.Deliver(context.Background(), order.Code, 9))

		stored := f.store.orders[order.ID]
		assert.Equal(t, domain.OrderStatusDelivered, stored.Status)
		require.NotNil(t, stored.CompletedAt)
		assert.Equal(t, testNow, *stored.CompletedAt)
		assert.Equal(t, []uint{order.ID}, f.engine.deducted)
		assert.True(t, f.store.buyers[7].TotalSpent.Equal(decimal.NewFromInt(50)))
	})

	t.Run("reserved orders may deliver directly", func(t *testing.T) {
		f := newFixture().withItem("Widget", 25)
		order := f.placedOrder(t, domain.PaymentCash)

		require.NoError(t, f.service.Deliver(context.Background(), order.Code, 9))
		assert.Equal(t, domain.OrderStatusDelivered, f.store.orders[order.ID].Status)
	})

	t.Run("integrity fault rolls back status and spend", func(t *testing.T) {
		f := newFixture().withItem("Widget", 25)
		order := f.placedOrder(t, domain.PaymentCash)
		f.engine.deductErr = &domain.IntegrityError{ItemName: "Widget", Stock: 1, Deducted: 2}

		err := f.service.Deliver(context.Background(), order.Code, 9)
		assert.True(t, domain.IsIntegrity(err))
		assert.Equal(t, domain.OrderStatusReserved, f.store.orders[order.ID].Status)
		assert.True(t, f.store.buyers[7].TotalSpent.IsZero())
		assert.Empty(t, f.notifier.messages)
	})
}

func TestService_Cancel(t *testing.T) {
	t.Run("releases stock and refunds bonus", func(t *testing.T) {
		f := newFixture().withItem("Widget", 25).withBuyer(7, 30)

		order, err := f.service.Checkout(context.Background(), CheckoutInput{
			BuyerID:  7,
			Username: "tester",
			Lines:    []inventory.Line{{ItemName: "Widget", Quantity: 1}},
			Method:   domain.PaymentCash,
			Bonus:    decimal.NewFromInt(10),
		})
		require.NoError(t, err)
		require.True(t, f.store.buyers[7].BonusBalance.Equal(decimal.NewFromInt(20)))

		require.NoError(t, f.service.Cancel(context.Background(), order.Code, "changed my mind", 7))

		assert.Equal(t, domain.OrderStatusCancelled, f.store.orders[order.ID].Status)
		assert.Equal(t, []uint{order.ID}, f.engine.released)
		assert.Equal(t, []string{"changed my mind"}, f.engine.reasons)
		assert.True(t, f.store.buyers[7].BonusBalance.Equal(decimal.NewFromInt(30)))
	})

	t.Run("cancelling twice fails the second time", func(t *testing.T) {
		f := newFixture().withItem("Widget", 25)
		order := f.placedOrder(t, domain.PaymentCash)

		require.NoError(t, f.service.Cancel(context.Background(), order.Code, "no", 7))
		err := f.service.Cancel(context.Background(), order.Code, "no", 7)
		assert.ErrorIs(t, err, domain.ErrOrderTerminal)
		assert.Len(t, f.engine.released, 1)
	})
}
