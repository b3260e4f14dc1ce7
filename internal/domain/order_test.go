package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderStatus_Terminal(t *testing.T) {
	assert.False(t, OrderStatusPending.Terminal())
	assert.False(t, OrderStatusReserved.Terminal())
	assert.False(t, OrderStatusConfirmed.Terminal())
	assert.True(t, OrderStatusDelivered.Terminal())
	assert.True(t, OrderStatusCancelled.Terminal())
	assert.True(t, OrderStatusExpired.Terminal())
}

func TestOrder_CanTransition(t *testing.T) {
	cases := []struct {
		from OrderStatus
		to   OrderStatus
		ok   bool
	}{
		{OrderStatusPending, OrderStatusReserved, true},
		{OrderStatusPending, OrderStatusConfirmed, false},
		{OrderStatusPending, OrderStatusDelivered, false},
		{OrderStatusPending, OrderStatusCancelled, true},
		{OrderStatusReserved, OrderStatusConfirmed, true},
		{OrderStatusReserved, OrderStatusDelivered, true},
		{OrderStatusReserved, OrderStatusExpired, true},
		{OrderStatusReserved, OrderStatusCancelled, true},
		{OrderStatusReserved, OrderStatusReserved, false},
		{OrderStatusConfirmed, OrderStatusDelivered, true},
		{OrderStatusConfirmed, OrderStatusExpired, false},
		{OrderStatusConfirmed, OrderStatusCancelled, true},
		{OrderStatusDelivered, OrderStatusCancelled, false},
		{OrderStatusCancelled, OrderStatusReserved, false},
		{OrderStatusExpired, OrderStatusConfirmed, false},
	}

	for _, tc := range cases {
		order := &Order{Status: tc.from}
		assert.Equalf(t, tc.ok, order.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestItem_Available(t *testing.T) {
	assert.Equal(t, 6, (&Item{StockQuantity: 10, ReservedQuantity: 4}).Available())
	assert.Equal(t, 0, (&Item{StockQuantity: 10, ReservedQuantity: 10}).Available())
	// Reserved beyond stock is a ledger drift case; availability never
	// goes negative.
	assert.Equal(t, 0, (&Item{StockQuantity: 3, ReservedQuantity: 5}).Available())
}
