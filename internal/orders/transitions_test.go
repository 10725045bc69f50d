package orders

import (
	"testing"

	"github.com/tablyhq/tably-backend/pkg/enums"
)

func TestCanTransitionMatrix(t *testing.T) {
	allowed := []struct {
		from enums.OrderStatus
		to   enums.OrderStatus
	}{
		{enums.OrderStatusPending, enums.OrderStatusAccepted},
		{enums.OrderStatusPending, enums.OrderStatusCancelled},
		{enums.OrderStatusAccepted, enums.OrderStatusPreparing},
		{enums.OrderStatusAccepted, enums.OrderStatusCancelled},
		{enums.OrderStatusPreparing, enums.OrderStatusServed},
		{enums.OrderStatusPreparing, enums.OrderStatusCancelled},
	}
	for _, tt := range allowed {
		if !CanTransition(tt.from, tt.to) {
			t.Errorf("expected %s -> %s to be allowed", tt.from, tt.to)
		}
	}

	denied := []struct {
		from enums.OrderStatus
		to   enums.OrderStatus
	}{
		{enums.OrderStatusPending, enums.OrderStatusPreparing},
		{enums.OrderStatusPending, enums.OrderStatusServed},
		{enums.OrderStatusPending, enums.OrderStatusPaid},
		{enums.OrderStatusAccepted, enums.OrderStatusServed},
		{enums.OrderStatusAccepted, enums.OrderStatusPending},
		{enums.OrderStatusPreparing, enums.OrderStatusPaid},
		{enums.OrderStatusServed, enums.OrderStatusPaid},
		{enums.OrderStatusServed, enums.OrderStatusCancelled},
		{enums.OrderStatusServed, enums.OrderStatusPreparing},
		{enums.OrderStatusPaid, enums.OrderStatusCancelled},
		{enums.OrderStatusPaid, enums.OrderStatusServed},
		{enums.OrderStatusCancelled, enums.OrderStatusPending},
		{enums.OrderStatusCancelled, enums.OrderStatusPaid},
	}
	for _, tt := range denied {
		if CanTransition(tt.from, tt.to) {
			t.Errorf("expected %s -> %s to be denied", tt.from, tt.to)
		}
	}
}

func TestCanMarkPaidOnlyFromServed(t *testing.T) {
	if !CanMarkPaid(enums.OrderStatusServed) {
		t.Error("expected SERVED to be payable")
	}
	for _, status := range []enums.OrderStatus{
		enums.OrderStatusPending,
		enums.OrderStatusAccepted,
		enums.OrderStatusPreparing,
		enums.OrderStatusPaid,
		enums.OrderStatusCancelled,
	} {
		if CanMarkPaid(status) {
			t.Errorf("expected %s to reject the paid flip", status)
		}
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	for _, status := range []enums.OrderStatus{enums.OrderStatusPaid, enums.OrderStatusCancelled} {
		if next := NextStatuses(status); len(next) != 0 {
			t.Errorf("terminal status %s should have no exits, got %v", status, next)
		}
		if !status.IsTerminal() {
			t.Errorf("expected %s to be terminal", status)
		}
	}
}
