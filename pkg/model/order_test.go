package model

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestOrderApplyFill(t *testing.T) {
	o := &Order{State: OrderStatePlaced}

	err := o.ApplyFill(OrderStatePartiallyFilled, decimal.NewFromInt(95), decimal.NewFromInt(7))
	if err != nil {
		t.Fatal(err)
	}
	if o.State != OrderStatePartiallyFilled {
		t.Errorf("state = %s", o.State)
	}
	if !o.FillSize.Equal(decimal.NewFromInt(7)) {
		t.Errorf("fill size = %s", o.FillSize)
	}

	// Zero fill size is "not filled", never a valid fill.
	o2 := &Order{State: OrderStatePlaced}
	if err := o2.ApplyFill(OrderStateFilled, decimal.NewFromInt(95), decimal.Zero); err != ErrInvalidTransition {
		t.Errorf("zero-size fill err = %v, want ErrInvalidTransition", err)
	}

	o3 := &Order{State: OrderStateSold}
	if err := o3.ApplyFill(OrderStateFilled, decimal.NewFromInt(95), decimal.NewFromInt(1)); err != ErrTerminalState {
		t.Errorf("fill on sold err = %v, want ErrTerminalState", err)
	}
}

func TestOrderMarkSold(t *testing.T) {
	o := &Order{State: OrderStateFilled, FillSize: decimal.NewFromInt(7)}
	if err := o.MarkSold("S-1", decimal.NewFromInt(96)); err != nil {
		t.Fatal(err)
	}
	if o.State != OrderStateSold || o.SellOrdID != "S-1" || !o.SellPrice.Equal(decimal.NewFromInt(96)) {
		t.Errorf("order = %+v", o)
	}

	// Terminal states are never re-entered.
	if err := o.MarkSold("S-2", decimal.NewFromInt(97)); err != ErrTerminalState {
		t.Errorf("double sell err = %v, want ErrTerminalState", err)
	}

	// Filled state without an observed fill size cannot be sold.
	o2 := &Order{State: OrderStateFilled}
	if err := o2.MarkSold("S-3", decimal.NewFromInt(96)); err != ErrNotSellable {
		t.Errorf("no-fill sell err = %v, want ErrNotSellable", err)
	}

	o3 := &Order{State: OrderStatePlaced}
	if err := o3.MarkSold("S-4", decimal.NewFromInt(96)); err != ErrNotSellable {
		t.Errorf("placed sell err = %v, want ErrNotSellable", err)
	}
}

func TestOrderMarkCanceled(t *testing.T) {
	o := &Order{State: OrderStatePlaced}
	if err := o.MarkCanceled(); err != nil {
		t.Fatal(err)
	}
	if o.State != OrderStateCanceled {
		t.Errorf("state = %s", o.State)
	}
	if err := o.MarkCanceled(); err != ErrTerminalState {
		t.Errorf("double cancel err = %v, want ErrTerminalState", err)
	}
}

func TestOrderPredicates(t *testing.T) {
	unsold := []OrderState{OrderStatePlaced, OrderStatePartiallyFilled, OrderStateFilled}
	for _, s := range unsold {
		if !(&Order{State: s}).IsUnsold() {
			t.Errorf("%s should be unsold", s)
		}
	}
	terminal := []OrderState{OrderStateCanceled, OrderStateSold}
	for _, s := range terminal {
		o := &Order{State: s}
		if o.IsUnsold() {
			t.Errorf("%s should not be unsold", s)
		}
		if !o.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}

	sellable := &Order{State: OrderStatePartiallyFilled, FillSize: decimal.NewFromInt(1)}
	if !sellable.Sellable() {
		t.Error("partial fill with size should be sellable")
	}
}

func TestNewEventIDDeterministic(t *testing.T) {
	a := NewEventID("ORD-1", EventKindSold)
	b := NewEventID("ORD-1", EventKindSold)
	if a != b {
		t.Errorf("event ids differ: %s vs %s", a, b)
	}
	if a == NewEventID("ORD-1", EventKindFilled) {
		t.Error("different kinds must produce different ids")
	}
}
