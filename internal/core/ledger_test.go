package core_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"stock-ledger/internal/core"
)

func TestFoldBasicInOut(t *testing.T) {
	f := setup(t)
	p := f.mustProduct(t, "SKU-1", nil)
	w := f.mustWarehouse(t, "WH-1")

	f.mustIn(t, p.ID, w.ID, 100)
	f.mustOut(t, p.ID, w.ID, 30)

	level := f.level(t, p.ID, w.ID)
	wantInt(t, level.OnHand, 70, "on-hand")
	wantInt(t, level.Reserved, 0, "reserved")
	wantInt(t, level.Available, 70, "available")
}

func TestOutboundCannotExceedOnHand(t *testing.T) {
	f := setup(t)
	p := f.mustProduct(t, "SKU-1", nil)
	w := f.mustWarehouse(t, "WH-1")
	f.mustIn(t, p.ID, w.ID, 10)

	_, err := f.ledger.Append(context.Background(), core.MovementInput{
		Type:            core.MovementOut,
		ProductID:       p.ID,
		Quantity:        decimal.NewFromInt(11),
		FromWarehouseID: &w.ID,
	})
	var insufficient *core.InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	wantInt(t, insufficient.OnHand, 10, "reported on-hand")

	// The rejection left no trace.
	wantInt(t, f.level(t, p.ID, w.ID).OnHand, 10, "on-hand after rejection")
}

func TestTransferConservesTotalStock(t *testing.T) {
	f := setup(t)
	p := f.mustProduct(t, "SKU-1", nil)
	src := f.mustWarehouse(t, "WH-SRC")
	dst := f.mustWarehouse(t, "WH-DST")
	f.mustIn(t, p.ID, src.ID, 100)

	if _, err := f.ledger.Append(context.Background(), core.MovementInput{
		Type:            core.MovementTransfer,
		ProductID:       p.ID,
		Quantity:        decimal.NewFromInt(40),
		FromWarehouseID: &src.ID,
		ToWarehouseID:   &dst.ID,
	}); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	srcLevel := f.level(t, p.ID, src.ID)
	dstLevel := f.level(t, p.ID, dst.ID)
	wantInt(t, srcLevel.OnHand, 60, "source on-hand")
	wantInt(t, dstLevel.OnHand, 40, "destination on-hand")
	wantInt(t, srcLevel.OnHand.Add(dstLevel.OnHand), 100, "total stock")
}

func TestTransferRespectsReservationsAtSource(t *testing.T) {
	f := setup(t)
	p := f.mustProduct(t, "SKU-1", nil)
	src := f.mustWarehouse(t, "WH-SRC")
	dst := f.mustWarehouse(t, "WH-DST")
	f.mustIn(t, p.ID, src.ID, 100)

	if _, err := f.reservations.Reserve(context.Background(), p.ID, src.ID, decimal.NewFromInt(80), "SO-1"); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	_, err := f.ledger.Append(context.Background(), core.MovementInput{
		Type:            core.MovementTransfer,
		ProductID:       p.ID,
		Quantity:        decimal.NewFromInt(30),
		FromWarehouseID: &src.ID,
		ToWarehouseID:   &dst.ID,
	})
	var insufficient *core.InsufficientAvailableError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientAvailableError, got %v", err)
	}
	wantInt(t, insufficient.Available, 20, "reported available")

	// A smaller transfer inside the available window goes through.
	if _, err := f.ledger.Append(context.Background(), core.MovementInput{
		Type:            core.MovementTransfer,
		ProductID:       p.ID,
		Quantity:        decimal.NewFromInt(20),
		FromWarehouseID: &src.ID,
		ToWarehouseID:   &dst.ID,
	}); err != nil {
		t.Fatalf("transfer within available: %v", err)
	}
}

func TestAdjustmentDirectionFollowsEndpoint(t *testing.T) {
	f := setup(t)
	p := f.mustProduct(t, "SKU-1", nil)
	w := f.mustWarehouse(t, "WH-1")
	f.mustIn(t, p.ID, w.ID, 50)
	ctx := context.Background()

	// Destination set: recount found more stock.
	if _, err := f.ledger.Append(ctx, core.MovementInput{
		Type: core.MovementAdjustment, ProductID: p.ID, Quantity: decimal.NewFromInt(5),
		ToWarehouseID: &w.ID, Reason: "cycle count surplus",
	}); err != nil {
		t.Fatalf("upward adjustment: %v", err)
	}
	wantInt(t, f.level(t, p.ID, w.ID).OnHand, 55, "on-hand after surplus")

	// Source set: write-off.
	if _, err := f.ledger.Append(ctx, core.MovementInput{
		Type: core.MovementAdjustment, ProductID: p.ID, Quantity: decimal.NewFromInt(15),
		FromWarehouseID: &w.ID, Reason: "cycle count shortage",
	}); err != nil {
		t.Fatalf("downward adjustment: %v", err)
	}
	wantInt(t, f.level(t, p.ID, w.ID).OnHand, 40, "on-hand after shortage")
}

func TestPendingMovementDoesNotAffectStock(t *testing.T) {
	f := setup(t)
	p := f.mustProduct(t, "SKU-1", nil)
	w := f.mustWarehouse(t, "WH-1")
	f.mustIn(t, p.ID, w.ID, 50)
	ctx := context.Background()

	pending, err := f.ledger.Append(ctx, core.MovementInput{
		Type:            core.MovementOut,
		Status:          core.MovementPending,
		ProductID:       p.ID,
		Quantity:        decimal.NewFromInt(20),
		FromWarehouseID: &w.ID,
	})
	if err != nil {
		t.Fatalf("pending append: %v", err)
	}
	wantInt(t, f.level(t, p.ID, w.ID).OnHand, 50, "on-hand with pending movement")

	if _, err := f.ledger.Transition(ctx, pending.ID, core.MovementConfirmed); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	wantInt(t, f.level(t, p.ID, w.ID).OnHand, 30, "on-hand after confirm")
}

func TestCancelledMovementIsExcludedFromFold(t *testing.T) {
	f := setup(t)
	p := f.mustProduct(t, "SKU-1", nil)
	w := f.mustWarehouse(t, "WH-1")
	f.mustIn(t, p.ID, w.ID, 50)
	ctx := context.Background()

	pending, err := f.ledger.Append(ctx, core.MovementInput{
		Type:            core.MovementOut,
		Status:          core.MovementPending,
		ProductID:       p.ID,
		Quantity:        decimal.NewFromInt(20),
		FromWarehouseID: &w.ID,
	})
	if err != nil {
		t.Fatalf("pending append: %v", err)
	}
	if _, err := f.ledger.Transition(ctx, pending.ID, core.MovementCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	wantInt(t, f.level(t, p.ID, w.ID).OnHand, 50, "on-hand after cancel")

	// Terminal: no further transitions.
	if _, err := f.ledger.Transition(ctx, pending.ID, core.MovementConfirmed); err == nil {
		t.Fatal("transition out of cancelled should fail")
	}
}

func TestConfirmingPendingReAdmits(t *testing.T) {
	f := setup(t)
	p := f.mustProduct(t, "SKU-1", nil)
	w := f.mustWarehouse(t, "WH-1")
	f.mustIn(t, p.ID, w.ID, 50)
	ctx := context.Background()

	pending, err := f.ledger.Append(ctx, core.MovementInput{
		Type:            core.MovementOut,
		Status:          core.MovementPending,
		ProductID:       p.ID,
		Quantity:        decimal.NewFromInt(40),
		FromWarehouseID: &w.ID,
	})
	if err != nil {
		t.Fatalf("pending append: %v", err)
	}

	// Stock leaves while the movement is awaiting approval.
	f.mustOut(t, p.ID, w.ID, 30)

	_, err = f.ledger.Transition(ctx, pending.ID, core.MovementConfirmed)
	var insufficient *core.InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientStockError on confirm, got %v", err)
	}
}

func TestInvalidStatusTransitions(t *testing.T) {
	f := setup(t)
	p := f.mustProduct(t, "SKU-1", nil)
	w := f.mustWarehouse(t, "WH-1")
	m := f.mustIn(t, p.ID, w.ID, 10) // appended as confirmed

	ctx := context.Background()
	for _, next := range []core.MovementStatus{core.MovementPending, core.MovementCancelled} {
		if _, err := f.ledger.Transition(ctx, m.ID, next); err == nil {
			t.Fatalf("confirmed -> %s should be rejected", next)
		}
	}
	if _, err := f.ledger.Transition(ctx, m.ID, core.MovementCompleted); err != nil {
		t.Fatalf("confirmed -> completed: %v", err)
	}
	if _, err := f.ledger.Transition(ctx, m.ID, core.MovementPartial); err == nil {
		t.Fatal("completed is terminal")
	}
}

func TestConcurrentOutboundNeverOversells(t *testing.T) {
	f := setup(t)
	p := f.mustProduct(t, "SKU-1", nil)
	w := f.mustWarehouse(t, "WH-1")
	f.mustIn(t, p.ID, w.ID, 100)

	const workers = 20
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.ledger.Append(context.Background(), core.MovementInput{
				Type:            core.MovementOut,
				ProductID:       p.ID,
				Quantity:        decimal.NewFromInt(10),
				FromWarehouseID: &w.ID,
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var insufficient *core.InsufficientStockError
		if !errors.As(err, &insufficient) {
			t.Fatalf("unexpected error under contention: %v", err)
		}
	}
	if succeeded != 10 {
		t.Fatalf("succeeded = %d, want exactly 10", succeeded)
	}
	wantInt(t, f.level(t, p.ID, w.ID).OnHand, 0, "final on-hand")
}

func TestConcurrentTransitionsAdmitOneWinner(t *testing.T) {
	f := setup(t)
	p := f.mustProduct(t, "SKU-1", nil)
	w := f.mustWarehouse(t, "WH-1")
	f.mustIn(t, p.ID, w.ID, 50)
	ctx := context.Background()

	pending, err := f.ledger.Append(ctx, core.MovementInput{
		Type:            core.MovementOut,
		Status:          core.MovementPending,
		ProductID:       p.ID,
		Quantity:        decimal.NewFromInt(20),
		FromWarehouseID: &w.ID,
	})
	if err != nil {
		t.Fatalf("pending append: %v", err)
	}

	// Slow movement reads widen the window between the routing read and
	// the key lock, so both callers observe the movement still pending
	// before either writes.
	slow := core.NewLedger(&slowStore{Store: f.store, delay: 50 * time.Millisecond}, zerolog.Nop())

	targets := []core.MovementStatus{core.MovementConfirmed, core.MovementCancelled}
	errs := make([]error, len(targets))
	var wg sync.WaitGroup
	for i, next := range targets {
		wg.Add(1)
		go func(i int, next core.MovementStatus) {
			defer wg.Done()
			_, errs[i] = slow.Transition(ctx, pending.ID, next)
		}(i, next)
	}
	wg.Wait()

	winners := 0
	winner := -1
	for i, err := range errs {
		if err == nil {
			winners++
			winner = i
		}
	}
	if winners != 1 {
		t.Fatalf("winners = %d (errs %v), want exactly 1", winners, errs)
	}

	final, err := f.store.GetMovement(ctx, pending.ID)
	if err != nil {
		t.Fatalf("get movement: %v", err)
	}
	if final.Status != targets[winner] {
		t.Fatalf("status = %s, want %s", final.Status, targets[winner])
	}
	switch final.Status {
	case core.MovementConfirmed:
		wantInt(t, f.level(t, p.ID, w.ID).OnHand, 30, "on-hand after confirm")
	case core.MovementCancelled:
		wantInt(t, f.level(t, p.ID, w.ID).OnHand, 50, "on-hand after cancel")
	}
}
