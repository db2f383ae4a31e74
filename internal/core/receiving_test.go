package core_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"stock-ledger/internal/core"
)

func (f *fixture) mustOrder(t *testing.T, warehouseID uuid.UUID, items ...core.PurchaseOrderItem) *core.PurchaseOrder {
	t.Helper()
	po, err := f.receiving.CreateOrder(context.Background(), core.PurchaseOrder{
		SupplierID:  uuid.New(),
		WarehouseID: warehouseID,
		Reference:   "PO-TEST",
		CreatedBy:   "test",
		Items:       items,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return po
}

func TestPurchaseOrderLifecycle(t *testing.T) {
	f := setup(t)
	p := f.mustProduct(t, "SKU-1", nil)
	w := f.mustWarehouse(t, "WH-1")
	ctx := context.Background()

	po := f.mustOrder(t, w.ID, core.PurchaseOrderItem{
		ProductID:       p.ID,
		OrderedQuantity: decimal.NewFromInt(100),
		UnitCost:        decimal.RequireFromString("2.50"),
	})
	if po.Status != core.POStatusDraft {
		t.Fatalf("status = %s, want draft", po.Status)
	}

	// Receiving a draft order is rejected.
	if _, err := f.receiving.Receive(ctx, po.ID, []core.LineReceipt{
		{ItemID: po.Items[0].ID, ReceivedQuantity: decimal.NewFromInt(10)},
	}, "test"); err == nil {
		t.Fatal("receipt against draft order accepted")
	}

	if _, err := f.receiving.Approve(ctx, po.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	// Approving twice is rejected.
	if _, err := f.receiving.Approve(ctx, po.ID); err == nil {
		t.Fatal("double approve accepted")
	}

	received, err := f.receiving.Receive(ctx, po.ID, []core.LineReceipt{
		{ItemID: po.Items[0].ID, ReceivedQuantity: decimal.NewFromInt(100)},
	}, "test")
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if received.Status != core.POStatusReceived {
		t.Fatalf("status = %s, want received", received.Status)
	}
	wantInt(t, f.level(t, p.ID, w.ID).OnHand, 100, "on-hand after receipt")

	// Fully received orders cannot be cancelled.
	if _, err := f.receiving.Cancel(ctx, po.ID); err == nil {
		t.Fatal("cancel of received order accepted")
	}
}

func TestPartialReceiptKeepsOrderApproved(t *testing.T) {
	f := setup(t)
	p := f.mustProduct(t, "SKU-1", nil)
	w := f.mustWarehouse(t, "WH-1")
	ctx := context.Background()

	po := f.mustOrder(t, w.ID, core.PurchaseOrderItem{
		ProductID:       p.ID,
		OrderedQuantity: decimal.NewFromInt(100),
		UnitCost:        decimal.NewFromInt(3),
	})
	if _, err := f.receiving.Approve(ctx, po.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}

	partial, err := f.receiving.Receive(ctx, po.ID, []core.LineReceipt{
		{ItemID: po.Items[0].ID, ReceivedQuantity: decimal.NewFromInt(60)},
	}, "test")
	if err != nil {
		t.Fatalf("partial receive: %v", err)
	}
	if partial.Status != core.POStatusApproved {
		t.Fatalf("status = %s, want approved after partial receipt", partial.Status)
	}
	wantInt(t, partial.Items[0].ReceivedQuantity, 60, "cumulative received")
	wantInt(t, f.level(t, p.ID, w.ID).OnHand, 60, "on-hand")

	// Completing the line flips the order.
	full, err := f.receiving.Receive(ctx, po.ID, []core.LineReceipt{
		{ItemID: po.Items[0].ID, ReceivedQuantity: decimal.NewFromInt(100)},
	}, "test")
	if err != nil {
		t.Fatalf("final receive: %v", err)
	}
	if full.Status != core.POStatusReceived {
		t.Fatalf("status = %s, want received", full.Status)
	}
	wantInt(t, f.level(t, p.ID, w.ID).OnHand, 100, "final on-hand")
}

func TestRepeatedReceiptIsIdempotent(t *testing.T) {
	f := setup(t)
	p := f.mustProduct(t, "SKU-1", nil)
	w := f.mustWarehouse(t, "WH-1")
	ctx := context.Background()

	po := f.mustOrder(t, w.ID, core.PurchaseOrderItem{
		ProductID:       p.ID,
		OrderedQuantity: decimal.NewFromInt(100),
		UnitCost:        decimal.NewFromInt(1),
	})
	if _, err := f.receiving.Approve(ctx, po.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}

	receipt := []core.LineReceipt{{ItemID: po.Items[0].ID, ReceivedQuantity: decimal.NewFromInt(40)}}
	if _, err := f.receiving.Receive(ctx, po.ID, receipt, "test"); err != nil {
		t.Fatalf("receive: %v", err)
	}
	// Same cumulative totals again: no new movement, no stock change.
	if _, err := f.receiving.Receive(ctx, po.ID, receipt, "test"); err != nil {
		t.Fatalf("repeat receive: %v", err)
	}
	wantInt(t, f.level(t, p.ID, w.ID).OnHand, 40, "on-hand after repeat")

	movements, err := f.store.MovementsByReference(ctx, core.ReferencePurchaseOrder, po.ID)
	if err != nil {
		t.Fatalf("movements by reference: %v", err)
	}
	if len(movements) != 1 {
		t.Fatalf("movements = %d, want 1", len(movements))
	}
}

func TestReceiptValidationIsAllOrNothing(t *testing.T) {
	f := setup(t)
	p1 := f.mustProduct(t, "SKU-1", nil)
	p2 := f.mustProduct(t, "SKU-2", nil)
	w := f.mustWarehouse(t, "WH-1")
	ctx := context.Background()

	po := f.mustOrder(t, w.ID,
		core.PurchaseOrderItem{ProductID: p1.ID, OrderedQuantity: decimal.NewFromInt(50), UnitCost: decimal.NewFromInt(1)},
		core.PurchaseOrderItem{ProductID: p2.ID, OrderedQuantity: decimal.NewFromInt(50), UnitCost: decimal.NewFromInt(1)},
	)
	if _, err := f.receiving.Approve(ctx, po.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}

	// Second line over-receives; the first line must not be applied.
	_, err := f.receiving.Receive(ctx, po.ID, []core.LineReceipt{
		{ItemID: po.Items[0].ID, ReceivedQuantity: decimal.NewFromInt(20)},
		{ItemID: po.Items[1].ID, ReceivedQuantity: decimal.NewFromInt(60)},
	}, "test")
	if err == nil {
		t.Fatal("over-receipt accepted")
	}
	wantInt(t, f.level(t, p1.ID, w.ID).OnHand, 0, "on-hand after rejected batch")

	// Cumulative totals may never shrink.
	if _, err := f.receiving.Receive(ctx, po.ID, []core.LineReceipt{
		{ItemID: po.Items[0].ID, ReceivedQuantity: decimal.NewFromInt(30)},
	}, "test"); err != nil {
		t.Fatalf("receive: %v", err)
	}
	if _, err := f.receiving.Receive(ctx, po.ID, []core.LineReceipt{
		{ItemID: po.Items[0].ID, ReceivedQuantity: decimal.NewFromInt(10)},
	}, "test"); err == nil {
		t.Fatal("shrinking cumulative total accepted")
	}

	// Unknown item IDs are rejected.
	if _, err := f.receiving.Receive(ctx, po.ID, []core.LineReceipt{
		{ItemID: uuid.New(), ReceivedQuantity: decimal.NewFromInt(1)},
	}, "test"); err == nil {
		t.Fatal("foreign item receipt accepted")
	}
}

func TestReceiptMovementsCarryOrderReference(t *testing.T) {
	f := setup(t)
	p := f.mustProduct(t, "SKU-1", nil)
	w := f.mustWarehouse(t, "WH-1")
	ctx := context.Background()

	po := f.mustOrder(t, w.ID, core.PurchaseOrderItem{
		ProductID:       p.ID,
		OrderedQuantity: decimal.NewFromInt(10),
		UnitCost:        decimal.RequireFromString("4.20"),
	})
	if _, err := f.receiving.Approve(ctx, po.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := f.receiving.Receive(ctx, po.ID, []core.LineReceipt{
		{ItemID: po.Items[0].ID, ReceivedQuantity: decimal.NewFromInt(10)},
	}, "receiver@example.com"); err != nil {
		t.Fatalf("receive: %v", err)
	}

	movements, err := f.store.MovementsByReference(ctx, core.ReferencePurchaseOrder, po.ID)
	if err != nil {
		t.Fatalf("movements by reference: %v", err)
	}
	if len(movements) != 1 {
		t.Fatalf("movements = %d, want 1", len(movements))
	}
	m := movements[0]
	if m.Type != core.MovementIn || m.CreatedBy != "receiver@example.com" {
		t.Fatalf("unexpected movement %+v", m)
	}
	if m.TotalCost == nil || !m.TotalCost.Equal(decimal.RequireFromString("42")) {
		t.Fatalf("total cost = %v, want 42", m.TotalCost)
	}
}

func TestCancelDraftAndApprovedOrders(t *testing.T) {
	f := setup(t)
	p := f.mustProduct(t, "SKU-1", nil)
	w := f.mustWarehouse(t, "WH-1")
	ctx := context.Background()

	draft := f.mustOrder(t, w.ID, core.PurchaseOrderItem{
		ProductID: p.ID, OrderedQuantity: decimal.NewFromInt(5), UnitCost: decimal.NewFromInt(1),
	})
	cancelled, err := f.receiving.Cancel(ctx, draft.ID)
	if err != nil {
		t.Fatalf("cancel draft: %v", err)
	}
	if cancelled.Status != core.POStatusCancelled {
		t.Fatalf("status = %s, want cancelled", cancelled.Status)
	}

	// Partially received orders cannot be cancelled.
	po := f.mustOrder(t, w.ID, core.PurchaseOrderItem{
		ProductID: p.ID, OrderedQuantity: decimal.NewFromInt(10), UnitCost: decimal.NewFromInt(1),
	})
	if _, err := f.receiving.Approve(ctx, po.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := f.receiving.Receive(ctx, po.ID, []core.LineReceipt{
		{ItemID: po.Items[0].ID, ReceivedQuantity: decimal.NewFromInt(3)},
	}, "test"); err != nil {
		t.Fatalf("receive: %v", err)
	}
	if _, err := f.receiving.Cancel(ctx, po.ID); err == nil {
		t.Fatal("cancel of partially received order accepted")
	}
}

func TestLotTrackedReceiptCarriesLineLot(t *testing.T) {
	f := setup(t)
	p := f.mustProduct(t, "SKU-LOT", func(p *core.Product) {
		p.TrackingType = core.TrackingLot
	})
	w := f.mustWarehouse(t, "WH-1")
	ctx := context.Background()

	po := f.mustOrder(t, w.ID, core.PurchaseOrderItem{
		ProductID: p.ID, OrderedQuantity: decimal.NewFromInt(20), UnitCost: decimal.NewFromInt(1),
	})
	if _, err := f.receiving.Approve(ctx, po.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}

	// A lot-tracked line without a lot number is rejected whole.
	if _, err := f.receiving.Receive(ctx, po.ID, []core.LineReceipt{
		{ItemID: po.Items[0].ID, ReceivedQuantity: decimal.NewFromInt(20)},
	}, "test"); err == nil {
		t.Fatal("lot-tracked receipt without lot accepted")
	}
	wantInt(t, f.level(t, p.ID, w.ID).OnHand, 0, "on-hand after rejected receipt")

	lot := "LOT-2026-08"
	received, err := f.receiving.Receive(ctx, po.ID, []core.LineReceipt{
		{ItemID: po.Items[0].ID, ReceivedQuantity: decimal.NewFromInt(20), LotNumber: &lot},
	}, "test")
	if err != nil {
		t.Fatalf("receive with lot: %v", err)
	}
	if received.Status != core.POStatusReceived {
		t.Fatalf("status = %s, want received", received.Status)
	}
	wantInt(t, f.level(t, p.ID, w.ID).OnHand, 20, "on-hand after lot receipt")

	movements, err := f.store.MovementsByReference(ctx, core.ReferencePurchaseOrder, po.ID)
	if err != nil {
		t.Fatalf("movements by reference: %v", err)
	}
	if len(movements) != 1 || movements[0].LotNumber == nil || *movements[0].LotNumber != lot {
		t.Fatalf("movements = %+v, want one with lot %s", movements, lot)
	}
}

func TestFailedReceiptLeavesNoTrace(t *testing.T) {
	f := setup(t)
	plain := f.mustProduct(t, "SKU-PLAIN", nil)
	lotted := f.mustProduct(t, "SKU-LOT", func(p *core.Product) {
		p.TrackingType = core.TrackingLot
	})
	w := f.mustWarehouse(t, "WH-1")
	ctx := context.Background()

	po := f.mustOrder(t, w.ID,
		core.PurchaseOrderItem{ProductID: plain.ID, OrderedQuantity: decimal.NewFromInt(30), UnitCost: decimal.NewFromInt(1)},
		core.PurchaseOrderItem{ProductID: lotted.ID, OrderedQuantity: decimal.NewFromInt(10), UnitCost: decimal.NewFromInt(1)},
	)
	if _, err := f.receiving.Approve(ctx, po.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}

	// The second line fails validation; the first must leave no stock
	// and no recorded cumulative total behind.
	_, err := f.receiving.Receive(ctx, po.ID, []core.LineReceipt{
		{ItemID: po.Items[0].ID, ReceivedQuantity: decimal.NewFromInt(30)},
		{ItemID: po.Items[1].ID, ReceivedQuantity: decimal.NewFromInt(10)},
	}, "test")
	if err == nil {
		t.Fatal("receipt with invalid lot line accepted")
	}
	wantInt(t, f.level(t, plain.ID, w.ID).OnHand, 0, "plain on-hand after failed batch")

	after, err := f.receiving.GetOrder(ctx, po.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	for _, item := range after.Items {
		wantInt(t, item.ReceivedQuantity, 0, "received quantity after failed batch")
	}

	// The retry lands everything exactly once.
	lot := "LOT-2026-08"
	received, err := f.receiving.Receive(ctx, po.ID, []core.LineReceipt{
		{ItemID: po.Items[0].ID, ReceivedQuantity: decimal.NewFromInt(30)},
		{ItemID: po.Items[1].ID, ReceivedQuantity: decimal.NewFromInt(10), LotNumber: &lot},
	}, "test")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if received.Status != core.POStatusReceived {
		t.Fatalf("status = %s, want received", received.Status)
	}
	wantInt(t, f.level(t, plain.ID, w.ID).OnHand, 30, "plain on-hand after retry")
	wantInt(t, f.level(t, lotted.ID, w.ID).OnHand, 10, "lotted on-hand after retry")

	movements, err := f.store.MovementsByReference(ctx, core.ReferencePurchaseOrder, po.ID)
	if err != nil {
		t.Fatalf("movements by reference: %v", err)
	}
	if len(movements) != 2 {
		t.Fatalf("movements = %d, want 2", len(movements))
	}
}

func TestSerialTrackedReceiptRecordsSerials(t *testing.T) {
	f := setup(t)
	p := f.mustProduct(t, "SKU-SER", func(p *core.Product) {
		p.TrackingType = core.TrackingSerial
	})
	w := f.mustWarehouse(t, "WH-1")
	ctx := context.Background()

	po := f.mustOrder(t, w.ID, core.PurchaseOrderItem{
		ProductID: p.ID, OrderedQuantity: decimal.NewFromInt(2), UnitCost: decimal.NewFromInt(1),
	})
	if _, err := f.receiving.Approve(ctx, po.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}

	if _, err := f.receiving.Receive(ctx, po.ID, []core.LineReceipt{
		{ItemID: po.Items[0].ID, ReceivedQuantity: decimal.NewFromInt(2), SerialNumbers: []string{"SN-1", "SN-2"}},
	}, "test"); err != nil {
		t.Fatalf("serial receipt: %v", err)
	}
	wantInt(t, f.level(t, p.ID, w.ID).OnHand, 2, "on-hand after serial receipt")

	movements, err := f.store.MovementsByReference(ctx, core.ReferencePurchaseOrder, po.ID)
	if err != nil {
		t.Fatalf("movements by reference: %v", err)
	}
	if len(movements) != 1 || len(movements[0].SerialNumbers) != 2 {
		t.Fatalf("movements = %+v, want one with 2 serials", movements)
	}

	// The received serials are registered: re-introducing one is rejected.
	_, err = f.ledger.Append(ctx, core.MovementInput{
		Type: core.MovementIn, ProductID: p.ID, Quantity: decimalOne,
		ToWarehouseID: &w.ID, SerialNumbers: []string{"SN-1"},
	})
	wantValidationCode(t, err, core.CodeInvalidSerials)
}

func TestOrderReadHonorsStorageDeadline(t *testing.T) {
	f := setup(t)
	p := f.mustProduct(t, "SKU-1", nil)
	w := f.mustWarehouse(t, "WH-1")

	po := f.mustOrder(t, w.ID, core.PurchaseOrderItem{
		ProductID: p.ID, OrderedQuantity: decimal.NewFromInt(5), UnitCost: decimal.NewFromInt(1),
	})

	slow := &slowStore{Store: f.store, delay: 100 * time.Millisecond}
	ledger := core.NewLedger(slow, zerolog.Nop())
	ledger.SetStorageTimeout(5 * time.Millisecond)
	receiving := core.NewReceiving(slow, ledger, zerolog.Nop())

	_, err := receiving.GetOrder(context.Background(), po.ID)
	var storage *core.StorageError
	if !errors.As(err, &storage) {
		t.Fatalf("expected StorageError, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded cause, got %v", err)
	}
}
