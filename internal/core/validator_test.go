package core_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"stock-ledger/internal/core"
)

func wantValidationCode(t *testing.T, err error, code string) {
	t.Helper()
	var verr *core.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Code != code {
		t.Fatalf("reason code = %s, want %s (message: %s)", verr.Code, code, verr.Message)
	}
}

func TestAppendRejectsUnknownType(t *testing.T) {
	f := setup(t)
	p := f.mustProduct(t, "SKU-1", nil)
	w := f.mustWarehouse(t, "WH-1")

	_, err := f.ledger.Append(context.Background(), core.MovementInput{
		Type:          "teleport",
		ProductID:     p.ID,
		Quantity:      decimal.NewFromInt(1),
		ToWarehouseID: &w.ID,
	})
	wantValidationCode(t, err, core.CodeValidationFailed)
}

func TestAppendRejectsNonPositiveQuantity(t *testing.T) {
	f := setup(t)
	p := f.mustProduct(t, "SKU-1", nil)
	w := f.mustWarehouse(t, "WH-1")

	for _, qty := range []int64{0, -5} {
		_, err := f.ledger.Append(context.Background(), core.MovementInput{
			Type:          core.MovementIn,
			ProductID:     p.ID,
			Quantity:      decimal.NewFromInt(qty),
			ToWarehouseID: &w.ID,
		})
		wantValidationCode(t, err, core.CodeNegativeQuantity)
	}
}

func TestAppendRejectsFractionalQuantityForUnitProduct(t *testing.T) {
	f := setup(t)
	p := f.mustProduct(t, "SKU-1", nil) // Fractional = false
	w := f.mustWarehouse(t, "WH-1")

	_, err := f.ledger.Append(context.Background(), core.MovementInput{
		Type:          core.MovementIn,
		ProductID:     p.ID,
		Quantity:      decimal.RequireFromString("2.5"),
		ToWarehouseID: &w.ID,
	})
	wantValidationCode(t, err, core.CodeNegativeQuantity)
}

func TestAppendAllowsFractionalQuantityWhenProductIsFractional(t *testing.T) {
	f := setup(t)
	p := f.mustProduct(t, "SKU-KG", func(p *core.Product) {
		p.Fractional = true
		p.UnitOfMeasure = "kg"
	})
	w := f.mustWarehouse(t, "WH-1")

	if _, err := f.ledger.Append(context.Background(), core.MovementInput{
		Type:          core.MovementIn,
		ProductID:     p.ID,
		Quantity:      decimal.RequireFromString("2.5"),
		ToWarehouseID: &w.ID,
	}); err != nil {
		t.Fatalf("fractional inbound rejected: %v", err)
	}
	wantInt(t, f.level(t, p.ID, w.ID).OnHand.Mul(decimal.NewFromInt(2)), 5, "on-hand x2")
}

func TestEndpointRules(t *testing.T) {
	f := setup(t)
	p := f.mustProduct(t, "SKU-1", nil)
	w := f.mustWarehouse(t, "WH-1")
	ctx := context.Background()
	qty := decimal.NewFromInt(1)

	// in without destination
	_, err := f.ledger.Append(ctx, core.MovementInput{Type: core.MovementIn, ProductID: p.ID, Quantity: qty})
	wantValidationCode(t, err, core.CodeMissingLocation)

	// out without source
	_, err = f.ledger.Append(ctx, core.MovementInput{Type: core.MovementOut, ProductID: p.ID, Quantity: qty})
	wantValidationCode(t, err, core.CodeMissingLocation)

	// transfer with identical endpoints
	_, err = f.ledger.Append(ctx, core.MovementInput{
		Type: core.MovementTransfer, ProductID: p.ID, Quantity: qty,
		FromWarehouseID: &w.ID, ToWarehouseID: &w.ID,
	})
	wantValidationCode(t, err, core.CodeMissingLocation)

	// adjustment with both endpoints set
	w2 := f.mustWarehouse(t, "WH-2")
	_, err = f.ledger.Append(ctx, core.MovementInput{
		Type: core.MovementAdjustment, ProductID: p.ID, Quantity: qty,
		FromWarehouseID: &w.ID, ToWarehouseID: &w2.ID, Reason: "recount",
	})
	wantValidationCode(t, err, core.CodeMissingLocation)

	// adjustment with neither endpoint set
	_, err = f.ledger.Append(ctx, core.MovementInput{
		Type: core.MovementAdjustment, ProductID: p.ID, Quantity: qty, Reason: "recount",
	})
	wantValidationCode(t, err, core.CodeMissingLocation)
}

func TestDamageRequiresReason(t *testing.T) {
	f := setup(t)
	p := f.mustProduct(t, "SKU-1", nil)
	w := f.mustWarehouse(t, "WH-1")
	f.mustIn(t, p.ID, w.ID, 10)

	_, err := f.ledger.Append(context.Background(), core.MovementInput{
		Type:            core.MovementDamage,
		ProductID:       p.ID,
		Quantity:        decimal.NewFromInt(1),
		FromWarehouseID: &w.ID,
	})
	wantValidationCode(t, err, core.CodeValidationFailed)
}

func TestUnknownWarehouseIsRejected(t *testing.T) {
	f := setup(t)
	p := f.mustProduct(t, "SKU-1", nil)
	phantom := f.mustWarehouse(t, "WH-GONE")
	if err := f.store.DeleteWarehouse(context.Background(), phantom.ID); err != nil {
		t.Fatalf("delete warehouse: %v", err)
	}

	_, err := f.ledger.Append(context.Background(), core.MovementInput{
		Type:          core.MovementIn,
		ProductID:     p.ID,
		Quantity:      decimal.NewFromInt(1),
		ToWarehouseID: &phantom.ID,
	})
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown warehouse, got %v", err)
	}
}

func TestSerialTrackingShapeRules(t *testing.T) {
	f := setup(t)
	p := f.mustProduct(t, "SKU-SER", func(p *core.Product) {
		p.TrackingType = core.TrackingSerial
	})
	w := f.mustWarehouse(t, "WH-1")
	ctx := context.Background()

	// count mismatch
	_, err := f.ledger.Append(ctx, core.MovementInput{
		Type: core.MovementIn, ProductID: p.ID, Quantity: decimal.NewFromInt(3),
		ToWarehouseID: &w.ID, SerialNumbers: []string{"A", "B"},
	})
	wantValidationCode(t, err, core.CodeInvalidSerials)

	// duplicate serials
	_, err = f.ledger.Append(ctx, core.MovementInput{
		Type: core.MovementIn, ProductID: p.ID, Quantity: decimal.NewFromInt(2),
		ToWarehouseID: &w.ID, SerialNumbers: []string{"A", "A"},
	})
	wantValidationCode(t, err, core.CodeInvalidSerials)

	// valid inbound
	if _, err := f.ledger.Append(ctx, core.MovementInput{
		Type: core.MovementIn, ProductID: p.ID, Quantity: decimal.NewFromInt(2),
		ToWarehouseID: &w.ID, SerialNumbers: []string{"A", "B"},
	}); err != nil {
		t.Fatalf("valid serial inbound rejected: %v", err)
	}

	// re-introducing a known serial
	_, err = f.ledger.Append(ctx, core.MovementInput{
		Type: core.MovementIn, ProductID: p.ID, Quantity: decimal.NewFromInt(1),
		ToWarehouseID: &w.ID, SerialNumbers: []string{"A"},
	})
	wantValidationCode(t, err, core.CodeInvalidSerials)

	// shipping a serial that is not at the warehouse
	_, err = f.ledger.Append(ctx, core.MovementInput{
		Type: core.MovementOut, ProductID: p.ID, Quantity: decimal.NewFromInt(1),
		FromWarehouseID: &w.ID, SerialNumbers: []string{"Z"},
	})
	wantValidationCode(t, err, core.CodeInvalidSerials)

	// shipping a present serial works, and frees it for reuse elsewhere
	if _, err := f.ledger.Append(ctx, core.MovementInput{
		Type: core.MovementOut, ProductID: p.ID, Quantity: decimal.NewFromInt(1),
		FromWarehouseID: &w.ID, SerialNumbers: []string{"A"},
	}); err != nil {
		t.Fatalf("serial outbound rejected: %v", err)
	}
	if _, err := f.ledger.Append(ctx, core.MovementInput{
		Type: core.MovementIn, ProductID: p.ID, Quantity: decimal.NewFromInt(1),
		ToWarehouseID: &w.ID, SerialNumbers: []string{"A"},
	}); err != nil {
		t.Fatalf("returning a departed serial rejected: %v", err)
	}

	// once shipped again the same serial cannot ship a second time
	if _, err := f.ledger.Append(ctx, core.MovementInput{
		Type: core.MovementOut, ProductID: p.ID, Quantity: decimal.NewFromInt(1),
		FromWarehouseID: &w.ID, SerialNumbers: []string{"A"},
	}); err != nil {
		t.Fatalf("shipping returned serial rejected: %v", err)
	}
	_, err = f.ledger.Append(ctx, core.MovementInput{
		Type: core.MovementOut, ProductID: p.ID, Quantity: decimal.NewFromInt(1),
		FromWarehouseID: &w.ID, SerialNumbers: []string{"A"},
	})
	wantValidationCode(t, err, core.CodeInvalidSerials)
}

func TestLotTrackedProductRequiresLotNumber(t *testing.T) {
	f := setup(t)
	p := f.mustProduct(t, "SKU-LOT", func(p *core.Product) {
		p.TrackingType = core.TrackingLot
	})
	w := f.mustWarehouse(t, "WH-1")

	_, err := f.ledger.Append(context.Background(), core.MovementInput{
		Type: core.MovementIn, ProductID: p.ID, Quantity: decimal.NewFromInt(5),
		ToWarehouseID: &w.ID,
	})
	wantValidationCode(t, err, core.CodeValidationFailed)

	lot := "LOT-2026-01"
	if _, err := f.ledger.Append(context.Background(), core.MovementInput{
		Type: core.MovementIn, ProductID: p.ID, Quantity: decimal.NewFromInt(5),
		ToWarehouseID: &w.ID, LotNumber: &lot,
	}); err != nil {
		t.Fatalf("lot inbound rejected: %v", err)
	}
}
