package core_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"stock-ledger/internal/core"
	"stock-ledger/internal/store/memory"
)

var decimalOne = decimal.NewFromInt(1)

type fixture struct {
	store        *memory.Store
	ledger       *core.Ledger
	reservations *core.ReservationTracker
	alerts       *core.AlertEngine
	receiving    *core.Receiving
	locations    *core.Locations
}

func setup(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	logger := zerolog.Nop()
	ledger := core.NewLedger(store, logger)
	return &fixture{
		store:        store,
		ledger:       ledger,
		reservations: core.NewReservationTracker(store, ledger, logger),
		alerts:       core.NewAlertEngine(store, ledger, nil, nil, logger),
		receiving:    core.NewReceiving(store, ledger, logger),
		locations:    core.NewLocations(store, logger),
	}
}

func (f *fixture) mustProduct(t *testing.T, sku string, mutate func(*core.Product)) *core.Product {
	t.Helper()
	p := core.Product{
		SKU:             sku,
		Name:            "product " + sku,
		Category:        "general",
		UnitOfMeasure:   "unit",
		MinStockLevel:   decimal.NewFromInt(10),
		ReorderPoint:    decimal.NewFromInt(20),
		ReorderQuantity: decimal.NewFromInt(50),
		MaxStockLevel:   decimal.NewFromInt(200),
	}
	if mutate != nil {
		mutate(&p)
	}
	created, err := f.locations.CreateProduct(context.Background(), p)
	if err != nil {
		t.Fatalf("create product %s: %v", sku, err)
	}
	return created
}

func (f *fixture) mustWarehouse(t *testing.T, code string) *core.Warehouse {
	t.Helper()
	w, err := f.locations.CreateWarehouse(context.Background(), core.Warehouse{
		Code: code,
		Name: "warehouse " + code,
		Type: core.WarehouseMain,
	})
	if err != nil {
		t.Fatalf("create warehouse %s: %v", code, err)
	}
	return w
}

func (f *fixture) mustIn(t *testing.T, productID, warehouseID uuid.UUID, qty int64) *core.StockMovement {
	t.Helper()
	m, err := f.ledger.Append(context.Background(), core.MovementInput{
		Type:          core.MovementIn,
		ProductID:     productID,
		Quantity:      decimal.NewFromInt(qty),
		ToWarehouseID: &warehouseID,
		CreatedBy:     "test",
	})
	if err != nil {
		t.Fatalf("inbound movement: %v", err)
	}
	return m
}

func (f *fixture) mustOut(t *testing.T, productID, warehouseID uuid.UUID, qty int64) *core.StockMovement {
	t.Helper()
	m, err := f.ledger.Append(context.Background(), core.MovementInput{
		Type:            core.MovementOut,
		ProductID:       productID,
		Quantity:        decimal.NewFromInt(qty),
		FromWarehouseID: &warehouseID,
		CreatedBy:       "test",
	})
	if err != nil {
		t.Fatalf("outbound movement: %v", err)
	}
	return m
}

func (f *fixture) level(t *testing.T, productID, warehouseID uuid.UUID) *core.StockLevel {
	t.Helper()
	level, err := f.ledger.ProjectStockLevel(context.Background(), productID, warehouseID, nil)
	if err != nil {
		t.Fatalf("project stock level: %v", err)
	}
	return level
}

// slowStore delays selected reads so a test can hold concurrent callers
// inside a read-then-lock window, or outlast the storage deadline. The
// delay respects context cancellation the way a real driver would.
type slowStore struct {
	core.Store
	delay time.Duration
}

func (s *slowStore) wait(ctx context.Context) error {
	select {
	case <-time.After(s.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *slowStore) GetMovement(ctx context.Context, id uuid.UUID) (*core.StockMovement, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	return s.Store.GetMovement(ctx, id)
}

func (s *slowStore) GetProduct(ctx context.Context, id uuid.UUID) (*core.Product, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	return s.Store.GetProduct(ctx, id)
}

func (s *slowStore) GetPurchaseOrder(ctx context.Context, id uuid.UUID) (*core.PurchaseOrder, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	return s.Store.GetPurchaseOrder(ctx, id)
}

func wantInt(t *testing.T, got decimal.Decimal, want int64, label string) {
	t.Helper()
	if !got.Equal(decimal.NewFromInt(want)) {
		t.Fatalf("%s = %s, want %d", label, got, want)
	}
}
