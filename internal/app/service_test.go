package app_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"stock-ledger/internal/app"
	"stock-ledger/internal/core"
	"stock-ledger/internal/notify"
	"stock-ledger/internal/store/memory"
)

func setupService(t *testing.T) app.ApplicationService {
	t.Helper()
	store := memory.New()
	logger := zerolog.Nop()
	ledger := core.NewLedger(store, logger)
	feed := notify.NewFeed(16)
	alerts := core.NewAlertEngine(store, ledger, nil, feed, logger)
	return app.NewAppService(
		store,
		ledger,
		core.NewReservationTracker(store, ledger, logger),
		alerts,
		core.NewReceiving(store, ledger, logger),
		core.NewLocations(store, logger),
		feed,
		logger,
	)
}

func TestMovementsTriggerAlertEvaluation(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	p, err := svc.CreateProduct(ctx, core.Product{
		SKU:           "SKU-1",
		Name:          "widget",
		MinStockLevel: decimal.NewFromInt(50),
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	w, err := svc.CreateWarehouse(ctx, core.Warehouse{Code: "WH-1", Name: "main"})
	if err != nil {
		t.Fatalf("create warehouse: %v", err)
	}

	// Receiving below the minimum raises an alert as a side effect.
	if _, err := svc.RecordMovement(ctx, core.MovementInput{
		Type:          core.MovementIn,
		ProductID:     p.ID,
		Quantity:      decimal.NewFromInt(30),
		ToWarehouseID: &w.ID,
		CreatedBy:     "test",
	}); err != nil {
		t.Fatalf("record movement: %v", err)
	}

	alerts, err := svc.ListAlerts(ctx, core.AlertFilter{})
	if err != nil {
		t.Fatalf("list alerts: %v", err)
	}
	if len(alerts) != 1 || alerts[0].Severity != core.SeverityWarning {
		t.Fatalf("alerts = %+v, want one warning", alerts)
	}

	events := svc.RecentAlertEvents(0)
	if len(events) != 1 || events[0].Kind != core.AlertEventRaised {
		t.Fatalf("events = %+v, want one raised event", events)
	}

	// Topping up resolves it, again as a side effect.
	if _, err := svc.RecordMovement(ctx, core.MovementInput{
		Type:          core.MovementIn,
		ProductID:     p.ID,
		Quantity:      decimal.NewFromInt(100),
		ToWarehouseID: &w.ID,
		CreatedBy:     "test",
	}); err != nil {
		t.Fatalf("record movement: %v", err)
	}
	status := core.AlertResolved
	resolved, err := svc.ListAlerts(ctx, core.AlertFilter{Status: &status})
	if err != nil {
		t.Fatalf("list resolved: %v", err)
	}
	if len(resolved) != 1 {
		t.Fatalf("resolved = %d, want 1", len(resolved))
	}
}

func TestReleasingReservationsResolvesAlert(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	p, err := svc.CreateProduct(ctx, core.Product{
		SKU:           "SKU-1",
		Name:          "widget",
		MinStockLevel: decimal.NewFromInt(10),
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	w, err := svc.CreateWarehouse(ctx, core.Warehouse{Code: "WH-1", Name: "main"})
	if err != nil {
		t.Fatalf("create warehouse: %v", err)
	}

	// Stock in, then a steady consumption history so the stockout
	// projection has a rate to work with.
	if _, err := svc.RecordMovement(ctx, core.MovementInput{
		Type: core.MovementIn, ProductID: p.ID, Quantity: decimal.NewFromInt(100),
		ToWarehouseID: &w.ID, CreatedBy: "test",
	}); err != nil {
		t.Fatalf("inbound: %v", err)
	}
	if _, err := svc.RecordMovement(ctx, core.MovementInput{
		Type: core.MovementOut, ProductID: p.ID, Quantity: decimal.NewFromInt(60),
		FromWarehouseID: &w.ID, CreatedBy: "test",
	}); err != nil {
		t.Fatalf("outbound: %v", err)
	}

	// Reserving most of the remainder pulls the projected stockout
	// inside the warning window and raises an alert as a side effect.
	if _, err := svc.Reserve(ctx, p.ID, w.ID, decimal.NewFromInt(30), "SO-1"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	active := core.AlertActive
	alerts, err := svc.ListAlerts(ctx, core.AlertFilter{Status: &active})
	if err != nil {
		t.Fatalf("list alerts: %v", err)
	}
	if len(alerts) != 1 || alerts[0].Severity != core.SeverityWarning {
		t.Fatalf("alerts = %+v, want one warning", alerts)
	}

	// Releasing restores availability; the key is re-graded without any
	// ledger movement and the alert resolves.
	n, err := svc.ReleaseReservations(ctx, "SO-1")
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if n != 1 {
		t.Fatalf("released = %d, want 1", n)
	}
	alerts, err = svc.ListAlerts(ctx, core.AlertFilter{Status: &active})
	if err != nil {
		t.Fatalf("list alerts after release: %v", err)
	}
	if len(alerts) != 0 {
		t.Fatalf("alerts after release = %+v, want none", alerts)
	}
	status := core.AlertResolved
	resolved, err := svc.ListAlerts(ctx, core.AlertFilter{Status: &status})
	if err != nil {
		t.Fatalf("list resolved: %v", err)
	}
	if len(resolved) != 1 {
		t.Fatalf("resolved = %d, want 1", len(resolved))
	}
}
