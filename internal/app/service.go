// Package app exposes the single service surface UI adapters call. It
// decouples presentation from the core services and owns the one piece
// of orchestration the core deliberately does not: re-evaluating alerts
// after operations that move stock.
package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"stock-ledger/internal/core"
	"stock-ledger/internal/notify"
)

// ApplicationService is the boundary all adapters program against.
// Implementations contain no display logic of any kind.
type ApplicationService interface {
	// Movements
	RecordMovement(ctx context.Context, in core.MovementInput) (*core.StockMovement, error)
	TransitionMovement(ctx context.Context, id uuid.UUID, next core.MovementStatus) (*core.StockMovement, error)
	GetMovement(ctx context.Context, id uuid.UUID) (*core.StockMovement, error)
	ListMovements(ctx context.Context, f core.MovementFilter) ([]core.StockMovement, error)

	// Stock levels
	GetStockLevel(ctx context.Context, productID, warehouseID uuid.UUID, positionID *uuid.UUID) (*core.StockLevel, error)

	// Reservations
	Reserve(ctx context.Context, productID, warehouseID uuid.UUID, quantity decimal.Decimal, orderRef string) (*core.Reservation, error)
	ReleaseReservations(ctx context.Context, orderRef string) (int, error)
	ActiveReservations(ctx context.Context, productID, warehouseID uuid.UUID) ([]core.Reservation, error)

	// Alerts
	ListAlerts(ctx context.Context, f core.AlertFilter) ([]core.StockAlert, error)
	AcknowledgeAlert(ctx context.Context, id uuid.UUID, actor string) (*core.StockAlert, error)
	SnoozeAlert(ctx context.Context, id uuid.UUID, until time.Time) (*core.StockAlert, error)
	RecentAlertEvents(n int) []core.AlertEvent

	// Thresholds
	CreateThreshold(ctx context.Context, t core.AlertThreshold) (*core.AlertThreshold, error)
	UpdateThreshold(ctx context.Context, t core.AlertThreshold) (*core.AlertThreshold, error)
	DeleteThreshold(ctx context.Context, id uuid.UUID) error
	ListThresholds(ctx context.Context) ([]core.AlertThreshold, error)

	// Purchase orders
	CreatePurchaseOrder(ctx context.Context, po core.PurchaseOrder) (*core.PurchaseOrder, error)
	ApprovePurchaseOrder(ctx context.Context, id uuid.UUID) (*core.PurchaseOrder, error)
	CancelPurchaseOrder(ctx context.Context, id uuid.UUID) (*core.PurchaseOrder, error)
	ReceivePurchaseOrder(ctx context.Context, id uuid.UUID, receipts []core.LineReceipt, actor string) (*core.PurchaseOrder, error)
	GetPurchaseOrder(ctx context.Context, id uuid.UUID) (*core.PurchaseOrder, error)
	ListPurchaseOrders(ctx context.Context, status *core.PurchaseOrderStatus) ([]core.PurchaseOrder, error)

	// Catalog and locations
	CreateProduct(ctx context.Context, p core.Product) (*core.Product, error)
	ListProducts(ctx context.Context) ([]core.Product, error)
	CreateWarehouse(ctx context.Context, w core.Warehouse) (*core.Warehouse, error)
	GetWarehouse(ctx context.Context, id uuid.UUID) (*core.Warehouse, error)
	ListWarehouses(ctx context.Context) ([]core.Warehouse, error)
	UpdateWarehouse(ctx context.Context, w core.Warehouse) (*core.Warehouse, error)
	DeleteWarehouse(ctx context.Context, id uuid.UUID) error
	CreateZone(ctx context.Context, z core.Zone) (*core.Zone, error)
	ListZones(ctx context.Context, warehouseID uuid.UUID) ([]core.Zone, error)
	DeleteZone(ctx context.Context, id uuid.UUID) error
	CreatePosition(ctx context.Context, p core.Position) (*core.Position, error)
	ListPositions(ctx context.Context, zoneID uuid.UUID) ([]core.Position, error)
	DeletePosition(ctx context.Context, id uuid.UUID) error

	Health(ctx context.Context) error
}

type appService struct {
	store        core.Store
	ledger       *core.Ledger
	reservations *core.ReservationTracker
	alerts       *core.AlertEngine
	receiving    *core.Receiving
	locations    *core.Locations
	feed         *notify.Feed
	log          zerolog.Logger
}

func NewAppService(store core.Store, ledger *core.Ledger, reservations *core.ReservationTracker,
	alerts *core.AlertEngine, receiving *core.Receiving, locations *core.Locations,
	feed *notify.Feed, logger zerolog.Logger) ApplicationService {
	return &appService{
		store:        store,
		ledger:       ledger,
		reservations: reservations,
		alerts:       alerts,
		receiving:    receiving,
		locations:    locations,
		feed:         feed,
		log:          logger.With().Str("component", "app").Logger(),
	}
}

// evaluate re-grades alerts for every warehouse a movement touched. A
// failed evaluation never fails the operation that triggered it; the
// periodic sweep will catch up.
func (s *appService) evaluate(ctx context.Context, productID uuid.UUID, warehouseIDs ...*uuid.UUID) {
	seen := make(map[uuid.UUID]bool, len(warehouseIDs))
	for _, wid := range warehouseIDs {
		if wid == nil || seen[*wid] {
			continue
		}
		seen[*wid] = true
		if _, err := s.alerts.Evaluate(ctx, productID, *wid); err != nil {
			s.log.Error().Err(err).
				Str("product_id", productID.String()).
				Str("warehouse_id", wid.String()).
				Msg("alert evaluation failed after movement")
		}
	}
}

// ── Movements ────────────────────────────────────────────────────────────────

func (s *appService) RecordMovement(ctx context.Context, in core.MovementInput) (*core.StockMovement, error) {
	m, err := s.ledger.Append(ctx, in)
	if err != nil {
		return nil, err
	}
	s.evaluate(ctx, m.ProductID, m.FromWarehouseID, m.ToWarehouseID)
	return m, nil
}

func (s *appService) TransitionMovement(ctx context.Context, id uuid.UUID, next core.MovementStatus) (*core.StockMovement, error) {
	m, err := s.ledger.Transition(ctx, id, next)
	if err != nil {
		return nil, err
	}
	s.evaluate(ctx, m.ProductID, m.FromWarehouseID, m.ToWarehouseID)
	return m, nil
}

func (s *appService) GetMovement(ctx context.Context, id uuid.UUID) (*core.StockMovement, error) {
	return s.ledger.GetMovement(ctx, id)
}

func (s *appService) ListMovements(ctx context.Context, f core.MovementFilter) ([]core.StockMovement, error) {
	return s.ledger.Movements(ctx, f)
}

// ── Stock levels ─────────────────────────────────────────────────────────────

func (s *appService) GetStockLevel(ctx context.Context, productID, warehouseID uuid.UUID, positionID *uuid.UUID) (*core.StockLevel, error) {
	return s.ledger.ProjectStockLevel(ctx, productID, warehouseID, positionID)
}

// ── Reservations ─────────────────────────────────────────────────────────────

func (s *appService) Reserve(ctx context.Context, productID, warehouseID uuid.UUID, quantity decimal.Decimal, orderRef string) (*core.Reservation, error) {
	r, err := s.reservations.Reserve(ctx, productID, warehouseID, quantity, orderRef)
	if err != nil {
		return nil, err
	}
	s.evaluate(ctx, productID, &warehouseID)
	return r, nil
}

func (s *appService) ReleaseReservations(ctx context.Context, orderRef string) (int, error) {
	released, err := s.reservations.Release(ctx, orderRef)
	if err != nil {
		return len(released), err
	}
	// Releasing raises availability; an alerted key may be healthy now.
	for i := range released {
		s.evaluate(ctx, released[i].ProductID, &released[i].WarehouseID)
	}
	return len(released), nil
}

func (s *appService) ActiveReservations(ctx context.Context, productID, warehouseID uuid.UUID) ([]core.Reservation, error) {
	return s.reservations.ActiveFor(ctx, productID, warehouseID)
}

// ── Alerts ───────────────────────────────────────────────────────────────────

func (s *appService) ListAlerts(ctx context.Context, f core.AlertFilter) ([]core.StockAlert, error) {
	return s.alerts.ListAlerts(ctx, f)
}

func (s *appService) AcknowledgeAlert(ctx context.Context, id uuid.UUID, actor string) (*core.StockAlert, error) {
	return s.alerts.Acknowledge(ctx, id, actor)
}

func (s *appService) SnoozeAlert(ctx context.Context, id uuid.UUID, until time.Time) (*core.StockAlert, error) {
	return s.alerts.Snooze(ctx, id, until)
}

func (s *appService) RecentAlertEvents(n int) []core.AlertEvent {
	if s.feed == nil {
		return nil
	}
	return s.feed.Recent(n)
}

// ── Thresholds ───────────────────────────────────────────────────────────────

func (s *appService) CreateThreshold(ctx context.Context, t core.AlertThreshold) (*core.AlertThreshold, error) {
	return s.alerts.CreateThreshold(ctx, t)
}

func (s *appService) UpdateThreshold(ctx context.Context, t core.AlertThreshold) (*core.AlertThreshold, error) {
	return s.alerts.UpdateThreshold(ctx, t)
}

func (s *appService) DeleteThreshold(ctx context.Context, id uuid.UUID) error {
	return s.alerts.DeleteThreshold(ctx, id)
}

func (s *appService) ListThresholds(ctx context.Context) ([]core.AlertThreshold, error) {
	return s.alerts.ListThresholds(ctx)
}

// ── Purchase orders ──────────────────────────────────────────────────────────

func (s *appService) CreatePurchaseOrder(ctx context.Context, po core.PurchaseOrder) (*core.PurchaseOrder, error) {
	return s.receiving.CreateOrder(ctx, po)
}

func (s *appService) ApprovePurchaseOrder(ctx context.Context, id uuid.UUID) (*core.PurchaseOrder, error) {
	return s.receiving.Approve(ctx, id)
}

func (s *appService) CancelPurchaseOrder(ctx context.Context, id uuid.UUID) (*core.PurchaseOrder, error) {
	return s.receiving.Cancel(ctx, id)
}

func (s *appService) ReceivePurchaseOrder(ctx context.Context, id uuid.UUID, receipts []core.LineReceipt, actor string) (*core.PurchaseOrder, error) {
	po, err := s.receiving.Receive(ctx, id, receipts, actor)
	if err != nil {
		return nil, err
	}
	for i := range po.Items {
		s.evaluate(ctx, po.Items[i].ProductID, &po.WarehouseID)
	}
	return po, nil
}

func (s *appService) GetPurchaseOrder(ctx context.Context, id uuid.UUID) (*core.PurchaseOrder, error) {
	return s.receiving.GetOrder(ctx, id)
}

func (s *appService) ListPurchaseOrders(ctx context.Context, status *core.PurchaseOrderStatus) ([]core.PurchaseOrder, error) {
	return s.receiving.ListOrders(ctx, status)
}

// ── Catalog and locations ────────────────────────────────────────────────────

func (s *appService) CreateProduct(ctx context.Context, p core.Product) (*core.Product, error) {
	return s.locations.CreateProduct(ctx, p)
}

func (s *appService) ListProducts(ctx context.Context) ([]core.Product, error) {
	return s.locations.ListProducts(ctx)
}

func (s *appService) CreateWarehouse(ctx context.Context, w core.Warehouse) (*core.Warehouse, error) {
	return s.locations.CreateWarehouse(ctx, w)
}

func (s *appService) GetWarehouse(ctx context.Context, id uuid.UUID) (*core.Warehouse, error) {
	return s.locations.GetWarehouse(ctx, id)
}

func (s *appService) ListWarehouses(ctx context.Context) ([]core.Warehouse, error) {
	return s.locations.ListWarehouses(ctx)
}

func (s *appService) UpdateWarehouse(ctx context.Context, w core.Warehouse) (*core.Warehouse, error) {
	return s.locations.UpdateWarehouse(ctx, w)
}

func (s *appService) DeleteWarehouse(ctx context.Context, id uuid.UUID) error {
	return s.locations.DeleteWarehouse(ctx, id)
}

func (s *appService) CreateZone(ctx context.Context, z core.Zone) (*core.Zone, error) {
	return s.locations.CreateZone(ctx, z)
}

func (s *appService) ListZones(ctx context.Context, warehouseID uuid.UUID) ([]core.Zone, error) {
	return s.locations.ListZones(ctx, warehouseID)
}

func (s *appService) DeleteZone(ctx context.Context, id uuid.UUID) error {
	return s.locations.DeleteZone(ctx, id)
}

func (s *appService) CreatePosition(ctx context.Context, p core.Position) (*core.Position, error) {
	return s.locations.CreatePosition(ctx, p)
}

func (s *appService) ListPositions(ctx context.Context, zoneID uuid.UUID) ([]core.Position, error) {
	return s.locations.ListPositions(ctx, zoneID)
}

func (s *appService) DeletePosition(ctx context.Context, id uuid.UUID) error {
	return s.locations.DeletePosition(ctx, id)
}

func (s *appService) Health(ctx context.Context) error {
	return s.store.Ping(ctx)
}
