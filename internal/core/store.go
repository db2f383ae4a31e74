package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MovementFilter narrows movement history listings at the API boundary.
type MovementFilter struct {
	ProductID   *uuid.UUID
	WarehouseID *uuid.UUID
	Type        *MovementType
	Status      *MovementStatus
	Limit       int
	Offset      int
}

// AlertFilter narrows alert listings for the presentation layer.
type AlertFilter struct {
	WarehouseID *uuid.UUID
	Severity    *AlertSeverity
	Status      *AlertStatus
}

// Store is the durable-store port. The core is agnostic to the concrete
// technology; implementations must provide read-after-write consistency
// per key. Selection happens once at construction time -- there is no
// ambient mode flag.
//
// All methods return ErrNotFound for missing records and wrap I/O
// failures in StorageError.
type Store interface {
	// Products
	CreateProduct(ctx context.Context, p *Product) error
	GetProduct(ctx context.Context, id uuid.UUID) (*Product, error)
	GetProductBySKU(ctx context.Context, sku string) (*Product, error)
	ListProducts(ctx context.Context) ([]Product, error)

	// Location hierarchy
	CreateWarehouse(ctx context.Context, w *Warehouse) error
	GetWarehouse(ctx context.Context, id uuid.UUID) (*Warehouse, error)
	GetWarehouseByCode(ctx context.Context, code string) (*Warehouse, error)
	ListWarehouses(ctx context.Context) ([]Warehouse, error)
	UpdateWarehouse(ctx context.Context, w *Warehouse) error
	DeleteWarehouse(ctx context.Context, id uuid.UUID) error
	CreateZone(ctx context.Context, z *Zone) error
	GetZone(ctx context.Context, id uuid.UUID) (*Zone, error)
	ListZones(ctx context.Context, warehouseID uuid.UUID) ([]Zone, error)
	DeleteZone(ctx context.Context, id uuid.UUID) error
	CreatePosition(ctx context.Context, p *Position) error
	GetPosition(ctx context.Context, id uuid.UUID) (*Position, error)
	ListPositions(ctx context.Context, zoneID uuid.UUID) ([]Position, error)
	DeletePosition(ctx context.Context, id uuid.UUID) error

	// Movement ledger: append-only; the single permitted mutation is a
	// status transition, enforced by the ledger service.
	AppendMovement(ctx context.Context, m *StockMovement) error
	GetMovement(ctx context.Context, id uuid.UUID) (*StockMovement, error)
	SetMovementStatus(ctx context.Context, id uuid.UUID, status MovementStatus) error
	MovementsForProductWarehouse(ctx context.Context, productID, warehouseID uuid.UUID) ([]StockMovement, error)
	MovementsByReference(ctx context.Context, referenceType string, referenceID uuid.UUID) ([]StockMovement, error)
	ListMovements(ctx context.Context, f MovementFilter) ([]StockMovement, error)
	// StockKeys returns every distinct (product, warehouse) pair any
	// movement has touched; the sweep iterates over it.
	StockKeys(ctx context.Context) ([]StockKey, error)

	// Reservations
	CreateReservation(ctx context.Context, r *Reservation) error
	ActiveReservations(ctx context.Context, productID, warehouseID uuid.UUID) ([]Reservation, error)
	ReservationsByOrderRef(ctx context.Context, orderRef string) ([]Reservation, error)
	ReleaseReservation(ctx context.Context, id uuid.UUID, at time.Time) error

	// Alert thresholds
	CreateThreshold(ctx context.Context, t *AlertThreshold) error
	GetThreshold(ctx context.Context, id uuid.UUID) (*AlertThreshold, error)
	UpdateThreshold(ctx context.Context, t *AlertThreshold) error
	DeleteThreshold(ctx context.Context, id uuid.UUID) error
	ListThresholds(ctx context.Context) ([]AlertThreshold, error)

	// Stock alerts. OpenAlert returns the single alert with status in
	// {active, acknowledged, snoozed} for the key, or ErrNotFound.
	OpenAlert(ctx context.Context, productID, warehouseID uuid.UUID) (*StockAlert, error)
	GetAlert(ctx context.Context, id uuid.UUID) (*StockAlert, error)
	SaveAlert(ctx context.Context, a *StockAlert) error
	ListAlerts(ctx context.Context, f AlertFilter) ([]StockAlert, error)

	// Purchase orders
	CreatePurchaseOrder(ctx context.Context, po *PurchaseOrder) error
	GetPurchaseOrder(ctx context.Context, id uuid.UUID) (*PurchaseOrder, error)
	UpdatePurchaseOrder(ctx context.Context, po *PurchaseOrder) error
	ListPurchaseOrders(ctx context.Context, status *PurchaseOrderStatus) ([]PurchaseOrder, error)
	// ApplyReceipt persists a receipt's movements together with the
	// order update as one unit: either all of it lands or none of it.
	ApplyReceipt(ctx context.Context, po *PurchaseOrder, movements []*StockMovement) error

	Ping(ctx context.Context) error
}
