package core

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type WarehouseType string

const (
	WarehouseMain         WarehouseType = "main"
	WarehouseDistribution WarehouseType = "distribution"
	WarehouseRetail       WarehouseType = "retail"
)

// Warehouse is the root of the storage location hierarchy.
type Warehouse struct {
	ID        uuid.UUID     `json:"id"`
	Code      string        `json:"code"`
	Name      string        `json:"name"`
	Type      WarehouseType `json:"type"`
	Address   string        `json:"address,omitempty"`
	Capacity  *int64        `json:"capacity,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// Zone subdivides a warehouse.
type Zone struct {
	ID          uuid.UUID `json:"id"`
	WarehouseID uuid.UUID `json:"warehouse_id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	CreatedAt   time.Time `json:"created_at"`
}

// Position is a single storage slot within a zone.
type Position struct {
	ID        uuid.UUID `json:"id"`
	ZoneID    uuid.UUID `json:"zone_id"`
	Code      string    `json:"code"`
	Capacity  *int64    `json:"capacity,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type TrackingType string

const (
	TrackingNone   TrackingType = "none"
	TrackingLot    TrackingType = "lot"
	TrackingSerial TrackingType = "serial"
	TrackingBoth   TrackingType = "both"
)

func (t TrackingType) RequiresLot() bool {
	return t == TrackingLot || t == TrackingBoth
}

func (t TrackingType) RequiresSerials() bool {
	return t == TrackingSerial || t == TrackingBoth
}

// Product identity (ID, SKU) is immutable once any movement references it.
type Product struct {
	ID              uuid.UUID       `json:"id"`
	SKU             string          `json:"sku"`
	Name            string          `json:"name"`
	Category        string          `json:"category"`
	UnitOfMeasure   string          `json:"unit_of_measure"`
	Fractional      bool            `json:"fractional"` // whether fractional quantities are legal
	TrackingType    TrackingType    `json:"tracking_type"`
	MinStockLevel   decimal.Decimal `json:"min_stock_level"`
	ReorderPoint    decimal.Decimal `json:"reorder_point"`
	ReorderQuantity decimal.Decimal `json:"reorder_quantity"`
	MaxStockLevel   decimal.Decimal `json:"max_stock_level"`
	CreatedAt       time.Time       `json:"created_at"`
}

type MovementType string

const (
	MovementIn          MovementType = "in"
	MovementOut         MovementType = "out"
	MovementTransfer    MovementType = "transfer"
	MovementAdjustment  MovementType = "adjustment"
	MovementReturn      MovementType = "return"
	MovementDamage      MovementType = "damage"
	MovementTheft       MovementType = "theft"
	MovementCount       MovementType = "count"
	MovementCorrection  MovementType = "correction"
	MovementAssembly    MovementType = "assembly"
	MovementDisassembly MovementType = "disassembly"
)

// MovementTypes is the closed set of admissible movement types. The
// validator dispatches on it; anything outside the set is rejected.
var MovementTypes = map[MovementType]bool{
	MovementIn: true, MovementOut: true, MovementTransfer: true,
	MovementAdjustment: true, MovementReturn: true, MovementDamage: true,
	MovementTheft: true, MovementCount: true, MovementCorrection: true,
	MovementAssembly: true, MovementDisassembly: true,
}

type MovementStatus string

const (
	MovementPending   MovementStatus = "pending"
	MovementConfirmed MovementStatus = "confirmed"
	MovementPartial   MovementStatus = "partial"
	MovementCancelled MovementStatus = "cancelled"
	MovementCompleted MovementStatus = "completed"
)

// Terminal reports whether no further status transition is permitted.
func (s MovementStatus) Terminal() bool {
	return s == MovementCompleted || s == MovementPartial || s == MovementCancelled
}

// Affects reports whether a movement in this status contributes to the
// stock level fold. Cancelled and pending movements never do.
func (s MovementStatus) Affects() bool {
	return s == MovementConfirmed || s == MovementCompleted || s == MovementPartial
}

// StockMovement is the ledger's atomic fact. Movements are never deleted;
// a cancelled movement is end-of-life and excluded from folding.
type StockMovement struct {
	ID              uuid.UUID        `json:"id"`
	Type            MovementType     `json:"type"`
	Status          MovementStatus   `json:"status"`
	ProductID       uuid.UUID        `json:"product_id"`
	Quantity        decimal.Decimal  `json:"quantity"`
	FromWarehouseID *uuid.UUID       `json:"from_warehouse_id,omitempty"`
	FromZoneID      *uuid.UUID       `json:"from_zone_id,omitempty"`
	FromPositionID  *uuid.UUID       `json:"from_position_id,omitempty"`
	ToWarehouseID   *uuid.UUID       `json:"to_warehouse_id,omitempty"`
	ToZoneID        *uuid.UUID       `json:"to_zone_id,omitempty"`
	ToPositionID    *uuid.UUID       `json:"to_position_id,omitempty"`
	LotNumber       *string          `json:"lot_number,omitempty"`
	SerialNumbers   []string         `json:"serial_numbers,omitempty"`
	Reference       string           `json:"reference,omitempty"`
	ReferenceType   *string          `json:"reference_type,omitempty"`
	ReferenceID     *uuid.UUID       `json:"reference_id,omitempty"`
	Reason          string           `json:"reason,omitempty"`
	UnitCost        *decimal.Decimal `json:"unit_cost,omitempty"`
	TotalCost       *decimal.Decimal `json:"total_cost,omitempty"`
	CreatedBy       string           `json:"created_by"`
	CreatedAt       time.Time        `json:"created_at"`
}

// MovementInput is the request shape submitted by the presentation layer.
// Status may be left empty (defaults to confirmed) or set to pending for
// movements that await approval.
type MovementInput struct {
	Type            MovementType     `json:"type"`
	Status          MovementStatus   `json:"status,omitempty"`
	ProductID       uuid.UUID        `json:"product_id"`
	Quantity        decimal.Decimal  `json:"quantity"`
	FromWarehouseID *uuid.UUID       `json:"from_warehouse_id,omitempty"`
	FromZoneID      *uuid.UUID       `json:"from_zone_id,omitempty"`
	FromPositionID  *uuid.UUID       `json:"from_position_id,omitempty"`
	ToWarehouseID   *uuid.UUID       `json:"to_warehouse_id,omitempty"`
	ToZoneID        *uuid.UUID       `json:"to_zone_id,omitempty"`
	ToPositionID    *uuid.UUID       `json:"to_position_id,omitempty"`
	LotNumber       *string          `json:"lot_number,omitempty"`
	SerialNumbers   []string         `json:"serial_numbers,omitempty"`
	Reference       string           `json:"reference,omitempty"`
	ReferenceType   *string          `json:"reference_type,omitempty"`
	ReferenceID     *uuid.UUID       `json:"reference_id,omitempty"`
	Reason          string           `json:"reason,omitempty"`
	UnitCost        *decimal.Decimal `json:"unit_cost,omitempty"`
	CreatedBy       string           `json:"created_by"`
}

// StockKey identifies one stock level. PositionID is uuid.Nil when the
// level is tracked at warehouse granularity.
type StockKey struct {
	ProductID   uuid.UUID
	WarehouseID uuid.UUID
	PositionID  uuid.UUID
}

// less imposes a total order on keys so that multi-key critical sections
// (transfers) always acquire locks in the same sequence.
func (k StockKey) less(other StockKey) bool {
	if k.ProductID != other.ProductID {
		return k.ProductID.String() < other.ProductID.String()
	}
	if k.WarehouseID != other.WarehouseID {
		return k.WarehouseID.String() < other.WarehouseID.String()
	}
	return k.PositionID.String() < other.PositionID.String()
}

// StockLevel is derived, never authored: OnHand is the fold of all
// stock-affecting movements touching the key, Reserved the live sum of
// active reservations, Available their difference.
type StockLevel struct {
	ProductID   uuid.UUID       `json:"product_id"`
	WarehouseID uuid.UUID       `json:"warehouse_id"`
	PositionID  *uuid.UUID      `json:"position_id,omitempty"`
	OnHand      decimal.Decimal `json:"on_hand"`
	Reserved    decimal.Decimal `json:"reserved"`
	Available   decimal.Decimal `json:"available"` // = OnHand - Reserved
}

type ReservationStatus string

const (
	ReservationActive   ReservationStatus = "active"
	ReservationReleased ReservationStatus = "released"
)

// Reservation soft-locks available stock for an order reference. It is
// independent of the movement ledger; only active reservations count
// against availability.
type Reservation struct {
	ID          uuid.UUID         `json:"id"`
	ProductID   uuid.UUID         `json:"product_id"`
	WarehouseID uuid.UUID         `json:"warehouse_id"`
	Quantity    decimal.Decimal   `json:"quantity"`
	OrderRef    string            `json:"order_ref"`
	Status      ReservationStatus `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
	ReleasedAt  *time.Time        `json:"released_at,omitempty"`
}

// AlertThreshold scopes alerting rules to a product category and/or a
// warehouse. Percentages scale the product's max stock level. Without a
// configured threshold the product's own absolute levels apply unchanged.
type AlertThreshold struct {
	ID                     uuid.UUID       `json:"id"`
	ProductCategory        *string         `json:"product_category,omitempty"`
	WarehouseID            *uuid.UUID      `json:"warehouse_id,omitempty"`
	MinStockPercentage     decimal.Decimal `json:"min_stock_percentage"`
	ReorderPointPercentage decimal.Decimal `json:"reorder_point_percentage"`
	CriticalDaysThreshold  int             `json:"critical_days_threshold"`
	WarningDaysThreshold   int             `json:"warning_days_threshold"`
	Priority               int             `json:"priority"` // lower wins on conflict
	Enabled                bool            `json:"enabled"`
	CreatedAt              time.Time       `json:"created_at"`
}

type AlertSeverity string

const (
	SeverityCritical AlertSeverity = "critical"
	SeverityWarning  AlertSeverity = "warning"
	SeverityInfo     AlertSeverity = "info"
)

type AlertStatus string

const (
	AlertActive       AlertStatus = "active"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertResolved     AlertStatus = "resolved"
	AlertSnoozed      AlertStatus = "snoozed"
)

// Open reports whether the alert still occupies the one-open-alert slot
// for its (product, warehouse) key.
func (s AlertStatus) Open() bool {
	return s == AlertActive || s == AlertAcknowledged || s == AlertSnoozed
}

// StockAlert is the alert engine's output. At most one open alert exists
// per (ProductID, WarehouseID); re-evaluation updates it in place.
type StockAlert struct {
	ID                     uuid.UUID        `json:"id"`
	ProductID              uuid.UUID        `json:"product_id"`
	WarehouseID            uuid.UUID        `json:"warehouse_id"`
	Severity               AlertSeverity    `json:"severity"`
	Status                 AlertStatus      `json:"status"`
	CurrentStock           decimal.Decimal  `json:"current_stock"`
	MinStockLevel          decimal.Decimal  `json:"min_stock_level"`
	ReorderPoint           decimal.Decimal  `json:"reorder_point"`
	DaysUntilStockout      *decimal.Decimal `json:"days_until_stockout,omitempty"` // nil = unbounded
	SuggestedOrderQuantity decimal.Decimal  `json:"suggested_order_quantity"`
	Message                string           `json:"message"`
	CreatedAt              time.Time        `json:"created_at"`
	UpdatedAt              time.Time        `json:"updated_at"`
	AcknowledgedBy         *string          `json:"acknowledged_by,omitempty"`
	AcknowledgedAt         *time.Time       `json:"acknowledged_at,omitempty"`
	SnoozedUntil           *time.Time       `json:"snoozed_until,omitempty"`
}

type PurchaseOrderStatus string

const (
	POStatusDraft     PurchaseOrderStatus = "draft"
	POStatusApproved  PurchaseOrderStatus = "approved"
	POStatusReceived  PurchaseOrderStatus = "received"
	POStatusCancelled PurchaseOrderStatus = "cancelled"
)

type PurchaseOrder struct {
	ID          uuid.UUID           `json:"id"`
	SupplierID  uuid.UUID           `json:"supplier_id"`
	WarehouseID uuid.UUID           `json:"warehouse_id"`
	Status      PurchaseOrderStatus `json:"status"`
	Reference   string              `json:"reference,omitempty"`
	CreatedBy   string              `json:"created_by"`
	CreatedAt   time.Time           `json:"created_at"`
	ApprovedAt  *time.Time          `json:"approved_at,omitempty"`
	ReceivedAt  *time.Time          `json:"received_at,omitempty"`
	Items       []PurchaseOrderItem `json:"items"`
}

type PurchaseOrderItem struct {
	ID               uuid.UUID       `json:"id"`
	OrderID          uuid.UUID       `json:"order_id"`
	ProductID        uuid.UUID       `json:"product_id"`
	OrderedQuantity  decimal.Decimal `json:"ordered_quantity"`
	ReceivedQuantity decimal.Decimal `json:"received_quantity"` // cumulative, <= OrderedQuantity
	UnitCost         decimal.Decimal `json:"unit_cost"`
}

// LineReceipt reports the cumulative received quantity for one PO item.
// Receiving is idempotent: repeating a call with unchanged cumulative
// totals produces no new movements. Lot and serial numbers describe the
// received delta and are required per the product's tracking type.
type LineReceipt struct {
	ItemID           uuid.UUID       `json:"item_id"`
	ReceivedQuantity decimal.Decimal `json:"received_quantity"`
	LotNumber        *string         `json:"lot_number,omitempty"`
	SerialNumbers    []string        `json:"serial_numbers,omitempty"`
}

// ReferencePurchaseOrder is the reference_type stamped on movements the
// receiving reconciler produces.
const ReferencePurchaseOrder = "purchase_order"

// SupplierCatalog is the read-only boundary to supplier/catalog data.
// Lead times feed the suggested-order-quantity computation; a missing
// record must not fail an evaluation.
type SupplierCatalog interface {
	LeadTimeDays(productID uuid.UUID) (leadDays int, ok bool)
}

// DefaultLeadTimeDays is the conservative fallback when no supplier
// record exists for a product.
const DefaultLeadTimeDays = 7
