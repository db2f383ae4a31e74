package core

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Locations manages the warehouse hierarchy and the product catalog.
// Deletes are guarded: stores return ErrReferenced for any record the
// ledger still points at.
type Locations struct {
	store Store
	now   func() time.Time
	log   zerolog.Logger
}

func NewLocations(store Store, logger zerolog.Logger) *Locations {
	return &Locations{
		store: store,
		now:   time.Now,
		log:   logger.With().Str("component", "locations").Logger(),
	}
}

// ── Products ─────────────────────────────────────────────────────────────────

func (s *Locations) CreateProduct(ctx context.Context, p Product) (*Product, error) {
	if p.SKU == "" || p.Name == "" {
		return nil, newValidationError(CodeValidationFailed, "product needs a sku and a name")
	}
	if p.MinStockLevel.Sign() < 0 || p.ReorderPoint.Sign() < 0 || p.ReorderQuantity.Sign() < 0 || p.MaxStockLevel.Sign() < 0 {
		return nil, newValidationError(CodeNegativeQuantity, "product stock levels cannot be negative")
	}
	switch p.TrackingType {
	case "", TrackingNone:
		p.TrackingType = TrackingNone
	case TrackingLot, TrackingSerial, TrackingBoth:
	default:
		return nil, newValidationError(CodeValidationFailed, "unknown tracking type %q", p.TrackingType)
	}
	if p.TrackingType.RequiresSerials() && p.Fractional {
		return nil, newValidationError(CodeValidationFailed, "serial-tracked products cannot be fractional")
	}

	if existing, err := s.store.GetProductBySKU(ctx, p.SKU); err == nil && existing != nil {
		return nil, ErrDuplicateCode
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, wrapStorage("lookup product sku", err)
	}

	p.ID = uuid.New()
	p.CreatedAt = s.now().UTC()
	if err := s.store.CreateProduct(ctx, &p); err != nil {
		return nil, wrapStorage("create product", err)
	}
	return &p, nil
}

func (s *Locations) GetProduct(ctx context.Context, id uuid.UUID) (*Product, error) {
	p, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return nil, wrapStorage("get product", err)
	}
	return p, nil
}

func (s *Locations) ListProducts(ctx context.Context) ([]Product, error) {
	products, err := s.store.ListProducts(ctx)
	if err != nil {
		return nil, wrapStorage("list products", err)
	}
	return products, nil
}

// ── Warehouses ───────────────────────────────────────────────────────────────

func (s *Locations) CreateWarehouse(ctx context.Context, w Warehouse) (*Warehouse, error) {
	if w.Code == "" || w.Name == "" {
		return nil, newValidationError(CodeValidationFailed, "warehouse needs a code and a name")
	}
	switch w.Type {
	case WarehouseMain, WarehouseDistribution, WarehouseRetail:
	case "":
		w.Type = WarehouseMain
	default:
		return nil, newValidationError(CodeValidationFailed, "unknown warehouse type %q", w.Type)
	}

	if existing, err := s.store.GetWarehouseByCode(ctx, w.Code); err == nil && existing != nil {
		return nil, ErrDuplicateCode
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, wrapStorage("lookup warehouse code", err)
	}

	w.ID = uuid.New()
	w.CreatedAt = s.now().UTC()
	if err := s.store.CreateWarehouse(ctx, &w); err != nil {
		return nil, wrapStorage("create warehouse", err)
	}
	s.log.Info().Str("warehouse_id", w.ID.String()).Str("code", w.Code).Msg("warehouse created")
	return &w, nil
}

func (s *Locations) GetWarehouse(ctx context.Context, id uuid.UUID) (*Warehouse, error) {
	w, err := s.store.GetWarehouse(ctx, id)
	if err != nil {
		return nil, wrapStorage("get warehouse", err)
	}
	return w, nil
}

func (s *Locations) ListWarehouses(ctx context.Context) ([]Warehouse, error) {
	warehouses, err := s.store.ListWarehouses(ctx)
	if err != nil {
		return nil, wrapStorage("list warehouses", err)
	}
	return warehouses, nil
}

func (s *Locations) UpdateWarehouse(ctx context.Context, w Warehouse) (*Warehouse, error) {
	current, err := s.store.GetWarehouse(ctx, w.ID)
	if err != nil {
		return nil, wrapStorage("get warehouse", err)
	}
	// Code is identity once assigned; only descriptive fields move.
	w.Code = current.Code
	w.CreatedAt = current.CreatedAt
	if w.Name == "" {
		return nil, newValidationError(CodeValidationFailed, "warehouse name cannot be empty")
	}
	if err := s.store.UpdateWarehouse(ctx, &w); err != nil {
		return nil, wrapStorage("update warehouse", err)
	}
	return &w, nil
}

// DeleteWarehouse refuses when the warehouse still holds zones or is
// referenced by movements (the store surfaces ErrReferenced).
func (s *Locations) DeleteWarehouse(ctx context.Context, id uuid.UUID) error {
	zones, err := s.store.ListZones(ctx, id)
	if err != nil {
		return wrapStorage("list zones", err)
	}
	if len(zones) > 0 {
		return ErrReferenced
	}
	if err := s.store.DeleteWarehouse(ctx, id); err != nil {
		if errors.Is(err, ErrReferenced) || errors.Is(err, ErrNotFound) {
			return err
		}
		return wrapStorage("delete warehouse", err)
	}
	return nil
}

// ── Zones ────────────────────────────────────────────────────────────────────

func (s *Locations) CreateZone(ctx context.Context, z Zone) (*Zone, error) {
	if z.Code == "" {
		return nil, newValidationError(CodeValidationFailed, "zone needs a code")
	}
	if _, err := s.store.GetWarehouse(ctx, z.WarehouseID); err != nil {
		return nil, newValidationError(CodeMissingLocation, "warehouse %s not found", z.WarehouseID)
	}

	siblings, err := s.store.ListZones(ctx, z.WarehouseID)
	if err != nil {
		return nil, wrapStorage("list zones", err)
	}
	for i := range siblings {
		if siblings[i].Code == z.Code {
			return nil, ErrDuplicateCode
		}
	}

	z.ID = uuid.New()
	z.CreatedAt = s.now().UTC()
	if err := s.store.CreateZone(ctx, &z); err != nil {
		return nil, wrapStorage("create zone", err)
	}
	return &z, nil
}

func (s *Locations) ListZones(ctx context.Context, warehouseID uuid.UUID) ([]Zone, error) {
	zones, err := s.store.ListZones(ctx, warehouseID)
	if err != nil {
		return nil, wrapStorage("list zones", err)
	}
	return zones, nil
}

func (s *Locations) DeleteZone(ctx context.Context, id uuid.UUID) error {
	positions, err := s.store.ListPositions(ctx, id)
	if err != nil {
		return wrapStorage("list positions", err)
	}
	if len(positions) > 0 {
		return ErrReferenced
	}
	if err := s.store.DeleteZone(ctx, id); err != nil {
		if errors.Is(err, ErrReferenced) || errors.Is(err, ErrNotFound) {
			return err
		}
		return wrapStorage("delete zone", err)
	}
	return nil
}

// ── Positions ────────────────────────────────────────────────────────────────

func (s *Locations) CreatePosition(ctx context.Context, p Position) (*Position, error) {
	if p.Code == "" {
		return nil, newValidationError(CodeValidationFailed, "position needs a code")
	}
	if _, err := s.store.GetZone(ctx, p.ZoneID); err != nil {
		return nil, newValidationError(CodeMissingLocation, "zone %s not found", p.ZoneID)
	}

	siblings, err := s.store.ListPositions(ctx, p.ZoneID)
	if err != nil {
		return nil, wrapStorage("list positions", err)
	}
	for i := range siblings {
		if siblings[i].Code == p.Code {
			return nil, ErrDuplicateCode
		}
	}

	p.ID = uuid.New()
	p.CreatedAt = s.now().UTC()
	if err := s.store.CreatePosition(ctx, &p); err != nil {
		return nil, wrapStorage("create position", err)
	}
	return &p, nil
}

func (s *Locations) ListPositions(ctx context.Context, zoneID uuid.UUID) ([]Position, error) {
	positions, err := s.store.ListPositions(ctx, zoneID)
	if err != nil {
		return nil, wrapStorage("list positions", err)
	}
	return positions, nil
}

func (s *Locations) DeletePosition(ctx context.Context, id uuid.UUID) error {
	if err := s.store.DeletePosition(ctx, id); err != nil {
		if errors.Is(err, ErrReferenced) || errors.Is(err, ErrNotFound) {
			return err
		}
		return wrapStorage("delete position", err)
	}
	return nil
}
