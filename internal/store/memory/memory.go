// Package memory provides the map-backed Store used by tests and by
// deployments that run without Postgres. All methods copy on the way in
// and out, so callers never share backing memory with the store.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"stock-ledger/internal/core"
)

type Store struct {
	mu sync.RWMutex

	products     map[uuid.UUID]core.Product
	warehouses   map[uuid.UUID]core.Warehouse
	zones        map[uuid.UUID]core.Zone
	positions    map[uuid.UUID]core.Position
	movements    []core.StockMovement
	movementIdx  map[uuid.UUID]int
	reservations map[uuid.UUID]core.Reservation
	thresholds   map[uuid.UUID]core.AlertThreshold
	alerts       map[uuid.UUID]core.StockAlert
	orders       map[uuid.UUID]core.PurchaseOrder
}

func New() *Store {
	return &Store{
		products:     make(map[uuid.UUID]core.Product),
		warehouses:   make(map[uuid.UUID]core.Warehouse),
		zones:        make(map[uuid.UUID]core.Zone),
		positions:    make(map[uuid.UUID]core.Position),
		movementIdx:  make(map[uuid.UUID]int),
		reservations: make(map[uuid.UUID]core.Reservation),
		thresholds:   make(map[uuid.UUID]core.AlertThreshold),
		alerts:       make(map[uuid.UUID]core.StockAlert),
		orders:       make(map[uuid.UUID]core.PurchaseOrder),
	}
}

var _ core.Store = (*Store)(nil)

// ── Products ─────────────────────────────────────────────────────────────────

func (s *Store) CreateProduct(_ context.Context, p *core.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = *p
	return nil
}

func (s *Store) GetProduct(_ context.Context, id uuid.UUID) (*core.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &p, nil
}

func (s *Store) GetProductBySKU(_ context.Context, sku string) (*core.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.products {
		if p.SKU == sku {
			out := p
			return &out, nil
		}
	}
	return nil, core.ErrNotFound
}

func (s *Store) ListProducts(_ context.Context) ([]core.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out, nil
}

// ── Location hierarchy ───────────────────────────────────────────────────────

func (s *Store) CreateWarehouse(_ context.Context, w *core.Warehouse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warehouses[w.ID] = *w
	return nil
}

func (s *Store) GetWarehouse(_ context.Context, id uuid.UUID) (*core.Warehouse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.warehouses[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &w, nil
}

func (s *Store) GetWarehouseByCode(_ context.Context, code string) (*core.Warehouse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, w := range s.warehouses {
		if w.Code == code {
			out := w
			return &out, nil
		}
	}
	return nil, core.ErrNotFound
}

func (s *Store) ListWarehouses(_ context.Context) ([]core.Warehouse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Warehouse, 0, len(s.warehouses))
	for _, w := range s.warehouses {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *Store) UpdateWarehouse(_ context.Context, w *core.Warehouse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.warehouses[w.ID]; !ok {
		return core.ErrNotFound
	}
	s.warehouses[w.ID] = *w
	return nil
}

func (s *Store) DeleteWarehouse(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.warehouses[id]; !ok {
		return core.ErrNotFound
	}
	for i := range s.movements {
		m := &s.movements[i]
		if (m.FromWarehouseID != nil && *m.FromWarehouseID == id) ||
			(m.ToWarehouseID != nil && *m.ToWarehouseID == id) {
			return core.ErrReferenced
		}
	}
	delete(s.warehouses, id)
	return nil
}

func (s *Store) CreateZone(_ context.Context, z *core.Zone) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zones[z.ID] = *z
	return nil
}

func (s *Store) GetZone(_ context.Context, id uuid.UUID) (*core.Zone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	z, ok := s.zones[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &z, nil
}

func (s *Store) ListZones(_ context.Context, warehouseID uuid.UUID) ([]core.Zone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Zone
	for _, z := range s.zones {
		if z.WarehouseID == warehouseID {
			out = append(out, z)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *Store) DeleteZone(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.zones[id]; !ok {
		return core.ErrNotFound
	}
	for i := range s.movements {
		m := &s.movements[i]
		if (m.FromZoneID != nil && *m.FromZoneID == id) ||
			(m.ToZoneID != nil && *m.ToZoneID == id) {
			return core.ErrReferenced
		}
	}
	delete(s.zones, id)
	return nil
}

func (s *Store) CreatePosition(_ context.Context, p *core.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[p.ID] = *p
	return nil
}

func (s *Store) GetPosition(_ context.Context, id uuid.UUID) (*core.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &p, nil
}

func (s *Store) ListPositions(_ context.Context, zoneID uuid.UUID) ([]core.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Position
	for _, p := range s.positions {
		if p.ZoneID == zoneID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *Store) DeletePosition(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.positions[id]; !ok {
		return core.ErrNotFound
	}
	for i := range s.movements {
		m := &s.movements[i]
		if (m.FromPositionID != nil && *m.FromPositionID == id) ||
			(m.ToPositionID != nil && *m.ToPositionID == id) {
			return core.ErrReferenced
		}
	}
	delete(s.positions, id)
	return nil
}

// ── Movement ledger ──────────────────────────────────────────────────────────

func (s *Store) AppendMovement(_ context.Context, m *core.StockMovement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.movementIdx[m.ID] = len(s.movements)
	s.movements = append(s.movements, copyMovement(m))
	return nil
}

func (s *Store) GetMovement(_ context.Context, id uuid.UUID) (*core.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.movementIdx[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	out := copyMovement(&s.movements[i])
	return &out, nil
}

func (s *Store) SetMovementStatus(_ context.Context, id uuid.UUID, status core.MovementStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.movementIdx[id]
	if !ok {
		return core.ErrNotFound
	}
	s.movements[i].Status = status
	return nil
}

func (s *Store) MovementsForProductWarehouse(_ context.Context, productID, warehouseID uuid.UUID) ([]core.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.StockMovement
	for i := range s.movements {
		m := &s.movements[i]
		if m.ProductID != productID {
			continue
		}
		if (m.FromWarehouseID != nil && *m.FromWarehouseID == warehouseID) ||
			(m.ToWarehouseID != nil && *m.ToWarehouseID == warehouseID) {
			out = append(out, copyMovement(m))
		}
	}
	return out, nil
}

func (s *Store) MovementsByReference(_ context.Context, referenceType string, referenceID uuid.UUID) ([]core.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.StockMovement
	for i := range s.movements {
		m := &s.movements[i]
		if m.ReferenceType != nil && *m.ReferenceType == referenceType &&
			m.ReferenceID != nil && *m.ReferenceID == referenceID {
			out = append(out, copyMovement(m))
		}
	}
	return out, nil
}

func (s *Store) ListMovements(_ context.Context, f core.MovementFilter) ([]core.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []core.StockMovement
	for i := range s.movements {
		m := &s.movements[i]
		if f.ProductID != nil && m.ProductID != *f.ProductID {
			continue
		}
		if f.WarehouseID != nil {
			hit := (m.FromWarehouseID != nil && *m.FromWarehouseID == *f.WarehouseID) ||
				(m.ToWarehouseID != nil && *m.ToWarehouseID == *f.WarehouseID)
			if !hit {
				continue
			}
		}
		if f.Type != nil && m.Type != *f.Type {
			continue
		}
		if f.Status != nil && m.Status != *f.Status {
			continue
		}
		matched = append(matched, copyMovement(m))
	}
	// Newest first, matching the history endpoint contract.
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	if f.Offset > 0 {
		if f.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[f.Offset:]
	}
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, nil
}

func (s *Store) StockKeys(_ context.Context) ([]core.StockKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[core.StockKey]bool)
	var out []core.StockKey
	add := func(productID uuid.UUID, warehouseID *uuid.UUID, positionID *uuid.UUID) {
		if warehouseID == nil {
			return
		}
		k := core.StockKey{ProductID: productID, WarehouseID: *warehouseID}
		if positionID != nil {
			k.PositionID = *positionID
		}
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	for i := range s.movements {
		m := &s.movements[i]
		add(m.ProductID, m.FromWarehouseID, m.FromPositionID)
		add(m.ProductID, m.ToWarehouseID, m.ToPositionID)
	}
	return out, nil
}

// ── Reservations ─────────────────────────────────────────────────────────────

func (s *Store) CreateReservation(_ context.Context, r *core.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reservations[r.ID] = *r
	return nil
}

func (s *Store) ActiveReservations(_ context.Context, productID, warehouseID uuid.UUID) ([]core.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Reservation
	for _, r := range s.reservations {
		if r.Status == core.ReservationActive && r.ProductID == productID && r.WarehouseID == warehouseID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ReservationsByOrderRef(_ context.Context, orderRef string) ([]core.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Reservation
	for _, r := range s.reservations {
		if r.OrderRef == orderRef {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ReleaseReservation(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok {
		return core.ErrNotFound
	}
	r.Status = core.ReservationReleased
	r.ReleasedAt = &at
	s.reservations[id] = r
	return nil
}

// ── Alert thresholds ─────────────────────────────────────────────────────────

func (s *Store) CreateThreshold(_ context.Context, t *core.AlertThreshold) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.thresholds[t.ID] = *t
	return nil
}

func (s *Store) GetThreshold(_ context.Context, id uuid.UUID) (*core.AlertThreshold, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.thresholds[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &t, nil
}

func (s *Store) UpdateThreshold(_ context.Context, t *core.AlertThreshold) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.thresholds[t.ID]; !ok {
		return core.ErrNotFound
	}
	s.thresholds[t.ID] = *t
	return nil
}

func (s *Store) DeleteThreshold(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.thresholds[id]; !ok {
		return core.ErrNotFound
	}
	delete(s.thresholds, id)
	return nil
}

func (s *Store) ListThresholds(_ context.Context) ([]core.AlertThreshold, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.AlertThreshold, 0, len(s.thresholds))
	for _, t := range s.thresholds {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out, nil
}

// ── Stock alerts ─────────────────────────────────────────────────────────────

func (s *Store) OpenAlert(_ context.Context, productID, warehouseID uuid.UUID) (*core.StockAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.alerts {
		if a.ProductID == productID && a.WarehouseID == warehouseID && a.Status.Open() {
			out := copyAlert(&a)
			return &out, nil
		}
	}
	return nil, core.ErrNotFound
}

func (s *Store) GetAlert(_ context.Context, id uuid.UUID) (*core.StockAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.alerts[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	out := copyAlert(&a)
	return &out, nil
}

func (s *Store) SaveAlert(_ context.Context, a *core.StockAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts[a.ID] = copyAlert(a)
	return nil
}

func (s *Store) ListAlerts(_ context.Context, f core.AlertFilter) ([]core.StockAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.StockAlert
	for _, a := range s.alerts {
		if f.WarehouseID != nil && a.WarehouseID != *f.WarehouseID {
			continue
		}
		if f.Severity != nil && a.Severity != *f.Severity {
			continue
		}
		if f.Status != nil && a.Status != *f.Status {
			continue
		}
		out = append(out, copyAlert(&a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// ── Purchase orders ──────────────────────────────────────────────────────────

func (s *Store) CreatePurchaseOrder(_ context.Context, po *core.PurchaseOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[po.ID] = copyOrder(po)
	return nil
}

func (s *Store) GetPurchaseOrder(_ context.Context, id uuid.UUID) (*core.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	po, ok := s.orders[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	out := copyOrder(&po)
	return &out, nil
}

func (s *Store) UpdatePurchaseOrder(_ context.Context, po *core.PurchaseOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[po.ID]; !ok {
		return core.ErrNotFound
	}
	s.orders[po.ID] = copyOrder(po)
	return nil
}

// ApplyReceipt lands the receipt's movements and the order update under
// one lock acquisition, so no reader observes a half-applied receipt.
func (s *Store) ApplyReceipt(_ context.Context, po *core.PurchaseOrder, movements []*core.StockMovement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[po.ID]; !ok {
		return core.ErrNotFound
	}
	for _, m := range movements {
		s.movementIdx[m.ID] = len(s.movements)
		s.movements = append(s.movements, copyMovement(m))
	}
	s.orders[po.ID] = copyOrder(po)
	return nil
}

func (s *Store) ListPurchaseOrders(_ context.Context, status *core.PurchaseOrderStatus) ([]core.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.PurchaseOrder
	for _, po := range s.orders {
		if status != nil && po.Status != *status {
			continue
		}
		out = append(out, copyOrder(&po))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) Ping(context.Context) error { return nil }

// ── copy helpers ─────────────────────────────────────────────────────────────

func copyMovement(m *core.StockMovement) core.StockMovement {
	out := *m
	if m.SerialNumbers != nil {
		out.SerialNumbers = append([]string(nil), m.SerialNumbers...)
	}
	return out
}

func copyAlert(a *core.StockAlert) core.StockAlert {
	out := *a
	if a.DaysUntilStockout != nil {
		d := *a.DaysUntilStockout
		out.DaysUntilStockout = &d
	}
	return out
}

func copyOrder(po *core.PurchaseOrder) core.PurchaseOrder {
	out := *po
	out.Items = append([]core.PurchaseOrderItem(nil), po.Items...)
	return out
}
