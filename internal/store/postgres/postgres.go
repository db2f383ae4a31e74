// Package postgres provides the durable Store backed by PostgreSQL.
// Queries are plain SQL over a pgx pool; only the ledger service mutates
// derived state, so every method here is a straight row mapping.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"stock-ledger/internal/core"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store { return &Store{pool: pool} }

var _ core.Store = (*Store)(nil)

// mapErr translates driver errors into the store's sentinel vocabulary.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return core.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23503": // foreign_key_violation
			return core.ErrReferenced
		case "23505": // unique_violation
			return core.ErrDuplicateCode
		}
	}
	return err
}

// ── Products ─────────────────────────────────────────────────────────────────

const productColumns = `id, sku, name, category, unit_of_measure, fractional, tracking_type,
	min_stock_level, reorder_point, reorder_quantity, max_stock_level, created_at`

func scanProduct(row pgx.Row) (*core.Product, error) {
	var p core.Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Category, &p.UnitOfMeasure, &p.Fractional,
		&p.TrackingType, &p.MinStockLevel, &p.ReorderPoint, &p.ReorderQuantity,
		&p.MaxStockLevel, &p.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, p *core.Product) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, p.ID, p.SKU, p.Name, p.Category, p.UnitOfMeasure, p.Fractional, p.TrackingType,
		p.MinStockLevel, p.ReorderPoint, p.ReorderQuantity, p.MaxStockLevel, p.CreatedAt)
	return mapErr(err)
}

func (s *Store) GetProduct(ctx context.Context, id uuid.UUID) (*core.Product, error) {
	return scanProduct(s.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
}

func (s *Store) GetProductBySKU(ctx context.Context, sku string) (*core.Product, error) {
	return scanProduct(s.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE sku = $1`, sku))
}

func (s *Store) ListProducts(ctx context.Context) ([]core.Product, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY sku`)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []core.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// ── Location hierarchy ───────────────────────────────────────────────────────

func scanWarehouse(row pgx.Row) (*core.Warehouse, error) {
	var w core.Warehouse
	err := row.Scan(&w.ID, &w.Code, &w.Name, &w.Type, &w.Address, &w.Capacity, &w.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &w, nil
}

func (s *Store) CreateWarehouse(ctx context.Context, w *core.Warehouse) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO warehouses (id, code, name, type, address, capacity, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, w.ID, w.Code, w.Name, w.Type, w.Address, w.Capacity, w.CreatedAt)
	return mapErr(err)
}

func (s *Store) GetWarehouse(ctx context.Context, id uuid.UUID) (*core.Warehouse, error) {
	return scanWarehouse(s.pool.QueryRow(ctx,
		`SELECT id, code, name, type, address, capacity, created_at FROM warehouses WHERE id = $1`, id))
}

func (s *Store) GetWarehouseByCode(ctx context.Context, code string) (*core.Warehouse, error) {
	return scanWarehouse(s.pool.QueryRow(ctx,
		`SELECT id, code, name, type, address, capacity, created_at FROM warehouses WHERE code = $1`, code))
}

func (s *Store) ListWarehouses(ctx context.Context) ([]core.Warehouse, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, code, name, type, address, capacity, created_at FROM warehouses ORDER BY code`)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []core.Warehouse
	for rows.Next() {
		w, err := scanWarehouse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

func (s *Store) UpdateWarehouse(ctx context.Context, w *core.Warehouse) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE warehouses SET name = $2, type = $3, address = $4, capacity = $5 WHERE id = $1
	`, w.ID, w.Name, w.Type, w.Address, w.Capacity)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteWarehouse(ctx context.Context, id uuid.UUID) error {
	var referenced bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM stock_movements WHERE from_warehouse_id = $1 OR to_warehouse_id = $1
		)`, id).Scan(&referenced)
	if err != nil {
		return mapErr(err)
	}
	if referenced {
		return core.ErrReferenced
	}

	tag, err := s.pool.Exec(ctx, `DELETE FROM warehouses WHERE id = $1`, id)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *Store) CreateZone(ctx context.Context, z *core.Zone) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO warehouse_zones (id, warehouse_id, code, name, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, z.ID, z.WarehouseID, z.Code, z.Name, z.CreatedAt)
	return mapErr(err)
}

func (s *Store) GetZone(ctx context.Context, id uuid.UUID) (*core.Zone, error) {
	var z core.Zone
	err := s.pool.QueryRow(ctx,
		`SELECT id, warehouse_id, code, name, created_at FROM warehouse_zones WHERE id = $1`, id).
		Scan(&z.ID, &z.WarehouseID, &z.Code, &z.Name, &z.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &z, nil
}

func (s *Store) ListZones(ctx context.Context, warehouseID uuid.UUID) ([]core.Zone, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, warehouse_id, code, name, created_at FROM warehouse_zones WHERE warehouse_id = $1 ORDER BY code`,
		warehouseID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []core.Zone
	for rows.Next() {
		var z core.Zone
		if err := rows.Scan(&z.ID, &z.WarehouseID, &z.Code, &z.Name, &z.CreatedAt); err != nil {
			return nil, mapErr(err)
		}
		out = append(out, z)
	}
	return out, rows.Err()
}

func (s *Store) DeleteZone(ctx context.Context, id uuid.UUID) error {
	var referenced bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM stock_movements WHERE from_zone_id = $1 OR to_zone_id = $1
		)`, id).Scan(&referenced)
	if err != nil {
		return mapErr(err)
	}
	if referenced {
		return core.ErrReferenced
	}

	tag, err := s.pool.Exec(ctx, `DELETE FROM warehouse_zones WHERE id = $1`, id)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *Store) CreatePosition(ctx context.Context, p *core.Position) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO warehouse_positions (id, zone_id, code, capacity, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, p.ID, p.ZoneID, p.Code, p.Capacity, p.CreatedAt)
	return mapErr(err)
}

func (s *Store) GetPosition(ctx context.Context, id uuid.UUID) (*core.Position, error) {
	var p core.Position
	err := s.pool.QueryRow(ctx,
		`SELECT id, zone_id, code, capacity, created_at FROM warehouse_positions WHERE id = $1`, id).
		Scan(&p.ID, &p.ZoneID, &p.Code, &p.Capacity, &p.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &p, nil
}

func (s *Store) ListPositions(ctx context.Context, zoneID uuid.UUID) ([]core.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, zone_id, code, capacity, created_at FROM warehouse_positions WHERE zone_id = $1 ORDER BY code`,
		zoneID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []core.Position
	for rows.Next() {
		var p core.Position
		if err := rows.Scan(&p.ID, &p.ZoneID, &p.Code, &p.Capacity, &p.CreatedAt); err != nil {
			return nil, mapErr(err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) DeletePosition(ctx context.Context, id uuid.UUID) error {
	var referenced bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM stock_movements WHERE from_position_id = $1 OR to_position_id = $1
		)`, id).Scan(&referenced)
	if err != nil {
		return mapErr(err)
	}
	if referenced {
		return core.ErrReferenced
	}

	tag, err := s.pool.Exec(ctx, `DELETE FROM warehouse_positions WHERE id = $1`, id)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

// ── Movement ledger ──────────────────────────────────────────────────────────

const movementColumns = `id, type, status, product_id, quantity,
	from_warehouse_id, from_zone_id, from_position_id,
	to_warehouse_id, to_zone_id, to_position_id,
	lot_number, serial_numbers, reference, reference_type, reference_id,
	reason, unit_cost, total_cost, created_by, created_at`

func scanMovement(row pgx.Row) (*core.StockMovement, error) {
	var m core.StockMovement
	err := row.Scan(&m.ID, &m.Type, &m.Status, &m.ProductID, &m.Quantity,
		&m.FromWarehouseID, &m.FromZoneID, &m.FromPositionID,
		&m.ToWarehouseID, &m.ToZoneID, &m.ToPositionID,
		&m.LotNumber, &m.SerialNumbers, &m.Reference, &m.ReferenceType, &m.ReferenceID,
		&m.Reason, &m.UnitCost, &m.TotalCost, &m.CreatedBy, &m.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &m, nil
}

func (s *Store) AppendMovement(ctx context.Context, m *core.StockMovement) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO stock_movements (`+movementColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
		        $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`, m.ID, m.Type, m.Status, m.ProductID, m.Quantity,
		m.FromWarehouseID, m.FromZoneID, m.FromPositionID,
		m.ToWarehouseID, m.ToZoneID, m.ToPositionID,
		m.LotNumber, m.SerialNumbers, m.Reference, m.ReferenceType, m.ReferenceID,
		m.Reason, m.UnitCost, m.TotalCost, m.CreatedBy, m.CreatedAt)
	return mapErr(err)
}

func (s *Store) GetMovement(ctx context.Context, id uuid.UUID) (*core.StockMovement, error) {
	return scanMovement(s.pool.QueryRow(ctx,
		`SELECT `+movementColumns+` FROM stock_movements WHERE id = $1`, id))
}

func (s *Store) SetMovementStatus(ctx context.Context, id uuid.UUID, status core.MovementStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE stock_movements SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *Store) MovementsForProductWarehouse(ctx context.Context, productID, warehouseID uuid.UUID) ([]core.StockMovement, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+movementColumns+` FROM stock_movements
		WHERE product_id = $1 AND (from_warehouse_id = $2 OR to_warehouse_id = $2)
		ORDER BY created_at
	`, productID, warehouseID)
	if err != nil {
		return nil, mapErr(err)
	}
	return collectMovements(rows)
}

func (s *Store) MovementsByReference(ctx context.Context, referenceType string, referenceID uuid.UUID) ([]core.StockMovement, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+movementColumns+` FROM stock_movements
		WHERE reference_type = $1 AND reference_id = $2
		ORDER BY created_at
	`, referenceType, referenceID)
	if err != nil {
		return nil, mapErr(err)
	}
	return collectMovements(rows)
}

func (s *Store) ListMovements(ctx context.Context, f core.MovementFilter) ([]core.StockMovement, error) {
	query := `SELECT ` + movementColumns + ` FROM stock_movements WHERE 1=1`
	args := []any{}
	n := 0
	next := func(v any) string {
		n++
		args = append(args, v)
		return fmt.Sprintf("$%d", n)
	}

	if f.ProductID != nil {
		query += ` AND product_id = ` + next(*f.ProductID)
	}
	if f.WarehouseID != nil {
		ph := next(*f.WarehouseID)
		query += ` AND (from_warehouse_id = ` + ph + ` OR to_warehouse_id = ` + ph + `)`
	}
	if f.Type != nil {
		query += ` AND type = ` + next(*f.Type)
	}
	if f.Status != nil {
		query += ` AND status = ` + next(*f.Status)
	}
	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		query += ` LIMIT ` + next(f.Limit)
	}
	if f.Offset > 0 {
		query += ` OFFSET ` + next(f.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	return collectMovements(rows)
}

func collectMovements(rows pgx.Rows) ([]core.StockMovement, error) {
	defer rows.Close()
	var out []core.StockMovement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (s *Store) StockKeys(ctx context.Context) ([]core.StockKey, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT product_id, warehouse_id, position_id FROM (
			SELECT product_id, from_warehouse_id AS warehouse_id,
			       COALESCE(from_position_id, '00000000-0000-0000-0000-000000000000'::uuid) AS position_id
			FROM stock_movements WHERE from_warehouse_id IS NOT NULL
			UNION ALL
			SELECT product_id, to_warehouse_id,
			       COALESCE(to_position_id, '00000000-0000-0000-0000-000000000000'::uuid)
			FROM stock_movements WHERE to_warehouse_id IS NOT NULL
		) keys
	`)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []core.StockKey
	for rows.Next() {
		var k core.StockKey
		if err := rows.Scan(&k.ProductID, &k.WarehouseID, &k.PositionID); err != nil {
			return nil, mapErr(err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// ── Reservations ─────────────────────────────────────────────────────────────

func (s *Store) CreateReservation(ctx context.Context, r *core.Reservation) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO stock_reservations (id, product_id, warehouse_id, quantity, order_ref, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, r.ID, r.ProductID, r.WarehouseID, r.Quantity, r.OrderRef, r.Status, r.CreatedAt)
	return mapErr(err)
}

const reservationColumns = `id, product_id, warehouse_id, quantity, order_ref, status, created_at, released_at`

func collectReservations(rows pgx.Rows) ([]core.Reservation, error) {
	defer rows.Close()
	var out []core.Reservation
	for rows.Next() {
		var r core.Reservation
		if err := rows.Scan(&r.ID, &r.ProductID, &r.WarehouseID, &r.Quantity,
			&r.OrderRef, &r.Status, &r.CreatedAt, &r.ReleasedAt); err != nil {
			return nil, mapErr(err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) ActiveReservations(ctx context.Context, productID, warehouseID uuid.UUID) ([]core.Reservation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+reservationColumns+` FROM stock_reservations
		WHERE product_id = $1 AND warehouse_id = $2 AND status = 'active'
		ORDER BY created_at
	`, productID, warehouseID)
	if err != nil {
		return nil, mapErr(err)
	}
	return collectReservations(rows)
}

func (s *Store) ReservationsByOrderRef(ctx context.Context, orderRef string) ([]core.Reservation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+reservationColumns+` FROM stock_reservations
		WHERE order_ref = $1 ORDER BY created_at
	`, orderRef)
	if err != nil {
		return nil, mapErr(err)
	}
	return collectReservations(rows)
}

func (s *Store) ReleaseReservation(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE stock_reservations SET status = 'released', released_at = $2 WHERE id = $1
	`, id, at)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

// ── Alert thresholds ─────────────────────────────────────────────────────────

const thresholdColumns = `id, product_category, warehouse_id, min_stock_percentage,
	reorder_point_percentage, critical_days_threshold, warning_days_threshold,
	priority, enabled, created_at`

func (s *Store) CreateThreshold(ctx context.Context, t *core.AlertThreshold) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO alert_thresholds (`+thresholdColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, t.ID, t.ProductCategory, t.WarehouseID, t.MinStockPercentage,
		t.ReorderPointPercentage, t.CriticalDaysThreshold, t.WarningDaysThreshold,
		t.Priority, t.Enabled, t.CreatedAt)
	return mapErr(err)
}

func scanThreshold(row pgx.Row) (*core.AlertThreshold, error) {
	var t core.AlertThreshold
	err := row.Scan(&t.ID, &t.ProductCategory, &t.WarehouseID, &t.MinStockPercentage,
		&t.ReorderPointPercentage, &t.CriticalDaysThreshold, &t.WarningDaysThreshold,
		&t.Priority, &t.Enabled, &t.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &t, nil
}

func (s *Store) GetThreshold(ctx context.Context, id uuid.UUID) (*core.AlertThreshold, error) {
	return scanThreshold(s.pool.QueryRow(ctx,
		`SELECT `+thresholdColumns+` FROM alert_thresholds WHERE id = $1`, id))
}

func (s *Store) UpdateThreshold(ctx context.Context, t *core.AlertThreshold) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE alert_thresholds SET product_category = $2, warehouse_id = $3,
			min_stock_percentage = $4, reorder_point_percentage = $5,
			critical_days_threshold = $6, warning_days_threshold = $7,
			priority = $8, enabled = $9
		WHERE id = $1
	`, t.ID, t.ProductCategory, t.WarehouseID, t.MinStockPercentage, t.ReorderPointPercentage,
		t.CriticalDaysThreshold, t.WarningDaysThreshold, t.Priority, t.Enabled)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteThreshold(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM alert_thresholds WHERE id = $1`, id)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *Store) ListThresholds(ctx context.Context) ([]core.AlertThreshold, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+thresholdColumns+` FROM alert_thresholds ORDER BY priority`)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []core.AlertThreshold
	for rows.Next() {
		t, err := scanThreshold(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// ── Stock alerts ─────────────────────────────────────────────────────────────

const alertColumns = `id, product_id, warehouse_id, severity, status, current_stock,
	min_stock_level, reorder_point, days_until_stockout, suggested_order_quantity,
	message, created_at, updated_at, acknowledged_by, acknowledged_at, snoozed_until`

func scanAlert(row pgx.Row) (*core.StockAlert, error) {
	var a core.StockAlert
	err := row.Scan(&a.ID, &a.ProductID, &a.WarehouseID, &a.Severity, &a.Status, &a.CurrentStock,
		&a.MinStockLevel, &a.ReorderPoint, &a.DaysUntilStockout, &a.SuggestedOrderQuantity,
		&a.Message, &a.CreatedAt, &a.UpdatedAt, &a.AcknowledgedBy, &a.AcknowledgedAt, &a.SnoozedUntil)
	if err != nil {
		return nil, mapErr(err)
	}
	return &a, nil
}

func (s *Store) OpenAlert(ctx context.Context, productID, warehouseID uuid.UUID) (*core.StockAlert, error) {
	return scanAlert(s.pool.QueryRow(ctx, `
		SELECT `+alertColumns+` FROM stock_alerts
		WHERE product_id = $1 AND warehouse_id = $2
		  AND status IN ('active', 'acknowledged', 'snoozed')
		LIMIT 1
	`, productID, warehouseID))
}

func (s *Store) GetAlert(ctx context.Context, id uuid.UUID) (*core.StockAlert, error) {
	return scanAlert(s.pool.QueryRow(ctx,
		`SELECT `+alertColumns+` FROM stock_alerts WHERE id = $1`, id))
}

func (s *Store) SaveAlert(ctx context.Context, a *core.StockAlert) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO stock_alerts (`+alertColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			severity = EXCLUDED.severity,
			status = EXCLUDED.status,
			current_stock = EXCLUDED.current_stock,
			min_stock_level = EXCLUDED.min_stock_level,
			reorder_point = EXCLUDED.reorder_point,
			days_until_stockout = EXCLUDED.days_until_stockout,
			suggested_order_quantity = EXCLUDED.suggested_order_quantity,
			message = EXCLUDED.message,
			updated_at = EXCLUDED.updated_at,
			acknowledged_by = EXCLUDED.acknowledged_by,
			acknowledged_at = EXCLUDED.acknowledged_at,
			snoozed_until = EXCLUDED.snoozed_until
	`, a.ID, a.ProductID, a.WarehouseID, a.Severity, a.Status, a.CurrentStock,
		a.MinStockLevel, a.ReorderPoint, a.DaysUntilStockout, a.SuggestedOrderQuantity,
		a.Message, a.CreatedAt, a.UpdatedAt, a.AcknowledgedBy, a.AcknowledgedAt, a.SnoozedUntil)
	return mapErr(err)
}

func (s *Store) ListAlerts(ctx context.Context, f core.AlertFilter) ([]core.StockAlert, error) {
	query := `SELECT ` + alertColumns + ` FROM stock_alerts WHERE 1=1`
	args := []any{}
	n := 0
	next := func(v any) string {
		n++
		args = append(args, v)
		return fmt.Sprintf("$%d", n)
	}

	if f.WarehouseID != nil {
		query += ` AND warehouse_id = ` + next(*f.WarehouseID)
	}
	if f.Severity != nil {
		query += ` AND severity = ` + next(*f.Severity)
	}
	if f.Status != nil {
		query += ` AND status = ` + next(*f.Status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []core.StockAlert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// ── Purchase orders ──────────────────────────────────────────────────────────

func (s *Store) CreatePurchaseOrder(ctx context.Context, po *core.PurchaseOrder) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return mapErr(err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO purchase_orders (id, supplier_id, warehouse_id, status, reference, created_by, created_at, approved_at, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, po.ID, po.SupplierID, po.WarehouseID, po.Status, po.Reference, po.CreatedBy,
		po.CreatedAt, po.ApprovedAt, po.ReceivedAt)
	if err != nil {
		return mapErr(err)
	}
	for i := range po.Items {
		item := &po.Items[i]
		_, err = tx.Exec(ctx, `
			INSERT INTO purchase_order_items (id, order_id, product_id, ordered_quantity, received_quantity, unit_cost)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, item.ID, item.OrderID, item.ProductID, item.OrderedQuantity, item.ReceivedQuantity, item.UnitCost)
		if err != nil {
			return mapErr(err)
		}
	}
	return mapErr(tx.Commit(ctx))
}

func (s *Store) GetPurchaseOrder(ctx context.Context, id uuid.UUID) (*core.PurchaseOrder, error) {
	var po core.PurchaseOrder
	err := s.pool.QueryRow(ctx, `
		SELECT id, supplier_id, warehouse_id, status, reference, created_by, created_at, approved_at, received_at
		FROM purchase_orders WHERE id = $1
	`, id).Scan(&po.ID, &po.SupplierID, &po.WarehouseID, &po.Status, &po.Reference,
		&po.CreatedBy, &po.CreatedAt, &po.ApprovedAt, &po.ReceivedAt)
	if err != nil {
		return nil, mapErr(err)
	}

	items, err := s.orderItems(ctx, id)
	if err != nil {
		return nil, err
	}
	po.Items = items
	return &po, nil
}

func (s *Store) orderItems(ctx context.Context, orderID uuid.UUID) ([]core.PurchaseOrderItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, order_id, product_id, ordered_quantity, received_quantity, unit_cost
		FROM purchase_order_items WHERE order_id = $1 ORDER BY id
	`, orderID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []core.PurchaseOrderItem
	for rows.Next() {
		var item core.PurchaseOrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID,
			&item.OrderedQuantity, &item.ReceivedQuantity, &item.UnitCost); err != nil {
			return nil, mapErr(err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (s *Store) UpdatePurchaseOrder(ctx context.Context, po *core.PurchaseOrder) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return mapErr(err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE purchase_orders SET status = $2, approved_at = $3, received_at = $4 WHERE id = $1
	`, po.ID, po.Status, po.ApprovedAt, po.ReceivedAt)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	for i := range po.Items {
		item := &po.Items[i]
		_, err = tx.Exec(ctx, `
			UPDATE purchase_order_items SET received_quantity = $2 WHERE id = $1
		`, item.ID, item.ReceivedQuantity)
		if err != nil {
			return mapErr(err)
		}
	}
	return mapErr(tx.Commit(ctx))
}

// ApplyReceipt writes the receipt's movements and the order update in a
// single transaction: a failure anywhere rolls back everything.
func (s *Store) ApplyReceipt(ctx context.Context, po *core.PurchaseOrder, movements []*core.StockMovement) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return mapErr(err)
	}
	defer tx.Rollback(ctx)

	for _, m := range movements {
		_, err = tx.Exec(ctx, `
			INSERT INTO stock_movements (`+movementColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
			        $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		`, m.ID, m.Type, m.Status, m.ProductID, m.Quantity,
			m.FromWarehouseID, m.FromZoneID, m.FromPositionID,
			m.ToWarehouseID, m.ToZoneID, m.ToPositionID,
			m.LotNumber, m.SerialNumbers, m.Reference, m.ReferenceType, m.ReferenceID,
			m.Reason, m.UnitCost, m.TotalCost, m.CreatedBy, m.CreatedAt)
		if err != nil {
			return mapErr(err)
		}
	}

	tag, err := tx.Exec(ctx, `
		UPDATE purchase_orders SET status = $2, approved_at = $3, received_at = $4 WHERE id = $1
	`, po.ID, po.Status, po.ApprovedAt, po.ReceivedAt)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	for i := range po.Items {
		item := &po.Items[i]
		_, err = tx.Exec(ctx, `
			UPDATE purchase_order_items SET received_quantity = $2 WHERE id = $1
		`, item.ID, item.ReceivedQuantity)
		if err != nil {
			return mapErr(err)
		}
	}
	return mapErr(tx.Commit(ctx))
}

func (s *Store) ListPurchaseOrders(ctx context.Context, status *core.PurchaseOrderStatus) ([]core.PurchaseOrder, error) {
	query := `SELECT id, supplier_id, warehouse_id, status, reference, created_by, created_at, approved_at, received_at
		FROM purchase_orders`
	args := []any{}
	if status != nil {
		query += ` WHERE status = $1`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []core.PurchaseOrder
	for rows.Next() {
		var po core.PurchaseOrder
		if err := rows.Scan(&po.ID, &po.SupplierID, &po.WarehouseID, &po.Status, &po.Reference,
			&po.CreatedBy, &po.CreatedAt, &po.ApprovedAt, &po.ReceivedAt); err != nil {
			return nil, mapErr(err)
		}
		out = append(out, po)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(err)
	}

	for i := range out {
		items, err := s.orderItems(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Items = items
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }
