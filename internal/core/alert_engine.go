package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// AlertEvent is what the engine hands to the notification boundary. The
// core only emits the event; delivery belongs to the dispatcher.
type AlertEvent struct {
	Kind  string // "raised", "updated", "resolved"
	Alert StockAlert
}

const (
	AlertEventRaised   = "raised"
	AlertEventUpdated  = "updated"
	AlertEventResolved = "resolved"
)

// AlertPublisher receives finalized alert transitions as an event feed.
type AlertPublisher interface {
	Publish(ev AlertEvent)
}

// consumptionTypes are the movement types counted as stock consumption
// when estimating the trailing daily rate. Transfers relocate stock and
// are excluded.
var consumptionTypes = map[MovementType]bool{
	MovementOut:    true,
	MovementDamage: true,
	MovementTheft:  true,
}

// consumptionWindowDays is the trailing window for the consumption rate.
const consumptionWindowDays = 30

// defaultThreshold applies when no configured threshold matches a key.
// Its percentages scale against max stock only for products without
// configured levels; products with their own minStockLevel/reorderPoint
// keep them unchanged (see resolveEffectiveLevels).
var defaultThreshold = AlertThreshold{
	MinStockPercentage:     decimal.NewFromInt(20),
	ReorderPointPercentage: decimal.NewFromInt(40),
	CriticalDaysThreshold:  3,
	WarningDaysThreshold:   7,
	Priority:               1 << 30,
	Enabled:                true,
}

// AlertEngine evaluates stock levels against thresholds and maintains at
// most one open StockAlert per (product, warehouse). It never mutates
// the ledger.
type AlertEngine struct {
	store     Store
	ledger    *Ledger
	catalog   SupplierCatalog
	publisher AlertPublisher
	now       func() time.Time
	log       zerolog.Logger
}

// NewAlertEngine wires the engine. catalog and publisher may be nil:
// missing supplier data falls back to DefaultLeadTimeDays, and a nil
// publisher drops events.
func NewAlertEngine(store Store, ledger *Ledger, catalog SupplierCatalog, publisher AlertPublisher, logger zerolog.Logger) *AlertEngine {
	return &AlertEngine{
		store:     store,
		ledger:    ledger,
		catalog:   catalog,
		publisher: publisher,
		now:       time.Now,
		log:       logger.With().Str("component", "alerts").Logger(),
	}
}

// Evaluate recomputes the alert state for one key. It returns the open
// alert after evaluation, or nil when the level is healthy (resolving a
// previously open alert if one existed).
func (e *AlertEngine) Evaluate(ctx context.Context, productID, warehouseID uuid.UUID) (*StockAlert, error) {
	level, err := e.ledger.snapshot(ctx, productID, warehouseID)
	if err != nil {
		return nil, err
	}

	sctx, cancel := e.ledger.storageCtx(ctx)
	product, err := e.store.GetProduct(sctx, productID)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("resolve product %s: %w", productID, wrapStorage("get product", err))
	}

	threshold, err := e.resolveThreshold(ctx, product.Category, warehouseID)
	if err != nil {
		return nil, err
	}

	effectiveMin, effectiveReorder := resolveEffectiveLevels(product, threshold)

	avgDaily, err := e.trailingDailyConsumption(ctx, productID, warehouseID)
	if err != nil {
		return nil, err
	}

	// Unbounded when nothing is being consumed: represented as nil, never zero.
	var daysUntilStockout *decimal.Decimal
	if avgDaily.Sign() > 0 {
		d := level.Available.Div(avgDaily)
		daysUntilStockout = &d
	}

	severity, raise := gradeSeverity(level.OnHand, effectiveMin, daysUntilStockout, threshold)
	if !raise {
		return nil, e.resolveOpen(ctx, productID, warehouseID)
	}

	suggested := suggestedOrderQuantity(product, effectiveReorder, level.OnHand, avgDaily, e.leadTimeDays(productID))
	message := alertMessage(product, level, severity, daysUntilStockout)

	return e.upsert(ctx, productID, warehouseID, level, product, severity, daysUntilStockout, suggested, message)
}

// resolveThreshold picks the matching enabled threshold with the lowest
// priority value, or the built-in default when none match.
func (e *AlertEngine) resolveThreshold(ctx context.Context, category string, warehouseID uuid.UUID) (AlertThreshold, error) {
	sctx, cancel := e.ledger.storageCtx(ctx)
	defer cancel()
	thresholds, err := e.store.ListThresholds(sctx)
	if err != nil {
		return AlertThreshold{}, wrapStorage("list thresholds", err)
	}

	best := defaultThreshold
	found := false
	for _, t := range thresholds {
		if !t.Enabled {
			continue
		}
		if t.ProductCategory != nil && *t.ProductCategory != category {
			continue
		}
		if t.WarehouseID != nil && *t.WarehouseID != warehouseID {
			continue
		}
		if !found || t.Priority < best.Priority {
			best = t
			found = true
		}
	}
	return best, nil
}

// resolveEffectiveLevels settles the baseline convention: a configured
// threshold scales the product's maxStockLevel by its percentages; with
// only the built-in default, the product's own absolute numbers take
// precedence. Products without configured levels fall back to the scaled
// max either way.
func resolveEffectiveLevels(product *Product, threshold AlertThreshold) (effectiveMin, effectiveReorder decimal.Decimal) {
	hundred := decimal.NewFromInt(100)
	scaledMin := product.MaxStockLevel.Mul(threshold.MinStockPercentage).Div(hundred)
	scaledReorder := product.MaxStockLevel.Mul(threshold.ReorderPointPercentage).Div(hundred)

	configured := threshold.ID != uuid.Nil
	if !configured {
		effectiveMin = product.MinStockLevel
		effectiveReorder = product.ReorderPoint
		if effectiveMin.Sign() == 0 {
			effectiveMin = scaledMin
		}
		if effectiveReorder.Sign() == 0 {
			effectiveReorder = scaledReorder
		}
		return effectiveMin, effectiveReorder
	}
	return scaledMin, scaledReorder
}

// trailingDailyConsumption averages out-type movement quantity at the
// warehouse over the trailing window.
func (e *AlertEngine) trailingDailyConsumption(ctx context.Context, productID, warehouseID uuid.UUID) (decimal.Decimal, error) {
	sctx, cancel := e.ledger.storageCtx(ctx)
	defer cancel()
	movements, err := e.store.MovementsForProductWarehouse(sctx, productID, warehouseID)
	if err != nil {
		return decimal.Zero, wrapStorage("movements for key", err)
	}

	cutoff := e.now().AddDate(0, 0, -consumptionWindowDays)
	total := decimal.Zero
	for i := range movements {
		m := &movements[i]
		if !m.Status.Affects() || !consumptionTypes[m.Type] || m.CreatedAt.Before(cutoff) {
			continue
		}
		if m.FromWarehouseID != nil && *m.FromWarehouseID == warehouseID {
			total = total.Add(m.Quantity)
		}
	}
	return total.Div(decimal.NewFromInt(consumptionWindowDays)), nil
}

// gradeSeverity applies the severity clauses. The days-until-stockout
// clause dominates the raw stock-level clause: projected depletion in
// under criticalDays is critical even when stock sits above minimum.
func gradeSeverity(currentStock, effectiveMin decimal.Decimal, days *decimal.Decimal, t AlertThreshold) (AlertSeverity, bool) {
	if currentStock.Sign() == 0 {
		return SeverityCritical, true
	}
	if days != nil && days.LessThanOrEqual(decimal.NewFromInt(int64(t.CriticalDaysThreshold))) {
		return SeverityCritical, true
	}
	if days != nil && days.LessThanOrEqual(decimal.NewFromInt(int64(t.WarningDaysThreshold))) {
		return SeverityWarning, true
	}
	if currentStock.LessThanOrEqual(effectiveMin) {
		return SeverityWarning, true
	}
	return "", false
}

func suggestedOrderQuantity(product *Product, effectiveReorder, currentStock, avgDaily decimal.Decimal, leadDays int) decimal.Decimal {
	demand := effectiveReorder.Sub(currentStock).Add(avgDaily.Mul(decimal.NewFromInt(int64(leadDays))))
	if product.ReorderQuantity.GreaterThan(demand) {
		return product.ReorderQuantity
	}
	if demand.Sign() < 0 {
		return decimal.Zero
	}
	return demand
}

func (e *AlertEngine) leadTimeDays(productID uuid.UUID) int {
	if e.catalog != nil {
		if days, ok := e.catalog.LeadTimeDays(productID); ok {
			return days
		}
	}
	return DefaultLeadTimeDays
}

func alertMessage(product *Product, level *StockLevel, severity AlertSeverity, days *decimal.Decimal) string {
	switch {
	case level.OnHand.Sign() == 0:
		return fmt.Sprintf("%s is out of stock", product.SKU)
	case days != nil:
		return fmt.Sprintf("%s projected to stock out in %s days (on hand %s)",
			product.SKU, days.StringFixed(1), level.OnHand)
	default:
		return fmt.Sprintf("%s stock %s is at or below minimum", product.SKU, level.OnHand)
	}
}

// upsert updates the existing open alert for the key in place or opens a
// new one when the prior alert was resolved. Exactly one alert row is
// written per evaluation.
func (e *AlertEngine) upsert(ctx context.Context, productID, warehouseID uuid.UUID, level *StockLevel,
	product *Product, severity AlertSeverity, days *decimal.Decimal, suggested decimal.Decimal, message string) (*StockAlert, error) {

	now := e.now().UTC()
	sctx, cancel := e.ledger.storageCtx(ctx)
	defer cancel()

	existing, err := e.store.OpenAlert(sctx, productID, warehouseID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, wrapStorage("open alert", err)
	}

	if existing == nil {
		alert := &StockAlert{
			ID:                     uuid.New(),
			ProductID:              productID,
			WarehouseID:            warehouseID,
			Severity:               severity,
			Status:                 AlertActive,
			CurrentStock:           level.OnHand,
			MinStockLevel:          product.MinStockLevel,
			ReorderPoint:           product.ReorderPoint,
			DaysUntilStockout:      days,
			SuggestedOrderQuantity: suggested,
			Message:                message,
			CreatedAt:              now,
			UpdatedAt:              now,
		}
		if err := e.store.SaveAlert(sctx, alert); err != nil {
			return nil, wrapStorage("save alert", err)
		}
		e.publish(AlertEvent{Kind: AlertEventRaised, Alert: *alert})
		e.log.Warn().
			Str("product_id", productID.String()).
			Str("warehouse_id", warehouseID.String()).
			Str("severity", string(severity)).
			Msg("stock alert raised")
		return alert, nil
	}

	// A snoozed alert whose snooze window has passed is active again.
	if existing.Status == AlertSnoozed && existing.SnoozedUntil != nil && !existing.SnoozedUntil.After(now) {
		existing.Status = AlertActive
		existing.SnoozedUntil = nil
	}

	existing.Severity = severity
	existing.CurrentStock = level.OnHand
	existing.MinStockLevel = product.MinStockLevel
	existing.ReorderPoint = product.ReorderPoint
	existing.DaysUntilStockout = days
	existing.SuggestedOrderQuantity = suggested
	existing.Message = message
	existing.UpdatedAt = now

	if err := e.store.SaveAlert(sctx, existing); err != nil {
		return nil, wrapStorage("save alert", err)
	}
	e.publish(AlertEvent{Kind: AlertEventUpdated, Alert: *existing})
	return existing, nil
}

// resolveOpen closes the open alert for a healthy key, if one exists.
func (e *AlertEngine) resolveOpen(ctx context.Context, productID, warehouseID uuid.UUID) error {
	sctx, cancel := e.ledger.storageCtx(ctx)
	defer cancel()
	existing, err := e.store.OpenAlert(sctx, productID, warehouseID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return wrapStorage("open alert", err)
	}

	existing.Status = AlertResolved
	existing.UpdatedAt = e.now().UTC()
	if err := e.store.SaveAlert(sctx, existing); err != nil {
		return wrapStorage("save alert", err)
	}
	e.publish(AlertEvent{Kind: AlertEventResolved, Alert: *existing})
	e.log.Info().
		Str("product_id", productID.String()).
		Str("warehouse_id", warehouseID.String()).
		Msg("stock alert resolved")
	return nil
}

func (e *AlertEngine) publish(ev AlertEvent) {
	if e.publisher != nil {
		e.publisher.Publish(ev)
	}
}

// Sweep re-evaluates every key the ledger has seen. Per-key failures are
// logged and skipped; a missed key self-corrects on the next cycle or on
// the next triggered evaluation.
func (e *AlertEngine) Sweep(ctx context.Context) {
	keys, err := e.ledger.StockKeys(ctx)
	if err != nil {
		e.log.Error().Err(err).Msg("sweep: listing stock keys failed")
		return
	}

	seen := make(map[[2]uuid.UUID]bool, len(keys))
	for _, k := range keys {
		pair := [2]uuid.UUID{k.ProductID, k.WarehouseID}
		if seen[pair] {
			continue
		}
		seen[pair] = true
		if _, err := e.Evaluate(ctx, k.ProductID, k.WarehouseID); err != nil {
			e.log.Error().Err(err).
				Str("product_id", k.ProductID.String()).
				Str("warehouse_id", k.WarehouseID.String()).
				Msg("sweep: evaluation failed")
		}
	}
}

// RunSweeper runs the periodic sweep until ctx is cancelled. Severity
// decays with time even without new movements, so the sweep keeps
// days-until-stockout current.
func (e *AlertEngine) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Sweep(ctx)
		}
	}
}

// Acknowledge marks an open alert as seen by an operator. Actor IDs are
// opaque strings supplied by the identity boundary.
func (e *AlertEngine) Acknowledge(ctx context.Context, id uuid.UUID, actor string) (*StockAlert, error) {
	sctx, cancel := e.ledger.storageCtx(ctx)
	defer cancel()
	alert, err := e.store.GetAlert(sctx, id)
	if err != nil {
		return nil, wrapStorage("get alert", err)
	}
	if !alert.Status.Open() {
		return nil, newValidationError(CodeInvalidStatus, "alert %s is %s and cannot be acknowledged", id, alert.Status)
	}

	now := e.now().UTC()
	alert.Status = AlertAcknowledged
	alert.AcknowledgedBy = &actor
	alert.AcknowledgedAt = &now
	alert.UpdatedAt = now
	if err := e.store.SaveAlert(sctx, alert); err != nil {
		return nil, wrapStorage("save alert", err)
	}
	return alert, nil
}

// Snooze silences an open alert until the given time. For severity
// comparison a snoozed alert whose window passed counts as active again.
func (e *AlertEngine) Snooze(ctx context.Context, id uuid.UUID, until time.Time) (*StockAlert, error) {
	if !until.After(e.now()) {
		return nil, newValidationError(CodeValidationFailed, "snooze time must be in the future")
	}

	sctx, cancel := e.ledger.storageCtx(ctx)
	defer cancel()
	alert, err := e.store.GetAlert(sctx, id)
	if err != nil {
		return nil, wrapStorage("get alert", err)
	}
	if !alert.Status.Open() {
		return nil, newValidationError(CodeInvalidStatus, "alert %s is %s and cannot be snoozed", id, alert.Status)
	}

	alert.Status = AlertSnoozed
	alert.SnoozedUntil = &until
	alert.UpdatedAt = e.now().UTC()
	if err := e.store.SaveAlert(sctx, alert); err != nil {
		return nil, wrapStorage("save alert", err)
	}
	return alert, nil
}

// ListAlerts filters alerts for the presentation layer.
func (e *AlertEngine) ListAlerts(ctx context.Context, f AlertFilter) ([]StockAlert, error) {
	sctx, cancel := e.ledger.storageCtx(ctx)
	defer cancel()
	alerts, err := e.store.ListAlerts(sctx, f)
	if err != nil {
		return nil, wrapStorage("list alerts", err)
	}
	return alerts, nil
}

// ── Threshold administration ─────────────────────────────────────────────────

func (e *AlertEngine) CreateThreshold(ctx context.Context, t AlertThreshold) (*AlertThreshold, error) {
	if err := validateThreshold(&t); err != nil {
		return nil, err
	}
	t.ID = uuid.New()
	t.CreatedAt = e.now().UTC()
	sctx, cancel := e.ledger.storageCtx(ctx)
	defer cancel()
	if err := e.store.CreateThreshold(sctx, &t); err != nil {
		return nil, wrapStorage("create threshold", err)
	}
	return &t, nil
}

func (e *AlertEngine) UpdateThreshold(ctx context.Context, t AlertThreshold) (*AlertThreshold, error) {
	if err := validateThreshold(&t); err != nil {
		return nil, err
	}
	sctx, cancel := e.ledger.storageCtx(ctx)
	defer cancel()
	if _, err := e.store.GetThreshold(sctx, t.ID); err != nil {
		return nil, wrapStorage("get threshold", err)
	}
	if err := e.store.UpdateThreshold(sctx, &t); err != nil {
		return nil, wrapStorage("update threshold", err)
	}
	return &t, nil
}

func (e *AlertEngine) DeleteThreshold(ctx context.Context, id uuid.UUID) error {
	sctx, cancel := e.ledger.storageCtx(ctx)
	defer cancel()
	if err := e.store.DeleteThreshold(sctx, id); err != nil {
		return wrapStorage("delete threshold", err)
	}
	return nil
}

func (e *AlertEngine) ListThresholds(ctx context.Context) ([]AlertThreshold, error) {
	sctx, cancel := e.ledger.storageCtx(ctx)
	defer cancel()
	thresholds, err := e.store.ListThresholds(sctx)
	if err != nil {
		return nil, wrapStorage("list thresholds", err)
	}
	return thresholds, nil
}

func validateThreshold(t *AlertThreshold) error {
	if t.MinStockPercentage.Sign() <= 0 || t.ReorderPointPercentage.Sign() <= 0 {
		return newValidationError(CodeValidationFailed, "threshold percentages must be positive")
	}
	if t.CriticalDaysThreshold <= 0 || t.WarningDaysThreshold <= 0 {
		return newValidationError(CodeValidationFailed, "threshold day windows must be positive")
	}
	if t.WarningDaysThreshold < t.CriticalDaysThreshold {
		return newValidationError(CodeValidationFailed,
			"warning window (%d days) cannot be tighter than critical window (%d days)",
			t.WarningDaysThreshold, t.CriticalDaysThreshold)
	}
	return nil
}
