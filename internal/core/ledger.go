package core

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// DefaultStorageTimeout bounds every durable-store call made inside a
// critical section. A deadline hit surfaces as STORAGE_TIMEOUT instead of
// hanging the key lock.
const DefaultStorageTimeout = 5 * time.Second

// Ledger is the append-only stock movement log. Append is the only
// mutation primitive; stock levels are projections folded from history,
// never hand-edited. Corrections are expressed as adjustment or
// correction movements.
type Ledger struct {
	store     Store
	validator *Validator
	locks     *keyMutex
	timeout   time.Duration
	log       zerolog.Logger
}

func NewLedger(store Store, logger zerolog.Logger) *Ledger {
	return &Ledger{
		store:     store,
		validator: NewValidator(store),
		locks:     newKeyMutex(),
		timeout:   DefaultStorageTimeout,
		log:       logger.With().Str("component", "ledger").Logger(),
	}
}

// SetStorageTimeout overrides the per-call store deadline. Zero disables
// the bound (tests).
func (l *Ledger) SetStorageTimeout(d time.Duration) { l.timeout = d }

func (l *Ledger) storageCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, l.timeout)
}

// wrapStorage converts a deadline hit into the STORAGE_TIMEOUT taxonomy;
// other store failures pass through (they are already typed or wrapped).
func wrapStorage(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &StorageError{Op: op + " (" + CodeStorageTimeout + ")", Err: err}
	}
	return err
}

// outboundKey returns the key a movement subtracts from, if any.
func outboundKey(m *StockMovement) (StockKey, bool) {
	if m.FromWarehouseID == nil {
		return StockKey{}, false
	}
	switch m.Type {
	case MovementOut, MovementTransfer, MovementDamage, MovementTheft,
		MovementAssembly, MovementAdjustment, MovementCount, MovementCorrection:
		k := StockKey{ProductID: m.ProductID, WarehouseID: *m.FromWarehouseID}
		if m.FromPositionID != nil {
			k.PositionID = *m.FromPositionID
		}
		return k, true
	}
	return StockKey{}, false
}

// inboundKey returns the key a movement adds to, if any.
func inboundKey(m *StockMovement) (StockKey, bool) {
	if m.ToWarehouseID == nil {
		return StockKey{}, false
	}
	switch m.Type {
	case MovementIn, MovementTransfer, MovementReturn, MovementDisassembly,
		MovementAdjustment, MovementCount, MovementCorrection:
		k := StockKey{ProductID: m.ProductID, WarehouseID: *m.ToWarehouseID}
		if m.ToPositionID != nil {
			k.PositionID = *m.ToPositionID
		}
		return k, true
	}
	return StockKey{}, false
}

// movementKeys returns every key a movement touches. Position-qualified
// keys also carry their warehouse-level key: admission checks fold at
// warehouse granularity, so that lock must be held too.
func movementKeys(m *StockMovement) []StockKey {
	var keys []StockKey
	add := func(k StockKey) {
		keys = append(keys, k)
		if k.PositionID != uuid.Nil {
			keys = append(keys, StockKey{ProductID: k.ProductID, WarehouseID: k.WarehouseID})
		}
	}
	if k, ok := outboundKey(m); ok {
		add(k)
	}
	if k, ok := inboundKey(m); ok {
		add(k)
	}
	return keys
}

// Append validates the input, runs the check-then-act admission rules
// inside the per-key critical section, and writes exactly one movement.
// No partial side effects occur: a rejected movement leaves no trace.
func (l *Ledger) Append(ctx context.Context, in MovementInput) (*StockMovement, error) {
	m, err := l.validator.Validate(ctx, in)
	if err != nil {
		return nil, err
	}

	unlock := l.locks.lock(movementKeys(m)...)
	defer unlock()

	if err := l.admitLocked(ctx, m); err != nil {
		return nil, err
	}

	sctx, cancel := l.storageCtx(ctx)
	defer cancel()
	if err := l.store.AppendMovement(sctx, m); err != nil {
		return nil, wrapStorage("append movement", err)
	}

	l.log.Info().
		Str("movement_id", m.ID.String()).
		Str("type", string(m.Type)).
		Str("product_id", m.ProductID.String()).
		Str("quantity", m.Quantity.String()).
		Msg("movement appended")
	return m, nil
}

// admitLocked holds the quantity and serial admission rules that must be
// atomic with the append. Callers hold the write locks for every key the
// movement touches.
func (l *Ledger) admitLocked(ctx context.Context, m *StockMovement) error {
	src, hasSrc := outboundKey(m)
	if hasSrc {
		onHand, reserved, err := l.foldLocked(ctx, src, nil)
		if err != nil {
			return err
		}
		if onHand.LessThan(m.Quantity) {
			return &InsufficientStockError{Key: src, OnHand: onHand, Requested: m.Quantity}
		}
		// Transfers must also respect reservations at the source.
		if m.Type == MovementTransfer {
			available := onHand.Sub(reserved)
			if available.LessThan(m.Quantity) {
				return &InsufficientAvailableError{Key: src, Available: available, Requested: m.Quantity}
			}
		}
	}

	return l.admitSerialsLocked(ctx, m)
}

func (l *Ledger) admitSerialsLocked(ctx context.Context, m *StockMovement) error {
	if len(m.SerialNumbers) == 0 {
		return nil
	}

	byWarehouse, err := l.projectSerials(ctx, m.ProductID)
	if err != nil {
		return err
	}

	if src, ok := outboundKey(m); ok {
		present := byWarehouse[src.WarehouseID]
		for _, sn := range m.SerialNumbers {
			if !present[sn] {
				return newValidationError(CodeInvalidSerials,
					"serial %s is not available at warehouse %s", sn, src.WarehouseID)
			}
		}
		return nil
	}

	// Inbound: each serial must be unknown to the ledger anywhere.
	for _, sn := range m.SerialNumbers {
		for _, present := range byWarehouse {
			if present[sn] {
				return newValidationError(CodeInvalidSerials,
					"serial %s is already known to the ledger", sn)
			}
		}
	}
	return nil
}

// projectSerials folds the product's movement history into the set of
// serials currently present per warehouse. Unlike the quantity fold the
// serial fold is order-dependent (delete-then-add), so the history is
// replayed oldest first regardless of the store's listing order.
func (l *Ledger) projectSerials(ctx context.Context, productID uuid.UUID) (map[uuid.UUID]map[string]bool, error) {
	sctx, cancel := l.storageCtx(ctx)
	defer cancel()
	movements, err := l.store.ListMovements(sctx, MovementFilter{ProductID: &productID})
	if err != nil {
		return nil, wrapStorage("list movements", err)
	}
	sort.SliceStable(movements, func(i, j int) bool {
		return movements[i].CreatedAt.Before(movements[j].CreatedAt)
	})

	byWarehouse := make(map[uuid.UUID]map[string]bool)
	for i := range movements {
		m := &movements[i]
		if !m.Status.Affects() || len(m.SerialNumbers) == 0 {
			continue
		}
		if k, ok := outboundKey(m); ok {
			for _, sn := range m.SerialNumbers {
				if set := byWarehouse[k.WarehouseID]; set != nil {
					delete(set, sn)
				}
			}
		}
		if k, ok := inboundKey(m); ok {
			set := byWarehouse[k.WarehouseID]
			if set == nil {
				set = make(map[string]bool)
				byWarehouse[k.WarehouseID] = set
			}
			for _, sn := range m.SerialNumbers {
				set[sn] = true
			}
		}
	}
	return byWarehouse, nil
}

// foldLocked computes on-hand and reserved for a key by folding the
// movement history. The fold is commutative over completed movements;
// order only matters for the admission checks, which run at append time.
// positionID, when non-nil, narrows the fold to one position.
func (l *Ledger) foldLocked(ctx context.Context, key StockKey, positionID *uuid.UUID) (onHand, reserved decimal.Decimal, err error) {
	sctx, cancel := l.storageCtx(ctx)
	defer cancel()

	movements, err := l.store.MovementsForProductWarehouse(sctx, key.ProductID, key.WarehouseID)
	if err != nil {
		return decimal.Zero, decimal.Zero, wrapStorage("movements for key", err)
	}

	for i := range movements {
		m := &movements[i]
		if !m.Status.Affects() {
			continue
		}
		if k, ok := outboundKey(m); ok && k.WarehouseID == key.WarehouseID {
			if positionID == nil || (m.FromPositionID != nil && *m.FromPositionID == *positionID) {
				onHand = onHand.Sub(m.Quantity)
			}
		}
		if k, ok := inboundKey(m); ok && k.WarehouseID == key.WarehouseID {
			if positionID == nil || (m.ToPositionID != nil && *m.ToPositionID == *positionID) {
				onHand = onHand.Add(m.Quantity)
			}
		}
	}

	// Reservations are tracked at warehouse granularity; a position-level
	// projection reports on-hand only.
	if positionID == nil {
		reservations, err := l.store.ActiveReservations(sctx, key.ProductID, key.WarehouseID)
		if err != nil {
			return decimal.Zero, decimal.Zero, wrapStorage("active reservations", err)
		}
		for _, r := range reservations {
			reserved = reserved.Add(r.Quantity)
		}
	}
	return onHand, reserved, nil
}

// ProjectStockLevel folds the movement history for the key into the
// current stock level. It reflects already-validated history and so
// cannot go negative when the admission rules were applied at append.
func (l *Ledger) ProjectStockLevel(ctx context.Context, productID, warehouseID uuid.UUID, positionID *uuid.UUID) (*StockLevel, error) {
	key := StockKey{ProductID: productID, WarehouseID: warehouseID}
	unlock := l.locks.rlock(key)
	defer unlock()
	return l.projectLocked(ctx, key, positionID)
}

func (l *Ledger) projectLocked(ctx context.Context, key StockKey, positionID *uuid.UUID) (*StockLevel, error) {
	onHand, reserved, err := l.foldLocked(ctx, key, positionID)
	if err != nil {
		return nil, err
	}
	return &StockLevel{
		ProductID:   key.ProductID,
		WarehouseID: key.WarehouseID,
		PositionID:  positionID,
		OnHand:      onHand,
		Reserved:    reserved,
		Available:   onHand.Sub(reserved),
	}, nil
}

// Transition applies the single movement status state machine:
//
//	pending   -> confirmed | cancelled
//	confirmed -> completed | partial
//
// completed, partial, and cancelled are terminal. Confirming a pending
// movement re-runs the admission rules: stock may have moved since the
// movement was appended.
func (l *Ledger) Transition(ctx context.Context, id uuid.UUID, next MovementStatus) (*StockMovement, error) {
	// First read only determines which keys to lock; the status check
	// happens on a re-read under the lock, so two racing transitions
	// cannot both pass against the same stale status.
	sctx, cancel := l.storageCtx(ctx)
	m, err := l.store.GetMovement(sctx, id)
	cancel()
	if err != nil {
		return nil, wrapStorage("get movement", err)
	}

	unlock := l.locks.lock(movementKeys(m)...)
	defer unlock()

	sctx, cancel = l.storageCtx(ctx)
	m, err = l.store.GetMovement(sctx, id)
	cancel()
	if err != nil {
		return nil, wrapStorage("get movement", err)
	}

	if !validTransition(m.Status, next) {
		return nil, newValidationError(CodeInvalidStatus,
			"movement %s cannot transition %s -> %s", id, m.Status, next)
	}

	if m.Status == MovementPending && next == MovementConfirmed {
		// The pending movement did not affect stock; admit as if appended now.
		if err := l.admitLocked(ctx, m); err != nil {
			return nil, err
		}
	}

	sctx, cancel = l.storageCtx(ctx)
	defer cancel()
	if err := l.store.SetMovementStatus(sctx, id, next); err != nil {
		return nil, wrapStorage("set movement status", err)
	}
	m.Status = next

	l.log.Info().
		Str("movement_id", id.String()).
		Str("status", string(next)).
		Msg("movement transitioned")
	return m, nil
}

func validTransition(from, to MovementStatus) bool {
	switch from {
	case MovementPending:
		return to == MovementConfirmed || to == MovementCancelled
	case MovementConfirmed:
		return to == MovementCompleted || to == MovementPartial
	default:
		return false
	}
}

// Movements lists ledger history for the presentation layer.
func (l *Ledger) Movements(ctx context.Context, f MovementFilter) ([]StockMovement, error) {
	sctx, cancel := l.storageCtx(ctx)
	defer cancel()
	movements, err := l.store.ListMovements(sctx, f)
	if err != nil {
		return nil, wrapStorage("list movements", err)
	}
	return movements, nil
}

// GetMovement returns one movement by ID.
func (l *Ledger) GetMovement(ctx context.Context, id uuid.UUID) (*StockMovement, error) {
	sctx, cancel := l.storageCtx(ctx)
	defer cancel()
	m, err := l.store.GetMovement(sctx, id)
	if err != nil {
		return nil, wrapStorage("get movement", err)
	}
	return m, nil
}

// StockKeys exposes every key the ledger has seen; the alert sweep
// iterates it.
func (l *Ledger) StockKeys(ctx context.Context) ([]StockKey, error) {
	sctx, cancel := l.storageCtx(ctx)
	defer cancel()
	keys, err := l.store.StockKeys(sctx)
	if err != nil {
		return nil, wrapStorage("stock keys", err)
	}
	return keys, nil
}

// snapshot gives the alert engine a consistent read of one key.
func (l *Ledger) snapshot(ctx context.Context, productID, warehouseID uuid.UUID) (*StockLevel, error) {
	key := StockKey{ProductID: productID, WarehouseID: warehouseID}
	unlock := l.locks.rlock(key)
	defer unlock()
	return l.projectLocked(ctx, key, nil)
}
