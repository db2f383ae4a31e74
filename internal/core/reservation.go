package core

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ReservationTracker soft-locks available stock for open order
// references. It shares the ledger's per-key locks so that reserve and
// append against the same key cannot interleave mid-check.
type ReservationTracker struct {
	store  Store
	ledger *Ledger
	log    zerolog.Logger
}

func NewReservationTracker(store Store, ledger *Ledger, logger zerolog.Logger) *ReservationTracker {
	return &ReservationTracker{
		store:  store,
		ledger: ledger,
		log:    logger.With().Str("component", "reservations").Logger(),
	}
}

// Reserve rejects with INSUFFICIENT_AVAILABLE when the requested quantity
// exceeds on-hand minus already-reserved. The check and the write happen
// under the key's write lock.
func (t *ReservationTracker) Reserve(ctx context.Context, productID, warehouseID uuid.UUID, quantity decimal.Decimal, orderRef string) (*Reservation, error) {
	if quantity.Sign() <= 0 {
		return nil, newValidationError(CodeNegativeQuantity, "reservation quantity must be positive, got %s", quantity)
	}
	if orderRef == "" {
		return nil, newValidationError(CodeValidationFailed, "reservation requires an order reference")
	}

	key := StockKey{ProductID: productID, WarehouseID: warehouseID}
	unlock := t.ledger.locks.lock(key)
	defer unlock()

	onHand, reserved, err := t.ledger.foldLocked(ctx, key, nil)
	if err != nil {
		return nil, err
	}
	available := onHand.Sub(reserved)
	if available.LessThan(quantity) {
		return nil, &InsufficientAvailableError{Key: key, Available: available, Requested: quantity}
	}

	r := &Reservation{
		ID:          uuid.New(),
		ProductID:   productID,
		WarehouseID: warehouseID,
		Quantity:    quantity,
		OrderRef:    orderRef,
		Status:      ReservationActive,
		CreatedAt:   time.Now().UTC(),
	}

	sctx, cancel := t.ledger.storageCtx(ctx)
	defer cancel()
	if err := t.store.CreateReservation(sctx, r); err != nil {
		return nil, wrapStorage("create reservation", err)
	}

	t.log.Info().
		Str("order_ref", orderRef).
		Str("product_id", productID.String()).
		Str("quantity", quantity.String()).
		Msg("stock reserved")
	return r, nil
}

// Release frees every active reservation held under the order reference
// and returns the ones it released, so callers can re-grade the touched
// keys. Releasing an unknown or already released reference is a no-op,
// not an error.
func (t *ReservationTracker) Release(ctx context.Context, orderRef string) ([]Reservation, error) {
	sctx, cancel := t.ledger.storageCtx(ctx)
	reservations, err := t.store.ReservationsByOrderRef(sctx, orderRef)
	cancel()
	if err != nil {
		return nil, wrapStorage("reservations by order ref", err)
	}

	var released []Reservation
	now := time.Now().UTC()
	for _, r := range reservations {
		if r.Status != ReservationActive {
			continue
		}
		key := StockKey{ProductID: r.ProductID, WarehouseID: r.WarehouseID}
		unlock := t.ledger.locks.lock(key)
		sctx, cancel := t.ledger.storageCtx(ctx)
		err := t.store.ReleaseReservation(sctx, r.ID, now)
		cancel()
		unlock()
		if err != nil {
			return released, wrapStorage("release reservation", err)
		}
		released = append(released, r)
	}

	if len(released) > 0 {
		t.log.Info().Str("order_ref", orderRef).Int("released", len(released)).Msg("reservations released")
	}
	return released, nil
}

// ActiveFor reports the live reservations against a key.
func (t *ReservationTracker) ActiveFor(ctx context.Context, productID, warehouseID uuid.UUID) ([]Reservation, error) {
	sctx, cancel := t.ledger.storageCtx(ctx)
	defer cancel()
	reservations, err := t.store.ActiveReservations(sctx, productID, warehouseID)
	if err != nil {
		return nil, wrapStorage("active reservations", err)
	}
	return reservations, nil
}
