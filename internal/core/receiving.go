package core

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Receiving owns the purchase-order lifecycle and reconciles goods
// receipts into ledger movements. Receipt quantities are cumulative per
// line, which makes re-submitting the same receipt a no-op.
type Receiving struct {
	store  Store
	ledger *Ledger
	now    func() time.Time
	log    zerolog.Logger
}

func NewReceiving(store Store, ledger *Ledger, logger zerolog.Logger) *Receiving {
	return &Receiving{
		store:  store,
		ledger: ledger,
		now:    time.Now,
		log:    logger.With().Str("component", "receiving").Logger(),
	}
}

// CreateOrder registers a draft purchase order. Items must reference
// existing products with positive ordered quantities.
func (r *Receiving) CreateOrder(ctx context.Context, order PurchaseOrder) (*PurchaseOrder, error) {
	if len(order.Items) == 0 {
		return nil, newValidationError(CodeValidationFailed, "purchase order needs at least one item")
	}
	sctx, cancel := r.ledger.storageCtx(ctx)
	defer cancel()
	if _, err := r.store.GetWarehouse(sctx, order.WarehouseID); err != nil {
		return nil, newValidationError(CodeMissingLocation, "warehouse %s not found", order.WarehouseID)
	}

	now := r.now().UTC()
	order.ID = uuid.New()
	order.Status = POStatusDraft
	order.CreatedAt = now
	order.ApprovedAt = nil
	order.ReceivedAt = nil

	for i := range order.Items {
		item := &order.Items[i]
		if item.OrderedQuantity.Sign() <= 0 {
			return nil, newValidationError(CodeNegativeQuantity,
				"ordered quantity must be positive, got %s", item.OrderedQuantity)
		}
		if _, err := r.store.GetProduct(sctx, item.ProductID); err != nil {
			return nil, fmt.Errorf("resolve product %s: %w", item.ProductID, err)
		}
		item.ID = uuid.New()
		item.OrderID = order.ID
		item.ReceivedQuantity = decimal.Zero
	}

	if err := r.store.CreatePurchaseOrder(sctx, &order); err != nil {
		return nil, wrapStorage("create purchase order", err)
	}
	r.log.Info().Str("order_id", order.ID.String()).Int("items", len(order.Items)).Msg("purchase order created")
	return &order, nil
}

// Approve moves a draft order into the receivable state.
func (r *Receiving) Approve(ctx context.Context, id uuid.UUID) (*PurchaseOrder, error) {
	sctx, cancel := r.ledger.storageCtx(ctx)
	defer cancel()
	order, err := r.store.GetPurchaseOrder(sctx, id)
	if err != nil {
		return nil, wrapStorage("get purchase order", err)
	}
	if order.Status != POStatusDraft {
		return nil, newValidationError(CodeInvalidStatus,
			"purchase order %s is %s, only draft orders can be approved", id, order.Status)
	}

	now := r.now().UTC()
	order.Status = POStatusApproved
	order.ApprovedAt = &now
	if err := r.store.UpdatePurchaseOrder(sctx, order); err != nil {
		return nil, wrapStorage("update purchase order", err)
	}
	return order, nil
}

// Cancel closes an order that has not received any goods yet.
func (r *Receiving) Cancel(ctx context.Context, id uuid.UUID) (*PurchaseOrder, error) {
	sctx, cancel := r.ledger.storageCtx(ctx)
	defer cancel()
	order, err := r.store.GetPurchaseOrder(sctx, id)
	if err != nil {
		return nil, wrapStorage("get purchase order", err)
	}
	if order.Status != POStatusDraft && order.Status != POStatusApproved {
		return nil, newValidationError(CodeInvalidStatus,
			"purchase order %s is %s and cannot be cancelled", id, order.Status)
	}
	for i := range order.Items {
		if order.Items[i].ReceivedQuantity.Sign() > 0 {
			return nil, newValidationError(CodeInvalidStatus,
				"purchase order %s has received goods and cannot be cancelled", id)
		}
	}

	order.Status = POStatusCancelled
	if err := r.store.UpdatePurchaseOrder(sctx, order); err != nil {
		return nil, wrapStorage("update purchase order", err)
	}
	return order, nil
}

// Receive reconciles cumulative line receipts against an approved order.
// Every receipt is validated before any movement is appended, so a
// rejected line fails the whole call without side effects. For each line
// whose cumulative total grew, one confirmed "in" movement is appended
// for the delta, stamped with the order reference. The order flips to
// received only when every line reached its ordered quantity; partial
// receipts leave it approved.
func (r *Receiving) Receive(ctx context.Context, orderID uuid.UUID, receipts []LineReceipt, actor string) (*PurchaseOrder, error) {
	if len(receipts) == 0 {
		return nil, newValidationError(CodeValidationFailed, "receipt needs at least one line")
	}

	gctx, gcancel := r.ledger.storageCtx(ctx)
	order, err := r.store.GetPurchaseOrder(gctx, orderID)
	gcancel()
	if err != nil {
		return nil, wrapStorage("get purchase order", err)
	}
	if order.Status != POStatusApproved {
		return nil, newValidationError(CodeInvalidStatus,
			"purchase order %s is %s, only approved orders accept receipts", orderID, order.Status)
	}

	items := make(map[uuid.UUID]*PurchaseOrderItem, len(order.Items))
	for i := range order.Items {
		items[order.Items[i].ID] = &order.Items[i]
	}

	// First pass: compute and validate all deltas.
	deltas := make(map[uuid.UUID]decimal.Decimal, len(receipts))
	for _, line := range receipts {
		item, ok := items[line.ItemID]
		if !ok {
			return nil, newValidationError(CodeValidationFailed,
				"item %s does not belong to purchase order %s", line.ItemID, orderID)
		}
		if _, dup := deltas[line.ItemID]; dup {
			return nil, newValidationError(CodeValidationFailed, "item %s listed twice in receipt", line.ItemID)
		}
		delta := line.ReceivedQuantity.Sub(item.ReceivedQuantity)
		if delta.Sign() < 0 {
			return nil, newValidationError(CodeValidationFailed,
				"cumulative received %s for item %s is below the %s already recorded",
				line.ReceivedQuantity, line.ItemID, item.ReceivedQuantity)
		}
		if line.ReceivedQuantity.GreaterThan(item.OrderedQuantity) {
			return nil, newValidationError(CodeValidationFailed,
				"cumulative received %s for item %s exceeds ordered %s",
				line.ReceivedQuantity, line.ItemID, item.OrderedQuantity)
		}
		deltas[line.ItemID] = delta
	}

	// Second pass: validate one inbound movement per grown line,
	// including the product's tracking rules, before anything persists.
	refType := ReferencePurchaseOrder
	seenSerials := make(map[string]bool)
	var movements []*StockMovement
	var keys []StockKey
	for _, line := range receipts {
		delta := deltas[line.ItemID]
		if delta.Sign() == 0 {
			continue
		}
		item := items[line.ItemID]
		unitCost := item.UnitCost
		m, err := r.ledger.validator.Validate(ctx, MovementInput{
			Type:          MovementIn,
			ProductID:     item.ProductID,
			Quantity:      delta,
			ToWarehouseID: &order.WarehouseID,
			LotNumber:     line.LotNumber,
			SerialNumbers: line.SerialNumbers,
			Reference:     order.Reference,
			ReferenceType: &refType,
			ReferenceID:   &order.ID,
			UnitCost:      &unitCost,
			CreatedBy:     actor,
		})
		if err != nil {
			return nil, fmt.Errorf("receipt movement for item %s: %w", line.ItemID, err)
		}
		for _, sn := range line.SerialNumbers {
			if seenSerials[sn] {
				return nil, newValidationError(CodeInvalidSerials,
					"serial %s appears on more than one receipt line", sn)
			}
			seenSerials[sn] = true
		}
		movements = append(movements, m)
		keys = append(keys, movementKeys(m)...)
		item.ReceivedQuantity = line.ReceivedQuantity
	}

	complete := true
	for i := range order.Items {
		if order.Items[i].ReceivedQuantity.LessThan(order.Items[i].OrderedQuantity) {
			complete = false
			break
		}
	}
	if complete {
		now := r.now().UTC()
		order.Status = POStatusReceived
		order.ReceivedAt = &now
	}

	// Admit under the key locks, then land movements and the order
	// update as one storage unit: a failed receipt leaves no trace.
	unlock := r.ledger.locks.lock(keys...)
	defer unlock()
	for _, m := range movements {
		if err := r.ledger.admitLocked(ctx, m); err != nil {
			return nil, err
		}
	}

	sctx, cancel := r.ledger.storageCtx(ctx)
	defer cancel()
	if err := r.store.ApplyReceipt(sctx, order, movements); err != nil {
		return nil, wrapStorage("apply receipt", err)
	}
	r.log.Info().
		Str("order_id", orderID.String()).
		Str("status", string(order.Status)).
		Msg("purchase order receipt reconciled")
	return order, nil
}

func (r *Receiving) GetOrder(ctx context.Context, id uuid.UUID) (*PurchaseOrder, error) {
	sctx, cancel := r.ledger.storageCtx(ctx)
	defer cancel()
	order, err := r.store.GetPurchaseOrder(sctx, id)
	if err != nil {
		return nil, wrapStorage("get purchase order", err)
	}
	return order, nil
}

func (r *Receiving) ListOrders(ctx context.Context, status *PurchaseOrderStatus) ([]PurchaseOrder, error) {
	sctx, cancel := r.ledger.storageCtx(ctx)
	defer cancel()
	orders, err := r.store.ListPurchaseOrders(sctx, status)
	if err != nil {
		return nil, wrapStorage("list purchase orders", err)
	}
	return orders, nil
}
