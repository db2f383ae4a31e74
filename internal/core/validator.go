package core

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// movementRule captures the structural requirements of one movement type.
// The table is the closed dispatch surface: a type missing here does not
// exist as far as the ledger is concerned.
type movementRule struct {
	needsFrom     bool // fromWarehouseId required
	needsTo       bool // toWarehouseId required
	needsBoth     bool // transfer: both endpoints, and they must differ
	needsOneSide  bool // adjustment family: exactly one endpoint
	needsReason   bool
	alwaysOutward bool // documented decrease (damage/theft)
}

var movementRules = map[MovementType]movementRule{
	MovementIn:          {needsTo: true},
	MovementReturn:      {needsTo: true},
	MovementDisassembly: {needsTo: true},
	MovementOut:         {needsFrom: true},
	MovementAssembly:    {needsFrom: true},
	MovementDamage:      {needsFrom: true, needsReason: true, alwaysOutward: true},
	MovementTheft:       {needsFrom: true, needsReason: true, alwaysOutward: true},
	MovementTransfer:    {needsBoth: true},
	MovementAdjustment:  {needsOneSide: true, needsReason: true},
	MovementCount:       {needsOneSide: true, needsReason: true},
	MovementCorrection:  {needsOneSide: true, needsReason: true},
}

// Validator enforces the per-type structural rules before a movement is
// admitted to the ledger. Validation is side-effect-free: it reads
// reference data but writes nothing.
type Validator struct {
	store Store
}

func NewValidator(store Store) *Validator {
	return &Validator{store: store}
}

// Validate checks the input against the rules for its movement type and,
// on success, materializes the StockMovement the ledger will append.
// Quantity-sufficiency and serial-availability checks are deliberately
// not performed here: they are check-then-act and belong inside the
// ledger's per-key critical section.
func (v *Validator) Validate(ctx context.Context, in MovementInput) (*StockMovement, error) {
	rule, ok := movementRules[in.Type]
	if !ok {
		return nil, newValidationError(CodeValidationFailed, "unknown movement type %q", in.Type)
	}

	if in.Quantity.Sign() <= 0 {
		return nil, newValidationError(CodeNegativeQuantity, "quantity must be positive, got %s", in.Quantity)
	}

	product, err := v.store.GetProduct(ctx, in.ProductID)
	if err != nil {
		return nil, fmt.Errorf("resolve product %s: %w", in.ProductID, err)
	}

	if !product.Fractional && !in.Quantity.IsInteger() {
		return nil, newValidationError(CodeNegativeQuantity,
			"product %s is measured in %s and does not allow fractional quantity %s",
			product.SKU, product.UnitOfMeasure, in.Quantity)
	}

	if err := v.checkEndpoints(ctx, in, rule); err != nil {
		return nil, err
	}

	if rule.needsReason && in.Reason == "" {
		return nil, newValidationError(CodeValidationFailed, "%s movements require a reason", in.Type)
	}

	if err := checkTracking(product, in); err != nil {
		return nil, err
	}

	status := in.Status
	switch status {
	case "":
		status = MovementConfirmed
	case MovementPending, MovementConfirmed:
	default:
		return nil, newValidationError(CodeInvalidStatus,
			"movements are appended as pending or confirmed, not %s", status)
	}

	m := &StockMovement{
		ID:              uuid.New(),
		Type:            in.Type,
		Status:          status,
		ProductID:       in.ProductID,
		Quantity:        in.Quantity,
		FromWarehouseID: in.FromWarehouseID,
		FromZoneID:      in.FromZoneID,
		FromPositionID:  in.FromPositionID,
		ToWarehouseID:   in.ToWarehouseID,
		ToZoneID:        in.ToZoneID,
		ToPositionID:    in.ToPositionID,
		LotNumber:       in.LotNumber,
		SerialNumbers:   in.SerialNumbers,
		Reference:       in.Reference,
		ReferenceType:   in.ReferenceType,
		ReferenceID:     in.ReferenceID,
		Reason:          in.Reason,
		UnitCost:        in.UnitCost,
		CreatedBy:       in.CreatedBy,
		CreatedAt:       time.Now().UTC(),
	}
	if in.UnitCost != nil {
		total := in.Quantity.Mul(*in.UnitCost)
		m.TotalCost = &total
	}
	return m, nil
}

func (v *Validator) checkEndpoints(ctx context.Context, in MovementInput, rule movementRule) error {
	hasFrom := in.FromWarehouseID != nil
	hasTo := in.ToWarehouseID != nil

	switch {
	case rule.needsBoth:
		if !hasFrom || !hasTo {
			return newValidationError(CodeMissingLocation, "transfer requires both source and destination warehouses")
		}
		if *in.FromWarehouseID == *in.ToWarehouseID {
			return newValidationError(CodeMissingLocation, "transfer source and destination warehouses must differ")
		}
	case rule.needsOneSide:
		if hasFrom == hasTo {
			return newValidationError(CodeMissingLocation,
				"%s requires exactly one of source or destination warehouse", in.Type)
		}
	case rule.needsFrom:
		if !hasFrom {
			return newValidationError(CodeMissingLocation, "%s requires a source warehouse", in.Type)
		}
	case rule.needsTo:
		if !hasTo {
			return newValidationError(CodeMissingLocation, "%s requires a destination warehouse", in.Type)
		}
	}

	// Position implies zone on the same side.
	if in.FromPositionID != nil && in.FromZoneID == nil {
		return newValidationError(CodeMissingLocation, "source position set without source zone")
	}
	if in.ToPositionID != nil && in.ToZoneID == nil {
		return newValidationError(CodeMissingLocation, "destination position set without destination zone")
	}

	for _, wid := range []*uuid.UUID{in.FromWarehouseID, in.ToWarehouseID} {
		if wid == nil {
			continue
		}
		if _, err := v.store.GetWarehouse(ctx, *wid); err != nil {
			return fmt.Errorf("resolve warehouse %s: %w", *wid, err)
		}
	}
	return nil
}

// checkTracking enforces the lot/serial shape rules for the product's
// tracking type. Serial *availability* against the ledger is checked by
// the ledger inside the key lock.
func checkTracking(product *Product, in MovementInput) error {
	if product.TrackingType.RequiresLot() && (in.LotNumber == nil || *in.LotNumber == "") {
		return newValidationError(CodeValidationFailed,
			"product %s is lot-tracked and requires a lot number", product.SKU)
	}

	if !product.TrackingType.RequiresSerials() {
		if len(in.SerialNumbers) > 0 {
			return newValidationError(CodeInvalidSerials,
				"product %s is not serial-tracked but serial numbers were supplied", product.SKU)
		}
		return nil
	}

	if !in.Quantity.IsInteger() {
		return newValidationError(CodeInvalidSerials, "serial-tracked quantity must be a whole number")
	}
	if int64(len(in.SerialNumbers)) != in.Quantity.IntPart() {
		return newValidationError(CodeInvalidSerials,
			"quantity %s does not match %d serial numbers", in.Quantity, len(in.SerialNumbers))
	}
	seen := make(map[string]bool, len(in.SerialNumbers))
	for _, sn := range in.SerialNumbers {
		if sn == "" {
			return newValidationError(CodeInvalidSerials, "empty serial number")
		}
		if seen[sn] {
			return newValidationError(CodeInvalidSerials, "duplicate serial number %s", sn)
		}
		seen[sn] = true
	}
	return nil
}
