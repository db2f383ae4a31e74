package core

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Machine-readable reason codes surfaced to the presentation layer so an
// operator can correct quantity/location and resubmit.
const (
	CodeInsufficientStock     = "INSUFFICIENT_STOCK"
	CodeInsufficientAvailable = "INSUFFICIENT_AVAILABLE"
	CodeMissingLocation       = "MISSING_LOCATION"
	CodeInvalidSerials        = "INVALID_SERIALS"
	CodeNegativeQuantity      = "NEGATIVE_QUANTITY"
	CodeInvalidStatus         = "INVALID_STATUS"
	CodeValidationFailed      = "VALIDATION_FAILED"
	CodeStorageTimeout        = "STORAGE_TIMEOUT"
	CodeConflict              = "CONFLICT"
)

var (
	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrReferenced is returned when deleting reference data that stock
	// levels or movements still point at.
	ErrReferenced = errors.New("record is referenced by stock or movements")

	// ErrDuplicateCode is returned when a unique code (warehouse code,
	// SKU) is already taken.
	ErrDuplicateCode = errors.New("code already exists")
)

// ValidationError rejects a structurally invalid movement request. It is
// never persisted and produces no side effects.
type ValidationError struct {
	Code    string // one of the reason codes above
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newValidationError(code, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// InsufficientStockError is a business-rule rejection at append time: the
// movement would drive on-hand below zero at its source location.
type InsufficientStockError struct {
	Key       StockKey
	OnHand    decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("%s: on-hand %s, requested %s for product %s at warehouse %s",
		CodeInsufficientStock, e.OnHand, e.Requested, e.Key.ProductID, e.Key.WarehouseID)
}

// InsufficientAvailableError rejects a reservation or transfer that
// exceeds available (on-hand minus reserved) quantity.
type InsufficientAvailableError struct {
	Key       StockKey
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientAvailableError) Error() string {
	return fmt.Sprintf("%s: available %s, requested %s for product %s at warehouse %s",
		CodeInsufficientAvailable, e.Available, e.Requested, e.Key.ProductID, e.Key.WarehouseID)
}

// StorageError wraps a durable-store I/O failure. Ledger-mutating
// operations are never retried internally (an append retry is not safe
// without idempotency keys); callers see the failure directly.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ConflictError reports a concurrent mutation observed on a key that the
// locking discipline should have serialized. It indicates a programming
// or environment defect and is surfaced, never silently resolved.
type ConflictError struct {
	Key StockKey
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: concurrent mutation on product %s at warehouse %s",
		CodeConflict, e.Key.ProductID, e.Key.WarehouseID)
}
