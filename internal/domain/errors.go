package domain

import "errors"

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrProductNotFound = errors.New("product not found")
	ErrSellerNotFound  = errors.New("seller not found")
	ErrWalletNotFound  = errors.New("wallet not found")

	ErrValidation          = errors.New("validation failed")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrInsufficientBalance = errors.New("insufficient balance")

	// Idempotency guards. Duplicate gateway callbacks and replayed delivery
	// events are expected, so callers log these as warnings, not failures.
	ErrAlreadyHeld = errors.New("order payment already held")
	ErrNotHeld     = errors.New("order payment not held")

	ErrOrderNotCancellable     = errors.New("order can no longer be cancelled")
	ErrInvalidStatusTransition = errors.New("invalid order status transition")

	// ErrOrderCancelled marks a payment captured for an order that was
	// cancelled in the meantime. The funds were never escrowed and the
	// gateway has to refund the buyer.
	ErrOrderCancelled = errors.New("order was cancelled")
)
