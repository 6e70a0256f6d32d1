package domain

import "errors"

// Domain errors
var (
	// Ticket errors
	ErrTicketNotFound    = errors.New("ticket not found")
	ErrTicketAlreadyUsed = errors.New("ticket already used")

	// Event errors
	ErrEventNotFound = errors.New("event not found")

	// Payload errors
	ErrInvalidPayload   = errors.New("invalid ticket payload")
	ErrInvalidSignature = errors.New("invalid payload signature")
	ErrUnsignedPayload  = errors.New("unsigned payload not accepted")

	// Validation errors
	ErrInvalidEventID    = errors.New("invalid event id")
	ErrInvalidOperatorID = errors.New("invalid operator id")
	ErrInvalidScanMode   = errors.New("invalid scan mode")
	ErrInvalidTicket     = errors.New("invalid ticket")

	// Infrastructure errors
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrInconsistentState = errors.New("inconsistent ticket state")
)

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrTicketNotFound) ||
		errors.Is(err, ErrEventNotFound)
}

// IsValidationError checks if the error is a request validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidEventID) ||
		errors.Is(err, ErrInvalidOperatorID) ||
		errors.Is(err, ErrInvalidScanMode) ||
		errors.Is(err, ErrInvalidTicket)
}

// IsConflictError checks if the error is a conflict error
func IsConflictError(err error) bool {
	return errors.Is(err, ErrTicketAlreadyUsed)
}

// IsPayloadError checks if a scan payload was rejected before lookup
func IsPayloadError(err error) bool {
	return errors.Is(err, ErrInvalidPayload) ||
		errors.Is(err, ErrInvalidSignature) ||
		errors.Is(err, ErrUnsignedPayload)
}

// IsStoreUnavailable checks if the error is a transient store failure
func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
