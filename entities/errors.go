package entities

import "errors"

var (
	// ErrInvalidInputShape means the input kind or value is not accepted at the
	// current step. The step is re-prompted and does not advance.
	ErrInvalidInputShape = errors.New("input not accepted at this step")

	ErrCapacityExceeded = errors.New("not enough seats available")

	// ErrStaleCorrelation is returned for admin replies to a ticket whose
	// session is gone or has moved past the review step.
	ErrStaleCorrelation = errors.New("admin reply is too late")

	ErrStoreUnavailable = errors.New("inventory store unavailable")

	ErrNotificationDelivery = errors.New("notification delivery failed")

	ErrShowNotFound = errors.New("show not found")

	ErrSessionClosed = errors.New("session closed")

	// ErrSessionBusy is returned when a session has too many events
	// waiting to be handled.
	ErrSessionBusy = errors.New("session has too many pending events")

	ErrHoldNotFound = errors.New("hold not found")

	// ErrHoldExpired is returned when confirming a hold the sweep has
	// already released.
	ErrHoldExpired = errors.New("hold expired")
)
