package entities

import (
	"time"

	"github.com/google/uuid"
)

type HoldStatus string

const (
	HoldStatusActive    HoldStatus = "active"
	HoldStatusConfirmed HoldStatus = "confirmed"
	HoldStatusReleased  HoldStatus = "released"
)

// Hold is a provisional seat deduction awaiting admin confirmation.
// ExpiresAt is the lease: an active hold past it is released by the sweep
// whether or not its session is still around.
type Hold struct {
	HoldID    uuid.UUID  `json:"hold_id" db:"hold_id"`
	ShowID    int        `json:"show_id" db:"show_id"`
	Seats     Seats      `json:"seats" db:"seats"`
	Session   SessionKey `json:"session" db:"session"`
	Status    HoldStatus `json:"status" db:"status"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	ExpiresAt time.Time  `json:"expires_at" db:"expires_at"`
}

// Expired reports whether an active hold's lease ran out at asOf.
func (h *Hold) Expired(asOf time.Time) bool {
	return h.Active() && !h.ExpiresAt.After(asOf)
}

func (h *Hold) Active() bool {
	return h != nil && h.Status == HoldStatusActive
}

func (h *Hold) Confirmed() bool {
	return h != nil && h.Status == HoldStatusConfirmed
}

// SettleDeltas returns the counter changes that move the hold to status.
// Released seats go back to available, confirmed ones leave the counters.
func (h *Hold) SettleDeltas(status HoldStatus) (deltaAvailable Seats, deltaNonConfirmed Seats) {
	if status == HoldStatusReleased {
		return h.Seats, h.Seats.Neg()
	}
	return Seats{}, h.Seats.Neg()
}

// AdminReviewTicket ties an admin-facing approval message to the session
// state it was issued for. Token is the session version at issue time.
type AdminReviewTicket struct {
	TicketID     uuid.UUID   `json:"ticket_id"`
	Session      SessionKey  `json:"session"`
	Token        uint64      `json:"token"`
	Show         Show        `json:"show"`
	Option       PriceOption `json:"option"`
	PaymentProof string      `json:"payment_proof"`
	CreatedAt    time.Time   `json:"created_at"`
}

// AdminReply is what the transport knows about an admin's button press.
type AdminReply struct {
	TicketID string `json:"ticket_id"`
	AdminID  int64  `json:"admin_id"`
}
