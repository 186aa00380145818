package entities

import (
	"time"

	"github.com/google/uuid"
)

type Event interface {
	IsInternal() bool
}

type EventHeader struct {
	ID             string    `json:"id"`
	PublishedAt    time.Time `json:"published_at"`
	IdempotencyKey string    `json:"idempotency_key"`
}

func NewEventHeader() EventHeader {
	return EventHeader{
		ID:             uuid.NewString(),
		PublishedAt:    time.Now().UTC(),
		IdempotencyKey: uuid.NewString(),
	}
}

func NewEventHeaderWithIdempotencyKey(idempotencyKey string) EventHeader {
	return EventHeader{
		ID:             uuid.NewString(),
		PublishedAt:    time.Now().UTC(),
		IdempotencyKey: idempotencyKey,
	}
}

type SeatChangeReason string

const (
	SeatChangeHold    SeatChangeReason = "hold"
	SeatChangeConfirm SeatChangeReason = "confirm"
	SeatChangeRelease SeatChangeReason = "release"
	SeatChangeAdjust  SeatChangeReason = "adjust"
)

// SeatChangeReasonFor classifies a counter mutation by the shape of its deltas.
func SeatChangeReasonFor(deltaAvailable, deltaNonConfirmed Seats) SeatChangeReason {
	switch {
	case deltaAvailable.Add(deltaNonConfirmed).IsZero() && !deltaNonConfirmed.IsZero():
		if deltaNonConfirmed.Children >= 0 && deltaNonConfirmed.Adult >= 0 {
			return SeatChangeHold
		}
		return SeatChangeRelease
	case deltaAvailable.IsZero() && deltaNonConfirmed.Children <= 0 && deltaNonConfirmed.Adult <= 0:
		return SeatChangeConfirm
	default:
		return SeatChangeAdjust
	}
}

type ShowSeatsChanged_v1 struct {
	Header EventHeader `json:"header"`

	ShowID            int              `json:"show_id"`
	Reason            SeatChangeReason `json:"reason"`
	DeltaAvailable    Seats            `json:"delta_available"`
	DeltaNonConfirmed Seats            `json:"delta_non_confirmed"`
	Available         Seats            `json:"available"`
	NonConfirmed      Seats            `json:"non_confirmed"`
}

func (e ShowSeatsChanged_v1) IsInternal() bool {
	return false
}

type ReservationCompleted_v1 struct {
	Header EventHeader `json:"header"`

	Record ClientRecord `json:"record"`
}

func (e ReservationCompleted_v1) IsInternal() bool {
	return false
}

type AdminReviewRequested_v1 struct {
	Header EventHeader `json:"header"`

	Ticket AdminReviewTicket `json:"ticket"`
}

func (e AdminReviewRequested_v1) IsInternal() bool {
	return false
}

func NewShowSeatsChanged(show Show, deltaAvailable, deltaNonConfirmed Seats) ShowSeatsChanged_v1 {
	return ShowSeatsChanged_v1{
		Header:            NewEventHeader(),
		ShowID:            show.ShowID,
		Reason:            SeatChangeReasonFor(deltaAvailable, deltaNonConfirmed),
		DeltaAvailable:    deltaAvailable,
		DeltaNonConfirmed: deltaNonConfirmed,
		Available:         show.Available(),
		NonConfirmed:      show.NonConfirmed(),
	}
}
