package event

import (
	"context"
	"strconv"

	"reservations/entities"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
)

func (h Handler) AppendSeatChangeToLedger(ctx context.Context, event *entities.ShowSeatsChanged_v1) error {
	log.FromContext(ctx).WithField("show_id", event.ShowID).Info("Appending seat change to ledger")

	return h.spreadsheetsService.AppendRow(ctx, h.sheets.SeatLedger, []string{
		event.Header.ID,
		strconv.Itoa(event.ShowID),
		string(event.Reason),
		strconv.Itoa(event.DeltaAvailable.Adult),
		strconv.Itoa(event.DeltaAvailable.Children),
		strconv.Itoa(event.DeltaNonConfirmed.Adult),
		strconv.Itoa(event.DeltaNonConfirmed.Children),
		strconv.Itoa(event.Available.Adult),
		strconv.Itoa(event.Available.Children),
		strconv.Itoa(event.NonConfirmed.Adult),
		strconv.Itoa(event.NonConfirmed.Children),
	})
}
