package event

import (
	"context"

	"reservations/entities"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
)

func (h Handler) AppendClientToSheet(ctx context.Context, event *entities.ReservationCompleted_v1) error {
	log.FromContext(ctx).Info("Appending client record to sheet")

	return h.spreadsheetsService.AppendRow(ctx, h.sheets.Clients, event.Record.SheetRow())
}
