package event

import (
	"context"
	"strconv"

	"reservations/entities"
)

func (h Handler) AppendPaymentReviewToSheet(ctx context.Context, event *entities.AdminReviewRequested_v1) error {
	ticket := event.Ticket

	return h.spreadsheetsService.AppendRow(ctx, h.sheets.PaymentReviews, []string{
		ticket.TicketID.String(),
		ticket.Session.String(),
		ticket.Show.Label(),
		ticket.Option.Name,
		strconv.Itoa(ticket.Option.Price),
		ticket.PaymentProof,
		ticket.CreatedAt.Format("2006-01-02 15:04:05"),
	})
}
