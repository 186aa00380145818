package event

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/components/cqrs"
)

type SpreadsheetsAPI interface {
	AppendRow(ctx context.Context, sheetName string, row []string) error
}

type SheetNames struct {
	Clients        string
	SeatLedger     string
	PaymentReviews string
}

type Handler struct {
	spreadsheetsService SpreadsheetsAPI
	sheets              SheetNames
}

func NewHandler(spreadsheetsService SpreadsheetsAPI, sheets SheetNames) Handler {
	if spreadsheetsService == nil {
		panic("missing spreadsheetsService")
	}
	if sheets.Clients == "" {
		sheets.Clients = "clients"
	}
	if sheets.SeatLedger == "" {
		sheets.SeatLedger = "seat-ledger"
	}
	if sheets.PaymentReviews == "" {
		sheets.PaymentReviews = "payment-reviews"
	}

	return Handler{
		spreadsheetsService: spreadsheetsService,
		sheets:              sheets,
	}
}

func (h Handler) EventHandlers() []cqrs.EventHandler {
	return []cqrs.EventHandler{
		cqrs.NewEventHandler("AppendClientToSheet", h.AppendClientToSheet),
		cqrs.NewEventHandler("AppendSeatChangeToLedger", h.AppendSeatChangeToLedger),
		cqrs.NewEventHandler("AppendPaymentReviewToSheet", h.AppendPaymentReviewToSheet),
	}
}
