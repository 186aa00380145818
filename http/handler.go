package http

import (
	"context"
	"time"

	"reservations/entities"
	"reservations/session"
)

type CommandBus interface {
	Send(ctx context.Context, cmd any) error
}

type InboundPublisher interface {
	Publish(ctx context.Context, ev entities.InboundEvent) error
}

type InventoryReader interface {
	ListShows(ctx context.Context, from time.Time) ([]entities.Show, error)
	ListClientRecords(ctx context.Context) ([]entities.ClientRecord, error)
	ListActiveHolds(ctx context.Context) ([]entities.Hold, error)
}

type SessionLister interface {
	Sessions() []session.Summary
}

type SpreadsheetsAPI interface {
	AppendRow(ctx context.Context, sheetName string, row []string) error
}

type Handler struct {
	commandBus   CommandBus
	inbound      InboundPublisher
	inventory    InventoryReader
	sessions     SessionLister
	spreadsheets SpreadsheetsAPI
	clientsSheet string
}

func NewHandler(
	commandBus CommandBus,
	inbound InboundPublisher,
	inventory InventoryReader,
	sessions SessionLister,
	spreadsheets SpreadsheetsAPI,
	clientsSheet string,
) Handler {
	if commandBus == nil {
		panic("commandBus is nil")
	}
	if inbound == nil {
		panic("inbound is nil")
	}
	if inventory == nil {
		panic("inventory is nil")
	}
	if sessions == nil {
		panic("sessions is nil")
	}
	if spreadsheets == nil {
		panic("spreadsheets is nil")
	}

	return Handler{
		commandBus:   commandBus,
		inbound:      inbound,
		inventory:    inventory,
		sessions:     sessions,
		spreadsheets: spreadsheets,
		clientsSheet: clientsSheet,
	}
}
