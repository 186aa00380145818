package command

import (
	"context"

	"reservations/entities"
	"reservations/reservation"

	"github.com/ThreeDotsLabs/watermill/components/cqrs"
)

type CatalogRefresher interface {
	Refresh(ctx context.Context) (reservation.Snapshot, error)
}

type CatalogWriter interface {
	AddShow(ctx context.Context, show entities.Show) (int, error)
	SavePriceOption(ctx context.Context, option entities.PriceOption) error
}

type Handler struct {
	catalog CatalogRefresher
	writer  CatalogWriter
}

func NewHandler(catalog CatalogRefresher, writer CatalogWriter) Handler {
	if catalog == nil {
		panic("catalog is required")
	}
	if writer == nil {
		panic("writer is required")
	}

	return Handler{
		catalog: catalog,
		writer:  writer,
	}
}

func (h Handler) CommandHandlers() []cqrs.CommandHandler {
	return []cqrs.CommandHandler{
		cqrs.NewCommandHandler("RefreshCatalog", h.RefreshCatalog),
		cqrs.NewCommandHandler("ImportCatalog", h.ImportCatalog),
	}
}
