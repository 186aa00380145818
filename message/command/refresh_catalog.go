package command

import (
	"context"
	"errors"
	"fmt"

	"reservations/entities"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/sirupsen/logrus"
)

func (h Handler) RefreshCatalog(ctx context.Context, cmd *entities.RefreshCatalog_v1) error {
	snapshot, err := h.catalog.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("could not refresh catalog: %w", err)
	}

	log.FromContext(ctx).WithFields(logrus.Fields{
		"shows":   len(snapshot.Shows),
		"options": len(snapshot.Options),
	}).Info("Catalog refreshed")

	return nil
}

func (h Handler) ImportCatalog(ctx context.Context, cmd *entities.ImportCatalog_v1) error {
	for _, option := range cmd.Options {
		if err := h.writer.SavePriceOption(ctx, option); err != nil {
			return fmt.Errorf("could not save price option %d: %w", option.OptionID, err)
		}
	}

	for _, show := range cmd.Shows {
		_, err := h.writer.AddShow(ctx, show)
		if errors.Is(err, entities.ErrInvalidInputShape) {
			return entities.Permanent(err)
		}
		if err != nil {
			return fmt.Errorf("could not add show %q: %w", show.Name, err)
		}
	}

	return h.RefreshCatalog(ctx, &entities.RefreshCatalog_v1{Header: cmd.Header})
}
