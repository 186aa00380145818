package migrations

import (
	"context"
	"fmt"
	"time"

	"reservations/entities"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/sirupsen/logrus"
)

type ClientRecordLister interface {
	ListClientRecords(ctx context.Context) ([]entities.ClientRecord, error)
}

type SpreadsheetsAPI interface {
	AppendRow(ctx context.Context, sheetName string, row []string) error
}

// ResyncClientsSheet replays every stored client record into the sheet. It
// is meant for a freshly created sheet: rows already present get duplicated.
func ResyncClientsSheet(ctx context.Context, records ClientRecordLister, sheets SpreadsheetsAPI, sheetName string) (int, error) {
	logger := log.FromContext(ctx)
	logger.WithField("sheet", sheetName).Info("Resyncing clients sheet")

	all, err := records.ListClientRecords(ctx)
	if err != nil {
		return 0, fmt.Errorf("could not list client records: %w", err)
	}

	logger.WithField("records_count", len(all)).Info("Has records to resync")

	for i, record := range all {
		start := time.Now()

		if err := sheets.AppendRow(ctx, sheetName, record.SheetRow()); err != nil {
			return i, fmt.Errorf("could not append record %s: %w", record.RecordID, err)
		}

		logger.WithFields(logrus.Fields{
			"record_id": record.RecordID,
			"duration":  time.Since(start),
		}).Debug("Record resynced")
	}

	return len(all), nil
}
