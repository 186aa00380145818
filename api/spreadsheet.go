package api

import (
	"context"
	"fmt"
	"net/http"

	"reservations/entities"

	"github.com/ThreeDotsLabs/go-event-driven/common/clients"
	"github.com/ThreeDotsLabs/go-event-driven/common/clients/spreadsheets"
)

// SpreadsheetsAPIClient appends rows to the organizers' spreadsheet through
// the gateway.
type SpreadsheetsAPIClient struct {
	clients *clients.Clients
}

func NewSpreadsheetsAPIClient(clients *clients.Clients) *SpreadsheetsAPIClient {
	if clients == nil {
		panic("NewSpreadsheetsAPIClient: clients is nil")
	}

	return &SpreadsheetsAPIClient{clients: clients}
}

func (c SpreadsheetsAPIClient) AppendRow(ctx context.Context, sheetName string, row []string) error {
	resp, err := c.clients.Spreadsheets.PostSheetsSheetRowsWithResponse(ctx, sheetName, spreadsheets.PostSheetsSheetRowsJSONRequestBody{
		Columns: row,
	})
	if err != nil {
		return fmt.Errorf("failed to post row to %s: %w", sheetName, err)
	}

	switch status := resp.StatusCode(); {
	case status == http.StatusOK:
		return nil
	case status == http.StatusBadRequest || status == http.StatusNotFound:
		// missing sheet or malformed row
		return entities.Permanent(fmt.Errorf("sheet %s rejected the row: status %d", sheetName, status))
	default:
		return fmt.Errorf("failed to post row to %s: unexpected status code %d", sheetName, status)
	}
}
