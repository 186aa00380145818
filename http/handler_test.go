package http_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"reservations/api"
	"reservations/db"
	"reservations/entities"
	reservationsHttp "reservations/http"
	"reservations/session"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type commandBusMock struct {
	lock     sync.Mutex
	commands []any
}

func (c *commandBusMock) Send(ctx context.Context, cmd any) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.commands = append(c.commands, cmd)
	return nil
}

type inboundMock struct {
	events []entities.InboundEvent
}

func (i *inboundMock) Publish(ctx context.Context, ev entities.InboundEvent) error {
	i.events = append(i.events, ev)
	return nil
}

type sessionsMock []session.Summary

func (s sessionsMock) Sessions() []session.Summary {
	return s
}

type fixture struct {
	commands     *commandBusMock
	inbound      *inboundMock
	inventory    *db.MemoryInventory
	spreadsheets *api.SpreadsheetsMock
	handler      http.Handler
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	f := fixture{
		commands:     &commandBusMock{},
		inbound:      &inboundMock{},
		inventory:    db.NewMemoryInventory(),
		spreadsheets: &api.SpreadsheetsMock{},
	}
	f.handler = reservationsHttp.NewHttpRouter(reservationsHttp.NewHandler(
		f.commands,
		f.inbound,
		f.inventory,
		sessionsMock{{Key: entities.SessionKey{UserID: 1, ChatID: 1}}},
		f.spreadsheets,
		"clients",
	))

	return f
}

func (f fixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestPostInboundEvent(t *testing.T) {
	testCases := []struct {
		Name           string
		Body           string
		ExpectedStatus int
	}{
		{
			Name:           "start",
			Body:           `{"session":{"user_id":7,"chat_id":70},"kind":"start"}`,
			ExpectedStatus: http.StatusAccepted,
		},
		{
			Name:           "unknown kind",
			Body:           `{"session":{"user_id":7,"chat_id":70},"kind":"dance"}`,
			ExpectedStatus: http.StatusBadRequest,
		},
		{
			Name:           "timeouts are internal",
			Body:           `{"session":{"user_id":7,"chat_id":70},"kind":"timeout"}`,
			ExpectedStatus: http.StatusBadRequest,
		},
		{
			Name:           "missing chat",
			Body:           `{"session":{"user_id":7},"kind":"text","text":"hi"}`,
			ExpectedStatus: http.StatusBadRequest,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			f := newFixture(t)

			rec := f.do(http.MethodPost, "/inbound-events", tc.Body)
			assert.Equal(t, tc.ExpectedStatus, rec.Code)

			if tc.ExpectedStatus == http.StatusAccepted {
				require.Len(t, f.inbound.events, 1)
				assert.Equal(t, entities.InputStart, f.inbound.events[0].Kind)
			} else {
				assert.Empty(t, f.inbound.events)
			}
		})
	}
}

func TestGetShows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, date := range []time.Time{
		time.Date(2030, 5, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2030, 6, 1, 0, 0, 0, 0, time.UTC),
	} {
		_, err := f.inventory.AddShow(ctx, entities.Show{
			Name:  "Swan Lake",
			Date:  date,
			Time:  "19:00",
			Adult: entities.SeatCounts{Total: 5, Available: 5},
		})
		require.NoError(t, err)
	}

	rec := f.do(http.MethodGet, "/ops/shows?from=2030-05-15", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var shows []entities.Show
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &shows))
	require.Len(t, shows, 1)
	assert.Equal(t, "2030-06-01", shows[0].DateKey())

	rec = f.do(http.MethodGet, "/ops/shows?from=tomorrow", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetSessions(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/ops/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var summaries []session.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summaries))
	assert.Len(t, summaries, 1)
}

func TestPostCatalog(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/ops/catalog", `{
		"shows": [{"name": "Swan Lake", "date": "2030-05-01T00:00:00Z", "time": "19:00",
			"adult": {"total": 10, "available": 10, "non_confirmed": 0}}],
		"options": [{"option_id": 1, "name": "Single", "price": 50, "seats": {"adult": 1}}]
	}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Len(t, f.commands.commands, 1)
	cmd, ok := f.commands.commands[0].(*entities.ImportCatalog_v1)
	require.True(t, ok)
	assert.Len(t, cmd.Shows, 1)
	assert.Len(t, cmd.Options, 1)

	rec = f.do(http.MethodPost, "/ops/catalog", `{
		"shows": [{"name": "Broken", "date": "2030-05-01T00:00:00Z", "time": "19:00",
			"adult": {"total": 1, "available": 2, "non_confirmed": 0}}]
	}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, f.commands.commands, 1)
}

func TestPostCatalogRefresh(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/ops/catalog/refresh", "")
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Len(t, f.commands.commands, 1)
	assert.IsType(t, &entities.RefreshCatalog_v1{}, f.commands.commands[0])
}

func TestClientRecords(t *testing.T) {
	f := newFixture(t)

	record := entities.ClientRecord{
		RecordID:      uuid.New(),
		ApplicantName: "Anna Kowalska",
		Status:        entities.ClientRecordComplete,
	}
	require.NoError(t, f.inventory.AppendClientRecord(context.Background(), record))

	rec := f.do(http.MethodGet, "/ops/clients", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var records []entities.ClientRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, record.RecordID, records[0].RecordID)

	rec = f.do(http.MethodPost, "/ops/clients/resync", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"rows": 1}`, rec.Body.String())

	rows := f.spreadsheets.RowsIn("clients")
	require.Len(t, rows, 1)
	assert.Equal(t, record.RecordID.String(), rows[0][0])
}

func TestClientRecords_filtered_by_show(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, record := range []entities.ClientRecord{
		{RecordID: uuid.New(), ShowID: 1, ShowName: "Swan Lake", ShowDate: "2030-05-01", ShowTime: "19:00"},
		{RecordID: uuid.New(), ShowID: 1, ShowName: "Swan Lake", ShowDate: "2030-05-01", ShowTime: "19:00"},
		{RecordID: uuid.New(), ShowID: 2, ShowName: "Swan Lake", ShowDate: "2030-05-01", ShowTime: "12:00"},
		{RecordID: uuid.New(), ShowID: 3, ShowName: "Giselle", ShowDate: "2030-05-02", ShowTime: "19:00"},
	} {
		require.NoError(t, f.inventory.AppendClientRecord(ctx, record))
	}

	testCases := []struct {
		Name            string
		Query           string
		ExpectedStatus  int
		ExpectedShowIDs []int
	}{
		{Name: "all", Query: "", ExpectedStatus: http.StatusOK, ExpectedShowIDs: []int{1, 1, 2, 3}},
		{Name: "by show id", Query: "?show_id=1", ExpectedStatus: http.StatusOK, ExpectedShowIDs: []int{1, 1}},
		{Name: "by name date and time", Query: "?name=swan+lake&date=2030-05-01&time=12:00", ExpectedStatus: http.StatusOK, ExpectedShowIDs: []int{2}},
		{Name: "by date", Query: "?date=2030-05-02", ExpectedStatus: http.StatusOK, ExpectedShowIDs: []int{3}},
		{Name: "no match", Query: "?show_id=9", ExpectedStatus: http.StatusOK, ExpectedShowIDs: []int{}},
		{Name: "bad show id", Query: "?show_id=first", ExpectedStatus: http.StatusBadRequest},
		{Name: "bad date", Query: "?date=05/01/2030", ExpectedStatus: http.StatusBadRequest},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			rec := f.do(http.MethodGet, "/ops/clients"+tc.Query, "")
			require.Equal(t, tc.ExpectedStatus, rec.Code)
			if tc.ExpectedStatus != http.StatusOK {
				return
			}

			var records []entities.ClientRecord
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))

			showIDs := make([]int, 0, len(records))
			for _, record := range records {
				showIDs = append(showIDs, record.ShowID)
			}
			assert.Equal(t, tc.ExpectedShowIDs, showIDs)
		})
	}
}

func TestGetHolds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	showID, err := f.inventory.AddShow(ctx, entities.Show{
		Name:  "Swan Lake",
		Date:  time.Date(2030, 5, 1, 0, 0, 0, 0, time.UTC),
		Time:  "19:00",
		Adult: entities.SeatCounts{Total: 5, Available: 5},
	})
	require.NoError(t, err)

	hold := entities.Hold{
		HoldID:    uuid.New(),
		ShowID:    showID,
		Seats:     entities.Seats{Adult: 2},
		Session:   entities.SessionKey{UserID: 1, ChatID: 1},
		Status:    entities.HoldStatusActive,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}
	_, err = f.inventory.PlaceHold(ctx, hold)
	require.NoError(t, err)

	rec := f.do(http.MethodGet, "/ops/holds", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var holds []entities.Hold
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &holds))
	require.Len(t, holds, 1)
	assert.Equal(t, hold.HoldID, holds[0].HoldID)
	assert.Equal(t, hold.Seats, holds[0].Seats)
}
