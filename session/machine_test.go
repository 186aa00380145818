package session

import (
	"context"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"reservations/db"
	"reservations/entities"
	"reservations/notification"
	"reservations/reservation"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	adminChat int64 = -1001

	optionPair       = 1
	optionFamily     = 2
	optionIndividual = 3
)

type flakyInventory struct {
	*db.MemoryInventory
	failAppend atomic.Bool
}

func (f *flakyInventory) AppendClientRecord(ctx context.Context, record entities.ClientRecord) error {
	if f.failAppend.Load() {
		return assert.AnError
	}
	return f.MemoryInventory.AppendClientRecord(ctx, record)
}

type fixture struct {
	store   *flakyInventory
	sink    *notification.SinkMock
	router  *notification.Router
	machine *Machine
	showID  int
	date    string
}

func newFixture(t *testing.T, children, adult int) *fixture {
	t.Helper()
	ctx := context.Background()

	store := &flakyInventory{MemoryInventory: db.NewMemoryInventory()}
	show := entities.Show{
		Name:     "Nutcracker",
		Date:     time.Now().AddDate(0, 0, 7),
		Time:     "18:00",
		Children: entities.SeatCounts{Total: children, Available: children},
		Adult:    entities.SeatCounts{Total: adult, Available: adult},
	}
	showID, err := store.AddShow(ctx, show)
	require.NoError(t, err)

	for _, option := range []entities.PriceOption{
		{OptionID: optionPair, Name: "Pair", Price: 200, Seats: entities.Seats{Adult: 2}},
		{OptionID: optionFamily, Name: "Family", Price: 350, Seats: entities.Seats{Adult: 1, Children: 2}},
		{OptionID: optionIndividual, Name: "Individual", Price: 500, Seats: entities.Seats{Adult: 1, Children: 1}, Individual: true},
	} {
		require.NoError(t, store.SavePriceOption(ctx, option))
	}

	sink := &notification.SinkMock{}
	router := notification.NewRouter(sink, []int64{adminChat})
	machine := NewMachine(
		reservation.NewCatalog(store, 0),
		reservation.NewProtocol(store),
		store,
		router,
	)

	return &fixture{
		store:   store,
		sink:    sink,
		router:  router,
		machine: machine,
		showID:  showID,
		date:    show.DateKey(),
	}
}

func (f *fixture) newSession(id int64) *State {
	return NewState(entities.SessionKey{UserID: id, ChatID: id}, "")
}

func (f *fixture) send(s *State, kind entities.InputKind, value string) error {
	ev := entities.InboundEvent{Session: s.Key, Kind: kind}
	switch kind {
	case entities.InputSelection:
		ev.Selection = value
	case entities.InputText:
		ev.Text = value
	case entities.InputImage:
		ev.ImageRef = value
	}

	return f.machine.Handle(context.Background(), s, ev)
}

func (f *fixture) adminDecision(s *State, kind entities.InputKind, ticketID string) error {
	return f.machine.Handle(context.Background(), s, entities.InboundEvent{
		Session:  entities.SessionKey{UserID: 77, ChatID: adminChat},
		Kind:     kind,
		TicketID: ticketID,
		AdminID:  77,
	})
}

func (f *fixture) toPaymentProof(t *testing.T, s *State, optionID int) {
	t.Helper()

	require.NoError(t, f.send(s, entities.InputStart, ""))
	require.NoError(t, f.send(s, entities.InputSelection, f.date))
	require.NoError(t, f.send(s, entities.InputSelection, strconv.Itoa(f.showID)))
	require.NoError(t, f.send(s, entities.InputSelection, strconv.Itoa(optionID)))
	require.Equal(t, StepAwaitPaymentProof, s.Step)
}

func (f *fixture) toAdminReview(t *testing.T, s *State, optionID int) {
	t.Helper()

	f.toPaymentProof(t, s, optionID)
	require.NoError(t, f.send(s, entities.InputImage, "proof-"+s.Key.String()))
	require.Equal(t, StepAdminReview, s.Step)
	require.NotNil(t, s.Ticket)
}

func (f *fixture) show(t *testing.T) entities.Show {
	t.Helper()

	show, err := f.store.ReadShow(context.Background(), f.showID)
	require.NoError(t, err)
	require.True(t, show.SeatsValid())

	return show
}

func (f *fixture) lastTo(t *testing.T, chatID int64) entities.OutboundMessage {
	t.Helper()

	sent := f.sink.SentTo(chatID)
	require.NotEmpty(t, sent)

	return sent[len(sent)-1]
}

func TestTransitionTableIsExhaustive(t *testing.T) {
	table := newTransitionTable()

	for _, step := range Steps {
		byKind, ok := table[step]
		require.True(t, ok, "missing step %s", step)

		for _, kind := range entities.InputKinds {
			assert.NotNil(t, byKind[kind], "missing transition %s/%s", step, kind)
		}
		assert.Len(t, byKind, len(entities.InputKinds), "unexpected kinds for %s", step)
	}
	assert.Len(t, table, len(Steps))
}

func TestMachine_CompleteReservationWithChildren(t *testing.T) {
	f := newFixture(t, 4, 4)
	s := f.newSession(1)

	require.NoError(t, f.send(s, entities.InputStart, ""))
	assert.Equal(t, StepSelectDate, s.Step)
	dateButtons := lo.Flatten(f.lastTo(t, 1).Buttons)
	assert.Contains(t, lo.Map(dateButtons, func(b entities.Button, _ int) string { return b.Data }), f.date)

	require.NoError(t, f.send(s, entities.InputSelection, f.date))
	assert.Equal(t, StepSelectTime, s.Step)

	require.NoError(t, f.send(s, entities.InputSelection, strconv.Itoa(f.showID)))
	assert.Equal(t, StepSelectSeatOption, s.Step)

	require.NoError(t, f.send(s, entities.InputSelection, strconv.Itoa(optionFamily)))
	assert.Equal(t, StepAwaitPaymentProof, s.Step)
	assert.True(t, s.Hold.Active())

	show := f.show(t)
	assert.Equal(t, entities.Seats{Children: 2, Adult: 3}, show.Available())
	assert.Equal(t, entities.Seats{Children: 2, Adult: 1}, show.NonConfirmed())

	require.NoError(t, f.send(s, entities.InputImage, "photo-1"))
	assert.Equal(t, StepAdminReview, s.Step)
	assert.Equal(t, "photo-1", f.lastTo(t, adminChat).ImageRef)

	require.NoError(t, f.adminDecision(s, entities.InputAdminApprove, s.Ticket.TicketID.String()))
	assert.Equal(t, StepCollectApplicantName, s.Step)
	assert.True(t, s.Hold.Confirmed())

	show = f.show(t)
	assert.Equal(t, entities.Seats{Children: 2, Adult: 3}, show.Available())
	assert.Equal(t, entities.Seats{}, show.NonConfirmed())

	require.NoError(t, f.send(s, entities.InputText, "Anna Petrova"))
	assert.Equal(t, StepCollectPhone, s.Step)

	assert.ErrorIs(t, f.send(s, entities.InputText, "12-34"), entities.ErrInvalidInputShape)
	assert.Equal(t, StepCollectPhone, s.Step)

	require.NoError(t, f.send(s, entities.InputText, "+7 (912) 345-67-89"))
	assert.Equal(t, StepCollectChildrenNames, s.Step)

	require.NoError(t, f.send(s, entities.InputText, "Masha, Petya\n"))
	assert.Equal(t, StepComplete, s.Step)

	records, err := f.store.ListClientRecords(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Anna Petrova", records[0].ApplicantName)
	assert.Equal(t, "+79123456789", records[0].Phone)
	assert.Equal(t, []string{"Masha", "Petya"}, records[0].ChildrenNames)
	assert.Equal(t, entities.ClientRecordComplete, records[0].Status)
	assert.Equal(t, "photo-1", records[0].PaymentProof)

	assert.Contains(t, f.lastTo(t, adminChat).Text, "Anna Petrova")
}

func TestMachine_IndividualOptionSkipsChildrenNames(t *testing.T) {
	f := newFixture(t, 2, 2)
	s := f.newSession(1)

	f.toAdminReview(t, s, optionIndividual)
	require.NoError(t, f.adminDecision(s, entities.InputAdminApprove, s.Ticket.TicketID.String()))
	require.NoError(t, f.send(s, entities.InputText, "Ivan"))
	require.NoError(t, f.send(s, entities.InputText, "89123456789"))

	assert.Equal(t, StepComplete, s.Step)
}

func TestMachine_TextInsteadOfImage(t *testing.T) {
	f := newFixture(t, 0, 4)
	s := f.newSession(1)
	f.toPaymentProof(t, s, optionPair)

	before := f.show(t)
	version := s.Version
	hold := s.Hold

	err := f.send(s, entities.InputText, "I paid")
	assert.ErrorIs(t, err, entities.ErrInvalidInputShape)

	assert.Equal(t, StepAwaitPaymentProof, s.Step)
	assert.Equal(t, version, s.Version)
	assert.Same(t, hold, s.Hold)
	assert.Equal(t, before, f.show(t), "no additional hold is created")
	assert.Contains(t, f.lastTo(t, 1).Text, "photo")
}

func TestMachine_BackNavigation(t *testing.T) {
	f := newFixture(t, 0, 4)
	s := f.newSession(1)

	require.NoError(t, f.send(s, entities.InputStart, ""))
	version := s.Version
	require.NoError(t, f.send(s, entities.InputBack, ""))
	assert.Equal(t, StepSelectDate, s.Step, "back at the first step is a no-op")
	assert.Equal(t, version, s.Version)

	require.NoError(t, f.send(s, entities.InputSelection, f.date))
	require.NoError(t, f.send(s, entities.InputBack, ""))
	assert.Equal(t, StepSelectDate, s.Step)

	require.NoError(t, f.send(s, entities.InputSelection, f.date))
	require.NoError(t, f.send(s, entities.InputSelection, strconv.Itoa(f.showID)))
	require.NoError(t, f.send(s, entities.InputBack, ""))
	assert.Equal(t, StepSelectTime, s.Step)
	assert.Nil(t, s.Show)

	require.NoError(t, f.send(s, entities.InputSelection, strconv.Itoa(f.showID)))
	require.NoError(t, f.send(s, entities.InputSelection, strconv.Itoa(optionPair)))
	assert.Equal(t, 2, f.show(t).Adult.NonConfirmed)

	hold := s.Hold
	require.NoError(t, f.send(s, entities.InputBack, ""))
	assert.Equal(t, StepSelectSeatOption, s.Step)
	assert.Equal(t, entities.HoldStatusReleased, hold.Status)
	assert.Equal(t, entities.Seats{Adult: 4}, f.show(t).Available())
	assert.Equal(t, entities.Seats{}, f.show(t).NonConfirmed())
}

func TestMachine_InvalidSelection(t *testing.T) {
	f := newFixture(t, 0, 4)
	s := f.newSession(1)

	require.NoError(t, f.send(s, entities.InputStart, ""))

	assert.ErrorIs(t, f.send(s, entities.InputSelection, "1999-01-01"), entities.ErrInvalidInputShape)
	assert.ErrorIs(t, f.send(s, entities.InputText, f.date), entities.ErrInvalidInputShape)
	assert.Equal(t, StepSelectDate, s.Step)

	require.NoError(t, f.send(s, entities.InputSelection, f.date))
	assert.ErrorIs(t, f.send(s, entities.InputSelection, "not-a-number"), entities.ErrInvalidInputShape)
	assert.ErrorIs(t, f.send(s, entities.InputSelection, "999"), entities.ErrInvalidInputShape)
	assert.Equal(t, StepSelectTime, s.Step)
}

func TestMachine_CancelReleasesHold(t *testing.T) {
	f := newFixture(t, 0, 2)
	s := f.newSession(1)
	f.toPaymentProof(t, s, optionPair)

	require.NoError(t, f.send(s, entities.InputCancel, ""))

	assert.Equal(t, StepCancelled, s.Step)
	assert.Equal(t, entities.HoldStatusReleased, s.Hold.Status)
	assert.Equal(t, entities.Seats{Adult: 2}, f.show(t).Available())
	assert.ErrorIs(t, f.send(s, entities.InputText, "hello"), entities.ErrSessionClosed)
}

func TestMachine_AdminReviewIgnoresUserInput(t *testing.T) {
	f := newFixture(t, 0, 2)
	s := f.newSession(1)
	f.toAdminReview(t, s, optionPair)

	version := s.Version
	for _, kind := range []entities.InputKind{entities.InputText, entities.InputImage, entities.InputCancel, entities.InputBack, entities.InputStart} {
		require.NoError(t, f.send(s, kind, "x"))
		assert.Equal(t, StepAdminReview, s.Step)
		assert.Equal(t, version, s.Version)
		assert.Contains(t, f.lastTo(t, 1).Text, "under review")
	}
	assert.True(t, s.Hold.Active())
}

func TestMachine_TwoSessionsCompeteAndRejectFreesSeats(t *testing.T) {
	f := newFixture(t, 0, 2)
	first := f.newSession(1)
	second := f.newSession(2)

	require.NoError(t, f.send(second, entities.InputStart, ""))
	require.NoError(t, f.send(second, entities.InputSelection, f.date))
	require.NoError(t, f.send(second, entities.InputSelection, strconv.Itoa(f.showID)))
	require.Equal(t, StepSelectSeatOption, second.Step)

	f.toAdminReview(t, first, optionPair)
	assert.Equal(t, 0, f.show(t).Adult.Available)

	err := f.send(second, entities.InputSelection, strconv.Itoa(optionPair))
	assert.ErrorIs(t, err, entities.ErrCapacityExceeded)
	assert.Equal(t, StepSelectSeatOption, second.Step)
	assert.Nil(t, second.Hold)
	assert.Empty(t, second.offeredOptions, "options are refreshed after the failed hold")

	require.NoError(t, f.adminDecision(first, entities.InputAdminReject, first.Ticket.TicketID.String()))
	assert.Equal(t, StepRejected, first.Step)

	show := f.show(t)
	assert.Equal(t, 2, show.Adult.Available)
	assert.Equal(t, 0, show.Adult.NonConfirmed)
}

func TestMachine_StaleAdminReply(t *testing.T) {
	f := newFixture(t, 0, 2)
	s := f.newSession(1)
	f.toAdminReview(t, s, optionPair)
	ticketID := s.Ticket.TicketID.String()

	require.NoError(t, f.send(s, entities.InputTimeout, ""))
	assert.Equal(t, StepTimeout, s.Step)
	assert.Equal(t, entities.Seats{Adult: 2}, f.show(t).Available())

	_, ok := f.router.CorrelateAdminReply(entities.AdminReply{TicketID: ticketID})
	assert.False(t, ok, "ticket is forgotten once the session ends")

	err := f.adminDecision(s, entities.InputAdminApprove, ticketID)
	assert.ErrorIs(t, err, entities.ErrStaleCorrelation)
	assert.Contains(t, f.lastTo(t, adminChat).Text, "Too late")
	assert.Equal(t, entities.Seats{}, f.show(t).NonConfirmed())
}

func TestMachine_MismatchedTicketIsStale(t *testing.T) {
	f := newFixture(t, 0, 2)
	s := f.newSession(1)
	f.toAdminReview(t, s, optionPair)

	err := f.adminDecision(s, entities.InputAdminApprove, "someone-else")
	assert.ErrorIs(t, err, entities.ErrStaleCorrelation)
	assert.Equal(t, StepAdminReview, s.Step)
	assert.True(t, s.Hold.Active())
}

func TestMachine_StoreFailureKeepsStep(t *testing.T) {
	f := newFixture(t, 0, 2)
	s := f.newSession(1)
	f.toAdminReview(t, s, optionPair)
	require.NoError(t, f.adminDecision(s, entities.InputAdminApprove, s.Ticket.TicketID.String()))
	require.NoError(t, f.send(s, entities.InputText, "Ivan"))

	f.store.failAppend.Store(true)
	err := f.send(s, entities.InputText, "+79123456789")
	assert.ErrorIs(t, err, entities.ErrStoreUnavailable)
	assert.Equal(t, StepCollectPhone, s.Step)
	assert.Contains(t, f.lastTo(t, 1).Text, "try again later")

	f.store.failAppend.Store(false)
	require.NoError(t, f.send(s, entities.InputText, "+79123456789"))
	assert.Equal(t, StepComplete, s.Step)
}

func TestMachine_CancelAfterApprovalKeepsSeats(t *testing.T) {
	f := newFixture(t, 0, 2)
	s := f.newSession(1)
	f.toAdminReview(t, s, optionPair)
	require.NoError(t, f.adminDecision(s, entities.InputAdminApprove, s.Ticket.TicketID.String()))

	require.NoError(t, f.send(s, entities.InputCancel, ""))
	assert.Equal(t, StepCancelled, s.Step)

	show := f.show(t)
	assert.Equal(t, 0, show.Adult.Available, "paid seats stay consumed")
	assert.Equal(t, 0, show.Adult.NonConfirmed)

	records, err := f.store.ListClientRecords(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, entities.ClientRecordIncomplete, records[0].Status)
}

func TestMachine_NoShows(t *testing.T) {
	store := db.NewMemoryInventory()
	sink := &notification.SinkMock{}
	router := notification.NewRouter(sink, nil)
	machine := NewMachine(reservation.NewCatalog(store, 0), reservation.NewProtocol(store), store, router)

	s := NewState(entities.SessionKey{UserID: 1, ChatID: 1}, "")
	require.NoError(t, machine.Handle(context.Background(), s, entities.InboundEvent{Session: s.Key, Kind: entities.InputStart}))

	assert.True(t, s.Step.Terminal())
	require.Len(t, sink.SentTo(1), 1)
	assert.Contains(t, sink.SentTo(1)[0].Text, "no upcoming shows")
}

func TestNormalizePhone(t *testing.T) {
	testCases := []struct {
		Raw      string
		Expected string
		Valid    bool
	}{
		{Raw: "+7 (912) 345-67-89", Expected: "+79123456789", Valid: true},
		{Raw: "8.912.345.67.89", Expected: "89123456789", Valid: true},
		{Raw: "123456789", Expected: "123456789", Valid: false},
		{Raw: "+1234567890123456", Expected: "+1234567890123456", Valid: false},
		{Raw: "call me", Expected: "callme", Valid: false},
		{Raw: "", Expected: "", Valid: false},
	}

	for _, tc := range testCases {
		t.Run(tc.Raw, func(t *testing.T) {
			phone, ok := NormalizePhone(tc.Raw)
			assert.Equal(t, tc.Expected, phone)
			assert.Equal(t, tc.Valid, ok)
		})
	}
}
