package reservation_test

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"reservations/db"
	"reservations/entities"
	"reservations/reservation"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newShow(t *testing.T, store *db.MemoryInventory, children, adult int) int {
	t.Helper()

	showID, err := store.AddShow(context.Background(), entities.Show{
		Name:     "Show " + t.Name(),
		Date:     time.Date(2026, 12, 24, 0, 0, 0, 0, time.UTC),
		Time:     "12:00",
		Children: entities.SeatCounts{Total: children, Available: children},
		Adult:    entities.SeatCounts{Total: adult, Available: adult},
	})
	require.NoError(t, err)

	return showID
}

func session(id int64) entities.SessionKey {
	return entities.SessionKey{UserID: id, ChatID: id}
}

func TestCheckCapacity(t *testing.T) {
	show := entities.Show{
		Children: entities.SeatCounts{Total: 3, Available: 1},
		Adult:    entities.SeatCounts{Total: 3, Available: 2},
	}

	testCases := []struct {
		Name     string
		Seats    entities.Seats
		Expected bool
	}{
		{Name: "fits", Seats: entities.Seats{Children: 1, Adult: 2}, Expected: true},
		{Name: "too_many_children", Seats: entities.Seats{Children: 2}, Expected: false},
		{Name: "too_many_adults", Seats: entities.Seats{Adult: 3}, Expected: false},
		{Name: "nothing_required", Seats: entities.Seats{}, Expected: true},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			assert.Equal(t, tc.Expected, reservation.CheckCapacity(show, entities.PriceOption{Seats: tc.Seats}))
		})
	}
}

func TestProtocol_ConcurrentHolds(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryInventory()
	protocol := reservation.NewProtocol(store)

	const (
		sessions = 40
		capacity = 7
	)
	perHold := entities.Seats{Adult: 2}
	showID := newShow(t, store, 0, capacity*perHold.Adult+1)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		holds    int
		rejected int
	)
	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			_, err := protocol.CreateHold(ctx, showID, entities.PriceOption{Seats: perHold}, session(int64(i)))

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				holds++
				return
			}
			assert.ErrorIs(t, err, entities.ErrCapacityExceeded)
			rejected++
		}(i)
	}
	wg.Wait()

	assert.Equal(t, capacity, holds)
	assert.Equal(t, sessions-capacity, rejected)

	show, err := store.ReadShow(ctx, showID)
	require.NoError(t, err)
	assert.Equal(t, 1, show.Adult.Available)
	assert.Equal(t, capacity*perHold.Adult, show.Adult.NonConfirmed)
}

func TestProtocol_ConfirmAndReleaseAreIdempotent(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryInventory()
	protocol := reservation.NewProtocol(store)
	showID := newShow(t, store, 2, 2)
	option := entities.PriceOption{Seats: entities.Seats{Children: 1, Adult: 1}}

	confirmed, err := protocol.CreateHold(ctx, showID, option, session(1))
	require.NoError(t, err)
	released, err := protocol.CreateHold(ctx, showID, option, session(2))
	require.NoError(t, err)

	applied, err := protocol.ConfirmHold(ctx, confirmed)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = protocol.ReleaseHold(ctx, released)
	require.NoError(t, err)
	assert.True(t, applied)

	afterOnce, err := store.ReadShow(ctx, showID)
	require.NoError(t, err)

	for _, hold := range []*entities.Hold{confirmed, released} {
		applied, err = protocol.ConfirmHold(ctx, hold)
		require.NoError(t, err)
		assert.False(t, applied)

		applied, err = protocol.ReleaseHold(ctx, hold)
		require.NoError(t, err)
		assert.False(t, applied)
	}

	afterTwice, err := store.ReadShow(ctx, showID)
	require.NoError(t, err)
	assert.Equal(t, afterOnce, afterTwice)
	assert.Equal(t, entities.Seats{Children: 1, Adult: 1}, afterTwice.Available())
	assert.Equal(t, entities.Seats{}, afterTwice.NonConfirmed())
}

func TestProtocol_RandomInterleavingKeepsInvariant(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryInventory()
	protocol := reservation.NewProtocol(store)
	showID := newShow(t, store, 5, 8)

	options := []entities.PriceOption{
		{OptionID: 1, Seats: entities.Seats{Adult: 1}},
		{OptionID: 2, Seats: entities.Seats{Adult: 2, Children: 1}},
		{OptionID: 3, Seats: entities.Seats{Children: 2}},
	}

	var wg sync.WaitGroup
	for worker := 0; worker < 8; worker++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			rnd := rand.New(rand.NewSource(int64(worker)))

			for i := 0; i < 200; i++ {
				hold, err := protocol.CreateHold(ctx, showID, options[rnd.Intn(len(options))], session(int64(worker)))
				if err != nil {
					assert.ErrorIs(t, err, entities.ErrCapacityExceeded)
					continue
				}

				if rnd.Intn(4) == 0 {
					_, err = protocol.ConfirmHold(ctx, hold)
				} else {
					_, err = protocol.ReleaseHold(ctx, hold)
				}
				assert.NoError(t, err)

				show, err := store.ReadShow(ctx, showID)
				assert.NoError(t, err)
				assert.True(t, show.SeatsValid(), "invariant broken: %+v", show)
			}
		}(worker)
	}
	wg.Wait()

	show, err := store.ReadShow(ctx, showID)
	require.NoError(t, err)
	assert.Equal(t, entities.Seats{}, show.NonConfirmed())
	assert.True(t, show.SeatsValid())
}

func TestProtocol_RejectedSessionFreesSeatsForOthers(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryInventory()
	protocol := reservation.NewProtocol(store)
	showID := newShow(t, store, 0, 2)

	hold, err := protocol.CreateHold(ctx, showID, entities.PriceOption{Seats: entities.Seats{Adult: 2}}, session(1))
	require.NoError(t, err)

	show, err := store.ReadShow(ctx, showID)
	require.NoError(t, err)
	assert.Equal(t, 0, show.Adult.Available)

	_, err = protocol.CreateHold(ctx, showID, entities.PriceOption{Seats: entities.Seats{Adult: 1}}, session(2))
	assert.ErrorIs(t, err, entities.ErrCapacityExceeded)

	_, err = protocol.ReleaseHold(ctx, hold)
	require.NoError(t, err)

	show, err = store.ReadShow(ctx, showID)
	require.NoError(t, err)
	assert.Equal(t, 2, show.Adult.Available)
	assert.Equal(t, 0, show.Adult.NonConfirmed)
}

func TestProtocol_UnknownShow(t *testing.T) {
	protocol := reservation.NewProtocol(db.NewMemoryInventory())

	_, err := protocol.CreateHold(context.Background(), 42, entities.PriceOption{Seats: entities.Seats{Adult: 1}}, session(1))
	assert.ErrorIs(t, err, entities.ErrShowNotFound)
	assert.NotErrorIs(t, err, entities.ErrStoreUnavailable)
}

type brokenStore struct {
	reservation.Store
}

func (brokenStore) ReadShow(ctx context.Context, showID int) (entities.Show, error) {
	return entities.Show{}, assert.AnError
}

func TestProtocol_StoreFailureIsUnavailable(t *testing.T) {
	protocol := reservation.NewProtocol(brokenStore{})

	_, err := protocol.CreateHold(context.Background(), 1, entities.PriceOption{}, session(1))
	assert.ErrorIs(t, err, entities.ErrStoreUnavailable)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestProtocol_Spans(t *testing.T) {
	exp := &tracetest.InMemoryExporter{}
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp)))

	ctx := context.Background()
	store := db.NewMemoryInventory()
	protocol := reservation.NewProtocol(store)
	showID := newShow(t, store, 1, 1)

	hold, err := protocol.CreateHold(ctx, showID, entities.PriceOption{Seats: entities.Seats{Adult: 1}}, session(1))
	require.NoError(t, err)
	_, err = protocol.ConfirmHold(ctx, hold)
	require.NoError(t, err)

	spans := exp.GetSpans()
	allSpans := strings.Join(lo.Map(spans, func(item tracetest.SpanStub, _ int) string {
		return item.Name
	}), ", ")

	_, ok := lo.Find(spans, func(item tracetest.SpanStub) bool {
		return item.Name == "CreateHold"
	})
	assert.True(t, ok, "CreateHold span not found, all spans: %s", allSpans)

	_, ok = lo.Find(spans, func(item tracetest.SpanStub) bool {
		return item.Name == "ConfirmHold"
	})
	assert.True(t, ok, "ConfirmHold span not found, all spans: %s", allSpans)
}

func TestProtocol_ReleaseExpiredHolds(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryInventory()
	protocol := reservation.NewProtocol(store).WithHoldLease(time.Minute)
	showID := newShow(t, store, 2, 4)

	expiring, err := protocol.CreateHold(ctx, showID, entities.PriceOption{Seats: entities.Seats{Children: 1, Adult: 1}}, session(1))
	require.NoError(t, err)
	confirmed, err := protocol.CreateHold(ctx, showID, entities.PriceOption{Seats: entities.Seats{Adult: 2}}, session(2))
	require.NoError(t, err)
	_, err = protocol.ConfirmHold(ctx, confirmed)
	require.NoError(t, err)

	released, err := protocol.ReleaseExpiredHolds(ctx, expiring.CreatedAt.Add(30*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 0, released)

	released, err = protocol.ReleaseExpiredHolds(ctx, expiring.ExpiresAt)
	require.NoError(t, err)
	assert.Equal(t, 1, released, "only the active hold is released")

	show, err := store.ReadShow(ctx, showID)
	require.NoError(t, err)
	assert.Equal(t, entities.Seats{Children: 2, Adult: 2}, show.Available())
	assert.Equal(t, entities.Seats{}, show.NonConfirmed())

	released, err = protocol.ReleaseExpiredHolds(ctx, expiring.ExpiresAt.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, released)

	// the session that still points at the swept hold
	applied, err := protocol.ReleaseHold(ctx, expiring)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, entities.HoldStatusReleased, expiring.Status)

	show, err = store.ReadShow(ctx, showID)
	require.NoError(t, err)
	assert.Equal(t, entities.Seats{Children: 2, Adult: 2}, show.Available())
}

func TestProtocol_ConfirmSweptHold(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryInventory()
	protocol := reservation.NewProtocol(store).WithHoldLease(time.Minute)
	showID := newShow(t, store, 0, 2)

	hold, err := protocol.CreateHold(ctx, showID, entities.PriceOption{Seats: entities.Seats{Adult: 2}}, session(1))
	require.NoError(t, err)

	_, err = protocol.ReleaseExpiredHolds(ctx, hold.ExpiresAt)
	require.NoError(t, err)

	// the seats were free to be taken again before the approval came in
	other, err := protocol.CreateHold(ctx, showID, entities.PriceOption{Seats: entities.Seats{Adult: 2}}, session(2))
	require.NoError(t, err)

	applied, err := protocol.ConfirmHold(ctx, hold)
	assert.ErrorIs(t, err, entities.ErrHoldExpired)
	assert.False(t, applied)
	assert.False(t, hold.Active())

	show, err := store.ReadShow(ctx, showID)
	require.NoError(t, err)
	assert.Equal(t, 2, show.Adult.NonConfirmed, "only the second hold keeps seats")
	assert.True(t, other.Active())
}

func TestProtocol_ExtendHold(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryInventory()
	protocol := reservation.NewProtocol(store).WithHoldLease(time.Minute)
	showID := newShow(t, store, 0, 2)

	hold, err := protocol.CreateHold(ctx, showID, entities.PriceOption{Seats: entities.Seats{Adult: 1}}, session(1))
	require.NoError(t, err)
	placedUntil := hold.ExpiresAt

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, protocol.ExtendHold(ctx, hold))
	assert.True(t, hold.ExpiresAt.After(placedUntil))

	released, err := protocol.ReleaseExpiredHolds(ctx, placedUntil)
	require.NoError(t, err)
	assert.Equal(t, 0, released)

	released, err = protocol.ReleaseExpiredHolds(ctx, hold.ExpiresAt)
	require.NoError(t, err)
	assert.Equal(t, 1, released)
}

func TestProtocol_SweepExpiredHolds(t *testing.T) {
	store := db.NewMemoryInventory()
	protocol := reservation.NewProtocol(store).WithHoldLease(time.Millisecond)
	showID := newShow(t, store, 0, 3)

	_, err := protocol.CreateHold(context.Background(), showID, entities.PriceOption{Seats: entities.Seats{Adult: 3}}, session(1))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		done <- protocol.SweepExpiredHolds(ctx, 10*time.Millisecond)
	}()

	assert.EventuallyWithT(t, func(t *assert.CollectT) {
		show, err := store.ReadShow(context.Background(), showID)
		assert.NoError(t, err)
		assert.Equal(t, 3, show.Adult.Available)
	}, time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
