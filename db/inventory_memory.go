package db

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"reservations/entities"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/google/uuid"
)

type EventPublisher interface {
	Publish(ctx context.Context, event any) error
}

type memoryShow struct {
	mu   sync.Mutex
	show entities.Show
}

// MemoryInventory is the single-process inventory backend. Each show has
// its own lock, so mutations on one show never wait for another.
type MemoryInventory struct {
	mu      sync.RWMutex
	shows   map[int]*memoryShow
	options map[int]entities.PriceOption
	records []entities.ClientRecord
	nextID  int

	holdsMu sync.Mutex
	holds   map[uuid.UUID]entities.Hold

	eventBus EventPublisher
}

func NewMemoryInventory() *MemoryInventory {
	return &MemoryInventory{
		shows:   make(map[int]*memoryShow),
		options: make(map[int]entities.PriceOption),
		holds:   make(map[uuid.UUID]entities.Hold),
		nextID:  1,
	}
}

// WithEventBus makes the inventory publish seat and record events the same
// way the Postgres backend does through its outbox.
func (m *MemoryInventory) WithEventBus(bus EventPublisher) *MemoryInventory {
	m.eventBus = bus
	return m
}

func (m *MemoryInventory) AddShow(ctx context.Context, show entities.Show) (int, error) {
	if !show.SeatsValid() {
		return 0, fmt.Errorf("%w: show %q has invalid seat counters", entities.ErrInvalidInputShape, show.Name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for id, existing := range m.shows {
		if existing.show.Name == show.Name && existing.show.DateKey() == show.DateKey() && existing.show.Time == show.Time {
			return id, nil
		}
	}

	show.ShowID = m.nextID
	m.nextID++
	m.shows[show.ShowID] = &memoryShow{show: show}

	return show.ShowID, nil
}

func (m *MemoryInventory) lookup(showID int) (*memoryShow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.shows[showID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", entities.ErrShowNotFound, showID)
	}

	return s, nil
}

func (m *MemoryInventory) ReadShow(ctx context.Context, showID int) (entities.Show, error) {
	s, err := m.lookup(showID)
	if err != nil {
		return entities.Show{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.show, nil
}

func (m *MemoryInventory) ListShows(ctx context.Context, from time.Time) ([]entities.Show, error) {
	m.mu.RLock()
	list := make([]*memoryShow, 0, len(m.shows))
	for _, s := range m.shows {
		list = append(list, s)
	}
	m.mu.RUnlock()

	fromKey := from.Format(entities.DateKeyLayout)
	shows := make([]entities.Show, 0, len(list))
	for _, s := range list {
		s.mu.Lock()
		show := s.show
		s.mu.Unlock()

		if show.DateKey() >= fromKey {
			shows = append(shows, show)
		}
	}

	sort.Slice(shows, func(i, j int) bool {
		if shows[i].DateKey() != shows[j].DateKey() {
			return shows[i].DateKey() < shows[j].DateKey()
		}
		if shows[i].Time != shows[j].Time {
			return shows[i].Time < shows[j].Time
		}
		return shows[i].ShowID < shows[j].ShowID
	})

	return shows, nil
}

func (m *MemoryInventory) SavePriceOption(ctx context.Context, option entities.PriceOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.options[option.OptionID] = option
	return nil
}

func (m *MemoryInventory) ListPriceOptions(ctx context.Context) ([]entities.PriceOption, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	options := make([]entities.PriceOption, 0, len(m.options))
	for _, o := range m.options {
		options = append(options, o)
	}
	sort.Slice(options, func(i, j int) bool { return options[i].OptionID < options[j].OptionID })

	return options, nil
}

func (m *MemoryInventory) MutateShowSeats(
	ctx context.Context,
	showID int,
	deltaAvailable entities.Seats,
	deltaNonConfirmed entities.Seats,
) (entities.Show, error) {
	show, event, err := m.applySeats(showID, deltaAvailable, deltaNonConfirmed)
	if err != nil {
		return entities.Show{}, err
	}
	m.publish(ctx, event)

	return show, nil
}

func (m *MemoryInventory) applySeats(
	showID int,
	deltaAvailable entities.Seats,
	deltaNonConfirmed entities.Seats,
) (entities.Show, entities.ShowSeatsChanged_v1, error) {
	s, err := m.lookup(showID)
	if err != nil {
		return entities.Show{}, entities.ShowSeatsChanged_v1{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	updated, ok := s.show.ApplySeatDelta(deltaAvailable, deltaNonConfirmed)
	if !ok {
		return entities.Show{}, entities.ShowSeatsChanged_v1{}, entities.ErrCapacityExceeded
	}
	s.show = updated

	return updated, entities.NewShowSeatsChanged(updated, deltaAvailable, deltaNonConfirmed), nil
}

func (m *MemoryInventory) PlaceHold(ctx context.Context, hold entities.Hold) (entities.Show, error) {
	m.holdsMu.Lock()
	show, event, err := m.applySeats(hold.ShowID, hold.Seats.Neg(), hold.Seats)
	if err == nil {
		m.holds[hold.HoldID] = hold
	}
	m.holdsMu.Unlock()

	if err != nil {
		return entities.Show{}, err
	}
	m.publish(ctx, event)

	return show, nil
}

func (m *MemoryInventory) SettleHold(
	ctx context.Context,
	hold entities.Hold,
	status entities.HoldStatus,
) (entities.HoldStatus, error) {
	m.holdsMu.Lock()
	previous, event, err := m.settle(hold.HoldID, status)
	m.holdsMu.Unlock()

	if err != nil {
		return "", err
	}
	if event != nil {
		m.publish(ctx, *event)
	}

	return previous, nil
}

// settle expects holdsMu to be held. The event is nil when the hold was
// no longer active.
func (m *MemoryInventory) settle(holdID uuid.UUID, status entities.HoldStatus) (entities.HoldStatus, *entities.ShowSeatsChanged_v1, error) {
	stored, ok := m.holds[holdID]
	if !ok {
		return "", nil, fmt.Errorf("%w: %s", entities.ErrHoldNotFound, holdID)
	}
	if stored.Status != entities.HoldStatusActive {
		return stored.Status, nil, nil
	}

	deltaAvailable, deltaNonConfirmed := stored.SettleDeltas(status)
	_, event, err := m.applySeats(stored.ShowID, deltaAvailable, deltaNonConfirmed)
	if err != nil {
		return "", nil, err
	}
	stored.Status = status
	m.holds[holdID] = stored

	return entities.HoldStatusActive, &event, nil
}

func (m *MemoryInventory) ExtendHold(ctx context.Context, holdID uuid.UUID, expiresAt time.Time) error {
	m.holdsMu.Lock()
	defer m.holdsMu.Unlock()

	stored, ok := m.holds[holdID]
	if ok && stored.Active() && stored.ExpiresAt.Before(expiresAt) {
		stored.ExpiresAt = expiresAt
		m.holds[holdID] = stored
	}

	return nil
}

func (m *MemoryInventory) ReleaseExpiredHolds(ctx context.Context, asOf time.Time) ([]entities.Hold, error) {
	var (
		released []entities.Hold
		events   []entities.ShowSeatsChanged_v1
		err      error
	)

	m.holdsMu.Lock()
	for id, hold := range m.holds {
		if !hold.Expired(asOf) {
			continue
		}

		var event *entities.ShowSeatsChanged_v1
		if _, event, err = m.settle(id, entities.HoldStatusReleased); err != nil {
			break
		}
		hold.Status = entities.HoldStatusReleased
		released = append(released, hold)
		events = append(events, *event)
	}
	m.holdsMu.Unlock()

	for _, event := range events {
		m.publish(ctx, event)
	}

	return released, err
}

func (m *MemoryInventory) ListActiveHolds(ctx context.Context) ([]entities.Hold, error) {
	m.holdsMu.Lock()
	defer m.holdsMu.Unlock()

	holds := make([]entities.Hold, 0, len(m.holds))
	for _, hold := range m.holds {
		if hold.Active() {
			holds = append(holds, hold)
		}
	}
	sort.Slice(holds, func(i, j int) bool { return holds[i].CreatedAt.Before(holds[j].CreatedAt) })

	return holds, nil
}

func (m *MemoryInventory) AppendClientRecord(ctx context.Context, record entities.ClientRecord) error {
	m.mu.Lock()
	for _, existing := range m.records {
		if existing.RecordID == record.RecordID {
			m.mu.Unlock()
			return nil
		}
	}
	m.records = append(m.records, record)
	m.mu.Unlock()

	m.publish(ctx, entities.ReservationCompleted_v1{
		Header: entities.NewEventHeaderWithIdempotencyKey(record.RecordID.String()),
		Record: record,
	})

	return nil
}

func (m *MemoryInventory) ListClientRecords(ctx context.Context) ([]entities.ClientRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]entities.ClientRecord, len(m.records))
	copy(records, m.records)

	return records, nil
}

// The mutation is already applied, so a failed publish is only logged.
func (m *MemoryInventory) publish(ctx context.Context, event entities.Event) {
	if m.eventBus == nil {
		return
	}

	if err := m.eventBus.Publish(ctx, event); err != nil {
		log.FromContext(ctx).WithError(err).Warnf("could not publish %T", event)
	}
}
