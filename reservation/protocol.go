package reservation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"reservations/entities"
	"reservations/observability"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Store records holds next to the seat counters. PlaceHold and SettleHold
// change both in one step.
type Store interface {
	ReadShow(ctx context.Context, showID int) (entities.Show, error)
	PlaceHold(ctx context.Context, hold entities.Hold) (entities.Show, error)
	SettleHold(ctx context.Context, hold entities.Hold, status entities.HoldStatus) (entities.HoldStatus, error)
	ExtendHold(ctx context.Context, holdID uuid.UUID, expiresAt time.Time) error
	ReleaseExpiredHolds(ctx context.Context, asOf time.Time) ([]entities.Hold, error)
}

// DefaultHoldLease is used until WithHoldLease sets the real one.
const DefaultHoldLease = 20 * time.Minute

// CheckCapacity reports whether the show still has the seats the option needs.
func CheckCapacity(show entities.Show, option entities.PriceOption) bool {
	return show.Available().Covers(option.Seats)
}

// Protocol owns every seat mutation. Mutations on the same show are
// serialized, and the store applies each one conditionally, so two holds
// can never both consume the same seat.
type Protocol struct {
	store Store
	locks *showLocks
	lease time.Duration
	now   func() time.Time
}

func NewProtocol(store Store) *Protocol {
	if store == nil {
		panic("store is nil")
	}

	return &Protocol{
		store: store,
		locks: newShowLocks(),
		lease: DefaultHoldLease,
		now:   time.Now,
	}
}

// WithHoldLease sets how long a hold survives without being extended. It
// must outlast the session inactivity timeout, so a live session always
// settles its own hold first.
func (p *Protocol) WithHoldLease(lease time.Duration) *Protocol {
	if lease > 0 {
		p.lease = lease
	}
	return p
}

// CreateHold reads the show, checks capacity and moves the option's seats
// from available to non-confirmed as one step.
func (p *Protocol) CreateHold(
	ctx context.Context,
	showID int,
	option entities.PriceOption,
	session entities.SessionKey,
) (hold *entities.Hold, err error) {
	ctx, span := p.startSpan(ctx, "CreateHold", showID, option.Seats)
	defer func() { p.endSpan(span, "create", err) }()

	unlock := p.locks.lock(showID)
	defer unlock()

	show, err := p.store.ReadShow(ctx, showID)
	if err != nil {
		return nil, storeError(err)
	}
	if !CheckCapacity(show, option) {
		return nil, entities.ErrCapacityExceeded
	}

	now := p.now()
	hold = &entities.Hold{
		HoldID:    uuid.New(),
		ShowID:    showID,
		Seats:     option.Seats,
		Session:   session,
		Status:    entities.HoldStatusActive,
		CreatedAt: now,
		ExpiresAt: now.Add(p.lease),
	}

	if _, err = p.store.PlaceHold(ctx, *hold); err != nil {
		return nil, storeError(err)
	}

	log.FromContext(ctx).WithFields(logrus.Fields{
		"hold_id": hold.HoldID,
		"show_id": showID,
		"session": session.String(),
	}).Info("Seats held")

	return hold, nil
}

// ConfirmHold clears the held seats from non-confirmed; they stay out of
// available for good. Confirming a hold that is no longer active is a
// reported no-op, except that a hold released by the sweep returns
// ErrHoldExpired.
func (p *Protocol) ConfirmHold(ctx context.Context, hold *entities.Hold) (applied bool, err error) {
	return p.settle(ctx, hold, "ConfirmHold", "confirm", entities.HoldStatusConfirmed)
}

// ReleaseHold gives the held seats back to available. Releasing a hold that
// is no longer active is a reported no-op.
func (p *Protocol) ReleaseHold(ctx context.Context, hold *entities.Hold) (applied bool, err error) {
	return p.settle(ctx, hold, "ReleaseHold", "release", entities.HoldStatusReleased)
}

func (p *Protocol) settle(
	ctx context.Context,
	hold *entities.Hold,
	spanName string,
	operation string,
	status entities.HoldStatus,
) (applied bool, err error) {
	if hold == nil {
		return false, nil
	}

	ctx, span := p.startSpan(ctx, spanName, hold.ShowID, hold.Seats)
	defer func() {
		span.SetAttributes(attribute.Bool("applied", applied))
		p.endSpan(span, operation, err)
	}()

	unlock := p.locks.lock(hold.ShowID)
	defer unlock()

	if !hold.Active() {
		log.FromContext(ctx).WithFields(logrus.Fields{
			"hold_id": hold.HoldID,
			"status":  hold.Status,
		}).Infof("Ignoring duplicate %s", operation)
		observability.HoldOperations.WithLabelValues(operation, "duplicate").Inc()
		return false, nil
	}

	previous, err := p.store.SettleHold(ctx, *hold, status)
	if err != nil {
		return false, storeError(err)
	}
	if previous != entities.HoldStatusActive {
		hold.Status = previous
		log.FromContext(ctx).WithFields(logrus.Fields{
			"hold_id": hold.HoldID,
			"status":  previous,
		}).Warnf("Hold was settled elsewhere before %s", operation)

		if status == entities.HoldStatusConfirmed && previous == entities.HoldStatusReleased {
			return false, entities.ErrHoldExpired
		}
		return false, nil
	}
	hold.Status = status

	return true, nil
}

// ExtendHold pushes the lease of an active hold one full lease period
// past now.
func (p *Protocol) ExtendHold(ctx context.Context, hold *entities.Hold) error {
	if !hold.Active() {
		return nil
	}

	expiresAt := p.now().Add(p.lease)
	if err := p.store.ExtendHold(ctx, hold.HoldID, expiresAt); err != nil {
		return storeError(err)
	}
	hold.ExpiresAt = expiresAt

	return nil
}

// ReleaseExpiredHolds gives back the seats of every active hold whose lease
// ended at or before asOf. These are holds whose session is gone, for
// example after the process owning it was killed.
func (p *Protocol) ReleaseExpiredHolds(ctx context.Context, asOf time.Time) (released int, err error) {
	ctx, span := otel.Tracer("reservation").Start(ctx, "ReleaseExpiredHolds")
	defer func() {
		span.SetAttributes(attribute.Int("released", released))
		p.endSpan(span, "expire", err)
	}()

	holds, err := p.store.ReleaseExpiredHolds(ctx, asOf)
	for _, hold := range holds {
		log.FromContext(ctx).WithFields(logrus.Fields{
			"hold_id":    hold.HoldID,
			"show_id":    hold.ShowID,
			"session":    hold.Session.String(),
			"expires_at": hold.ExpiresAt,
		}).Info("Released expired hold")
	}
	if err != nil {
		return len(holds), storeError(err)
	}

	return len(holds), nil
}

// SweepExpiredHolds runs ReleaseExpiredHolds right away and then every
// interval until ctx is done. Failures are logged and retried on the next
// tick.
func (p *Protocol) SweepExpiredHolds(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := p.ReleaseExpiredHolds(ctx, p.now()); err != nil && ctx.Err() == nil {
			log.FromContext(ctx).WithError(err).Error("Could not release expired holds")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (p *Protocol) startSpan(ctx context.Context, name string, showID int, seats entities.Seats) (context.Context, trace.Span) {
	return otel.Tracer("reservation").Start(ctx, name, trace.WithAttributes(
		attribute.Int("show_id", showID),
		attribute.Int("seats.children", seats.Children),
		attribute.Int("seats.adult", seats.Adult),
	))
}

func (p *Protocol) endSpan(span trace.Span, operation string, err error) {
	defer span.End()

	outcome := observability.Outcome(err)
	switch {
	case errors.Is(err, entities.ErrCapacityExceeded):
		outcome = "capacity_exceeded"
	case errors.Is(err, entities.ErrHoldExpired):
		outcome = "expired"
	}
	observability.HoldOperations.WithLabelValues(operation, outcome).Inc()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// storeError keeps capacity and lookup failures as they are and marks
// everything else as a store outage.
func storeError(err error) error {
	if errors.Is(err, entities.ErrCapacityExceeded) ||
		errors.Is(err, entities.ErrShowNotFound) ||
		errors.Is(err, entities.ErrHoldNotFound) {
		return err
	}
	return fmt.Errorf("%w: %w", entities.ErrStoreUnavailable, err)
}

type showLocks struct {
	mu    sync.Mutex
	locks map[int]*showLock
}

type showLock struct {
	mu      sync.Mutex
	waiters int
}

func newShowLocks() *showLocks {
	return &showLocks{locks: make(map[int]*showLock)}
}

// lock returns the unlock func. Entries are dropped once nobody waits on
// them so the map does not grow with the number of shows ever touched.
func (l *showLocks) lock(showID int) func() {
	l.mu.Lock()
	sl, ok := l.locks[showID]
	if !ok {
		sl = &showLock{}
		l.locks[showID] = sl
	}
	sl.waiters++
	l.mu.Unlock()

	sl.mu.Lock()

	return func() {
		sl.mu.Unlock()

		l.mu.Lock()
		sl.waiters--
		if sl.waiters == 0 {
			delete(l.locks, showID)
		}
		l.mu.Unlock()
	}
}
