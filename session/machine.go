package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"reservations/entities"
	"reservations/notification"
	"reservations/observability"
	"reservations/reservation"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

type Catalog interface {
	Snapshot(ctx context.Context) (reservation.Snapshot, error)
}

type Protocol interface {
	CreateHold(ctx context.Context, showID int, option entities.PriceOption, session entities.SessionKey) (*entities.Hold, error)
	ConfirmHold(ctx context.Context, hold *entities.Hold) (bool, error)
	ReleaseHold(ctx context.Context, hold *entities.Hold) (bool, error)
	ExtendHold(ctx context.Context, hold *entities.Hold) error
}

type Inventory interface {
	ReadShow(ctx context.Context, showID int) (entities.Show, error)
	AppendClientRecord(ctx context.Context, record entities.ClientRecord) error
}

type Notifier interface {
	NotifyUser(ctx context.Context, session entities.SessionKey, notice notification.Notice)
	NotifyChat(ctx context.Context, chatID int64, text string)
	NotifyAdmins(ctx context.Context, ticket entities.AdminReviewTicket)
	NotifyAdminsText(ctx context.Context, text string)
	Forget(ticketID string)
}

// Machine applies inbound events to a session State through an explicit
// (step, input kind) table. It holds no per-session data itself.
type Machine struct {
	catalog   Catalog
	protocol  Protocol
	inventory Inventory
	notifier  Notifier

	table    transitionTable
	versions atomic.Uint64
	now      func() time.Time
}

func NewMachine(catalog Catalog, protocol Protocol, inventory Inventory, notifier Notifier) *Machine {
	if catalog == nil {
		panic("catalog is nil")
	}
	if protocol == nil {
		panic("protocol is nil")
	}
	if inventory == nil {
		panic("inventory is nil")
	}
	if notifier == nil {
		panic("notifier is nil")
	}

	return &Machine{
		catalog:   catalog,
		protocol:  protocol,
		inventory: inventory,
		notifier:  notifier,
		table:     newTransitionTable(),
		now:       time.Now,
	}
}

// Handle runs the transition for the session's current step and the event
// kind. The returned error describes why the event was not accepted; the
// user has already been told.
func (m *Machine) Handle(ctx context.Context, s *State, ev entities.InboundEvent) error {
	byKind, ok := m.table[s.Step]
	if !ok {
		return fmt.Errorf("no transitions for step %s", s.Step)
	}
	handle, ok := byKind[ev.Kind]
	if !ok {
		return fmt.Errorf("%w: unknown input kind %q", entities.ErrInvalidInputShape, ev.Kind)
	}

	ctx = log.ToContext(ctx, log.FromContext(ctx).WithFields(logrus.Fields{
		"session": s.Key.String(),
		"step":    s.Step,
		"input":   ev.Kind,
	}))

	return handle(m, ctx, s, ev)
}

func (m *Machine) advance(s *State, step Step) {
	s.Step = step
	s.Version = m.versions.Add(1)
	s.LastTransition = m.now()

	observability.SessionTransitions.WithLabelValues(string(step)).Inc()
}

// prompt (re)sends the question of the current step.
func (m *Machine) prompt(ctx context.Context, s *State, prefix string) {
	notice := notification.Notice{Cancel: true}

	switch s.Step {
	case StepSelectDate:
		notice.Text = "Choose a date:"
		notice.Choices = lo.Map(s.offeredDates, func(date string, _ int) notification.Choice {
			return notification.Choice{Label: date, Value: date}
		})
	case StepSelectTime:
		notice.Text = fmt.Sprintf("Choose a show on %s:", s.Date)
		notice.Back = true
		notice.Choices = lo.Map(s.offeredShows, func(show entities.Show, _ int) notification.Choice {
			return notification.Choice{Label: show.Label(), Value: strconv.Itoa(show.ShowID)}
		})
	case StepSelectSeatOption:
		notice.Text = fmt.Sprintf("Choose seats for %s:", s.Show.Label())
		notice.Back = true
		notice.Choices = lo.Map(s.offeredOptions, func(option entities.PriceOption, _ int) notification.Choice {
			return notification.Choice{
				Label: fmt.Sprintf("%s - %d", option.Name, option.Price),
				Value: strconv.Itoa(option.OptionID),
			}
		})
		if len(notice.Choices) == 0 {
			notice.Text = fmt.Sprintf("No seats left for %s. Go back to pick another time.", s.Show.Label())
		}
	case StepAwaitPaymentProof:
		notice.Text = fmt.Sprintf(
			"%d seats are held for you for %s. Pay %d and send a photo of the payment confirmation.",
			s.Option.Seats.Adult+s.Option.Seats.Children, s.Show.Label(), s.Option.Price,
		)
		notice.Back = true
	case StepAdminReview:
		notice.Text = "Your payment is still under review. Please wait for the administrator."
		notice.Cancel = false
	case StepCollectApplicantName:
		notice.Text = "Enter the applicant's full name:"
	case StepCollectPhone:
		notice.Text = "Enter a contact phone number:"
		notice.Back = true
	case StepCollectChildrenNames:
		notice.Text = fmt.Sprintf("Enter the names of the %d children, separated by commas:", s.Option.Seats.Children)
		notice.Back = true
	default:
		return
	}

	if prefix != "" {
		notice.Text = prefix + "\n" + notice.Text
	}

	m.notifier.NotifyUser(ctx, s.Key, notice)
}

func (m *Machine) say(ctx context.Context, s *State, text string) {
	m.notifier.NotifyUser(ctx, s.Key, notification.Notice{Text: text})
}

func (m *Machine) rejectInput(ctx context.Context, s *State, reason string) error {
	m.prompt(ctx, s, reason)
	return entities.ErrInvalidInputShape
}

// storeFailure leaves the session where it is and asks the user to retry.
func (m *Machine) storeFailure(ctx context.Context, s *State, err error) error {
	log.FromContext(ctx).WithError(err).Error("Inventory operation failed")
	m.say(ctx, s, "Something went wrong on our side. Please try again later.")

	if errors.Is(err, entities.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", entities.ErrStoreUnavailable, err)
}

// keepHold renews the lease of the session's hold after activity. A failed
// renewal only shortens the lease, so it is logged and not returned.
func (m *Machine) keepHold(ctx context.Context, s *State) {
	if !s.Hold.Active() {
		return
	}
	if err := m.protocol.ExtendHold(ctx, s.Hold); err != nil {
		log.FromContext(ctx).WithError(err).WithField("hold_id", s.Hold.HoldID).Warn("Could not extend hold")
	}
}

// abandon ends a session that did not complete. An active hold is released
// first; if that fails the session stays as it is. A hold that was already
// confirmed keeps its seats and an incomplete record is stored instead.
func (m *Machine) abandon(ctx context.Context, s *State, final Step, userText string) error {
	if s.Hold.Active() {
		if _, err := m.protocol.ReleaseHold(ctx, s.Hold); err != nil {
			return m.storeFailure(ctx, s, err)
		}
	}

	if s.Hold.Confirmed() {
		record := m.clientRecord(s, entities.ClientRecordIncomplete)
		if err := m.inventory.AppendClientRecord(ctx, record); err != nil {
			return m.storeFailure(ctx, s, err)
		}
		m.notifier.NotifyAdminsText(ctx, fmt.Sprintf(
			"Reservation for %s was paid and approved but not completed (%s). Record %s, contact user %d.",
			s.Show.Label(), final, record.RecordID, s.Key.UserID,
		))
	}

	if s.Ticket != nil {
		m.notifier.Forget(s.Ticket.TicketID.String())
	}

	m.advance(s, final)
	m.say(ctx, s, userText)

	log.FromContext(ctx).WithField("final_step", final).Info("Session closed")

	return nil
}

func (m *Machine) clientRecord(s *State, status entities.ClientRecordStatus) entities.ClientRecord {
	record := entities.ClientRecord{
		RecordID:      uuid.New(),
		ApplicantName: s.ApplicantName,
		Phone:         s.Phone,
		ChildrenNames: s.ChildrenNames,
		PaymentProof:  s.PaymentProof,
		UserID:        s.Key.UserID,
		ChatID:        s.Key.ChatID,
		Status:        status,
		CreatedAt:     m.now().UTC(),
	}
	if s.Show != nil {
		record.ShowID = s.Show.ShowID
		record.ShowName = s.Show.Name
		record.ShowDate = s.Show.DateKey()
		record.ShowTime = s.Show.Time
	}
	if s.Option != nil {
		record.OptionID = s.Option.OptionID
		record.OptionName = s.Option.Name
		record.Price = s.Option.Price
		record.Seats = s.Option.Seats
	}

	return record
}
