package session

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"reservations/entities"
	"reservations/notification"
	"reservations/reservation"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type handler func(m *Machine, ctx context.Context, s *State, ev entities.InboundEvent) error

type transitionTable map[Step]map[entities.InputKind]handler

// newTransitionTable lists a handler for every step and input kind.
// Nothing falls through to a default.
func newTransitionTable() transitionTable {
	return transitionTable{
		StepNew: {
			entities.InputStart:        (*Machine).begin,
			entities.InputText:         (*Machine).notStarted,
			entities.InputImage:        (*Machine).notStarted,
			entities.InputSelection:    (*Machine).notStarted,
			entities.InputBack:         (*Machine).notStarted,
			entities.InputCancel:       (*Machine).notStarted,
			entities.InputAdminApprove: (*Machine).staleAdminReply,
			entities.InputAdminReject:  (*Machine).staleAdminReply,
			entities.InputTimeout:      (*Machine).expire,
		},
		StepSelectDate: {
			entities.InputStart:        (*Machine).repeatPrompt,
			entities.InputText:         (*Machine).expectSelection,
			entities.InputImage:        (*Machine).expectSelection,
			entities.InputSelection:    (*Machine).selectDate,
			entities.InputBack:         (*Machine).repeatPrompt,
			entities.InputCancel:       (*Machine).cancel,
			entities.InputAdminApprove: (*Machine).staleAdminReply,
			entities.InputAdminReject:  (*Machine).staleAdminReply,
			entities.InputTimeout:      (*Machine).expire,
		},
		StepSelectTime: {
			entities.InputStart:        (*Machine).repeatPrompt,
			entities.InputText:         (*Machine).expectSelection,
			entities.InputImage:        (*Machine).expectSelection,
			entities.InputSelection:    (*Machine).selectTime,
			entities.InputBack:         (*Machine).backToDate,
			entities.InputCancel:       (*Machine).cancel,
			entities.InputAdminApprove: (*Machine).staleAdminReply,
			entities.InputAdminReject:  (*Machine).staleAdminReply,
			entities.InputTimeout:      (*Machine).expire,
		},
		StepSelectSeatOption: {
			entities.InputStart:        (*Machine).repeatPrompt,
			entities.InputText:         (*Machine).expectSelection,
			entities.InputImage:        (*Machine).expectSelection,
			entities.InputSelection:    (*Machine).selectSeatOption,
			entities.InputBack:         (*Machine).backToTime,
			entities.InputCancel:       (*Machine).cancel,
			entities.InputAdminApprove: (*Machine).staleAdminReply,
			entities.InputAdminReject:  (*Machine).staleAdminReply,
			entities.InputTimeout:      (*Machine).expire,
		},
		StepAwaitPaymentProof: {
			entities.InputStart:        (*Machine).repeatPrompt,
			entities.InputText:         (*Machine).expectImage,
			entities.InputImage:        (*Machine).receivePaymentProof,
			entities.InputSelection:    (*Machine).expectImage,
			entities.InputBack:         (*Machine).backToSeatOption,
			entities.InputCancel:       (*Machine).cancel,
			entities.InputAdminApprove: (*Machine).staleAdminReply,
			entities.InputAdminReject:  (*Machine).staleAdminReply,
			entities.InputTimeout:      (*Machine).expire,
		},
		StepAdminReview: {
			entities.InputStart:        (*Machine).underReview,
			entities.InputText:         (*Machine).underReview,
			entities.InputImage:        (*Machine).underReview,
			entities.InputSelection:    (*Machine).underReview,
			entities.InputBack:         (*Machine).underReview,
			entities.InputCancel:       (*Machine).underReview,
			entities.InputAdminApprove: (*Machine).approve,
			entities.InputAdminReject:  (*Machine).reject,
			entities.InputTimeout:      (*Machine).expire,
		},
		StepCollectApplicantName: {
			entities.InputStart:        (*Machine).repeatPrompt,
			entities.InputText:         (*Machine).collectApplicantName,
			entities.InputImage:        (*Machine).expectText,
			entities.InputSelection:    (*Machine).expectText,
			entities.InputBack:         (*Machine).repeatPrompt,
			entities.InputCancel:       (*Machine).cancel,
			entities.InputAdminApprove: (*Machine).staleAdminReply,
			entities.InputAdminReject:  (*Machine).staleAdminReply,
			entities.InputTimeout:      (*Machine).expire,
		},
		StepCollectPhone: {
			entities.InputStart:        (*Machine).repeatPrompt,
			entities.InputText:         (*Machine).collectPhone,
			entities.InputImage:        (*Machine).expectText,
			entities.InputSelection:    (*Machine).expectText,
			entities.InputBack:         (*Machine).backToApplicantName,
			entities.InputCancel:       (*Machine).cancel,
			entities.InputAdminApprove: (*Machine).staleAdminReply,
			entities.InputAdminReject:  (*Machine).staleAdminReply,
			entities.InputTimeout:      (*Machine).expire,
		},
		StepCollectChildrenNames: {
			entities.InputStart:        (*Machine).repeatPrompt,
			entities.InputText:         (*Machine).collectChildrenNames,
			entities.InputImage:        (*Machine).expectText,
			entities.InputSelection:    (*Machine).expectText,
			entities.InputBack:         (*Machine).backToPhone,
			entities.InputCancel:       (*Machine).cancel,
			entities.InputAdminApprove: (*Machine).staleAdminReply,
			entities.InputAdminReject:  (*Machine).staleAdminReply,
			entities.InputTimeout:      (*Machine).expire,
		},
		StepComplete:  closedStep(),
		StepTimeout:   closedStep(),
		StepCancelled: closedStep(),
		StepRejected:  closedStep(),
	}
}

func closedStep() map[entities.InputKind]handler {
	byKind := make(map[entities.InputKind]handler, len(entities.InputKinds))
	for _, kind := range entities.InputKinds {
		byKind[kind] = (*Machine).closed
	}
	byKind[entities.InputAdminApprove] = (*Machine).staleAdminReply
	byKind[entities.InputAdminReject] = (*Machine).staleAdminReply

	return byKind
}

var (
	phonePattern     = regexp.MustCompile(`^\+?\d{10,15}$`)
	phoneSeparators  = strings.NewReplacer(" ", "", "-", "", ".", "", "(", "", ")", "")
	childrenSplitter = regexp.MustCompile(`[,;\n]+`)
)

// NormalizePhone strips common separators and reports whether what is left
// looks like a phone number.
func NormalizePhone(raw string) (string, bool) {
	phone := phoneSeparators.Replace(strings.TrimSpace(raw))
	return phone, phonePattern.MatchString(phone)
}

func (m *Machine) begin(ctx context.Context, s *State, ev entities.InboundEvent) error {
	if ev.UserName != "" {
		s.UserName = ev.UserName
	}

	snapshot, err := m.catalog.Snapshot(ctx)
	if err != nil {
		return m.storeFailure(ctx, s, err)
	}

	dates := snapshot.Dates()
	if len(dates) == 0 {
		m.advance(s, StepCancelled)
		m.say(ctx, s, "There are no upcoming shows right now. Please check back later.")
		return nil
	}

	s.offeredDates = dates
	m.advance(s, StepSelectDate)
	m.prompt(ctx, s, "")

	return nil
}

func (m *Machine) selectDate(ctx context.Context, s *State, ev entities.InboundEvent) error {
	if !lo.Contains(s.offeredDates, ev.Selection) {
		return m.rejectInput(ctx, s, "Please pick one of the offered dates.")
	}

	snapshot, err := m.catalog.Snapshot(ctx)
	if err != nil {
		return m.storeFailure(ctx, s, err)
	}

	shows := snapshot.ShowsOn(ev.Selection)
	if len(shows) == 0 {
		s.offeredDates = snapshot.Dates()
		return m.rejectInput(ctx, s, "There are no shows on that date anymore.")
	}

	s.Date = ev.Selection
	s.offeredShows = shows
	m.advance(s, StepSelectTime)
	m.prompt(ctx, s, "")

	return nil
}

func (m *Machine) selectTime(ctx context.Context, s *State, ev entities.InboundEvent) error {
	showID, err := strconv.Atoi(ev.Selection)
	if err != nil || !lo.ContainsBy(s.offeredShows, func(show entities.Show) bool { return show.ShowID == showID }) {
		return m.rejectInput(ctx, s, "Please pick one of the offered times.")
	}

	snapshot, err := m.catalog.Snapshot(ctx)
	if err != nil {
		return m.storeFailure(ctx, s, err)
	}

	show, err := m.inventory.ReadShow(ctx, showID)
	if errors.Is(err, entities.ErrShowNotFound) {
		return m.rejectInput(ctx, s, "That show is no longer available.")
	}
	if err != nil {
		return m.storeFailure(ctx, s, err)
	}

	options := reservation.OptionsFitting(show, snapshot.Options)
	if len(options) == 0 {
		m.prompt(ctx, s, "That show is sold out.")
		return entities.ErrCapacityExceeded
	}

	s.Show = &show
	s.offeredOptions = options
	m.advance(s, StepSelectSeatOption)
	m.prompt(ctx, s, "")

	return nil
}

func (m *Machine) selectSeatOption(ctx context.Context, s *State, ev entities.InboundEvent) error {
	optionID, err := strconv.Atoi(ev.Selection)
	option, ok := lo.Find(s.offeredOptions, func(option entities.PriceOption) bool {
		return option.OptionID == optionID
	})
	if err != nil || !ok {
		return m.rejectInput(ctx, s, "Please pick one of the offered options.")
	}

	hold, err := m.protocol.CreateHold(ctx, s.Show.ShowID, option, s.Key)
	if errors.Is(err, entities.ErrCapacityExceeded) {
		if refreshErr := m.refreshOptions(ctx, s); refreshErr != nil {
			return m.storeFailure(ctx, s, refreshErr)
		}
		m.prompt(ctx, s, "Sorry, those seats were just taken.")
		return err
	}
	if err != nil {
		return m.storeFailure(ctx, s, err)
	}

	s.Option = &option
	s.Hold = hold
	m.advance(s, StepAwaitPaymentProof)
	m.prompt(ctx, s, "")

	return nil
}

func (m *Machine) refreshOptions(ctx context.Context, s *State) error {
	snapshot, err := m.catalog.Snapshot(ctx)
	if err != nil {
		return err
	}

	show, err := m.inventory.ReadShow(ctx, s.Show.ShowID)
	if err != nil {
		return err
	}

	s.Show = &show
	s.offeredOptions = reservation.OptionsFitting(show, snapshot.Options)

	return nil
}

func (m *Machine) receivePaymentProof(ctx context.Context, s *State, ev entities.InboundEvent) error {
	if ev.ImageRef == "" {
		return m.rejectInput(ctx, s, "Please send the payment confirmation as a photo.")
	}

	s.PaymentProof = ev.ImageRef
	m.advance(s, StepAdminReview)

	ticket := entities.AdminReviewTicket{
		TicketID:     uuid.New(),
		Session:      s.Key,
		Token:        s.Version,
		Show:         *s.Show,
		Option:       *s.Option,
		PaymentProof: s.PaymentProof,
		CreatedAt:    m.now().UTC(),
	}
	s.Ticket = &ticket

	m.notifier.NotifyAdmins(ctx, ticket)
	m.say(ctx, s, "Thank you! Your payment was sent for review.")

	log.FromContext(ctx).WithField("ticket_id", ticket.TicketID).Info("Payment proof forwarded for review")

	return nil
}

// ticketMatches is the stale-reply check: the ticket must be the one issued
// for this session at its current version.
func ticketMatches(s *State, ev entities.InboundEvent) bool {
	return s.Ticket != nil &&
		s.Ticket.TicketID.String() == ev.TicketID &&
		s.Ticket.Token == s.Version
}

func (m *Machine) approve(ctx context.Context, s *State, ev entities.InboundEvent) error {
	if !ticketMatches(s, ev) {
		return m.staleAdminReply(ctx, s, ev)
	}

	applied, err := m.protocol.ConfirmHold(ctx, s.Hold)
	if errors.Is(err, entities.ErrHoldExpired) {
		m.notifier.NotifyChat(ctx, ev.Session.ChatID, fmt.Sprintf(
			"Too late: the seats held for ticket %s were already released.", s.Ticket.TicketID,
		))
		return m.abandon(ctx, s, StepTimeout, "Your reservation expired before the payment was reviewed. Send /start to begin again.")
	}
	if err != nil {
		log.FromContext(ctx).WithError(err).Error("Could not confirm hold")
		m.notifier.NotifyChat(ctx, ev.Session.ChatID, "Could not confirm the seats right now, please try again.")
		return err
	}
	if !applied {
		log.FromContext(ctx).WithField("hold_id", s.Hold.HoldID).Warn("Hold was already settled on approval")
	}

	m.notifier.Forget(s.Ticket.TicketID.String())
	m.notifier.NotifyChat(ctx, ev.Session.ChatID, fmt.Sprintf("Approved ticket %s.", s.Ticket.TicketID))

	m.advance(s, StepCollectApplicantName)
	m.prompt(ctx, s, "Your payment was approved.")

	return nil
}

func (m *Machine) reject(ctx context.Context, s *State, ev entities.InboundEvent) error {
	if !ticketMatches(s, ev) {
		return m.staleAdminReply(ctx, s, ev)
	}

	if _, err := m.protocol.ReleaseHold(ctx, s.Hold); err != nil {
		log.FromContext(ctx).WithError(err).Error("Could not release hold")
		m.notifier.NotifyChat(ctx, ev.Session.ChatID, "Could not release the seats right now, please try again.")
		return err
	}

	m.notifier.Forget(s.Ticket.TicketID.String())
	m.notifier.NotifyChat(ctx, ev.Session.ChatID, fmt.Sprintf("Rejected ticket %s.", s.Ticket.TicketID))

	m.advance(s, StepRejected)
	m.say(ctx, s, "Your payment was not confirmed. Send /start to try again or contact the organizers.")

	return nil
}

func (m *Machine) staleAdminReply(ctx context.Context, s *State, ev entities.InboundEvent) error {
	m.notifier.NotifyChat(ctx, ev.Session.ChatID, "Too late: this reservation is no longer awaiting review.")
	return entities.ErrStaleCorrelation
}

func (m *Machine) collectApplicantName(ctx context.Context, s *State, ev entities.InboundEvent) error {
	name := strings.TrimSpace(ev.Text)
	if name == "" {
		return m.rejectInput(ctx, s, "The name cannot be empty.")
	}

	s.ApplicantName = name
	m.advance(s, StepCollectPhone)
	m.prompt(ctx, s, "")

	return nil
}

func (m *Machine) collectPhone(ctx context.Context, s *State, ev entities.InboundEvent) error {
	phone, ok := NormalizePhone(ev.Text)
	if !ok {
		return m.rejectInput(ctx, s, "That does not look like a phone number.")
	}

	s.Phone = phone
	if s.Option.RequiresChildrenNames() {
		m.advance(s, StepCollectChildrenNames)
		m.prompt(ctx, s, "")
		return nil
	}

	return m.complete(ctx, s)
}

func (m *Machine) collectChildrenNames(ctx context.Context, s *State, ev entities.InboundEvent) error {
	names := lo.FilterMap(childrenSplitter.Split(ev.Text, -1), func(name string, _ int) (string, bool) {
		name = strings.TrimSpace(name)
		return name, name != ""
	})
	if len(names) == 0 {
		return m.rejectInput(ctx, s, "Please enter at least one name.")
	}

	s.ChildrenNames = names

	return m.complete(ctx, s)
}

func (m *Machine) complete(ctx context.Context, s *State) error {
	record := m.clientRecord(s, entities.ClientRecordComplete)
	if err := m.inventory.AppendClientRecord(ctx, record); err != nil {
		return m.storeFailure(ctx, s, err)
	}

	m.advance(s, StepComplete)
	m.say(ctx, s, fmt.Sprintf("Your reservation for %s is complete. See you at the show!", s.Show.Label()))
	m.notifier.NotifyAdminsText(ctx, completionSummary(record))

	log.FromContext(ctx).WithField("record_id", record.RecordID).Info("Reservation completed")

	return nil
}

func completionSummary(record entities.ClientRecord) string {
	summary := fmt.Sprintf(
		"New reservation %s\nShow: %s %s %s\nOption: %s (%d)\nApplicant: %s\nPhone: %s",
		record.RecordID, record.ShowName, record.ShowDate, record.ShowTime,
		record.OptionName, record.Price, record.ApplicantName, record.Phone,
	)
	if len(record.ChildrenNames) > 0 {
		summary += "\nChildren: " + strings.Join(record.ChildrenNames, ", ")
	}

	return summary
}

func (m *Machine) backToDate(ctx context.Context, s *State, ev entities.InboundEvent) error {
	s.offeredShows = nil
	m.advance(s, StepSelectDate)
	m.prompt(ctx, s, "")

	return nil
}

func (m *Machine) backToTime(ctx context.Context, s *State, ev entities.InboundEvent) error {
	s.Show = nil
	s.offeredOptions = nil
	m.advance(s, StepSelectTime)
	m.prompt(ctx, s, "")

	return nil
}

func (m *Machine) backToSeatOption(ctx context.Context, s *State, ev entities.InboundEvent) error {
	if _, err := m.protocol.ReleaseHold(ctx, s.Hold); err != nil {
		return m.storeFailure(ctx, s, err)
	}
	s.Hold = nil
	s.Option = nil

	if err := m.refreshOptions(ctx, s); err != nil {
		log.FromContext(ctx).WithError(err).Warn("Could not refresh options after release")
	}

	m.advance(s, StepSelectSeatOption)
	m.prompt(ctx, s, "")

	return nil
}

func (m *Machine) backToApplicantName(ctx context.Context, s *State, ev entities.InboundEvent) error {
	m.advance(s, StepCollectApplicantName)
	m.prompt(ctx, s, "")

	return nil
}

func (m *Machine) backToPhone(ctx context.Context, s *State, ev entities.InboundEvent) error {
	m.advance(s, StepCollectPhone)
	m.prompt(ctx, s, "")

	return nil
}

func (m *Machine) cancel(ctx context.Context, s *State, ev entities.InboundEvent) error {
	return m.abandon(ctx, s, StepCancelled, "Your reservation was cancelled. Send /start to begin again.")
}

func (m *Machine) expire(ctx context.Context, s *State, ev entities.InboundEvent) error {
	return m.abandon(ctx, s, StepTimeout, "Your session expired due to inactivity. Send /start to begin again.")
}

func (m *Machine) repeatPrompt(ctx context.Context, s *State, ev entities.InboundEvent) error {
	m.prompt(ctx, s, "")
	return nil
}

func (m *Machine) expectSelection(ctx context.Context, s *State, ev entities.InboundEvent) error {
	return m.rejectInput(ctx, s, "Please use the buttons below.")
}

func (m *Machine) expectImage(ctx context.Context, s *State, ev entities.InboundEvent) error {
	return m.rejectInput(ctx, s, "Please send the payment confirmation as a photo.")
}

func (m *Machine) expectText(ctx context.Context, s *State, ev entities.InboundEvent) error {
	return m.rejectInput(ctx, s, "Please answer with a text message.")
}

func (m *Machine) underReview(ctx context.Context, s *State, ev entities.InboundEvent) error {
	m.prompt(ctx, s, "")
	return nil
}

var notStartedNotice = notification.Notice{Text: "Send /start to begin a reservation."}

func (m *Machine) notStarted(ctx context.Context, s *State, ev entities.InboundEvent) error {
	m.notifier.NotifyUser(ctx, s.Key, notStartedNotice)
	return entities.ErrSessionClosed
}

func (m *Machine) shutdown(ctx context.Context, s *State) error {
	if s.Step.Terminal() || s.Step == StepNew {
		return nil
	}
	return m.abandon(ctx, s, StepCancelled, "The service is restarting and your reservation was cancelled. Send /start to begin again.")
}

func (m *Machine) closed(ctx context.Context, s *State, ev entities.InboundEvent) error {
	return entities.ErrSessionClosed
}
