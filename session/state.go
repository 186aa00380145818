package session

import (
	"time"

	"reservations/entities"
)

type Step string

const (
	StepNew                  Step = "NEW"
	StepSelectDate           Step = "SELECT_DATE"
	StepSelectTime           Step = "SELECT_TIME"
	StepSelectSeatOption     Step = "SELECT_SEAT_OPTION"
	StepAwaitPaymentProof    Step = "AWAIT_PAYMENT_PROOF"
	StepAdminReview          Step = "ADMIN_REVIEW"
	StepCollectApplicantName Step = "COLLECT_APPLICANT_NAME"
	StepCollectPhone         Step = "COLLECT_PHONE"
	StepCollectChildrenNames Step = "COLLECT_CHILDREN_NAMES"
	StepComplete             Step = "COMPLETE"
	StepTimeout              Step = "TIMEOUT"
	StepCancelled            Step = "CANCELLED"
	StepRejected             Step = "REJECTED"
)

var Steps = []Step{
	StepNew,
	StepSelectDate,
	StepSelectTime,
	StepSelectSeatOption,
	StepAwaitPaymentProof,
	StepAdminReview,
	StepCollectApplicantName,
	StepCollectPhone,
	StepCollectChildrenNames,
	StepComplete,
	StepTimeout,
	StepCancelled,
	StepRejected,
}

func (s Step) Terminal() bool {
	switch s {
	case StepComplete, StepTimeout, StepCancelled, StepRejected:
		return true
	default:
		return false
	}
}

// State is owned by exactly one session goroutine and never shared.
type State struct {
	Key      entities.SessionKey
	UserName string
	Step     Step

	Date   string
	Show   *entities.Show
	Option *entities.PriceOption

	ApplicantName string
	Phone         string
	ChildrenNames []string
	PaymentProof  string

	Hold   *entities.Hold
	Ticket *entities.AdminReviewTicket

	// Version changes on every accepted transition. Admin tickets carry the
	// version they were issued at.
	Version        uint64
	LastTransition time.Time

	offeredDates   []string
	offeredShows   []entities.Show
	offeredOptions []entities.PriceOption
}

func NewState(key entities.SessionKey, userName string) *State {
	return &State{
		Key:      key,
		UserName: userName,
		Step:     StepNew,
	}
}

// Summary is a read-only view of a session for ops listings.
type Summary struct {
	Key            entities.SessionKey `json:"session"`
	UserName       string              `json:"user_name,omitempty"`
	Step           Step                `json:"step"`
	ShowID         int                 `json:"show_id,omitempty"`
	OptionID       int                 `json:"option_id,omitempty"`
	HoldActive     bool                `json:"hold_active"`
	Version        uint64              `json:"version"`
	LastTransition time.Time           `json:"last_transition"`
}

func (s *State) Summary() Summary {
	summary := Summary{
		Key:            s.Key,
		UserName:       s.UserName,
		Step:           s.Step,
		HoldActive:     s.Hold.Active(),
		Version:        s.Version,
		LastTransition: s.LastTransition,
	}
	if s.Show != nil {
		summary.ShowID = s.Show.ShowID
	}
	if s.Option != nil {
		summary.OptionID = s.Option.OptionID
	}

	return summary
}
