package notification

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"reservations/entities"
	"reservations/observability"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/sirupsen/logrus"
)

type Sink interface {
	Send(ctx context.Context, msg entities.OutboundMessage) error
}

type EventPublisher interface {
	Publish(ctx context.Context, event any) error
}

type Choice struct {
	Label string
	Value string
}

// Notice is what the conversation wants to tell a user. Back and Cancel add
// the matching control buttons below the choices.
type Notice struct {
	Text    string
	Choices []Choice
	Back    bool
	Cancel  bool
}

// Router turns notices into outbound messages and remembers which admin
// review ticket each approve/reject button belongs to. Delivery errors are
// logged and never returned.
type Router struct {
	sink       Sink
	adminChats []int64
	eventBus   EventPublisher

	mu      sync.Mutex
	tickets map[string]entities.AdminReviewTicket
}

func NewRouter(sink Sink, adminChats []int64) *Router {
	if sink == nil {
		panic("sink is nil")
	}

	return &Router{
		sink:       sink,
		adminChats: adminChats,
		tickets:    make(map[string]entities.AdminReviewTicket),
	}
}

func (r *Router) WithEventBus(bus EventPublisher) *Router {
	r.eventBus = bus
	return r
}

func (r *Router) NotifyUser(ctx context.Context, session entities.SessionKey, notice Notice) {
	r.send(ctx, entities.OutboundMessage{
		Header:  entities.NewEventHeader(),
		ChatID:  session.ChatID,
		Text:    notice.Text,
		Buttons: buttons(notice),
	})
}

// NotifyChat sends plain text to a single chat, e.g. the admin who pressed a
// button that was already handled.
func (r *Router) NotifyChat(ctx context.Context, chatID int64, text string) {
	r.send(ctx, entities.OutboundMessage{
		Header: entities.NewEventHeader(),
		ChatID: chatID,
		Text:   text,
	})
}

// NotifyAdmins registers the ticket for correlation and forwards the
// payment proof with approve/reject buttons to every admin chat.
func (r *Router) NotifyAdmins(ctx context.Context, ticket entities.AdminReviewTicket) {
	ticketID := ticket.TicketID.String()

	r.mu.Lock()
	r.tickets[ticketID] = ticket
	r.mu.Unlock()

	text := fmt.Sprintf(
		"Payment proof for %s\nOption: %s (%d)\nSeats: %d adult, %d children\nTicket: %s",
		ticket.Show.Label(),
		ticket.Option.Name,
		ticket.Option.Price,
		ticket.Option.Seats.Adult,
		ticket.Option.Seats.Children,
		ticketID,
	)

	for _, chatID := range r.adminChats {
		r.send(ctx, entities.OutboundMessage{
			Header:   entities.NewEventHeaderWithIdempotencyKey(fmt.Sprintf("%s-%d", ticketID, chatID)),
			ChatID:   chatID,
			Text:     text,
			ImageRef: ticket.PaymentProof,
			Buttons: [][]entities.Button{{
				{Label: "Approve", Data: entities.ApproveCallback(ticketID)},
				{Label: "Reject", Data: entities.RejectCallback(ticketID)},
			}},
		})
	}

	if r.eventBus != nil {
		err := r.eventBus.Publish(ctx, entities.AdminReviewRequested_v1{
			Header: entities.NewEventHeaderWithIdempotencyKey(ticketID),
			Ticket: ticket,
		})
		if err != nil {
			log.FromContext(ctx).WithError(err).Warn("could not publish admin review request")
		}
	}
}

func (r *Router) NotifyAdminsText(ctx context.Context, text string) {
	for _, chatID := range r.adminChats {
		r.NotifyChat(ctx, chatID, text)
	}
}

func (r *Router) CorrelateAdminReply(reply entities.AdminReply) (entities.AdminReviewTicket, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ticket, ok := r.tickets[reply.TicketID]
	return ticket, ok
}

func (r *Router) Forget(ticketID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.tickets, ticketID)
}

func (r *Router) send(ctx context.Context, msg entities.OutboundMessage) {
	err := r.sink.Send(ctx, msg)
	observability.OutboundMessages.WithLabelValues(observability.Outcome(err)).Inc()
	if err != nil {
		log.FromContext(ctx).WithFields(logrus.Fields{
			"chat_id": msg.ChatID,
			"text":    firstLine(msg.Text),
		}).WithError(fmt.Errorf("%w: %w", entities.ErrNotificationDelivery, err)).Error("Could not deliver message")
	}
}

func buttons(notice Notice) [][]entities.Button {
	var rows [][]entities.Button
	for _, choice := range notice.Choices {
		rows = append(rows, []entities.Button{{Label: choice.Label, Data: choice.Value}})
	}

	var controls []entities.Button
	if notice.Back {
		controls = append(controls, entities.Button{Label: "Back", Data: entities.CallbackBack})
	}
	if notice.Cancel {
		controls = append(controls, entities.Button{Label: "Cancel", Data: entities.CallbackCancel})
	}
	if len(controls) > 0 {
		rows = append(rows, controls)
	}

	return rows
}

func firstLine(text string) string {
	line, _, _ := strings.Cut(text, "\n")
	return line
}
