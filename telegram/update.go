package telegram

import (
	"strings"

	"reservations/entities"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/samber/lo"
)

// EventFromUpdate converts a bot update into an inbound event. Updates the
// conversation has no use for, and admin buttons pressed outside admin
// chats, are dropped.
func EventFromUpdate(update tgbotapi.Update, adminChats []int64) (entities.InboundEvent, bool) {
	switch {
	case update.Message != nil:
		return eventFromMessage(update.Message)
	case update.CallbackQuery != nil:
		return eventFromCallback(update.CallbackQuery, adminChats)
	default:
		return entities.InboundEvent{}, false
	}
}

func eventFromMessage(msg *tgbotapi.Message) (entities.InboundEvent, bool) {
	if msg.From == nil || msg.Chat == nil {
		return entities.InboundEvent{}, false
	}

	ev := entities.InboundEvent{
		Header:   entities.NewEventHeader(),
		Session:  entities.SessionKey{UserID: msg.From.ID, ChatID: msg.Chat.ID},
		UserName: displayName(msg.From),
	}

	switch {
	case msg.IsCommand():
		switch msg.Command() {
		case "start", "choice":
			ev.Kind = entities.InputStart
		case "cancel":
			ev.Kind = entities.InputCancel
		default:
			return entities.InboundEvent{}, false
		}
	case len(msg.Photo) > 0:
		ev.Kind = entities.InputImage
		ev.ImageRef = largestPhoto(msg.Photo).FileID
	case msg.Text != "":
		ev.Kind = entities.InputText
		ev.Text = msg.Text
	default:
		return entities.InboundEvent{}, false
	}

	return ev, true
}

func eventFromCallback(query *tgbotapi.CallbackQuery, adminChats []int64) (entities.InboundEvent, bool) {
	if query.From == nil || query.Message == nil || query.Message.Chat == nil {
		return entities.InboundEvent{}, false
	}

	kind, value := entities.ParseCallback(query.Data)

	ev := entities.InboundEvent{
		Header:   entities.NewEventHeader(),
		Session:  entities.SessionKey{UserID: query.From.ID, ChatID: query.Message.Chat.ID},
		Kind:     kind,
		UserName: displayName(query.From),
	}

	if kind.IsAdmin() {
		if !lo.Contains(adminChats, query.Message.Chat.ID) {
			return entities.InboundEvent{}, false
		}
		ev.TicketID = value
		ev.AdminID = query.From.ID
		return ev, true
	}

	ev.Selection = value
	return ev, true
}

func largestPhoto(sizes []tgbotapi.PhotoSize) tgbotapi.PhotoSize {
	return lo.MaxBy(sizes, func(a, b tgbotapi.PhotoSize) bool {
		return a.Width*a.Height > b.Width*b.Height
	})
}

func displayName(user *tgbotapi.User) string {
	if user.UserName != "" {
		return user.UserName
	}
	return strings.TrimSpace(user.FirstName + " " + user.LastName)
}
