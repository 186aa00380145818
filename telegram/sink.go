package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"reservations/entities"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sink delivers outbound messages through the bot API.
type Sink struct {
	bot BotAPI
}

func NewSink(bot BotAPI) Sink {
	if bot == nil {
		panic("bot is nil")
	}

	return Sink{bot: bot}
}

func (s Sink) Send(ctx context.Context, out entities.OutboundMessage) error {
	_, err := s.bot.Send(Chattable(out))
	if err == nil {
		return nil
	}

	err = fmt.Errorf("could not send message to chat %d: %w", out.ChatID, err)

	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && (apiErr.Code == http.StatusBadRequest || apiErr.Code == http.StatusForbidden) {
		// the chat is gone or the bot was blocked
		return entities.Permanent(err)
	}

	return err
}

// Chattable maps an outbound message to a bot API request. Messages with an
// image are sent as a photo captioned with the text.
func Chattable(out entities.OutboundMessage) tgbotapi.Chattable {
	markup := keyboard(out.Buttons)

	if out.ImageRef != "" {
		photo := tgbotapi.NewPhoto(out.ChatID, tgbotapi.FileID(out.ImageRef))
		photo.Caption = out.Text
		if markup != nil {
			photo.ReplyMarkup = *markup
		}
		return photo
	}

	msg := tgbotapi.NewMessage(out.ChatID, out.Text)
	if markup != nil {
		msg.ReplyMarkup = *markup
	}
	return msg
}

func keyboard(buttons [][]entities.Button) *tgbotapi.InlineKeyboardMarkup {
	if len(buttons) == 0 {
		return nil
	}

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, row := range buttons {
		var keys []tgbotapi.InlineKeyboardButton
		for _, b := range row {
			keys = append(keys, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Data))
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(keys...))
	}

	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}
