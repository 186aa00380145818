package telegram

import (
	"context"

	"reservations/entities"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

type InboundPublisher interface {
	Publish(ctx context.Context, ev entities.InboundEvent) error
}

type BotAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Poller long-polls the bot API and puts every relevant update on the
// inbound topic.
type Poller struct {
	bot        BotAPI
	publisher  InboundPublisher
	adminChats []int64
}

func NewPoller(bot BotAPI, publisher InboundPublisher, adminChats []int64) *Poller {
	if bot == nil {
		panic("bot is nil")
	}
	if publisher == nil {
		panic("publisher is nil")
	}

	return &Poller{
		bot:        bot,
		publisher:  publisher,
		adminChats: adminChats,
	}
}

func (p *Poller) Run(ctx context.Context) error {
	if _, err := p.bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		log.FromContext(ctx).WithError(err).Warn("Could not remove webhook, updates may not arrive")
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := p.bot.GetUpdatesChan(u)
	defer p.bot.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			p.handle(ctx, update)
		}
	}
}

func (p *Poller) handle(ctx context.Context, update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		if _, err := p.bot.Request(tgbotapi.NewCallback(update.CallbackQuery.ID, "")); err != nil {
			log.FromContext(ctx).WithError(err).Warn("Could not answer callback query")
		}
	}

	ev, ok := EventFromUpdate(update, p.adminChats)
	if !ok {
		return
	}

	logger := log.FromContext(ctx).WithFields(logrus.Fields{
		"update_id": update.UpdateID,
		"session":   ev.Session.String(),
		"kind":      ev.Kind,
	})

	if err := p.publisher.Publish(ctx, ev); err != nil {
		logger.WithError(err).Error("Could not publish inbound event")
		return
	}

	logger.Debug("Inbound event published")
}
