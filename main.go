package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"reservations/api"
	"reservations/config"
	"reservations/db"
	"reservations/message"
	"reservations/observability"
	"reservations/service"
	"reservations/telegram"

	"github.com/ThreeDotsLabs/go-event-driven/common/clients"
	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	log.Init(logrus.InfoLevel)

	if err := run(); err != nil {
		logrus.WithError(err).Fatal("Service stopped")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tp, err := observability.ConfigureTraceProvider(cfg.JaegerURL)
	if err != nil {
		return fmt.Errorf("could not configure tracing: %w", err)
	}
	defer func() {
		_ = tp.Shutdown(context.Background())
	}()

	tracedClient := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}

	apiClients, err := clients.NewClientsWithHttpClient(
		cfg.GatewayAddr,
		func(ctx context.Context, req *http.Request) error {
			req.Header.Set("Correlation-ID", log.CorrelationIDFromContext(ctx))
			return nil
		},
		tracedClient,
	)
	if err != nil {
		return fmt.Errorf("could not create gateway clients: %w", err)
	}

	watermillLogger := log.NewWatermill(log.FromContext(ctx))

	redisClient := message.NewRedisClient(cfg.RedisAddr)
	defer redisClient.Close()

	deps := service.Deps{
		Config:        cfg,
		Publisher:     message.NewRedisPublisher(redisClient, watermillLogger),
		NewSubscriber: message.NewRedisSubscriberFactory(redisClient, watermillLogger),
		Spreadsheets:  api.NewSpreadsheetsAPIClient(apiClients),
	}

	if cfg.Inventory == config.InventoryPostgres {
		conn, err := db.NewDBConn(cfg.PostgresURL)
		if err != nil {
			return err
		}
		defer conn.Close()

		conn.MigrateSchema()
		deps.DB = &conn
	}

	if cfg.TelegramBot == "" {
		logrus.Warn("TELEGRAM_TOKEN is empty, outbound messages are only logged and input comes from the webhook")
		deps.Transport = message.LogTransport{}
	} else {
		bot, err := tgbotapi.NewBotAPIWithClient(cfg.TelegramBot, tgbotapi.APIEndpoint, tracedClient)
		if err != nil {
			return fmt.Errorf("could not connect the telegram bot: %w", err)
		}
		bot.Debug = cfg.TelegramDebug
		logrus.WithField("bot", bot.Self.UserName).Info("Telegram bot authorized")

		deps.Transport = telegram.NewSink(bot)
		deps.InboundSources = append(deps.InboundSources, telegram.NewPoller(
			bot,
			message.NewInboundPublisher(deps.Publisher),
			cfg.AdminChatIDs,
		))
	}

	svc, err := service.New(deps)
	if err != nil {
		return err
	}

	return svc.Run(ctx)
}
