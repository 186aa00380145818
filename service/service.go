package service

import (
	"context"
	"errors"
	"fmt"
	stdHTTP "net/http"
	"time"

	"reservations/config"
	"reservations/db"
	"reservations/entities"
	reservationsHttp "reservations/http"
	"reservations/message"
	"reservations/message/command"
	"reservations/message/event"
	"reservations/message/outbox"
	"reservations/notification"
	"reservations/reservation"
	"reservations/session"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	watermillMessage "github.com/ThreeDotsLabs/watermill/message"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func init() {
	log.Init(logrus.InfoLevel)
}

type inventory interface {
	reservation.Store
	reservation.CatalogSource
	command.CatalogWriter
	session.Inventory
	ListClientRecords(ctx context.Context) ([]entities.ClientRecord, error)
	ListActiveHolds(ctx context.Context) ([]entities.Hold, error)
}

// InboundSource feeds user input into the service, e.g. a chat poller.
type InboundSource interface {
	Run(ctx context.Context) error
}

type Deps struct {
	Config config.Config

	Publisher     watermillMessage.Publisher
	NewSubscriber message.SubscriberFactory
	// DB selects the Postgres inventory with the outbox. When nil the
	// inventory lives in memory.
	DB *db.DB

	Spreadsheets event.SpreadsheetsAPI
	Transport    message.Transport
	// InboundSources are optional; the HTTP webhook is always available.
	InboundSources []InboundSource
}

type Service struct {
	watermillRouter *watermillMessage.Router
	echoRouter      *echo.Echo
	manager         *session.Manager
	protocol        *reservation.Protocol
	inboundSources  []InboundSource
	httpAddr        string
	sweepInterval   time.Duration
}

func New(deps Deps) (Service, error) {
	watermillLogger := log.NewWatermill(log.FromContext(context.Background()))

	eventBus := event.NewBus(deps.Publisher)
	commandBus := command.NewCommandBus(deps.Publisher)

	var (
		store        inventory
		pgSubscriber watermillMessage.Subscriber
	)
	if deps.DB != nil {
		store = db.NewInventoryRepository(deps.DB)

		var err error
		pgSubscriber, err = outbox.NewPostgresSubscriber(deps.DB.Conn, watermillLogger)
		if err != nil {
			return Service{}, err
		}
	} else {
		store = db.NewMemoryInventory().WithEventBus(eventBus)
	}

	catalog := reservation.NewCatalog(store, deps.Config.CatalogMaxAge)
	protocol := reservation.NewProtocol(store).WithHoldLease(deps.Config.HoldLease())

	notifier := notification.NewRouter(
		message.NewOutboundPublisher(deps.Publisher),
		deps.Config.AdminChatIDs,
	).WithEventBus(eventBus)

	machine := session.NewMachine(catalog, protocol, store, notifier)
	manager := session.NewManager(machine, notifier, notifier, session.ManagerConfig{
		InactivityTimeout:    deps.Config.InactivityTimeout,
		TimeoutRetryInterval: deps.Config.TimeoutRetryInterval,
	})

	eventHandler := event.NewHandler(deps.Spreadsheets, event.SheetNames{
		Clients:        deps.Config.ClientsSheet,
		SeatLedger:     deps.Config.SeatLedgerSheet,
		PaymentReviews: deps.Config.PaymentReviewsSheet,
	})
	commandHandler := command.NewHandler(catalog, store)

	watermillRouter, err := message.NewWatermillRouter(message.RouterDeps{
		Publisher:          deps.Publisher,
		NewSubscriber:      deps.NewSubscriber,
		PostgresSubscriber: pgSubscriber,
		Dispatcher:         manager,
		Transport:          deps.Transport,
		EventHandler:       eventHandler,
		CommandHandler:     commandHandler,
		OutboundPerSecond:  deps.Config.OutboundPerSecond,
		Logger:             watermillLogger,
	})
	if err != nil {
		return Service{}, fmt.Errorf("could not create watermill router: %w", err)
	}

	echoRouter := reservationsHttp.NewHttpRouter(reservationsHttp.NewHandler(
		commandBus,
		message.NewInboundPublisher(deps.Publisher),
		store,
		manager,
		deps.Spreadsheets,
		deps.Config.ClientsSheet,
	))

	httpAddr := deps.Config.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	sweepInterval := deps.Config.HoldSweepInterval
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}

	return Service{
		watermillRouter: watermillRouter,
		echoRouter:      echoRouter,
		manager:         manager,
		protocol:        protocol,
		inboundSources:  deps.InboundSources,
		httpAddr:        httpAddr,
		sweepInterval:   sweepInterval,
	}, nil
}

func (s Service) Run(
	ctx context.Context,
) error {
	errgrp, ctx := errgroup.WithContext(ctx)

	errgrp.Go(func() error {
		return s.watermillRouter.Run(ctx)
	})

	errgrp.Go(func() error {
		// we don't want to start HTTP server before Watermill router (so service won't be healthy before it's ready)
		<-s.watermillRouter.Running()

		err := s.echoRouter.Start(s.httpAddr)
		if err != nil && !errors.Is(err, stdHTTP.ErrServerClosed) {
			return err
		}

		return nil
	})

	errgrp.Go(func() error {
		// holds of sessions lost in a crash are released at startup and
		// then periodically
		return s.protocol.SweepExpiredHolds(ctx, s.sweepInterval)
	})

	for _, source := range s.inboundSources {
		source := source
		errgrp.Go(func() error {
			<-s.watermillRouter.Running()
			return source.Run(ctx)
		})
	}

	errgrp.Go(func() error {
		<-ctx.Done()

		// open sessions release their holds
		s.manager.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return s.echoRouter.Shutdown(shutdownCtx)
	})

	return errgrp.Wait()
}
