package main

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/taskiranumut/crystal-ball/internal/countdown"
	"github.com/taskiranumut/crystal-ball/internal/gateway"
	"github.com/taskiranumut/crystal-ball/internal/ledger"
	"github.com/taskiranumut/crystal-ball/internal/outbox"
	"github.com/taskiranumut/crystal-ball/internal/prediction"
	"github.com/taskiranumut/crystal-ball/internal/refresh"
	"github.com/taskiranumut/crystal-ball/internal/vote"
)

type Services struct {
	Predictions *prediction.App
	Ledger      *ledger.Ledger
	Manager     *gateway.ConnectionManager
	API         *gateway.APIHandler
	OutboxRelay *outbox.Listener
	Consumer    *gateway.EventConsumer

	publisher interface{ Close() }
}

// setupServices wires the dependency chain: repositories on the database
// handles, apps on the repositories, and the gateway on the apps.
func setupServices(ctx context.Context, cfg *Config, pool *pgxpool.Pool, db *sql.DB, dsn string) (*Services, error) {
	clock := clockwork.NewRealClock()

	repo := prediction.NewRepository(pool)
	cache := prediction.NewCache(ctx, cfg.RedisURL)
	app := prediction.NewApp(repo, cache, clock)

	ledgerStore := ledger.New(
		ledger.NewCookieBackend(),
		ledger.NewRedisBackend(ctx, cfg.RedisURL),
	)

	// Each session gets its own countdown engine and vote coordinator; the
	// session itself is the render sink for all of them.
	factory := func(sink gateway.ViewSink) *refresh.Orchestrator {
		engine := countdown.NewEngine(clock, sink)
		coordinator := vote.NewCoordinator(app, ledgerStore, sink)
		return refresh.New(app, engine, coordinator, sink)
	}

	manager := gateway.NewConnectionManager(gateway.DefaultConnectionConfig(), factory)
	api := gateway.NewAPIHandler(app, ledgerStore, manager)

	services := &Services{
		Predictions: app,
		Ledger:      ledgerStore,
		Manager:     manager,
		API:         api,
	}

	// The event bus is optional in development: without NATS the relay logs
	// events instead of publishing, and cross-session fan-out is off.
	jsCfg := outbox.DefaultJetStreamConfig()
	jsCfg.URL = cfg.NATSURL

	var publisher outbox.Publisher
	jsPublisher, err := outbox.NewJetStreamPublisher(jsCfg)
	if err != nil {
		log.Warn().Err(err).Msg("JetStream unavailable, falling back to log publisher")
		publisher = outbox.NewLogPublisher()
	} else {
		publisher = jsPublisher
		services.publisher = jsPublisher

		consumerCfg := gateway.DefaultConsumerConfig()
		consumerCfg.URL = cfg.NATSURL
		consumer, err := gateway.NewEventConsumer(manager, consumerCfg)
		if err != nil {
			jsPublisher.Close()
			return nil, err
		}
		services.Consumer = consumer
	}

	listenerCfg := outbox.DefaultListenerConfig()
	listenerCfg.DatabaseURL = dsn
	relay, err := outbox.NewListener(outbox.NewRepository(db), publisher, listenerCfg)
	if err != nil {
		return nil, err
	}
	services.OutboxRelay = relay

	return services, nil
}

// Start launches the background workers. They stop when ctx is done.
func (s *Services) Start(ctx context.Context) {
	go s.Manager.Start(ctx)

	go func() {
		if err := s.OutboxRelay.Start(ctx); err != nil {
			log.Error().Err(err).Msg("outbox relay stopped")
		}
	}()

	if s.Consumer != nil {
		go func() {
			if err := s.Consumer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("event consumer stopped")
			}
		}()
	}
}

// Close releases bus connections.
func (s *Services) Close() {
	if s.Consumer != nil {
		s.Consumer.Stop()
	}
	if s.OutboxRelay != nil {
		s.OutboxRelay.Stop()
	}
	if s.publisher != nil {
		s.publisher.Close()
	}
}
