package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"linkhub/internal/linking/bridge"
	"linkhub/internal/linking/metrics"
	"linkhub/internal/linking/models"
	"linkhub/internal/linking/registry"
	"linkhub/internal/linking/service"
	"linkhub/internal/linking/store/credential"
	"linkhub/internal/linking/supervisor"
	"linkhub/internal/linking/tracer"
	"linkhub/internal/linking/transport/wire"
	"linkhub/internal/linking/workers/outbound"
	"linkhub/internal/linking/workers/reaper"
	"linkhub/internal/platform/config"
	"linkhub/internal/platform/database"
	"linkhub/internal/platform/health"
	"linkhub/internal/platform/kafka/consumer"
	"linkhub/internal/platform/kafka/producer"
	"linkhub/internal/platform/logger"
	platformredis "linkhub/internal/platform/redis"
	"linkhub/internal/token"
	httptransport "linkhub/internal/transport/http"
	"linkhub/pkg/secrets"
)

// main wires dependencies and keeps the process lifecycle small. Session
// semantics live in internal/linking.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	slog.SetDefault(log)

	log.Info("initializing linkhub",
		"addr", cfg.Addr,
		"gateway_url", cfg.GatewayURL,
	)

	if err := run(cfg, log); err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sealer, err := buildSealer(cfg, log)
	if err != nil {
		return err
	}

	healthHandler := health.New(envOr("LINKHUB_ENV", "development"))

	store, cleanupStores, err := buildCredentialStore(cfg, sealer, log, healthHandler)
	if err != nil {
		return err
	}
	defer cleanupStores()

	m := metrics.New()

	var publisher bridge.Publisher
	var kafkaProducer *producer.Producer
	if cfg.Kafka.Brokers != "" {
		kafkaProducer, err = producer.New(producer.Config{
			Brokers:         cfg.Kafka.Brokers,
			DeliveryTimeout: 10 * time.Second,
		}, log)
		if err != nil {
			return err
		}
		defer kafkaProducer.Close()
		publisher = kafkaProducer
		healthHandler.RegisterCheck("kafka", func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if !kafkaProducer.Healthy(pingCtx) {
				return errors.New("kafka broker unreachable")
			}
			return nil
		})
	} else {
		log.Warn("kafka brokers not configured, inbound messages will be discarded")
		publisher = producer.NewNoopProducer(log)
	}

	msgBridge := bridge.New(publisher, cfg.Kafka.InboundTopic,
		bridge.WithLogger(log),
		bridge.WithMetrics(m),
	)

	dialer := wire.NewDialer(cfg.GatewayURL, cfg.Linking.QRRotationInterval, cfg.Linking.PairingWindow, log)

	policy := models.ReconnectPolicy{
		Initial:     cfg.Linking.ReconnectInitial,
		Max:         cfg.Linking.ReconnectMax,
		Multiplier:  2,
		GiveUpAfter: cfg.Linking.ReconnectGiveUp,
	}
	reg := registry.New(dialer, store, msgBridge,
		registry.WithLogger(log),
		registry.WithMetrics(m),
		registry.WithSupervisorOptions(supervisor.WithReconnectPolicy(policy)),
	)

	svc := service.New(reg,
		service.WithLogger(log),
		service.WithMetrics(m),
		service.WithTracer(tracer.NewOTel()),
	)

	validator := token.New(cfg.JWTSigningKey, time.Hour)
	handler := httptransport.NewHandler(svc, log)
	router := httptransport.NewRouter(handler, httptransport.RouterConfig{
		TokenValidator: validator,
		AdminToken:     cfg.AdminToken,
		Health:         healthHandler,
		Logger:         log,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sessionReaper := reaper.New(reg,
		reaper.WithLogger(log),
		reaper.WithMetrics(m),
		reaper.WithInterval(cfg.Linking.ReaperInterval),
		reaper.WithIdleTTL(cfg.Linking.SupervisorIdleTTL),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return ignoreCancel(sessionReaper.Start(ctx))
	})

	if cfg.Kafka.Brokers != "" {
		outboundConsumer, err := consumer.New(consumer.Config{
			Brokers: cfg.Kafka.Brokers,
			GroupID: cfg.Kafka.ConsumerGroup,
			Topics:  []string{cfg.Kafka.OutboundTopic},
		}, outbound.New(svc, log), log)
		if err != nil {
			return err
		}
		g.Go(func() error {
			defer outboundConsumer.Close()
			log.Info("starting outbound consumer",
				"topic", cfg.Kafka.OutboundTopic,
				"group", cfg.Kafka.ConsumerGroup,
			)
			return ignoreCancel(outboundConsumer.Run(ctx))
		})
	}

	err = g.Wait()

	// Supervisors are torn down after the ingress paths have stopped.
	closeCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if closeErr := reg.Close(closeCtx); closeErr != nil {
		log.Error("registry close", "error", closeErr)
	}
	return err
}

// buildSealer returns the credential sealer. Without a configured key a
// random one is generated: the invariant that credentials only ever hit
// storage sealed holds, at the cost of losing resumption across restarts.
func buildSealer(cfg config.Server, log *slog.Logger) (*secrets.Sealer, error) {
	key := cfg.SealingKey
	if key == "" {
		generated, err := secrets.GenerateKey()
		if err != nil {
			return nil, err
		}
		key = generated
		log.Warn("LINKHUB_SEALING_KEY not set, using an ephemeral sealing key; sessions will not resume across restarts")
	}
	return secrets.NewSealer(key)
}

// buildCredentialStore picks the backend by configuration: postgres, then
// redis, then memory. The returned store always seals before persisting.
func buildCredentialStore(cfg config.Server, sealer *secrets.Sealer, log *slog.Logger, healthHandler *health.Handler) (credential.Store, func(), error) {
	cleanup := func() {}

	pool, err := database.New(cfg.Database)
	if err != nil {
		return nil, cleanup, err
	}
	if pool != nil {
		healthHandler.RegisterCheck("postgres", func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			return pool.Healthy(pingCtx)
		})
		log.Info("credential store backend: postgres")
		return credential.NewSealed(credential.NewPostgres(pool.DB()), sealer, log),
			func() { _ = pool.Close() }, nil
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return nil, cleanup, err
	}
	if redisClient != nil {
		healthHandler.RegisterCheck("redis", func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			return redisClient.Healthy(pingCtx)
		})
		log.Info("credential store backend: redis")
		return credential.NewSealed(credential.NewRedis(redisClient.Client), sealer, log),
			func() { _ = redisClient.Close() }, nil
	}

	log.Warn("no credential store backend configured, using in-memory store")
	return credential.NewSealed(credential.NewMemory(), sealer, log), cleanup, nil
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
