package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coursehub/users-service/internal/auth"
	"github.com/coursehub/users-service/internal/config"
	"github.com/coursehub/users-service/internal/httpapi"
	"github.com/coursehub/users-service/internal/messaging"
	"github.com/coursehub/users-service/internal/rabbitmq"
	"github.com/coursehub/users-service/internal/store"
	"github.com/coursehub/users-service/internal/users"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	// Persistence
	pool, err := store.Connect(ctx, cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := store.EnsureSchema(ctx, pool); err != nil {
		return err
	}

	userRepo := store.NewUserRepo(pool)
	cartRepo := store.NewCartRepo(pool)
	ownedRepo := store.NewOwnedRepo(pool)

	// Message bus: one connection per process, channels per component.
	conn := rabbitmq.NewConnectionManager(cfg.AMQP.URL, rabbitmq.WithLogger(logger))
	if err := conn.Connect(ctx); err != nil {
		return err
	}
	defer conn.Close()

	channels, err := rabbitmq.NewChannelPool(conn)
	if err != nil {
		return err
	}
	defer channels.Close()

	topology := rabbitmq.NewTopologyManager(channels)
	if err := topology.DeclareQueues(ctx,
		rabbitmq.Transient(users.UserDetailsQueue),
		rabbitmq.Transient(users.UserInfoQueue),
		rabbitmq.Durable(users.PurchaseQueue),
	); err != nil {
		return err
	}

	publisher := rabbitmq.NewPublisher(channels)
	transport := rabbitmq.NewTransport(channels, publisher, rabbitmq.WithTransportLogger(logger))
	consumer := rabbitmq.NewConsumer(channels, rabbitmq.WithConsumerLogger(logger))

	courseClient := messaging.NewRPCClient(transport, transport, messaging.WithRPCLogger(logger))

	// Domain service
	tokens := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	service := users.NewService(userRepo, cartRepo, ownedRepo, tokens, auth.Hasher{}, courseClient,
		users.WithServiceLogger(logger),
		users.WithRPCTimeout(cfg.RPC.Timeout),
	)

	// Inbound request handlers
	detailsResponder := messaging.NewResponder(transport, service.UserDetails, messaging.WithResponderLogger(logger))
	if err := consumer.Subscribe(ctx, users.UserDetailsQueue, detailsResponder.Handle); err != nil {
		return err
	}

	infoResponder := messaging.NewResponder(transport, service.UserInfo, messaging.WithResponderLogger(logger))
	if err := consumer.Subscribe(ctx, users.UserInfoQueue, infoResponder.Handle); err != nil {
		return err
	}

	// Purchase fulfillment
	fulfillment := users.NewFulfillment(ownedRepo, cartRepo, users.WithFulfillmentLogger(logger))
	if err := consumer.Subscribe(ctx, users.PurchaseQueue, fulfillment.Handle); err != nil {
		return err
	}

	// HTTP
	api := httpapi.NewServer(service, tokens, cfg.HTTP.CORSOrigin, httpapi.WithServerLogger(logger))
	srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: api.Router}

	go func() {
		logger.Info("http listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	if err := consumer.UnsubscribeAll(); err != nil {
		logger.Error("consumer shutdown failed", "error", err)
	}

	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
