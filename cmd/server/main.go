package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/Tyrowin/roomchat/internal/auth"
	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/Tyrowin/roomchat/internal/server"
	"github.com/Tyrowin/roomchat/internal/store"
	gfshutdown "github.com/gelmium/graceful-shutdown"
)

func main() {
	config := server.SetConfig(server.NewConfigFromEnv())

	logger := server.NewLogger(os.Stdout, config.LogLevel, config.LogFormat)
	slog.SetDefault(logger)
	logger.Info("starting room chat server", "port", config.Port, "db", config.DBPath)
	if config.UsesDefaultSecret() {
		logger.Warn("JWT_SECRET_KEY is not set; signing tokens with the development default")
	}

	db, err := store.Open(config.DBPath)
	if err != nil {
		logger.Error("failed to open user store", "error", err)
		os.Exit(1)
	}
	users := store.NewUserRepository(db)

	authService := auth.NewService(
		users,
		auth.NewPasswordHasher(config.Auth.BcryptCost),
		auth.NewTokenManager(auth.TokenConfig{
			Secret: config.Auth.SecretKey,
			Issuer: config.Auth.Issuer,
			TTL:    config.Auth.TokenTTL,
		}),
	)

	engine, err := chat.NewEngine(authService, chat.WithLogger(logger.With("component", "chat")))
	if err != nil {
		logger.Error("failed to create chat engine", "error", err)
		os.Exit(1)
	}

	hub := server.NewHub(engine, logger.With("component", "hub"))
	go hub.Run()

	api := server.NewAPI(hub, engine, authService, users, logger.With("component", "api"))
	httpServer := server.CreateServer(config.Port, server.SetupRoutes(api))

	go func() {
		if err := server.StartServer(httpServer); err != nil {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Shutdown order: HTTP server, hub, then the database.
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		config.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"server": func(ctx context.Context) error {
				logger.Info("graceful shutdown initiated")
				return errors.Join(
					server.ShutdownServer(ctx, httpServer, config.ShutdownTimeout),
					hub.Shutdown(config.ShutdownTimeout),
					store.Close(db),
				)
			},
		},
	)

	exitCode := <-wait
	logger.Info("server exited", "code", exitCode)
	os.Exit(exitCode)
}
