package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/Tyrowin/groupchat/internal/account"
	"github.com/Tyrowin/groupchat/internal/fanout"
	"github.com/Tyrowin/groupchat/internal/server"
	"github.com/Tyrowin/groupchat/internal/store"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/mama165/sdk-go/logs"
)

func main() {
	config, err := server.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logs.GetLoggerFromString(config.LogLevel)
	log.Info("Starting group chat server...")

	db, err := store.Open(config.DatabasePath)
	if err != nil {
		log.Error("Failed to open database", "path", config.DatabasePath, "error", err)
		os.Exit(1)
	}
	st := store.New(db)

	registry := fanout.NewRegistry()
	broadcaster := fanout.NewBroadcaster(st, st, registry, log)
	accounts := account.NewService(st, account.NewPasswordHasher(config.BcryptCost))

	srv := server.New(config, server.Dependencies{
		Inbound:  broadcaster,
		Registry: registry,
		Groups:   st,
		Accounts: accounts,
		Logger:   log,
	})
	go srv.Hub().Run()

	httpServer := server.CreateServer(config.Port, srv.Handler())
	go func() {
		if err := server.StartServer(httpServer, log); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	// One operation so the steps run in order: stop accepting requests, drain
	// the WebSocket clients, then close the database they write to.
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		config.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"groupchat": func(ctx context.Context) error {
				log.Info("Graceful shutdown initiated...")
				httpErr := server.ShutdownServer(ctx, httpServer, log)
				hubErr := srv.Hub().Shutdown(config.ShutdownTimeout)
				dbErr := store.Close(db)
				return errors.Join(httpErr, hubErr, dbErr)
			},
		},
	)

	exitCode := <-wait
	log.Info("Server exited", "code", exitCode)
	os.Exit(exitCode)
}
