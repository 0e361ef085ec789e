package main

import (
	"context"
	"encoding/base64"
	"errors"
	"flag"
	"log"
	oshttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"hitch/internal/auth"
	"hitch/internal/commands"
	"hitch/internal/config"
	"hitch/internal/http"
	"hitch/internal/push"
	"hitch/internal/storage"
	"hitch/internal/trips"
	"hitch/internal/ws"
)

func run(ctx context.Context, addAccount, role, password string) error {
	cfg, err := config.Load(addAccount != "")
	if err != nil {
		return err
	}

	if addAccount != "" {
		return commands.AddAccount(addAccount, role, password, cfg)
	}

	authConfig := auth.Config{
		Secret:      base64.StdEncoding.EncodeToString([]byte(cfg.AuthSecret)),
		TokenExpiry: cfg.TokenExpiry,
	}

	bbStorage, err := storage.NewBboltStorage(cfg.DBFile)
	if err != nil {
		return err
	}
	defer func() { _ = bbStorage.Close() }()

	tripStore, err := trips.Open(ctx, cfg.TripsDBFile)
	if err != nil {
		return err
	}
	defer func() { _ = tripStore.Close() }()

	authService, err := auth.NewAuthService(ctx, authConfig, bbStorage)
	if err != nil {
		return err
	}

	pushService := push.NewService(push.Config{
		Subscriber:      cfg.PushSubscriber,
		VAPIDPublicKey:  cfg.VAPIDPublicKey,
		VAPIDPrivateKey: cfg.VAPIDPrivateKey,
	}, bbStorage)

	hub := ws.NewHub(bbStorage, tripStore, pushService)

	opsServer := http.NewOpsServer(authService, hub, cfg.OpsAddr)
	apiServer := http.NewAPIServer(authService, hub, bbStorage, tripStore, pushService, cfg.APIAddr)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := opsServer.Start()
		if err != nil && err != oshttp.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		err := apiServer.Start()
		if err != nil && err != oshttp.ErrServerClosed {
			return err
		}
		return nil
	})

	// Wait for context cancellation (signal)
	g.Go(func() error {
		<-gCtx.Done()
		log.Println("Shutting down servers...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := opsServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Ops server shutdown error: %v", err)
		}
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("API server shutdown error: %v", err)
		}
		return nil
	})

	return g.Wait()
}

func main() {
	addAccount := flag.String("add-account", "", "Username of account to create via the ops API")
	role := flag.String("role", "passenger", "Role for -add-account (driver, passenger, courier)")
	password := flag.String("password", "", "Password for -add-account")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *addAccount, *role, *password); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Application error: %v", err)
	}
}
