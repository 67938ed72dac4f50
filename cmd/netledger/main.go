package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"log/slog"

	"github.com/netledger/netledger/internal/events"
	"github.com/netledger/netledger/internal/httpapi"
	"github.com/netledger/netledger/internal/ledger"
	"github.com/netledger/netledger/internal/lock"
	"github.com/netledger/netledger/internal/service/apikey"
	"github.com/netledger/netledger/internal/service/ledgercore"
	"github.com/netledger/netledger/internal/service/registry"
	"github.com/netledger/netledger/internal/storage"
	"github.com/netledger/netledger/internal/storage/memory"
	pgstore "github.com/netledger/netledger/internal/storage/postgres"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Logger (slog to stdout). Level via LOG_LEVEL; format via LOG_FORMAT (json|text, default json)
	logger := buildLoggerFromEnv()
	slog.SetDefault(logger)

	var (
		store   storage.Store
		ready   httpapi.ReadyChecker
		closeFn func()
	)
	if dsn := strings.TrimSpace(os.Getenv("DATABASE_URL")); dsn != "" {
		pg, err := pgstore.Open(ctx, dsn)
		if err != nil {
			logger.Error("failed to connect to postgres", "err", err)
			os.Exit(1)
		}
		store = pg
		ready = pg
		closeFn = pg.Close
		logger.Info("storage backend: postgres")
	} else {
		mem := memory.New()
		store = mem
		ready = mem
		logger.Info("storage backend: memory")
	}

	clock := ledger.SystemClock
	locks := lock.NewKeyed()
	notifier := events.NewNotifier(logger)
	notifier.Subscribe(func(ev events.Event) {
		logger.Debug("ledger event", "type", string(ev.Type), "account", ev.AccountGUID.String())
	})

	reg := registry.New(store, locks, notifier, clock)
	core := ledgercore.New(store, locks, notifier, clock)
	keys := apikey.New(store, clock)

	if material := strings.TrimSpace(os.Getenv("ADMIN_API_KEY")); material != "" {
		if _, err := keys.Bootstrap(ctx, material); err != nil {
			logger.Error("admin key bootstrap failed", "err", err)
			os.Exit(1)
		}
		logger.Info("admin api key bootstrapped")
	}

	if dev := strings.ToLower(strings.TrimSpace(os.Getenv("DEV_SEED"))); dev == "1" || dev == "true" || dev == "yes" {
		if err := seedDev(ctx, logger, reg, core, keys); err != nil {
			logger.Error("dev seed failed", "err", err)
		}
	}

	srv := &http.Server{
		Addr:              listenAddr(),
		Handler:           httpapi.New(reg, core, keys, ready, logger).Handler(),
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("netledger service listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctxShutdown); err != nil {
			logger.Error("server shutdown error", "err", err)
		}
	case err := <-errCh:
		logger.Error("server error", "err", err)
	}
	if closeFn != nil {
		closeFn()
	}
}

func listenAddr() string {
	if addr := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); addr != "" {
		return addr
	}
	return ":8080"
}

// seedDev creates a demo account with a committed history and prints the ids
// for easy copy/paste in local runs.
func seedDev(ctx context.Context, l *slog.Logger, reg *registry.Service, core *ledgercore.Service, keys *apikey.Service) error {
	acct, err := reg.Create(ctx, "Demo Account", "created by DEV_SEED")
	if err != nil {
		return err
	}
	if _, err := core.AddCredit(ctx, acct.GUID, ledgercore.EntryInput{Amount: decimal.RequireFromString("100.00"), Description: "seed credit"}, false); err != nil {
		return err
	}
	if _, err := core.AddDebit(ctx, acct.GUID, ledgercore.EntryInput{Amount: decimal.RequireFromString("25.00"), Description: "seed debit"}, false); err != nil {
		return err
	}
	if _, err := core.Commit(ctx, acct.GUID, nil); err != nil {
		return err
	}
	key, err := keys.Create(ctx, "dev", true)
	if err != nil {
		return err
	}
	l.Info("DEV seed", "account_guid", acct.GUID.String(), "api_key_guid", key.GUID.String())
	fmt.Println("==================== DEV SEED ====================")
	fmt.Printf("account_guid: %s\n", acct.GUID.String())
	fmt.Printf("api_key: %s\n", key.Key)
	fmt.Println("==================================================")
	return nil
}

// parseLogLevel maps env values to slog.Leveler
func parseLogLevel(s string) slog.Leveler {
	switch s {
	case "DEBUG", "debug":
		return slog.LevelDebug
	case "WARN", "WARNING", "warn", "warning":
		return slog.LevelWarn
	case "ERROR", "ERR", "error", "err":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func buildLoggerFromEnv() *slog.Logger {
	level := parseLogLevel(os.Getenv("LOG_LEVEL"))
	format := strings.ToLower(strings.TrimSpace(os.Getenv("LOG_FORMAT")))
	if format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	}
	// default to JSON
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
