package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/codewandler/bankes/adapters/api"
	"github.com/codewandler/bankes/adapters/nats"
	"github.com/codewandler/bankes/adapters/postgres"
	promadapter "github.com/codewandler/bankes/adapters/prometheus"
	"github.com/codewandler/bankes/adapters/redis"
	"github.com/codewandler/bankes/adapters/sqlite"
	"github.com/codewandler/bankes/core/account"
	"github.com/codewandler/bankes/core/es"
	"github.com/codewandler/bankes/core/money"
	"github.com/codewandler/bankes/internal/config"
)

const usage = `usage:
  bankes open <customer> <currency>
  bankes deposit <account> <amount> <currency>
  bankes withdraw <account> <amount> <currency>
  bankes show <account>
  bankes serve`

var errUsage = errors.New(usage)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := run(ctx, cfg, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}

	lvl, err := cfg.Level()
	if err != nil {
		return err
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))

	store, closeStore, err := openLog(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	repo := account.NewRepository(
		store,
		account.WithLogger(log),
		account.WithSnapshotInterval(cfg.SnapshotInterval),
		account.WithMetrics(promadapter.NewAccountMetrics(reg)),
	)

	if args[0] == "serve" {
		err = serve(ctx, cfg, repo, reg, log)
	} else {
		err = dispatch(ctx, repo, args, out)
	}

	if cfg.MetricsFile != "" {
		if werr := prometheus.WriteToTextfile(cfg.MetricsFile, reg); werr != nil {
			log.Warn("failed to write metrics", slog.String("file", cfg.MetricsFile), slog.Any("error", werr))
		}
	}
	return err
}

func dispatch(ctx context.Context, repo *account.Repository, args []string, out io.Writer) error {
	cmd, args := args[0], args[1:]

	switch cmd {
	case "open":
		if len(args) != 2 {
			return errUsage
		}
		currency, err := money.ParseCurrency(args[1])
		if err != nil {
			return err
		}
		id := account.NewAccountID()
		acc, err := repo.Execute(ctx, id, func(a *account.Account) error {
			return a.Create(account.CustomerID(args[0]), currency)
		})
		if err != nil {
			return err
		}
		printAccount(out, acc)
		return nil

	case "deposit", "withdraw":
		if len(args) != 3 {
			return errUsage
		}
		amount, err := money.Parse(args[1] + " " + strings.ToUpper(args[2]))
		if err != nil {
			return err
		}
		acc, err := repo.Execute(ctx, account.AccountID(args[0]), func(a *account.Account) error {
			if cmd == "deposit" {
				return a.Deposit(amount)
			}
			return a.Withdraw(amount)
		})
		if err != nil {
			return err
		}
		printAccount(out, acc)
		return nil

	case "show":
		if len(args) != 1 {
			return errUsage
		}
		acc, err := repo.Load(ctx, account.AccountID(args[0]))
		if err != nil {
			return err
		}
		if !acc.IsCreated() {
			return fmt.Errorf("account %s: %w", acc.ID(), account.ErrNotInitialized)
		}
		printAccount(out, acc)
		return nil

	default:
		return fmt.Errorf("unknown command %q\n%w", cmd, errUsage)
	}
}

func printAccount(out io.Writer, acc *account.Account) {
	_, _ = fmt.Fprintf(
		out,
		"account=%s customer=%s balance=%q version=%d\n",
		acc.ID(),
		acc.CustomerID(),
		acc.Balance().String(),
		acc.Version(),
	)
}

func openLog(ctx context.Context, cfg config.Config, log *slog.Logger) (es.Log, func(), error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return es.NewInMemoryLog(), func() {}, nil

	case config.BackendSQLite:
		l, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return l, func() { _ = l.Close() }, nil

	case config.BackendPostgres:
		l, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return l, l.Close, nil

	case config.BackendRedis:
		l, err := redis.NewLog(ctx, redis.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Log:      log,
		})
		if err != nil {
			return nil, nil, err
		}
		return l, func() { _ = l.Close() }, nil

	case config.BackendNATS:
		l, err := nats.NewLog(ctx, nats.LogConfig{
			Connect:    nats.ConnectURL(cfg.NatsURL),
			Log:        log,
			StreamName: cfg.NatsStream,
		})
		if err != nil {
			return nil, nil, err
		}
		return l, func() { _ = l.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// serve runs the HTTP API until ctx is cancelled.
func serve(ctx context.Context, cfg config.Config, repo *account.Repository, reg *prometheus.Registry, log *slog.Logger) error {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(repo, reg, log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", slog.String("addr", cfg.HTTPAddr), slog.String("backend", string(cfg.Backend)))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info("stopped")
	return nil
}
