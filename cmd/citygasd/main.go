package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"citygasd/internal/alerting"
	"citygasd/internal/api"
	"citygasd/internal/auth"
	"citygasd/internal/billing"
	"citygasd/internal/config"
	"citygasd/internal/coordinator"
	"citygasd/internal/cycle"
	"citygasd/internal/meter"
	"citygasd/internal/metrics"
	"citygasd/internal/migrate"
	"citygasd/internal/notification"
	"citygasd/internal/provider"
	"citygasd/internal/storage"
)

var version = "dev"

// refreshLockKey guards the background refresher when several processes share
// one postgres database.
const refreshLockKey int64 = 730014

func main() {
	root := &cobra.Command{
		Use:          "citygasd",
		Short:        "Household city gas billing tracker",
		SilenceUsage: true,
	}

	root.AddCommand(serveCmd(), workerCmd(), migrateCmd(), billCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and the background refresher",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}

			deps, err := buildDeps(ctx, cfg)
			if err != nil {
				return err
			}
			defer deps.store.Close()

			srv := &api.Server{
				Store: deps.store,
				Coord: deps.coord,
				Meter: deps.meter,
				Calc:  deps.calc,
			}
			if os.Getenv("CITYGASD_AUTH_ENABLED") == "true" {
				authSvc, err := auth.NewService(deps.store)
				if err != nil {
					return fmt.Errorf("auth: %w", err)
				}
				if err := bootstrapAdmin(ctx, deps.store, authSvc); err != nil {
					return err
				}
				srv.Auth = authSvc
			}

			go func() {
				if err := deps.coord.Run(ctx, cfg.RefreshInterval); err != nil && ctx.Err() == nil {
					log.Printf("[serve] refresher stopped: %v", err)
				}
			}()

			httpSrv := &http.Server{
				Addr:    ":" + cfg.Port,
				Handler: srv.Handler(),
			}
			go func() {
				<-ctx.Done()
				shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				httpSrv.Shutdown(shutCtx)
			}()

			log.Printf("[serve] provider=%s listening on %s", cfg.Provider, httpSrv.Addr)
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		},
	}
}

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run only the background refresher",
		Long: "Runs the factor refresher without the HTTP server. An advisory\n" +
			"lock keeps a single refresher active when several workers share\n" +
			"one postgres database.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}

			deps, err := buildDeps(ctx, cfg)
			if err != nil {
				return err
			}
			defer deps.store.Close()

			got, err := deps.store.AcquireAdvisoryLock(ctx, refreshLockKey)
			if err != nil {
				return fmt.Errorf("acquire refresh lock: %w", err)
			}
			if !got {
				return fmt.Errorf("another worker holds the refresh lock")
			}
			defer deps.store.ReleaseAdvisoryLock(context.Background(), refreshLockKey)

			log.Printf("[worker] provider=%s interval=%s", cfg.Provider, cfg.RefreshInterval)
			return deps.coord.Run(ctx, cfg.RefreshInterval)
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	for _, sub := range []struct {
		use string
		fn  func(ctx context.Context, driver, dsn string) error
	}{
		{"up", migrate.Up},
		{"down", migrate.Down},
		{"status", migrate.Status},
	} {
		fn := sub.fn
		cmd.AddCommand(&cobra.Command{
			Use:   sub.use,
			Short: "Run goose " + sub.use,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := config.FromEnv()
				if err != nil {
					return err
				}
				return fn(cmd.Context(), cfg.DBDriver, cfg.DBDSN)
			},
		})
	}
	return cmd
}

func billCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bill",
		Short: "Print the running bill and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			deps, err := buildDeps(ctx, cfg)
			if err != nil {
				return err
			}
			defer deps.store.Close()

			reading, err := deps.meter.Read(ctx)
			if err != nil {
				return err
			}
			prev, curr, err := deps.coord.Factors(ctx)
			if err != nil {
				return err
			}
			res, err := deps.calc.Bill(billing.Reading{
				CurrentVolume: reading.CurrentVolume,
				StartVolume:   reading.StartVolume,
			}, prev, curr, time.Now())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("citygasd", version)
		},
	}
}

type deps struct {
	store storage.Storage
	calc  billing.Calculator
	meter meter.Control
	coord *coordinator.Coordinator
}

func buildDeps(ctx context.Context, cfg config.Config) (*deps, error) {
	store, err := storage.Open(ctx, storage.Config{Driver: cfg.DBDriver, DSN: cfg.DBDSN})
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	gw, ok := provider.Get(cfg.Provider, provider.Options{TariffPDFPath: cfg.TariffPDFPath})
	if !ok {
		store.Close()
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}

	calc := billing.Calculator{
		ReadingDay:       cfg.ReadingDay,
		BaseFee:          cfg.BaseFee,
		CorrectionFactor: cfg.CorrectionFactor,
		BimonthlyCycle:   cfg.BimonthlyCycle,
	}
	mtr := meter.New(store)
	sm := cycle.New(store, mtr, calc, cfg.ReadingHour, cfg.ReadingMinute)

	notifier := notification.NewService(store)
	sm.OnInvoice = func(ctx context.Context, inv storage.Invoice) {
		metrics.RolloversTotal.Inc()
		emailCfg, err := notifier.GetConfig(ctx)
		if err != nil || emailCfg == nil || !emailCfg.Enabled {
			return
		}
		if err := notifier.SendInvoice(ctx, inv); err != nil {
			log.Printf("[notification] invoice %s: %v", inv.Period, err)
		}
	}

	alerter := alerting.NewAlerter(alerting.DefaultAlertConfig())
	coord := coordinator.New(store, gw, sm, alerter)

	return &deps{store: store, calc: calc, meter: mtr, coord: coord}, nil
}

func bootstrapAdmin(ctx context.Context, store storage.Storage, svc *auth.Service) error {
	users, err := store.ListUsers(ctx)
	if err != nil {
		return err
	}
	if len(users) > 0 {
		return nil
	}
	password := os.Getenv("CITYGASD_ADMIN_PASSWORD")
	if password == "" {
		return fmt.Errorf("auth enabled with no users: set CITYGASD_ADMIN_PASSWORD to bootstrap")
	}
	if _, err := svc.Register(ctx, "admin", password, "admin"); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	log.Printf("[auth] bootstrapped admin user")
	return nil
}
