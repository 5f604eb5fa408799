package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bher20/octorate/internal/alerting"
	"github.com/bher20/octorate/internal/api"
	"github.com/bher20/octorate/internal/config"
	"github.com/bher20/octorate/internal/cron"
	"github.com/bher20/octorate/internal/migrate"
	"github.com/bher20/octorate/internal/notification"
	"github.com/bher20/octorate/internal/ratesync"
	"github.com/bher20/octorate/internal/storage"
	"github.com/bher20/octorate/pkg/octopus"
)

var configPath string

func loadConfig() (config.Config, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	return config.FromEnv()
}

// open builds the shared object graph: storage, API client and sync engine.
func open(ctx context.Context, cfg config.Config) (storage.Storage, *ratesync.Service, error) {
	st, err := storage.Open(ctx, storage.Config{Driver: cfg.Storage.Driver, DSN: cfg.Storage.DSN})
	if err != nil {
		return nil, nil, fmt.Errorf("open storage: %w", err)
	}
	client := octopus.NewClient(cfg.BaseURL, cfg.APIKey)
	return st, ratesync.NewService(st, client), nil
}

func signalContext() context.Context {
	ctx, _ := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return ctx
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := signalContext()
			st, sync, err := open(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			mux := api.NewMux(api.Deps{
				Store:        st,
				Sync:         sync,
				MPAN:         cfg.MPAN,
				SerialNumber: cfg.SerialNumber,
			})

			srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			log.Printf("octorate listening on %s", cfg.ListenAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		},
	}
}

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the background refresh worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := signalContext()
			st, sync, err := open(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			w := &cron.Worker{
				Store:    st,
				Sync:     sync,
				Interval: cfg.RefreshIntervalSeconds,
				Alerter:  alerting.New(alerting.Config{WebhookURL: cfg.AlertWebhookURL, WebhookType: cfg.AlertWebhookKind}),
				Watcher: &notification.Watcher{
					Store:     st,
					Mail:      notification.NewService(st),
					Threshold: cfg.PriceAlertThreshold,
				},
			}
			err = w.Run(ctx)
			if err == context.Canceled {
				return nil
			}
			return err
		},
	}
}

func backfillCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Load historical rates and meter readings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := signalContext()
			st, sync, err := open(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			b := &cron.Backfill{
				Store:        st,
				Sync:         sync,
				MPAN:         cfg.MPAN,
				SerialNumber: cfg.SerialNumber,
				Days:         days,
			}
			return b.Run(ctx)
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "days of consumption history to load")
	return cmd
}

func syncCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "sync [tariff-code]",
		Short: "Refresh rates once, for one tariff or all tracked tariffs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := signalContext()
			st, sync, err := open(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			if len(args) == 1 {
				inserted, err := sync.UpdateRates(ctx, args[0], force)
				if err != nil {
					return err
				}
				fmt.Printf("%s: %d new rates\n", args[0], inserted)
				return nil
			}
			return sync.UpdateAll(ctx, force)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "fetch even when coverage is sufficient")
	return cmd
}

func compareCmd() *cobra.Command {
	var fromStr, toStr string
	cmd := &cobra.Command{
		Use:   "compare <tariff-code>",
		Short: "Price stored meter readings under a tariff",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			from, err := time.Parse(time.RFC3339, fromStr)
			if err != nil {
				return fmt.Errorf("parse --from: %w", err)
			}
			to, err := time.Parse(time.RFC3339, toStr)
			if err != nil {
				return fmt.Errorf("parse --to: %w", err)
			}

			ctx := signalContext()
			st, err := storage.Open(ctx, storage.Config{Driver: cfg.Storage.Driver, DSN: cfg.Storage.DSN})
			if err != nil {
				return err
			}
			defer st.Close()

			res, err := compareStored(ctx, st, args[0], cfg.MPAN, cfg.SerialNumber, from, to)
			if err != nil {
				return err
			}
			fmt.Printf("tariff            %s\n", args[0])
			fmt.Printf("consumption       %.3f kWh\n", res.TotalConsumptionKWh)
			fmt.Printf("unit cost         %.2fp exc VAT, %.2fp inc VAT\n", res.CostExcVAT, res.CostIncVAT)
			fmt.Printf("standing charge   %.2fp exc VAT, %.2fp inc VAT\n", res.StandingChargeExcVAT, res.StandingChargeIncVAT)
			fmt.Printf("total             %.2fp exc VAT, %.2fp inc VAT\n", res.TotalExcVAT(), res.TotalIncVAT())
			if res.UnmatchedReadings > 0 {
				fmt.Printf("warning: %d readings had no matching rate\n", res.UnmatchedReadings)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&fromStr, "from", "", "range start (RFC3339)")
	cmd.Flags().StringVar(&toStr, "to", "", "range end (RFC3339)")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate <up|down|status>",
		Short: "Run database migrations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := signalContext()
			switch args[0] {
			case "up":
				return migrate.Up(ctx, cfg.Storage.Driver, cfg.Storage.DSN)
			case "down":
				return migrate.Down(ctx, cfg.Storage.Driver, cfg.Storage.DSN)
			case "status":
				return migrate.Status(ctx, cfg.Storage.Driver, cfg.Storage.DSN)
			default:
				return fmt.Errorf("unknown migrate action %q", args[0])
			}
		},
	}
	return cmd
}

func main() {
	root := &cobra.Command{
		Use:           "octorate",
		Short:         "Agile electricity rate tracker and cost comparison",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	root.AddCommand(serveCmd(), workerCmd(), backfillCmd(), syncCmd(), compareCmd(), migrateCmd())

	if err := root.Execute(); err != nil {
		log.Fatalf("octorate: %v", err)
	}
}
