// Command expiryctl is the expirywatch operations CLI.
//
// Usage:
//
//	expiryctl classify --window display
//	expiryctl classify --file products.json --today 2026-10-18 --json
//	expiryctl digest preview
//	expiryctl digest run
//	expiryctl state show
//	expiryctl state reset
//	expiryctl migrate up
//	expiryctl migrate down --steps 1
//	expiryctl notify test
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/albapepper/expirywatch/internal/app"
	"github.com/albapepper/expirywatch/internal/config"
	"github.com/albapepper/expirywatch/internal/db"
	"github.com/albapepper/expirywatch/internal/expiry"
	"github.com/albapepper/expirywatch/internal/kvstore"
	"github.com/albapepper/expirywatch/internal/notifications"
	"github.com/albapepper/expirywatch/internal/products"
)

var logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:          "expiryctl",
		Short:        "Expirywatch operations CLI",
		SilenceUsage: true,
	}

	root.AddCommand(classifyCmd())
	root.AddCommand(digestCmd())
	root.AddCommand(stateCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(notifyCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// --------------------------------------------------------------------------
// classify command
// --------------------------------------------------------------------------

func classifyCmd() *cobra.Command {
	var (
		window string
		file   string
		today  string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Bucket products by expiry urgency",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := expiry.WindowByName(window)
			if err != nil {
				return err
			}
			return runWith(file == "", func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				var ps []expiry.Product
				if file != "" {
					ps, err = readProductsFile(file)
				} else {
					ps, err = products.NewRepository(pool.Pool).ListProducts(ctx)
				}
				if err != nil {
					return err
				}

				ref, err := referenceTime(today, cfg.NotifyLocation, time.Now())
				if err != nil {
					return err
				}
				res := expiry.Classify(ps, ref, w)
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), res)
				}
				return writeResult(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().StringVar(&window, "window", expiry.DisplayWindow.Name, "Window (urgent, display)")
	cmd.Flags().StringVar(&file, "file", "", "Read products from a JSON file instead of the database")
	cmd.Flags().StringVar(&today, "today", "", "Reference day YYYY-MM-DD (default: today in NOTIFY_TIMEZONE)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the classification as JSON")
	return cmd
}

// --------------------------------------------------------------------------
// digest command
// --------------------------------------------------------------------------

func digestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Compose or send the daily expiry email",
	}
	cmd.AddCommand(digestPreviewCmd())
	cmd.AddCommand(digestRunCmd())
	return cmd
}

func digestPreviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "preview",
		Short: "Print the digest that would be sent today",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWith(true, func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				job, err := app.DigestJob(cfg, products.NewRepository(pool.Pool), logger)
				if err != nil {
					return err
				}
				mail, res, ok, err := job.Preview(ctx)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintf(cmd.OutOrStdout(), "Nothing to send for %s\n", res.Today)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "To: %s\nSubject: %s\n\n%s", mail.To, mail.Subject, mail.Text)
				return nil
			})
		},
	}
}

func digestRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Send today's digest now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWith(true, func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				job, err := app.DigestJob(cfg, products.NewRepository(pool.Pool), logger)
				if err != nil {
					return err
				}
				start := time.Now()
				result, err := job.Run(ctx)
				if err != nil {
					return err
				}
				logger.Info("Digest run finished",
					"run_id", result.RunID,
					"sent", result.Sent,
					"items", result.Items,
					"invalid", result.Invalid,
					"duration", time.Since(start).Round(time.Millisecond))
				return nil
			})
		},
	}
}

// --------------------------------------------------------------------------
// state command
// --------------------------------------------------------------------------

func stateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect or reset the notification dedup state",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the last day a notification was delivered",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runState(func(ctx context.Context, cfg *config.Config, store *notifications.StateStore) error {
				day, ok, err := store.LastFiredDay(ctx)
				if err != nil {
					return err
				}
				today := expiry.DayOf(time.Now().In(cfg.NotifyLocation))
				if !ok {
					fmt.Fprintf(cmd.OutOrStdout(), "backend=%s last_fired_on=never fired_today=false\n", cfg.StateBackend)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "backend=%s last_fired_on=%s fired_today=%t\n",
					cfg.StateBackend, day, day.Equal(today))
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Forget the last fired day so today's notification can fire again",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runState(func(ctx context.Context, cfg *config.Config, store *notifications.StateStore) error {
				if err := store.Reset(ctx); err != nil {
					return err
				}
				logger.Info("Notification state reset", "backend", cfg.StateBackend, "scope", cfg.StateScope)
				return nil
			})
		},
	})
	return cmd
}

// --------------------------------------------------------------------------
// migrate command
// --------------------------------------------------------------------------

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadDBConfig()
			if err != nil {
				return err
			}
			if err := db.Migrate(cfg.DatabaseURL); err != nil {
				return err
			}
			version, _, err := db.Version(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			logger.Info("Migrations applied", "version", version)
			return nil
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps < 1 {
				return fmt.Errorf("--steps must be at least 1")
			}
			cfg, err := loadDBConfig()
			if err != nil {
				return err
			}
			if err := db.MigrateDown(cfg.DatabaseURL, steps); err != nil {
				return err
			}
			logger.Info("Migrations rolled back", "steps", steps)
			return nil
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "Number of migrations to roll back")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadDBConfig()
			if err != nil {
				return err
			}
			version, dirty, err := db.Version(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%t\n", version, dirty)
			return nil
		},
	})
	return cmd
}

// --------------------------------------------------------------------------
// notify command
// --------------------------------------------------------------------------

func notifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Exercise notification channels",
	}

	var body string
	test := &cobra.Command{
		Use:   "test",
		Short: "Send a test notification through the configured channels",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWith(false, func(ctx context.Context, cfg *config.Config, _ *db.Pool) error {
				d, err := app.Dispatcher(cfg, cmd.OutOrStdout(), logger)
				if err != nil {
					return err
				}
				day := expiry.DayOf(time.Now().In(cfg.NotifyLocation))
				msg := notifications.Message{
					Title: "Expirywatch test notification",
					Body:  body,
					Tag:   notifications.TagFor(day) + "-test",
					Day:   day,
					URL:   cfg.AppURL,
				}
				if err := d.Send(ctx, msg); err != nil {
					return err
				}
				logger.Info("Test notification sent", "channels", d.Channels())
				return nil
			})
		},
	}
	test.Flags().StringVar(&body, "body", "Notifications are working", "Notification body")
	cmd.AddCommand(test)
	return cmd
}

// --------------------------------------------------------------------------
// Shared setup
// --------------------------------------------------------------------------

// runWith handles config loading, the optional DB connection and context
// cancellation. pool is nil when needDB is false.
func runWith(needDB bool, fn func(ctx context.Context, cfg *config.Config, pool *db.Pool) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !needDB {
		return fn(ctx, cfg, nil)
	}
	if !cfg.HasDatabase() {
		return fmt.Errorf("DATABASE_URL is required")
	}

	pool, err := db.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	return fn(ctx, cfg, pool)
}

// runState opens the configured state backend, connecting to the database
// only when the backend needs it.
func runState(fn func(ctx context.Context, cfg *config.Config, store *notifications.StateStore) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var raw *pgxpool.Pool
	if cfg.StateBackend == kvstore.BackendPostgres {
		pool, err := db.New(ctx, cfg)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer pool.Close()
		raw = pool.Pool
	}

	_, store, err := app.OpenState(cfg, raw, logger)
	if err != nil {
		return err
	}
	return fn(ctx, cfg, store)
}

func loadDBConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if !cfg.HasDatabase() {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}
