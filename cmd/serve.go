package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/devvluca/EclesIA/internal/api"
	"github.com/devvluca/EclesIA/internal/eclesia/config"
	"github.com/devvluca/EclesIA/internal/eclesia/store"
	"github.com/devvluca/EclesIA/internal/events"
	"github.com/devvluca/EclesIA/internal/push"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	servePort     int
	servePushCron string
	servePushKind string
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the EclesIA HTTP server",
	Long: `Run the HTTP server: the church events and calendar API, push subscription
registration, the web app manifest, Prometheus metrics, and (with static_dir)
the installable web app shell.

Events are kept in events_dsn: a SQLite file path, or a MySQL DSN
(user:pass@tcp(host:3306)/eclesia?parseTime=true). The default events are
seeded into an empty database.

With --push-cron the server also broadcasts notifications on that schedule.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if cmd.Flags().Changed("port") {
			cfg.ServerPort = servePort
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		repo, err := openEvents(ctx, cfg.EventsDSN)
		if err != nil {
			return err
		}

		var subs store.SubscriptionStore
		if s, err := newServiceStore(cfg); err == nil {
			subs = s
		} else {
			log.Warn().Err(err).Msg("Push subscription registration disabled")
		}

		metrics := api.NewMetrics()
		opts := api.Options{
			Events:        repo,
			Subscriptions: subs,
			Metrics:       metrics,
			StaticDir:     cfg.StaticDir,
			Port:          cfg.ServerPort,
			Out:           os.Stderr,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return api.Start(gctx, opts)
		})

		if servePushCron != "" {
			broadcast, err := newBroadcaster(cfg)
			if err != nil {
				return err
			}
			g.Go(func() error {
				return push.Schedule(gctx, servePushCron, func(ctx context.Context) {
					res, err := broadcast(ctx, servePushKind)
					metrics.RecordBroadcast(res)
					if err != nil {
						log.Error().Err(err).Msg("Scheduled broadcast failed")
					}
				})
			})
		}

		return g.Wait()
	},
}

// openEvents opens the events database and seeds the default events.
func openEvents(ctx context.Context, dsn string) (*events.Repository, error) {
	driver := config.StoreSQLite
	if strings.Contains(dsn, "@tcp(") || strings.Contains(dsn, "@unix(") {
		driver = config.StoreMySQL
	} else {
		path, err := config.ResolvePath(dsn)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating events directory: %w", err)
		}
		dsn = path
	}

	db, err := store.Dial(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening events database: %w", err)
	}
	repo, err := events.NewRepository(db)
	if err != nil {
		return nil, fmt.Errorf("migrating events database: %w", err)
	}
	seeded, err := repo.Seed(ctx)
	if err != nil {
		return nil, fmt.Errorf("seeding events: %w", err)
	}
	if seeded {
		log.Info().Int("events", len(events.Defaults)).Msg("Seeded default events")
	}
	return repo, nil
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8080, "Port to listen on (default from config)")
	serveCmd.Flags().StringVar(&servePushCron, "push-cron", "", "Broadcast notifications on this cron schedule")
	serveCmd.Flags().StringVar(&servePushKind, "push-type", push.KindReminder, "Scheduled notification type: reminder or verse")
}
