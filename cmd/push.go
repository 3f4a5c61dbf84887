package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/devvluca/EclesIA/internal/eclesia/config"
	"github.com/devvluca/EclesIA/internal/eclesia/store"
	"github.com/devvluca/EclesIA/internal/push"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	pushCron     string
	pushKind     string
	pushEndpoint string
	pushP256dh   string
	pushAuth     string
)

// pushCmd represents the push command
var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Send Web Push notifications to the app's subscribers",
	Long: `Send Web Push notifications to every subscribed browser.

Two notifications are available:
  reminder   "Lembrete EclesIA", opens the chat
  verse      "Versículo do dia" with a random verse, opens the Bible

Sending needs the VAPID key pair and, with the supabase store, the
service-role key to read every subscription.`,
}

var pushSendCmd = &cobra.Command{
	Use:       "send [reminder|verse]",
	Short:     "Send a notification now",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{push.KindReminder, push.KindVerse},
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := push.KindReminder
		if len(args) > 0 {
			kind = args[0]
		}

		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		broadcast, err := newBroadcaster(cfg)
		if err != nil {
			return err
		}

		res, err := broadcast(cmd.Context(), kind)
		if err != nil {
			return fmt.Errorf("broadcasting: %w", err)
		}
		fmt.Printf("Sent %d of %d notifications", res.Sent, res.Total)
		if res.Failed > 0 {
			fmt.Printf(" (%d failed)", res.Failed)
		}
		fmt.Println(".")
		return nil
	},
}

var pushScheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Send notifications on a cron schedule",
	Long: `Send a notification on every tick of a 5-field cron expression until interrupted.

Examples:
  eclesia push schedule --cron "0 9 * * *"               # Daily reminder at 09:00
  eclesia push schedule --cron "0 7 * * 1-5" --type verse`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if pushKind != push.KindReminder && pushKind != push.KindVerse {
			return fmt.Errorf("invalid notification type: %s (expected reminder or verse)", pushKind)
		}
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		broadcast, err := newBroadcaster(cfg)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return push.Schedule(ctx, pushCron, func(ctx context.Context) {
			res, err := broadcast(ctx, pushKind)
			if err != nil {
				log.Error().Err(err).Msg("Scheduled broadcast failed")
				return
			}
			log.Info().Int("sent", res.Sent).Int("failed", res.Failed).Msg("Scheduled broadcast done")
		})
	},
}

var pushSubscribeCmd = &cobra.Command{
	Use:   "subscribe",
	Short: "Register a browser push subscription",
	Long: `Register a browser push subscription, as produced by PushManager.subscribe().
A subscription with the same endpoint is replaced.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if pushEndpoint == "" || pushP256dh == "" || pushAuth == "" {
			return fmt.Errorf("--endpoint, --p256dh and --auth are required")
		}
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		identity, err := loadIdentity(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		st, err := newStore(cfg, identity)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}

		sub := store.PushSubscription{
			Endpoint:  pushEndpoint,
			Keys:      store.PushKeys{P256dh: pushP256dh, Auth: pushAuth},
			CreatedAt: time.Now().UTC(),
		}
		if err := st.SavePushSubscription(cmd.Context(), sub); err != nil {
			return fmt.Errorf("saving subscription: %w", err)
		}
		fmt.Println("Subscription saved.")
		return nil
	},
}

type broadcaster func(ctx context.Context, kind string) (push.Result, error)

// newBroadcaster wires the subscription store, the VAPID sender and the
// verse source into a function sending one notification kind.
func newBroadcaster(cfg *config.Config) (broadcaster, error) {
	publicKey, privateKey, err := cfg.RequireVAPID()
	if err != nil {
		return nil, err
	}
	subs, err := newServiceStore(cfg)
	if err != nil {
		return nil, err
	}
	notifier := push.NewNotifier(subs, push.NewWebPushSender(publicKey, privateKey, cfg.VAPIDSubject), cfg.PushConcurrency)

	var verses push.VerseSource
	if client, err := newBibleClient(cfg); err == nil {
		verses = client
	} else {
		log.Debug().Err(err).Msg("Bible API not configured, verse notifications use the fallback text")
	}

	return func(ctx context.Context, kind string) (push.Result, error) {
		payload := push.BuildPayload(ctx, kind, verses, cfg.BibleVersion, cfg.AppURL)
		return notifier.Broadcast(ctx, payload)
	}, nil
}

func init() {
	rootCmd.AddCommand(pushCmd)
	pushCmd.AddCommand(pushSendCmd)
	pushCmd.AddCommand(pushScheduleCmd)
	pushCmd.AddCommand(pushSubscribeCmd)

	pushScheduleCmd.Flags().StringVar(&pushCron, "cron", "0 9 * * *", "Cron expression (minute hour day-of-month month day-of-week)")
	pushScheduleCmd.Flags().StringVar(&pushKind, "type", push.KindReminder, "Notification type: reminder or verse")

	pushSubscribeCmd.Flags().StringVar(&pushEndpoint, "endpoint", "", "Push service endpoint URL")
	pushSubscribeCmd.Flags().StringVar(&pushP256dh, "p256dh", "", "Subscription public key (base64url)")
	pushSubscribeCmd.Flags().StringVar(&pushAuth, "auth", "", "Subscription auth secret (base64url)")
}
