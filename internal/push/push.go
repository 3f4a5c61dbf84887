// Package push broadcasts Web Push notifications to every stored
// subscription.
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/devvluca/EclesIA/internal/eclesia/store"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// DefaultTTL is how long, in seconds, the push service keeps an undelivered
// notification.
const DefaultTTL = 24 * 60 * 60

// Sender delivers one encrypted notification.
type Sender interface {
	Send(ctx context.Context, sub store.PushSubscription, payload []byte) error
}

// DeliveryError is a rejection from the push service.
type DeliveryError struct {
	StatusCode int
	Body       string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("push service rejected notification (HTTP %d): %s", e.StatusCode, e.Body)
}

// Gone reports whether the subscription expired or was revoked.
func (e *DeliveryError) Gone() bool {
	return e.StatusCode == 404 || e.StatusCode == 410
}

// WebPushSender sends through the subscription's push service with VAPID.
type WebPushSender struct {
	options webpush.Options
}

// NewWebPushSender creates a sender signing with the given VAPID key pair.
// subject is a mailto: or https: contact URL.
func NewWebPushSender(publicKey, privateKey, subject string) *WebPushSender {
	return &WebPushSender{options: webpush.Options{
		Subscriber:      strings.TrimPrefix(subject, "mailto:"),
		VAPIDPublicKey:  publicKey,
		VAPIDPrivateKey: privateKey,
		TTL:             DefaultTTL,
	}}
}

// Send implements Sender.
func (s *WebPushSender) Send(ctx context.Context, sub store.PushSubscription, payload []byte) error {
	target := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys:     webpush.Keys{P256dh: sub.Keys.P256dh, Auth: sub.Keys.Auth},
	}
	opts := s.options

	resp, err := webpush.SendNotificationWithContext(ctx, payload, target, &opts)
	if err != nil {
		return errors.Wrap(err, "send notification")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &DeliveryError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return nil
}

// Result summarizes a broadcast.
type Result struct {
	Total  int
	Sent   int
	Failed int
}

// Notifier fans a payload out to every subscription.
type Notifier struct {
	subs        store.SubscriptionStore
	sender      Sender
	concurrency int
}

// NewNotifier creates a notifier sending at most concurrency notifications
// at a time.
func NewNotifier(subs store.SubscriptionStore, sender Sender, concurrency int) *Notifier {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Notifier{subs: subs, sender: sender, concurrency: concurrency}
}

// Broadcast sends p to every stored subscription. A failed delivery is
// logged and counted; it never stops the others. The error is non-nil only
// when the subscriptions could not be read or the context ended.
func (n *Notifier) Broadcast(ctx context.Context, p Payload) (Result, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return Result{}, errors.Wrap(err, "encode payload")
	}

	subs, err := n.subs.ListPushSubscriptions(ctx)
	if err != nil {
		return Result{}, errors.Wrap(err, "list push subscriptions")
	}
	log.Info().Int("subscriptions", len(subs)).Str("title", p.Title).Msg("Broadcasting notification")

	var sent, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(n.concurrency)
	for _, sub := range subs {
		g.Go(func() error {
			if err := n.sender.Send(gctx, sub, data); err != nil {
				failed.Add(1)
				log.Error().Err(err).Str("endpoint", sub.Endpoint).Msg("Push delivery failed")
				return nil
			}
			sent.Add(1)
			log.Debug().Str("endpoint", sub.Endpoint).Msg("Push delivered")
			return nil
		})
	}
	_ = g.Wait()

	res := Result{Total: len(subs), Sent: int(sent.Load()), Failed: int(failed.Load())}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}
