package push

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"dayplan/backend"
)

// ErrSubscriptionGone marks an endpoint the push service reports as
// permanently dead. The dispatcher prunes such subscriptions.
var ErrSubscriptionGone = errors.New("push subscription gone")

// Sender delivers one payload to one subscription.
type Sender interface {
	Send(ctx context.Context, sub backend.Subscription, payload []byte) error
}

// WebPushSender sends Web Push messages signed with VAPID keys.
type WebPushSender struct {
	publicKey  string
	privateKey string
	subscriber string // contact mailto or URL, relayed to the push service
}

// NewWebPushSender creates a sender for the given VAPID key pair.
func NewWebPushSender(publicKey, privateKey, subscriber string) *WebPushSender {
	return &WebPushSender{
		publicKey:  publicKey,
		privateKey: privateKey,
		subscriber: subscriber,
	}
}

// Send implements Sender.
func (s *WebPushSender) Send(ctx context.Context, sub backend.Subscription, payload []byte) error {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		Subscriber:      s.subscriber,
		VAPIDPublicKey:  s.publicKey,
		VAPIDPrivateKey: s.privateKey,
		TTL:             3600,
	})
	if err != nil {
		return fmt.Errorf("failed to send push: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return fmt.Errorf("endpoint %s: %w", sub.Endpoint, ErrSubscriptionGone)
	case resp.StatusCode >= 400:
		return fmt.Errorf("push service returned status %d", resp.StatusCode)
	}
	return nil
}

var _ Sender = (*WebPushSender)(nil)
