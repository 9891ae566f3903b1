// Package notify delivers push-style notifications to users and mechanics
// over NATS, with per-process rate limiting on the sending side.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"golang.org/x/time/rate"

	"github.com/sosmeca/sosmeca-server/pkg/natsutil"
)

// Notification is a displayable alert.
type Notification struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Notifier delivers a notification to one recipient.
type Notifier interface {
	Notify(ctx context.Context, recipientID string, n Notification) error
}

// RequestNearby alerts a mechanic that a breakdown was reported inside
// their intervention radius.
func RequestNearby(requestID, symptom string, distanceKm float64) Notification {
	return Notification{
		Title: "🚨 Nouvelle demande !",
		Body:  fmt.Sprintf("%s à %.1f km de vous", symptom, distanceKm),
		Data:  map[string]string{"request_id": requestID},
	}
}

// OfferAccepted alerts a mechanic that the requester picked their offer.
func OfferAccepted(requesterName string) Notification {
	return Notification{
		Title: "✅ Offre acceptée !",
		Body:  fmt.Sprintf("%s a accepté votre offre", requesterName),
	}
}

// NATS publishes notifications to notify.<recipient>. Recipient apps
// subscribe to their own subject.
type NATS struct {
	nc  *nats.Conn
	log *slog.Logger
}

// NewNATS creates a NATS-backed notifier.
func NewNATS(nc *nats.Conn, log *slog.Logger) *NATS {
	return &NATS{nc: nc, log: log}
}

func (n *NATS) Notify(ctx context.Context, recipientID string, note Notification) error {
	subject := "notify." + recipientID
	if err := natsutil.Publish(ctx, n.nc, subject, note); err != nil {
		n.log.Warn("notification publish failed", "subject", subject, "err", err)
		return err
	}
	return nil
}

// Limited wraps a Notifier with a token-bucket rate limit. Notifications
// over the limit are dropped, not queued: stale alerts are worse than
// missing ones.
type Limited struct {
	next    Notifier
	limiter *rate.Limiter
	dropped func()
}

// LimitedOption configures a Limited notifier.
type LimitedOption func(*Limited)

// WithDropHook calls fn whenever a notification is dropped.
func WithDropHook(fn func()) LimitedOption {
	return func(l *Limited) { l.dropped = fn }
}

// NewLimited allows limit notifications per second with the given burst.
func NewLimited(next Notifier, limit rate.Limit, burst int, opts ...LimitedOption) *Limited {
	l := &Limited{next: next, limiter: rate.NewLimiter(limit, burst)}
	for _, o := range opts {
		o(l)
	}
	return l
}

func (l *Limited) Notify(ctx context.Context, recipientID string, n Notification) error {
	if !l.limiter.Allow() {
		if l.dropped != nil {
			l.dropped()
		}
		return nil
	}
	return l.next.Notify(ctx, recipientID, n)
}
