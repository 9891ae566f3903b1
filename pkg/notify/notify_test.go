package notify

import (
	"context"
	"strings"
	"testing"

	"golang.org/x/time/rate"
)

type recorder struct {
	recipients []string
	notes      []Notification
}

func (r *recorder) Notify(_ context.Context, recipientID string, n Notification) error {
	r.recipients = append(r.recipients, recipientID)
	r.notes = append(r.notes, n)
	return nil
}

func TestRequestNearby(t *testing.T) {
	n := RequestNearby("req-1", "Batterie", 2.3)
	if n.Title != "🚨 Nouvelle demande !" {
		t.Errorf("title = %q", n.Title)
	}
	if n.Body != "Batterie à 2.3 km de vous" {
		t.Errorf("body = %q", n.Body)
	}
	if n.Data["request_id"] != "req-1" {
		t.Errorf("data = %v", n.Data)
	}
}

func TestOfferAccepted(t *testing.T) {
	n := OfferAccepted("Ama")
	if !strings.Contains(n.Body, "Ama") {
		t.Errorf("body = %q, want requester name", n.Body)
	}
}

func TestLimited_DropsOverBurst(t *testing.T) {
	rec := &recorder{}
	drops := 0
	l := NewLimited(rec, rate.Limit(0.001), 2, WithDropHook(func() { drops++ }))

	for i := 0; i < 5; i++ {
		if err := l.Notify(context.Background(), "m1", OfferAccepted("Ama")); err != nil {
			t.Fatalf("Notify: %v", err)
		}
	}
	if len(rec.notes) != 2 {
		t.Errorf("delivered = %d, want burst of 2", len(rec.notes))
	}
	if drops != 3 {
		t.Errorf("drops = %d, want 3", drops)
	}
}

func TestLimited_PassesUnderLimit(t *testing.T) {
	rec := &recorder{}
	l := NewLimited(rec, rate.Inf, 1)
	for i := 0; i < 10; i++ {
		_ = l.Notify(context.Background(), "m1", RequestNearby("r", "Pneu", 1))
	}
	if len(rec.notes) != 10 {
		t.Errorf("delivered = %d, want all 10", len(rec.notes))
	}
}
