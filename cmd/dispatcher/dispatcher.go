package main

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/sosmeca/sosmeca-server/engine/domain"
	"github.com/sosmeca/sosmeca-server/engine/matching"
	"github.com/sosmeca/sosmeca-server/engine/offers"
	"github.com/sosmeca/sosmeca-server/pkg/fn"
	"github.com/sosmeca/sosmeca-server/pkg/metrics"
	"github.com/sosmeca/sosmeca-server/pkg/notify"
	"github.com/sosmeca/sosmeca-server/pkg/store"
)

type dispatcherDeps struct {
	mechanics store.Collection[domain.MechanicProfile]
	requests  store.Collection[domain.AssistanceRequest]
	offers    *offers.Service
	notifier  notify.Notifier
	log       *slog.Logger
	reg       *metrics.Registry
}

type dispatcher struct {
	deps    dispatcherDeps
	workers int

	demo      bool
	demoDelay func() time.Duration

	fanouts *metrics.Counter
	alerts  *metrics.Counter

	mu      sync.Mutex
	handled map[string]bool
	wg      sync.WaitGroup
}

func newDispatcher(deps dispatcherDeps, cfg Config) *dispatcher {
	d := &dispatcher{
		deps:    deps,
		workers: cfg.Workers,
		demo:    cfg.DemoMode,
		handled: make(map[string]bool),
	}
	if d.workers <= 0 {
		d.workers = 8
	}
	min, max := cfg.DemoMinDelay, cfg.DemoMaxDelay
	if max < min {
		max = min
	}
	d.demoDelay = func() time.Duration {
		if max == min {
			return min
		}
		return min + rand.N(max-min)
	}
	if deps.reg != nil {
		d.fanouts = deps.reg.Counter("dispatcher_fanouts_total", "Pending requests fanned out to mechanics.")
		d.alerts = deps.reg.Counter("dispatcher_alerts_total", "Nearby-request alerts sent.")
	}
	return d
}

// run subscribes to the pending-request feed and blocks until ctx is done.
func (d *dispatcher) run(ctx context.Context) error {
	cancel, err := d.deps.requests.Subscribe(
		store.Filter{"status": domain.RequestPending},
		func(pending []domain.AssistanceRequest) { d.onSnapshot(ctx, pending) },
	)
	if err != nil {
		return err
	}
	defer cancel()

	<-ctx.Done()
	d.wg.Wait()
	return nil
}

// onSnapshot fans out every request not seen before. Snapshots replay the
// whole pending set, so the handled map keeps re-deliveries idempotent.
func (d *dispatcher) onSnapshot(ctx context.Context, pending []domain.AssistanceRequest) {
	var fresh []domain.AssistanceRequest
	d.mu.Lock()
	for _, req := range pending {
		if !d.handled[req.ID] {
			d.handled[req.ID] = true
			fresh = append(fresh, req)
		}
	}
	d.mu.Unlock()

	for _, req := range fresh {
		d.fanOut(ctx, req)
	}
}

func (d *dispatcher) fanOut(ctx context.Context, req domain.AssistanceRequest) {
	mechanics, err := d.deps.mechanics.Query(ctx, store.Filter{"available": true})
	if err != nil {
		d.deps.log.Error("mechanic query failed", "request_id", req.ID, "err", err)
		return
	}
	if d.fanouts != nil {
		d.fanouts.Inc()
	}

	fn.ForEachPar(mechanics, d.workers, func(m domain.MechanicProfile) {
		nearby := matching.RequestsWithin(m, []domain.AssistanceRequest{req})
		if len(nearby) == 0 {
			return
		}
		distance := nearby[0].DistanceKm

		if d.deps.notifier != nil {
			if err := d.deps.notifier.Notify(ctx, m.ID,
				notify.RequestNearby(req.ID, req.Diagnostic.Symptom, distance)); err == nil && d.alerts != nil {
				d.alerts.Inc()
			}
		}

		if d.demo {
			d.wg.Add(1)
			go d.demoOffer(ctx, m, req, distance)
		}
	})

	d.deps.log.Info("request fanned out",
		"request_id", req.ID, "symptom", req.Diagnostic.Symptom, "mechanics", len(mechanics))
}

// demoOffer files a synthetic offer after a human-looking delay.
func (d *dispatcher) demoOffer(ctx context.Context, m domain.MechanicProfile, req domain.AssistanceRequest, distance float64) {
	defer d.wg.Done()

	select {
	case <-ctx.Done():
		return
	case <-time.After(d.demoDelay()):
	}

	base := 5000 + rand.N(5000)
	_, err := d.deps.offers.Create(ctx, offers.CreateInput{
		Request:    req,
		Mechanic:   m,
		DistanceKm: distance,
		PriceMin:   base,
		PriceMax:   base * 3,
		Message:    "Je peux intervenir rapidement.",
	})
	if err != nil {
		d.deps.log.Warn("demo offer failed", "request_id", req.ID, "mechanic_id", m.ID, "err", err)
	}
}
