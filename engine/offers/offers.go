// Package offers implements the intervention offer lifecycle: creation
// against a pending request, the acceptance transaction that must land on
// both the offer and its request, rejection, and cancellation.
package offers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sosmeca/sosmeca-server/engine/domain"
	"github.com/sosmeca/sosmeca-server/engine/geo"
	"github.com/sosmeca/sosmeca-server/pkg/fn"
	"github.com/sosmeca/sosmeca-server/pkg/metrics"
	"github.com/sosmeca/sosmeca-server/pkg/notify"
	"github.com/sosmeca/sosmeca-server/pkg/store"
)

// OfferStore is the persistence surface for offers.
type OfferStore interface {
	Get(ctx context.Context, id string) (domain.InterventionOffer, error)
	Create(ctx context.Context, o domain.InterventionOffer) (domain.InterventionOffer, error)
	Update(ctx context.Context, id string, fields map[string]any) error
	ByRequest(ctx context.Context, requestID string) ([]domain.InterventionOffer, error)
}

// RequestStore is the persistence surface for requests.
type RequestStore interface {
	Get(ctx context.Context, id string) (domain.AssistanceRequest, error)
	Update(ctx context.Context, id string, fields map[string]any) error
}

// Service drives offer and request status transitions. Stateless per
// session; all state lives in the backing collections.
type Service struct {
	offers   OfferStore
	requests RequestStore
	notifier notify.Notifier
	retry    fn.RetryOpts
	log      *slog.Logger

	sent         *metrics.Counter
	accepted     *metrics.Counter
	inconsistent *metrics.Counter
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier sends a fire-and-forget notification to the mechanic when
// their offer is accepted.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithMetrics registers lifecycle counters on the registry.
func WithMetrics(reg *metrics.Registry) Option {
	return func(s *Service) {
		s.sent = reg.Counter("offers_sent_total", "Offers created.")
		s.accepted = reg.Counter("offers_accepted_total", "Offers accepted.")
		s.inconsistent = reg.Counter("offer_acceptance_inconsistencies_total",
			"Acceptance transactions that updated the offer but not the request.")
	}
}

// WithRetry overrides the backoff used for the request-side write of the
// acceptance transaction.
func WithRetry(opts fn.RetryOpts) Option {
	return func(s *Service) { s.retry = opts }
}

// New creates an offer lifecycle service.
func New(offers OfferStore, requests RequestStore, log *slog.Logger, opts ...Option) *Service {
	s := &Service{offers: offers, requests: requests, retry: fn.DefaultRetry, log: log}
	for _, o := range opts {
		o(s)
	}
	return s
}

// CreateInput carries everything needed to open an offer.
type CreateInput struct {
	Request    domain.AssistanceRequest
	Mechanic   domain.MechanicProfile
	DistanceKm float64
	PriceMin   int
	PriceMax   int
	Message    string
}

// Create opens an offer in status sent against the given request and, when
// this is the request's first offer, advances the request from pending to
// offers_received.
func (s *Service) Create(ctx context.Context, in CreateInput) (domain.InterventionOffer, error) {
	var zero domain.InterventionOffer
	if in.Request.ID == "" {
		return zero, fmt.Errorf("%w: missing id", domain.ErrInvalidRequest)
	}
	if in.Request.Status.Terminal() {
		return zero, &domain.TransitionError{From: in.Request.Status, To: domain.RequestOffersReceived}
	}

	offer := domain.InterventionOffer{
		RequestID:        in.Request.ID,
		MechanicID:       in.Mechanic.ID,
		Mechanic:         in.Mechanic.Summary(),
		DistanceKm:       in.DistanceKm,
		EstimatedMinutes: geo.EstimateMinutes(in.DistanceKm),
		PriceMin:         in.PriceMin,
		PriceMax:         in.PriceMax,
		Message:          in.Message,
		Status:           domain.OfferSent,
	}

	created, err := s.offers.Create(ctx, offer)
	if err != nil {
		return zero, err
	}
	if s.sent != nil {
		s.sent.Inc()
	}

	if in.Request.Status == domain.RequestPending {
		if err := s.requests.Update(ctx, in.Request.ID,
			map[string]any{"status": domain.RequestOffersReceived}); err != nil {
			// The offer exists either way; the status catches up on the next one.
			s.log.Warn("request status flip failed", "request_id", in.Request.ID, "err", err)
		}
	}

	s.log.Info("offer sent",
		"offer_id", created.ID, "request_id", in.Request.ID,
		"mechanic_id", in.Mechanic.ID, "distance_km", in.DistanceKm)
	return created, nil
}

// Accept transitions the offer and its request to accepted. The two writes
// are logically one transaction: when the request-side write fails after the
// offer-side write landed, the divergence is reported as a
// *domain.ConsistencyError, never silently dropped.
//
// At-most-one-winner is enforced here: a request that already reads accepted
// (or beyond) refuses further acceptances with domain.ErrAlreadyAccepted.
func (s *Service) Accept(ctx context.Context, offerID, requestID string) error {
	offer, err := s.offers.Get(ctx, offerID)
	if err != nil {
		return err
	}
	if offer.RequestID != requestID {
		return fmt.Errorf("%w: offer %s targets request %s", domain.ErrOfferMismatch, offerID, offer.RequestID)
	}
	if offer.Status.Terminal() {
		return fmt.Errorf("%w: offer %s is %s", domain.ErrOfferTerminal, offerID, offer.Status)
	}

	req, err := s.requests.Get(ctx, requestID)
	if err != nil {
		return err
	}
	switch {
	case req.Status == domain.RequestAccepted || req.Status == domain.RequestInProgress || req.Status == domain.RequestCompleted:
		return fmt.Errorf("%w: request %s is %s", domain.ErrAlreadyAccepted, requestID, req.Status)
	case !req.Status.CanTransitionTo(domain.RequestAccepted):
		return &domain.TransitionError{From: req.Status, To: domain.RequestAccepted}
	}

	if err := s.offers.Update(ctx, offerID, map[string]any{"status": domain.OfferAccepted}); err != nil {
		return err
	}

	r := fn.Retry(ctx, s.retry, func(ctx context.Context) fn.Result[struct{}] {
		return fn.FromPair(struct{}{},
			s.requests.Update(ctx, requestID, map[string]any{"status": domain.RequestAccepted}))
	})
	if _, err := r.Unwrap(); err != nil {
		if s.inconsistent != nil {
			s.inconsistent.Inc()
		}
		cerr := &domain.ConsistencyError{OfferID: offerID, RequestID: requestID, Wrapped: err}
		s.log.Error("acceptance transaction diverged", "offer_id", offerID, "request_id", requestID, "err", err)
		return cerr
	}

	if s.accepted != nil {
		s.accepted.Inc()
	}
	s.log.Info("offer accepted", "offer_id", offerID, "request_id", requestID, "mechanic_id", offer.MechanicID)

	if s.notifier != nil {
		requester := req.Requester.FirstName
		if requester == "" {
			requester = "L'automobiliste"
		}
		// Delivery is the channel's problem; a lost notification is not an
		// acceptance failure.
		_ = s.notifier.Notify(ctx, offer.MechanicID, notify.OfferAccepted(requester))
	}
	return nil
}

// Reject marks a sent offer rejected.
func (s *Service) Reject(ctx context.Context, offerID string) error {
	offer, err := s.offers.Get(ctx, offerID)
	if err != nil {
		return err
	}
	if offer.Status.Terminal() {
		return fmt.Errorf("%w: offer %s is %s", domain.ErrOfferTerminal, offerID, offer.Status)
	}
	return s.offers.Update(ctx, offerID, map[string]any{"status": domain.OfferRejected})
}

// ListForRequest returns the request's offers sorted ascending by distance,
// regardless of creation order.
func (s *Service) ListForRequest(ctx context.Context, requestID string) ([]domain.InterventionOffer, error) {
	list, err := s.offers.ByRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	return fn.SortedBy(list, func(o domain.InterventionOffer) float64 { return o.DistanceKm }), nil
}

// CancelRequest cancels a request from any non-terminal state.
func (s *Service) CancelRequest(ctx context.Context, requestID string) error {
	req, err := s.requests.Get(ctx, requestID)
	if err != nil {
		return err
	}
	if !req.Status.CanTransitionTo(domain.RequestCancelled) {
		return &domain.TransitionError{From: req.Status, To: domain.RequestCancelled}
	}
	if err := s.requests.Update(ctx, requestID, map[string]any{"status": domain.RequestCancelled}); err != nil {
		return err
	}
	s.log.Info("request cancelled", "request_id", requestID)
	return nil
}

// StoreOffers adapts an offers collection to OfferStore.
type StoreOffers struct {
	col store.Collection[domain.InterventionOffer]
}

// NewStoreOffers wraps an offers collection.
func NewStoreOffers(col store.Collection[domain.InterventionOffer]) *StoreOffers {
	return &StoreOffers{col: col}
}

func (s *StoreOffers) Get(ctx context.Context, id string) (domain.InterventionOffer, error) {
	return s.col.Get(ctx, id)
}

func (s *StoreOffers) Create(ctx context.Context, o domain.InterventionOffer) (domain.InterventionOffer, error) {
	return s.col.Create(ctx, o)
}

func (s *StoreOffers) Update(ctx context.Context, id string, fields map[string]any) error {
	return s.col.Update(ctx, id, fields)
}

func (s *StoreOffers) ByRequest(ctx context.Context, requestID string) ([]domain.InterventionOffer, error) {
	return s.col.Query(ctx, store.Filter{"request_id": requestID})
}

// Subscribe streams full snapshots of a request's offers, sorted ascending
// by distance, replacing any previously delivered state.
func (s *StoreOffers) Subscribe(requestID string, snapshot func([]domain.InterventionOffer)) (store.CancelFunc, error) {
	return s.col.Subscribe(store.Filter{"request_id": requestID}, func(list []domain.InterventionOffer) {
		snapshot(fn.SortedBy(list, func(o domain.InterventionOffer) float64 { return o.DistanceKm }))
	})
}

// StoreRequests adapts a requests collection to RequestStore.
type StoreRequests struct {
	col store.Collection[domain.AssistanceRequest]
}

// NewStoreRequests wraps a requests collection.
func NewStoreRequests(col store.Collection[domain.AssistanceRequest]) *StoreRequests {
	return &StoreRequests{col: col}
}

func (s *StoreRequests) Get(ctx context.Context, id string) (domain.AssistanceRequest, error) {
	return s.col.Get(ctx, id)
}

func (s *StoreRequests) Update(ctx context.Context, id string, fields map[string]any) error {
	return s.col.Update(ctx, id, fields)
}
