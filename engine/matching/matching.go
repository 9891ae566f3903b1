// Package matching ranks available mechanics against a breakdown location
// and opens the assistance request that mechanics respond to.
package matching

import (
	"context"
	"log/slog"

	"github.com/sosmeca/sosmeca-server/engine/domain"
	"github.com/sosmeca/sosmeca-server/engine/geo"
	"github.com/sosmeca/sosmeca-server/pkg/fn"
	"github.com/sosmeca/sosmeca-server/pkg/metrics"
	"github.com/sosmeca/sosmeca-server/pkg/resilience"
	"github.com/sosmeca/sosmeca-server/pkg/store"
)

// MechanicSource lists mechanics currently flagged available.
type MechanicSource interface {
	Available(ctx context.Context) ([]domain.MechanicProfile, error)
}

// RequestWriter persists new assistance requests.
type RequestWriter interface {
	Create(ctx context.Context, req domain.AssistanceRequest) (domain.AssistanceRequest, error)
}

// Candidate is one ranked mechanic with the distance to the request location.
type Candidate struct {
	Mechanic   domain.MechanicProfile `json:"mechanic"`
	DistanceKm float64                `json:"distance_km"`
}

// Service implements candidate discovery. It is stateless per session; each
// call produces a fresh ranking and callers re-invoke to refresh.
type Service struct {
	mechanics MechanicSource
	requests  RequestWriter
	breaker   *resilience.Breaker
	retry     fn.RetryOpts
	log       *slog.Logger

	found    *metrics.Histogram
	searches *metrics.Counter
	created  *metrics.Counter
}

// Option configures a Service.
type Option func(*Service)

// WithBreaker protects mechanic fetches with a circuit breaker.
func WithBreaker(b *resilience.Breaker) Option {
	return func(s *Service) { s.breaker = b }
}

// WithMetrics registers matching metrics on the registry.
func WithMetrics(reg *metrics.Registry) Option {
	return func(s *Service) {
		s.searches = reg.Counter("matching_searches_total", "Candidate discovery invocations.")
		s.created = reg.Counter("matching_requests_created_total", "Assistance requests opened.")
		s.found = reg.Histogram("matching_candidates_found", "Candidates returned per search.",
			[]float64{0, 1, 2, 3, 5, 8, 13, 21})
	}
}

// WithRetry overrides the backoff used for the request write.
func WithRetry(opts fn.RetryOpts) Option {
	return func(s *Service) { s.retry = opts }
}

// New creates a matching service.
func New(mechanics MechanicSource, requests RequestWriter, log *slog.Logger, opts ...Option) *Service {
	s := &Service{mechanics: mechanics, requests: requests, retry: fn.DefaultRetry, log: log}
	for _, o := range opts {
		o(s)
	}
	return s
}

// FindCandidates returns available mechanics able to reach loc, sorted
// ascending by distance. Only mechanics whose declared intervention radius
// covers the computed distance are kept; the cutoff is the mechanic's, not
// the requester's. Ties keep the fetch order (stable sort).
//
// A nil location is a synchronous failure: no discovery runs and
// domain.ErrNoLocation is returned.
func (s *Service) FindCandidates(ctx context.Context, loc *domain.Coordinates) ([]Candidate, error) {
	if loc == nil {
		return nil, domain.ErrNoLocation
	}
	if err := domain.ValidateCoordinates(*loc); err != nil {
		return nil, err
	}
	if s.searches != nil {
		s.searches.Inc()
	}

	var profiles []domain.MechanicProfile
	fetch := func(ctx context.Context) error {
		var err error
		profiles, err = s.mechanics.Available(ctx)
		return err
	}
	var err error
	if s.breaker != nil {
		err = s.breaker.Call(ctx, fetch)
	} else {
		err = fetch(ctx)
	}
	if err != nil {
		return nil, err
	}

	candidates := fn.Map(profiles, func(m domain.MechanicProfile) Candidate {
		return Candidate{Mechanic: m, DistanceKm: geo.DistanceKm(*loc, m.Location())}
	})
	candidates = fn.Filter(candidates, func(c Candidate) bool {
		return c.DistanceKm <= c.Mechanic.RadiusKm
	})
	candidates = fn.SortedBy(candidates, func(c Candidate) float64 { return c.DistanceKm })

	if s.found != nil {
		s.found.Observe(float64(len(candidates)))
	}
	s.log.Debug("candidate discovery",
		"available", len(profiles), "in_range", len(candidates),
		"lat", loc.Latitude, "lon", loc.Longitude)
	return candidates, nil
}

// BroadcastInput opens a request and searches for mechanics in one step.
type BroadcastInput struct {
	RequesterID string
	Requester   domain.RequesterInfo
	Diagnostic  domain.DiagnosticSnapshot
	Location    *domain.Coordinates
	Address     string
}

// BroadcastResult carries the outcome of a broadcast. Request creation and
// candidate discovery are independent: RequestErr is set when the request
// write failed, but Candidates is still populated.
type BroadcastResult struct {
	RequestID  string
	RequestErr error
	Candidates []Candidate
}

// Broadcast creates a pending assistance request and discovers candidates
// concurrently. Discovery failures are returned as the error; a failed
// request write is reported in the result and does not block discovery.
func (s *Service) Broadcast(ctx context.Context, in BroadcastInput) (BroadcastResult, error) {
	if in.Location == nil {
		return BroadcastResult{}, domain.ErrNoLocation
	}

	req := domain.AssistanceRequest{
		RequesterID: in.RequesterID,
		Requester:   in.Requester,
		Status:      domain.RequestPending,
		Diagnostic:  in.Diagnostic,
		Latitude:    in.Location.Latitude,
		Longitude:   in.Location.Longitude,
		Address:     in.Address,
	}
	if err := domain.ValidateRequest(req); err != nil {
		return BroadcastResult{}, err
	}

	type createOut struct {
		id  string
		err error
	}
	createCh := make(chan createOut, 1)
	go func() {
		r := fn.Retry(ctx, s.retry, func(ctx context.Context) fn.Result[domain.AssistanceRequest] {
			return fn.FromPair(s.requests.Create(ctx, req))
		})
		created, err := r.Unwrap()
		createCh <- createOut{id: created.ID, err: err}
	}()

	candidates, err := s.FindCandidates(ctx, in.Location)
	out := BroadcastResult{Candidates: candidates}

	create := <-createCh
	if create.err != nil {
		s.log.Error("request creation failed", "err", create.err)
		out.RequestErr = create.err
	} else {
		out.RequestID = create.id
		if s.created != nil {
			s.created.Inc()
		}
		s.log.Info("assistance request opened",
			"request_id", create.id, "symptom", in.Diagnostic.Symptom, "severity", in.Diagnostic.Severity)
	}
	if err != nil {
		return out, err
	}
	return out, nil
}

// NearbyRequest is a pending request annotated with the distance from a
// mechanic's position.
type NearbyRequest struct {
	Request    domain.AssistanceRequest `json:"request"`
	DistanceKm float64                  `json:"distance_km"`
}

// RequestsWithin filters requests down to those inside the mechanic's own
// intervention radius, sorted ascending by distance. Pure function used by
// the mechanic-side dispatcher feed.
func RequestsWithin(m domain.MechanicProfile, requests []domain.AssistanceRequest) []NearbyRequest {
	nearby := fn.FilterMap(requests, func(r domain.AssistanceRequest) (NearbyRequest, bool) {
		d := geo.DistanceKm(m.Location(), r.Location())
		return NearbyRequest{Request: r, DistanceKm: d}, d <= m.RadiusKm
	})
	return fn.SortedBy(nearby, func(n NearbyRequest) float64 { return n.DistanceKm })
}

// StoreSource adapts a mechanics collection to the MechanicSource interface.
type StoreSource struct {
	col store.Collection[domain.MechanicProfile]
}

// NewStoreSource wraps a mechanics collection.
func NewStoreSource(col store.Collection[domain.MechanicProfile]) *StoreSource {
	return &StoreSource{col: col}
}

// Available queries profiles flagged available.
func (s *StoreSource) Available(ctx context.Context) ([]domain.MechanicProfile, error) {
	return s.col.Query(ctx, store.Filter{"available": true})
}

// StoreRequests adapts a requests collection to the RequestWriter interface.
type StoreRequests struct {
	col store.Collection[domain.AssistanceRequest]
}

// NewStoreRequests wraps a requests collection.
func NewStoreRequests(col store.Collection[domain.AssistanceRequest]) *StoreRequests {
	return &StoreRequests{col: col}
}

// Create persists a new request.
func (s *StoreRequests) Create(ctx context.Context, req domain.AssistanceRequest) (domain.AssistanceRequest, error) {
	return s.col.Create(ctx, req)
}
