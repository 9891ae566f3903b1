package matching

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sosmeca/sosmeca-server/engine/domain"
	"github.com/sosmeca/sosmeca-server/pkg/fn"
	"github.com/sosmeca/sosmeca-server/pkg/store"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// Seed profiles mirror a handful of Lomé workshops around the request point.
func seedMechanics() []domain.MechanicProfile {
	return []domain.MechanicProfile{
		{ID: "m1", FirstName: "Kodjo", Phone: "x", Latitude: 6.1725, Longitude: 1.2314, RadiusKm: 15, Available: true, Rating: 4.5},
		{ID: "m2", FirstName: "Afi", Phone: "x", Latitude: 6.1650, Longitude: 1.2250, RadiusKm: 20, Available: true, Rating: 4.8},
		{ID: "m3", FirstName: "Yao", Phone: "x", Latitude: 6.1800, Longitude: 1.2400, RadiusKm: 10, Available: true, Rating: 4.2},
		// Close by, but declares a radius too small to reach the requester.
		{ID: "m4", FirstName: "Sena", Phone: "x", Latitude: 6.2100, Longitude: 1.2800, RadiusKm: 1, Available: true, Rating: 4.6},
	}
}

type fakeSource struct {
	profiles []domain.MechanicProfile
	err      error
}

func (f *fakeSource) Available(context.Context) ([]domain.MechanicProfile, error) {
	return f.profiles, f.err
}

type fakeRequests struct {
	created []domain.AssistanceRequest
	err     error
}

func (f *fakeRequests) Create(_ context.Context, r domain.AssistanceRequest) (domain.AssistanceRequest, error) {
	if f.err != nil {
		return domain.AssistanceRequest{}, f.err
	}
	r.ID = "req-1"
	f.created = append(f.created, r)
	return r, nil
}

var requestLoc = domain.Coordinates{Latitude: 6.1700, Longitude: 1.2300}

func TestFindCandidates_SortedAndWithinRadius(t *testing.T) {
	svc := New(&fakeSource{profiles: seedMechanics()}, &fakeRequests{}, discard)

	got, err := svc.FindCandidates(context.Background(), &requestLoc)
	if err != nil {
		t.Fatalf("FindCandidates: %v", err)
	}
	for i, c := range got {
		if c.DistanceKm > c.Mechanic.RadiusKm {
			t.Errorf("candidate %s outside own radius: %.1f > %.1f", c.Mechanic.ID, c.DistanceKm, c.Mechanic.RadiusKm)
		}
		if i > 0 && got[i-1].DistanceKm > c.DistanceKm {
			t.Errorf("not sorted ascending at %d: %v", i, got)
		}
	}
	for _, c := range got {
		if c.Mechanic.ID == "m4" {
			t.Error("m4 declares a 1 km radius and must be filtered out")
		}
	}
	if len(got) != 3 {
		t.Errorf("got %d candidates, want 3", len(got))
	}
}

func TestFindCandidates_NilLocation(t *testing.T) {
	src := &fakeSource{profiles: seedMechanics()}
	svc := New(src, &fakeRequests{}, discard)

	got, err := svc.FindCandidates(context.Background(), nil)
	if !errors.Is(err, domain.ErrNoLocation) {
		t.Fatalf("expected ErrNoLocation, got %v", err)
	}
	if got != nil {
		t.Errorf("discovery must not run without a location, got %v", got)
	}
}

func TestFindCandidates_SourceError(t *testing.T) {
	svc := New(&fakeSource{err: errors.New("store down")}, &fakeRequests{}, discard)
	if _, err := svc.FindCandidates(context.Background(), &requestLoc); err == nil {
		t.Fatal("expected error from source")
	}
}

func broadcastInput() BroadcastInput {
	return BroadcastInput{
		RequesterID: "user-1",
		Requester:   domain.RequesterInfo{FirstName: "Ama", Phone: "+22891000000"},
		Diagnostic: domain.DiagnosticSnapshot{
			Symptom: "Batterie", SubCategory: "Batterie déchargée", Severity: domain.SeverityModerate,
		},
		Location: &requestLoc,
		Address:  "Boulevard du Mono, Lomé",
	}
}

func TestBroadcast_CreatesPendingRequest(t *testing.T) {
	reqs := &fakeRequests{}
	svc := New(&fakeSource{profiles: seedMechanics()}, reqs, discard)

	out, err := svc.Broadcast(context.Background(), broadcastInput())
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if out.RequestID != "req-1" || out.RequestErr != nil {
		t.Errorf("request outcome = (%q, %v)", out.RequestID, out.RequestErr)
	}
	if len(reqs.created) != 1 || reqs.created[0].Status != domain.RequestPending {
		t.Errorf("created = %+v, want one pending request", reqs.created)
	}
	if len(out.Candidates) != 3 {
		t.Errorf("candidates = %d, want 3", len(out.Candidates))
	}
}

func TestBroadcast_RequestFailureStillDiscovers(t *testing.T) {
	reqs := &fakeRequests{err: errors.New("write refused")}
	svc := New(&fakeSource{profiles: seedMechanics()}, reqs, discard,
		WithRetry(fn.RetryOpts{MaxAttempts: 2, InitialWait: time.Millisecond, MaxWait: time.Millisecond}))

	out, err := svc.Broadcast(context.Background(), broadcastInput())
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if out.RequestErr == nil {
		t.Error("expected RequestErr to report the failed write")
	}
	if len(out.Candidates) != 3 {
		t.Errorf("discovery must proceed despite request failure, got %d candidates", len(out.Candidates))
	}
}

func TestBroadcast_NoLocation(t *testing.T) {
	in := broadcastInput()
	in.Location = nil
	svc := New(&fakeSource{profiles: seedMechanics()}, &fakeRequests{}, discard)
	if _, err := svc.Broadcast(context.Background(), in); !errors.Is(err, domain.ErrNoLocation) {
		t.Fatalf("expected ErrNoLocation, got %v", err)
	}
}

func TestRequestsWithin(t *testing.T) {
	me := domain.MechanicProfile{ID: "m1", Latitude: 6.1725, Longitude: 1.2314, RadiusKm: 5}
	reqs := []domain.AssistanceRequest{
		{ID: "far", Latitude: 6.60, Longitude: 1.60},
		{ID: "near", Latitude: 6.1700, Longitude: 1.2300},
		{ID: "mid", Latitude: 6.1900, Longitude: 1.2500},
	}
	got := RequestsWithin(me, reqs)
	if len(got) != 2 {
		t.Fatalf("got %d nearby requests, want 2: %+v", len(got), got)
	}
	if got[0].Request.ID != "near" || got[1].Request.ID != "mid" {
		t.Errorf("order = %s, %s; want near, mid", got[0].Request.ID, got[1].Request.ID)
	}
}

func TestStoreSource_QueriesAvailableOnly(t *testing.T) {
	col := store.NewMemory[domain.MechanicProfile](store.Mechanics)
	ctx := context.Background()
	for _, m := range seedMechanics() {
		if _, err := col.Create(ctx, m); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := col.Create(ctx, domain.MechanicProfile{
		ID: "m5", FirstName: "Edem", Phone: "x", Latitude: 6.17, Longitude: 1.23, RadiusKm: 30, Available: false,
	}); err != nil {
		t.Fatal(err)
	}

	got, err := NewStoreSource(col).Available(ctx)
	if err != nil {
		t.Fatalf("Available: %v", err)
	}
	if len(got) != 4 {
		t.Errorf("got %d profiles, want the 4 available ones", len(got))
	}
	for _, m := range got {
		if !m.Available {
			t.Errorf("unavailable mechanic %s leaked into results", m.ID)
		}
	}
}
