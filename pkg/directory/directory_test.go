package directory

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/sosmeca/sosmeca-server/engine/domain"
)

type fakeResult struct {
	records []*neo4j.Record
	idx     int
}

func (f *fakeResult) Next(context.Context) bool {
	if f.idx < len(f.records) {
		f.idx++
		return true
	}
	return false
}

func (f *fakeResult) Record() *neo4j.Record { return f.records[f.idx-1] }

type fakeRunner struct {
	result  *fakeResult
	err     error
	cyphers []string
	params  []map[string]any
}

func (f *fakeRunner) Run(_ context.Context, cypher string, params map[string]any) (result, error) {
	f.cyphers = append(f.cyphers, cypher)
	f.params = append(f.params, params)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeRunner) Close(context.Context) error { return nil }

func testDirectory(r *fakeRunner) *Directory {
	d := New(nil)
	d.newSession = func(context.Context) runner { return r }
	return d
}

func mechanicRecord(id string, available bool) *neo4j.Record {
	return &neo4j.Record{
		Keys: []string{"m"},
		Values: []any{neo4j.Node{Props: map[string]any{
			"id":           id,
			"first_name":   "Kodjo",
			"last_name":    "A.",
			"phone":        "+22890000000",
			"specialties":  []any{"moteur", "batterie"},
			"latitude":     6.1725,
			"longitude":    1.2314,
			"radius_km":    int64(15),
			"available":    available,
			"rating":       4.5,
			"review_count": int64(12),
		}}},
	}
}

func TestGet(t *testing.T) {
	r := &fakeRunner{result: &fakeResult{records: []*neo4j.Record{mechanicRecord("m1", true)}}}
	got, err := testDirectory(r).Get(context.Background(), "m1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != "m1" || got.FirstName != "Kodjo" || got.RadiusKm != 15 || got.ReviewCount != 12 {
		t.Errorf("profile = %+v", got)
	}
	if len(got.Specialties) != 2 || got.Specialties[0] != "moteur" {
		t.Errorf("specialties = %v", got.Specialties)
	}
}

func TestGet_NotFound(t *testing.T) {
	r := &fakeRunner{result: &fakeResult{}}
	if _, err := testDirectory(r).Get(context.Background(), "ghost"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAvailable(t *testing.T) {
	r := &fakeRunner{result: &fakeResult{records: []*neo4j.Record{
		mechanicRecord("m1", true), mechanicRecord("m2", true),
	}}}
	got, err := testDirectory(r).Available(context.Background())
	if err != nil {
		t.Fatalf("Available: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d profiles, want 2", len(got))
	}
	if !strings.Contains(r.cyphers[0], "available: true") {
		t.Errorf("cypher = %q, want availability match", r.cyphers[0])
	}
}

func TestUpsert(t *testing.T) {
	r := &fakeRunner{result: &fakeResult{}}
	p := domain.MechanicProfile{
		ID: "m1", FirstName: "Kodjo", Phone: "+22890000000",
		Latitude: 6.1725, Longitude: 1.2314, RadiusKm: 15,
	}
	if err := testDirectory(r).Upsert(context.Background(), p); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if !strings.Contains(r.cyphers[0], "MERGE") {
		t.Errorf("cypher = %q, want MERGE", r.cyphers[0])
	}
	props := r.params[0]["props"].(map[string]any)
	if props["radius_km"] != 15.0 {
		t.Errorf("props = %v", props)
	}
}

func TestUpsert_InvalidProfile(t *testing.T) {
	r := &fakeRunner{result: &fakeResult{}}
	err := testDirectory(r).Upsert(context.Background(), domain.MechanicProfile{ID: "m1"})
	if !errors.Is(err, domain.ErrInvalidProfile) {
		t.Fatalf("expected ErrInvalidProfile, got %v", err)
	}
	if len(r.cyphers) != 0 {
		t.Error("invalid profile must not reach the database")
	}
}

func TestSetAvailability(t *testing.T) {
	r := &fakeRunner{result: &fakeResult{records: []*neo4j.Record{
		{Keys: []string{"m.id"}, Values: []any{"m1"}},
	}}}
	if err := testDirectory(r).SetAvailability(context.Background(), "m1", false); err != nil {
		t.Fatalf("SetAvailability: %v", err)
	}
	if r.params[0]["available"] != false {
		t.Errorf("params = %v", r.params[0])
	}

	r = &fakeRunner{result: &fakeResult{}}
	if err := testDirectory(r).SetAvailability(context.Background(), "ghost", true); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
