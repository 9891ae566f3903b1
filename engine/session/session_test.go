package session

import (
	"errors"
	"testing"

	"github.com/sosmeca/sosmeca-server/engine/diagnosis"
	"github.com/sosmeca/sosmeca-server/engine/domain"
)

var lome = domain.Coordinates{Latitude: 6.1725, Longitude: 1.2314}

func offer(id string, km float64) domain.InterventionOffer {
	return domain.InterventionOffer{ID: id, RequestID: "req-1", DistanceKm: km, Status: domain.OfferSent}
}

// Drives a fresh session through the battery scenario up to the given step.
func advanceTo(t *testing.T, target Step) *State {
	t.Helper()
	s := New()
	if target == StepIdle {
		return s
	}
	if err := s.StartDiagnostic(); err != nil {
		t.Fatal(err)
	}
	if target == StepDiagnostic {
		return s
	}
	for _, opt := range []string{"non", "batterie", "rien"} {
		if _, err := s.Answer(opt); err != nil {
			t.Fatalf("answer %q: %v", opt, err)
		}
	}
	if target == StepLocation {
		return s
	}
	if err := s.SetLocation(lome, "Boulevard du Mono, Lomé"); err != nil {
		t.Fatal(err)
	}
	if err := s.AttachRequest("req-1"); err != nil {
		t.Fatal(err)
	}
	if target == StepBroadcasting {
		return s
	}
	s.OffersSnapshot([]domain.InterventionOffer{offer("o1", 0.8)})
	if target == StepOffers {
		return s
	}
	if err := s.SelectOffer(offer("o1", 0.8)); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestFlow_HappyPath(t *testing.T) {
	s := advanceTo(t, StepConnected)
	if s.Step() != StepConnected {
		t.Fatalf("step = %s, want connected", s.Step())
	}
	if r := s.Result(); r == nil || r.Symptom != "Batterie" {
		t.Errorf("result = %+v", r)
	}
	if s.RequestID() != "req-1" {
		t.Errorf("request id = %q", s.RequestID())
	}
	if sel := s.Selected(); sel == nil || sel.ID != "o1" {
		t.Errorf("selected = %+v", sel)
	}
}

func TestAnswer_FollowsGraphThenResolves(t *testing.T) {
	s := advanceTo(t, StepDiagnostic)

	q, ok := s.CurrentQuestion()
	if !ok || q.ID != diagnosis.RootQuestionID {
		t.Fatalf("current question = %+v", q)
	}

	done, err := s.Answer("non")
	if err != nil || done {
		t.Fatalf("first answer: done=%v err=%v", done, err)
	}
	if _, err := s.Answer("batterie"); err != nil {
		t.Fatal(err)
	}
	done, err = s.Answer("rien")
	if err != nil || !done {
		t.Fatalf("terminal answer: done=%v err=%v", done, err)
	}
	if s.Step() != StepLocation {
		t.Errorf("step = %s, want location", s.Step())
	}
	if _, ok := s.CurrentQuestion(); ok {
		t.Error("no current question after the questionnaire ends")
	}
}

func TestStepGuards(t *testing.T) {
	s := New()
	if _, err := s.Answer("non"); !errors.Is(err, ErrBadStep) {
		t.Errorf("answer while idle: %v", err)
	}
	if err := s.SetLocation(lome, ""); !errors.Is(err, ErrBadStep) {
		t.Errorf("set location while idle: %v", err)
	}
	if err := s.SelectOffer(offer("o1", 1)); !errors.Is(err, ErrBadStep) {
		t.Errorf("select while idle: %v", err)
	}

	s = advanceTo(t, StepConnected)
	if err := s.StartDiagnostic(); !errors.Is(err, ErrBadStep) {
		t.Errorf("restart without reset: %v", err)
	}
}

func TestSetLocation_RejectsInvalidCoordinates(t *testing.T) {
	s := advanceTo(t, StepLocation)
	err := s.SetLocation(domain.Coordinates{Latitude: 99, Longitude: 0}, "")
	if !errors.Is(err, domain.ErrInvalidCoordinate) {
		t.Fatalf("expected ErrInvalidCoordinate, got %v", err)
	}
	if s.Step() != StepLocation {
		t.Errorf("step moved on invalid input: %s", s.Step())
	}
}

func TestOffersSnapshot_ReplacesState(t *testing.T) {
	s := advanceTo(t, StepBroadcasting)

	// Empty snapshots while broadcasting are the no-offers-yet steady state.
	s.OffersSnapshot(nil)
	if s.Step() != StepBroadcasting {
		t.Fatalf("step = %s, want broadcasting", s.Step())
	}

	s.OffersSnapshot([]domain.InterventionOffer{offer("o1", 0.8)})
	if s.Step() != StepOffers {
		t.Fatalf("step = %s, want offers", s.Step())
	}

	s.OffersSnapshot([]domain.InterventionOffer{offer("o2", 0.3), offer("o1", 0.8)})
	got := s.Offers()
	if len(got) != 2 || got[0].ID != "o2" {
		t.Errorf("snapshot not replaced: %+v", got)
	}
}

func TestOffersSnapshot_DroppedAfterConnection(t *testing.T) {
	s := advanceTo(t, StepConnected)
	s.OffersSnapshot([]domain.InterventionOffer{offer("o9", 0.1)})
	got := s.Offers()
	for _, o := range got {
		if o.ID == "o9" {
			t.Error("late snapshot mutated a connected session")
		}
	}
}

func TestReset_FromAnyStep(t *testing.T) {
	for _, step := range []Step{StepIdle, StepDiagnostic, StepLocation, StepBroadcasting, StepOffers, StepConnected} {
		t.Run(string(step), func(t *testing.T) {
			s := advanceTo(t, step)
			s.Reset()

			if s.Step() != StepIdle {
				t.Errorf("step = %s, want idle", s.Step())
			}
			if s.Result() != nil || s.Selected() != nil {
				t.Error("diagnostic state survived reset")
			}
			if loc, addr := s.Location(); loc != nil || addr != "" {
				t.Error("location survived reset")
			}
			if s.RequestID() != "" || len(s.Offers()) != 0 {
				t.Error("request state survived reset")
			}
			if err := s.StartDiagnostic(); err != nil {
				t.Errorf("fresh flow after reset: %v", err)
			}
		})
	}
}
