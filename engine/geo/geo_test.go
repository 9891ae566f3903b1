package geo

import (
	"testing"

	"github.com/sosmeca/sosmeca-server/engine/domain"
)

var (
	lomePort   = domain.Coordinates{Latitude: 6.1725, Longitude: 1.2314}
	lomeCentre = domain.Coordinates{Latitude: 6.1650, Longitude: 1.2250}
)

func TestDistanceKm_SamePoint(t *testing.T) {
	if d := DistanceKm(lomePort, lomePort); d != 0 {
		t.Errorf("distance to self = %v, want 0", d)
	}
}

func TestDistanceKm_Symmetry(t *testing.T) {
	if ab, ba := DistanceKm(lomePort, lomeCentre), DistanceKm(lomeCentre, lomePort); ab != ba {
		t.Errorf("asymmetric distance: %v vs %v", ab, ba)
	}
}

func TestDistanceKm_Lome(t *testing.T) {
	// Two points roughly a kilometre apart in Lomé.
	if d := DistanceKm(lomePort, lomeCentre); d != 1.1 {
		t.Errorf("DistanceKm = %v, want 1.1", d)
	}
}

func TestDistanceKm_Rounding(t *testing.T) {
	a := domain.Coordinates{Latitude: 6.1725, Longitude: 1.2314}
	b := domain.Coordinates{Latitude: 6.1900, Longitude: 1.2314}
	d := DistanceKm(a, b)
	if d*10 != float64(int(d*10)) {
		t.Errorf("distance %v not rounded to one decimal", d)
	}
}

func TestEstimateMinutes(t *testing.T) {
	cases := []struct {
		km   float64
		want int
	}{
		{0, 0},
		{30, 60},
		{1, 2},
		{7.5, 15},
		{0.4, 1},
	}
	for _, tc := range cases {
		if got := EstimateMinutes(tc.km); got != tc.want {
			t.Errorf("EstimateMinutes(%v) = %d, want %d", tc.km, got, tc.want)
		}
	}
}

func TestFormatDistance(t *testing.T) {
	cases := []struct {
		km   float64
		want string
	}{
		{0.5, "500 m"},
		{1.5, "1.5 km"},
		{0.05, "50 m"},
		{12, "12.0 km"},
	}
	for _, tc := range cases {
		if got := FormatDistance(tc.km); got != tc.want {
			t.Errorf("FormatDistance(%v) = %q, want %q", tc.km, got, tc.want)
		}
	}
}

func TestFormatMinutes(t *testing.T) {
	cases := []struct {
		min  int
		want string
	}{
		{0, "0 min"},
		{45, "45 min"},
		{60, "1h"},
		{90, "1h30"},
		{125, "2h05"},
	}
	for _, tc := range cases {
		if got := FormatMinutes(tc.min); got != tc.want {
			t.Errorf("FormatMinutes(%d) = %q, want %q", tc.min, got, tc.want)
		}
	}
}
