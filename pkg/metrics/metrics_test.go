package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRender(t *testing.T) {
	reg := New()
	reg.Counter("requests_total", "Total requests.").Add(3)
	reg.Gauge("sessions_active", "Active sessions.").Set(2)
	h := reg.Histogram("latency_seconds", "Latency.", []float64{0.1, 1})
	h.Observe(0.05)
	h.Observe(0.5)
	h.Observe(5)

	out := reg.Render()
	for _, want := range []string{
		"# HELP requests_total Total requests.",
		"# TYPE requests_total counter",
		"requests_total 3",
		"sessions_active 2",
		`latency_seconds_bucket{le="0.1"} 1`,
		`latency_seconds_bucket{le="1"} 2`,
		`latency_seconds_bucket{le="+Inf"} 3`,
		"latency_seconds_count 3",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestCounterReuse(t *testing.T) {
	reg := New()
	a := reg.Counter("x_total", "")
	b := reg.Counter("x_total", "")
	if a != b {
		t.Error("same name must return the same counter")
	}
	a.Inc()
	if b.Value() != 1 {
		t.Errorf("value = %d", b.Value())
	}
}

func TestHandler(t *testing.T) {
	reg := New()
	reg.Counter("ok_total", "").Inc()

	rec := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 || !strings.Contains(rec.Body.String(), "ok_total 1") {
		t.Errorf("response = %d %q", rec.Code, rec.Body.String())
	}
}
