package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCounterAndGauge(t *testing.T) {
	r := New()

	c := r.Counter("requests_total", "Total requests.")
	c.Inc()
	c.Add(2)
	if c.Value() != 3 {
		t.Errorf("counter = %d, want 3", c.Value())
	}
	if again := r.Counter("requests_total", ""); again != c {
		t.Error("same name must return the same counter")
	}

	g := r.Gauge("entries", "Current entries.")
	g.Set(10)
	g.Inc()
	g.Dec()
	g.Dec()
	if g.Value() != 9 {
		t.Errorf("gauge = %d, want 9", g.Value())
	}
}

func TestRender(t *testing.T) {
	r := New()
	r.Counter("hits_total", "Cache hits.").Inc()
	r.Gauge("entries", "").Set(5)

	h := r.Histogram("latency_seconds", "Latency.", []float64{0.1, 1})
	h.Observe(0.05)
	h.Observe(0.5)
	h.Observe(2) // above the top bound, only counted in +Inf

	out := r.Render()
	for _, want := range []string{
		"# HELP hits_total Cache hits.",
		"# TYPE hits_total counter",
		"hits_total 1",
		"# TYPE entries gauge",
		"entries 5",
		"# TYPE latency_seconds histogram",
		`latency_seconds_bucket{le="0.1"} 1`,
		`latency_seconds_bucket{le="1"} 2`,
		`latency_seconds_bucket{le="+Inf"} 3`,
		"latency_seconds_count 3",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("render missing %q:\n%s", want, out)
		}
	}
	// Gauges registered without help text get no HELP line.
	if strings.Contains(out, "# HELP entries") {
		t.Errorf("unexpected HELP line for helpless metric:\n%s", out)
	}
}

func TestRender_StableOrder(t *testing.T) {
	r := New()
	r.Counter("b_total", "")
	r.Counter("a_total", "")

	out := r.Render()
	if strings.Index(out, "b_total") > strings.Index(out, "a_total") {
		t.Errorf("metrics should render in registration order:\n%s", out)
	}
}

func TestHandler(t *testing.T) {
	r := New()
	r.Counter("up_total", "").Inc()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("content type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "up_total 1") {
		t.Errorf("body missing metric:\n%s", rec.Body.String())
	}
}
