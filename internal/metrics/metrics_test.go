package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCounter(t *testing.T) {
	c := NewCounter("test_total", "A test counter")
	if c.Value() != 0 {
		t.Errorf("initial value = %d", c.Value())
	}
	c.Inc()
	c.Add(4)
	if c.Value() != 5 {
		t.Errorf("value = %d, want 5", c.Value())
	}
	if c.Type() != TypeCounter {
		t.Errorf("type = %v", c.Type())
	}
}

func TestGauge(t *testing.T) {
	g := NewGauge("test_gauge", "A test gauge")
	g.Set(10)
	g.Inc()
	g.Dec()
	g.Dec()
	if g.Value() != 9 {
		t.Errorf("value = %d, want 9", g.Value())
	}
	if g.Type() != TypeGauge {
		t.Errorf("type = %v", g.Type())
	}
}

func TestRegistryRendersPrometheusText(t *testing.T) {
	r := NewRegistry()
	c := NewCounter("remap_events_total", "Events seen")
	c.Add(42)
	g := NewGauge("remap_devices", "Devices held")
	g.Set(3)
	r.Register(c)
	r.Register(g)

	var sb strings.Builder
	r.WriteTo(&sb)
	out := sb.String()

	for _, want := range []string{
		"# HELP remap_devices Devices held",
		"# TYPE remap_devices gauge",
		"remap_devices 3",
		"# HELP remap_events_total Events seen",
		"# TYPE remap_events_total counter",
		"remap_events_total 42",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	// name-sorted: the gauge renders before the counter
	if strings.Index(out, "remap_devices") > strings.Index(out, "remap_events_total") {
		t.Error("metrics not sorted by name")
	}
}

func TestHandler(t *testing.T) {
	r := NewRegistry()
	c := NewCounter("hits_total", "Hits")
	c.Inc()
	r.Register(c)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	r.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("content type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "hits_total 1") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestDefaultRegistryHasDaemonMetrics(t *testing.T) {
	var sb strings.Builder
	Default().WriteTo(&sb)
	out := sb.String()

	for _, name := range []string{
		"remapd_events_translated_total",
		"remapd_actions_triggered_total",
		"remapd_devices_grabbed",
		"remapd_output_keys_down",
	} {
		if !strings.Contains(out, name) {
			t.Errorf("default registry missing %s", name)
		}
	}
}
