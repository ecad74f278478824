package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tjfontaine/phoenix-bypass/internal/core/domain"
)

func TestNewMetrics(t *testing.T) {
	m := NewMetrics()

	if m.HTTPRequestsTotal == nil || m.HTTPRequestDuration == nil {
		t.Error("HTTP metrics not initialized")
	}
	if m.RunsTotal == nil || m.StepDuration == nil || m.StepFailures == nil {
		t.Error("pipeline metrics not initialized")
	}
	if m.MutationsTotal == nil || m.ModulesLoaded == nil {
		t.Error("chain metrics not initialized")
	}

	// Private registries let two instances live side by side.
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("second NewMetrics() panicked: %v", r)
		}
	}()
	NewMetrics()
}

func TestObserveRun(t *testing.T) {
	m := NewMetrics()

	m.ObserveRun("chain", nil)
	m.ObserveRun("chain", nil)
	m.ObserveRun("chain", errors.New("boom"))
	m.ObserveRun("single", nil)

	tests := []struct {
		kind, result string
		want         float64
	}{
		{"chain", "ok", 2},
		{"chain", "error", 1},
		{"single", "ok", 1},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(m.RunsTotal.WithLabelValues(tt.kind, tt.result)); got != tt.want {
			t.Errorf("runs_total{%s,%s} = %v, want %v", tt.kind, tt.result, got, tt.want)
		}
	}
}

func TestObserveStep(t *testing.T) {
	m := NewMetrics()

	m.ObserveStep("encoding", "hex", 2*time.Millisecond, nil)
	m.ObserveStep("encoding", "xor", time.Millisecond, domain.ExecutionFailure(errors.New("empty key")))

	if got := testutil.CollectAndCount(m.StepDuration); got != 2 {
		t.Errorf("step duration series = %d, want 2", got)
	}
	if got := testutil.ToFloat64(m.StepFailures.WithLabelValues("encoding", "xor", string(domain.ClassExecution))); got != 1 {
		t.Errorf("xor execution failures = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.StepFailures); got != 1 {
		t.Errorf("step failure series = %d, want 1", got)
	}
}

func TestObserveMutation(t *testing.T) {
	m := NewMetrics()

	m.ObserveMutation("add", nil)
	m.ObserveMutation("move", &domain.RangeError{Position: 9, Len: 2})

	if got := testutil.ToFloat64(m.MutationsTotal.WithLabelValues("add", "ok")); got != 1 {
		t.Errorf("mutations_total{add,ok} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.MutationsTotal.WithLabelValues("move", "error")); got != 1 {
		t.Errorf("mutations_total{move,error} = %v, want 1", got)
	}
}

func TestObserveRequest(t *testing.T) {
	m := NewMetrics()

	m.ObserveRequest(http.MethodGet, "/bypasses/chains/{id}", http.StatusOK, 10*time.Millisecond)
	m.ObserveRequest(http.MethodGet, "/bypasses/chains/{id}", http.StatusNotFound, time.Millisecond)

	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/bypasses/chains/{id}", "404")); got != 1 {
		t.Errorf("requests_total{404} = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.HTTPRequestDuration); got != 1 {
		t.Errorf("request duration series = %d, want 1", got)
	}
}

func TestHandler(t *testing.T) {
	m := NewMetrics()
	m.SetModules(7)
	m.ObserveRun("chain", nil)

	ts := httptest.NewServer(m.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL)
	if err != nil {
		t.Fatalf("GET metrics error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll() error: %v", err)
	}
	for _, want := range []string{
		"bypassd_modules_loaded 7",
		`bypassd_runs_total{kind="chain",result="ok"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
