package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/pvbess/core/metrics"
	"github.com/kilianp07/pvbess/core/model"
)

type bodyRecorder struct {
	mu     sync.Mutex
	bodies []string
}

func (b *bodyRecorder) server() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		b.mu.Lock()
		b.bodies = append(b.bodies, strings.TrimSpace(string(data)))
		b.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
}

func TestInfluxSink_RecordStep(t *testing.T) {
	var rec bodyRecorder
	srv := rec.server()
	defer srv.Close()

	sink := NewInfluxSink(srv.URL, "token", "org", "bucket")
	defer func() { _ = sink.Close() }()
	ts := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	step := model.StepRecord{
		TimeIndex: 3,
		Timestamp: ts,
		Action:    model.Action{ChargeKW: 1.5},
		PVKW:      4,
		LoadKW:    1,
		ExportKW:  1.5,
		CostGBP:   -0.0375,
		Solver:    "lp",
		State:     model.SystemState{TimeIndex: 4, BatterySoC: 0.55, BatterySoH: 0.9999, PVDeratingFactor: 1},
	}
	run := coremetrics.RunInfo{RunID: "r1", Scenario: model.ScenarioBattAware}
	if err := sink.RecordStep(run, step); err != nil {
		t.Fatalf("record error: %v", err)
	}
	p := write.NewPointWithMeasurement("pv_bess_step").
		AddTag("run_id", "r1").
		AddTag("scenario", "batt_aware").
		AddTag("solver", "lp").
		AddField("time_index", 3).
		AddField("charge_kw", 1.5).
		AddField("discharge_kw", 0.0).
		AddField("curtail_kw", 0.0).
		AddField("pv_kw", 4.0).
		AddField("load_kw", 1.0).
		AddField("import_kw", 0.0).
		AddField("export_kw", 1.5).
		AddField("cost_gbp", round3(-0.0375)).
		AddField("carbon_kg", 0.0).
		AddField("soc", 0.55).
		AddField("soh", 0.9999).
		AddField("pv_derating", 1.0).
		AddField("clamped", false).
		SetTime(ts)
	expected := strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
	if len(rec.bodies) != 1 || rec.bodies[0] != expected {
		t.Errorf("unexpected bodies: %#v", rec.bodies)
	}
}

func TestInfluxSink_RecordFallback(t *testing.T) {
	var rec bodyRecorder
	srv := rec.server()
	defer srv.Close()

	sink := NewInfluxSink(srv.URL+"/api/v2/write", "token", "org", "bucket")
	ev := coremetrics.FallbackEvent{TimeIndex: 7, From: "lp", To: "idle", Reason: "infeasible"}
	if err := sink.RecordFallback(coremetrics.RunInfo{RunID: "r1"}, ev); err != nil {
		t.Fatalf("record error: %v", err)
	}
	if len(rec.bodies) != 1 || !strings.HasPrefix(rec.bodies[0], "fallback_applied,") {
		t.Errorf("unexpected bodies: %#v", rec.bodies)
	}
	if !strings.Contains(rec.bodies[0], `reason="infeasible"`) {
		t.Errorf("reason missing: %s", rec.bodies[0])
	}
}

func TestNewInfluxSinkWithFallback(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			called = true
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}))
	defer srv.Close()

	sink := NewInfluxSinkWithFallback(srv.URL+"/api/v2/write", "tok", "org", "bucket")
	if _, ok := sink.(*InfluxSink); ok {
		t.Fatalf("expected NopSink on failing health check")
	}
	if !called {
		t.Fatalf("health endpoint not called")
	}
}
