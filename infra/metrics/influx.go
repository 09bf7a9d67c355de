package metrics

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/pvbess/core/metrics"
	"github.com/kilianp07/pvbess/core/model"
	"github.com/kilianp07/pvbess/infra/logger"
)

// InfluxSink writes committed steps to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordStep writes one pv_bess_step point.
func (s *InfluxSink) RecordStep(run coremetrics.RunInfo, rec model.StepRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("pv_bess_step").
		AddTag("run_id", run.RunID).
		AddTag("scenario", run.Scenario.String()).
		AddTag("solver", rec.Solver)
	if rec.Fallback != "" {
		p = p.AddTag("fallback", rec.Fallback)
	}
	p = p.AddField("time_index", rec.TimeIndex).
		AddField("charge_kw", round3(rec.Action.ChargeKW)).
		AddField("discharge_kw", round3(rec.Action.DischargeKW)).
		AddField("curtail_kw", round3(rec.Action.CurtailKW)).
		AddField("pv_kw", round3(rec.PVKW)).
		AddField("load_kw", round3(rec.LoadKW)).
		AddField("import_kw", round3(rec.ImportKW)).
		AddField("export_kw", round3(rec.ExportKW)).
		AddField("cost_gbp", round3(rec.CostGBP)).
		AddField("carbon_kg", round3(rec.CarbonKg)).
		AddField("soc", round3(rec.State.BatterySoC)).
		AddField("soh", rec.State.BatterySoH).
		AddField("pv_derating", rec.State.PVDeratingFactor).
		AddField("clamped", rec.Clamped).
		SetTime(rec.Timestamp)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordFallback records a replaced decision.
func (s *InfluxSink) RecordFallback(run coremetrics.RunInfo, ev coremetrics.FallbackEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("fallback_applied").
		AddTag("run_id", run.RunID).
		AddTag("scenario", run.Scenario.String()).
		AddTag("from", ev.From).
		AddTag("to", ev.To).
		AddField("time_index", ev.TimeIndex).
		AddField("reason", ev.Reason).
		SetTime(time.Now())
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordRunSummary writes the end of run totals.
func (s *InfluxSink) RecordRunSummary(run coremetrics.RunInfo, sum coremetrics.RunSummary) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("run_summary").
		AddTag("run_id", run.RunID).
		AddTag("scenario", run.Scenario.String()).
		AddTag("solver", run.Solver).
		AddField("steps", sum.Steps).
		AddField("fallbacks", sum.Fallbacks).
		AddField("clamped", sum.Clamped).
		AddField("cost_gbp", round3(sum.CostGBP)).
		AddField("final_soh", sum.Final.BatterySoH).
		AddField("final_pv_derating", sum.Final.PVDeratingFactor).
		AddField("duration_ms", sum.Duration.Milliseconds()).
		SetTime(time.Now())
	return s.writeAPI.WritePoint(ctx, p)
}

// Close releases the underlying client.
func (s *InfluxSink) Close() error {
	s.client.Close()
	return nil
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
