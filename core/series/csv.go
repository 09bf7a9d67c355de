package series

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/kilianp07/pvbess/core/model"
)

// Columns is the CSV header written by WriteCSV.
var Columns = []string{"timestamp", "irradiance_wm2", "load_kw", "import_price", "export_price", "carbon_g_per_kwh", "ambient_c"}

// WriteCSV writes t with a header row and RFC3339 timestamps.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for i, p := range t.points {
		rec := []string{
			t.Timestamp(i).Format(time.RFC3339),
			ftoa(p.IrradianceWm2),
			ftoa(p.LoadKW),
			ftoa(p.ImportPrice),
			ftoa(p.ExportPrice),
			ftoa(p.CarbonGPerKWh),
			ftoa(p.AmbientC),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses a table written by WriteCSV. Column order is free; every
// column of Columns is required. The step is taken from the first two rows
// unless step is positive.
func ReadCSV(r io.Reader, step time.Duration) (*Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range Columns {
		if _, ok := idx[c]; !ok {
			return nil, model.ConfigErrorf("series.path", "missing column %q", c)
		}
	}

	var (
		points []model.ForecastPoint
		times  []time.Time
	)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		ts, err := time.Parse(time.RFC3339, rec[idx["timestamp"]])
		if err != nil {
			return nil, fmt.Errorf("line %d: timestamp: %w", line, err)
		}
		var p model.ForecastPoint
		fields := []struct {
			col string
			dst *float64
		}{
			{"irradiance_wm2", &p.IrradianceWm2},
			{"load_kw", &p.LoadKW},
			{"import_price", &p.ImportPrice},
			{"export_price", &p.ExportPrice},
			{"carbon_g_per_kwh", &p.CarbonGPerKWh},
			{"ambient_c", &p.AmbientC},
		}
		for _, f := range fields {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[idx[f.col]]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %s: %w", line, f.col, err)
			}
			*f.dst = v
		}
		points = append(points, p)
		times = append(times, ts)
	}
	if len(points) == 0 {
		return nil, model.ConfigErrorf("series.path", "no data rows")
	}
	if step <= 0 {
		step = time.Hour
		if len(times) > 1 {
			step = times[1].Sub(times[0])
		}
	}
	for i := 1; i < len(times); i++ {
		if times[i].Sub(times[i-1]) != step {
			return nil, model.ConfigErrorf("series.path", "row %d breaks the %s interval", i, step)
		}
	}
	return NewTable(times[0], step, points)
}

func ftoa(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
