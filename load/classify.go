package load

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Metrics are the aggregated measurements extracted from a locust run.
type Metrics struct {
	Requests      int
	Failures      int
	AvgResponseMs float64
	P95ResponseMs float64
	RequestsPerS  float64
}

// FailureRatio returns the fraction of requests that failed.
func (m Metrics) FailureRatio() float64 {
	if m.Requests == 0 {
		return 0
	}
	return float64(m.Failures) / float64(m.Requests)
}

// Check is one threshold comparison in the verdict.
type Check struct {
	Name   string
	Actual float64
	Target float64
	Passed bool
}

// Result is the classified outcome of a load run.
type Result struct {
	Profile Profile
	Metrics Metrics
	Checks  []Check
	Passed  bool
}

func (r *Result) String() string {
	var b strings.Builder
	for _, c := range r.Checks {
		status := "PASS"
		if !c.Passed {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "%-22s %-5s actual=%.2f target=%.2f\n", c.Name, status, c.Actual, c.Target)
	}
	return b.String()
}

// Classify reads the captured locust stats and compares the aggregated row
// against the configured targets. Zero-valued targets are skipped.
func (d *Driver) Classify(profile Profile) (*Result, error) {
	statsFile := filepath.Join(d.cfg.ReportsDir, "locust-stats.csv")
	metrics, err := parseStats(statsFile)
	if err != nil {
		return nil, err
	}

	result := &Result{Profile: profile, Metrics: metrics, Passed: true}
	targets := d.cfg.Targets

	add := func(name string, actual, target float64, passed bool) {
		result.Checks = append(result.Checks, Check{Name: name, Actual: actual, Target: target, Passed: passed})
		if !passed {
			result.Passed = false
		}
	}
	if targets.AvgResponseMs > 0 {
		add("avg response (ms)", metrics.AvgResponseMs, targets.AvgResponseMs, metrics.AvgResponseMs <= targets.AvgResponseMs)
	}
	if targets.P95ResponseMs > 0 {
		add("p95 response (ms)", metrics.P95ResponseMs, targets.P95ResponseMs, metrics.P95ResponseMs <= targets.P95ResponseMs)
	}
	if targets.MaxFailureRatio > 0 {
		add("failure ratio", metrics.FailureRatio(), targets.MaxFailureRatio, metrics.FailureRatio() <= targets.MaxFailureRatio)
	}
	if targets.MinRequestsPerS > 0 {
		add("requests per second", metrics.RequestsPerS, targets.MinRequestsPerS, metrics.RequestsPerS >= targets.MinRequestsPerS)
	}
	return result, nil
}

// parseStats extracts the "Aggregated" row from a locust stats CSV.
func parseStats(path string) (Metrics, error) {
	f, err := os.Open(path)
	if err != nil {
		return Metrics{}, fmt.Errorf("failed to open locust stats: %w", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return Metrics{}, fmt.Errorf("failed to parse locust stats: %w", err)
	}
	if len(records) < 2 {
		return Metrics{}, fmt.Errorf("locust stats %s contains no data rows", path)
	}

	header := records[0]
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	for _, required := range []string{"Name", "Request Count", "Failure Count", "Average Response Time", "Requests/s", "95%"} {
		if _, ok := col[required]; !ok {
			return Metrics{}, fmt.Errorf("locust stats %s is missing column %q", path, required)
		}
	}

	for _, row := range records[1:] {
		if row[col["Name"]] != "Aggregated" {
			continue
		}
		m := Metrics{}
		m.Requests, _ = strconv.Atoi(row[col["Request Count"]])
		m.Failures, _ = strconv.Atoi(row[col["Failure Count"]])
		m.AvgResponseMs, _ = strconv.ParseFloat(row[col["Average Response Time"]], 64)
		m.P95ResponseMs, _ = strconv.ParseFloat(row[col["95%"]], 64)
		m.RequestsPerS, _ = strconv.ParseFloat(row[col["Requests/s"]], 64)
		return m, nil
	}
	return Metrics{}, fmt.Errorf("locust stats %s has no Aggregated row", path)
}
