package types

import "strings"

// LoadTargets holds the performance thresholds a load-test run is
// classified against. Zero values disable the corresponding check.
type LoadTargets struct {
	AvgResponseMs   float64 `yaml:"avg_response_ms"`
	P95ResponseMs   float64 `yaml:"p95_response_ms"`
	MaxFailureRatio float64 `yaml:"max_failure_ratio"`
	MinRequestsPerS float64 `yaml:"min_requests_per_sec"`
}

// SecurityGate declares how scanner findings map to a verdict.
// Findings below the gate are advisory: surfaced in the report but
// never failing the run.
type SecurityGate struct {
	MaxCritical int  `yaml:"max_critical"`
	MaxHigh     int  `yaml:"max_high"`
	Blocking    bool `yaml:"blocking"`
}

// SeverityCounts tallies scanner findings by severity bucket.
type SeverityCounts struct {
	Critical int
	High     int
	Medium   int
	Low      int
	Info     int
}

// Add tallies one finding under its severity label. Labels are matched
// case-insensitively; unknown labels count as informational.
func (c *SeverityCounts) Add(severity string) {
	switch {
	case strings.EqualFold(severity, "critical"):
		c.Critical++
	case strings.EqualFold(severity, "high"):
		c.High++
	case strings.EqualFold(severity, "medium"), strings.EqualFold(severity, "moderate"):
		c.Medium++
	case strings.EqualFold(severity, "low"):
		c.Low++
	default:
		c.Info++
	}
}

// Total returns the total number of findings across all severities.
func (c SeverityCounts) Total() int {
	return c.Critical + c.High + c.Medium + c.Low + c.Info
}

// Exceeds reports whether the counts breach a blocking gate.
// Non-blocking gates never trip.
func (c SeverityCounts) Exceeds(gate SecurityGate) bool {
	if !gate.Blocking {
		return false
	}
	return c.Critical > gate.MaxCritical || c.High > gate.MaxHigh
}
