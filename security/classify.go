package security

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopfront/stagerunner/types"
)

// Verdict is the classified outcome of one scanner phase.
type Verdict struct {
	Phase    Phase
	Counts   types.SeverityCounts
	Gate     types.SecurityGate
	Gated    bool // a gate is configured for this tool
	Report   string
	Missing  bool // no report file was produced
	Skipped  bool // phase was not invoked, nothing was classified
	ParseErr string
	Passed   bool
}

// Summary aggregates the verdicts of a security run. Passed is false only
// when a blocking gate is exceeded; advisory findings and missing reports
// are surfaced but never fail the run.
type Summary struct {
	Verdicts []Verdict
	Passed   bool
}

func (s *Summary) finalize() {
	s.Passed = true
	for _, v := range s.Verdicts {
		if !v.Passed {
			s.Passed = false
			return
		}
	}
}

// Totals returns the combined severity counts across all verdicts.
func (s *Summary) Totals() types.SeverityCounts {
	var total types.SeverityCounts
	for _, v := range s.Verdicts {
		total.Critical += v.Counts.Critical
		total.High += v.Counts.High
		total.Medium += v.Counts.Medium
		total.Low += v.Counts.Low
		total.Info += v.Counts.Info
	}
	return total
}

func (s *Summary) String() string {
	var b strings.Builder
	for _, v := range s.Verdicts {
		status := "PASS"
		if !v.Passed {
			status = "FAIL"
		}
		if v.Missing {
			status = "NO REPORT"
		}
		if v.Skipped {
			status = "SKIPPED"
		}
		fmt.Fprintf(&b, "%-18s %-9s critical=%d high=%d medium=%d low=%d\n",
			v.Phase.Name, status, v.Counts.Critical, v.Counts.High, v.Counts.Medium, v.Counts.Low)
	}
	return b.String()
}

func (d *Driver) reportFileFor(tool string) string {
	return filepath.Join(d.cfg.ReportsDir, tool+"-report.json")
}

// Classify derives the verdict for one phase from its persisted report.
// A missing report never blocks: the scanner may be absent from the
// environment, which the summary surfaces without failing the run.
func (d *Driver) Classify(phase Phase) Verdict {
	verdict := Verdict{Phase: phase, Passed: true}
	if phase.Tool == "" {
		return verdict
	}

	gate, gated := d.cfg.Gates[phase.Tool]
	verdict.Gate = gate
	verdict.Gated = gated
	verdict.Report = d.reportFileFor(phase.Tool)

	data, err := os.ReadFile(verdict.Report)
	if err != nil {
		verdict.Missing = true
		return verdict
	}

	counts, err := parseReport(phase.Tool, data)
	if err != nil {
		// An unreadable report from a blocking scanner cannot vouch for
		// anything, so it fails the gate.
		verdict.ParseErr = err.Error()
		verdict.Passed = !(gated && gate.Blocking)
		return verdict
	}
	verdict.Counts = counts

	if gated && gate.Blocking && counts.Exceeds(gate) {
		verdict.Passed = false
	}
	return verdict
}

// ClassifyAll classifies every scanner phase and aggregates the verdicts.
func (d *Driver) ClassifyAll() (*Summary, error) {
	summary := &Summary{}
	for _, phase := range Phases {
		if phase.Tool == "" {
			continue
		}
		if phase.Dynamic && d.cfg.SkipDynamic {
			continue
		}
		summary.Verdicts = append(summary.Verdicts, d.Classify(phase))
	}
	summary.finalize()
	return summary, nil
}

func parseReport(tool string, data []byte) (types.SeverityCounts, error) {
	switch tool {
	case "bandit":
		return parseBandit(data)
	case "safety":
		return parseSafety(data)
	case "trivy":
		return parseTrivy(data)
	case "zap":
		return parseZAP(data)
	default:
		return types.SeverityCounts{}, fmt.Errorf("unknown scanner %q", tool)
	}
}

func parseBandit(data []byte) (types.SeverityCounts, error) {
	var report struct {
		Results []struct {
			IssueSeverity string `json:"issue_severity"`
		} `json:"results"`
	}
	if err := json.Unmarshal(data, &report); err != nil {
		return types.SeverityCounts{}, fmt.Errorf("failed to parse bandit report: %w", err)
	}
	var counts types.SeverityCounts
	for _, r := range report.Results {
		counts.Add(r.IssueSeverity)
	}
	return counts, nil
}

func parseSafety(data []byte) (types.SeverityCounts, error) {
	var report struct {
		Vulnerabilities []struct {
			Severity string `json:"severity"`
		} `json:"vulnerabilities"`
	}
	if err := json.Unmarshal(data, &report); err != nil {
		return types.SeverityCounts{}, fmt.Errorf("failed to parse safety report: %w", err)
	}
	var counts types.SeverityCounts
	for _, v := range report.Vulnerabilities {
		sev := v.Severity
		if sev == "" {
			// Older advisories carry no severity; count them as high so an
			// unrated vulnerability still trips a strict gate.
			sev = "high"
		}
		counts.Add(sev)
	}
	return counts, nil
}

func parseTrivy(data []byte) (types.SeverityCounts, error) {
	var report struct {
		Results []struct {
			Vulnerabilities []struct {
				Severity string `json:"Severity"`
			} `json:"Vulnerabilities"`
		} `json:"Results"`
	}
	if err := json.Unmarshal(data, &report); err != nil {
		return types.SeverityCounts{}, fmt.Errorf("failed to parse trivy report: %w", err)
	}
	var counts types.SeverityCounts
	for _, r := range report.Results {
		for _, v := range r.Vulnerabilities {
			counts.Add(v.Severity)
		}
	}
	return counts, nil
}

// parseZAP maps ZAP risk codes onto severities: 3 high, 2 medium, 1 low.
// Informational alerts (0) are not counted.
func parseZAP(data []byte) (types.SeverityCounts, error) {
	var report struct {
		Site []struct {
			Alerts []struct {
				RiskCode string `json:"riskcode"`
			} `json:"alerts"`
		} `json:"site"`
	}
	if err := json.Unmarshal(data, &report); err != nil {
		return types.SeverityCounts{}, fmt.Errorf("failed to parse zap report: %w", err)
	}
	var counts types.SeverityCounts
	for _, site := range report.Site {
		for _, alert := range site.Alerts {
			switch alert.RiskCode {
			case "3":
				counts.High++
			case "2":
				counts.Medium++
			case "1":
				counts.Low++
			}
		}
	}
	return counts, nil
}
