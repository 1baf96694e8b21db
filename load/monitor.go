package load

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultSampleInterval is how often the sampler records a row.
const DefaultSampleInterval = 5 * time.Second

// Sampler records host CPU, memory and load-average readings into a CSV
// file for the duration of a load run. Readings come from procfs, so the
// sampler degrades to a no-op with a warning on hosts without it.
type Sampler struct {
	log      *slog.Logger
	path     string
	interval time.Duration

	// readFile is a test hook over os.ReadFile.
	readFile func(name string) ([]byte, error)
	now      func() time.Time
}

// NewSampler creates a system metrics sampler writing to path.
func NewSampler(log *slog.Logger, path string) *Sampler {
	if log == nil {
		log = slog.Default()
	}
	return &Sampler{
		log:      log,
		path:     path,
		interval: DefaultSampleInterval,
		readFile: os.ReadFile,
		now:      time.Now,
	}
}

// Run samples until the context is cancelled. Cancellation is the normal
// way a run ends and is not reported as an error.
func (s *Sampler) Run(ctx context.Context) error {
	f, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("failed to create metrics file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()
	if err := w.Write([]string{"timestamp", "cpu_percent", "mem_used_mb", "load_1m"}); err != nil {
		return err
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var prev cpuTimes
	prev, _ = s.readCPUTimes()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			row, next := s.sample(prev)
			prev = next
			if err := w.Write(row); err != nil {
				return err
			}
			w.Flush()
		}
	}
}

func (s *Sampler) sample(prev cpuTimes) ([]string, cpuTimes) {
	cpu, memMB, load1 := -1.0, -1.0, -1.0

	cur, err := s.readCPUTimes()
	if err == nil {
		cpu = cur.percentSince(prev)
	} else {
		cur = prev
	}
	if v, err := s.readMemUsedMB(); err == nil {
		memMB = v
	}
	if v, err := s.readLoad1(); err == nil {
		load1 = v
	}

	return []string{
		s.now().UTC().Format(time.RFC3339),
		strconv.FormatFloat(cpu, 'f', 1, 64),
		strconv.FormatFloat(memMB, 'f', 0, 64),
		strconv.FormatFloat(load1, 'f', 2, 64),
	}, cur
}

type cpuTimes struct {
	idle  uint64
	total uint64
}

func (c cpuTimes) percentSince(prev cpuTimes) float64 {
	dTotal := float64(c.total - prev.total)
	dIdle := float64(c.idle - prev.idle)
	if dTotal <= 0 {
		return 0
	}
	return 100 * (dTotal - dIdle) / dTotal
}

func (s *Sampler) readCPUTimes() (cpuTimes, error) {
	data, err := s.readFile("/proc/stat")
	if err != nil {
		return cpuTimes{}, err
	}
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 5 || fields[0] != "cpu" {
			continue
		}
		var times cpuTimes
		for i, field := range fields[1:] {
			v, err := strconv.ParseUint(field, 10, 64)
			if err != nil {
				return cpuTimes{}, fmt.Errorf("bad /proc/stat field %q: %w", field, err)
			}
			times.total += v
			if i == 3 { // idle column
				times.idle = v
			}
		}
		return times, nil
	}
	return cpuTimes{}, fmt.Errorf("no cpu line in /proc/stat")
}

func (s *Sampler) readMemUsedMB() (float64, error) {
	data, err := s.readFile("/proc/meminfo")
	if err != nil {
		return 0, err
	}
	var totalKB, availKB float64
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		v, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			totalKB = v
		case "MemAvailable:":
			availKB = v
		}
	}
	if totalKB == 0 {
		return 0, fmt.Errorf("no MemTotal in /proc/meminfo")
	}
	return (totalKB - availKB) / 1024, nil
}

func (s *Sampler) readLoad1() (float64, error) {
	data, err := s.readFile("/proc/loadavg")
	if err != nil {
		return 0, err
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty /proc/loadavg")
	}
	return strconv.ParseFloat(fields[0], 64)
}
