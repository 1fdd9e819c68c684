package executor

import (
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/GriffinCanCode/ptyexec/internal/domain/session"
)

// Summary describes a sample of durations in milliseconds
type Summary struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean_ms"`
	P50   float64 `json:"p50_ms"`
	P95   float64 `json:"p95_ms"`
	Max   float64 `json:"max_ms"`
}

// CommandStats aggregates finished commands
type CommandStats struct {
	Total         int64            `json:"total"`
	ByStatus      map[string]int64 `json:"by_status"`
	Duration      Summary          `json:"duration"`
	AdmissionWait Summary          `json:"admission_wait"`
}

// Stats is a point-in-time view of the executor
type Stats struct {
	Sessions        int            `json:"sessions"`
	SessionsByState map[string]int `json:"sessions_by_state"`
	Queued          int            `json:"queued"`
	Running         int            `json:"running"`
	MaxConcurrent   int            `json:"max_concurrent"`
	Commands        CommandStats   `json:"commands"`
}

// statsWindow keeps the last size command samples
type statsWindow struct {
	mu        sync.Mutex
	size      int
	next      int
	durations []float64
	waits     []float64
	total     int64
	byStatus  map[string]int64
}

func newStatsWindow(size int) *statsWindow {
	if size <= 0 {
		size = 1000
	}
	return &statsWindow{
		size:     size,
		byStatus: make(map[string]int64),
	}
}

func (w *statsWindow) record(snap session.CommandSnapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.total++
	w.byStatus[string(snap.Status)]++
	if snap.StartedAt.IsZero() {
		return
	}

	d := float64(snap.Duration().Microseconds()) / 1000
	wait := float64(snap.AdmissionWait.Microseconds()) / 1000
	if len(w.durations) < w.size {
		w.durations = append(w.durations, d)
		w.waits = append(w.waits, wait)
		return
	}
	w.durations[w.next] = d
	w.waits[w.next] = wait
	w.next = (w.next + 1) % w.size
}

func (w *statsWindow) snapshot() CommandStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	byStatus := make(map[string]int64, len(w.byStatus))
	for k, v := range w.byStatus {
		byStatus[k] = v
	}
	return CommandStats{
		Total:         w.total,
		ByStatus:      byStatus,
		Duration:      summarize(w.durations),
		AdmissionWait: summarize(w.waits),
	}
}

func summarize(samples []float64) Summary {
	if len(samples) == 0 {
		return Summary{}
	}
	x := append([]float64(nil), samples...)
	sort.Float64s(x)
	return Summary{
		Count: len(x),
		Mean:  stat.Mean(x, nil),
		P50:   stat.Quantile(0.5, stat.Empirical, x, nil),
		P95:   stat.Quantile(0.95, stat.Empirical, x, nil),
		Max:   x[len(x)-1],
	}
}
