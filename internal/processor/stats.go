package processor

import (
	"math"
	"sort"
	"sync"
	"time"
)

// DefaultRingSize bounds the recent-run window behind Stats.
const DefaultRingSize = 256

// rateWindow is the lookback for the runs-per-minute rate.
const rateWindow = time.Minute

// RunSummary is one settled run as kept in the recent-run window.
type RunSummary struct {
	RunID      string    `json:"run_id"`
	SessionID  string    `json:"session_id"`
	Success    bool      `json:"success"`
	Confidence float64   `json:"confidence"`
	Analyses   int       `json:"analyses"`
	Fallbacks  int       `json:"fallbacks"`
	Errors     int       `json:"errors"`
	DurationMS int64     `json:"duration_ms"`
	FinishedAt time.Time `json:"finished_at"`
}

// Stats aggregates processor activity for the stats endpoint and the
// monitor TUI. Ratios and percentiles cover the recent-run window; totals
// cover the processor's lifetime.
type Stats struct {
	RunsTotal      int64        `json:"runs_total"`
	RunsFailed     int64        `json:"runs_failed"`
	ActiveRuns     int          `json:"active_runs"`
	UptimeSeconds  int64        `json:"uptime_seconds"`
	SuccessRatio   float64      `json:"success_ratio"`
	FallbackRatio  float64      `json:"fallback_ratio"`
	MeanConfidence float64      `json:"mean_confidence"`
	P95DurationMS  int64        `json:"p95_duration_ms"`
	RunsPerMinute  float64      `json:"runs_per_minute"`
	Recent         []RunSummary `json:"recent"`
}

// runRing is a fixed-capacity window of settled runs.
type runRing struct {
	mu   sync.Mutex
	buf  []RunSummary
	next int
	full bool
}

func newRunRing(capacity int) *runRing {
	if capacity < 1 {
		capacity = DefaultRingSize
	}
	return &runRing{buf: make([]RunSummary, capacity)}
}

func (r *runRing) add(s RunSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = s
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
		r.full = true
	}
}

// snapshot returns the window contents, newest first.
func (r *runRing) snapshot() []RunSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	size := r.next
	if r.full {
		size = len(r.buf)
	}
	out := make([]RunSummary, 0, size)
	for i := 1; i <= size; i++ {
		idx := r.next - i
		if idx < 0 {
			idx += len(r.buf)
		}
		out = append(out, r.buf[idx])
	}
	return out
}

// aggregate fills the window-derived Stats fields from recent runs.
func aggregate(st *Stats, recent []RunSummary, now time.Time) {
	st.Recent = recent
	if len(recent) == 0 {
		return
	}

	var succeeded, analyses, fallbacks int
	var confidence float64
	durations := make([]int64, 0, len(recent))
	inWindow := 0
	for _, s := range recent {
		if s.Success {
			succeeded++
		}
		analyses += s.Analyses
		fallbacks += s.Fallbacks
		confidence += s.Confidence
		durations = append(durations, s.DurationMS)
		if now.Sub(s.FinishedAt) <= rateWindow {
			inWindow++
		}
	}

	st.SuccessRatio = float64(succeeded) / float64(len(recent))
	if analyses > 0 {
		st.FallbackRatio = float64(fallbacks) / float64(analyses)
	}
	st.MeanConfidence = confidence / float64(len(recent))
	st.RunsPerMinute = float64(inWindow) / rateWindow.Minutes()

	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
	idx := int(math.Ceil(0.95*float64(len(durations)))) - 1
	if idx < 0 {
		idx = 0
	}
	st.P95DurationMS = durations[idx]
}
