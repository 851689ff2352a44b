package events

import (
	"sort"
	"sync"
	"time"

	"github.com/fyrsmithlabs/personad/internal/pipeline"
)

// DefaultRunTTL is how long a finished run stays visible to the stats
// surface before the registry drops it.
const DefaultRunTTL = time.Hour

// Run statuses reported by the registry.
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// RunState is a point-in-time snapshot of one run.
type RunState struct {
	RunID     string    `json:"run_id"`
	SessionID string    `json:"session_id"`
	Stage     string    `json:"stage,omitempty"`
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RunRegistry tracks runs in memory for fast stats lookups. Finished runs
// self-clean after the TTL so the registry never grows unbounded.
type RunRegistry struct {
	runs sync.Map // run id -> RunState
	ttl  time.Duration
}

// NewRunRegistry creates a registry. ttl <= 0 uses DefaultRunTTL.
func NewRunRegistry(ttl time.Duration) *RunRegistry {
	if ttl <= 0 {
		ttl = DefaultRunTTL
	}
	return &RunRegistry{ttl: ttl}
}

// Begin records a run entering the pipeline.
func (r *RunRegistry) Begin(msg pipeline.Message) {
	if r == nil {
		return
	}
	now := time.Now()
	r.runs.Store(msg.ID, RunState{
		RunID:     msg.ID,
		SessionID: msg.SessionID,
		Status:    RunRunning,
		StartedAt: now,
		UpdatedAt: now,
	})
}

// Progress records the stage a run last reported.
func (r *RunRegistry) Progress(runID, stage string) {
	if r == nil {
		return
	}
	value, ok := r.runs.Load(runID)
	if !ok {
		return
	}
	state := value.(RunState)
	state.Stage = stage
	state.UpdatedAt = time.Now()
	r.runs.Store(runID, state)
}

// Finish marks a run settled and schedules its removal after the TTL.
func (r *RunRegistry) Finish(runID string, success bool) {
	if r == nil {
		return
	}
	value, ok := r.runs.Load(runID)
	if !ok {
		return
	}
	state := value.(RunState)
	state.Status = RunSucceeded
	if !success {
		state.Status = RunFailed
	}
	state.UpdatedAt = time.Now()
	r.runs.Store(runID, state)

	// A runtime timer per settled run, not a parked goroutine: the timer
	// fires once and frees itself, so sustained load never accumulates
	// sleepers.
	time.AfterFunc(r.ttl, func() {
		r.runs.Delete(runID)
	})
}

// Runs snapshots every tracked run, oldest first.
func (r *RunRegistry) Runs() []RunState {
	if r == nil {
		return nil
	}
	var states []RunState
	r.runs.Range(func(_, value any) bool {
		states = append(states, value.(RunState))
		return true
	})
	sort.Slice(states, func(i, j int) bool {
		return states[i].StartedAt.Before(states[j].StartedAt)
	})
	return states
}

// Active counts runs that have not settled yet.
func (r *RunRegistry) Active() int {
	if r == nil {
		return 0
	}
	count := 0
	r.runs.Range(func(_, value any) bool {
		if value.(RunState).Status == RunRunning {
			count++
		}
		return true
	})
	return count
}
