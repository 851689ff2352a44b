package monitor

import (
	"fmt"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"

	"github.com/fyrsmithlabs/personad/internal/processor"
)

func TestNewModel(t *testing.T) {
	model := NewModel("http://localhost:8420", 5*time.Second)
	assert.Equal(t, "http://localhost:8420", model.serverURL)
	assert.Equal(t, 5*time.Second, model.interval)
	assert.False(t, model.quitting)
	assert.Nil(t, model.stats)
}

func TestNewModel_DefaultsInterval(t *testing.T) {
	model := NewModel("http://localhost:8420", 0)
	assert.Equal(t, DefaultInterval, model.interval)
}

func TestModel_Init(t *testing.T) {
	model := NewModel("http://localhost:8420", 5*time.Second)
	cmd := model.Init()

	// Init should return a tick command to start auto-refresh
	assert.NotNil(t, cmd)
}

func TestModel_Update_QuitKey(t *testing.T) {
	model := NewModel("http://localhost:8420", 5*time.Second)

	// Send 'q' key message
	keyMsg := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}}
	updatedModel, cmd := model.Update(keyMsg)

	// Model should be marked as quitting
	m := updatedModel.(Model)
	assert.True(t, m.quitting)
	assert.NotNil(t, cmd) // Should return tea.Quit
}

func TestModel_Update_RefreshKey(t *testing.T) {
	model := NewModel("http://localhost:8420", 5*time.Second)

	// Send 'r' key message
	keyMsg := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'r'}}
	updatedModel, cmd := model.Update(keyMsg)

	// Should trigger a stats fetch
	m := updatedModel.(Model)
	assert.False(t, m.quitting)
	assert.NotNil(t, cmd)
}

func TestModel_Update_TickMsg(t *testing.T) {
	model := NewModel("http://localhost:8420", 5*time.Second)

	msg := tickMsg(time.Now())
	updatedModel, cmd := model.Update(msg)

	// Should schedule next tick and fetch stats
	m := updatedModel.(Model)
	assert.False(t, m.quitting)
	assert.NotNil(t, cmd)
}

func TestModel_Update_StatsMsg(t *testing.T) {
	model := NewModel("http://localhost:8420", 5*time.Second)
	model.err = fmt.Errorf("stale error")

	msg := statsMsg(processor.Stats{
		RunsTotal:      12,
		RunsPerMinute:  4.5,
		MeanConfidence: 0.72,
		P95DurationMS:  18,
	})
	updatedModel, cmd := model.Update(msg)

	// Model should adopt the snapshot, extend histories, and clear the error
	m := updatedModel.(Model)
	assert.NotNil(t, m.stats)
	assert.Equal(t, int64(12), m.stats.RunsTotal)
	assert.Equal(t, []float64{4.5}, m.rateHistory)
	assert.Equal(t, []float64{0.72}, m.confidenceHistory)
	assert.Equal(t, []float64{18}, m.p95History)
	assert.Equal(t, 4.5, m.ratePeak)
	assert.False(t, m.lastUpdate.IsZero())
	assert.Nil(t, m.err)
	assert.Nil(t, cmd)
}

func TestModel_Update_StatsMsg_TracksRatePeak(t *testing.T) {
	model := NewModel("http://localhost:8420", 5*time.Second)

	updated, _ := model.Update(statsMsg(processor.Stats{RunsPerMinute: 9.0}))
	m := updated.(Model)
	assert.Equal(t, 9.0, m.ratePeak)

	// A slower poll must not shrink the peak
	updated, _ = m.Update(statsMsg(processor.Stats{RunsPerMinute: 2.0}))
	m = updated.(Model)
	assert.Equal(t, 9.0, m.ratePeak)
}

func TestModel_Update_ErrMsg(t *testing.T) {
	model := NewModel("http://localhost:8420", 5*time.Second)

	msg := errMsg(fmt.Errorf("connection refused"))
	updatedModel, cmd := model.Update(msg)

	// Model should store error
	m := updatedModel.(Model)
	assert.NotNil(t, m.err)
	assert.Contains(t, m.err.Error(), "connection refused")
	assert.Nil(t, cmd)
}

func TestModel_View_WithStats(t *testing.T) {
	model := NewModel("http://localhost:8420", 5*time.Second)
	model.stats = &processor.Stats{
		RunsTotal:      42,
		RunsFailed:     2,
		ActiveRuns:     1,
		UptimeSeconds:  8100, // 2h 15m
		SuccessRatio:   0.952,
		FallbackRatio:  0.05,
		MeanConfidence: 0.78,
		P95DurationMS:  23,
		RunsPerMinute:  4.5,
		Recent: []processor.RunSummary{
			{
				RunID:      "0d3adb33-f000-4000-8000-000000000000",
				SessionID:  "support-chat",
				Success:    true,
				Confidence: 0.81,
				DurationMS: 17,
			},
		},
	}
	model.lastUpdate = time.Date(2024, 1, 1, 12, 34, 56, 0, time.UTC)

	view := model.View()

	assert.Contains(t, view, "personad Monitor")
	assert.Contains(t, view, "HEALTHY")
	assert.Contains(t, view, "2h 15m")
	assert.Contains(t, view, "12:34:56")
	assert.Contains(t, view, "Runs")
	assert.Contains(t, view, "4.5 runs/min")
	assert.Contains(t, view, "Quality")
	assert.Contains(t, view, "95.2%")
	assert.Contains(t, view, "0.78")
	assert.Contains(t, view, "Latency")
	assert.Contains(t, view, "23ms")
	assert.Contains(t, view, "Recent Runs")
	assert.Contains(t, view, "0d3adb33")
	assert.Contains(t, view, "support-chat")
	assert.Contains(t, view, "[q]")
	assert.Contains(t, view, "[r]")
}

func TestModel_View_WithError(t *testing.T) {
	model := NewModel("http://localhost:8420", 5*time.Second)
	model.err = fmt.Errorf("connection refused")

	view := model.View()

	// Verify error pane is displayed
	assert.Contains(t, view, "Cannot reach personad")
	assert.Contains(t, view, "connection refused")
	assert.Contains(t, view, "http://localhost:8420")
	assert.Contains(t, view, "[q]")
	assert.Contains(t, view, "[r]")
}

func TestModel_View_NoData(t *testing.T) {
	model := NewModel("http://localhost:8420", 5*time.Second)
	// No stats, no error

	view := model.View()

	assert.Contains(t, view, "personad Monitor")
	assert.Contains(t, view, "IDLE")
	assert.Contains(t, view, "no runs yet")
	assert.Contains(t, view, "[q]")
}

func TestModel_View_Quitting(t *testing.T) {
	model := NewModel("http://localhost:8420", 5*time.Second)
	model.quitting = true

	assert.Empty(t, model.View())
}

func TestStatusBadge(t *testing.T) {
	tests := []struct {
		name  string
		stats *processor.Stats
		want  string
	}{
		{"nil stats", nil, "IDLE"},
		{"no runs", &processor.Stats{}, "IDLE"},
		{"healthy", &processor.Stats{RunsTotal: 10, SuccessRatio: 0.95}, "HEALTHY"},
		{"degraded", &processor.Stats{RunsTotal: 10, SuccessRatio: 0.6}, "DEGRADED"},
		{"failing", &processor.Stats{RunsTotal: 10, SuccessRatio: 0.2}, "FAILING"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, statusBadge(tt.stats), tt.want)
		})
	}
}

func TestAppendToHistory_CapsLength(t *testing.T) {
	var history []float64
	for i := 0; i < historySize+10; i++ {
		history = appendToHistory(history, float64(i))
	}

	assert.Len(t, history, historySize)
	// Oldest entries are dropped first
	assert.Equal(t, float64(10), history[0])
	assert.Equal(t, float64(historySize+9), history[len(history)-1])
}

func TestCreateSparkline(t *testing.T) {
	assert.Contains(t, createSparkline(nil), "no data")
	assert.NotEmpty(t, createSparkline([]float64{1, 2, 3}))
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "0d3adb33", shortID("0d3adb33-f000-4000-8000-000000000000"))
	assert.Equal(t, "run-1", shortID("run-1"))
}
