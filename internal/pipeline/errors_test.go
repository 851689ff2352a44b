package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStageTimeout_CarriesConfiguredValue(t *testing.T) {
	err := stageTimeout(10 * time.Millisecond)

	assert.EqualError(t, err, "stage timed out after 10ms")
	assert.ErrorIs(t, err, ErrStageTimeout)

	assert.EqualError(t, stageTimeout(1500*time.Millisecond), "stage timed out after 1500ms")
}
