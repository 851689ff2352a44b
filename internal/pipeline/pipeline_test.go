package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/personad/internal/analysis"
	"github.com/fyrsmithlabs/personad/internal/synthesis"
)

func TestNewMessage_FillsIdentity(t *testing.T) {
	msg := NewMessage("hello there", "session-1")

	assert.Len(t, msg.ID, 36)
	assert.Equal(t, "hello there", msg.Text)
	assert.Equal(t, "session-1", msg.SessionID)
	assert.Empty(t, msg.UserID)
	assert.WithinDuration(t, time.Now(), msg.ReceivedAt, time.Second)

	other := NewMessage("hello there", "session-1")
	assert.NotEqual(t, msg.ID, other.ID)
}

func TestNewContext_FromMessage(t *testing.T) {
	msg := NewMessage("hi", "session-1")
	msg.UserID = "alice"

	pc := NewContext(msg)

	assert.Equal(t, msg, pc.Input)
	assert.Equal(t, "session-1", pc.SessionID)
	assert.Equal(t, "alice", pc.UserID)
	assert.WithinDuration(t, time.Now(), pc.CreatedAt, time.Second)
	require.NotNil(t, pc.Operations)
	require.NotNil(t, pc.Errors)
	assert.Empty(t, pc.Operations)
	assert.Empty(t, pc.Errors)
	assert.Nil(t, pc.Analyses)
	assert.Nil(t, pc.Persona)
}

func TestContext_WithConstructorsCopy(t *testing.T) {
	base := NewContext(NewMessage("hi", "session-1"))
	bag := analysis.Bag{analysis.KindMessageIntent: analysis.Fallback(analysis.KindMessageIntent)}

	withBag := base.WithAnalyses(bag)
	assert.Nil(t, base.Analyses, "receiver must stay unchanged")
	assert.Equal(t, bag, withBag.Analyses)
	assert.Equal(t, base.Input, withBag.Input)

	view := &synthesis.View{Confidence: 0.7}
	withView := withBag.WithPersona(view)
	assert.Nil(t, withBag.Persona, "receiver must stay unchanged")
	assert.Same(t, view, withView.Persona)
	assert.Equal(t, bag, withView.Analyses)
}

func TestContext_AppendsDoNotAlias(t *testing.T) {
	base := NewContext(NewMessage("hi", "session-1"))

	left := base.withOperation("sanitize")
	right := base.withOperation("analyze")

	assert.Empty(t, base.Operations)
	assert.Equal(t, []string{"sanitize"}, left.Operations)
	assert.Equal(t, []string{"analyze"}, right.Operations)

	chained := left.withOperation("analyze")
	assert.Equal(t, []string{"sanitize"}, left.Operations)
	assert.Equal(t, []string{"sanitize", "analyze"}, chained.Operations)

	failed := base.withError(StageError{Stage: "archive", Message: "store closed", Recoverable: true})
	assert.Empty(t, base.Errors)
	require.Len(t, failed.Errors, 1)
	assert.Equal(t, "archive", failed.Errors[0].Stage)
}

func TestContext_SliceProjection(t *testing.T) {
	msg := NewMessage("how do goroutines work?", "session-1")
	msg.UserID = "alice"
	msg.Metadata = map[string]string{"channel": "cli"}

	s := NewContext(msg).Slice()

	assert.Equal(t, "how do goroutines work?", s.Text)
	assert.Equal(t, "session-1", s.SessionID)
	assert.Equal(t, "alice", s.UserID)
	assert.Equal(t, msg.ReceivedAt, s.ReceivedAt)
	assert.Equal(t, "cli", s.Metadata["channel"])
}
