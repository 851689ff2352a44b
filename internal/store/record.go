package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TraitDefault seeds one persona axis for a user. Synthesis reads the full
// set once per run and persists refreshed values best-effort afterwards.
type TraitDefault struct {
	UserID string `json:"user_id"`
	Axis   string `json:"axis"`
	Value  string `json:"value"`
}

// Insight is a derived observation persisted after synthesis for later
// seeding and relevance scoring.
type Insight struct {
	UserID     string  `json:"user_id"`
	SessionID  string  `json:"session_id,omitempty"`
	Category   string  `json:"category"`
	Summary    string  `json:"summary"`
	Confidence float64 `json:"confidence"`
}

// Relationship tracks interaction history between a user and one entity.
type Relationship struct {
	UserID       string  `json:"user_id"`
	Entity       string  `json:"entity"`
	Strength     float64 `json:"strength"`
	Familiarity  string  `json:"familiarity,omitempty"`
	Style        string  `json:"style,omitempty"`
	Interactions int     `json:"interactions"`
}

// Session is the rolling state for one conversation session.
type Session struct {
	SessionID    string    `json:"session_id"`
	UserID       string    `json:"user_id,omitempty"`
	Mode         string    `json:"mode,omitempty"`
	Phase        string    `json:"phase,omitempty"`
	Messages     int       `json:"messages"`
	StartedAt    time.Time `json:"started_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// PutTraitDefault upserts the stored default for one user axis.
func PutTraitDefault(ctx context.Context, h Handle, td TraitDefault) error {
	if td.UserID == "" || td.Axis == "" {
		return fmt.Errorf("%w: trait default needs user and axis", ErrInvalidRecord)
	}
	data, err := json.Marshal(td)
	if err != nil {
		return fmt.Errorf("encoding trait default: %w", err)
	}
	return h.Put(ctx, &Record{
		Kind:   KindTraitDefaults,
		Key:    td.UserID + ":" + td.Axis,
		UserID: td.UserID,
		Labels: map[string]string{"axis": td.Axis},
		Data:   data,
	})
}

// TraitDefaults returns the stored axis defaults for a user, keyed by axis.
// Users without stored defaults get an empty map, not an error.
func TraitDefaults(ctx context.Context, h Handle, userID string) (map[string]string, error) {
	recs, err := h.List(ctx, KindTraitDefaults, Filter{UserID: userID})
	if err != nil {
		return nil, err
	}
	defaults := make(map[string]string, len(recs))
	for _, rec := range recs {
		var td TraitDefault
		if err := json.Unmarshal(rec.Data, &td); err != nil {
			return nil, fmt.Errorf("decoding trait default %s: %w", rec.Key, err)
		}
		// Listings are recency-first, so the first value per axis wins.
		if _, ok := defaults[td.Axis]; !ok && td.Axis != "" {
			defaults[td.Axis] = td.Value
		}
	}
	return defaults, nil
}

// AppendInsight stores a new insight record. Each call appends; insights are
// never overwritten.
func AppendInsight(ctx context.Context, h Handle, ins Insight) error {
	if ins.UserID == "" {
		return fmt.Errorf("%w: insight needs a user", ErrInvalidRecord)
	}
	data, err := json.Marshal(ins)
	if err != nil {
		return fmt.Errorf("encoding insight: %w", err)
	}
	return h.Put(ctx, &Record{
		Kind:      KindInsight,
		Key:       ins.UserID + ":" + uuid.NewString(),
		SessionID: ins.SessionID,
		UserID:    ins.UserID,
		Labels:    map[string]string{"category": ins.Category},
		Data:      data,
	})
}

// RecentInsights returns up to limit insights for a user, newest first.
func RecentInsights(ctx context.Context, h Handle, userID string, limit int) ([]Insight, error) {
	recs, err := h.List(ctx, KindInsight, Filter{UserID: userID, Limit: limit})
	if err != nil {
		return nil, err
	}
	insights := make([]Insight, 0, len(recs))
	for _, rec := range recs {
		var ins Insight
		if err := json.Unmarshal(rec.Data, &ins); err != nil {
			return nil, fmt.Errorf("decoding insight %s: %w", rec.Key, err)
		}
		insights = append(insights, ins)
	}
	return insights, nil
}

// PutRelationship upserts the profile for one user and entity pair.
func PutRelationship(ctx context.Context, h Handle, rel Relationship) error {
	if rel.UserID == "" || rel.Entity == "" {
		return fmt.Errorf("%w: relationship needs user and entity", ErrInvalidRecord)
	}
	data, err := json.Marshal(rel)
	if err != nil {
		return fmt.Errorf("encoding relationship: %w", err)
	}
	return h.Put(ctx, &Record{
		Kind:   KindRelationship,
		Key:    rel.UserID + ":" + rel.Entity,
		UserID: rel.UserID,
		Labels: map[string]string{"entity": rel.Entity},
		Data:   data,
	})
}

// Relationships returns the stored relationship profiles for a user,
// most recently updated first.
func Relationships(ctx context.Context, h Handle, userID string, limit int) ([]Relationship, error) {
	recs, err := h.List(ctx, KindRelationship, Filter{UserID: userID, Limit: limit})
	if err != nil {
		return nil, err
	}
	rels := make([]Relationship, 0, len(recs))
	for _, rec := range recs {
		var rel Relationship
		if err := json.Unmarshal(rec.Data, &rel); err != nil {
			return nil, fmt.Errorf("decoding relationship %s: %w", rec.Key, err)
		}
		rels = append(rels, rel)
	}
	return rels, nil
}

// PutSession upserts the rolling state for a session.
func PutSession(ctx context.Context, h Handle, sess Session) error {
	if sess.SessionID == "" {
		return fmt.Errorf("%w: session needs an id", ErrInvalidRecord)
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	return h.Put(ctx, &Record{
		Kind:      KindSession,
		Key:       sess.SessionID,
		SessionID: sess.SessionID,
		UserID:    sess.UserID,
		Data:      data,
	})
}

// GetSession returns the stored state for a session.
// Returns ErrNotFound for sessions never seen before.
func GetSession(ctx context.Context, h Handle, sessionID string) (*Session, error) {
	rec, err := h.Get(ctx, KindSession, sessionID)
	if err != nil {
		return nil, err
	}
	var sess Session
	if err := json.Unmarshal(rec.Data, &sess); err != nil {
		return nil, fmt.Errorf("decoding session %s: %w", sessionID, err)
	}
	return &sess, nil
}
