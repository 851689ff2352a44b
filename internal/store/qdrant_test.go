package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fyrsmithlabs/personad/internal/logging"
)

func TestQdrantOptions_ApplyDefaults(t *testing.T) {
	tests := []struct {
		name  string
		opts  QdrantOptions
		check func(t *testing.T, opts QdrantOptions)
	}{
		{
			name: "empty options get all defaults",
			opts: QdrantOptions{},
			check: func(t *testing.T, opts QdrantOptions) {
				assert.Equal(t, "localhost", opts.Host)
				assert.Equal(t, 6334, opts.Port)
				assert.Equal(t, "personad", opts.CollectionPrefix)
				assert.Equal(t, DefaultVectorSize, opts.VectorSize)
			},
		},
		{
			name: "partial options preserve set values",
			opts: QdrantOptions{Host: "qdrant.example.com", Port: 6335, VectorSize: 128},
			check: func(t *testing.T, opts QdrantOptions) {
				assert.Equal(t, "qdrant.example.com", opts.Host)
				assert.Equal(t, 6335, opts.Port)
				assert.Equal(t, "personad", opts.CollectionPrefix)
				assert.Equal(t, 128, opts.VectorSize)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.ApplyDefaults()
			tt.check(t, tt.opts)
		})
	}
}

func TestQdrantOptions_Validate(t *testing.T) {
	tests := []struct {
		name    string
		opts    QdrantOptions
		wantErr bool
	}{
		{"defaults are valid", QdrantOptions{Host: "localhost", Port: 6334, VectorSize: 256}, false},
		{"port too low", QdrantOptions{Host: "localhost", Port: -1, VectorSize: 256}, true},
		{"port too high", QdrantOptions{Host: "localhost", Port: 70000, VectorSize: 256}, true},
		{"negative vector size", QdrantOptions{Host: "localhost", Port: 6334, VectorSize: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestQdrantStore_CollectionNaming(t *testing.T) {
	s := &QdrantStore{opts: QdrantOptions{CollectionPrefix: "personad"}}
	assert.Equal(t, "personad-trait-defaults", s.collection(KindTraitDefaults))
	assert.Equal(t, "personad-session", s.collection(KindSession))
}

func TestRecordID_StableUUID(t *testing.T) {
	a := recordID(KindSession, "sess-1")
	b := recordID(KindSession, "sess-1")
	assert.Equal(t, a, b)

	_, err := uuid.Parse(a)
	require.NoError(t, err, "qdrant point ids must be valid UUIDs")

	assert.NotEqual(t, a, recordID(KindSession, "sess-2"))
	assert.NotEqual(t, a, recordID(KindInsight, "sess-1"))
}

func TestQdrantPayload_RoundTrip(t *testing.T) {
	rec := &Record{
		ID:        recordID(KindRelationship, "alice:assistant"),
		Kind:      KindRelationship,
		Key:       "alice:assistant",
		SessionID: "sess-1",
		UserID:    "alice",
		Labels:    map[string]string{"entity": "assistant"},
		Data:      []byte(`{"strength":0.8}`),
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
	}
	content, err := json.Marshal(rec)
	require.NoError(t, err)

	payload := qdrantPayload(rec, content)
	assert.Equal(t, "alice:assistant", payload[fieldKey].GetStringValue())
	assert.Equal(t, "sess-1", payload[fieldSessionID].GetStringValue())
	assert.Equal(t, "alice", payload[fieldUserID].GetStringValue())
	assert.Equal(t, "assistant", payload[labelPrefix+"entity"].GetStringValue())
	assert.Equal(t, rec.CreatedAt.UnixNano(), payload[fieldCreatedAt].GetIntegerValue())
	assert.Equal(t, rec.UpdatedAt.UnixNano(), payload[fieldUpdatedAt].GetIntegerValue())

	decoded, err := decodeQdrantPayload(payload)
	require.NoError(t, err)
	assert.Equal(t, rec.Kind, decoded.Kind)
	assert.Equal(t, rec.Key, decoded.Key)
	assert.Equal(t, rec.Labels, decoded.Labels)
	assert.JSONEq(t, string(rec.Data), string(decoded.Data))
	assert.True(t, decoded.UpdatedAt.Equal(rec.UpdatedAt))
}

func TestDecodeQdrantPayload_MissingRecord(t *testing.T) {
	_, err := decodeQdrantPayload(map[string]*qdrant.Value{})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestQdrantFilter(t *testing.T) {
	assert.Nil(t, qdrantFilter(Filter{}), "empty filter sends no server-side conditions")

	f := qdrantFilter(Filter{
		SessionID: "sess-1",
		UserID:    "alice",
		Labels:    map[string]string{"category": "preference"},
	})
	require.NotNil(t, f)
	require.Len(t, f.Must, 3)

	keys := map[string]string{}
	for _, cond := range f.Must {
		field := cond.GetField()
		require.NotNil(t, field)
		keys[field.Key] = field.Match.GetKeyword()
	}
	assert.Equal(t, "sess-1", keys[fieldSessionID])
	assert.Equal(t, "alice", keys[fieldUserID])
	assert.Equal(t, "preference", keys[labelPrefix+"category"])
}

func TestIsTransientError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"unavailable is transient", status.Error(codes.Unavailable, "down"), true},
		{"deadline exceeded is transient", status.Error(codes.DeadlineExceeded, "slow"), true},
		{"aborted is transient", status.Error(codes.Aborted, "conflict"), true},
		{"resource exhausted is transient", status.Error(codes.ResourceExhausted, "quota"), true},
		{"invalid argument is permanent", status.Error(codes.InvalidArgument, "bad"), false},
		{"not found is permanent", status.Error(codes.NotFound, "missing"), false},
		{"permission denied is permanent", status.Error(codes.PermissionDenied, "no"), false},
		{"unauthenticated is permanent", status.Error(codes.Unauthenticated, "who"), false},
		{"already exists is permanent", status.Error(codes.AlreadyExists, "dup"), false},
		{"plain error is permanent", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isTransientError(tt.err))
		})
	}
}

func TestRetryOperation_Logging(t *testing.T) {
	tests := []struct {
		name         string
		operation    func() error
		retries      int
		wantErr      bool
		expectedLogs []struct {
			level   zapcore.Level
			message string
		}
	}{
		{
			name:      "successful operation logs nothing",
			operation: func() error { return nil },
			retries:   3,
		},
		{
			name: "transient error then success logs retry and recovery",
			operation: func() func() error {
				attempt := 0
				return func() error {
					attempt++
					if attempt == 1 {
						return status.Error(codes.Unavailable, "service unavailable")
					}
					return nil
				}
			}(),
			retries: 3,
			expectedLogs: []struct {
				level   zapcore.Level
				message string
			}{
				{level: zapcore.DebugLevel, message: "retrying operation after transient error"},
				{level: zapcore.InfoLevel, message: "operation recovered after retries"},
			},
		},
		{
			name: "retries exhausted logs final failure",
			operation: func() error {
				return status.Error(codes.Unavailable, "service unavailable")
			},
			retries: 1,
			wantErr: true,
			expectedLogs: []struct {
				level   zapcore.Level
				message string
			}{
				{level: zapcore.DebugLevel, message: "retrying operation after transient error"},
				{level: zapcore.WarnLevel, message: "operation failed after all retries exhausted"},
			},
		},
		{
			name: "permanent error returns without retrying",
			operation: func() error {
				return status.Error(codes.InvalidArgument, "bad request")
			},
			retries: 3,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testLogger := logging.NewTestLogger()
			s := &QdrantStore{logger: testLogger.Logger, retries: tt.retries}

			err := s.retryOperation(context.Background(), tt.operation)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}

			for _, expected := range tt.expectedLogs {
				testLogger.AssertLogged(t, expected.level, expected.message)
			}
			if len(tt.expectedLogs) == 0 {
				assert.Empty(t, testLogger.All())
			}
		})
	}
}
