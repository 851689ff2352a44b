package logging

import (
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

const redactedValue = "[REDACTED]"

// RedactedString creates a Zap field carrying only the value's length.
func RedactedString(key, val string) zap.Field {
	return zap.String(key, "[REDACTED:"+strconv.Itoa(len(val))+"]")
}

// redactingEncoder wraps a zapcore.Encoder and masks string-shaped values
// whose field name matches the configured deny list. Pattern scanning of
// values is left to the sanitize scrubber, which runs before anything
// user-supplied reaches a log call.
type redactingEncoder struct {
	zapcore.Encoder
	deny map[string]bool
}

// newRedactingEncoder wraps base with field-name redaction. A nil or empty
// deny list returns base unchanged.
func newRedactingEncoder(base zapcore.Encoder, fields []string) zapcore.Encoder {
	if len(fields) == 0 {
		return base
	}
	deny := make(map[string]bool, len(fields))
	for _, f := range fields {
		deny[strings.ToLower(f)] = true
	}
	return &redactingEncoder{Encoder: base, deny: deny}
}

func (e *redactingEncoder) denied(key string) bool {
	return e.deny[strings.ToLower(key)]
}

func (e *redactingEncoder) AddString(key, val string) {
	if e.denied(key) {
		e.Encoder.AddString(key, redactedValue)
		return
	}
	e.Encoder.AddString(key, val)
}

func (e *redactingEncoder) AddByteString(key string, val []byte) {
	if e.denied(key) {
		e.Encoder.AddByteString(key, []byte(redactedValue))
		return
	}
	e.Encoder.AddByteString(key, val)
}

func (e *redactingEncoder) AddBinary(key string, val []byte) {
	if e.denied(key) {
		e.Encoder.AddBinary(key, []byte(redactedValue))
		return
	}
	e.Encoder.AddBinary(key, val)
}

func (e *redactingEncoder) AddReflected(key string, val interface{}) error {
	if e.denied(key) {
		e.Encoder.AddString(key, redactedValue)
		return nil
	}
	return e.Encoder.AddReflected(key, val)
}

// EncodeEntry masks call-site fields. Fields attached via With go through the
// Add* overrides above; fields passed at the log call reach the encoder only
// here.
func (e *redactingEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	for i, f := range fields {
		if e.denied(f.Key) {
			fields[i] = zap.String(f.Key, redactedValue)
		}
	}
	return e.Encoder.EncodeEntry(ent, fields)
}

func (e *redactingEncoder) Clone() zapcore.Encoder {
	return &redactingEncoder{
		Encoder: e.Encoder.Clone(),
		deny:    e.deny,
	}
}
