// Package logging provides structured logging for personad.
//
// # Overview
//
// The package wraps Zap with:
//   - Custom Trace level (-2, below Debug)
//   - Dual output (stdout + OpenTelemetry log bridge)
//   - Automatic context field injection (run, session, user, trace ids)
//   - Field-name redaction for credential-shaped values
//   - Sampling that never drops Error and above
//
// # Usage
//
// Create a logger from config:
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.NewLogger(cfg, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
// Log with context:
//
//	ctx = logging.WithRunID(ctx, runID)
//	ctx = logging.WithSessionID(ctx, "sess_123")
//	logger.Info(ctx, "message processed", zap.Duration("duration", d))
//
// Every entry carries the correlation fields present on the context, so a
// single run can be followed across the pipeline, the event publisher, and
// the HTTP layer without threading ids by hand.
//
// # Testing
//
// TestLogger records entries through a zap observer:
//
//	tl := logging.NewTestLogger()
//	tl.Info(ctx, "hello", zap.String("key", "value"))
//	tl.AssertLogged(t, zapcore.InfoLevel, "hello")
package logging
