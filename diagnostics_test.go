package allocprofiler

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiagnostics_CallbackPanicIsReportedNotFatal(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	diag := NewDiagnostics(handler)

	broker, err := NewBroker(WithDiagnostics(diag), WithInitialQueueCapacity(4))
	require.NoError(t, err)
	c := NewCapture(broker, noopSource{})
	c.Track("H", func(ClassRef, Kind, any) any {
		panic("boom")
	})
	require.True(t, c.Start())
	defer c.Stop()

	broker.Enqueue(New, "H", 1)
	require.NotPanics(t, func() {
		broker.Flush(context.Background())
	})

	// The callback panicked, but the NEW was still fully counted before the
	// callback ran: counter updates happen before the user callback fires.
	assert.EqualValues(t, 1, c.CountFor("H"))
	assert.Contains(t, buf.String(), "callback failed")
}

func TestDiagnostics_ErrorSinkIsRateLimited(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	diag := NewDiagnostics(handler)

	for i := 0; i < 50; i++ {
		diag.reportCallbackError(&CallbackError{Class: "H", Kind: New, Cause: assertError{}})
	}

	snap := diag.Snapshot()
	assert.Greater(t, snap.Suppressed, uint64(0), "a burst of identical-class errors must eventually be throttled")
}

type assertError struct{}

func (assertError) Error() string { return "boom" }
