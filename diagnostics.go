package allocprofiler

import (
	"log/slog"
	"sync/atomic"
	"time"

	catrate "github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
	islog "github.com/joeycumines/logiface-slog"
)

// Diagnostics is the broker's diagnostic surface: a drop counter and a sink
// for user-callback errors, backed by structured logging. The error sink is
// throttled by a sliding-window rate limiter so a pathological callback that
// panics on every invocation cannot flood the log under a churn storm — the
// drop count itself is unaffected and always accurate.
type Diagnostics struct {
	logger     *logiface.Logger[*islog.Event]
	limiter    *catrate.Limiter
	dropped    atomic.Uint64
	suppressed atomic.Uint64
}

// Snapshot is a point-in-time read of [Diagnostics] counters.
type Snapshot struct {
	Dropped    uint64
	Suppressed uint64
}

// NewDiagnostics creates a Diagnostics backed by the given slog handler. A
// nil handler uses slog.Default(). The callback-error sink is rate limited
// to at most 20 reports per second and 200 per minute per distinct class.
func NewDiagnostics(handler slog.Handler) *Diagnostics {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	logger := islog.L.New(islog.L.WithSlogHandler(handler))
	limiter := catrate.NewLimiter(map[time.Duration]int{
		time.Second: 20,
		time.Minute: 200,
	})
	return &Diagnostics{logger: logger, limiter: limiter}
}

// recordDrop increments the drop counter and logs at debug level. The drop
// counter itself is never rate limited — it must stay accurate — and the
// logging here happens outside the hot path (from within a Flush), so it is
// safe to always log.
func (d *Diagnostics) recordDrop(kind Kind, class ClassRef) {
	d.dropped.Add(1)
	d.logger.Debug().Str("kind", kind.String()).Log("allocprofiler: event dropped, deferred queue at capacity")
	_ = class // retained for future per-class drop accounting; not aggregated today
}

// reportCallbackError forwards a [CallbackError] to the structured log,
// throttled per class so a callback that fails on every invocation cannot
// flood the sink.
func (d *Diagnostics) reportCallbackError(err *CallbackError) {
	if _, ok := d.limiter.Allow(err.Class); !ok {
		d.suppressed.Add(1)
		return
	}
	d.logger.Err().
		Err(err.Cause).
		Str("kind", err.Kind.String()).
		Int("identity", int(err.Identity)).
		Log("allocprofiler: user callback failed")
}

// Snapshot returns a point-in-time read of the diagnostic counters.
func (d *Diagnostics) Snapshot() Snapshot {
	return Snapshot{Dropped: d.dropped.Load(), Suppressed: d.suppressed.Load()}
}
