package allocprofiler

// BrokerOption configures a [Broker] at construction, as a functional
// option; the zero value of every underlying field means "use the default."
type BrokerOption func(*brokerConfig)

type brokerConfig struct {
	diagnostics     *Diagnostics
	shardCount      int
	initialQueueCap int
	maxQueueCap     int
}

func defaultBrokerConfig() brokerConfig {
	return brokerConfig{
		shardCount:      1,
		initialQueueCap: 64,
		maxQueueCap:     0, // unbounded growth by default
	}
}

// WithDiagnostics overrides the broker's [Diagnostics] sink. If not
// supplied, [NewBroker] creates one backed by slog.Default().
func WithDiagnostics(d *Diagnostics) BrokerOption {
	return func(c *brokerConfig) { c.diagnostics = d }
}

// WithShards configures the number of per-mutator-thread ingress shards,
// for a multi-threaded host runtime. count must be >= 1; values < 1 are
// treated as 1.
func WithShards(count int) BrokerOption {
	return func(c *brokerConfig) { c.shardCount = count }
}

// WithInitialQueueCapacity sets each shard's initial [DeferredQueue]
// capacity.
func WithInitialQueueCapacity(n int) BrokerOption {
	return func(c *brokerConfig) { c.initialQueueCap = n }
}

// WithMaxQueueCapacity bounds each shard's [DeferredQueue] growth. A value
// <= 0 means unbounded (the default): the queue keeps doubling rather than
// ever reporting overflow. A positive bound trades memory for a guarantee
// that Enqueue never allocates past that point, dropping events instead.
func WithMaxQueueCapacity(n int) BrokerOption {
	return func(c *brokerConfig) { c.maxQueueCap = n }
}

// CaptureOption configures a [Capture] at construction.
type CaptureOption func(*captureConfig)

type captureConfig struct {
	stackCapturer StackCapturer
}

// WithStackCapturer configures the [StackCapturer] used to attribute NEW
// events to a call tree for any class tracked with a [CallTree] enabled via
// [Capture.EnableCallTree]. If not supplied, tracked classes with call trees enabled
// will record only the empty stack (a no-op per [CallTree.Record]).
func WithStackCapturer(s StackCapturer) CaptureOption {
	return func(c *captureConfig) { c.stackCapturer = s }
}
