package telemetry

// NoopProvider satisfies Provider without recording anything. It is the
// backend used when telemetry is disabled.
type NoopProvider struct{}

// NewNoopProvider returns the no-op backend.
func NewNoopProvider() *NoopProvider { return &NoopProvider{} }

func (*NoopProvider) Counter(Opts) Counter              { return noopInstrument{} }
func (*NoopProvider) Gauge(Opts) Gauge                  { return noopInstrument{} }
func (*NoopProvider) Histogram(HistogramOpts) Histogram { return noopInstrument{} }

type noopInstrument struct{}

func (noopInstrument) Inc(...string)              {}
func (noopInstrument) Add(float64, ...string)     {}
func (noopInstrument) Set(float64, ...string)     {}
func (noopInstrument) Observe(float64, ...string) {}
