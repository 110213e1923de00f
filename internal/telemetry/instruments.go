package telemetry

import (
	"time"
)

// Stable metric names. They carry no transport or backend hints so
// dashboards survive a transport change.
const (
	MetricRunsTotal         = "tpf_pipeline_runs_total"
	MetricRunDuration       = "tpf_pipeline_run_duration_seconds"
	MetricStepDuration      = "tpf_pipeline_step_duration_seconds"
	MetricStepRetries       = "tpf_pipeline_step_retries_total"
	MetricStepInflight      = "tpf_pipeline_step_inflight"
	MetricBackpressureDepth = "tpf_pipeline_backpressure_depth"
	MetricItemsConsumed     = "tpf_pipeline_items_consumed_total"
	MetricItemsProduced     = "tpf_pipeline_items_produced_total"
	MetricItemsDropped      = "tpf_pipeline_items_dropped_total"
	MetricItemOutcomes      = "tpf_pipeline_item_outcomes_total"
	MetricKillSwitchTripped = "tpf_pipeline_kill_switch_tripped_total"
)

// Outcome label values for run and item totals.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeCancelled = "cancelled"
)

// Instruments bundles every pipeline metric. One set is created at
// startup and shared by all runs; per-step series are separated by the
// step label.
type Instruments struct {
	RunsTotal         Counter
	RunDuration       Histogram
	StepDuration      Histogram
	StepRetries       Counter
	StepInflight      Gauge
	BackpressureDepth Gauge
	ItemsConsumed     Counter
	ItemsProduced     Counter
	ItemsDropped      Counter
	ItemOutcomes      Counter
	KillSwitchTripped Counter
}

// NewInstruments registers the pipeline metric set on the provider.
func NewInstruments(p Provider) *Instruments {
	return &Instruments{
		RunsTotal: p.Counter(Opts{
			Name:   MetricRunsTotal,
			Help:   "Completed pipeline runs by outcome.",
			Labels: []string{"outcome"},
		}),
		RunDuration: p.Histogram(HistogramOpts{Opts: Opts{
			Name: MetricRunDuration,
			Help: "Wall-clock duration of a pipeline run.",
		}}),
		StepDuration: p.Histogram(HistogramOpts{Opts: Opts{
			Name:   MetricStepDuration,
			Help:   "Duration of a single step application.",
			Labels: []string{"step"},
		}}),
		StepRetries: p.Counter(Opts{
			Name:   MetricStepRetries,
			Help:   "Retry attempts per step.",
			Labels: []string{"step"},
		}),
		StepInflight: p.Gauge(Opts{
			Name:   MetricStepInflight,
			Help:   "Items currently being processed per step.",
			Labels: []string{"step"},
		}),
		BackpressureDepth: p.Gauge(Opts{
			Name:   MetricBackpressureDepth,
			Help:   "Items queued in a step's backpressure buffer.",
			Labels: []string{"step"},
		}),
		ItemsConsumed: p.Counter(Opts{
			Name:   MetricItemsConsumed,
			Help:   "Items consumed per step.",
			Labels: []string{"step"},
		}),
		ItemsProduced: p.Counter(Opts{
			Name:   MetricItemsProduced,
			Help:   "Items produced per step.",
			Labels: []string{"step"},
		}),
		ItemsDropped: p.Counter(Opts{
			Name:   MetricItemsDropped,
			Help:   "Items discarded by the DROP backpressure strategy per step.",
			Labels: []string{"step"},
		}),
		ItemOutcomes: p.Counter(Opts{
			Name:   MetricItemOutcomes,
			Help:   "Per-item outcomes per step, the SLO totals.",
			Labels: []string{"step", "outcome"},
		}),
		KillSwitchTripped: p.Counter(Opts{
			Name:   MetricKillSwitchTripped,
			Help:   "Runs aborted by the retry-amplification guard per step.",
			Labels: []string{"step"},
		}),
	}
}

// ObserveRun records one finished run.
func (i *Instruments) ObserveRun(outcome string, elapsed time.Duration) {
	i.RunsTotal.Inc(outcome)
	i.RunDuration.Observe(elapsed.Seconds())
}

// ObserveStep records one step application.
func (i *Instruments) ObserveStep(step string, elapsed time.Duration) {
	i.StepDuration.Observe(elapsed.Seconds(), step)
}
