package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RequestsDispatchedTotal tracks the total number of collection requests dispatched.
var RequestsDispatchedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pupsourcing_gather_requests_dispatched_total",
		Help: "Total collection requests dispatched",
	},
	[]string{"gatherer"},
)

// DispatchRejectedTotal tracks submissions that were rejected before dispatch.
var DispatchRejectedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pupsourcing_gather_dispatch_rejected_total",
		Help: "Total submissions rejected before dispatch",
	},
	[]string{"gatherer", "reason"},
)

// PartialsTotal tracks reported partials by store outcome.
var PartialsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pupsourcing_gather_partials_total",
		Help: "Total partials reported, by outcome",
	},
	[]string{"gatherer", "outcome"},
)

// BarrierFiredTotal tracks the number of requests whose last expected partial arrived.
var BarrierFiredTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pupsourcing_gather_barrier_fired_total",
		Help: "Total requests that completed the aggregation barrier",
	},
	[]string{"gatherer"},
)

// PipelineRunsTotal tracks the total number of pipeline runs.
var PipelineRunsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pupsourcing_gather_pipeline_runs_total",
		Help: "Total pipeline runs",
	},
	[]string{"gatherer"},
)

// PipelineErrorsTotal tracks pipeline runs that failed, by stage.
var PipelineErrorsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pupsourcing_gather_pipeline_errors_total",
		Help: "Total pipeline errors, by stage",
	},
	[]string{"gatherer", "stage"},
)

// UnsummarizedTotal tracks completed requests that got no summary, by failing step.
// Such requests are neither waiting nor readable and need operator attention.
var UnsummarizedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pupsourcing_gather_unsummarized_requests_total",
		Help: "Total completed requests left without a summary, by failing step",
	},
	[]string{"gatherer", "step"},
)

// JobErrorsTotal tracks collector jobs whose handler returned an error.
var JobErrorsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pupsourcing_gather_job_errors_total",
		Help: "Total collector job errors",
	},
	[]string{"gatherer"},
)

// StalledRequests tracks the number of requests waiting longer than the stall threshold.
var StalledRequests = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "pupsourcing_gather_stalled_requests",
		Help: "Requests waiting longer than the stall threshold",
	},
	[]string{"gatherer"},
)

// RunningJobs tracks the number of collector jobs currently running on the pool.
var RunningJobs = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "pupsourcing_gather_running_jobs",
		Help: "Collector jobs currently running",
	},
	[]string{"gatherer"},
)

// StageDuration tracks time spent in each pipeline stage.
var StageDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "pupsourcing_gather_stage_duration_seconds",
		Help:    "Time spent in each pipeline stage",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"gatherer", "stage"},
)

// GatherDuration tracks time from dispatch to barrier completion.
var GatherDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "pupsourcing_gather_gather_duration_seconds",
		Help:    "Time from dispatch until the last expected partial arrived",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"gatherer"},
)
