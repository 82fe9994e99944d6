package metrics

// Collector wraps metrics and provides helper methods with pre-filled labels.
type Collector struct {
	gatherer string
}

// NewCollector creates a new Collector for the given gatherer name.
func NewCollector(gatherer string) *Collector {
	return &Collector{gatherer: gatherer}
}

// IncRequestsDispatched increments the dispatched requests counter.
func (c *Collector) IncRequestsDispatched() {
	RequestsDispatchedTotal.WithLabelValues(c.gatherer).Inc()
}

// IncDispatchRejected increments the rejected submissions counter for a reason.
func (c *Collector) IncDispatchRejected(reason string) {
	DispatchRejectedTotal.WithLabelValues(c.gatherer, reason).Inc()
}

// IncPartials increments the partials counter for a store outcome.
func (c *Collector) IncPartials(outcome string) {
	PartialsTotal.WithLabelValues(c.gatherer, outcome).Inc()
}

// IncBarrierFired increments the barrier fired counter.
func (c *Collector) IncBarrierFired() {
	BarrierFiredTotal.WithLabelValues(c.gatherer).Inc()
}

// IncPipelineRuns increments the pipeline runs counter.
func (c *Collector) IncPipelineRuns() {
	PipelineRunsTotal.WithLabelValues(c.gatherer).Inc()
}

// IncPipelineErrors increments the pipeline errors counter for a stage.
func (c *Collector) IncPipelineErrors(stage string) {
	PipelineErrorsTotal.WithLabelValues(c.gatherer, stage).Inc()
}

// IncUnsummarized increments the counter of completed requests left without a summary.
func (c *Collector) IncUnsummarized(step string) {
	UnsummarizedTotal.WithLabelValues(c.gatherer, step).Inc()
}

// IncJobErrors increments the job errors counter.
func (c *Collector) IncJobErrors() {
	JobErrorsTotal.WithLabelValues(c.gatherer).Inc()
}

// SetStalledRequests sets the stalled requests gauge.
func (c *Collector) SetStalledRequests(count int) {
	StalledRequests.WithLabelValues(c.gatherer).Set(float64(count))
}

// SetRunningJobs sets the running jobs gauge.
func (c *Collector) SetRunningJobs(count int) {
	RunningJobs.WithLabelValues(c.gatherer).Set(float64(count))
}

// ObserveStageDuration records a pipeline stage duration observation.
func (c *Collector) ObserveStageDuration(stage string, seconds float64) {
	StageDuration.WithLabelValues(c.gatherer, stage).Observe(seconds)
}

// ObserveGatherDuration records the time a request took to gather all partials.
func (c *Collector) ObserveGatherDuration(seconds float64) {
	GatherDuration.WithLabelValues(c.gatherer).Observe(seconds)
}
