// Package metrics registers the rcrowley/go-metrics counters and gauges
// the pool coordinator exposes: declare once at package scope, update from
// wherever the event happens.
package metrics

import "github.com/rcrowley/go-metrics"

var (
	// Discoverer.
	BlocksDiscoveredCounter = metrics.NewRegisteredCounter("discoverer/blocksDiscovered", nil)
	PlantsAttemptedCounter  = metrics.NewRegisteredCounter("discoverer/plantsAttempted", nil)
	PlantsSucceededCounter  = metrics.NewRegisteredCounter("discoverer/plantsSucceeded", nil)
	PlantsFailedCounter     = metrics.NewRegisteredCounter("discoverer/plantsFailed", nil)
	PlantBurstDurationGauge = metrics.NewRegisteredGauge("discoverer/plantBurstDurationMs", nil)
	NotifyRetryCounter      = metrics.NewRegisteredCounter("discoverer/notifyRetries", nil)

	// Executor.
	WorksAttemptedCounter    = metrics.NewRegisteredCounter("executor/worksAttempted", nil)
	WorksSucceededCounter    = metrics.NewRegisteredCounter("executor/worksSucceeded", nil)
	WorksFailedCounter       = metrics.NewRegisteredCounter("executor/worksFailed", nil)
	HarvestsAttemptedCounter = metrics.NewRegisteredCounter("executor/harvestsAttempted", nil)
	HarvestsSucceededCounter = metrics.NewRegisteredCounter("executor/harvestsSucceeded", nil)
	HarvestsFailedCounter    = metrics.NewRegisteredCounter("executor/harvestsFailed", nil)
	NonceSearchDurationGauge = metrics.NewRegisteredGauge("executor/nonceSearchDurationMs", nil)
	ScheduledTimersGauge     = metrics.NewRegisteredGauge("executor/scheduledTimers", nil)

	// Settlement.
	ExitsInitiatedCounter  = metrics.NewRegisteredCounter("settlement/exitsInitiated", nil)
	ExitsPaidCounter       = metrics.NewRegisteredCounter("settlement/exitsPaid", nil)
	ExitsFailedCounter     = metrics.NewRegisteredCounter("settlement/exitsFailed", nil)
	ExitPayoutLegRetryCounter = metrics.NewRegisteredCounter("settlement/payoutLegRetries", nil)
	ReconciliationRunsCounter = metrics.NewRegisteredCounter("settlement/reconciliationRuns", nil)

	// Shared.
	QueueDepthGauge = metrics.NewRegisteredGauge("shared/plantQueueDepth", nil)
)
