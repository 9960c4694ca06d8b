package metrics

import "github.com/fleetdb/branchmigrate"

// Outcomes recorded by IncBranchRun.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Collector wraps metrics and provides helper methods with a pre-filled
// fleet label.
type Collector struct {
	fleet string
}

// NewCollector creates a new Collector for the given fleet name.
func NewCollector(fleet string) *Collector {
	if fleet == "" {
		fleet = "default"
	}
	return &Collector{fleet: fleet}
}

// IncUnitApplied increments the applied-units counter for an engine.
func (c *Collector) IncUnitApplied(engine branchmigrate.EngineKind) {
	UnitsAppliedTotal.WithLabelValues(c.fleet, string(engine)).Inc()
}

// IncApplyFailure increments the forward-script failure counter for an engine.
func (c *Collector) IncApplyFailure(engine branchmigrate.EngineKind) {
	ApplyFailuresTotal.WithLabelValues(c.fleet, string(engine)).Inc()
}

// IncUnitRolledBack increments the rolled-back-units counter for an engine.
func (c *Collector) IncUnitRolledBack(engine branchmigrate.EngineKind) {
	UnitsRolledBackTotal.WithLabelValues(c.fleet, string(engine)).Inc()
}

// IncRollbackFailure increments the backward-script failure counter for an
// engine.
func (c *Collector) IncRollbackFailure(engine branchmigrate.EngineKind) {
	RollbackFailuresTotal.WithLabelValues(c.fleet, string(engine)).Inc()
}

// IncManualIntervention increments the manual-intervention counter for an
// engine.
func (c *Collector) IncManualIntervention(engine branchmigrate.EngineKind) {
	ManualInterventionsTotal.WithLabelValues(c.fleet, string(engine)).Inc()
}

// IncBranchRun increments the per-branch run counter for an operation and
// outcome.
func (c *Collector) IncBranchRun(operation, outcome string) {
	BranchRunsTotal.WithLabelValues(c.fleet, operation, outcome).Inc()
}

// AddBranchesInProgress adjusts the in-progress gauge by delta.
func (c *Collector) AddBranchesInProgress(delta int) {
	BranchesInProgress.WithLabelValues(c.fleet).Add(float64(delta))
}
