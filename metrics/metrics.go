package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// UnitsAppliedTotal tracks the total number of migration units applied.
var UnitsAppliedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "branchmigrate_units_applied_total",
		Help: "Total migration units applied",
	},
	[]string{"fleet", "engine"},
)

// ApplyFailuresTotal tracks the total number of failed forward scripts.
var ApplyFailuresTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "branchmigrate_apply_failures_total",
		Help: "Total forward script failures",
	},
	[]string{"fleet", "engine"},
)

// UnitsRolledBackTotal tracks the total number of migration units rolled back.
var UnitsRolledBackTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "branchmigrate_units_rolled_back_total",
		Help: "Total migration units rolled back",
	},
	[]string{"fleet", "engine"},
)

// RollbackFailuresTotal tracks the total number of failed backward scripts.
var RollbackFailuresTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "branchmigrate_rollback_failures_total",
		Help: "Total backward script failures",
	},
	[]string{"fleet", "engine"},
)

// ManualInterventionsTotal tracks how many branches entered the
// requires_manual_intervention state.
var ManualInterventionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "branchmigrate_manual_interventions_total",
		Help: "Total branches that entered requires_manual_intervention",
	},
	[]string{"fleet", "engine"},
)

// BranchRunsTotal tracks per-branch apply/rollback runs by outcome.
var BranchRunsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "branchmigrate_branch_runs_total",
		Help: "Total per-branch operations by outcome",
	},
	[]string{"fleet", "operation", "outcome"},
)

// BranchesInProgress tracks the number of branch operations currently running.
var BranchesInProgress = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "branchmigrate_branches_in_progress",
		Help: "Branch operations currently running",
	},
	[]string{"fleet"},
)
