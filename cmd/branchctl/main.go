// branchctl drives the branch migration orchestrator from the command line:
// inspecting status, applying and rolling back migration units, and
// validating live schemas across the fleet.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fleetdb/branchmigrate"
	"github.com/fleetdb/branchmigrate/engine"
	"github.com/fleetdb/branchmigrate/executor"
	"github.com/fleetdb/branchmigrate/metrics"
	memoryregistry "github.com/fleetdb/branchmigrate/registry/memory"
	"github.com/fleetdb/branchmigrate/router"
	sqlitestore "github.com/fleetdb/branchmigrate/store/sqlite"
	"github.com/fleetdb/branchmigrate/validator"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type options struct {
	dataRoot    string
	ledgerPath  string
	migrations  string
	branches    string
	workers     int
	metricsAddr string
	verbose     bool
}

// env holds the wired components a command operates on.
type env struct {
	registry  *memoryregistry.Registry
	router    *router.Router
	engine    *engine.Engine
	validator *validator.Validator
	ledger    *sql.DB
	metrics   *metrics.Server
}

func (e *env) close() {
	if e.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.metrics.Shutdown(ctx); err != nil {
			log.WithError(err).Warn("Failed to shut down metrics server")
		}
	}
	if e.ledger != nil {
		_ = e.ledger.Close()
	}
}

// branchManifestEntry is one branch in the branches JSON manifest.
type branchManifestEntry struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Engine   string            `json:"engine"`
	Host     string            `json:"host,omitempty"`
	Port     int               `json:"port,omitempty"`
	Database string            `json:"database"`
	Username string            `json:"username,omitempty"`
	Password string            `json:"password,omitempty"`
	SSLMode  string            `json:"sslmode,omitempty"`
	Params   map[string]string `json:"params,omitempty"`
	Active   *bool             `json:"active,omitempty"`
}

func main() {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:          "branchctl",
		Short:        "Orchestrate schema migrations across a fleet of branch databases",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.verbose {
				log.SetLevel(log.DebugLevel)
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.dataRoot, "data-root", "data", "directory holding embedded-engine database files")
	flags.StringVar(&opts.ledgerPath, "ledger", "branchmigrate.db", "path of the SQLite status ledger")
	flags.StringVar(&opts.migrations, "migrations", "migrations", "directory holding the catalog manifest and scripts")
	flags.StringVar(&opts.branches, "branches", "branches.json", "path of the branch manifest")
	flags.IntVar(&opts.workers, "workers", engine.DefaultMaxConcurrency, "maximum concurrent branch operations")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "address for the prometheus metrics endpoint (disabled when empty)")
	flags.BoolVar(&opts.verbose, "verbose", false, "enable debug logging")

	rootCmd.AddCommand(
		newStatusCmd(opts),
		newPendingCmd(opts),
		newApplyCmd(opts),
		newRollbackCmd(opts),
		newValidateCmd(opts),
		newResolveCmd(opts),
		newCreateCmd(opts),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// signalContext returns a context cancelled on SIGINT/SIGTERM. In-flight
// migration units finish before cancellation is honored.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func setup(opts *options) (*env, error) {
	catalog, err := branchmigrate.LoadCatalog(os.DirFS(opts.migrations))
	if err != nil {
		return nil, err
	}

	registry, err := loadRegistry(opts.branches)
	if err != nil {
		return nil, err
	}

	rt := router.New(router.Config{DataRoot: opts.dataRoot, Logger: log.StandardLogger()})
	registry.OnDescriptorChange(rt.Invalidate)

	ledger, err := sql.Open("sqlite3", opts.ledgerPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open status ledger")
	}
	statusStore := sqlitestore.New(ledger)
	if err := statusStore.Init(context.Background()); err != nil {
		_ = ledger.Close()
		return nil, err
	}

	var collector *metrics.Collector
	if opts.metricsAddr != "" {
		collector = metrics.NewCollector("default")
	}

	eng, err := engine.New(engine.Config{
		Registry:       registry,
		Catalog:        catalog,
		Router:         rt,
		Store:          statusStore,
		Runner:         executor.New(),
		MaxConcurrency: opts.workers,
		Logger:         log.StandardLogger(),
		Collector:      collector,
	})
	if err != nil {
		_ = ledger.Close()
		return nil, err
	}

	val, err := validator.New(validator.Config{
		Registry: registry,
		Catalog:  catalog,
		Router:   rt,
		Logger:   log.StandardLogger(),
	})
	if err != nil {
		_ = ledger.Close()
		return nil, err
	}

	var metricsServer *metrics.Server
	if opts.metricsAddr != "" {
		metricsServer = metrics.NewServer(opts.metricsAddr, log.StandardLogger())
		metricsServer.Start()
	}

	return &env{
		registry:  registry,
		router:    rt,
		engine:    eng,
		validator: val,
		ledger:    ledger,
		metrics:   metricsServer,
	}, nil
}

func loadRegistry(path string) (*memoryregistry.Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read branch manifest")
	}

	var entries []branchManifestEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, errors.Wrap(err, "failed to parse branch manifest")
	}

	registry := memoryregistry.New()
	for _, entry := range entries {
		branch := branchmigrate.Branch{
			ID:   entry.ID,
			Name: entry.Name,
			Descriptor: branchmigrate.ConnectionDescriptor{
				Engine:   branchmigrate.EngineKind(entry.Engine),
				Host:     entry.Host,
				Port:     entry.Port,
				Database: entry.Database,
				Username: entry.Username,
				Password: entry.Password,
				SSLMode:  entry.SSLMode,
				Params:   entry.Params,
			},
			Active: entry.Active == nil || *entry.Active,
		}
		if err := branch.Descriptor.Validate(); err != nil {
			return nil, errors.Wrapf(err, "branch %s", entry.Name)
		}
		registry.Put(branch)
	}
	return registry, nil
}

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status [branch-id]",
		Short: "Show migration status for one branch or the whole fleet",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(opts)
			if err != nil {
				return err
			}
			defer e.close()
			ctx, cancel := signalContext()
			defer cancel()

			if len(args) == 1 {
				status, err := e.engine.GetMigrationStatus(ctx, args[0])
				if err != nil {
					return err
				}
				printStatus(status)
				return nil
			}

			statuses, err := e.engine.GetAllMigrationStatus(ctx)
			if err != nil {
				return err
			}
			for _, status := range statuses {
				printStatus(status)
			}
			return nil
		},
	}
}

func newPendingCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "pending <branch-id>",
		Short: "List migration units the branch has not applied yet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(opts)
			if err != nil {
				return err
			}
			defer e.close()
			ctx, cancel := signalContext()
			defer cancel()

			units, count, err := e.engine.GetPendingMigrations(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%d pending migration(s)\n", count)
			for _, unit := range units {
				fmt.Printf("  %d\t%s\n", unit.ID, unit.Name)
			}
			return nil
		},
	}
}

func newApplyCmd(opts *options) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "apply [branch-id]",
		Short: "Apply pending migrations to one branch or, with --all, the whole fleet",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return errors.New("specify either a branch id or --all")
			}
			e, err := setup(opts)
			if err != nil {
				return err
			}
			defer e.close()
			ctx, cancel := signalContext()
			defer cancel()

			if !all {
				status, err := e.engine.ApplyAll(ctx, args[0])
				printStatus(status)
				return err
			}

			results, err := e.engine.ApplyAllBranches(ctx)
			printResults(results)
			return err
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "apply to every active branch")
	return cmd
}

func newRollbackCmd(opts *options) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "rollback [branch-id]",
		Short: "Roll back the most recent migration on one branch or, with --all, the whole fleet",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return errors.New("specify either a branch id or --all")
			}
			e, err := setup(opts)
			if err != nil {
				return err
			}
			defer e.close()
			ctx, cancel := signalContext()
			defer cancel()

			if !all {
				status, err := e.engine.RollbackLast(ctx, args[0])
				printStatus(status)
				return err
			}

			results, err := e.engine.RollbackAllBranches(ctx)
			printResults(results)
			return err
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "roll back on every active branch")
	return cmd
}

func newValidateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <branch-id>",
		Short: "Compare the branch's live schema against the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(opts)
			if err != nil {
				return err
			}
			defer e.close()
			ctx, cancel := signalContext()
			defer cancel()

			result, err := e.validator.Validate(ctx, args[0])
			if err != nil {
				return err
			}
			if result.Valid {
				fmt.Printf("branch %s: schema valid\n", result.BranchID)
				return nil
			}
			fmt.Printf("branch %s: %d discrepancies\n", result.BranchID, len(result.Discrepancies))
			for _, d := range result.Discrepancies {
				fmt.Printf("  [%s] %s: %s\n", d.Kind, d.Object, d.Detail)
			}
			return errors.New("schema validation failed")
		},
	}
}

func newResolveCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <branch-id>",
		Short: "Clear the manual-intervention state after reconciling a branch by hand",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(opts)
			if err != nil {
				return err
			}
			defer e.close()
			ctx, cancel := signalContext()
			defer cancel()

			status, err := e.engine.MarkResolved(ctx, args[0])
			if err != nil {
				return err
			}
			printStatus(status)
			return nil
		},
	}
}

func printStatus(status branchmigrate.BranchMigrationStatus) {
	fmt.Printf("branch %s: state=%s applied=%d last_applied=%d",
		status.BranchID, status.State, len(status.Applied), status.LastApplied)
	if status.LastError != "" {
		fmt.Printf(" last_error=%q", status.LastError)
	}
	fmt.Println()
}

func printResults(results []branchmigrate.BranchResult) {
	for _, result := range results {
		if result.Err != nil {
			fmt.Printf("  FAIL %s (%s): state=%s error=%v\n", result.Name, result.BranchID, result.State, result.Err)
			continue
		}
		fmt.Printf("  OK   %s (%s): state=%s\n", result.Name, result.BranchID, result.State)
	}
}
