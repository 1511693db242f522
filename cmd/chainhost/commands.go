package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/artpar/chainhost/internal/core/deployment"
	"github.com/artpar/chainhost/internal/core/domain"
	"github.com/artpar/chainhost/internal/core/manifest"
	"github.com/artpar/chainhost/internal/shell/runner"
	"github.com/artpar/chainhost/internal/shell/store"
)

// =============================================================================
// migrate
// =============================================================================

func newMigrateCmd(configPath *string) *cobra.Command {
	var (
		manifestPath string
		artifactsDir string
		vars         map[string]string
		dryRun       bool
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Execute the deployment plan and print the resulting addresses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			if err := a.cfg.Validate(dryRun); err != nil {
				return &CommandError{Op: "Validate", Err: err, ExitCode: ExitConfigError}
			}

			plan, err := a.loadPlan(manifestPath, vars)
			if err != nil {
				return err
			}
			set, err := a.loadArtifacts(artifactsDir)
			if err != nil {
				return err
			}

			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			d, closeDeployer, err := a.openDeployer(ctx, dryRun)
			if err != nil {
				return err
			}
			defer closeDeployer()

			network := a.cfg.Chain.NetworkName(dryRun)
			registry := prometheus.NewRegistry()
			r := runner.New(runner.Config{
				Artifacts: set,
				Store:     s,
				Metrics:   runner.NewMetrics(registry),
				Logger:    a.logger,
				Network:   network,
			})

			run, err := r.Run(ctx, plan, d)
			a.pushMetrics(registry, network)
			if run == nil {
				return startFailure(err)
			}
			if werr := writeReport(cmd.OutOrStdout(), run); werr != nil {
				return &CommandError{Op: "Migrate", Err: werr, ExitCode: ExitConfigError}
			}
			if err != nil {
				return &CommandError{Op: "Migrate", Err: err, ExitCode: ExitRunFailed}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&manifestPath, "manifest", "", "deployment manifest (default: built-in layout)")
	cmd.Flags().StringVar(&artifactsDir, "artifacts", "", "compiled artifacts directory (overrides artifacts.dir)")
	cmd.Flags().StringToStringVar(&vars, "var", nil, "manifest variable as KEY=VALUE (repeatable)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "deploy to an in-memory ledger instead of the chain")
	return cmd
}

// startFailure maps an error from a run that never started: storage
// failures are database errors, everything else is a bad plan.
func startFailure(err error) error {
	code := ExitConfigError
	var storeErr *store.StoreError
	if errors.As(err, &storeErr) {
		code = ExitDatabaseError
	}
	return &CommandError{Op: "Migrate", Err: err, ExitCode: code}
}

// report is the machine-readable outcome of a migrate run.
type report struct {
	RunID      string            `json:"run_id"`
	Plan       string            `json:"plan"`
	Network    string            `json:"network"`
	Status     string            `json:"status"`
	Error      string            `json:"error,omitempty"`
	FailedStep *int              `json:"failed_step,omitempty"`
	Addresses  map[string]string `json:"addresses"`
	Grants     []grantReport     `json:"grants"`
}

type grantReport struct {
	Storage string `json:"storage"`
	Grantee string `json:"grantee"`
	Address string `json:"address"`
	TxHash  string `json:"tx_hash"`
}

func newReport(run *domain.Run) report {
	rep := report{
		RunID:     run.ID,
		Plan:      run.Plan,
		Network:   run.Network,
		Status:    string(run.Status),
		Error:     run.Error,
		Addresses: run.Addresses(),
		Grants:    make([]grantReport, 0, len(run.Grants)),
	}
	if run.FailedStep != domain.NoFailedStep {
		step := run.FailedStep
		rep.FailedStep = &step
	}
	for _, g := range run.Grants {
		rep.Grants = append(rep.Grants, grantReport{
			Storage: g.Storage,
			Grantee: g.Grantee,
			Address: g.GranteeAddress.Hex(),
			TxHash:  g.TxHash.Hex(),
		})
	}
	return rep
}

func writeReport(w io.Writer, run *domain.Run) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(newReport(run))
}

// =============================================================================
// plan
// =============================================================================

func newPlanCmd(configPath *string) *cobra.Command {
	var (
		manifestPath string
		artifactsDir string
		vars         map[string]string
		format       string
		check        bool
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the validated deployment steps without executing them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			plan, err := a.loadPlan(manifestPath, vars)
			if err != nil {
				return err
			}

			if check {
				set, err := a.loadArtifacts(artifactsDir)
				if err != nil {
					return err
				}
				r := runner.New(runner.Config{Artifacts: set, Logger: a.logger})
				if err := r.Preflight(plan); err != nil {
					return &CommandError{Op: "Preflight", Err: err, ExitCode: ExitConfigError}
				}
			}

			out := cmd.OutOrStdout()
			switch format {
			case "text":
				return writePlanText(out, plan)
			case "yaml":
				data, err := manifest.Marshal(plan)
				if err != nil {
					return &CommandError{Op: "Plan", Err: err, ExitCode: ExitConfigError}
				}
				_, err = out.Write(data)
				return err
			default:
				return &CommandError{Op: "Plan", Err: fmt.Errorf("unknown format %q", format), ExitCode: ExitConfigError}
			}
		},
	}

	cmd.Flags().StringVar(&manifestPath, "manifest", "", "deployment manifest (default: built-in layout)")
	cmd.Flags().StringVar(&artifactsDir, "artifacts", "", "compiled artifacts directory (overrides artifacts.dir)")
	cmd.Flags().StringToStringVar(&vars, "var", nil, "manifest variable as KEY=VALUE (repeatable)")
	cmd.Flags().StringVar(&format, "format", "text", "output format: text or yaml")
	cmd.Flags().BoolVar(&check, "check", false, "also check the plan against the compiled artifacts")
	return cmd
}

func writePlanText(w io.Writer, p deployment.Plan) error {
	if _, err := fmt.Fprintf(w, "plan %s (%d steps)\n", p.Name, len(p.Steps)); err != nil {
		return err
	}
	for i, s := range p.Steps {
		if _, err := fmt.Fprintf(w, "%3d  %s\n", i, s); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// runs
// =============================================================================

func newRunsCmd(configPath *string) *cobra.Command {
	var (
		status string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "runs [id]",
		Short: "List stored runs, or show one run with its records and grants",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				run, err := s.GetRun(ctx, args[0])
				if err != nil {
					return storeCommandError("GetRun", err)
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(run)
			}

			opts := store.ListOptions{Limit: limit}
			if status != "" {
				if opts.Status, err = domain.ParseRunStatus(status); err != nil {
					return &CommandError{Op: "ListRuns", Err: err, ExitCode: ExitConfigError}
				}
			}
			runs, err := s.ListRuns(ctx, opts.Normalize())
			if err != nil {
				return storeCommandError("ListRuns", err)
			}
			return writeRunsTable(out, runs)
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "only runs with this status")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs")
	return cmd
}

func writeRunsTable(w io.Writer, runs []domain.Run) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPLAN\tNETWORK\tSTATUS\tCREATED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Plan, r.Network, r.Status, r.CreatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

// =============================================================================
// address
// =============================================================================

func newAddressCmd(configPath *string) *cobra.Command {
	var network string

	cmd := &cobra.Command{
		Use:   "address <unit>",
		Short: "Print the address of a unit from the latest successful run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			if network == "" {
				network = a.cfg.Chain.NetworkName(false)
			}
			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			rec, err := s.LatestRecord(cmd.Context(), network, args[0])
			if err != nil {
				return storeCommandError("LatestRecord", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), rec.Address.Hex())
			return err
		},
	}

	cmd.Flags().StringVar(&network, "network", "", "network name (default: chain.network)")
	return cmd
}

// storeCommandError maps lookups that found nothing to a config error and
// everything else to a database error.
func storeCommandError(op string, err error) error {
	code := ExitDatabaseError
	if errors.Is(err, store.ErrNotFound) {
		code = ExitConfigError
	}
	return &CommandError{Op: op, Err: err, ExitCode: code}
}
