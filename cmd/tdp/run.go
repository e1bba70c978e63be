package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/internal/catalog"
	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/internal/config"
	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/internal/database"
	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/internal/gzoltar"
	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/internal/metrics"
	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/internal/oracle"
	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/internal/report"
	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/coverage"
	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/planner"
	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/tdp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type runFlags struct {
	observe         []string
	catalogCoverage string
	jsonOutput      bool
	verbose         bool
	noRecord        bool
}

func newRunCmd(root *rootFlags) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a Test, Diagnose, Plan session",
		Long: `Run diagnoses the observed tests, asks the oracle for the outcome of the
most informative remaining test, and repeats until one diagnosis dominates,
no test is left or the iteration budget is spent.

Oracles:
  prompt   ask on the terminal (default)
  replay   answer from the outcomes recorded in the coverage data
  script   answer from a YAML file of outcomes
  command  run a shell command per test; exit status 0 means pass

Examples:
  tdp run -d .gzoltar/sfl/txt --observe CalcTest#testAdd
  tdp run --oracle replay --observe 1,3 --json
  tdp run --oracle command --command 'mvn -q test -Dtest={{.Class}}#{{.Method}}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd, root, f)
		},
	}

	fl := cmd.Flags()
	fl.StringSliceVarP(&f.observe, "observe", "o", nil, "Initially observed tests by name or 1-based index (default all)")
	fl.String("catalog", "", "File of additional candidate test ids, traced by --catalog-coverage")
	fl.StringVar(&f.catalogCoverage, "catalog-coverage", "", "Coverage data holding the traces of catalog tests")
	fl.String("oracle", config.OraclePrompt, "Oracle mode (prompt, replay, script, command)")
	fl.String("script", "", "Outcome script for the script oracle")
	fl.String("command", oracle.DefaultCommand, "Command template for the command oracle")
	fl.String("workdir", "", "Working directory of the command oracle")
	fl.Int("max-iterations", tdp.DefaultMaxIterations, "Maximum number of tests to execute")
	fl.Int("max-cardinality", 0, "Maximum diagnosis size (0 = unbounded)")
	fl.Float64("threshold", planner.DefaultConvergenceThreshold, "Probability at which a diagnosis counts as final (1 = single diagnosis only)")
	fl.Duration("test-timeout", 0, "Timeout per executed test (0 = none)")
	fl.String("database-url", "", "Record the session in this PostgreSQL database")
	fl.String("metrics-addr", "", "Serve Prometheus metrics on this address while running")
	fl.BoolVar(&f.noRecord, "no-record", false, "Do not record the session even if a database is configured")
	fl.BoolVar(&f.jsonOutput, "json", false, "Output the outcome as JSON")
	fl.BoolVarP(&f.verbose, "verbose", "v", false, "Show diagnoses after every iteration")
	return cmd
}

func runSession(cmd *cobra.Command, root *rootFlags, f *runFlags) error {
	a, err := loadApp(cmd, root)
	if err != nil {
		return err
	}
	defer func() { _ = a.log.Sync() }()
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()

	spectrum, err := gzoltar.Load(a.cfg.Data.Dir)
	if err != nil {
		return err
	}
	extra, err := loadCatalog(cmd.Context(), a.log, a.cfg.Data.Catalog, f.catalogCoverage, spectrum)
	if err != nil {
		return err
	}
	st, err := tdp.NewState(spectrum, tdp.Options{Observe: f.observe, Catalog: extra})
	if err != nil {
		return err
	}
	orc, err := newOracle(cmd, a, spectrum)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	observers := tdp.MultiObserver{}
	if !f.jsonOutput {
		observers = append(observers, &report.TextObserver{W: stderr, Verbose: f.verbose})
	}
	if a.cfg.Metrics.Enabled && a.cfg.Metrics.Addr != "" {
		m := metrics.New()
		observers = append(observers, m)
		shutdown := serveMetrics(a.cfg.Metrics.Addr, m, a.log)
		defer shutdown()
	}
	if a.cfg.Database.URL != "" && !f.noRecord {
		db, err := database.New(ctx, a.cfg.Database.URL)
		if err != nil {
			a.log.Warn("session will not be recorded", zap.Error(err))
		} else {
			defer db.Close()
			observers = append(observers, database.NewRecorder(ctx, db, a.cfg.Data.Dir, a.log))
		}
	}

	runner := &tdp.Runner{
		Oracle:   orc,
		Observer: observers,
		Logger:   a.log,
		Config:   a.cfg.RunnerConfig(),
	}
	out, err := runner.Run(ctx, st)
	if err != nil {
		return err
	}

	if f.jsonOutput {
		return outputJSON(stdout, out)
	}
	report.PrintOutcome(stderr, stdout, out)
	return nil
}

// loadCatalog resolves the catalog file against the coverage data that
// holds its traces (the primary spectrum unless coveragePath is set) and
// returns the tests the primary spectrum does not already hold.
func loadCatalog(ctx context.Context, log *zap.Logger, path, coveragePath string, spectrum coverage.Spectrum) ([]planner.AvailableTest, error) {
	if path == "" {
		return nil, nil
	}
	ids, err := catalog.FileProvider{Path: path}.Tests(ctx)
	if err != nil {
		return nil, err
	}
	source := spectrum
	if coveragePath != "" {
		source, err = gzoltar.Load(coveragePath)
		if err != nil {
			return nil, err
		}
	}

	var extra []planner.AvailableTest
	for _, t := range catalog.Resolve(ids, source) {
		if spectrum.IndexOf(t.Name) < 0 {
			extra = append(extra, t)
		}
	}
	if len(ids) > 0 && len(extra) == 0 {
		log.Warn("catalog adds no candidate tests; its ids need traces from --catalog-coverage that the primary data lacks",
			zap.String("catalog", path),
			zap.Int("ids", len(ids)))
	}
	return extra, nil
}

func newOracle(cmd *cobra.Command, a *app, spectrum coverage.Spectrum) (tdp.Oracle, error) {
	oc := a.cfg.Oracle
	switch oc.Mode {
	case config.OracleReplay:
		return oracle.NewReplay(spectrum), nil
	case config.OracleScript:
		s, err := oracle.LoadScript(oc.Script)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.OracleCommand:
		c, err := oracle.NewCommand(oc.Command, oc.Rate, oc.Burst, a.log)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", tdp.ErrConfig, err)
		}
		c.Dir = oc.WorkDir
		stderr := cmd.ErrOrStderr()
		return &report.Spinner{Oracle: c, W: stderr, Enabled: isTerminal(stderr)}, nil
	default:
		return oracle.NewPrompt(cmd.InOrStdin(), cmd.ErrOrStderr()), nil
	}
}

// serveMetrics exposes m on addr until the returned function is called.
func serveMetrics(addr string, m *metrics.Metrics, log *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("metrics server failed", zap.Error(err))
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
