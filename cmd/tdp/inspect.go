package main

import (
	"fmt"

	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/internal/gzoltar"
	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/internal/report"
	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/diagnosis"
	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/planner"
	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/pkg/tdp"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// inspectFlags are shared by the one-shot commands.
type inspectFlags struct {
	observe         []string
	catalogCoverage string
	jsonOutput      bool
	limit           int
	explain         bool
}

func (f *inspectFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringSliceVarP(&f.observe, "observe", "o", nil, "Observed tests by name or 1-based index (default all)")
	fl.BoolVar(&f.jsonOutput, "json", false, "Output as JSON")
	fl.IntVarP(&f.limit, "limit", "n", report.DefaultLimit, "Maximum rows to list")
	fl.Int("max-cardinality", 0, "Maximum diagnosis size (0 = unbounded)")
	fl.Float64("threshold", planner.DefaultConvergenceThreshold, "Probability at which a diagnosis counts as final")
}

// inspection is the diagnosed state a one-shot command reports on.
type inspection struct {
	app       *app
	state     tdp.State
	diagnoses []diagnosis.Diagnosis
	stats     planner.Statistics
}

func inspect(cmd *cobra.Command, root *rootFlags, f *inspectFlags) (*inspection, error) {
	a, err := loadApp(cmd, root)
	if err != nil {
		return nil, err
	}
	spectrum, err := gzoltar.Load(a.cfg.Data.Dir)
	if err != nil {
		return nil, err
	}
	extra, err := loadCatalog(cmd.Context(), a.log, a.cfg.Data.Catalog, f.catalogCoverage, spectrum)
	if err != nil {
		return nil, err
	}
	st, err := tdp.NewState(spectrum, tdp.Options{Observe: f.observe, Catalog: extra})
	if err != nil {
		return nil, err
	}

	cfg := a.cfg.RunnerConfig()
	ds, err := tdp.Diagnose(cmd.Context(), st, cfg.DiagnosisOptions())
	if err != nil {
		return nil, err
	}
	return &inspection{
		app:       a,
		state:     st,
		diagnoses: ds,
		stats:     planner.Summarize(ds, cfg.ConvergenceThreshold),
	}, nil
}

func newDiagnoseCmd(root *rootFlags) *cobra.Command {
	f := &inspectFlags{}
	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Compute ranked diagnoses from the observed tests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := inspect(cmd, root, f)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if f.jsonOutput {
				return outputJSON(w, map[string]any{
					"diagnoses":  in.diagnoses,
					"statistics": in.stats,
					"conflicts":  len(in.state.Conflicts()),
				})
			}

			bold := color.New(color.Bold)
			_, _ = bold.Fprintf(w, "DIAGNOSES (%d conflicts)\n", len(in.state.Conflicts()))
			report.PrintDiagnoses(w, in.diagnoses, f.limit)
			fmt.Fprintln(w)
			fmt.Fprintf(w, "Entropy: %.4f nats\n", in.stats.Entropy)
			if in.stats.Complete {
				fmt.Fprintf(w, "Converged: %s\n", report.FormatComponents(in.stats.MostLikely.Components))
			}
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func newPlanCmd(root *rootFlags) *cobra.Command {
	f := &inspectFlags{}
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Recommend the most informative test to run next",
		Long: `Plan diagnoses the observed tests and ranks every unobserved test by the
expected entropy reduction of running it. With --explain it also lists the
goodness of each element in the candidate traces.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := inspect(cmd, root, f)
			if err != nil {
				return err
			}
			cfg := in.app.cfg.RunnerConfig()
			sel, err := planner.New(in.state.Stats(), planner.Options{
				Workers: cfg.Workers,
				Logger:  in.app.log,
			}).SelectBest(cmd.Context(), in.state.Pool(), in.diagnoses)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if f.jsonOutput {
				return outputJSON(w, map[string]any{
					"diagnoses":  in.diagnoses,
					"statistics": in.stats,
					"selection":  sel,
				})
			}
			report.PrintSelection(w, sel)
			if f.explain {
				fmt.Fprintln(w)
				for _, test := range in.state.Pool() {
					report.PrintGoodness(w, test, in.state.Stats())
				}
			}
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().String("catalog", "", "File of additional candidate test ids, traced by --catalog-coverage")
	cmd.Flags().StringVar(&f.catalogCoverage, "catalog-coverage", "", "Coverage data holding the traces of catalog tests")
	cmd.Flags().BoolVar(&f.explain, "explain", false, "List element goodness for every candidate test")
	return cmd
}

func newRankCmd(root *rootFlags) *cobra.Command {
	f := &inspectFlags{}
	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Rank single elements by suspiciousness",
		Long: `Rank lists every element covered by a failing test, most suspicious first,
scored as 1 - goodness. It is the single-fault ranking the diagnoses refine.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := inspect(cmd, root, f)
			if err != nil {
				return err
			}
			ranks := diagnosis.RankElements(in.state.Stats())
			w := cmd.OutOrStdout()
			if f.jsonOutput {
				if ranks == nil {
					ranks = []diagnosis.ElementRank{}
				}
				return outputJSON(w, ranks)
			}
			report.PrintRanking(w, ranks, f.limit)
			return nil
		},
	}
	f.register(cmd)
	return cmd
}
