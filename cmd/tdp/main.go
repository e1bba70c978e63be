// Command tdp localizes faults from GZoltar coverage with the Test,
// Diagnose, Plan loop.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/internal/config"
	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/internal/observability"
	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/internal/report"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Version info set by goreleaser
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootFlags are the persistent flags shared by every command.
type rootFlags struct {
	config   string
	data     string
	logLevel string
	noColor  bool
}

// flagKeys maps command flags onto configuration keys. A flag set on the
// command line overrides the file and the environment.
var flagKeys = map[string]string{
	"data":            "data.dir",
	"log-level":       "logger.level",
	"catalog":         "data.catalog",
	"oracle":          "oracle.mode",
	"script":          "oracle.script",
	"command":         "oracle.command",
	"workdir":         "oracle.workdir",
	"max-iterations":  "tdp.max_iterations",
	"max-cardinality": "tdp.max_cardinality",
	"threshold":       "tdp.convergence_threshold",
	"test-timeout":    "tdp.test_timeout",
	"port":            "server.port",
	"database-url":    "database.url",
	"metrics-addr":    "metrics.addr",
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}
	cmd := &cobra.Command{
		Use:   "tdp",
		Short: "Spectrum-based fault localization with test planning",
		Long: `tdp reads the GZoltar coverage of a test suite, computes candidate
diagnoses of the faulty code elements and picks the next test to run that
best tells the candidates apart, until one diagnosis dominates.`,
		SilenceUsage: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&f.config, "config", "", "Config file (YAML)")
	pf.StringVarP(&f.data, "data", "d", ".gzoltar/sfl/txt", "GZoltar sfl/txt directory or JSON spectrum")
	pf.StringVar(&f.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	pf.BoolVar(&f.noColor, "no-color", false, "Disable colored output")

	cmd.AddCommand(
		newRunCmd(f),
		newDiagnoseCmd(f),
		newPlanCmd(f),
		newRankCmd(f),
		newDiscoverCmd(f),
		newExportCmd(f),
		newServeCmd(f),
		newMigrateCmd(f),
		newVersionCmd(),
	)
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "tdp %s\n", version)
			fmt.Fprintf(w, "  commit: %s\n", commit)
			fmt.Fprintf(w, "  built:  %s\n", date)
		},
	}
}

// app is the configuration and logger a command runs with.
type app struct {
	cfg *config.Config
	log *zap.Logger
}

func loadApp(cmd *cobra.Command, f *rootFlags) (*app, error) {
	v := config.New()
	if f.config != "" {
		v.SetConfigFile(f.config)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	for name, key := range flagKeys {
		if fl := cmd.Flags().Lookup(name); fl != nil {
			if err := v.BindPFlag(key, fl); err != nil {
				return nil, err
			}
		}
	}
	cfg, err := config.NewConfigFromViper(v)
	if err != nil {
		return nil, err
	}

	if out, ok := cmd.OutOrStdout().(*os.File); ok {
		report.ConfigureColor(out, f.noColor)
	} else {
		color.NoColor = true
	}
	log, err := observability.NewLogger(cfg.Logger, zapcore.Lock(zapcore.AddSync(cmd.ErrOrStderr())), !color.NoColor)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, log: log}, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && report.IsTerminal(f)
}

func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
