package main

import (
	"fmt"
	"os"

	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/internal/catalog"
	"github.com/M2SiCKneSs/gzoltar-defects4j-tdp-implementation/internal/gzoltar"
	"github.com/spf13/cobra"
)

func newDiscoverCmd(root *rootFlags) *cobra.Command {
	var (
		source   string
		output   string
		printIDs bool
	)
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Discover JUnit test methods in a Java source tree",
		Long: `Discover parses the Java files under --source and collects every method
annotated with @Test or @ParameterizedTest as Class#method. The list is
written to --output and can be passed to run and plan with --catalog.

Examples:
  tdp discover --source src/test/java
  tdp discover --source src/test/java --output tests.txt --print`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, root)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Scanning %s...\n", source)

			ids, err := catalog.SourceProvider{Root: source, Logger: a.log}.Tests(cmd.Context())
			if err != nil {
				return err
			}
			if err := catalog.Write(output, ids); err != nil {
				return err
			}
			if printIDs {
				for _, id := range ids {
					fmt.Fprintln(cmd.OutOrStdout(), id)
				}
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Discovered %d tests, written to %s\n", len(ids), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&source, "source", "s", "src/test/java", "Java test source root")
	cmd.Flags().StringVar(&output, "output", catalog.DefaultFile, "File to write the test ids to")
	cmd.Flags().BoolVar(&printIDs, "print", false, "Also print the ids to stdout")
	return cmd
}

func newExportCmd(root *rootFlags) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Convert GZoltar coverage to a JSON spectrum",
		Long: `Export reads --data and writes it as a JSON spectrum, the format accepted
by --data, the HTTP API and the dashboard.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, root)
			if err != nil {
				return err
			}
			spectrum, err := gzoltar.Load(a.cfg.Data.Dir)
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				return gzoltar.WriteJSON(cmd.OutOrStdout(), spectrum)
			}

			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", output, err)
			}
			if err := gzoltar.WriteJSON(f, spectrum); err != nil {
				_ = f.Close()
				return err
			}
			return f.Close()
		},
	}
	cmd.Flags().StringVar(&output, "output", "-", "Output file (- for stdout)")
	return cmd
}
