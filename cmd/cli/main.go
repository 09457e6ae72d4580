package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"pivotdesk/adapters/compute"
	"pivotdesk/adapters/excel"
	"pivotdesk/domain/core"
	"pivotdesk/domain/pivot"
	"pivotdesk/internal"
)

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var dataDir string

	rootCmd := &cobra.Command{
		Use:           "pivotdesk-cli",
		Short:         "Inspect pivot configurations and normalize results offline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", envOr("DATA_DIR", "./data"), "Directory holding .xlsx/.csv data sources")

	catalogs := func() *excel.CatalogSource {
		cfg := excel.DefaultExcelConfig()
		cfg.Dir = dataDir
		return excel.NewCatalogSource(cfg)
	}

	rootCmd.AddCommand(
		newCatalogCmd(catalogs),
		newSignatureCmd(catalogs),
		newRequestCmd(catalogs),
		newNormalizeCmd(),
		newComputeCmd(catalogs),
	)
	return rootCmd
}

func newCatalogCmd(catalogs func() *excel.CatalogSource) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog [data-source]",
		Short: "List data sources, or the fields and distinct values of one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := catalogs()
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				names, err := src.ListDataSources(cmd.Context())
				if err != nil {
					return err
				}
				for _, name := range names {
					fmt.Fprintln(out, name)
				}
				return nil
			}

			catalog, err := src.LoadCatalog(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, field := range catalog.Fields() {
				options := catalog.Options(field)
				preview := options
				if len(preview) > 5 {
					preview = append(preview[:5:5], "...")
				}
				fmt.Fprintf(out, "%-24s %5d  %s\n", field, len(options), strings.Join(preview, ", "))
			}
			return nil
		},
	}
}

func newSignatureCmd(catalogs func() *excel.CatalogSource) *cobra.Command {
	var hashOnly bool

	cmd := &cobra.Command{
		Use:   "signature [configuration.json]",
		Short: "Print the canonical signature of a saved configuration",
		Long: `Restore a configuration against the current catalog of its data source
and print its canonical signature. Two configurations with the same signature
produce the same compute result.

Example: pivotdesk-cli signature regions.json --hash`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			editor, err := loadEditor(cmd.Context(), catalogs(), args[0])
			if err != nil {
				return err
			}
			signature := editor.Signature()
			if hashOnly {
				fmt.Fprintln(cmd.OutOrStdout(), core.NewSignatureHash(signature))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), signature)
			return nil
		},
	}
	cmd.Flags().BoolVar(&hashOnly, "hash", false, "Print the SHA-256 of the signature instead")
	return cmd
}

func newRequestCmd(catalogs func() *excel.CatalogSource) *cobra.Command {
	return &cobra.Command{
		Use:   "request [configuration.json]",
		Short: "Print the compute request a configuration would send",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			editor, err := loadEditor(cmd.Context(), catalogs(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), editor.ComputeRequest())
		},
	}
}

func newNormalizeCmd() *cobra.Command {
	var mode string
	var decimals int
	var rows, columns []string

	cmd := &cobra.Command{
		Use:   "normalize [result.json|-]",
		Short: "Apply percentage normalization to a compute response",
		Long: `Read a compute response ({"data": [...], "hierarchy": [...]}) and print the
rows in percentage form.

Example: pivotdesk-cli normalize result.json --mode row --rows Region --columns Quarter`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pm, ok := pivot.ParsePercentageMode(mode)
			if !ok {
				return fmt.Errorf("unknown mode %q (off|row|column|grand_total)", mode)
			}
			resp, err := readResponse(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			out := pivot.Normalize(resp.Data, rows, columns, pm, decimals, resp.Hierarchy)
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "row", "Percentage mode: off|row|column|grand_total")
	cmd.Flags().IntVar(&decimals, "decimals", 2, "Decimal places to round percentages to")
	cmd.Flags().StringSliceVar(&rows, "rows", nil, "Row fields of the result")
	cmd.Flags().StringSliceVar(&columns, "columns", nil, "Column fields of the result")
	return cmd
}

func newComputeCmd(catalogs func() *excel.CatalogSource) *cobra.Command {
	var mode string
	var decimals int
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "compute [configuration.json]",
		Short: "Send a configuration to the compute service and print the grid",
		Long: `Send a configuration to the compute service at COMPUTE_URL and print the
resulting rows, normalized with --mode.

Example: COMPUTE_URL=http://localhost:9000 pivotdesk-cli compute regions.json --mode column`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pm, ok := pivot.ParsePercentageMode(mode)
			if !ok {
				return fmt.Errorf("unknown mode %q (off|row|column|grand_total)", mode)
			}
			editor, err := loadEditor(cmd.Context(), catalogs(), args[0])
			if err != nil {
				return err
			}
			client, err := compute.NewClient(compute.Config{
				BaseURL: os.Getenv("COMPUTE_URL"),
				APIKey:  os.Getenv("COMPUTE_API_KEY"),
				Timeout: timeout,
			}, internal.NewDefaultLogger())
			if err != nil {
				return err
			}

			resp, err := client.Compute(cmd.Context(), editor.DataSource(), editor.ComputeRequest())
			if err != nil {
				return err
			}
			state := editor.State()
			out := pivot.Normalize(resp.Data, state.Rows, state.Columns, pm, decimals, resp.Hierarchy)
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "off", "Percentage mode: off|row|column|grand_total")
	cmd.Flags().IntVar(&decimals, "decimals", 2, "Decimal places to round percentages to")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Compute request timeout")
	return cmd
}

// loadEditor reads a configuration file, validates it and restores it against
// the catalog of its data source
func loadEditor(ctx context.Context, src *excel.CatalogSource, path string) (*pivot.Editor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read configuration: %w", err)
	}
	var cfg pivot.PivotConfiguration
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse configuration: %w", err)
	}
	if err := pivot.Validate(cfg); err != nil {
		return nil, err
	}
	catalog, err := src.LoadCatalog(ctx, cfg.DataSource)
	if err != nil {
		return nil, err
	}
	return pivot.NewEditorFromConfiguration(cfg, catalog), nil
}

func readResponse(stdin io.Reader, path string) (*pivot.ComputeResponse, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open result: %w", err)
		}
		defer f.Close()
		r = f
	}
	var resp pivot.ComputeResponse
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return nil, fmt.Errorf("parse result: %w", err)
	}
	return &resp, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
