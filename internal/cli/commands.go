// Package cli implements the riskflow command line: catalog inspection, offline pattern
// validation and one-shot pattern runs against the configured data directory.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aristath/riskflow/internal/agents"
	"github.com/aristath/riskflow/internal/capabilities"
	"github.com/aristath/riskflow/internal/config"
	"github.com/aristath/riskflow/internal/di"
	"github.com/aristath/riskflow/internal/domain"
	"github.com/aristath/riskflow/internal/modules/graph"
	"github.com/aristath/riskflow/internal/orchestrator"
	"github.com/aristath/riskflow/internal/utils"
	"github.com/aristath/riskflow/internal/validation"
	"github.com/aristath/riskflow/pkg/logger"
)

// Version is reported by the version command
const Version = "1.0.0"

type options struct {
	configPath string
	dataDir    string
	debug      bool
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "riskflow",
		Short: "riskflow - pattern-driven portfolio risk analytics",
		Long: `riskflow runs declarative analysis patterns (factor exposure, Distance-at-Risk,
currency attribution) against immutable pricing packs and a lot-level portfolio ledger.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Configuration file path (overrides RISKFLOW_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&opts.dataDir, "data-dir", "", "Data directory (overrides configuration)")
	rootCmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newPatternsCmd(opts))
	rootCmd.AddCommand(newRunCmd(opts))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newPatternsCmd(opts *options) *cobra.Command {
	patternsCmd := &cobra.Command{
		Use:   "patterns",
		Short: "Inspect and validate analysis patterns",
	}

	patternsCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the pattern catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			return listPatterns(cmd.OutOrStdout(), cfg.Engine.PatternsDir)
		},
	})

	patternsCmd.AddCommand(&cobra.Command{
		Use:   "validate [DIR]",
		Short: "Validate pattern documents against the standard capabilities",
		Long: `Validate the embedded catalog, plus the pattern documents in DIR when given.
Every problem is reported: unknown capabilities, unbound required inputs, cycles and
undeclared output keys.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			return validatePatterns(cmd.OutOrStdout(), dir, newLogger(opts, cmd.ErrOrStderr()))
		},
	})

	return patternsCmd
}

func newRunCmd(opts *options) *cobra.Command {
	var query string

	cmd := &cobra.Command{
		Use:   "run PATTERN",
		Short: "Run a pattern once and print its output as JSON",
		Long: `Run a pattern against the configured data directory.
Example: riskflow run rate_shock --query '{"portfolio_id":"main","pack_id":"2024-01-15"}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			return runPattern(cmd.Context(), cmd.OutOrStdout(), cfg, args[0], query, newLogger(opts, cmd.ErrOrStderr()))
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "{}", "Query context as a JSON object")

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "riskflow v%s\n", Version)
		},
	}
}

func loadConfig(opts *options) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.configPath != "" {
		cfg, err = config.LoadFromFile(opts.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if opts.dataDir != "" {
		cfg.DataDir = opts.dataDir
	}
	return cfg, nil
}

func newLogger(opts *options, out io.Writer) zerolog.Logger {
	level := "warn"
	if opts.debug {
		level = "debug"
	}
	return logger.New(logger.Config{Level: level, Pretty: true, Output: out})
}

func listPatterns(out io.Writer, extraDir string) error {
	catalog, err := di.LoadCatalog(validation.New(), extraDir)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tVERSION\tSHAPE\tSTEPS\tDESCRIPTION")
	for _, p := range catalog.All() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", p.ID, p.Version, p.Output.Shape(), len(p.Steps), p.Description)
	}
	return w.Flush()
}

// validatePatterns assembles an orchestrator over the standard capability contracts and
// an in-memory graph; assembly performs every check a server start would.
func validatePatterns(out io.Writer, dir string, log zerolog.Logger) error {
	v := validation.New()
	catalog, err := di.LoadCatalog(v, dir)
	if err != nil {
		return err
	}

	registry := capabilities.NewRegistry()
	if err := agents.RegisterAll(registry, agents.Standard(agents.Dependencies{Validator: v, Log: log})...); err != nil {
		return err
	}

	store := graph.NewMemoryStore(utils.NewSequence(0))
	if _, err := orchestrator.New(registry, store, catalog, orchestrator.Options{}, log); err != nil {
		return err
	}

	fmt.Fprintf(out, "%d patterns OK: %s\n", catalog.Len(), strings.Join(catalog.IDs(), ", "))
	return nil
}

func runPattern(ctx context.Context, out io.Writer, cfg *config.Config, patternID, rawQuery string, log zerolog.Logger) error {
	query := orchestrator.Query{}
	if err := json.Unmarshal([]byte(rawQuery), &query); err != nil {
		return &domain.ValidationError{Field: "query", Reason: "must be a JSON object: " + err.Error()}
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return err
	}
	container, err := di.Wire(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := container.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close databases")
		}
	}()

	result, err := container.Orchestrator.Run(ctx, patternID, query)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"run_id":      result.RunID,
		"pattern_id":  result.PatternID,
		"version":     result.Version,
		"shape":       result.Shape,
		"cache_hits":  result.CacheHits,
		"duration_ms": result.Duration.Milliseconds(),
		"output":      result.Body(),
	})
}

// Execute runs the root command and exits non-zero on failure. SIGINT and SIGTERM cancel
// a run in progress.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
