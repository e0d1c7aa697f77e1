package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/onedrive-fs/internal/config"
	"github.com/tonimelisma/onedrive-fs/internal/driveops"
	"github.com/tonimelisma/onedrive-fs/internal/graph"
	"github.com/tonimelisma/onedrive-fs/internal/remotefs"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagDrive      string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
	flagMetrics    bool
)

// cliFlags is the snapshot of the persistent flags taken in
// PersistentPreRunE. Drive is empty unless --drive was given explicitly.
type cliFlags struct {
	Drive   string
	JSON    bool
	Verbose bool
	Quiet   bool
	Metrics bool
}

// CLIContext is everything PersistentPreRunE resolved for the running
// subcommand. It travels in the command's context.
type CLIContext struct {
	Cfg      *config.Config
	Env      config.EnvOverrides
	Flags    cliFlags
	Logger   *slog.Logger
	Registry *prometheus.Registry
	Factory  *driveops.Factory

	Stdout io.Writer
	Stderr io.Writer
}

type cliContextKey struct{}

// openFilesystem returns the filesystem of the selected drive. Tests swap it
// for an in-memory implementation.
var openFilesystem = func(ctx context.Context, cc *CLIContext) (remotefs.Filesystem, error) {
	id, err := cc.driveID()
	if err != nil {
		return nil, err
	}

	adapter, err := cc.Factory.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	return adapter, nil
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "onedrive-fs",
		Short:   "OneDrive and SharePoint drives as a remote filesystem",
		Long:    "Read, write, list and manage files on OneDrive for Business and SharePoint drives through Microsoft Graph.",
		Version: version,
		// Errors are printed by main, usage only on demand.
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error { return loadConfig(cmd) },
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			cc := cliContextFrom(cmd)
			if cc == nil || !cc.Flags.Metrics {
				return nil
			}

			return printMetrics(cc.Stderr, cc.Registry)
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagDrive, "drive", "", "drive selector (identifier or unique partial match)")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")
	cmd.PersistentFlags().BoolVar(&flagMetrics, "metrics", false, "print Graph request counters to stderr on exit")

	cmd.AddCommand(newLsCmd())
	cmd.AddCommand(newCatCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newPutCmd())
	cmd.AddCommand(newRmCmd())
	cmd.AddCommand(newMkdirCmd())
	cmd.AddCommand(newMvCmd())
	cmd.AddCommand(newCpCmd())
	cmd.AddCommand(newStatCmd())
	cmd.AddCommand(newExistsCmd())
	cmd.AddCommand(newDrivesCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// loadConfig reads the config file, builds the logger, metrics registry and
// adapter factory, and stores them in the command's context. Drive
// selection is deferred until a command needs a filesystem.
func loadConfig(cmd *cobra.Command) error {
	cli := config.CLIOverrides{ConfigPath: flagConfigPath}

	// Only pass --drive on if the user explicitly set it.
	if cmd.Flags().Changed("drive") {
		cli.Drive = flagDrive
	}

	env := config.ReadEnvOverrides()

	cfg, err := config.LoadOrDefault(config.ConfigPath(env, cli))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	flags := cliFlags{
		Drive:   cli.Drive,
		JSON:    flagJSON,
		Verbose: flagVerbose,
		Quiet:   flagQuiet,
		Metrics: flagMetrics,
	}

	logger := buildLogger(cfg, flags, cmd.ErrOrStderr())
	reg := prometheus.NewRegistry()

	cc := &CLIContext{
		Cfg:      cfg,
		Env:      env,
		Flags:    flags,
		Logger:   logger,
		Registry: reg,
		Factory:  driveops.NewFactory(cfg, env, driveops.FactoryOptions{Metrics: graph.NewMetrics(reg)}, logger),
		Stdout:   cmd.OutOrStdout(),
		Stderr:   cmd.ErrOrStderr(),
	}

	cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey{}, cc))

	return nil
}

// cliContextFrom returns the CLIContext stored by loadConfig, or nil.
func cliContextFrom(cmd *cobra.Command) *CLIContext {
	ctx := cmd.Context()
	if ctx == nil {
		return nil
	}

	cc, _ := ctx.Value(cliContextKey{}).(*CLIContext)

	return cc
}

// mustCLIContext is cliContextFrom for RunE functions, which only run after
// a successful PersistentPreRunE.
func mustCLIContext(cmd *cobra.Command) *CLIContext {
	cc := cliContextFrom(cmd)
	if cc == nil {
		panic("CLIContext missing: PersistentPreRunE did not run")
	}

	return cc
}

// driveID selects the drive: --drive, then ONEDRIVE_FS_DRIVE, then the
// config file's default.
func (cc *CLIContext) driveID() (string, error) {
	selector := cc.Flags.Drive
	if selector == "" {
		selector = cc.Env.Drive
	}

	return config.SelectDrive(cc.Cfg, selector, cc.Logger)
}

// filesystem opens the selected drive.
func (cc *CLIContext) filesystem(ctx context.Context) (remotefs.Filesystem, error) {
	return openFilesystem(ctx, cc)
}

// Statusf prints a status message to stderr unless quiet mode is set.
func (cc *CLIContext) Statusf(format string, args ...any) {
	statusf(cc.Stderr, cc.Flags.Quiet, format, args...)
}

// buildLogger creates an slog.Logger configured by the config file and CLI
// flags. The config's log_level is the baseline; --verbose and --quiet
// override it because CLI flags always win.
func buildLogger(cfg *config.Config, flags cliFlags, w io.Writer) *slog.Logger {
	level := slog.LevelInfo

	if cfg != nil {
		switch cfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	if flags.Verbose {
		level = slog.LevelDebug
	}

	if flags.Quiet {
		level = slog.LevelError
	}

	format := "auto"
	if cfg != nil {
		format = cfg.LogFormat
	}

	opts := &slog.HandlerOptions{Level: level}

	if resolveLogFormat(format, w) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

// resolveLogFormat turns "auto" into "text" when w is a terminal and
// "json" otherwise.
func resolveLogFormat(format string, w io.Writer) string {
	if format != "auto" && format != "" {
		return format
	}

	f, ok := w.(interface{ Fd() uintptr })
	if ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return "text"
	}

	return "json"
}

// printMetrics writes every counter in reg as "name{labels} value", sorted.
func printMetrics(w io.Writer, reg prometheus.Gatherer) error {
	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}

	var lines []string

	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if m.GetCounter() == nil {
				continue
			}

			labels := make([]string, 0, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue()))
			}

			name := mf.GetName()
			if len(labels) > 0 {
				name += "{" + strings.Join(labels, ",") + "}"
			}

			lines = append(lines, fmt.Sprintf("%s %g", name, m.GetCounter().GetValue()))
		}
	}

	sort.Strings(lines)

	for _, line := range lines {
		fmt.Fprintln(w, line)
	}

	return nil
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
