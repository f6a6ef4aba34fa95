package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vango-dev/dataverse/internal/config"
	"github.com/vango-dev/dataverse/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// globals holds the persistent flags shared by all commands.
type globals struct {
	configPath string
	logLevel   string
	level      *slog.LevelVar
	logger     *slog.Logger
}

func main() {
	if err := newRootCmd(os.Stderr).Execute(); err != nil {
		errors.PrintError(err)
		os.Exit(1)
	}
}

func newRootCmd(logOut io.Writer) *cobra.Command {
	g := &globals{level: new(slog.LevelVar)}
	g.logger = slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: g.level}))

	rootCmd := &cobra.Command{
		Use:   "dataverse",
		Short: "A reactive dataflow engine",
		Long: `Dataverse keeps derived values consistent with the atoms they read.

Atoms hold mutable state; derivations compute from atoms and other
derivations and are recomputed lazily. Ticks propagate changes to tapped
values in dependency order, once per value per tick.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			errors.ConfigureColors(os.Stderr)
			if g.logLevel != "" {
				cfg := config.New()
				cfg.Log.Level = g.logLevel
				if err := cfg.Validate(); err != nil {
					return err
				}
				g.level.Set(cfg.SlogLevel())
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Path to dataverse.yaml or dataverse.json (default: working directory)")
	rootCmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn or error (overrides config)")

	rootCmd.AddCommand(
		demoCmd(g),
		serveCmd(g),
		configCmd(g),
		versionCmd(),
	)
	return rootCmd
}

// loadConfig resolves the configuration for a command. An explicit path
// must exist; otherwise a missing file yields the defaults.
func (g *globals) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if g.configPath != "" {
		cfg, err = config.LoadFile(g.configPath)
	} else {
		cfg, err = config.LoadFromWorkingDir()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if g.logLevel == "" {
		g.level.Set(cfg.SlogLevel())
	}
	return cfg, nil
}

// success prints a success message.
func success(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "✓ %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "  %s\n", fmt.Sprintf(format, args...))
}
