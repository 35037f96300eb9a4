// Command lockstep inspects flows recorded by multi-device test runs.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/odvcencio/lockstep/pkg/config"
	lserrors "github.com/odvcencio/lockstep/pkg/errors"
	"github.com/odvcencio/lockstep/pkg/logging"
	"github.com/odvcencio/lockstep/pkg/trace"
)

// Version information - set via ldflags during build
var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorMsg("%v", err))
		if e, ok := lserrors.As(err); ok {
			for _, tip := range e.Remediation {
				fmt.Fprintln(os.Stderr, muted("  "+tip))
			}
		}
		os.Exit(1)
	}
}

// app is the state shared by subcommands once flags are parsed.
type app struct {
	configPath string
	logLevel   string

	cfg    *config.Config
	logger zerolog.Logger
}

func rootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:           "lockstep",
		Short:         "Inspect flows recorded by lockstep multi-device runs",
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to the lockstep YAML config")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.AddCommand(flowsCmd(a), inspectCmd(a), configCmd(a))
	return cmd
}

func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	a.cfg = cfg
	a.logger = logging.For(logging.New(cfg.Log, cmd.ErrOrStderr()), logging.CategoryCLI)
	a.logger.Debug().Str("config", a.configPath).Str("backend", cfg.Trace.Backend).Msg("config loaded")
	return nil
}

func (a *app) openStore() (trace.FlowStore, error) {
	store, err := trace.OpenStore(a.cfg.Trace)
	if err != nil {
		return nil, fmt.Errorf("open flow store: %w", err)
	}
	return store, nil
}
