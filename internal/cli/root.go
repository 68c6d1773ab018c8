// Package cli implements the seedctl command tree.
package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"flowseed/internal/config"
	"flowseed/internal/seed"
)

type App struct {
	ConfigPath string
	Verbose    bool

	// newLogger is replaced in tests.
	newLogger func(level zapcore.Level) (*zap.Logger, error)
}

// NewRootCmd builds the seedctl command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&App{newLogger: productionLogger})
}

func newRootCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "seedctl",
		Short:         "Seed deterministic test fixtures into a chatflow database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&app.ConfigPath, "config", "c", "", "config file (default ./seed.yaml, SEED_* env vars override)")
	cmd.PersistentFlags().BoolVarP(&app.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(newMigrateCmd(app))
	cmd.AddCommand(newTablesCmd(app))
	cmd.AddCommand(newResetCmd(app))
	cmd.AddCommand(newBaselineCmd(app))
	cmd.AddCommand(newScenarioCmd(app))
	cmd.AddCommand(newScenariosCmd(app))
	cmd.AddCommand(newTypesCmd(app))
	cmd.AddCommand(newSeedCmd(app))
	cmd.AddCommand(newBindingsCmd(app))
	return cmd
}

func productionLogger(level zapcore.Level) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

func (a *App) logger(cfg config.Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.LogLevel != "" {
		parsed, err := zapcore.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		level = parsed
	}
	if a.Verbose {
		level = zapcore.DebugLevel
	}
	return a.newLogger(level)
}

// withEngine loads the configuration, opens an engine for the duration of fn and
// flushes the logger afterwards.
func (a *App) withEngine(ctx context.Context, fn func(*seed.Engine) error) error {
	cfg, err := config.Load(a.ConfigPath)
	if err != nil {
		return err
	}
	logger, err := a.logger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	engine, err := seed.NewFromConfig(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer engine.Close()
	return fn(engine)
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
