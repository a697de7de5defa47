// Package cli implements the reconcile command line.
//
// Logs always go to stderr. The import command writes exactly one JSON
// document, the batch result, to stdout and exits 0 when the batch
// succeeded (or only skipped duplicates) and 1 otherwise.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/JonMunkholm/reconcile/internal/config"
	"github.com/JonMunkholm/reconcile/internal/core"
	_ "github.com/JonMunkholm/reconcile/internal/core/tables" // Register all entities
	"github.com/JonMunkholm/reconcile/internal/database"
	"github.com/JonMunkholm/reconcile/internal/logging"
	"github.com/JonMunkholm/reconcile/internal/schema"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Connector opens the store a command writes to. The returned func
// releases it.
type Connector func(ctx context.Context, cfg config.DatabaseConfig) (core.Store, func(), error)

// App holds the process-wide state of one CLI invocation.
type App struct {
	stdout  io.Writer
	stderr  io.Writer
	connect Connector
	logger  *slog.Logger
	level   slog.Level

	logLevel  string
	logFormat string
	envFile   string
	mapping   string

	exitCode int
}

// New returns an App writing to the given streams and connecting to
// PostgreSQL.
func New(stdout, stderr io.Writer) *App {
	return &App{
		stdout:  stdout,
		stderr:  stderr,
		connect: connectPostgres,
	}
}

// WithConnector replaces the store factory; used by tests.
func (a *App) WithConnector(c Connector) *App {
	a.connect = c
	return a
}

// Execute runs the command line and returns the process exit status.
func (a *App) Execute(ctx context.Context, args []string) int {
	root := a.rootCommand()
	root.SetArgs(args)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(a.stderr, "Error:", err)
		if core.IsUserFacing(err) {
			fmt.Fprintln(a.stderr, core.FormatUserError(err))
		}
		if a.exitCode == 0 {
			return 2
		}
	}
	return a.exitCode
}

func (a *App) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "reconcile",
		Short: "Reconcile spreadsheet exports into the customer and payroll tables",
		Long: `reconcile imports CSV and Excel exports into PostgreSQL.

Rows are matched to stored entities by natural key and merged field by
field: non-blank cells overwrite, contact and license lists accumulate,
and totals are recomputed. Every row is reported on.`,
		PersistentPreRunE: a.setup,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error (default from LOG_LEVEL or info)")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "log format: text or json (default from LOG_FORMAT or text)")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "environment file loaded before configuration")
	root.PersistentFlags().StringVar(&a.mapping, "mapping", "", "YAML file of column mapping overrides (default from IMPORT_MAPPING_FILE)")

	root.AddCommand(a.importCommand(), a.entitiesCommand(), a.serveCommand())
	return root
}

// setup loads the environment, configures logging and applies mapping
// overrides before any command runs.
func (a *App) setup(cmd *cobra.Command, _ []string) error {
	envErr := godotenv.Overload(a.envFile)

	level := firstNonEmpty(a.logLevel, os.Getenv("LOG_LEVEL"), "info")
	format := firstNonEmpty(a.logFormat, os.Getenv("LOG_FORMAT"), "text")
	a.logger = logging.Setup(a.stderr, level, format)
	a.level = logging.ParseLevel(level)

	if envErr != nil {
		a.logger.Debug("no .env file found, using environment variables", "file", a.envFile)
	} else {
		a.logger.Debug("loaded .env file (overwriting existing env vars)", "file", a.envFile)
	}

	path := firstNonEmpty(a.mapping, os.Getenv("IMPORT_MAPPING_FILE"))
	if err := schema.ApplyFile(path); err != nil {
		return fmt.Errorf("mapping overrides: %w", err)
	}
	if path != "" {
		a.logger.Info("mapping overrides applied", "file", path)
	}
	return nil
}

func (a *App) loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	a.logger.Debug("configuration loaded", "config", cfg.String())
	return cfg, nil
}

func connectPostgres(ctx context.Context, cfg config.DatabaseConfig) (core.Store, func(), error) {
	pool, err := database.Connect(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return database.New(pool), pool.Close, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
