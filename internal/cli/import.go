package cli

import (
	"encoding/json"
	"path/filepath"
	"time"

	"github.com/JonMunkholm/reconcile/internal/core"
	"github.com/JonMunkholm/reconcile/internal/memstore"
	"github.com/spf13/cobra"
)

type importFlags struct {
	overwrite       bool
	createIfMissing bool
	encodings       []string
	dryRun          bool
}

func (a *App) importCommand() *cobra.Command {
	var f importFlags

	cmd := &cobra.Command{
		Use:   "import <entity> <file>",
		Short: "Import one CSV or Excel file into an entity",
		Long: `Import reads one file, validates and merges every row into the entity's
table, and prints the batch result as a single JSON document on stdout.

Exit status is 0 when the batch succeeded or every failure was a skipped
duplicate, and 1 otherwise.`,
		Example: `  reconcile import customer customers.xlsx
  reconcile import social_insurance june.csv --overwrite
  reconcile import customer_update updates.csv --encoding gbk --dry-run`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := core.ImportRequest{
				Entity:    args[0],
				Path:      args[1],
				Overwrite: f.overwrite,
				Encodings: f.encodings,
			}
			if cmd.Flags().Changed("create-if-missing") {
				req.CreateIfMissing = &f.createIfMissing
			}
			return a.runImport(cmd, req, f.dryRun)
		},
	}

	cmd.Flags().BoolVar(&f.overwrite, "overwrite", false, "replace stored rows of the same person and month (periodic entities only)")
	cmd.Flags().BoolVar(&f.createIfMissing, "create-if-missing", false, "create entities whose natural key is not stored (default per entity)")
	cmd.Flags().StringSliceVar(&f.encodings, "encoding", nil, "CSV encodings to try in order, e.g. utf-8,gbk (default from IMPORT_ENCODINGS)")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "read the database but keep every write in memory")

	return cmd
}

func (a *App) runImport(cmd *cobra.Command, req core.ImportRequest, dryRun bool) error {
	ctx := cmd.Context()
	fileName := filepath.Base(req.Path)

	cfg, err := a.loadConfig()
	if err != nil {
		return a.emit(core.FailedBatch(req.Entity, fileName,
			&core.SetupError{Type: core.ErrTypeInvalidRequest, Err: err}, time.Now()))
	}
	core.MaxFileSize = cfg.Import.MaxFileSize
	if len(req.Encodings) == 0 {
		req.Encodings = cfg.Import.Encodings
	}

	store, release, err := a.connect(ctx, cfg.Database)
	if err != nil {
		a.logger.Error("failed to connect to database", "error", err)
		return a.emit(core.FailedBatch(req.Entity, fileName,
			&core.SetupError{Type: core.ErrTypeDatabase, Err: err}, time.Now()))
	}
	defer release()

	if dryRun {
		a.logger.Info("dry run: writes stay in memory")
		store = memstore.New(memstore.WithBase(store))
	}

	engine := core.NewEngine(store, core.Options{
		Logger:  a.logger,
		Level:   a.level,
		Timeout: cfg.Import.Timeout,
	})
	return a.emit(engine.Import(ctx, req))
}

// emit prints the result and records its exit status.
func (a *App) emit(res *core.BatchResult) error {
	a.exitCode = res.ExitCode()
	enc := json.NewEncoder(a.stdout)
	enc.SetEscapeHTML(false)
	return enc.Encode(res)
}
