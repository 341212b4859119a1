package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/dvloznov/bankfeed/internal/app"
	"github.com/dvloznov/bankfeed/internal/classify"
	"github.com/dvloznov/bankfeed/internal/config"
	"github.com/dvloznov/bankfeed/internal/gcsuploader"
	"github.com/dvloznov/bankfeed/internal/ingest"
	"github.com/dvloznov/bankfeed/internal/logger"
)

// cliTimeout bounds one command, batch runs included.
const cliTimeout = 10 * time.Minute

type cli struct {
	out        io.Writer
	configPath string
}

func newRootCommand(out io.Writer) *cobra.Command {
	c := &cli{out: out}

	rootCmd := &cobra.Command{
		Use:   "bankfeed",
		Short: "Import and classify bank transactions",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}
	rootCmd.SetOut(out)
	rootCmd.PersistentFlags().StringVar(&c.configPath, "config", "config.yaml", "path to the YAML config file (optional)")

	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Import transactions from a source",
	}
	importCmd.AddCommand(c.newImportSheetCommand(), c.newImportCSVCommand())

	rulesCmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect classification rules",
	}
	rulesCmd.AddCommand(c.newRulesListCommand())

	rootCmd.AddCommand(c.newClassifyCommand(), importCmd, rulesCmd, c.newDeleteAllCommand())
	return rootCmd
}

// run builds the engine, runs fn and prints its result as JSON.
func (c *cli) run(cmd *cobra.Command, fn func(ctx context.Context, engine *app.App) (interface{}, error)) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}

	log := logger.Configure(cfg.Log.Format, cfg.Log.Level, cmd.ErrOrStderr())
	ctx, cancel := context.WithTimeout(logger.WithContext(cmd.Context(), log), cliTimeout)
	defer cancel()

	engine, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	result, err := fn(ctx, engine)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func (c *cli) newClassifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "classify",
		Short: "Run rule matching over every stored transaction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, engine *app.App) (interface{}, error) {
				return engine.Runner.ClassifyAll(ctx)
			})
		},
	}
}

func (c *cli) newImportSheetCommand() *cobra.Command {
	var classifyAfter bool

	cmd := &cobra.Command{
		Use:   "sheet",
		Short: "Import the configured spreadsheet range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, engine *app.App) (interface{}, error) {
				if engine.Sheet == nil {
					return nil, errors.New("no spreadsheet configured (sheet.id or SHEET_ID)")
				}
				if classifyAfter {
					return engine.Runner.ImportThenClassify(ctx, engine.Sheet)
				}
				return engine.Runner.Import(ctx, engine.Sheet)
			})
		},
	}

	cmd.Flags().BoolVar(&classifyAfter, "classify", false, "classify all transactions after importing")
	return cmd
}

func (c *cli) newImportCSVCommand() *cobra.Command {
	var file, gcsURI string
	var classifyAfter bool

	cmd := &cobra.Command{
		Use:   "csv",
		Short: "Import a CSV export from a local file or GCS",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (file == "") == (gcsURI == "") {
				return errors.New("exactly one of --file or --gcs-uri is required")
			}
			return c.run(cmd, func(ctx context.Context, engine *app.App) (interface{}, error) {
				name, data, err := readCSVSource(ctx, engine.Storage, file, gcsURI)
				if err != nil {
					return nil, err
				}
				importer := ingest.ImporterFunc(func(ctx context.Context) (*ingest.Result, error) {
					return engine.CSV.Import(ctx, name, bytes.NewReader(data))
				})
				if classifyAfter {
					return engine.Runner.ImportThenClassify(ctx, importer)
				}
				return engine.Runner.Import(ctx, importer)
			})
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "path to a local CSV file")
	cmd.Flags().StringVar(&gcsURI, "gcs-uri", "", "gs://bucket/object of a CSV file")
	cmd.Flags().BoolVar(&classifyAfter, "classify", false, "classify all transactions after importing")
	return cmd
}

func readCSVSource(ctx context.Context, storage gcsuploader.StorageService, file, gcsURI string) (string, []byte, error) {
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", nil, fmt.Errorf("reading %s: %w", file, err)
		}
		return filepath.Base(file), data, nil
	}

	if storage == nil {
		return "", nil, errors.New("--gcs-uri needs uploads.bucket (or GCS_BUCKET) to be configured")
	}
	data, err := gcsuploader.FetchFromGCS(ctx, storage, gcsURI)
	if err != nil {
		return "", nil, err
	}
	return gcsuploader.ExtractFilenameFromGCSURI(gcsURI), data, nil
}

func (c *cli) newRulesListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active rules in evaluation order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, engine *app.App) (interface{}, error) {
				rules, err := engine.Rules.ListActiveRules(ctx)
				if err != nil {
					return nil, err
				}
				return classify.SortRules(rules), nil
			})
		},
	}
}

func (c *cli) newDeleteAllCommand() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete-all",
		Short: "Delete every stored transaction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to delete without --yes")
			}
			return c.run(cmd, func(ctx context.Context, engine *app.App) (interface{}, error) {
				return engine.Runner.DeleteAll(ctx)
			})
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion of all transactions")
	return cmd
}
