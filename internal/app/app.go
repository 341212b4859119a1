// Package app builds the engine's collaborators from configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/bankfeed/internal/api/middleware"
	"github.com/dvloznov/bankfeed/internal/config"
	"github.com/dvloznov/bankfeed/internal/gcsuploader"
	infraBQ "github.com/dvloznov/bankfeed/internal/infra/bigquery"
	"github.com/dvloznov/bankfeed/internal/ingest"
	"github.com/dvloznov/bankfeed/internal/logger"
	"github.com/dvloznov/bankfeed/internal/notionrules"
	"github.com/dvloznov/bankfeed/internal/pipeline"
	"github.com/dvloznov/bankfeed/internal/sheets"
	"github.com/dvloznov/bankfeed/internal/store"
	"github.com/dvloznov/bankfeed/internal/store/inmemory"
)

// App holds the wired engine.
type App struct {
	Config       *config.Config
	Transactions store.TransactionStore
	Rules        store.RuleStore
	Logs         store.IngestionLogStore
	Runner       *pipeline.Runner

	// Sheet is nil when no spreadsheet id is configured.
	Sheet   ingest.Importer
	CSV     *ingest.CSVImporter
	Webhook *ingest.WebhookReceiver

	// Storage is nil when no upload bucket is configured.
	Storage gcsuploader.StorageService

	closers []func() error
}

// New wires stores and adapters for cfg. Callers must Close the App.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	log := logger.FromContext(ctx)

	a := &App{Config: cfg}

	switch cfg.Store.Backend {
	case config.StoreBigQuery:
		repo, err := infraBQ.NewRepository(ctx, cfg.Store.Project, cfg.Store.Dataset)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, repo.Close)
		a.Transactions, a.Rules, a.Logs = repo, repo, repo
	default:
		mem := inmemory.NewStore()
		a.Transactions, a.Rules, a.Logs = mem, mem, mem
		log.Warn().Msg("Using in-memory store; data is lost on exit")
	}

	if cfg.Rules.Backend == config.RulesNotion {
		a.Rules = notionrules.NewRuleStore(notionrules.NewNotionClient(cfg.Rules.NotionToken), cfg.Rules.NotionDatabaseID)
	}

	if cfg.Uploads.Bucket != "" {
		svc, err := gcsuploader.NewGCSStorageService(ctx)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, svc.Close)
		a.Storage = svc
	}

	var archiver ingest.Archiver
	if a.Storage != nil {
		archiver = gcsuploader.NewArchiver(a.Storage, cfg.Uploads.Bucket)
	}
	a.CSV = ingest.NewCSVImporter(a.Transactions, archiver)

	if cfg.Webhook.Secret == "" {
		log.Warn().Msg("No webhook secret configured; webhook calls will be rejected")
	}
	a.Webhook = ingest.NewWebhookReceiver(cfg.Webhook.Secret, a.Transactions)

	if cfg.Sheet.ID != "" {
		reader, err := sheets.NewReader(ctx, cfg.Sheet.CredentialsFile)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Sheet = ingest.NewSheetImporter(reader, a.Transactions, cfg.Sheet.ID, cfg.Sheet.Range)
	}

	a.Runner = pipeline.NewRunner(a.Transactions, a.Rules, a.Logs)
	return a, nil
}

// Identities converts configured tokens to request identities.
func (a *App) Identities() map[string]middleware.Identity {
	roles := a.Config.TokenRoles()
	ids := make(map[string]middleware.Identity, len(roles))
	for token, t := range roles {
		ids[token] = middleware.Identity{Name: t.Name, Role: t.Role}
	}
	return ids
}

// Close releases clients in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
