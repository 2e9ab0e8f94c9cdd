package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/vonshlovens/nebula-notes/internal/api"
	"github.com/vonshlovens/nebula-notes/internal/auth"
	"github.com/vonshlovens/nebula-notes/internal/autosave"
	"github.com/vonshlovens/nebula-notes/internal/config"
	"github.com/vonshlovens/nebula-notes/internal/db"
	"github.com/vonshlovens/nebula-notes/internal/draft"
	"github.com/vonshlovens/nebula-notes/internal/note"
)

var (
	cfgFile string
	verbose bool
	version = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "nebula",
		Short:   "Notes client with autosave, drafts and semantic search",
		Long:    `A command line client for a notes backend. Edits are mirrored to a local draft cache and saved with retries, and notes can be searched by title or by meaning.`,
		Version: version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: level,
			})))
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	rootCmd.AddCommand(
		listCmd(),
		showCmd(),
		newCmd(),
		editCmd(),
		deleteCmd(),
		draftsCmd(),
		watchCmd(),
		pullCmd(),
		reindexCmd(),
		statusCmd(),
		migrateCmd(),
		initCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds the collaborators a command needs
type app struct {
	cfg    *config.Config
	repo   note.Repository
	client *api.Client // nil unless the api repository is configured
	db     *db.DB      // nil unless the postgres repository is configured
	auth   *auth.TokenProvider
	drafts *draft.Cache
}

// openApp loads config and connects the configured repository. Drafts are
// opened only when withDrafts is set.
func openApp(ctx context.Context, withDrafts bool) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	a := &app{cfg: cfg}
	switch cfg.Repository {
	case config.BackendPostgres:
		database, err := db.New(ctx, &cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.db = database
		a.repo = database
	default:
		a.auth = auth.NewTokenProvider(cfg.API.Token)
		client, err := api.NewClient(cfg.API.BaseURL, a.auth,
			api.WithHTTPClient(&http.Client{Timeout: cfg.API.Timeout()}),
			api.WithPageSize(cfg.API.PageSize),
		)
		if err != nil {
			return nil, err
		}
		a.client = client
		a.repo = client
	}

	if withDrafts {
		store, err := openDraftStore(ctx, cfg)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.drafts = draft.NewCache(store, draft.WithLogger(slog.Default()))
	}
	return a, nil
}

func openDraftStore(ctx context.Context, cfg *config.Config) (draft.Store, error) {
	switch cfg.Drafts.Backend {
	case config.DraftsRedis:
		store, err := draft.DialRedisStore(ctx, cfg.Drafts.RedisURL, cfg.Drafts.KeyPrefix, cfg.Drafts.TTL())
		if err != nil {
			return nil, fmt.Errorf("failed to open redis draft store: %w", err)
		}
		return store, nil
	default:
		store, err := draft.NewFileStore(cfg.Drafts.Dir)
		if err != nil {
			return nil, fmt.Errorf("failed to open draft directory: %w", err)
		}
		return store, nil
	}
}

func (a *app) Close() {
	if a.drafts != nil {
		if err := a.drafts.Close(); err != nil {
			slog.Warn("failed to close draft store", "error", err)
		}
	}
	if a.client != nil {
		a.client.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}

// autosaveConfig converts the configured timings
func (a *app) autosaveConfig() autosave.Config {
	return autosave.Config{
		Interval:     a.cfg.Autosave.Interval(),
		SavedDisplay: a.cfg.Autosave.SavedDisplay(),
		MaxRetries:   a.cfg.Autosave.MaxRetries,
		RetryBase:    a.cfg.Autosave.RetryBase(),
	}
}

func (a *app) sessionOptions(extra ...autosave.Option) []autosave.Option {
	return append([]autosave.Option{
		autosave.WithConfig(a.autosaveConfig()),
		autosave.WithLogger(slog.Default()),
	}, extra...)
}

// requireAPI returns the HTTP client or explains why a command needs it
func (a *app) requireAPI(what string) (*api.Client, error) {
	if a.client == nil {
		return nil, fmt.Errorf("%s requires the api repository (repository: %s)", what, a.cfg.Repository)
	}
	return a.client, nil
}

// describeErr turns the error taxonomy into short user-facing text
func describeErr(err error) error {
	switch {
	case errors.Is(err, note.ErrNoSession):
		return fmt.Errorf("not signed in: set api.token or NEBULA_API_TOKEN (%w)", err)
	case errors.Is(err, note.ErrNotFound):
		return fmt.Errorf("note not found (%w)", err)
	default:
		return err
	}
}
