package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vonshlovens/nebula-notes/internal/api"
	"github.com/vonshlovens/nebula-notes/internal/config"
	"github.com/vonshlovens/nebula-notes/internal/timefmt"
)

func reindexCmd() *cobra.Command {
	var chunkSize int

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the semantic search index",
		Long:  `Asks the backend to re-chunk and re-embed every note. Run this after bulk imports or when search results look stale.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := openApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.Close()

			client, err := a.requireAPI("reindex")
			if err != nil {
				return err
			}

			fmt.Println("Reindexing notes, this can take a while...")
			res, err := client.EmbedAll(ctx, chunkSize)
			if err != nil {
				return fmt.Errorf("reindex failed: %w", describeErr(err))
			}

			fmt.Printf("Indexed %d notes into %d chunks.\n", res.TotalNotes-res.FailedNotes, res.TotalChunks)
			if res.FailedNotes > 0 {
				fmt.Printf("%d notes failed:\n", res.FailedNotes)
				for _, e := range res.Errors {
					fmt.Printf("  %s\n", e)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&chunkSize, "chunk-size", api.DefaultChunkSize, "characters per embedded chunk")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show repository connection, session and draft info",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := openApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close()

			now := time.Now()
			fmt.Println("=== Nebula Status ===")
			fmt.Printf("Repository: %s\n", a.cfg.Repository)

			switch {
			case a.db != nil:
				status, err := a.db.GetStatus(ctx)
				if err != nil {
					fmt.Printf("Database Status: Disconnected\n")
					fmt.Printf("Error: %v\n", err)
					break
				}
				fmt.Printf("Database Status: Connected\n")
				fmt.Printf("  Host: %s\n", a.cfg.Database.Host)
				fmt.Printf("  Database: %s\n", a.cfg.Database.Database)
				fmt.Printf("  Schema: %s\n", status.Schema)
				fmt.Printf("  Notes: %d\n", status.TotalNotes)
				if status.LastUpdated != nil {
					fmt.Printf("  Last Update: %s\n", timefmt.RelativeTime(*status.LastUpdated, now))
				}

			default:
				fmt.Printf("API: %s\n", a.cfg.API.BaseURL)
				session, err := a.auth.Session(ctx)
				if err != nil {
					fmt.Printf("Session: %v\n", describeErr(err))
					break
				}
				if session.ExpiresAt.IsZero() {
					fmt.Println("Session: signed in")
				} else {
					fmt.Printf("Session: signed in, expires %s\n", session.ExpiresAt.Local().Format(time.RFC1123))
				}
				notes, err := a.repo.List(ctx)
				if err != nil {
					fmt.Printf("  Error: %v\n", describeErr(err))
					break
				}
				fmt.Printf("  Notes: %d\n", len(notes))
			}

			fmt.Println()
			fmt.Printf("Drafts: %s", a.cfg.Drafts.Backend)
			if a.cfg.Drafts.Backend == config.DraftsFile {
				fmt.Printf(" (%s)", a.cfg.Drafts.Dir)
			}
			fmt.Println()
			drafts, err := a.drafts.List(ctx)
			if err != nil {
				fmt.Printf("  Error: %v\n", err)
				return nil
			}
			fmt.Printf("  Unsaved: %d\n", len(drafts))
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	var status bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long:  `Creates the configured schema and applies all pending migrations. Only used by the postgres repository.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := openApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.db == nil {
				return fmt.Errorf("migrate requires the postgres repository (repository: %s)", a.cfg.Repository)
			}

			if status {
				return a.db.MigrationStatus(ctx)
			}
			if err := a.db.RunMigrations(ctx); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Println("Migrations completed successfully.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&status, "status", false, "show applied and pending migrations")
	return cmd
}

// prompt reads one trimmed line, returning def when the answer is empty
func prompt(r *bufio.Reader, label, def string) string {
	if def != "" {
		fmt.Printf("%s [%s]: ", label, def)
	} else {
		fmt.Printf("%s: ", label)
	}
	answer, _ := r.ReadString('\n')
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return def
	}
	return answer
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Interactive setup to create config file",
		Long:  `Interactively creates a configuration file for the api or postgres repository.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			reader := bufio.NewReader(os.Stdin)
			defaults := config.DefaultConfig()

			fmt.Println("=== Nebula Setup ===")
			fmt.Println()

			repository := prompt(reader, "Repository (api or postgres)", defaults.Repository)

			var b strings.Builder
			fmt.Fprintf(&b, "repository: %q\n\n", repository)

			switch repository {
			case config.BackendAPI:
				fmt.Println("\nAPI Configuration:")
				baseURL := prompt(reader, "  Base URL", defaults.API.BaseURL)
				fmt.Fprintf(&b, "api:\n  base_url: %q\n  token: \"${NEBULA_TOKEN}\"  # Set NEBULA_TOKEN environment variable\n\n", baseURL)

			case config.BackendPostgres:
				fmt.Println("\nDatabase Configuration:")
				host := prompt(reader, "  Host", "")
				port := prompt(reader, "  Port", "5432")
				user := prompt(reader, "  User", "")
				dbName := prompt(reader, "  Database name", "")
				if dbName == "" {
					return fmt.Errorf("database name is required")
				}
				schema := config.SanitizeIdentifier(prompt(reader, "  Schema name", "notes"))
				sslMode := prompt(reader, "  SSL mode", defaults.Database.SSLMode)
				fmt.Fprintf(&b, `database:
  host: %q
  port: %s
  user: %q
  password: "${DB_PASSWORD}"  # Set DB_PASSWORD environment variable
  database: %q
  schema: %q
  sslmode: %q

`, host, port, user, dbName, schema, sslMode)

			default:
				return fmt.Errorf("unknown repository %q", repository)
			}

			fmt.Println("\nDrafts:")
			backend := prompt(reader, "  Store (file or redis)", defaults.Drafts.Backend)
			switch backend {
			case config.DraftsFile:
				fmt.Fprintf(&b, "drafts:\n  backend: file\n\n")
			case config.DraftsRedis:
				redisURL := prompt(reader, "  Redis URL", "redis://localhost:6379/0")
				fmt.Fprintf(&b, "drafts:\n  backend: redis\n  redis_url: %q\n  ttl_hours: 720\n\n", redisURL)
			default:
				return fmt.Errorf("unknown draft store %q", backend)
			}

			folder := prompt(reader, "Markdown workspace folder (optional)", "")
			fmt.Fprintf(&b, `autosave:
  interval_s: %d
  max_retries: %d

workspace:
  dir: %q
  debounce_ms: %d
  ignore_patterns:
`, defaults.Autosave.IntervalS, defaults.Autosave.MaxRetries, folder, defaults.Workspace.DebounceMs)
			for _, p := range defaults.Workspace.IgnorePatterns {
				fmt.Fprintf(&b, "    - %q\n", p)
			}

			configDir, err := config.GetStateDir()
			if err != nil {
				return err
			}
			configPath := filepath.Join(configDir, "config.yaml")

			if err := os.WriteFile(configPath, []byte(b.String()), 0600); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}

			fmt.Printf("\nConfig file written to: %s\n", configPath)
			switch repository {
			case config.BackendAPI:
				fmt.Println("\nIMPORTANT: Set the NEBULA_TOKEN environment variable to your access token.")
				fmt.Println("To check the connection, run: nebula status")
			case config.BackendPostgres:
				fmt.Println("\nIMPORTANT: Set the DB_PASSWORD environment variable.")
				fmt.Println("To run migrations, run: nebula migrate")
			}
			fmt.Println("To list notes, run: nebula list")
			return nil
		},
	}
}
