package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vonshlovens/nebula-notes/internal/config"
	"github.com/vonshlovens/nebula-notes/internal/watcher"
	"github.com/vonshlovens/nebula-notes/internal/workspace"
)

// workspaceDir resolves the folder argument, falling back to workspace.dir
func workspaceDir(cfg *config.Config, args []string) (string, error) {
	dir := cfg.Workspace.Dir
	if len(args) > 0 {
		dir = args[0]
	}
	if dir == "" {
		return "", fmt.Errorf("no workspace folder: pass one or set workspace.dir")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	return abs, nil
}

// openWorkspace builds a workspace over dir with its persisted state
func openWorkspace(a *app, dir string) (*workspace.Workspace, error) {
	stateDir, err := config.GetStateDir()
	if err != nil {
		return nil, err
	}
	state, err := workspace.NewStateTracker(stateDir, dir)
	if state == nil {
		return nil, err
	}
	if err != nil {
		slog.Warn("failed to load workspace state, starting fresh", "error", err)
	}

	return workspace.New(dir, a.repo, a.drafts, state,
		workspace.WithSessionOptions(a.sessionOptions()...),
		workspace.WithIgnorePatterns(a.cfg.Workspace.IgnorePatterns),
		workspace.WithLogger(slog.Default()),
		workspace.WithProgress(os.Stderr),
	), nil
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch [dir]",
		Short: "Edit notes through a folder of markdown files",
		Long: `Scans a folder of markdown files, then watches it for changes. Every
changed file is edited through an autosave session and saved on the autosave
interval and on shutdown. Files without an id in their frontmatter become new
notes, and the id is written back once the note is saved.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close()

			dir, err := workspaceDir(a.cfg, args)
			if err != nil {
				return err
			}
			if info, err := os.Stat(dir); err != nil || !info.IsDir() {
				return fmt.Errorf("workspace folder does not exist: %s", dir)
			}

			ws, err := openWorkspace(a, dir)
			if err != nil {
				return err
			}

			slog.Info("performing initial scan")
			if err := ws.Scan(ctx); err != nil {
				slog.Error("initial scan failed", "error", err)
			}

			w, err := watcher.New(dir, watcher.NewDebouncer(a.cfg.Workspace.Debounce()), a.cfg.Workspace.IgnorePatterns, slog.Default())
			if err != nil {
				return fmt.Errorf("failed to create watcher: %w", err)
			}
			if err := w.Start(ctx); err != nil {
				return fmt.Errorf("failed to start watcher: %w", err)
			}

			slog.Info("watcher started", "path", dir)
			fmt.Println("Watching for changes. Press Ctrl+C to stop.")

			err = ws.Watch(ctx, w.Events())
			if stopErr := w.Stop(); stopErr != nil {
				slog.Warn("failed to stop watcher", "error", stopErr)
			}
			if err != nil {
				return fmt.Errorf("some notes were not saved and remain as drafts: %w", err)
			}
			fmt.Println("All changes saved.")
			return nil
		},
	}
}

func pullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pull [dir]",
		Short: "Write every note into a folder of markdown files",
		Long:  `Downloads all notes into a folder as markdown files with frontmatter. Use this to set up a workspace on a new device.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := openApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close()

			dir, err := workspaceDir(a.cfg, args)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create workspace folder: %w", err)
			}

			ws, err := openWorkspace(a, dir)
			if err != nil {
				return err
			}

			res, err := ws.Pull(ctx)
			if err != nil {
				return describeErr(err)
			}

			fmt.Printf("\nPull complete: %d written, %d unchanged, %d failed\n", res.Written, res.Unchanged, res.Failed)
			if res.Failed > 0 {
				return fmt.Errorf("%d notes could not be written", res.Failed)
			}
			return nil
		},
	}
}
