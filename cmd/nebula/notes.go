package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vonshlovens/nebula-notes/internal/autosave"
	"github.com/vonshlovens/nebula-notes/internal/note"
	"github.com/vonshlovens/nebula-notes/internal/search"
	"github.com/vonshlovens/nebula-notes/internal/timefmt"
)

func listCmd() *cobra.Command {
	var (
		query    string
		semantic string
		sortKey  string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notes, filtered by title or ranked by meaning",
		Long: `Lists every note. --query keeps notes whose title contains the text,
--sort orders them, and --semantic ranks notes by similarity to a query instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := openApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.Close()

			notes, err := a.repo.List(ctx)
			if err != nil {
				return describeErr(err)
			}

			now := time.Now()
			if semantic != "" {
				client, err := a.requireAPI("semantic search")
				if err != nil {
					return err
				}
				if limit <= 0 {
					limit = a.cfg.Search.Limit
				}
				matches, err := search.NewEngine(client, limit).Semantic(ctx, notes, semantic)
				if err != nil {
					return describeErr(err)
				}
				return writeMatches(os.Stdout, matches, now)
			}

			if sortKey == "" {
				sortKey = a.cfg.Search.DefaultSort
			}
			key, err := search.ParseSortKey(sortKey)
			if err != nil {
				return err
			}
			return writeNotes(os.Stdout, search.Sort(search.FilterByTitle(notes, query), key), now)
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "keep notes whose title contains this text")
	cmd.Flags().StringVarP(&semantic, "semantic", "s", "", "rank notes by similarity to this query")
	cmd.Flags().StringVar(&sortKey, "sort", "", "date-desc, date-asc, name-asc or name-desc")
	cmd.Flags().IntVar(&limit, "limit", 0, "chunks requested from semantic search")
	cmd.MarkFlagsMutuallyExclusive("query", "semantic")
	cmd.MarkFlagsMutuallyExclusive("sort", "semantic")

	return cmd
}

func writeNotes(out io.Writer, notes []note.Note, now time.Time) error {
	if len(notes) == 0 {
		_, err := fmt.Fprintln(out, "No notes found.")
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tUPDATED")
	for _, n := range notes {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", n.ID, displayTitle(n), timefmt.RelativeTime(n.LastModified(), now))
	}
	return tw.Flush()
}

func writeMatches(out io.Writer, matches []search.Match, now time.Time) error {
	if len(matches) == 0 {
		_, err := fmt.Fprintln(out, "No matching notes.")
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCORE\tID\tTITLE\tUPDATED")
	for _, m := range matches {
		fmt.Fprintf(tw, "%.3f\t%s\t%s\t%s\n", m.Score, m.Note.ID, displayTitle(m.Note), timefmt.RelativeTime(m.Note.LastModified(), now))
	}
	return tw.Flush()
}

func displayTitle(n note.Note) string {
	if n.Title == "" {
		return note.UntitledTitle
	}
	return n.Title
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print a note",
		Long:  `Prints a note with its timestamps and tags. An unsaved local draft of the note is shown instead of the stored text.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id := args[0]

			a, err := openApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close()

			var n note.Note
			err = note.ErrNotFound
			if note.IsCanonicalID(id) {
				n, err = a.repo.Get(ctx, id)
			}
			if err != nil && !errors.Is(err, note.ErrNotFound) {
				return describeErr(err)
			}

			d, hasDraft := a.drafts.Read(ctx, id)
			if err != nil && !hasDraft {
				return describeErr(err)
			}
			return writeNote(os.Stdout, overlayDraft(n, id, d, hasDraft), time.Now())
		},
	}
}

// draftView is a note as last edited on this device
type draftView struct {
	note.Note
	fromDraft bool
}

// overlayDraft applies a draft that differs from the stored note
func overlayDraft(n note.Note, id string, d note.Draft, hasDraft bool) draftView {
	if !hasDraft || (d.Title == n.Title && d.Content == n.Content) {
		return draftView{Note: n}
	}

	n.ID = id
	n.Title, n.Content = d.Title, d.Content
	if n.CreatedAt.IsZero() {
		n.CreatedAt = d.Timestamp
	}
	if n.UpdatedAt.Before(d.Timestamp) {
		n.UpdatedAt = d.Timestamp
	}
	return draftView{Note: n, fromDraft: true}
}

func writeNote(out io.Writer, v draftView, now time.Time) error {
	w := bufio.NewWriter(out)
	fmt.Fprintf(w, "# %s\n\n", displayTitle(v.Note))
	fmt.Fprintf(w, "ID:       %s\n", v.ID)
	fmt.Fprintf(w, "Created:  %s\n", timefmt.RelativeTime(v.CreatedAt, now))
	fmt.Fprintf(w, "Updated:  %s\n", timefmt.RelativeTime(v.LastModified(), now))
	if len(v.Tags) > 0 {
		fmt.Fprintf(w, "Tags:     %s\n", strings.Join(v.Tags, ", "))
	}
	if v.fromDraft {
		fmt.Fprintf(w, "Unsaved local draft, run `nebula edit %s` to save it.\n", v.ID)
	}
	fmt.Fprintf(w, "\n%s\n", v.Content)
	return w.Flush()
}

// completion returns session hooks that report how a save chain that went
// into retry ended
func completion() (<-chan autosave.Result, []autosave.Option) {
	done := make(chan autosave.Result, 1)
	send := func(r autosave.Result) {
		select {
		case done <- r:
		default:
		}
	}
	return done, []autosave.Option{
		autosave.OnSaved(func(_ string, saved note.Note) {
			send(autosave.Result{Outcome: autosave.OutcomeSaved, Note: saved})
		}),
		autosave.OnFailure(send),
	}
}

// saveAndWait forces a save of s and waits out its retries
func saveAndWait(ctx context.Context, s *autosave.Session, done <-chan autosave.Result) autosave.Result {
	res := s.StopEditing(ctx)
	if res.Outcome != autosave.OutcomeRetrying {
		return res
	}

	fmt.Fprintln(os.Stderr, "Save failed, retrying...")
	select {
	case res = <-done:
	case <-ctx.Done():
		res = autosave.Result{Outcome: autosave.OutcomeFailed, Err: ctx.Err()}
	}
	return res
}

// reportSave prints the outcome of a forced save
func reportSave(out io.Writer, res autosave.Result, id string) error {
	switch res.Outcome {
	case autosave.OutcomeSaved:
		fmt.Fprintf(out, "Saved %s\n", res.Note.ID)
		return nil
	case autosave.OutcomeSkipped:
		fmt.Fprintln(out, "No changes to save.")
		return nil
	default:
		return fmt.Errorf("note not saved, draft kept under %s: %w", id, describeErr(res.Err))
	}
}

// readContent reads note text from path, or stdin when path is "-"
func readContent(path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read content: %w", err)
	}
	return string(data), nil
}

func newCmd() *cobra.Command {
	var (
		title string
		file  string
	)

	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create a note from a file or stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			content, err := readContent(file)
			if err != nil {
				return err
			}

			a, err := openApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close()

			done, hooks := completion()
			s := autosave.OpenNew(ctx, a.repo, a.drafts, "", a.sessionOptions(hooks...)...)
			defer s.Close(ctx)

			s.Edit(ctx, title, content)
			return reportSave(os.Stdout, saveAndWait(ctx, s, done), s.ID())
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "note title (derived from content when empty)")
	cmd.Flags().StringVarP(&file, "file", "f", "-", "read content from this file")
	return cmd
}

func editCmd() *cobra.Command {
	var (
		title string
		file  string
	)

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Replace a note's title or content",
		Long: `Opens a note, applies the new title and content and saves it.
Without --title or --file, a surviving local draft of the note is saved.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := openApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close()

			done, hooks := completion()
			s, err := autosave.Open(ctx, a.repo, a.drafts, args[0], a.sessionOptions(hooks...)...)
			if err != nil {
				return describeErr(err)
			}
			defer s.Close(ctx)

			s.StartEditing()
			if cmd.Flags().Changed("title") {
				s.SetTitle(ctx, title)
			}
			if file != "" {
				content, err := readContent(file)
				if err != nil {
					return err
				}
				s.SetContent(ctx, content)
			}

			return reportSave(os.Stdout, saveAndWait(ctx, s, done), s.ID())
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "new title")
	cmd.Flags().StringVarP(&file, "file", "f", "", "read new content from this file, - for stdin")
	return cmd
}

func deleteCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a note and its local draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := openApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := autosave.Open(ctx, a.repo, a.drafts, args[0], a.sessionOptions()...)
			if err != nil {
				return describeErr(err)
			}

			if !yes && !confirm(os.Stdin, fmt.Sprintf("Delete %q? [y/N]: ", displayTitle(s.Note()))) {
				fmt.Println("Aborted.")
				return nil
			}

			if err := s.Delete(ctx); err != nil {
				return describeErr(err)
			}
			fmt.Printf("Deleted %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func confirm(in io.Reader, prompt string) bool {
	fmt.Print(prompt)
	answer, _ := bufio.NewReader(in).ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func draftsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drafts",
		Short: "List unsaved local drafts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := openApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close()

			drafts, err := a.drafts.List(ctx)
			if err != nil {
				return fmt.Errorf("failed to list drafts: %w", err)
			}
			return writeDrafts(os.Stdout, drafts, time.Now())
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "discard <id>",
		Short: "Drop the local draft of a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := openApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, ok := a.drafts.Read(ctx, args[0]); !ok {
				return fmt.Errorf("no draft for %s", args[0])
			}
			a.drafts.Clear(ctx, args[0])
			fmt.Printf("Discarded draft %s\n", args[0])
			return nil
		},
	})

	return cmd
}

func writeDrafts(out io.Writer, drafts []note.Draft, now time.Time) error {
	if len(drafts) == 0 {
		_, err := fmt.Fprintln(out, "No drafts.")
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NOTE\tTITLE\tSAVED LOCALLY\tSTATE")
	for _, d := range drafts {
		state := "unsaved changes"
		if !note.IsCanonicalID(d.NoteID) {
			state = "never saved"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.NoteID, note.DeriveTitle(d.Title, d.Content), timefmt.RelativeTime(d.Timestamp, now), state)
	}
	return tw.Flush()
}
