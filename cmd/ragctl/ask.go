package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/WessleyAI/wessley-rag/engine/domain"
	"github.com/WessleyAI/wessley-rag/engine/rag"
)

// sourcePreview is how many characters of a source are printed.
const sourcePreview = 300

func newAskCmd(a *app) *cobra.Command {
	var (
		files  []string
		stream bool
	)
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Index files and answer one question",
		Long: `Index the given files, then answer the question from the retrieved passages.

Examples:
  ragctl ask --file report.pdf "what were the q3 results?"
  ragctl ask --file a.txt --file b.txt --stream -k 5 "summarize the differences"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, release, err := a.session()
			if err != nil {
				return err
			}
			defer release()

			ctx := cmd.Context()
			if err := index(ctx, cmd, sess, files); err != nil {
				return err
			}
			return answer(ctx, cmd.OutOrStdout(), sess, strings.Join(args, " "), stream)
		},
	}
	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, "PDF or text file to index (repeatable, required)")
	cmd.Flags().BoolVar(&stream, "stream", false, "print the answer as it is generated")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// readDocuments loads every path. The media type is left to the extractor,
// which goes by file extension.
func readDocuments(paths []string) ([]domain.Document, error) {
	docs := make([]domain.Document, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		docs = append(docs, domain.Document{Name: filepath.Base(p), Data: data})
	}
	return docs, nil
}

// index ingests files into sess with a progress bar on stderr. It fails
// only when nothing could be stored.
func index(ctx context.Context, cmd *cobra.Command, sess *rag.Session, files []string) error {
	docs, err := readDocuments(files)
	if err != nil {
		return err
	}

	errOut := cmd.ErrOrStderr()
	var bar *progressbar.ProgressBar
	progress := func(current, total int) {
		if bar == nil {
			bar = newProgressBar(errOut, total)
		}
		_ = bar.Set(current)
	}

	report, err := sess.Ingest(ctx, docs, progress)
	if err != nil {
		return err
	}
	for _, f := range report.Failures {
		fmt.Fprintf(errOut, "warning: %v\n", f)
	}
	if report.Stored == 0 {
		return errors.New("no content could be indexed")
	}
	fmt.Fprintf(errOut, "Indexed %d chunks from %d of %d documents\n", report.Stored, report.Extracted, report.Documents)
	return nil
}

func newProgressBar(w io.Writer, total int) *progressbar.ProgressBar {
	color := stderrIsTerminal(w)
	desc := "Indexing"
	if color {
		desc = "[cyan]Indexing[reset]"
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(color),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(w) }),
	)
}

// answer prints the answer to question followed by its sources.
func answer(ctx context.Context, out io.Writer, sess *rag.Session, question string, stream bool) error {
	if !stream {
		ans, err := sess.Query(ctx, question)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, ans.Text)
		printSources(out, ans.Sources)
		return nil
	}

	st, err := sess.QueryStream(ctx, question)
	if err != nil {
		return err
	}
	for frag, err := range st.Fragments {
		if err != nil {
			fmt.Fprintln(out)
			return err
		}
		fmt.Fprint(out, frag)
	}
	fmt.Fprintln(out)
	printSources(out, st.Sources)
	return nil
}

func printSources(out io.Writer, sources []rag.Source) {
	if len(sources) == 0 {
		return
	}
	fmt.Fprintln(out, "\nSources:")
	for i, s := range sources {
		fmt.Fprintf(out, "[%d] (score %.3f) %s\n", i+1, s.Score, truncate(s.Text, sourcePreview))
	}
}

// truncate shortens s to n characters, marking the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
