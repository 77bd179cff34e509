package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newChatCmd(a *app) *cobra.Command {
	var files []string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Index files and answer questions interactively",
		Long: `Index the given files once, then answer questions read from standard input
until "exit", "quit" or end of input. Answers are streamed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, release, err := a.session()
			if err != nil {
				return err
			}
			defer release()

			ctx := cmd.Context()
			if err := index(ctx, cmd, sess, files); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			in := bufio.NewScanner(cmd.InOrStdin())
			for {
				fmt.Fprint(out, "> ")
				if !in.Scan() {
					fmt.Fprintln(out)
					return in.Err()
				}
				q := strings.TrimSpace(in.Text())
				switch q {
				case "":
					continue
				case "exit", "quit":
					return nil
				}
				if err := answer(ctx, out, sess, q, true); err != nil {
					// One failed question does not end the conversation.
					fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
				}
				if err := ctx.Err(); err != nil {
					return err
				}
			}
		},
	}
	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, "PDF or text file to index (repeatable, required)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
