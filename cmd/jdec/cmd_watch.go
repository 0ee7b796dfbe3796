package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/dhamidi/jdec/decompiler"
	"github.com/dhamidi/jdec/lsp"
)

func newWatchCmd(g *globals) *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Decompile class files again whenever they change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := args[0]
			info, err := os.Stat(root)
			if err != nil {
				return fmt.Errorf("stat %s: %w", root, err)
			}
			if !info.IsDir() {
				return fmt.Errorf("%s is not a directory", root)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			ws := lsp.NewWorkspace(root, g.config.Options())
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "watching %s\n", root)
			return lsp.Watch(ctx, root, debounce, func(paths []string) {
				report(out, ws, paths)
			})
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", 250*time.Millisecond, "quiet period before changes are processed")

	return cmd
}

// report decompiles each changed file and prints one status line per
// file, followed by the methods that did not come out fully structured.
func report(out io.Writer, ws *lsp.Workspace, paths []string) {
	for _, path := range paths {
		f, err := ws.ScanFile(path)
		if err != nil {
			ws.RemoveFile(path)
			fmt.Fprintf(out, "%s\tremoved\n", path)
			continue
		}
		if f.Err != nil {
			fmt.Fprintf(out, "%s\terror\t%v\n", path, f.Err)
			continue
		}
		fmt.Fprintf(out, "%s\t%s\t%s\n", path, f.Result.Status(), f.Result.DigestHex())
		for _, m := range f.Result.Methods {
			switch m.Status {
			case decompiler.StatusIncomplete:
				fmt.Fprintf(out, "  %s\tincomplete\n", m.Key())
			case decompiler.StatusFailed:
				fmt.Fprintf(out, "  %s\tfailed\t%s\n", m.Key(), m.Failure)
			}
		}
	}
}
