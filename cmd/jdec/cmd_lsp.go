package main

import (
	"github.com/spf13/cobra"

	"github.com/dhamidi/jdec/lsp"
)

func newLSPCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "lsp",
		Short: "Start the Language Server Protocol server on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			server := lsp.NewServer(version, g.config.Options())
			return server.RunStdio()
		},
	}
}
