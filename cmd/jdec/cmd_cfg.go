package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dhamidi/jdec/cfg"
	"github.com/dhamidi/jdec/classfile"
	"github.com/dhamidi/jdec/decompiler"
)

func newCFGCmd() *cobra.Command {
	var (
		descriptor string
		stageName  string
		calls      bool
	)

	cmd := &cobra.Command{
		Use:   "cfg <classfile> [method]",
		Short: "Print a method's control flow graph, or the class call graph, as DOT",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			stage, err := cfg.ParseStage(stageName)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			out := cmd.OutOrStdout()

			if calls || len(args) == 1 {
				graphs, err := decompiler.Graphs(data, stage)
				if err != nil {
					return err
				}
				cf, err := classfile.ParseBytes(data)
				if err != nil {
					return err
				}
				fmt.Fprint(out, cfg.CallGraphDOT(graphs, cf.ClassName()))
				return nil
			}

			method := args[1]
			graph, err := decompiler.Graph(data, method, descriptor, stage)
			if err != nil {
				return err
			}
			fmt.Fprint(out, graph.DOT(method+descriptor))
			return nil
		},
	}

	cmd.Flags().StringVarP(&descriptor, "desc", "d", "", "method descriptor when the name is overloaded")
	cmd.Flags().StringVarP(&stageName, "stage", "s", "full", "reduction stage (raw, goto, loop, pre, full)")
	cmd.Flags().BoolVar(&calls, "calls", false, "print the call graph of the whole class")

	return cmd
}
