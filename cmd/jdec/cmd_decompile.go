package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dhamidi/jdec/decompiler"
	"github.com/dhamidi/jdec/format"
)

func newDecompileCmd(g *globals) *cobra.Command {
	var (
		outputFormat   string
		workers        int
		maxRounds      int
		preReduce      bool
		classpath      []string
		disabledIdioms []string
	)

	cmd := &cobra.Command{
		Use:   "decompile <path>...",
		Short: "Reconstruct the method bodies of class files, directories and jars",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := *g.config
			flags := cmd.Flags()
			if flags.Changed("format") {
				c.Format = outputFormat
			}
			if flags.Changed("workers") {
				c.Workers = workers
			}
			if flags.Changed("max-rounds") {
				c.MaxRounds = maxRounds
			}
			if flags.Changed("pre-reduce") {
				c.PreReduce = preReduce
			}
			if flags.Changed("classpath") {
				c.Classpath = classpath
			}
			if flags.Changed("disable") {
				c.DisabledIdioms = disabledIdioms
			}
			if err := c.Validate(); err != nil {
				return err
			}

			inputs, err := collectInputs(args)
			if err != nil {
				return err
			}
			outputs := decompiler.Batch(cmd.Context(), inputs, c.Options())
			return writeOutputs(cmd.OutOrStdout(), cmd.ErrOrStderr(), c.Format, outputs)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "tree", "output format (tree, json, line)")
	cmd.Flags().IntVarP(&workers, "workers", "j", 0, "parallel workers (0 for one per CPU)")
	cmd.Flags().IntVar(&maxRounds, "max-rounds", 0, "bound on reduction rounds per method (0 for the default)")
	cmd.Flags().BoolVar(&preReduce, "pre-reduce", false, "run the pre-reduction heuristics")
	cmd.Flags().StringSliceVar(&classpath, "classpath", nil, "directories and jars searched for referenced classes")
	cmd.Flags().StringSliceVar(&disabledIdioms, "disable", nil, "idiom passes to skip")

	return cmd
}

// writeOutputs encodes every result and reports classes that could not be
// read. The error is set when at least one class was malformed.
func writeOutputs(stdout, stderr io.Writer, name string, outputs []decompiler.Output) error {
	enc, err := format.New(name, stdout)
	if err != nil {
		return err
	}
	failed := 0
	for _, out := range outputs {
		if out.Err != nil {
			failed++
			fmt.Fprintf(stderr, "%s: %v\n", out.Input.Name, out.Err)
			continue
		}
		if out.Duplicate {
			fmt.Fprintf(stderr, "%s: identical to an earlier input\n", out.Input.Name)
			continue
		}
		if err := enc.Encode(out.Result); err != nil {
			return fmt.Errorf("encode %s: %w", out.Input.Name, err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d classes could not be decompiled", failed, len(outputs))
	}
	return nil
}
