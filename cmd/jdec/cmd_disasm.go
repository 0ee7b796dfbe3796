package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dhamidi/jdec/bytecode"
	"github.com/dhamidi/jdec/classfile"
)

func newDisasmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "disasm <classfile> [method]",
		Short: "Print the bytecode of every method, or of the named one",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cf, err := classfile.ParseFile(args[0])
			if err != nil {
				return fmt.Errorf("parse class file: %w", err)
			}
			out := cmd.OutOrStdout()
			cp := cf.ConstantPool
			shown := 0
			for i := range cf.Methods {
				mi := &cf.Methods[i]
				name := mi.Name(cp)
				if len(args) == 2 && name != args[1] {
					continue
				}
				shown++
				fmt.Fprintf(out, "%s%s:\n", name, mi.Descriptor(cp))
				code := mi.Code()
				if code == nil {
					fmt.Fprintln(out, "  (no code)")
					continue
				}
				lines, err := bytecode.Disassemble(code.Code, cp)
				for _, l := range lines {
					fmt.Fprintf(out, "  %s\n", l)
				}
				if err != nil {
					fmt.Fprintf(out, "  ! %v\n", err)
				}
			}
			if shown == 0 && len(args) == 2 {
				return fmt.Errorf("%s: no method named %s", cf.ClassName(), args[1])
			}
			return nil
		},
	}
	return cmd
}
