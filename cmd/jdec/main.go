package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"

	"github.com/dhamidi/jdec/config"

	_ "github.com/tliron/commonlog/simple"
)

const version = "0.1.0"

// globals are the persistent flags every command sees.
type globals struct {
	configPath string
	verbosity  int
	logFile    string

	config *config.Config
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	rootCmd := &cobra.Command{
		Use:          "jdec",
		Short:        "Reconstruct structured method bodies from JVM class files",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var logPath *string
			if g.logFile != "" {
				logPath = &g.logFile
			}
			commonlog.Configure(g.verbosity, logPath)

			wd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("working directory: %w", err)
			}
			g.config, err = config.Find(g.configPath, wd)
			return err
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&g.configPath, "config", "", "options file (default ./"+config.FileName+" when present)")
	flags.CountVarP(&g.verbosity, "verbose", "v", "log more; repeat for debug output")
	flags.StringVar(&g.logFile, "log", "", "write the log to this file instead of stderr")

	rootCmd.AddCommand(newDecompileCmd(g))
	rootCmd.AddCommand(newCFGCmd())
	rootCmd.AddCommand(newDisasmCmd())
	rootCmd.AddCommand(newDumpCmd())
	rootCmd.AddCommand(newWatchCmd(g))
	rootCmd.AddCommand(newLSPCmd(g))

	return rootCmd
}
