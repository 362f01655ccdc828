package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/zberg/go-vcontrold/internal/logging"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var rootCmd = &cobra.Command{
	Use:           "vclient",
	Short:         "vcontrold client CLI",
	Long:          `A command line interface for reading and writing heating controller values through vcontrold.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	os.Exit(run())
}

// run executes the root command. Errors, including those raised before
// the configuration is loaded, go to the default logger.
func run() int {
	if err := rootCmd.Execute(); err != nil {
		logging.Default().Error("vclient failed", "error", err)
		return 1
	}
	return 0
}
