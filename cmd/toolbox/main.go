package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	os.Exit(run())
}

func run() int {
	root := &cobra.Command{
		Use:     "toolbox",
		Short:   "Find duplicate files and analyse directories",
		Version: version + " (" + commit + ")",
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newScanCmd())

	if err := root.Execute(); err != nil {
		return 1
	}
	return 0
}
