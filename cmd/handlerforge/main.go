package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "handlerforge",
		Short: "A bytecode rewriter implementing the Handler Pattern",
	}

	rootCmd.AddCommand(newInstrumentCmd())
	rootCmd.AddCommand(newPlanCmd())
	rootCmd.AddCommand(newDumpCmd())
	rootCmd.AddCommand(newLSPCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
