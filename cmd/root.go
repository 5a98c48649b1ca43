package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/paper2code/internal/config"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "paper2code",
	Short: "Turn networking research papers into working implementations",
	Long: `paper2code reads a networking research paper, extracts a structured
analysis, and generates a Python, ns-3 or P4 implementation of it. The
implementation is then scored and refined iteratively, with a knowledge
base of analyzed papers and reference material grounding each step.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultConfigFile, "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
