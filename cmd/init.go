package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/paper2code/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize paper2code configuration with an interactive wizard",
	Long:  `Runs an interactive wizard to choose the LLM and embedding providers and generates a .paper2code.yml file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := config.RunWizard()
		return err
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
