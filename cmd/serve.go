package cmd

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	mcpserver "github.com/ziadkadry99/paper2code/internal/mcp"
	"github.com/ziadkadry99/paper2code/internal/pdftext"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server for AI agent integration",
	Long:  `Starts a Model Context Protocol (MCP) server on stdio, exposing the analysis, generation, evaluation and refinement pipeline and knowledge-base search as tools.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		// MCP owns stdout.
		log.SetOutput(os.Stderr)

		ctx := context.Background()
		rt, err := openRuntime(ctx, cfg)
		if err != nil {
			return err
		}
		defer rt.Close()

		if err := rt.manager.Recover(ctx); err != nil {
			return fmt.Errorf("recovering sessions: %w", err)
		}

		// Set version from the cmd package variable.
		mcpserver.Version = Version

		docs := 0
		if rt.store != nil {
			docs = rt.store.Count()
		}
		fmt.Fprintf(os.Stderr, "paper2code MCP server started on stdio (data=%s, passages=%d)\n", cfg.DataDir, docs)

		srv := mcpserver.NewServer(rt.manager, rt.vectorStore(), pdftext.Extractor{})
		serveErr := srv.Serve()
		if err := rt.persist(ctx); err != nil {
			log.Printf("serve: persisting knowledge base: %v", err)
		}
		return serveErr
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
