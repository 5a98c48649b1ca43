package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/paper2code/internal/dashboard"
	"github.com/ziadkadry99/paper2code/internal/metrics"
	"github.com/ziadkadry99/paper2code/internal/pdftext"
	"github.com/ziadkadry99/paper2code/internal/report"
	"github.com/ziadkadry99/paper2code/internal/server"
	"github.com/ziadkadry99/paper2code/internal/session"
	"github.com/ziadkadry99/paper2code/internal/tracing"
)

var serverPort int

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the HTTP API and dashboard",
	Long:  `Starts the paper2code server with the pipeline REST API, report pages, the chat dashboard and a Prometheus /metrics endpoint.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("port") {
			cfg.Server.Port = serverPort
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		shutdownTracing, err := tracing.Init(cfg.Tracing.Enabled, os.Stderr)
		if err != nil {
			return fmt.Errorf("initializing tracing: %w", err)
		}
		defer shutdownTracing(context.Background())
		metrics.Init()

		rt, err := openRuntime(ctx, cfg)
		if err != nil {
			return err
		}
		defer rt.Close()

		if err := rt.manager.Recover(ctx); err != nil {
			return fmt.Errorf("recovering sessions: %w", err)
		}

		srv := server.New(cfg.Server, rt.db)
		registerAllRoutes(srv, rt.manager)

		snapshots, err := scheduleSnapshots(rt)
		if err != nil {
			return err
		}

		// Graceful shutdown.
		go func() {
			<-ctx.Done()
			fmt.Fprintln(os.Stderr, "\nShutting down server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()

		fmt.Fprintf(os.Stderr, "paper2code server %s starting on port %d\n", Version, cfg.Server.Port)
		fmt.Fprintf(os.Stderr, "  Database: %s\n", rt.db.Path())
		fmt.Fprintf(os.Stderr, "  Provider: %s (%s)\n", cfg.Provider, cfg.Model)
		if rt.store != nil {
			fmt.Fprintf(os.Stderr, "  Knowledge base: %d passages\n", rt.store.Count())
		}

		err = srv.Start()

		if snapshots != nil {
			<-snapshots.Stop().Done()
		}
		if perr := rt.persist(context.Background()); perr != nil {
			log.Printf("server: final knowledge base snapshot: %v", perr)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	},
}

// registerAllRoutes wires up the feature routes. Pipeline and report routes
// run under the request timeout; the dashboard's websocket does not.
func registerAllRoutes(srv *server.Server, m *session.Manager) {
	session.RegisterRoutes(srv.API(), m, pdftext.Extractor{})
	report.RegisterRoutes(srv.API(), m.Artifacts())
	dashboard.New(m).RegisterRoutes(srv.Router())
}

// scheduleSnapshots persists the knowledge base on the configured schedule.
func scheduleSnapshots(rt *runtime) (*cron.Cron, error) {
	if rt.store == nil || rt.cfg.RAG.SnapshotSchedule == "" {
		return nil, nil
	}
	c := cron.New()
	_, err := c.AddFunc(rt.cfg.RAG.SnapshotSchedule, func() {
		if err := rt.persist(context.Background()); err != nil {
			log.Printf("server: knowledge base snapshot: %v", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid rag.snapshot_schedule %q: %w", rt.cfg.RAG.SnapshotSchedule, err)
	}
	c.Start()
	return c, nil
}

func init() {
	serverCmd.Flags().IntVar(&serverPort, "port", 5000, "Port to listen on (overrides server.port)")
	rootCmd.AddCommand(serverCmd)
}
