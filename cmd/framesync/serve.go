package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/framesync/framesync/internal/daemon"
	"github.com/framesync/framesync/internal/dashboard"
	"github.com/framesync/framesync/internal/ui"
)

var serveNoDaemon bool

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "sync",
	Short:   "Serve the sync API and dashboard, and sync in the background",
	Long: `Start the HTTP API and WebSocket dashboard, and run the background daemon
that pulls remote commits and, with --auto-sync, syncs local changes once
the working set has been quiet for the debounce period.

HTTP API:
  GET    /api/sync/status     what a sync would upload and download
  POST   /api/sync            run a full sync
  POST   /api/sync/pull       pull if behind and clean
  GET    /api/sync/verify     check the configuration
  GET    /api/sync/logs       sync log (?limit=N, ?since=RFC3339)
  DELETE /api/sync/logs       clear the sync log
  POST   /api/images/rename   {"from": ..., "to": ...}

Every completed sync or pull is pushed to clients of ws://<addr>/ws.

Example usage:
  framesync serve                          # 127.0.0.1:8080, pull every 5m
  framesync serve --port 9000 --auto-sync
  framesync serve --no-daemon              # API only`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Int("port", 0, "port to listen on (default from config: 8080)")
	serveCmd.Flags().String("host", "", "address to bind (default from config: 127.0.0.1)")
	serveCmd.Flags().Bool("auto-sync", false, "sync local changes automatically")
	serveCmd.Flags().BoolVar(&serveNoDaemon, "no-daemon", false, "do not poll the remote or watch the working set")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if cmd.Flags().Changed("auto-sync") {
		cfg.Daemon.AutoSync, _ = cmd.Flags().GetBool("auto-sync")
	}

	eng, layout, err := openEngine()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := dashboard.NewServer(eng, &dashboard.Config{
		Host:   cfg.Serve.Host,
		Port:   cfg.Serve.Port,
		Logger: logger,
	})
	eng.SetNotifier(dashboard.NewHandler(server, logger))

	if err := server.Start(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	addr := server.GetAddr()
	fmt.Fprintln(out, ui.PassLine("dashboard listening on "+ui.RenderAccent("http://"+addr)))
	fmt.Fprintf(out, "  WebSocket endpoint: ws://%s/ws\n", addr)
	fmt.Fprintf(out, "  Health check:       http://%s/health\n", addr)

	if serveNoDaemon {
		fmt.Fprintln(out, "\nPress Ctrl+C to stop...")
		<-ctx.Done()
	} else {
		d, err := daemon.New(eng, layout, daemon.Config{
			PollInterval: cfg.Daemon.PollInterval,
			Debounce:     cfg.Daemon.Debounce,
			AutoSync:     cfg.Daemon.AutoSync,
			Logger:       logger,
		})
		if err != nil {
			_ = server.Stop()
			return err
		}
		mode := "pulling every " + cfg.Daemon.PollInterval.String()
		if cfg.Daemon.AutoSync {
			mode += ", syncing local changes after " + cfg.Daemon.Debounce.String()
		}
		fmt.Fprintf(out, "  Daemon:             %s\n", mode)
		fmt.Fprintln(out, "\nPress Ctrl+C to stop...")

		if err := d.Start(ctx); err != nil {
			_ = server.Stop()
			return fmt.Errorf("daemon: %w", err)
		}
	}

	fmt.Fprintln(out, "\nShutting down...")
	if err := server.Stop(); err != nil {
		return err
	}
	fmt.Fprintln(out, ui.PassLine("stopped"))
	return nil
}
