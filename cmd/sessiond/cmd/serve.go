package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/goSession/internal/server"
	promexport "github.com/MrEthical07/goSession/metrics/export/prometheus"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the session server",
	Long:  `Start the HTTP server with the login, callback, logout, refresh and protected routes.`,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&listenAddr, "addr", "a", "", "Listen address. Overrides config.")
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.WithField("version", Version).Info("Starting sessiond")

	cfg, engine, err := buildEngine(ctx)
	if err != nil {
		return err
	}
	defer engine.Close()

	if listenAddr != "" {
		cfg.Server.Addr = listenAddr
	}

	opts := server.Options{
		Addr:              cfg.Server.Addr,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ShutdownTimeout:   cfg.Server.ShutdownTimeout,
		LoginPath:         cfg.Server.LoginPath,
		CallbackPath:      cfg.Server.CallbackPath,
		RefreshRate:       cfg.Server.RefreshRate,
		RefreshBurst:      cfg.Server.RefreshBurst,
	}
	if cfg.Metrics.Enabled {
		opts.Metrics = promexport.NewExporter(engine).Handler()
	}

	if err := server.New(engine, log, opts).Run(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
