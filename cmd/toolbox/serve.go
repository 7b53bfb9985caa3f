package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lyallcooper/toolbox/internal/app"
	"github.com/lyallcooper/toolbox/internal/config"
	"github.com/spf13/cobra"
)

// serveOptions holds CLI flags for the serve command.
type serveOptions struct {
	port int
	bind string
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Starts the HTTP API. Configuration is read from TOOLBOX_* environment
variables; --port and --bind override TOOLBOX_PORT and TOOLBOX_BIND_ADDRESS.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			if cmd.Flags().Changed("port") {
				cfg.Port = opts.port
			}
			if cmd.Flags().Changed("bind") {
				cfg.BindAddress = opts.bind
			}
			return runServe(cfg)
		},
	}

	cmd.Flags().IntVarP(&opts.port, "port", "p", 8000, "Port to listen on")
	cmd.Flags().StringVarP(&opts.bind, "bind", "b", "", "Address to bind to (empty = all interfaces)")

	return cmd
}

func runServe(cfg *config.Config) error {
	srv, err := app.CreateServer(app.ServerConfig{
		Config:  cfg,
		Version: version,
		Commit:  commit,
	})
	if err != nil {
		return err
	}
	defer srv.Cleanup()

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.HTTP.Shutdown(ctx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	log.Printf("Server listening on http://%s", srv.HTTP.Addr)
	if err := srv.HTTP.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	log.Println("Server stopped")
	return nil
}
