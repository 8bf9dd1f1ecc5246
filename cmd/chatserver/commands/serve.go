package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/telnet2/go-practice/go-chat/internal/bridge"
	"github.com/telnet2/go-practice/go-chat/internal/config"
	"github.com/telnet2/go-practice/go-chat/internal/engine"
	"github.com/telnet2/go-practice/go-chat/internal/logging"
	"github.com/telnet2/go-practice/go-chat/internal/queue"
	"github.com/telnet2/go-practice/go-chat/internal/registry"
	"github.com/telnet2/go-practice/go-chat/internal/server"
	"github.com/telnet2/go-practice/go-chat/internal/store"
)

var (
	servePort   int
	serveConfig string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chat HTTP server",
	Long: `Start the chat backend: HTTP API, session registry, AI worker pool
and the message persistence queue. Shuts down cleanly on SIGINT/SIGTERM.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().StringVarP(&serveConfig, "config", "c", "", "Path to JSONC config file")
}

func runServe(cmd *cobra.Command, args []string) error {
	// .env is optional; real environments set variables directly.
	_ = godotenv.Load()

	cfg, err := config.Load(serveConfig)
	if err != nil {
		return err
	}
	if servePort > 0 {
		cfg.Server.Port = servePort
	}

	logging.Init(logging.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
	log := logging.Component("main")
	log.Info().Str("version", Version).Str("dataDir", cfg.Server.DataDir).Msg("starting chat server")

	st := store.New(cfg.Server.DataDir)

	reg := registry.New(cfg.Cache.MaxActiveSessions)
	defer reg.Close()

	// Rebuild the session index so listings survive restarts. Engines
	// stay on disk until a session is touched again.
	pairs, err := st.LoadSessionIDs()
	if err != nil {
		return err
	}
	reg.LoadIndex(pairs)
	log.Info().Int("sessions", len(pairs)).Msg("session index loaded")

	q, err := queue.New(cfg.Queue.Topic, cfg.Queue.Consumers, st)
	if err != nil {
		return err
	}
	defer q.Close()

	br := bridge.New(cfg.Bridge.Workers, cfg.Bridge.QueueSize, reg)
	defer br.Close()

	factory := engine.NewFactory(cfg.Providers, engine.DefaultToolRegistry())

	srv := server.New(cfg, reg, st, br, factory, q)
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	log.Info().Msg("server stopped")
	return nil
}
