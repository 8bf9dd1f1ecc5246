// Package server provides the HTTP API for the chat backend.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/telnet2/go-practice/go-chat/internal/bridge"
	"github.com/telnet2/go-practice/go-chat/internal/engine"
	"github.com/telnet2/go-practice/go-chat/internal/logging"
	"github.com/telnet2/go-practice/go-chat/internal/registry"
	"github.com/telnet2/go-practice/go-chat/internal/store"
	"github.com/telnet2/go-practice/go-chat/internal/stream"
	"github.com/telnet2/go-practice/go-chat/pkg/types"
)

// SpeechSynthesizer converts text into a URL to generated audio.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string) (string, error)
}

// Server is the HTTP server.
type Server struct {
	cfg      *types.Config
	router   *chi.Mux
	httpSrv  *http.Server
	registry *registry.Registry
	store    *store.Store
	bridge   *bridge.Bridge
	factory  *engine.Factory
	sink     engine.MessageSink
	streamer *stream.Streamer
	speech   SpeechSynthesizer
	auth     *sessionManager
	log      zerolog.Logger
}

// New wires the handlers to their collaborators.
func New(cfg *types.Config, reg *registry.Registry, st *store.Store, br *bridge.Bridge, factory *engine.Factory, sink engine.MessageSink) *Server {
	s := &Server{
		cfg:      cfg,
		router:   chi.NewRouter(),
		registry: reg,
		store:    st,
		bridge:   br,
		factory:  factory,
		sink:     sink,
		streamer: stream.New(reg, cfg.Stream),
		speech:   engine.NewSpeechService(cfg.Providers.Speech),
		auth:     newSessionManager(),
		log:      logging.Component("server"),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RealIP)

	if s.cfg.Server.EnableCORS {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
}

func (s *Server) setupRoutes() {
	r := s.router

	r.Post("/register", s.register)
	r.Post("/login", s.login)
	r.Post("/user/logout", s.logout)

	r.Route("/chat", func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Post("/send", s.chatSend)
		r.Post("/send-new-session", s.chatSendNewSession)
		r.Get("/sessions", s.chatSessions)
		r.Post("/history", s.chatHistory)
		r.Post("/get-result", s.chatGetResult)
		r.Post("/speech", s.chatSpeech)
		r.Get("/stream", s.chatStream)
	})
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:        fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:     s.router,
		ReadTimeout: 30 * time.Second,
		// No write timeout; SSE streams stay open past any fixed bound.
	}
	s.log.Info().Int("port", s.cfg.Server.Port).Msg("http server listening")
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// Router exposes the chi router for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}
