// Package testutil provides helpers for the end-to-end server suite.
package testutil

import (
	"net/http/httptest"

	"github.com/telnet2/go-practice/go-chat/internal/bridge"
	"github.com/telnet2/go-practice/go-chat/internal/config"
	"github.com/telnet2/go-practice/go-chat/internal/engine"
	"github.com/telnet2/go-practice/go-chat/internal/queue"
	"github.com/telnet2/go-practice/go-chat/internal/registry"
	"github.com/telnet2/go-practice/go-chat/internal/server"
	"github.com/telnet2/go-practice/go-chat/internal/store"
	"github.com/telnet2/go-practice/go-chat/pkg/types"
)

// TestServer runs the full stack against a throwaway data directory.
type TestServer struct {
	BaseURL  string
	Config   *types.Config
	Registry *registry.Registry
	Store    *store.Store

	httpSrv *httptest.Server
	bridge  *bridge.Bridge
	queue   *queue.Queue
}

// Options tweak the test deployment.
type Options struct {
	// DataDir holds the store files. Required.
	DataDir string
	// CacheCapacity overrides the LRU capacity.
	CacheCapacity int
	// TickMillis and TimeoutTicks shrink the SSE state machine so
	// timeout paths finish quickly.
	TickMillis   int
	TimeoutTicks int
}

// StartTestServer boots the whole stack on an ephemeral port.
func StartTestServer(opts Options) (*TestServer, error) {
	cfg := config.Default()
	cfg.Server.DataDir = opts.DataDir
	if opts.CacheCapacity > 0 {
		cfg.Cache.MaxActiveSessions = opts.CacheCapacity
	}
	if opts.TickMillis > 0 {
		cfg.Stream.TickMillis = opts.TickMillis
	}
	if opts.TimeoutTicks > 0 {
		cfg.Stream.TimeoutTicks = opts.TimeoutTicks
	}

	st := store.New(cfg.Server.DataDir)
	reg := registry.New(cfg.Cache.MaxActiveSessions)

	q, err := queue.New(cfg.Queue.Topic, cfg.Queue.Consumers, st)
	if err != nil {
		reg.Close()
		return nil, err
	}
	br := bridge.New(2, 32, reg)
	factory := engine.NewFactory(cfg.Providers, engine.DefaultToolRegistry())

	srv := server.New(cfg, reg, st, br, factory, q)
	httpSrv := httptest.NewServer(srv.Router())

	return &TestServer{
		BaseURL:  httpSrv.URL,
		Config:   cfg,
		Registry: reg,
		Store:    st,
		httpSrv:  httpSrv,
		bridge:   br,
		queue:    q,
	}, nil
}

// Close tears the stack down.
func (s *TestServer) Close() {
	s.httpSrv.Close()
	s.bridge.Close()
	s.queue.Close()
	s.Registry.Close()
}
