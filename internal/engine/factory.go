package engine

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/telnet2/go-practice/go-chat/pkg/types"
)

// backend produces a whole answer for a message history.
type backend interface {
	generate(ctx context.Context, msgs []*schema.Message) (string, error)
}

// streamingBackend additionally reports content increments as they
// arrive. Only the plain chat-model kinds implement it; RAG and tool
// calling need the complete response before they can act.
type streamingBackend interface {
	backend
	stream(ctx context.Context, msgs []*schema.Message, onDelta func(string)) (string, error)
}

// backendSource resolves a Kind to a usable backend.
type backendSource interface {
	Backend(ctx context.Context, kind Kind) (backend, error)
}

// Factory builds and caches one backend per Kind. Model construction is
// lazy so the process starts even when some providers are unconfigured;
// a kind with no credentials fails on first use.
type Factory struct {
	cfg   types.ProvidersConfig
	tools *ToolRegistry

	mu       sync.Mutex
	backends map[Kind]backend
}

func NewFactory(cfg types.ProvidersConfig, tools *ToolRegistry) *Factory {
	return &Factory{
		cfg:      cfg,
		tools:    tools,
		backends: make(map[Kind]backend),
	}
}

// Tools exposes the registry bound to the tool-calling kind.
func (f *Factory) Tools() *ToolRegistry { return f.tools }

// Backend returns the backend for kind, constructing it on first use.
func (f *Factory) Backend(ctx context.Context, kind Kind) (backend, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.backends[kind]; ok {
		return b, nil
	}
	b, err := f.build(ctx, kind)
	if err != nil {
		return nil, err
	}
	f.backends[kind] = b
	return b, nil
}

func (f *Factory) build(ctx context.Context, kind Kind) (backend, error) {
	switch kind {
	case KindQwen:
		mdl, err := f.buildQwen(ctx)
		if err != nil {
			return nil, err
		}
		return &chatBackend{model: mdl}, nil

	case KindQwenTool:
		mdl, err := f.buildQwen(ctx)
		if err != nil {
			return nil, err
		}
		mdl, err = mdl.WithTools(f.tools.Infos())
		if err != nil {
			return nil, fmt.Errorf("bind tools: %w", err)
		}
		return &toolBackend{
			chatBackend: chatBackend{model: mdl},
			tools:       f.tools,
		}, nil

	case KindDoubao:
		cfg := f.cfg.Ark
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("doubao backend: ARK API key not configured")
		}
		mdl, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("create doubao model: %w", err)
		}
		return &chatBackend{model: mdl}, nil

	case KindClaude:
		cfg := f.cfg.Claude
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("claude backend: API key not configured")
		}
		ccfg := &claude.Config{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			MaxTokens: 4096,
		}
		if cfg.BaseURL != "" {
			ccfg.BaseURL = &cfg.BaseURL
		}
		mdl, err := claude.NewChatModel(ctx, ccfg)
		if err != nil {
			return nil, fmt.Errorf("create claude model: %w", err)
		}
		return &chatBackend{model: mdl}, nil

	case KindRAG:
		cfg := f.cfg.RAG
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("rag backend: API key not configured")
		}
		if cfg.KnowledgeBaseID == "" {
			return nil, fmt.Errorf("rag backend: knowledge base id not configured")
		}
		return &ragBackend{
			url:    cfg.URLPrefix + cfg.KnowledgeBaseID + cfg.URLSuffix,
			apiKey: cfg.APIKey,
			client: &http.Client{Timeout: 60 * time.Second},
		}, nil
	}
	return nil, fmt.Errorf("unknown model kind %q", kind)
}

func (f *Factory) buildQwen(ctx context.Context) (model.ToolCallingChatModel, error) {
	cfg := f.cfg.Qwen
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("qwen backend: DashScope API key not configured")
	}
	mdl, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		BaseURL: cfg.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("create qwen model: %w", err)
	}
	return mdl, nil
}
