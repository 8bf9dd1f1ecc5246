package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// chatBackend adapts an eino chat model to the backend interface.
type chatBackend struct {
	model model.ToolCallingChatModel
}

func (b *chatBackend) generate(ctx context.Context, msgs []*schema.Message) (string, error) {
	out, err := b.model.Generate(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	return out.Content, nil
}

func (b *chatBackend) stream(ctx context.Context, msgs []*schema.Message, onDelta func(string)) (string, error) {
	reader, err := b.model.Stream(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("start stream: %w", err)
	}
	defer reader.Close()

	var full strings.Builder
	for {
		chunk, err := reader.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("stream recv: %w", err)
		}
		if chunk.Content == "" {
			continue
		}
		full.WriteString(chunk.Content)
		if onDelta != nil {
			onDelta(chunk.Content)
		}
	}
	return full.String(), nil
}
