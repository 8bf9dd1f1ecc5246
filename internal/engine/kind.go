package engine

import "fmt"

// Kind selects which AI backend answers a chat turn. The wire values are
// the numeric strings clients send in the modelType field.
type Kind string

const (
	// KindQwen is the plain DashScope qwen chat model.
	KindQwen Kind = "1"
	// KindDoubao is the Volcengine ARK doubao chat model.
	KindDoubao Kind = "2"
	// KindRAG is the DashScope RAG application backed by a knowledge base.
	KindRAG Kind = "3"
	// KindQwenTool is the qwen model with the local tool registry bound.
	KindQwenTool Kind = "4"
	// KindClaude is the Anthropic claude chat model.
	KindClaude Kind = "5"
)

// ParseKind validates a client-supplied modelType string. Empty input
// defaults to KindQwen.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case "":
		return KindQwen, nil
	case KindQwen, KindDoubao, KindRAG, KindQwenTool, KindClaude:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown model type %q", s)
}

// Streams reports whether the backend for this kind produces incremental
// deltas. RAG and tool-calling answers arrive whole.
func (k Kind) Streams() bool {
	switch k {
	case KindRAG, KindQwenTool:
		return false
	}
	return true
}
