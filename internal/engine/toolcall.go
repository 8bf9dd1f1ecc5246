package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/schema"
)

// toolBackend runs the two-phase tool-calling protocol: one request with
// the tool registry bound, an optional local tool execution, then a
// follow-up request carrying the tool result. The model sees at most one
// round of tool use per turn.
type toolBackend struct {
	chatBackend
	tools *ToolRegistry
}

func (b *toolBackend) generate(ctx context.Context, msgs []*schema.Message) (string, error) {
	first, err := b.model.Generate(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	if len(first.ToolCalls) == 0 {
		return first.Content, nil
	}

	call := first.ToolCalls[0]
	// Tool failures are reported back to the model rather than aborting
	// the turn, so the user still gets a natural-language answer.
	result := b.runToolCall(ctx, call)

	followup := make([]*schema.Message, 0, len(msgs)+2)
	followup = append(followup, msgs...)
	followup = append(followup, first, &schema.Message{
		Role:       schema.Tool,
		Content:    result,
		ToolCallID: call.ID,
	})

	second, err := b.model.Generate(ctx, followup)
	if err != nil {
		return "", fmt.Errorf("tool followup: %w", err)
	}
	return second.Content, nil
}

// runToolCall resolves, validates and executes one tool call. Every
// failure path returns a bracketed diagnostic instead of an error.
func (b *toolBackend) runToolCall(ctx context.Context, call schema.ToolCall) string {
	tool, ok := b.tools.Get(call.Function.Name)
	if !ok {
		return fmt.Sprintf("[tool error] unknown tool: %s", call.Function.Name)
	}

	args := make(map[string]any)
	if call.Function.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			return fmt.Sprintf("[invalid arguments] malformed JSON: %v", err)
		}
	}
	if diag := validateArgs(tool, args); diag != "" {
		return diag
	}

	out, err := safeExecute(ctx, tool, args)
	if err != nil {
		return fmt.Sprintf("[tool error] %s: %v", tool.Name(), err)
	}
	encoded, err := json.Marshal(out)
	if err != nil {
		return fmt.Sprintf("[tool error] %s: encode result: %v", tool.Name(), err)
	}
	return string(encoded)
}

// validateArgs checks required parameters. Absent, null and empty-string
// values all count as missing.
func validateArgs(tool Tool, args map[string]any) string {
	for name, info := range tool.Params() {
		if !info.Required {
			continue
		}
		v, ok := args[name]
		if !ok || v == nil {
			return fmt.Sprintf("[invalid arguments] missing required parameter: %s", name)
		}
		if s, isStr := v.(string); isStr && s == "" {
			return fmt.Sprintf("[invalid arguments] missing required parameter: %s", name)
		}
	}
	return ""
}

func safeExecute(ctx context.Context, tool Tool, args map[string]any) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panicked: %v", r)
		}
	}()
	return tool.Execute(ctx, args)
}
