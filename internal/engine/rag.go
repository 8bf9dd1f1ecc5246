package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudwego/eino/schema"
)

const (
	ragRetryInitialInterval = 500 * time.Millisecond
	ragRetryMaxInterval     = 5 * time.Second
	ragRetryMaxElapsedTime  = 30 * time.Second
	ragMaxRetries           = 3
)

// ragBackend answers via a DashScope RAG application. The HTTP API takes
// a single prompt, so the history is flattened into one request and the
// answer arrives whole.
type ragBackend struct {
	url    string
	apiKey string
	client *http.Client
}

type ragRequest struct {
	Input struct {
		Prompt string `json:"prompt"`
	} `json:"input"`
	Parameters struct{} `json:"parameters"`
}

type ragResponse struct {
	Output struct {
		Text string `json:"text"`
	} `json:"output"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (b *ragBackend) generate(ctx context.Context, msgs []*schema.Message) (string, error) {
	if len(msgs) == 0 {
		return "", fmt.Errorf("rag: empty history")
	}
	prompt := msgs[len(msgs)-1].Content

	var answer string
	op := func() error {
		text, err := b.call(ctx, prompt)
		if err != nil {
			return err
		}
		answer = text
		return nil
	}
	if err := backoff.Retry(op, b.newRetryBackoff(ctx)); err != nil {
		return "", fmt.Errorf("rag: %w", err)
	}
	return answer, nil
}

func (b *ragBackend) call(ctx context.Context, prompt string) (string, error) {
	var reqBody ragRequest
	reqBody.Input.Prompt = prompt
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", backoff.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(payload))
	if err != nil {
		return "", backoff.Permanent(err)
	}
	req.Header.Set("Authorization", "Bearer "+b.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("status %d: %s", resp.StatusCode, truncateForError(body))
		// Client errors will not heal on retry.
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return "", backoff.Permanent(err)
		}
		return "", err
	}

	var out ragResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", backoff.Permanent(fmt.Errorf("decode response: %w", err))
	}
	if out.Output.Text == "" && out.Code != "" {
		return "", backoff.Permanent(fmt.Errorf("api error %s: %s", out.Code, out.Message))
	}
	return out.Output.Text, nil
}

func (b *ragBackend) newRetryBackoff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = ragRetryInitialInterval
	bo.MaxInterval = ragRetryMaxInterval
	bo.MaxElapsedTime = ragRetryMaxElapsedTime
	bo.RandomizationFactor = 0.5
	bo.Multiplier = 2.0
	bo.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(bo, ragMaxRetries), ctx)
}

func truncateForError(body []byte) string {
	const max = 200
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
