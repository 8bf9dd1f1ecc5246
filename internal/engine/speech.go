package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/telnet2/go-practice/go-chat/pkg/types"
)

const (
	speechFormat = "mp3-16k"
	speechLang   = "zh"
	speechSpeed  = 5
	speechPitch  = 5
	speechVolume = 5

	// The long-form TTS API is asynchronous: create a task, then poll
	// until it reports a speech URL.
	speechMaxPolls = 60
)

// SpeechService synthesizes text to speech through the Baidu long-form
// TTS API and returns a URL to the generated audio.
type SpeechService struct {
	cfg    types.SpeechConfig
	client *http.Client
	poll   time.Duration

	mu    sync.Mutex
	token string
}

// NewSpeechService creates a service from the provider configuration.
// The OAuth token is fetched lazily on first use.
func NewSpeechService(cfg types.SpeechConfig) *SpeechService {
	return &SpeechService{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
		poll:   time.Second,
	}
}

// Synthesize converts text into speech and returns the audio URL.
func (s *SpeechService) Synthesize(ctx context.Context, text string) (string, error) {
	if s.cfg.ClientID == "" || s.cfg.ClientSecret == "" {
		return "", fmt.Errorf("speech: credentials not configured")
	}

	token, err := s.accessToken(ctx)
	if err != nil {
		return "", fmt.Errorf("speech: %w", err)
	}

	taskID, err := s.createTask(ctx, token, text)
	if err != nil {
		return "", fmt.Errorf("speech: %w", err)
	}

	for i := 0; i < speechMaxPolls; i++ {
		speechURL, done, err := s.queryTask(ctx, token, taskID)
		if err != nil {
			return "", fmt.Errorf("speech: %w", err)
		}
		if done {
			return speechURL, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(s.poll):
		}
	}
	return "", fmt.Errorf("speech: synthesis timed out")
}

func (s *SpeechService) accessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != "" {
		return s.token, nil
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {s.cfg.ClientID},
		"client_secret": {s.cfg.ClientSecret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.TokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := s.doJSON(req, &out); err != nil {
		return "", fmt.Errorf("fetch token: %w", err)
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("fetch token: empty access_token")
	}
	s.token = out.AccessToken
	return s.token, nil
}

func (s *SpeechService) createTask(ctx context.Context, token, text string) (string, error) {
	body := map[string]any{
		"text":            text,
		"format":          speechFormat,
		"lang":            speechLang,
		"speed":           speechSpeed,
		"pitch":           speechPitch,
		"volume":          speechVolume,
		"enable_subtitle": 0,
	}
	var out struct {
		TaskID    string `json:"task_id"`
		TasksInfo []struct {
			TaskID string `json:"task_id"`
		} `json:"tasks_info"`
	}
	if err := s.postJSON(ctx, s.cfg.TTSURL+"/create?access_token="+token, body, &out); err != nil {
		return "", fmt.Errorf("create task: %w", err)
	}
	if out.TaskID != "" {
		return out.TaskID, nil
	}
	if len(out.TasksInfo) > 0 && out.TasksInfo[0].TaskID != "" {
		return out.TasksInfo[0].TaskID, nil
	}
	return "", fmt.Errorf("create task: no task_id in response")
}

// queryTask polls one task. done is true once the task finished and the
// speech URL is available.
func (s *SpeechService) queryTask(ctx context.Context, token, taskID string) (string, bool, error) {
	body := map[string]any{"task_ids": []string{taskID}}
	var out struct {
		TasksInfo []struct {
			TaskStatus string `json:"task_status"`
			TaskResult struct {
				SpeechURL string `json:"speech_url"`
			} `json:"task_result"`
		} `json:"tasks_info"`
	}
	if err := s.postJSON(ctx, s.cfg.TTSURL+"/query?access_token="+token, body, &out); err != nil {
		return "", false, fmt.Errorf("query task: %w", err)
	}
	if len(out.TasksInfo) == 0 {
		return "", false, nil
	}
	switch out.TasksInfo[0].TaskStatus {
	case "Success":
		if out.TasksInfo[0].TaskResult.SpeechURL == "" {
			return "", false, fmt.Errorf("query task: success without speech_url")
		}
		return out.TasksInfo[0].TaskResult.SpeechURL, true, nil
	case "Failure":
		return "", false, fmt.Errorf("query task: synthesis failed")
	default:
		return "", false, nil
	}
}

func (s *SpeechService) postJSON(ctx context.Context, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return s.doJSON(req, out)
}

func (s *SpeechService) doJSON(req *http.Request, out any) error {
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d: %s", resp.StatusCode, truncateForError(body))
	}
	return json.Unmarshal(body, out)
}
