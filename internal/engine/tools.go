package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"
)

// Tool is a local function the tool-calling model may invoke.
type Tool interface {
	Name() string
	Description() string
	// Params describes the accepted arguments. Entries with Required set
	// are validated before Execute runs.
	Params() map[string]*schema.ParameterInfo
	Execute(ctx context.Context, args map[string]any) (any, error)
}

// ToolRegistry holds the tools offered to the model.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]Tool)}
}

// DefaultToolRegistry returns a registry with the built-in tools.
func DefaultToolRegistry() *ToolRegistry {
	r := NewToolRegistry()
	r.Register(&TimeTool{})
	r.Register(&WeatherTool{})
	return r
}

func (r *ToolRegistry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Infos renders the registry in the shape the model binding expects,
// sorted by name for a stable request payload.
func (r *ToolRegistry) Infos() []*schema.ToolInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	infos := make([]*schema.ToolInfo, 0, len(names))
	for _, name := range names {
		t := r.tools[name]
		infos = append(infos, &schema.ToolInfo{
			Name:        t.Name(),
			Desc:        t.Description(),
			ParamsOneOf: schema.NewParamsOneOfByParams(t.Params()),
		})
	}
	return infos
}

// TimeTool reports the server's current local time.
type TimeTool struct{}

func (t *TimeTool) Name() string        { return "get_time" }
func (t *TimeTool) Description() string { return "Get the current date and time" }

func (t *TimeTool) Params() map[string]*schema.ParameterInfo {
	return map[string]*schema.ParameterInfo{}
}

func (t *TimeTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	now := time.Now()
	return map[string]string{
		"time":    now.Format("2006-01-02 15:04:05"),
		"weekday": now.Weekday().String(),
	}, nil
}

// WeatherTool fetches current conditions for a city from wttr.in.
type WeatherTool struct {
	// BaseURL overrides the wttr.in endpoint, for tests.
	BaseURL string
	// Client overrides the HTTP client, for tests.
	Client *http.Client
}

func (t *WeatherTool) Name() string { return "get_weather" }

func (t *WeatherTool) Description() string {
	return "Get the current weather for a city"
}

func (t *WeatherTool) Params() map[string]*schema.ParameterInfo {
	return map[string]*schema.ParameterInfo{
		"city": {
			Type:     schema.String,
			Desc:     "City name, e.g. Beijing or London",
			Required: true,
		},
	}
}

func (t *WeatherTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	city, _ := args["city"].(string)
	base := t.BaseURL
	if base == "" {
		base = "https://wttr.in"
	}
	client := t.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/"+city+"?format=j1", nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather lookup failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("weather lookup failed: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	var payload struct {
		CurrentCondition []struct {
			TempC       string `json:"temp_C"`
			Humidity    string `json:"humidity"`
			WeatherDesc []struct {
				Value string `json:"value"`
			} `json:"weatherDesc"`
		} `json:"current_condition"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("weather lookup failed: %w", err)
	}
	if len(payload.CurrentCondition) == 0 {
		return nil, fmt.Errorf("weather lookup failed: no data for %q", city)
	}
	cur := payload.CurrentCondition[0]
	desc := ""
	if len(cur.WeatherDesc) > 0 {
		desc = cur.WeatherDesc[0].Value
	}
	return map[string]string{
		"city":        city,
		"temperature": cur.TempC + "°C",
		"humidity":    cur.Humidity + "%",
		"condition":   desc,
	}, nil
}
