package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryInfosSorted(t *testing.T) {
	reg := DefaultToolRegistry()
	infos := reg.Infos()
	require.Len(t, infos, 2)
	assert.Equal(t, "get_time", infos[0].Name)
	assert.Equal(t, "get_weather", infos[1].Name)
}

func TestRegistryGet(t *testing.T) {
	reg := DefaultToolRegistry()
	_, ok := reg.Get("get_time")
	assert.True(t, ok)
	_, ok = reg.Get("missing")
	assert.False(t, ok)
}

func TestTimeTool(t *testing.T) {
	out, err := (&TimeTool{}).Execute(context.Background(), nil)
	require.NoError(t, err)
	m, ok := out.(map[string]string)
	require.True(t, ok)
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}$`, m["time"])
	assert.NotEmpty(t, m["weekday"])
}

func TestWeatherTool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Beijing", r.URL.Path)
		assert.Equal(t, "j1", r.URL.Query().Get("format"))
		w.Write([]byte(`{"current_condition":[{"temp_C":"21","humidity":"40","weatherDesc":[{"value":"Sunny"}]}]}`))
	}))
	defer srv.Close()

	tool := &WeatherTool{BaseURL: srv.URL, Client: srv.Client()}
	out, err := tool.Execute(context.Background(), map[string]any{"city": "Beijing"})
	require.NoError(t, err)

	m := out.(map[string]string)
	assert.Equal(t, "21°C", m["temperature"])
	assert.Equal(t, "40%", m["humidity"])
	assert.Equal(t, "Sunny", m["condition"])
}

func TestWeatherToolServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	tool := &WeatherTool{BaseURL: srv.URL, Client: srv.Client()}
	_, err := tool.Execute(context.Background(), map[string]any{"city": "Beijing"})
	assert.Error(t, err)
}

func TestWeatherToolEmptyPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"current_condition":[]}`))
	}))
	defer srv.Close()

	tool := &WeatherTool{BaseURL: srv.URL, Client: srv.Client()}
	_, err := tool.Execute(context.Background(), map[string]any{"city": "Nowhere"})
	assert.Error(t, err)
}
