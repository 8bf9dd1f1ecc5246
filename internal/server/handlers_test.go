package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telnet2/go-practice/go-chat/internal/bridge"
	"github.com/telnet2/go-practice/go-chat/internal/config"
	"github.com/telnet2/go-practice/go-chat/internal/engine"
	"github.com/telnet2/go-practice/go-chat/internal/registry"
	"github.com/telnet2/go-practice/go-chat/internal/store"
	"github.com/telnet2/go-practice/go-chat/pkg/types"
)

type testEnv struct {
	srv    *httptest.Server
	client *http.Client
	server *Server
	reg    *registry.Registry
	store  *store.Store
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvCfg(t, nil)
}

func newTestEnvCfg(t *testing.T, mutate func(*types.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.Server.DataDir = t.TempDir()
	if mutate != nil {
		mutate(cfg)
	}

	st := store.New(cfg.Server.DataDir)
	reg := registry.New(cfg.Cache.MaxActiveSessions)
	t.Cleanup(reg.Close)
	br := bridge.New(2, 16, reg)
	t.Cleanup(br.Close)
	factory := engine.NewFactory(cfg.Providers, engine.DefaultToolRegistry())

	s := New(cfg, reg, st, br, factory, nil)
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &testEnv{
		srv:    srv,
		client: &http.Client{Jar: jar},
		server: s,
		reg:    reg,
		store:  st,
	}
}

func (e *testEnv) post(t *testing.T, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := e.client.Post(e.srv.URL+path, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func (e *testEnv) get(t *testing.T, path string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := e.client.Get(e.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func (e *testEnv) registerAndLogin(t *testing.T, username string) {
	t.Helper()
	resp, _ := e.post(t, "/register", map[string]string{"username": username, "password": "secret"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = e.post(t, "/login", map[string]string{"username": username, "password": "secret"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRegister(t *testing.T) {
	e := newTestEnv(t)

	resp, body := e.post(t, "/register", map[string]string{"username": "alice", "password": "pw"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "alice", body["username"])
}

func TestRegisterDuplicate(t *testing.T) {
	e := newTestEnv(t)
	e.post(t, "/register", map[string]string{"username": "alice", "password": "pw"})

	resp, _ := e.post(t, "/register", map[string]string{"username": "alice", "password": "other"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestRegisterMissingFields(t *testing.T) {
	e := newTestEnv(t)
	resp, _ := e.post(t, "/register", map[string]string{"username": "alice"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLoginWrongPassword(t *testing.T) {
	e := newTestEnv(t)
	e.post(t, "/register", map[string]string{"username": "alice", "password": "pw"})

	resp, _ := e.post(t, "/login", map[string]string{"username": "alice", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLoginUnknownUser(t *testing.T) {
	e := newTestEnv(t)
	resp, _ := e.post(t, "/login", map[string]string{"username": "ghost", "password": "pw"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSingleLoginEnforced(t *testing.T) {
	e := newTestEnv(t)
	e.registerAndLogin(t, "alice")

	// A second login while online is refused, even with the right
	// password.
	other := &http.Client{}
	payload, _ := json.Marshal(map[string]string{"username": "alice", "password": "secret"})
	resp, err := other.Post(e.srv.URL+"/login", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestLogoutFreesTheLogin(t *testing.T) {
	e := newTestEnv(t)
	e.registerAndLogin(t, "alice")

	resp, _ := e.post(t, "/user/logout", map[string]string{})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = e.post(t, "/login", map[string]string{"username": "alice", "password": "secret"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestChatRequiresAuth(t *testing.T) {
	e := newTestEnv(t)
	resp, _ := e.post(t, "/chat/send", map[string]string{"sessionId": "s", "message": "hi"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestChatSendUnknownSession(t *testing.T) {
	e := newTestEnv(t)
	e.registerAndLogin(t, "alice")

	resp, _ := e.post(t, "/chat/send", map[string]string{"sessionId": "nope", "message": "hi"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestChatSendInvalidModelType(t *testing.T) {
	e := newTestEnv(t)
	e.registerAndLogin(t, "alice")

	resp, _ := e.post(t, "/chat/send", map[string]string{
		"sessionId": "s", "message": "hi", "modelType": "9",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChatSendNewSession(t *testing.T) {
	e := newTestEnv(t)
	e.registerAndLogin(t, "alice")

	resp, body := e.post(t, "/chat/send-new-session", map[string]string{"message": "hello"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "AI processing started", body["message"])

	sessionID, _ := body["sessionId"].(string)
	require.NotEmpty(t, sessionID)

	// The session is persisted with the default title.
	user, err := e.store.GetUser("alice")
	require.NoError(t, err)
	meta, err := e.store.GetSession(user.ID, sessionID)
	require.NoError(t, err)
	assert.Equal(t, defaultSessionTitle, meta.Title)
}

func TestChatSessionsListsInOrder(t *testing.T) {
	e := newTestEnv(t)
	e.registerAndLogin(t, "alice")

	_, first := e.post(t, "/chat/send-new-session", map[string]string{"message": "one"})
	_, second := e.post(t, "/chat/send-new-session", map[string]string{"message": "two"})

	resp, body := e.get(t, "/chat/sessions")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	sessions, _ := body["sessions"].([]any)
	require.Len(t, sessions, 2)
	assert.Equal(t, first["sessionId"], sessions[0].(map[string]any)["sessionId"])
	assert.Equal(t, second["sessionId"], sessions[1].(map[string]any)["sessionId"])
}

func TestChatHistoryEmpty(t *testing.T) {
	e := newTestEnv(t)
	e.registerAndLogin(t, "alice")
	_, created := e.post(t, "/chat/send-new-session", map[string]string{"message": "hi"})

	resp, body := e.post(t, "/chat/history", map[string]string{
		"sessionId": created["sessionId"].(string),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	msgs, ok := body["messages"].([]any)
	require.True(t, ok)
	assert.Empty(t, msgs)
}

func TestChatGetResultReady(t *testing.T) {
	e := newTestEnv(t)
	e.registerAndLogin(t, "alice")

	e.reg.SetResult("s1", "the stored answer")
	resp, body := e.post(t, "/chat/get-result", map[string]string{"sessionId": "s1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "the stored answer", body["result"])

	// Reading consumed it.
	_, ok := e.reg.GetResult("s1")
	assert.False(t, ok)
}

func TestChatSpeechRequiresAuth(t *testing.T) {
	e := newTestEnv(t)
	resp, _ := e.post(t, "/chat/speech", map[string]string{"text": "hi"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestChatSpeechEmptyText(t *testing.T) {
	e := newTestEnv(t)
	e.registerAndLogin(t, "alice")

	resp, _ := e.post(t, "/chat/speech", map[string]string{"text": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChatSpeech(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"tok"}`))
	})
	mux.HandleFunc("/tts/create", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"task_id":"t1"}`))
	})
	mux.HandleFunc("/tts/query", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"tasks_info":[{"task_status":"Success","task_result":{"speech_url":"https://audio/x.mp3"}}]}`))
	})
	stub := httptest.NewServer(mux)
	defer stub.Close()

	e := newTestEnvCfg(t, func(cfg *types.Config) {
		cfg.Providers.Speech = types.SpeechConfig{
			ClientID:     "id",
			ClientSecret: "secret",
			TokenURL:     stub.URL + "/token",
			TTSURL:       stub.URL + "/tts",
		}
	})
	e.registerAndLogin(t, "alice")

	resp, body := e.post(t, "/chat/speech", map[string]string{"text": "你好"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "https://audio/x.mp3", body["url"])
}

func TestChatStreamRequiresSessionID(t *testing.T) {
	e := newTestEnv(t)
	e.registerAndLogin(t, "alice")

	resp, _ := e.get(t, "/chat/stream")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
