package types

// Config is the full application configuration. It is constructed once at
// process start (see internal/config) and passed by reference to every
// component that needs it; there is no global configuration instance.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Cache     CacheConfig     `json:"cache"`
	Stream    StreamConfig    `json:"stream"`
	Bridge    BridgeConfig    `json:"bridge"`
	Limits    LimitsConfig    `json:"limits"`
	Providers ProvidersConfig `json:"providers"`
	Queue     QueueConfig     `json:"queue"`
	Log       LogConfig       `json:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port       int    `json:"port"`
	DataDir    string `json:"dataDir"`
	EnableCORS bool   `json:"enableCORS"`
}

// CacheConfig bounds the number of memory-resident chat sessions.
type CacheConfig struct {
	// MaxActiveSessions is the LRU capacity. Sessions beyond it are
	// evicted least-recently-used first.
	MaxActiveSessions int `json:"maxActiveSessions"`
}

// StreamConfig drives the SSE delivery state machine.
type StreamConfig struct {
	// TickMillis is the poll interval per open stream.
	TickMillis int `json:"tickMillis"`
	// TimeoutTicks is the countdown budget before a stream times out.
	TimeoutTicks int `json:"timeoutTicks"`
}

// BridgeConfig sizes the AI worker pool.
type BridgeConfig struct {
	// Workers is the pool size. Zero means NumCPU clamped to [4,16].
	Workers int `json:"workers"`
	// QueueSize bounds the pending task queue.
	QueueSize int `json:"queueSize"`
}

// LimitsConfig holds per-message limits.
type LimitsConfig struct {
	// MaxTokensPerMessage truncates oversized user input. Zero or
	// negative disables truncation.
	MaxTokensPerMessage int `json:"maxTokensPerMessage"`
}

// ProvidersConfig holds credentials and endpoints for the AI backends.
type ProvidersConfig struct {
	Qwen   QwenConfig   `json:"qwen"`
	Ark    ArkConfig    `json:"ark"`
	Claude ClaudeConfig `json:"claude"`
	RAG    RAGConfig    `json:"rag"`
	Speech SpeechConfig `json:"speech"`
}

// QwenConfig configures the DashScope OpenAI-compatible endpoint. It backs
// both the plain qwen kind and the tool-calling kind.
type QwenConfig struct {
	APIKey  string `json:"apiKey"`
	BaseURL string `json:"baseURL"`
	Model   string `json:"model"`
}

// ArkConfig configures the Volcengine ARK (doubao) endpoint.
type ArkConfig struct {
	APIKey  string `json:"apiKey"`
	BaseURL string `json:"baseURL"`
	Model   string `json:"model"`
}

// ClaudeConfig configures the Anthropic endpoint.
type ClaudeConfig struct {
	APIKey  string `json:"apiKey"`
	BaseURL string `json:"baseURL"`
	Model   string `json:"model"`
}

// RAGConfig configures the DashScope RAG application endpoint. The request
// URL is URLPrefix + KnowledgeBaseID + URLSuffix.
type RAGConfig struct {
	APIKey          string `json:"apiKey"`
	KnowledgeBaseID string `json:"knowledgeBaseID"`
	URLPrefix       string `json:"urlPrefix"`
	URLSuffix       string `json:"urlSuffix"`
}

// SpeechConfig configures the Baidu text-to-speech service.
type SpeechConfig struct {
	ClientID     string `json:"clientID"`
	ClientSecret string `json:"clientSecret"`
	// TokenURL is the OAuth token endpoint.
	TokenURL string `json:"tokenURL"`
	// TTSURL is the long-form synthesis API base; /create and /query are
	// appended to it.
	TTSURL string `json:"ttsURL"`
}

// QueueConfig configures the durable message queue.
type QueueConfig struct {
	// Topic messages are published to for persistence.
	Topic string `json:"topic"`
	// Consumers is the number of subscriber workers draining the topic.
	Consumers int `json:"consumers"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `json:"level"`
	Pretty bool   `json:"pretty"`
}
