package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Agent   AgentConfig   `yaml:"agent"`
	LLM     LLMConfig     `yaml:"llm"`
	Store   StoreConfig   `yaml:"store"`
	Tools   ToolsConfig   `yaml:"tools"`
	Gateway GatewayConfig `yaml:"gateway"`
	Logger  LoggerConfig  `yaml:"logger"`
	Tracer  TracerConfig  `yaml:"tracer"`
}

// AgentConfig holds conversation engine settings.
type AgentConfig struct {
	SystemPrompt   string             `yaml:"system_prompt"`
	HistoryWindow  int                `yaml:"history_window"` // N recent messages kept per turn
	TurnTimeout    time.Duration      `yaml:"turn_timeout"`
	ToolTimeout    time.Duration      `yaml:"tool_timeout"` // per tool call
	ContextGuard   ContextGuardConfig `yaml:"context_guard"`
}

// ContextGuardConfig holds token budget enforcement settings.
type ContextGuardConfig struct {
	Enabled   bool   `yaml:"enabled"`
	MaxTokens int    `yaml:"max_tokens"`
	Encoding  string `yaml:"encoding"` // tiktoken encoding name
}

// LLMConfig holds reasoning provider settings.
type LLMConfig struct {
	Provider       ProviderConfig       `yaml:"provider"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// ProviderConfig defines an OpenAI-compatible chat completion endpoint.
type ProviderConfig struct {
	Name         string        `yaml:"name"`
	BaseURL      string        `yaml:"base_url"`
	APIKey       string        `yaml:"api_key"`
	Model        string        `yaml:"model"`
	SummaryModel string        `yaml:"summary_model"` // empty = same as Model
	Temperature  float64       `yaml:"temperature"`
	MaxTokens    int           `yaml:"max_tokens"`
	Timeout      time.Duration `yaml:"timeout"`
}

// CircuitBreakerConfig holds gobreaker settings for the provider client.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Interval    time.Duration `yaml:"interval"`
	Timeout     time.Duration `yaml:"timeout"`
}

// StoreConfig holds transcript persistence settings.
type StoreConfig struct {
	Path         string        `yaml:"path"` // SQLite database file
	ReapEnabled  bool          `yaml:"reap_enabled"`
	ReapMaxAge   time.Duration `yaml:"reap_max_age"`
	ReapSchedule string        `yaml:"reap_schedule"` // cron expression
}

// ToolsConfig holds built-in tool and MCP server settings.
type ToolsConfig struct {
	WeatherBaseURL   string            `yaml:"weather_base_url"`
	SearchBaseURL    string            `yaml:"search_base_url"`
	SearchMaxResults int               `yaml:"search_max_results"`
	HTTPTimeout      time.Duration     `yaml:"http_timeout"`
	MCPServers       []MCPServerConfig `yaml:"mcp_servers"`
}

// MCPServerConfig defines an MCP server to bridge tools from.
type MCPServerConfig struct {
	Name      string   `yaml:"name"`
	Transport string   `yaml:"transport"` // "stdio" or "http"
	Command   string   `yaml:"command"`
	Args      []string `yaml:"args"`
	URL       string   `yaml:"url"`
}

// GatewayConfig holds HTTP gateway settings.
type GatewayConfig struct {
	Addr           string        `yaml:"addr"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	RequestsPerMin int           `yaml:"requests_per_min"`
	BurstSize      int           `yaml:"burst_size"`
	TrustedProxies []string      `yaml:"trusted_proxies"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// defaultDataDir returns the persistent data directory under $HOME/.genesis.
// Falls back to "./data" if $HOME cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".genesis", "data")
}

// Defaults returns a Config with sane defaults.
func Defaults() *Config {
	dataDir := defaultDataDir()
	return &Config{
		Agent: AgentConfig{
			SystemPrompt:  "You are Genesis, a helpful AI assistant.",
			HistoryWindow: 20,
			TurnTimeout:   120 * time.Second,
			ToolTimeout:   30 * time.Second,
			ContextGuard: ContextGuardConfig{
				Enabled:   false,
				MaxTokens: 128000,
				Encoding:  "cl100k_base",
			},
		},
		LLM: LLMConfig{
			Provider: ProviderConfig{
				Name:        "openai",
				BaseURL:     "https://api.openai.com/v1",
				Model:       "gpt-4o",
				Temperature: 0.7,
				Timeout:     60 * time.Second,
			},
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Interval:    60 * time.Second,
				Timeout:     30 * time.Second,
			},
		},
		Store: StoreConfig{
			Path:         filepath.Join(dataDir, "genesis.db"),
			ReapEnabled:  false,
			ReapMaxAge:   720 * time.Hour,
			ReapSchedule: "0 3 * * *",
		},
		Tools: ToolsConfig{
			WeatherBaseURL:   "https://api.open-meteo.com/v1",
			SearchBaseURL:    "http://localhost:8888",
			SearchMaxResults: 5,
			HTTPTimeout:      15 * time.Second,
		},
		Gateway: GatewayConfig{
			Addr:           ":8080",
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   180 * time.Second,
			RequestsPerMin: 120,
			BurstSize:      20,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Load reads and validates configuration from a YAML file. A missing file is
// not an error: defaults plus environment overrides are used.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	passphrase := os.Getenv("GENESIS_CONFIG_KEY")
	if passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnvOverrides maps GENESIS_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GENESIS_LLM_BASE_URL"); v != "" {
		cfg.LLM.Provider.BaseURL = v
	}
	if v := os.Getenv("GENESIS_LLM_API_KEY"); v != "" {
		cfg.LLM.Provider.APIKey = v
	}
	if v := os.Getenv("GENESIS_LLM_MODEL"); v != "" {
		cfg.LLM.Provider.Model = v
	}
	if v := os.Getenv("GENESIS_AGENT_SYSTEM_PROMPT"); v != "" {
		cfg.Agent.SystemPrompt = v
	}
	if v := os.Getenv("GENESIS_AGENT_HISTORY_WINDOW"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Agent.HistoryWindow = n
		}
	}
	if v := os.Getenv("GENESIS_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("GENESIS_GATEWAY_ADDR"); v != "" {
		cfg.Gateway.Addr = v
	}
	if v := os.Getenv("GENESIS_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("GENESIS_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("GENESIS_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("GENESIS_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
}

// Validate checks configuration consistency.
func Validate(cfg *Config) error {
	if cfg.Agent.HistoryWindow <= 0 {
		return fmt.Errorf("agent.history_window must be positive, got %d", cfg.Agent.HistoryWindow)
	}
	if cfg.Agent.ToolTimeout <= 0 {
		return fmt.Errorf("agent.tool_timeout must be positive")
	}
	if cfg.LLM.Provider.BaseURL == "" {
		return fmt.Errorf("llm.provider.base_url is required")
	}
	if cfg.LLM.Provider.Model == "" {
		return fmt.Errorf("llm.provider.model is required")
	}
	if cfg.Agent.ContextGuard.Enabled && cfg.Agent.ContextGuard.MaxTokens <= 0 {
		return fmt.Errorf("agent.context_guard.max_tokens must be positive when enabled")
	}
	if cfg.Store.ReapEnabled {
		if cfg.Store.ReapMaxAge <= 0 {
			return fmt.Errorf("store.reap_max_age must be positive when reaping is enabled")
		}
		if cfg.Store.ReapSchedule == "" {
			return fmt.Errorf("store.reap_schedule is required when reaping is enabled")
		}
	}
	for _, srv := range cfg.Tools.MCPServers {
		switch srv.Transport {
		case "stdio":
			if srv.Command == "" {
				return fmt.Errorf("mcp server %s: command is required for stdio transport", srv.Name)
			}
		case "http":
			if srv.URL == "" {
				return fmt.Errorf("mcp server %s: url is required for http transport", srv.Name)
			}
		default:
			return fmt.Errorf("mcp server %s: unsupported transport %q", srv.Name, srv.Transport)
		}
	}
	return nil
}

// decryptSecrets finds "enc:..." values in secret fields and decrypts them.
func decryptSecrets(cfg *Config, passphrase string) error {
	if strings.HasPrefix(cfg.LLM.Provider.APIKey, "enc:") {
		decrypted, err := DecryptValue(strings.TrimPrefix(cfg.LLM.Provider.APIKey, "enc:"), passphrase)
		if err != nil {
			return fmt.Errorf("provider %s api_key: %w", cfg.LLM.Provider.Name, err)
		}
		cfg.LLM.Provider.APIKey = decrypted
	}
	return nil
}

// EncryptValue encrypts a plaintext value with AES-256-GCM using a passphrase.
func EncryptValue(plaintext, passphrase string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	key := deriveKey(passphrase, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create gcm: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	// Format: hex(salt) + ":" + hex(nonce+ciphertext)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(ciphertext), nil
}

// DecryptValue decrypts an AES-256-GCM encrypted value.
func DecryptValue(encrypted, passphrase string) (string, error) {
	parts := strings.SplitN(encrypted, ":", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid encrypted format")
	}

	salt, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}

	data, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	key := deriveKey(passphrase, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create gcm: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}

	return string(plaintext), nil
}

// deriveKey uses Argon2id to derive a 32-byte key from passphrase + salt.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Allow 0600 and 0644 (readable by others but not writable)
	if mode&0o077 > 0o044 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
