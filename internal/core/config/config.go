package config

import (
	"time"
)

// AppConfig is the top-level configuration.
type AppConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Chains   []ChainConfig  `yaml:"chains"`
	Explorer ExplorerConfig `yaml:"explorer"`
	Notes    NotesConfig    `yaml:"notes"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// ChainConfig is one entry of the chain endpoint registry: slug, numeric id,
// namespace, ordered RPC/WS endpoint lists, and explorer endpoints.
type ChainConfig struct {
	Slug        string   `yaml:"slug"`
	ID          string   `yaml:"id"`
	Namespace   string   `yaml:"namespace"` // eip155, stacks, bip122
	RPC         []string `yaml:"rpc"`
	WS          []string `yaml:"ws"`
	ExplorerAPI string   `yaml:"explorer_api"`
	ExplorerURL string   `yaml:"explorer_url"`
}

// ExplorerConfig holds explorer REST API settings.
type ExplorerConfig struct {
	APIKey string `yaml:"api_key"`
	// PageSize is the per-request record count for paginated history fetch.
	PageSize int `yaml:"page_size"`
	// RequestsPerSecond paces outgoing explorer calls.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	// CacheTTL bounds the proxy-side response cache.
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// NotesConfig holds annotation network settings.
type NotesConfig struct {
	Relays []string `yaml:"relays"`
	// Kind is the event kind used for annotation notes.
	Kind int `yaml:"kind"`
	// KeyFile is where the signing key is persisted. Auto-generated on
	// first publish when absent.
	KeyFile string `yaml:"key_file"`
}

// IngestConfig tunes the live ingestion engine.
type IngestConfig struct {
	PollInterval       time.Duration `yaml:"poll_interval"`
	WindowSize         uint64        `yaml:"window_size"`
	MaxEventsPerMinute int           `yaml:"max_events_per_minute"`
	BufferSize         int           `yaml:"buffer_size"`
	// PreferStreaming selects the socket strategy when the chain has WS
	// endpoints; polling otherwise.
	PreferStreaming bool `yaml:"prefer_streaming"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}
