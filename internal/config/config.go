package config

import "time"

// FeedConfig is the root configuration for the feed service.
type FeedConfig struct {
	Stream        StreamConfig        `yaml:"stream"`
	FX            FXConfig            `yaml:"fx"`
	Subscriptions SubscriptionsConfig `yaml:"subscriptions"`
	Snapshot      SnapshotConfig      `yaml:"snapshot"`
	Health        HealthConfig        `yaml:"health"`
}

// StreamConfig holds streaming (WebSocket) feed settings.
type StreamConfig struct {
	URL                  string        `yaml:"url"`
	WatchList            []string      `yaml:"watch_list"`   // Canonical symbols to keep (e.g. BTC, ETH)
	QuoteSuffix          string        `yaml:"quote_suffix"` // Stripped from upstream symbols (e.g. USDT)
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay"`
	HandshakeTimeout     time.Duration `yaml:"handshake_timeout"`
	PingInterval         time.Duration `yaml:"ping_interval"`
	ReadTimeout          time.Duration `yaml:"read_timeout"`
}

// FXConfig holds polled FX rates feed settings.
type FXConfig struct {
	URL          string        `yaml:"url"`
	BaseCurrency string        `yaml:"base_currency"`
	TTL          time.Duration `yaml:"ttl"`
	Timeout      time.Duration `yaml:"timeout"`
}

// SubscriptionsConfig holds the shared consumer polling settings.
type SubscriptionsConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

// SnapshotConfig holds the durable snapshot database connection.
// Leaving host empty disables persistence; the store then runs
// in-memory only.
type SnapshotConfig struct {
	DB DBConfig `yaml:"db"`
}

// DBConfig holds a single PostgreSQL connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// Enabled reports whether snapshot persistence is configured.
func (s SnapshotConfig) Enabled() bool {
	return s.DB.Host != ""
}

// HealthConfig holds the health/debug HTTP server settings.
type HealthConfig struct {
	Port int `yaml:"port"`
}
