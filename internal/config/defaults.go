package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultStreamURL            = "wss://stream.binance.com:9443/ws/!ticker@arr"
	DefaultQuoteSuffix          = "USDT"
	DefaultMaxReconnectAttempts = 5
	DefaultReconnectBaseDelay   = 3 * time.Second
	DefaultHandshakeTimeout     = 10 * time.Second
	DefaultPingInterval         = 25 * time.Second
	DefaultReadTimeout          = 60 * time.Second
	DefaultFXURL                = "https://api.exchangerate-api.com/v4/latest/USD"
	DefaultBaseCurrency         = "USD"
	DefaultFXTTL                = 5 * time.Minute
	DefaultFXTimeout            = 10 * time.Second
	DefaultPollInterval         = 30 * time.Second
	DefaultFetchTimeout         = 10 * time.Second
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultMaxConns             = 4
	DefaultMinConns             = 1
	DefaultHealthPort           = 8080
)

func (c *FeedConfig) applyDefaults() {
	if c.Stream.URL == "" {
		c.Stream.URL = DefaultStreamURL
	}
	if c.Stream.QuoteSuffix == "" {
		c.Stream.QuoteSuffix = DefaultQuoteSuffix
	}
	if c.Stream.MaxReconnectAttempts == 0 {
		c.Stream.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.Stream.ReconnectBaseDelay == 0 {
		c.Stream.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Stream.HandshakeTimeout == 0 {
		c.Stream.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Stream.PingInterval == 0 {
		c.Stream.PingInterval = DefaultPingInterval
	}
	if c.Stream.ReadTimeout == 0 {
		c.Stream.ReadTimeout = DefaultReadTimeout
	}

	if c.FX.URL == "" {
		c.FX.URL = DefaultFXURL
	}
	if c.FX.BaseCurrency == "" {
		c.FX.BaseCurrency = DefaultBaseCurrency
	}
	if c.FX.TTL == 0 {
		c.FX.TTL = DefaultFXTTL
	}
	if c.FX.Timeout == 0 {
		c.FX.Timeout = DefaultFXTimeout
	}

	if c.Subscriptions.PollInterval == 0 {
		c.Subscriptions.PollInterval = DefaultPollInterval
	}
	if c.Subscriptions.FetchTimeout == 0 {
		c.Subscriptions.FetchTimeout = DefaultFetchTimeout
	}

	if c.Snapshot.Enabled() {
		applyDBDefaults(&c.Snapshot.DB)
	}

	if c.Health.Port == 0 {
		c.Health.Port = DefaultHealthPort
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
