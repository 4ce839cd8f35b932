package ops

import (
	"os"
	"time"

	"github.com/yanun0323/errors"
	"gopkg.in/yaml.v3"
)

// Config is the feedd runtime configuration.
type Config struct {
	Feed     FeedConfig     `yaml:"feed"`
	Accounts []AccountEntry `yaml:"accounts"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Tokens   TokensConfig   `yaml:"tokens"`
	Postgres PostgresConfig `yaml:"postgres"`
	Profiler ProfilerConfig `yaml:"profiler"`
}

// FeedConfig describes the broker feed endpoint and transport bounds.
type FeedConfig struct {
	Endpoint       string        `yaml:"endpoint"`
	ReadTimeout    Duration      `yaml:"read_timeout"`
	WriteTimeout   Duration      `yaml:"write_timeout"`
	WriteQueueSize int           `yaml:"write_queue"`
	Backoff        BackoffConfig `yaml:"backoff"`
}

// BackoffConfig tunes reconnect delays.
type BackoffConfig struct {
	Min    Duration `yaml:"min"`
	Max    Duration `yaml:"max"`
	Factor float64  `yaml:"factor"`
	Jitter float64  `yaml:"jitter"`
}

// AccountEntry binds a broker account to the exchanges it serves.
type AccountEntry struct {
	ID        string   `yaml:"id"`
	AccountID string   `yaml:"account_id"`
	Exchanges []string `yaml:"exchanges"`
}

// DispatchConfig tunes fan-out queues and the price commit throttle.
type DispatchConfig struct {
	OutboxCapacity int            `yaml:"outbox_capacity"`
	Throttle       ThrottleConfig `yaml:"throttle"`
}

// ThrottleConfig gates price-cache commits. Zero values disable it.
type ThrottleConfig struct {
	MinInterval  Duration `yaml:"min_interval"`
	MinChangePct float64  `yaml:"min_change_pct"`
}

// TokensConfig controls the token reference cache.
type TokensConfig struct {
	RefreshInterval Duration     `yaml:"refresh_interval"`
	Static          []TokenEntry `yaml:"static"`
}

// TokenEntry is one inline reference token.
type TokenEntry struct {
	TokenID  int32  `yaml:"token_id"`
	Symbol   string `yaml:"symbol"`
	Exchange string `yaml:"exchange"`
}

// PostgresConfig enables the database-backed token source when Host is
// set; otherwise the static token list serves.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// ProfilerConfig enables the pyroscope profiler.
type ProfilerConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ServerAddress string `yaml:"server_address"`
}

// Duration parses YAML scalars via time.ParseDuration.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return errors.Wrapf(err, "parse duration %q", raw)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Load reads, defaults and validates a YAML config file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "read config file")
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "parse config")
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Feed.ReadTimeout <= 0 {
		c.Feed.ReadTimeout = Duration(30 * time.Second)
	}
	if c.Feed.WriteTimeout <= 0 {
		c.Feed.WriteTimeout = Duration(10 * time.Second)
	}
	if c.Feed.WriteQueueSize <= 0 {
		c.Feed.WriteQueueSize = 64
	}
	if c.Feed.Backoff.Min <= 0 {
		c.Feed.Backoff.Min = Duration(250 * time.Millisecond)
	}
	if c.Feed.Backoff.Max <= 0 {
		c.Feed.Backoff.Max = Duration(5 * time.Second)
	}
	if c.Feed.Backoff.Factor <= 1 {
		c.Feed.Backoff.Factor = 2.0
	}
	if c.Dispatch.OutboxCapacity <= 0 {
		c.Dispatch.OutboxCapacity = 256
	}
	if c.Tokens.RefreshInterval <= 0 {
		c.Tokens.RefreshInterval = Duration(5 * time.Minute)
	}
	if c.Postgres.Port == 0 {
		c.Postgres.Port = 5432
	}
	if c.Postgres.SSLMode == "" {
		c.Postgres.SSLMode = "disable"
	}
}

// Validate rejects configurations the process cannot run with.
func (c *Config) Validate() error {
	if c.Feed.Endpoint == "" {
		return errors.New("config: feed endpoint is empty")
	}
	if len(c.Accounts) == 0 {
		return errors.New("config: at least one account is required")
	}
	seen := make(map[string]struct{}, len(c.Accounts))
	for i, acct := range c.Accounts {
		if acct.AccountID == "" {
			return errors.Errorf("config: account %d: account_id is empty", i)
		}
		if len(acct.Exchanges) == 0 {
			return errors.Errorf("config: account %s: exchanges list is empty", acct.AccountID)
		}
		id := acct.ID
		if id == "" {
			id = acct.AccountID
		}
		if _, dup := seen[id]; dup {
			return errors.Errorf("config: duplicate account id %s", id)
		}
		seen[id] = struct{}{}
	}
	for i, token := range c.Tokens.Static {
		if token.Symbol == "" {
			return errors.Errorf("config: static token %d: symbol is empty", i)
		}
		if token.Exchange == "" {
			return errors.Errorf("config: static token %s: exchange is empty", token.Symbol)
		}
	}
	if c.Profiler.Enabled && c.Profiler.ServerAddress == "" {
		return errors.New("config: profiler enabled without server_address")
	}
	return nil
}
