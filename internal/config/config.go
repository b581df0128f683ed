package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the agentcore configuration file.
type Config struct {
	Version    int              `yaml:"version"`
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Queue      QueueConfig      `yaml:"queue"`
	Agent      AgentConfig      `yaml:"agent"`
	Automation AutomationConfig `yaml:"automation"`
	Auth       AuthConfig       `yaml:"auth"`
	Logging    LoggingConfig    `yaml:"logging"`
	Tracing    TracingConfig    `yaml:"tracing"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

type ServerConfig struct {
	Host     string `yaml:"host"`
	HTTPPort int    `yaml:"http_port"`

	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`

	// Debug emits debug_error events on the chat stream.
	Debug bool `yaml:"debug"`

	// DevWorkspace registers the in-memory note and folder tools.
	DevWorkspace *bool `yaml:"dev_workspace"`
}

// Database drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

type DatabaseConfig struct {
	// Driver selects the store backend: memory, postgres, mysql or sqlite.
	// Automations are kept in memory unless the driver is postgres.
	Driver string `yaml:"driver"`
	URL    string `yaml:"url"`

	// Path is the SQLite database file.
	Path string `yaml:"path"`

	MaxConnections  int           `yaml:"max_connections"`
	MinConnections  int           `yaml:"min_connections"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`

	// AutoMigrate applies the schema on startup.
	AutoMigrate bool `yaml:"auto_migrate"`
}

type QueueConfig struct {
	WorkerID     string        `yaml:"worker_id"`
	Concurrency  int           `yaml:"concurrency"`
	BatchSize    int           `yaml:"batch_size"`
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxAttempts  int           `yaml:"max_attempts"`
	Backoff      BackoffConfig `yaml:"backoff"`

	// LeaseTimeout is how long a claimed job may go without a heartbeat
	// before other workers requeue it.
	LeaseTimeout time.Duration `yaml:"lease_timeout"`

	// Retention prunes finished jobs older than this. Zero keeps them.
	Retention time.Duration `yaml:"retention"`

	Waker WakerConfig `yaml:"waker"`
}

type BackoffConfig struct {
	Initial time.Duration `yaml:"initial"`
	Max     time.Duration `yaml:"max"`
	Factor  float64       `yaml:"factor"`
	Jitter  float64       `yaml:"jitter"`
}

// Waker kinds.
const (
	WakerNone    = "none"
	WakerChannel = "channel"
	WakerRedis   = "redis"
	WakerAMQP    = "amqp"
)

type WakerConfig struct {
	// Kind is none, channel, redis or amqp.
	Kind  string           `yaml:"kind"`
	Redis RedisWakerConfig `yaml:"redis"`
	AMQP  AMQPWakerConfig  `yaml:"amqp"`
}

type RedisWakerConfig struct {
	Address   string        `yaml:"address"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	Key       string        `yaml:"key"`
	BlockWait time.Duration `yaml:"block_wait"`
}

type AMQPWakerConfig struct {
	URL      string `yaml:"url"`
	Queue    string `yaml:"queue"`
	Prefetch int    `yaml:"prefetch"`
}

type AgentConfig struct {
	// Provider is openai or anthropic.
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`

	MaxRounds   int      `yaml:"max_rounds"`
	MaxTokens   int      `yaml:"max_tokens"`
	Temperature *float64 `yaml:"temperature"`

	// CacheSize bounds the per-turn idempotency cache.
	CacheSize int `yaml:"cache_size"`

	Instructions string `yaml:"instructions"`
}

type AutomationConfig struct {
	Enabled       *bool  `yaml:"enabled"`
	SweepSchedule string `yaml:"sweep_schedule"`
	SweepBatch    int    `yaml:"sweep_batch"`
	Instructions  string `yaml:"instructions"`
}

type AuthConfig struct {
	// JWTSecret verifies HS256 bearer tokens. When empty the server trusts
	// X-Workspace-ID and X-User-ID headers.
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

type TracingConfig struct {
	Endpoint     string  `yaml:"endpoint"`
	ServiceName  string  `yaml:"service_name"`
	Environment  string  `yaml:"environment"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Insecure     bool    `yaml:"insecure"`
}

type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads, merges, decodes and validates the configuration at path.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}
	return finish(raw)
}

func boolPtr(v bool) *bool { return &v }

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = CurrentVersion
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Server.ReadHeaderTimeout == 0 {
		cfg.Server.ReadHeaderTimeout = 10 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Server.DevWorkspace == nil {
		cfg.Server.DevWorkspace = boolPtr(true)
	}

	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverMemory
	}
	if cfg.Database.Driver == DriverSQLite && cfg.Database.Path == "" {
		cfg.Database.Path = "agentcore.db"
	}
	if cfg.Database.MaxConnections == 0 {
		cfg.Database.MaxConnections = 10
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 5 * time.Minute
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 2 * time.Minute
	}
	if cfg.Database.ConnectTimeout == 0 {
		cfg.Database.ConnectTimeout = 10 * time.Second
	}

	if cfg.Queue.Concurrency == 0 {
		cfg.Queue.Concurrency = 4
	}
	if cfg.Queue.BatchSize == 0 {
		cfg.Queue.BatchSize = 10
	}
	if cfg.Queue.PollInterval == 0 {
		cfg.Queue.PollInterval = 2 * time.Second
	}
	if cfg.Queue.MaxAttempts == 0 {
		cfg.Queue.MaxAttempts = 3
	}
	if cfg.Queue.LeaseTimeout == 0 {
		cfg.Queue.LeaseTimeout = 5 * time.Minute
	}
	if cfg.Queue.Backoff.Initial == 0 {
		cfg.Queue.Backoff.Initial = 5 * time.Second
	}
	if cfg.Queue.Backoff.Max == 0 {
		cfg.Queue.Backoff.Max = 10 * time.Minute
	}
	if cfg.Queue.Backoff.Factor == 0 {
		cfg.Queue.Backoff.Factor = 2
	}
	cfg.Queue.Waker.Kind = strings.ToLower(strings.TrimSpace(cfg.Queue.Waker.Kind))
	if cfg.Queue.Waker.Kind == "" {
		cfg.Queue.Waker.Kind = WakerChannel
	}

	cfg.Agent.Provider = strings.ToLower(strings.TrimSpace(cfg.Agent.Provider))
	if cfg.Agent.Provider == "" {
		cfg.Agent.Provider = "openai"
	}
	if cfg.Agent.MaxRounds == 0 {
		cfg.Agent.MaxRounds = 6
	}
	if cfg.Agent.CacheSize == 0 {
		cfg.Agent.CacheSize = 256
	}

	if cfg.Automation.Enabled == nil {
		cfg.Automation.Enabled = boolPtr(true)
	}
	if cfg.Automation.SweepSchedule == "" {
		cfg.Automation.SweepSchedule = "@every 30s"
	}
	if cfg.Automation.SweepBatch == 0 {
		cfg.Automation.SweepBatch = 50
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "agentcore"
	}
	if cfg.Tracing.SamplingRate == 0 {
		cfg.Tracing.SamplingRate = 1
	}

	if cfg.Metrics.Enabled == nil {
		cfg.Metrics.Enabled = boolPtr(true)
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

// ValidationError lists every problem found in a configuration.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

// Validate checks a defaulted configuration.
func (c *Config) Validate() error {
	var issues []string
	if err := ValidateVersion(c.Version); err != nil {
		issues = append(issues, err.Error())
	}
	if c.Server.HTTPPort < 0 || c.Server.HTTPPort > 65535 {
		issues = append(issues, fmt.Sprintf("server.http_port %d is out of range", c.Server.HTTPPort))
	}

	switch c.Database.Driver {
	case DriverMemory:
	case DriverPostgres, DriverMySQL:
		if strings.TrimSpace(c.Database.URL) == "" {
			issues = append(issues, fmt.Sprintf("database.url is required for driver %q", c.Database.Driver))
		}
	case DriverSQLite:
	default:
		issues = append(issues, fmt.Sprintf("database.driver %q must be memory, postgres, mysql or sqlite", c.Database.Driver))
	}

	if c.Queue.Concurrency < 0 || c.Queue.BatchSize < 0 || c.Queue.MaxAttempts < 0 {
		issues = append(issues, "queue.concurrency, queue.batch_size and queue.max_attempts must not be negative")
	}
	if c.Queue.LeaseTimeout < 3*c.Queue.PollInterval {
		issues = append(issues, "queue.lease_timeout must be at least three poll intervals")
	}
	if c.Queue.Backoff.Factor <= 1 {
		issues = append(issues, "queue.backoff.factor must be greater than 1")
	}
	if c.Queue.Backoff.Max < c.Queue.Backoff.Initial {
		issues = append(issues, "queue.backoff.max must not be below queue.backoff.initial")
	}
	if c.Queue.Backoff.Jitter < 0 || c.Queue.Backoff.Jitter > 1 {
		issues = append(issues, "queue.backoff.jitter must be between 0 and 1")
	}
	switch c.Queue.Waker.Kind {
	case WakerNone, WakerChannel:
	case WakerRedis:
		if c.Queue.Waker.Redis.Address == "" {
			issues = append(issues, "queue.waker.redis.address is required for the redis waker")
		}
	case WakerAMQP:
		if c.Queue.Waker.AMQP.URL == "" {
			issues = append(issues, "queue.waker.amqp.url is required for the amqp waker")
		}
	default:
		issues = append(issues, fmt.Sprintf("queue.waker.kind %q must be none, channel, redis or amqp", c.Queue.Waker.Kind))
	}

	switch c.Agent.Provider {
	case "openai", "anthropic":
	default:
		issues = append(issues, fmt.Sprintf("agent.provider %q must be openai or anthropic", c.Agent.Provider))
	}
	if c.Agent.MaxRounds < 1 {
		issues = append(issues, "agent.max_rounds must be at least 1")
	}
	if t := c.Agent.Temperature; t != nil && (*t < 0 || *t > 2) {
		issues = append(issues, "agent.temperature must be between 0 and 2")
	}

	if c.Automation.SweepBatch < 1 {
		issues = append(issues, "automation.sweep_batch must be at least 1")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		issues = append(issues, fmt.Sprintf("logging.level %q is not a level", c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "json", "text":
	default:
		issues = append(issues, fmt.Sprintf("logging.format %q must be json or text", c.Logging.Format))
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		issues = append(issues, "tracing.sampling_rate must be between 0 and 1")
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		issues = append(issues, "metrics.path must start with /")
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

// Address returns the HTTP listen address.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.HTTPPort)
}
