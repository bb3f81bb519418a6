// Package config loads the engine configuration from file and environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cuervolu/cortex-engine/internal/catalog"
	"github.com/cuervolu/cortex-engine/internal/domain/execution"
)

// Roles a process can take.
const (
	RoleAPI    = "api"
	RoleWorker = "worker"
	RoleReaper = "reaper"
)

// Catalog sources.
const (
	CatalogMemory   = "memory"
	CatalogPostgres = "postgres"
)

const envPrefix = "CORTEX"

// Config represents the engine configuration.
type Config struct {
	Roles     []string         `mapstructure:"roles"`
	Logging   LoggingConfig    `mapstructure:"logging"`
	HTTP      HTTPConfig       `mapstructure:"http"`
	Kafka     KafkaConfig      `mapstructure:"kafka"`
	Redis     RedisConfig      `mapstructure:"redis"`
	Postgres  PostgresConfig   `mapstructure:"postgres"`
	Catalog   CatalogConfig    `mapstructure:"catalog"`
	Languages []LanguageConfig `mapstructure:"languages"`
	Workspace WorkspaceConfig  `mapstructure:"workspace"`
	Docker    DockerConfig     `mapstructure:"docker"`
	Worker    WorkerConfig     `mapstructure:"worker"`
	Reaper    ReaperConfig     `mapstructure:"reaper"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"`
}

// HTTPConfig holds the API listener settings.
type HTTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	CORSOrigins  []string      `mapstructure:"cors_origins"`
}

// KafkaConfig holds the task queue settings.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
	// CreateTopic creates the topic at startup with one partition per worker.
	CreateTopic       bool `mapstructure:"create_topic"`
	ReplicationFactor int  `mapstructure:"replication_factor"`
}

// RedisConfig holds the result cache settings.
type RedisConfig struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	ResultTTL time.Duration `mapstructure:"result_ttl"`
	KeyPrefix string        `mapstructure:"key_prefix"`
}

// PostgresConfig holds the database settings.
type PostgresConfig struct {
	DSN     string `mapstructure:"dsn"`
	Enabled bool   `mapstructure:"enabled"`
}

// CatalogConfig selects where language specs come from.
type CatalogConfig struct {
	Source string `mapstructure:"source"`
}

// LanguageConfig declares one language of the catalog.
type LanguageConfig struct {
	Name           string        `mapstructure:"name"`
	Image          string        `mapstructure:"image"`
	ExecuteCommand string        `mapstructure:"execute_command"`
	CompileCommand string        `mapstructure:"compile_command"`
	FileExtension  string        `mapstructure:"file_extension"`
	MemoryLimitMB  int64         `mapstructure:"memory_limit_mb"`
	CPULimit       float64       `mapstructure:"cpu_limit"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// WorkspaceConfig holds host workspace settings.
type WorkspaceConfig struct {
	BaseDir    string        `mapstructure:"base_dir"`
	PurgeAfter time.Duration `mapstructure:"purge_after"`
}

// DockerConfig holds container engine settings.
type DockerConfig struct {
	PullImages bool          `mapstructure:"pull_images"`
	CodeMount  string        `mapstructure:"code_mount"`
	StdinMount string        `mapstructure:"stdin_mount"`
	MaxTimeout time.Duration `mapstructure:"max_timeout"`
	Label      string        `mapstructure:"label"`
}

// WorkerConfig holds worker pool settings.
type WorkerConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// ReaperConfig holds reaper settings.
type ReaperConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	MaxAge      time.Duration `mapstructure:"max_age"`
	OnlyManaged bool          `mapstructure:"only_managed"`
}

// Load reads the configuration. When path is empty a cortex.yaml in the
// working directory or ./config is used if present. Environment variables
// prefixed with CORTEX_ override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("cortex")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("roles", []string{RoleAPI, RoleWorker, RoleReaper})

	v.SetDefault("logging.mode", "production")
	v.SetDefault("logging.level", "info")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 15*time.Second)
	v.SetDefault("http.cors_origins", []string{"*"})

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "code-execution")
	v.SetDefault("kafka.group_id", "cortex-workers")
	v.SetDefault("kafka.create_topic", true)
	v.SetDefault("kafka.replication_factor", 1)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.result_ttl", time.Hour)
	v.SetDefault("redis.key_prefix", "result:")

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.enabled", false)

	v.SetDefault("catalog.source", CatalogMemory)

	v.SetDefault("workspace.base_dir", "")
	v.SetDefault("workspace.purge_after", time.Hour)

	v.SetDefault("docker.pull_images", true)
	v.SetDefault("docker.code_mount", "/code")
	v.SetDefault("docker.stdin_mount", "/stdin")
	v.SetDefault("docker.max_timeout", 30*time.Second)
	v.SetDefault("docker.label", "cortex.managed")

	v.SetDefault("worker.concurrency", 2)

	v.SetDefault("reaper.interval", time.Hour)
	v.SetDefault("reaper.max_age", 24*time.Hour)
	v.SetDefault("reaper.only_managed", false)
}

// validate ensures the configuration is usable for the selected roles.
func (c *Config) validate() error {
	if len(c.Roles) == 0 {
		return fmt.Errorf("roles must name at least one of api, worker, reaper")
	}
	for _, role := range c.Roles {
		switch role {
		case RoleAPI, RoleWorker, RoleReaper:
		default:
			return fmt.Errorf("invalid role: %s, must be one of api, worker, reaper", role)
		}
	}

	if c.HasRole(RoleAPI) && c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr must be set for the api role")
	}

	if c.HasRole(RoleAPI) || c.HasRole(RoleWorker) {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers must not be empty")
		}
		if c.Kafka.Topic == "" {
			return fmt.Errorf("kafka.topic must be set")
		}
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr must be set")
		}
		if c.Redis.ResultTTL <= 0 {
			return fmt.Errorf("redis.result_ttl must be positive, got: %s", c.Redis.ResultTTL)
		}
	}

	switch c.Catalog.Source {
	case CatalogMemory:
	case CatalogPostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("postgres.dsn is required when catalog.source is postgres")
		}
	default:
		return fmt.Errorf("invalid catalog.source: %s, must be 'memory' or 'postgres'", c.Catalog.Source)
	}
	if c.Postgres.Enabled && c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required when postgres.enabled is set")
	}

	if c.HasRole(RoleWorker) && c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker.concurrency must be positive, got: %d", c.Worker.Concurrency)
	}
	if c.Docker.MaxTimeout < 0 {
		return fmt.Errorf("docker.max_timeout must not be negative, got: %s", c.Docker.MaxTimeout)
	}

	if c.HasRole(RoleReaper) {
		if c.Reaper.Interval <= 0 {
			return fmt.Errorf("reaper.interval must be positive, got: %s", c.Reaper.Interval)
		}
		if c.Reaper.MaxAge <= 0 {
			return fmt.Errorf("reaper.max_age must be positive, got: %s", c.Reaper.MaxAge)
		}
	}

	for _, spec := range c.LanguageSpecs() {
		if err := spec.Validate(); err != nil {
			return fmt.Errorf("languages: %w", err)
		}
	}
	return nil
}

// HasRole reports whether the process runs role.
func (c *Config) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// UsesPostgres reports whether a database connection is needed.
func (c *Config) UsesPostgres() bool {
	return c.Postgres.Enabled || c.Catalog.Source == CatalogPostgres
}

// LanguageSpecs returns the configured languages, or the built-in set when
// none are configured.
func (c *Config) LanguageSpecs() []execution.LanguageSpec {
	if len(c.Languages) == 0 {
		return catalog.Defaults()
	}
	specs := make([]execution.LanguageSpec, 0, len(c.Languages))
	for _, l := range c.Languages {
		specs = append(specs, execution.LanguageSpec{
			Name:             l.Name,
			Image:            l.Image,
			ExecuteCommand:   l.ExecuteCommand,
			CompileCommand:   l.CompileCommand,
			FileExtension:    l.FileExtension,
			MemoryLimitBytes: l.MemoryLimitMB << 20,
			CPULimit:         l.CPULimit,
			Timeout:          l.Timeout,
		})
	}
	return specs
}
