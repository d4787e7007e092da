package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/Himanshuwagh/OutPilot/internal/classifier"
	"github.com/Himanshuwagh/OutPilot/internal/draft"
	"github.com/Himanshuwagh/OutPilot/internal/pipeline"
	"github.com/Himanshuwagh/OutPilot/internal/resolver"
	"github.com/Himanshuwagh/OutPilot/internal/scheduler"
	"github.com/Himanshuwagh/OutPilot/internal/sender"
	"github.com/Himanshuwagh/OutPilot/internal/source"
)

const (
	DedupSQLite = "sqlite"
	DedupMemory = "memory"
	DedupRedis  = "redis"

	DraftTemplate = "template"
	DraftGemini   = "gemini"
)

type Config struct {
	Store      StoreConfig      `mapstructure:"store"`
	Dedup      DedupConfig      `mapstructure:"dedup"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Run        pipeline.Config  `mapstructure:"run"`
	Sources    []source.Config  `mapstructure:"sources"`
	Resolver   resolver.Config  `mapstructure:"resolver"`
	Draft      DraftConfig      `mapstructure:"draft"`
	Send       SendConfig       `mapstructure:"send"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Schedule   scheduler.Config `mapstructure:"schedule"`
	HTTP       HTTPConfig       `mapstructure:"http"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

type DedupConfig struct {
	Backend  string        `mapstructure:"backend"`
	Cooldown time.Duration `mapstructure:"cooldown"`
	Shards   int           `mapstructure:"shards"`
	Redis    RedisConfig   `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr         string `mapstructure:"addr"`
	Password     string `mapstructure:"password"`
	PasswordFile string `mapstructure:"password-file"`
	DB           int    `mapstructure:"db"`
	Prefix       string `mapstructure:"prefix"`
}

type ClassifierConfig struct {
	classifier.Config `mapstructure:",squash"`
	Roles             []string `mapstructure:"roles"`
}

type DraftConfig struct {
	Provider  string        `mapstructure:"provider"`
	Templates string        `mapstructure:"templates"`
	Profile   draft.Profile `mapstructure:"profile"`
	Gemini    GeminiConfig  `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey       string `mapstructure:"api-key"`
	APIKeyFile   string `mapstructure:"api-key-file"`
	Model        string `mapstructure:"model"`
	MaxRetries   int    `mapstructure:"max-retries"`
	MaxLogLength int    `mapstructure:"max-log-length"`
}

type SendConfig struct {
	SMTP         sender.SMTPConfig `mapstructure:"smtp"`
	PasswordFile string            `mapstructure:"password-file"`
}

type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

type HTTPConfig struct {
	UserAgent string        `mapstructure:"user-agent"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

func defaultConfig() Config {
	return Config{
		Store: StoreConfig{Path: app + ".db"},
		Dedup: DedupConfig{
			Backend:  DedupSQLite,
			Cooldown: 30 * 24 * time.Hour,
			Shards:   16,
			Redis:    RedisConfig{Addr: "localhost:6379", Prefix: app},
		},
		Run:      pipeline.DefaultConfig(),
		Resolver: resolver.DefaultConfig(),
		Draft: DraftConfig{
			Provider: DraftTemplate,
			Gemini:   GeminiConfig{Model: "gemini-2.5-flash", MaxRetries: 3, MaxLogLength: 500},
		},
		Send: SendConfig{
			SMTP: sender.SMTPConfig{Port: 587, Timeout: 30 * time.Second},
		},
		Schedule: scheduler.Config{Cron: scheduler.DefaultSchedule, Timezone: scheduler.DefaultTimezone},
		HTTP:     HTTPConfig{UserAgent: app, Timeout: 20 * time.Second},
	}
}

// getConfig decodes the loaded configuration over the defaults.
func getConfig() (*Config, error) {
	config := defaultConfig()
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, config.Validate()
}

// Validate reports settings no command can start with.
func (c *Config) Validate() error {
	var errs []error

	if c.Store.Path == "" {
		errs = append(errs, errors.New("store.path is required"))
	}

	switch c.Dedup.Backend {
	case DedupSQLite, DedupMemory:
	case DedupRedis:
		if c.Dedup.Redis.Addr == "" {
			errs = append(errs, errors.New("dedup.redis.addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported dedup backend: %s", c.Dedup.Backend))
	}
	if c.Dedup.Cooldown <= 0 {
		errs = append(errs, errors.New("dedup.cooldown must be positive"))
	}

	if err := c.Run.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("run: %w", err))
	}

	names := make(map[string]struct{}, len(c.Sources))
	for _, s := range c.Sources {
		if _, ok := names[s.Name]; ok {
			errs = append(errs, fmt.Errorf("duplicate source name: %q", s.Name))
		}
		names[s.Name] = struct{}{}
	}

	switch c.Draft.Provider {
	case DraftTemplate, "":
	case DraftGemini:
		if c.Draft.Gemini.Model == "" {
			errs = append(errs, errors.New("draft.gemini.model is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported draft provider: %s", c.Draft.Provider))
	}

	return errors.Join(errs...)
}
