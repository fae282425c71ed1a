package autonomy

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"

	"portal_automation/internal/autonomy/runlock"
	"portal_automation/internal/gateway"
	"portal_automation/internal/llm"
)

// EnvPrefix namespaces environment overrides, e.g. AUTOMATION_STORE_DRIVER.
const EnvPrefix = "AUTOMATION"

type Config struct {
	Store           StoreConfig  `mapstructure:"store"`
	TicketsPath     string       `mapstructure:"tickets_path"`
	CredentialsPath string       `mapstructure:"credentials_path"`
	RunLogPath      string       `mapstructure:"run_log_path"`
	PromptsPath     string       `mapstructure:"prompts_path"`
	Organization    string       `mapstructure:"organization"`
	LLM             LLMConfig    `mapstructure:"llm"`
	Lock            LockConfig   `mapstructure:"lock"`
	Notify          NotifyConfig `mapstructure:"notify"`
	Log             LogConfig    `mapstructure:"log"`
}

// StoreConfig selects where the portal state document lives. Driver "file"
// uses Path; "postgres" and "sqlite" use DSN and the row Name.
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
	Name   string `mapstructure:"name"`
}

type LLMConfig struct {
	Provider   string        `mapstructure:"provider"`
	APIKey     string        `mapstructure:"api_key"`
	Model      string        `mapstructure:"model"`
	APIVersion string        `mapstructure:"api_version"`
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type LockConfig struct {
	Driver     string        `mapstructure:"driver"`
	Path       string        `mapstructure:"path"`
	RedisURL   string        `mapstructure:"redis_url"`
	StaleAfter time.Duration `mapstructure:"stale_after"`
}

type NotifyConfig struct {
	Email gateway.EmailConfig `mapstructure:"email"`
}

type LogConfig struct {
	JSON  bool   `mapstructure:"json"`
	Level string `mapstructure:"level"`
}

func DefaultConfig() Config {
	return Config{
		Store: StoreConfig{
			Driver: "file",
			Path:   "data/portal-state.json",
			Name:   "portal",
		},
		CredentialsPath: "api.txt",
		RunLogPath:      "data/automation-runs.jsonl",
		LLM: LLMConfig{
			Provider: string(llm.ProviderGemini),
			Timeout:  llm.DefaultTimeout,
		},
		Lock: LockConfig{
			Driver:     "file",
			StaleAfter: runlock.DefaultStaleAfter,
		},
		Notify: NotifyConfig{Email: gateway.EmailConfig{SubjectPrefix: "[Automation]"}},
		Log:    LogConfig{Level: "info"},
	}
}

func (c Config) WithDefaults() Config {
	out := c
	def := DefaultConfig()

	out.Store.Driver = strings.ToLower(strings.TrimSpace(out.Store.Driver))
	if out.Store.Driver == "" {
		out.Store.Driver = def.Store.Driver
	}
	if strings.TrimSpace(out.Store.Path) == "" {
		out.Store.Path = def.Store.Path
	}
	if strings.TrimSpace(out.Store.Name) == "" {
		out.Store.Name = def.Store.Name
	}
	if strings.TrimSpace(out.RunLogPath) == "" && out.Store.Driver == "file" {
		out.RunLogPath = def.RunLogPath
	}

	if strings.TrimSpace(out.LLM.Provider) == "" {
		out.LLM.Provider = def.LLM.Provider
	}
	if out.LLM.Timeout <= 0 {
		out.LLM.Timeout = def.LLM.Timeout
	}

	out.Lock.Driver = strings.ToLower(strings.TrimSpace(out.Lock.Driver))
	if out.Lock.Driver == "" {
		out.Lock.Driver = def.Lock.Driver
	}
	if strings.TrimSpace(out.Lock.Path) == "" {
		if out.Store.Driver == "file" {
			out.Lock.Path = out.Store.Path + ".run.lock"
		} else {
			out.Lock.Path = filepath.Join(filepath.Dir(out.Store.Path), out.Store.Name+".run.lock")
		}
	}
	if out.Lock.StaleAfter <= 0 {
		out.Lock.StaleAfter = def.Lock.StaleAfter
	}

	out.Notify.Email = out.Notify.Email.WithDefaults()

	if strings.TrimSpace(out.Log.Level) == "" {
		out.Log.Level = def.Log.Level
	}
	return out
}

func (c Config) Validate() error {
	switch c.Store.Driver {
	case "file":
		if strings.TrimSpace(c.Store.Path) == "" {
			return errors.New("store.path is required for the file store")
		}
	case "postgres", "sqlite":
		if strings.TrimSpace(c.Store.DSN) == "" {
			return errors.Newf("store.dsn is required for the %s store", c.Store.Driver)
		}
	default:
		return errors.Newf("unknown store.driver %q (supported: file, postgres, sqlite)", c.Store.Driver)
	}
	if _, err := llm.ParseProvider(c.LLM.Provider); err != nil {
		return err
	}
	if c.Lock.Driver == "file" && strings.TrimSpace(c.Lock.Path) == "" {
		return errors.New("lock.path is required for the file lock")
	}
	if c.Lock.Driver == "redis" && strings.TrimSpace(c.Lock.RedisURL) == "" {
		return errors.New("lock.redis_url is required for the redis lock")
	}
	return nil
}

// ExplicitLayer is the generation settings layer that outranks everything
// saved in the portal state.
func (c Config) ExplicitLayer() llm.Layer {
	return llm.Layer{
		APIKey:         strings.TrimSpace(c.LLM.APIKey),
		DefaultModel:   strings.TrimSpace(c.LLM.Model),
		DefaultVersion: strings.TrimSpace(c.LLM.APIVersion),
	}
}

func setDefaults(v *viper.Viper) {
	def := DefaultConfig()
	v.SetDefault("store.driver", def.Store.Driver)
	v.SetDefault("store.path", def.Store.Path)
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.name", def.Store.Name)
	v.SetDefault("tickets_path", "")
	v.SetDefault("credentials_path", def.CredentialsPath)
	v.SetDefault("run_log_path", "")
	v.SetDefault("prompts_path", "")
	v.SetDefault("organization", "")
	v.SetDefault("llm.provider", def.LLM.Provider)
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.api_version", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.timeout", def.LLM.Timeout.String())
	v.SetDefault("lock.driver", def.Lock.Driver)
	v.SetDefault("lock.path", "")
	v.SetDefault("lock.redis_url", "")
	v.SetDefault("lock.stale_after", def.Lock.StaleAfter.String())
	v.SetDefault("notify.email.smtp_server", "")
	v.SetDefault("notify.email.smtp_port", 0)
	v.SetDefault("notify.email.use_ssl", false)
	v.SetDefault("notify.email.from", "")
	v.SetDefault("notify.email.password", "")
	v.SetDefault("notify.email.to", "")
	v.SetDefault("notify.email.subject_prefix", def.Notify.Email.SubjectPrefix)
	v.SetDefault("log.json", false)
	v.SetDefault("log.level", def.Log.Level)
}

// LoadConfig reads configPath (yaml, json or toml by extension) and applies
// AUTOMATION_* environment overrides. An empty path means environment and
// defaults only. Only keys with a registered default can be overridden from
// the environment.
func LoadConfig(configPath string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path := strings.TrimSpace(configPath); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "read config %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "decode config")
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, errors.WithHint(err, "check the config file or the "+EnvPrefix+"_* environment variables")
	}
	return cfg, nil
}
