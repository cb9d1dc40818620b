package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

type Warehouse struct {
	ID   string `mapstructure:"id"`
	Name string `mapstructure:"name"`
	// Path — сегмент базы 1С на стороне ERP (BaseWeb, BaseWeb1, ...)
	Path string `mapstructure:"path"`
}

type Config struct {
	App struct {
		Env      string
		Timezone string
	} `mapstructure:"app"`

	Telegram struct {
		Token       string
		AdminChatID int64 `mapstructure:"admin_chat_id"`
		PollTimeout int   `mapstructure:"poll_timeout"`
	} `mapstructure:"telegram"`

	HTTP struct {
		Addr string
	} `mapstructure:"http"`

	Postgres struct {
		DSN string
	} `mapstructure:"postgres"`

	Redis struct {
		Addr     string
		Password string
		DB       int
	} `mapstructure:"redis"`

	Session struct {
		Backend       string
		IdleTTL       time.Duration `mapstructure:"idle_ttl"`
		SweepInterval time.Duration `mapstructure:"sweep_interval"`
	} `mapstructure:"session"`

	ERP struct {
		BaseURL            string        `mapstructure:"base_url"`
		Username           string        `mapstructure:"username"`
		Password           string        `mapstructure:"password"`
		InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
		Timeout            time.Duration `mapstructure:"timeout"`
		Retries            uint64        `mapstructure:"retries"`
		Warehouses         []Warehouse   `mapstructure:"warehouses"`
	} `mapstructure:"erp"`

	Metrics struct {
		Enabled bool
	} `mapstructure:"metrics"`
}

// Path возвращает путь к конфигу: CONFIG_PATH или config/config.yaml.
func Path() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config/config.yaml"
}

func Load(path string) (Config, error) {
	// .env необязателен — в проде переменные приходят из окружения
	_ = gotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("app.env", "prod")
	v.SetDefault("app.timezone", "Europe/Kyiv")
	v.SetDefault("telegram.poll_timeout", 30)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("session.backend", "redis")
	v.SetDefault("session.idle_ttl", 30*time.Minute)
	v.SetDefault("session.sweep_interval", 5*time.Minute)
	v.SetDefault("erp.timeout", 15*time.Second)
	v.SetDefault("erp.retries", 2)
	v.SetDefault("metrics.enabled", true)

	var c Config
	if err := v.ReadInConfig(); err != nil {
		return c, fmt.Errorf("read config: %w", err)
	}
	if err := v.Unmarshal(&c); err != nil {
		return c, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, c.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.Telegram.Token == "" {
		errs = append(errs, errors.New("telegram.token is required"))
	}
	if c.Postgres.DSN == "" {
		errs = append(errs, errors.New("postgres.dsn is required"))
	}
	if c.ERP.BaseURL == "" {
		errs = append(errs, errors.New("erp.base_url is required"))
	}
	if len(c.ERP.Warehouses) == 0 {
		errs = append(errs, errors.New("erp.warehouses must not be empty"))
	}
	for i, w := range c.ERP.Warehouses {
		if w.ID == "" || w.Name == "" || w.Path == "" {
			errs = append(errs, fmt.Errorf("erp.warehouses[%d]: id, name and path are required", i))
		}
	}
	switch c.Session.Backend {
	case "redis":
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required for redis session backend"))
		}
	case "postgres":
		if c.Session.SweepInterval <= 0 {
			errs = append(errs, errors.New("session.sweep_interval must be positive for postgres session backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("session.backend %q: want redis or postgres", c.Session.Backend))
	}
	if c.Session.IdleTTL <= 0 {
		errs = append(errs, errors.New("session.idle_ttl must be positive"))
	}
	return errors.Join(errs...)
}
