package configs

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "STOREFRONT_"

type Config struct {
	App struct {
		Name     string `koanf:"name"`
		HTTPAddr string `koanf:"http_addr"`
	} `koanf:"app"`

	HTTP struct {
		ReadTimeout     time.Duration `koanf:"read_timeout"`
		WriteTimeout    time.Duration `koanf:"write_timeout"`
		IdleTimeout     time.Duration `koanf:"idle_timeout"`
		RequestTimeout  time.Duration `koanf:"request_timeout"`
		ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	} `koanf:"http"`

	Log struct {
		Level      string `koanf:"level"`
		File       string `koanf:"file"`
		MaxSizeMB  int    `koanf:"max_size_mb"`
		MaxBackups int    `koanf:"max_backups"`
		MaxAgeDays int    `koanf:"max_age_days"`
	} `koanf:"log"`

	Storage struct {
		Driver  string `koanf:"driver"` // mysql | memory
		Migrate bool   `koanf:"migrate"`
	} `koanf:"storage"`

	MySQL struct {
		DSN             string        `koanf:"dsn"`
		MaxOpenConns    int           `koanf:"max_open_conns"`
		MaxIdleConns    int           `koanf:"max_idle_conns"`
		ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	} `koanf:"mysql"`

	Redis struct {
		Enabled  bool   `koanf:"enabled"`
		Addr     string `koanf:"addr"`
		Password string `koanf:"password"`
		DB       int    `koanf:"db"`
	} `koanf:"redis"`

	Idempotency struct {
		TTL time.Duration `koanf:"ttl"`
	} `koanf:"idempotency"`

	Cache struct {
		TTL time.Duration `koanf:"ttl"`
	} `koanf:"cache"`

	Lifecycle struct {
		MaxRetries int           `koanf:"max_retries"`
		RedisLock  bool          `koanf:"redis_lock"`
		LockTTL    time.Duration `koanf:"lock_ttl"`
		LockWait   time.Duration `koanf:"lock_wait"`
	} `koanf:"lifecycle"`

	Notifications struct {
		Mode string `koanf:"mode"` // direct | rabbitmq
	} `koanf:"notifications"`

	Rabbit struct {
		URL      string        `koanf:"url"`
		Prefetch int           `koanf:"prefetch"`
		Timeout  time.Duration `koanf:"timeout"`
	} `koanf:"rabbitmq"`

	Kafka struct {
		Enabled      bool     `koanf:"enabled"`
		Brokers      []string `koanf:"brokers"`
		GroupID      string   `koanf:"group_id"`
		TopicPayment string   `koanf:"topic_payment"`
		ClientID     string   `koanf:"client_id"`
		OldestOffset bool     `koanf:"oldest_offset"`
	} `koanf:"kafka"`

	Security struct {
		JWTSecret string        `koanf:"jwt_secret"`
		Issuer    string        `koanf:"issuer"`
		Audience  string        `koanf:"audience"`
		TTL       time.Duration `koanf:"ttl"`
	} `koanf:"security"`

	Tracing struct {
		Enabled     bool    `koanf:"enabled"`
		Endpoint    string  `koanf:"endpoint"`
		Insecure    bool    `koanf:"insecure"`
		SampleRatio float64 `koanf:"sample_ratio"`
	} `koanf:"tracing"`
}

func Load(pathDir, envName string) (Config, error) {
	k := koanf.New(".")
	// 1) base
	if err := k.Load(file.Provider(fmt.Sprintf("%s/base.yaml", pathDir)), yaml.Parser()); err != nil {
		return Config{}, fmt.Errorf("load base: %w", err)
	}

	// 2) env override (dev/staging/prod). Optional: allow missing for local runs.
	_ = k.Load(file.Provider(fmt.Sprintf("%s/%s.yaml", pathDir, envName)), yaml.Parser())

	// 3) environment variables override (prefix STOREFRONT_, nested with __)
	// e.g. STOREFRONT_MYSQL__DSN, STOREFRONT_REDIS__PASSWORD
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		s = strings.ReplaceAll(s, "__", ".")
		return strings.ToLower(s)
	}), nil); err != nil {
		return Config{}, fmt.Errorf("env overlay: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.App.HTTPAddr == "" {
		return fmt.Errorf("app.http_addr required")
	}
	switch c.Storage.Driver {
	case "memory":
	case "mysql":
		if c.MySQL.DSN == "" {
			return fmt.Errorf("mysql.dsn required when storage.driver=mysql")
		}
	default:
		return fmt.Errorf("storage.driver must be mysql or memory, got %q", c.Storage.Driver)
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr required when redis.enabled")
	}
	if c.Lifecycle.RedisLock && !c.Redis.Enabled {
		return fmt.Errorf("lifecycle.redis_lock needs redis.enabled")
	}
	if c.Lifecycle.MaxRetries < 0 {
		return fmt.Errorf("lifecycle.max_retries must not be negative")
	}
	switch c.Notifications.Mode {
	case "direct":
	case "rabbitmq":
		if c.Rabbit.URL == "" {
			return fmt.Errorf("rabbitmq.url required when notifications.mode=rabbitmq")
		}
	default:
		return fmt.Errorf("notifications.mode must be direct or rabbitmq, got %q", c.Notifications.Mode)
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers required when kafka.enabled")
		}
		if c.Kafka.TopicPayment == "" || c.Kafka.GroupID == "" {
			return fmt.Errorf("kafka.topic_payment and kafka.group_id required when kafka.enabled")
		}
	}
	if c.Security.JWTSecret == "" {
		return fmt.Errorf("security.jwt_secret required")
	}
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return fmt.Errorf("tracing.endpoint required when tracing.enabled")
	}
	return nil
}
