package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StoreMemory = "memory"
	StoreMySQL  = "mysql"
	StoreRedis  = "redis"
)

type Config struct {
	HTTP  HTTPConfig  `mapstructure:"http"`
	Store StoreConfig `mapstructure:"store"`
	Cache CacheConfig `mapstructure:"cache"`
}

type HTTPConfig struct {
	ListenAddress string `mapstructure:"listenAddress"`
}

type StoreConfig struct {
	// Backend selects the document store adapter: memory, mysql or redis
	Backend         string      `mapstructure:"backend"`
	ToolsCollection string      `mapstructure:"toolsCollection"`
	AuditCollection string      `mapstructure:"auditCollection"`
	MySQL           MySQLConfig `mapstructure:"mysql"`
	Redis           RedisConfig `mapstructure:"redis"`
}

type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type CacheConfig struct {
	TTLSeconds            int `mapstructure:"ttlSeconds"`
	MaxAgeSeconds         int `mapstructure:"maxAgeSeconds"`
	RefreshTimeoutSeconds int `mapstructure:"refreshTimeoutSeconds"`
}

func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

func (c CacheConfig) MaxAge() time.Duration {
	return time.Duration(c.MaxAgeSeconds) * time.Second
}

func (c CacheConfig) RefreshTimeout() time.Duration {
	return time.Duration(c.RefreshTimeoutSeconds) * time.Second
}

func newConfigViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("TOOLS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.listenAddress", ":8080")
	v.SetDefault("store.backend", StoreMemory)
	v.SetDefault("store.toolsCollection", "tools_v2")
	v.SetDefault("store.auditCollection", "audit_logs")
	v.SetDefault("store.mysql.dsn", "root:root@tcp(localhost:3306)/toolstracker?parseTime=true")
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("cache.ttlSeconds", 300)
	v.SetDefault("cache.maxAgeSeconds", 3600)
	v.SetDefault("cache.refreshTimeoutSeconds", 30)
}

// Load reads configuration from TOOLS_* environment variables, e.g.
// TOOLS_STORE_BACKEND=redis or TOOLS_CACHE_TTLSECONDS=60.
func Load() (Config, error) {
	v := newConfigViper()

	// AutomaticEnv only resolves keys viper already knows about; defaults
	// above register every key.
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Store.Backend {
	case StoreMemory, StoreMySQL, StoreRedis:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Cache.TTLSeconds <= 0 {
		return fmt.Errorf("cache ttl must be positive, got %d", c.Cache.TTLSeconds)
	}
	if c.Cache.MaxAgeSeconds <= c.Cache.TTLSeconds {
		return fmt.Errorf("cache maxAge (%d) must exceed ttl (%d)", c.Cache.MaxAgeSeconds, c.Cache.TTLSeconds)
	}
	return nil
}
