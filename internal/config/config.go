// Package config loads console configuration from YAML with environment
// overrides and hot reload on file change.
package config

import (
	"log"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds all console configuration. The mapstructure tags tell
// Viper which YAML field maps to which struct field.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	DB      DBConfig      `mapstructure:"db"`
	Gateway GatewayConfig `mapstructure:"gateway"`
	View    ViewConfig    `mapstructure:"view"`
	Redis   RedisConfig   `mapstructure:"redis"`
}

type ServerConfig struct {
	Host          string `mapstructure:"host"`
	Port          string `mapstructure:"port"`
	AdminPassword string `mapstructure:"admin_password"`
}

type DBConfig struct {
	Path     string `mapstructure:"path"`
	SeedFile string `mapstructure:"seed_file"`
}

// GatewayConfig points the console at a remote gateway's log search API.
// When URL is empty the console searches its own store.
type GatewayConfig struct {
	URL   string `mapstructure:"url"`
	Token string `mapstructure:"token"`
}

type ViewConfig struct {
	DebounceMS        int `mapstructure:"debounce_ms"`
	PageSize          int `mapstructure:"page_size"`
	SessionTTLMinutes int `mapstructure:"session_ttl_minutes"`
}

type RedisConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Address    string `mapstructure:"address"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	TTLSeconds int    `mapstructure:"ttl_seconds"`
}

// Store wraps configuration with thread-safe access and hot-reload updates.
type Store struct {
	mu  sync.RWMutex
	cfg *Config
}

func (s *Store) Get() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cfg == nil {
		return nil
	}
	cpy := *s.cfg
	return &cpy
}

func (s *Store) set(cfg *Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

// LoadAndWatch loads the config and watches for on-disk changes.
func LoadAndWatch(paths ...string) (*Store, error) {
	v := newViper(paths...)

	if err := v.ReadInConfig(); err != nil {
		// Missing file is fine: env vars and defaults still apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	store := &Store{}
	if err := refresh(v, store); err != nil {
		return nil, err
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		if err := refresh(v, store); err != nil {
			log.Printf("[Config] reload failed: %v", err)
		} else {
			log.Printf("[Config] reloaded from %s", e.Name)
		}
	})

	return store, nil
}

// Load loads once and does not watch.
func Load(paths ...string) (*Config, error) {
	store, err := LoadAndWatch(paths...)
	if err != nil {
		return nil, err
	}
	return store.Get(), nil
}

func newViper(paths ...string) *viper.Viper {
	v := viper.New()
	if len(paths) == 0 {
		paths = []string{"./configs", "."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("CONSOLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", "8087")
	v.SetDefault("db.path", "console.db")
	v.SetDefault("view.debounce_ms", 300)
	v.SetDefault("view.page_size", 50)
	v.SetDefault("view.session_ttl_minutes", 30)
	v.SetDefault("redis.ttl_seconds", 30)

	return v
}

func refresh(v *viper.Viper, store *Store) error {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return err
	}
	store.set(&cfg)
	return nil
}
