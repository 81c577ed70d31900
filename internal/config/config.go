// Package config loads the service configuration from a TOML file with
// environment-variable overrides for the values that differ per deployment.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the full service configuration.
type Config struct {
	Server ServerConfig `toml:"server"`
	GitHub GitHubConfig `toml:"github"`
	Store  StoreConfig  `toml:"store"`
	Queue  QueueConfig  `toml:"queue"`
	Sweep  SweepConfig  `toml:"sweep"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type GitHubConfig struct {
	Token string `toml:"token"`
	// Tier selects the pipeline limits preset: dev, free, or paid.
	Tier string `toml:"tier"`
}

type StoreConfig struct {
	// Backend is memory, redis, or mongo.
	Backend string      `toml:"backend"`
	Redis   RedisConfig `toml:"redis"`
	Mongo   MongoConfig `toml:"mongo"`
}

type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	Prefix   string `toml:"prefix"`
}

type MongoConfig struct {
	URI        string `toml:"uri"`
	Database   string `toml:"database"`
	Collection string `toml:"collection"`
}

type QueueConfig struct {
	// Enabled turns on queued miss handling; disabled means cache misses
	// run the pipeline inline on the request path.
	Enabled bool `toml:"enabled"`
	// Backend is memory or redis.
	Backend  string `toml:"backend"`
	Capacity int    `toml:"capacity"`
	Key      string `toml:"key"`
}

type SweepConfig struct {
	Interval duration `toml:"interval"`
}

// duration makes time.Duration TOML-decodable from strings like "1h30m".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Default returns the configuration used when no file and no environment
// overrides are present: an in-memory store, no queue, free-tier limits.
func Default() Config {
	return Config{
		Server: ServerConfig{Addr: ":8080"},
		GitHub: GitHubConfig{Tier: "free"},
		Store:  StoreConfig{Backend: "memory"},
		Queue:  QueueConfig{Backend: "memory", Capacity: 100},
		Sweep:  SweepConfig{Interval: duration{time.Hour}},
	}
}

// Load reads path (if non-empty and present) over the defaults, then
// applies environment overrides. A missing file at an explicitly given
// path is an error; an empty path just means defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// applyEnv layers USEDBY_* environment variables over the file values, so
// secrets stay out of config files.
func (c *Config) applyEnv() {
	setStr(&c.Server.Addr, "USEDBY_ADDR")
	setStr(&c.GitHub.Token, "USEDBY_GITHUB_TOKEN")
	setStr(&c.GitHub.Tier, "USEDBY_TIER")
	setStr(&c.Store.Backend, "USEDBY_STORE_BACKEND")
	setStr(&c.Store.Redis.Addr, "USEDBY_REDIS_ADDR")
	setStr(&c.Store.Redis.Password, "USEDBY_REDIS_PASSWORD")
	setInt(&c.Store.Redis.DB, "USEDBY_REDIS_DB")
	setStr(&c.Store.Mongo.URI, "USEDBY_MONGO_URI")
	setStr(&c.Queue.Backend, "USEDBY_QUEUE_BACKEND")
	if v := os.Getenv("USEDBY_QUEUE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Queue.Enabled = b
		}
	}
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// SweepInterval returns the configured sweep period.
func (c *Config) SweepInterval() time.Duration { return c.Sweep.Interval.Duration }
