package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/dunamismax/pixelproxy/internal/allowlist"
	"github.com/go-ini/ini"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "PIXELPROXY"

type Config struct {
	Server    ServerConfig
	Allowlist AllowlistConfig
	Fetch     FetchConfig
	Transform TransformConfig
	Log       LogConfig
	Tracing   TracingConfig
}

type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type AllowlistConfig struct {
	Domains       []string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisKey      string
}

func (a AllowlistConfig) RedisEnabled() bool {
	return strings.TrimSpace(a.RedisAddr) != ""
}

func (a AllowlistConfig) RedisOptions() *redis.Options {
	return &redis.Options{
		Addr:     a.RedisAddr,
		Password: a.RedisPassword,
		DB:       a.RedisDB,
	}
}

type FetchConfig struct {
	Timeout   time.Duration
	MaxBytes  int64
	UserAgent string
}

type TransformConfig struct {
	Concurrency  int
	Quality         int
	MaxDimension    int
	MaxSourcePixels int
}

type LogConfig struct {
	Level  string
	Format string
}

type TracingConfig struct {
	Exporter     string
	OTLPEndpoint string
	OTLPInsecure bool
}

// Load reads the ini file named by --config, then applies PIXELPROXY_*
// environment overrides and explicit flags. A missing file is an error: the
// proxy must not start without its allowlist.
func Load(args []string) (Config, error) {
	fs := pflag.NewFlagSet("pixelproxy", pflag.ContinueOnError)
	fs.String("config", "config.ini", "path to the ini configuration file")
	fs.String("addr", ":5001", "listen address")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return Config{}, fmt.Errorf("parse flags: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, flag := range map[string]string{
		"config":      "config",
		"server.addr": "addr",
		"log.level":   "log-level",
	} {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return Config{}, fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}

	values, err := readINI(v.GetString("config"))
	if err != nil {
		return Config{}, err
	}
	if err := v.MergeConfigMap(values); err != nil {
		return Config{}, fmt.Errorf("merge config: %w", err)
	}

	cfg := Config{
		Server: ServerConfig{
			Addr:         v.GetString("server.addr"),
			ReadTimeout:  v.GetDuration("server.read_timeout"),
			WriteTimeout: v.GetDuration("server.write_timeout"),
			IdleTimeout:  v.GetDuration("server.idle_timeout"),
		},
		Allowlist: AllowlistConfig{
			Domains:       allowlist.SplitList(v.GetString("app.allowed_domains")),
			RedisAddr:     v.GetString("allowlist.redis_addr"),
			RedisPassword: v.GetString("allowlist.redis_password"),
			RedisDB:       v.GetInt("allowlist.redis_db"),
			RedisKey:      v.GetString("allowlist.redis_key"),
		},
		Fetch: FetchConfig{
			Timeout:   v.GetDuration("fetch.timeout"),
			MaxBytes:  v.GetInt64("fetch.max_bytes"),
			UserAgent: v.GetString("fetch.user_agent"),
		},
		Transform: TransformConfig{
			Concurrency:     v.GetInt("transform.concurrency"),
			Quality:         v.GetInt("transform.quality"),
			MaxDimension:    v.GetInt("transform.max_dimension"),
			MaxSourcePixels: v.GetInt("transform.max_source_pixels"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Tracing: TracingConfig{
			Exporter:     v.GetString("tracing.exporter"),
			OTLPEndpoint: v.GetString("tracing.otlp_endpoint"),
			OTLPInsecure: v.GetBool("tracing.otlp_insecure"),
		},
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":5001")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)

	v.SetDefault("app.allowed_domains", "")
	v.SetDefault("allowlist.redis_addr", "")
	v.SetDefault("allowlist.redis_password", "")
	v.SetDefault("allowlist.redis_db", 0)
	v.SetDefault("allowlist.redis_key", allowlist.DefaultRedisKey)

	v.SetDefault("fetch.timeout", 30*time.Second)
	v.SetDefault("fetch.max_bytes", int64(32<<20))
	v.SetDefault("fetch.user_agent", "pixelproxy/1.0")

	v.SetDefault("transform.concurrency", runtime.NumCPU())
	v.SetDefault("transform.quality", 85)
	v.SetDefault("transform.max_dimension", 8192)
	v.SetDefault("transform.max_source_pixels", 50_000_000)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("tracing.exporter", "none")
	v.SetDefault("tracing.otlp_endpoint", "")
	v.SetDefault("tracing.otlp_insecure", false)
}

func (c Config) validate() error {
	if len(c.Allowlist.Domains) == 0 && !c.Allowlist.RedisEnabled() {
		return errors.New("app.allowed_domains is required")
	}
	if c.Transform.Quality < 1 || c.Transform.Quality > 100 {
		return fmt.Errorf("transform.quality must be within 1..100, got %d", c.Transform.Quality)
	}
	if c.Fetch.MaxBytes <= 0 {
		return fmt.Errorf("fetch.max_bytes must be positive, got %d", c.Fetch.MaxBytes)
	}
	return nil
}

// readINI flattens sections into nested maps so viper can address them as
// "section.key". Keys outside any section land at the top level.
func readINI(path string) (map[string]any, error) {
	file, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	out := make(map[string]any)
	for _, section := range file.Sections() {
		keys := section.Keys()
		if len(keys) == 0 {
			continue
		}

		values := make(map[string]any, len(keys))
		for _, key := range keys {
			values[strings.ToLower(key.Name())] = key.Value()
		}

		if section.Name() == ini.DefaultSection {
			for k, val := range values {
				out[k] = val
			}
			continue
		}
		out[strings.ToLower(section.Name())] = values
	}
	return out, nil
}
