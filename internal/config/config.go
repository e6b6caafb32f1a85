// Package config loads server settings from flags, CERTIFIED_* environment
// variables and an optional YAML file, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"certified/internal/ratelimit"
)

const EnvPrefix = "CERTIFIED"

// Keys.
const (
	KeyHTTPAddr        = "http_addr"
	KeyDataDir         = "data_dir"
	KeyFsync           = "fsync"
	KeyEnqueueTimeout  = "enqueue_timeout"
	KeyMaxEnqueued     = "max_enqueued"
	KeyAdminDevBypass  = "admin_dev_bypass"
	KeyPreviewMode     = "preview_mode"
	KeySessionSecret   = "session_secret"
	KeySigningKey      = "signing_key"
	KeyRateBurst       = "rate_limit.burst"
	KeyRateRefill      = "rate_limit.refill_per_second"
	KeyRateLegacy      = "rate_limit.legacy"
	KeyRateRedisAddr   = "rate_limit.redis_addr"
	KeyShutdownTimeout = "shutdown_timeout"
)

const LogFileName = "certified.log"

type Config struct {
	HTTPAddr        string
	DataDir         string
	Fsync           bool
	EnqueueTimeout  time.Duration
	MaxEnqueued     int
	AdminDevBypass  bool
	PreviewMode     bool
	SessionSecret   string
	SigningKey      string
	RateLimit       RateLimit
	ShutdownTimeout time.Duration
}

// RateLimit is the certified-surface throttle. A nil Policy disables it.
type RateLimit struct {
	Policy    *ratelimit.Policy
	RedisAddr string
}

func (c Config) LogPath() string {
	return filepath.Join(c.DataDir, LogFileName)
}

// New returns a viper instance with defaults and env binding. A non-empty
// cfgFile must exist and parse.
func New(cfgFile string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyHTTPAddr, "127.0.0.1:8080")
	v.SetDefault(KeyDataDir, "./data")
	v.SetDefault(KeyFsync, true)
	v.SetDefault(KeyEnqueueTimeout, 5*time.Second)
	v.SetDefault(KeyMaxEnqueued, 1024)
	v.SetDefault(KeyShutdownTimeout, 30*time.Second)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	}
	return v, nil
}

// BindFlag makes flag name override key when the flag is set.
func BindFlag(v *viper.Viper, key string, flags *pflag.FlagSet, name string) error {
	f := flags.Lookup(name)
	if f == nil {
		return fmt.Errorf("unknown flag %q", name)
	}
	return v.BindPFlag(key, f)
}

// Load reads a Config out of v.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		HTTPAddr:        v.GetString(KeyHTTPAddr),
		DataDir:         v.GetString(KeyDataDir),
		Fsync:           v.GetBool(KeyFsync),
		EnqueueTimeout:  v.GetDuration(KeyEnqueueTimeout),
		MaxEnqueued:     v.GetInt(KeyMaxEnqueued),
		AdminDevBypass:  v.GetBool(KeyAdminDevBypass),
		PreviewMode:     v.GetBool(KeyPreviewMode),
		SessionSecret:   v.GetString(KeySessionSecret),
		SigningKey:      v.GetString(KeySigningKey),
		ShutdownTimeout: v.GetDuration(KeyShutdownTimeout),
	}
	if cfg.DataDir == "" {
		return Config{}, errors.New("data_dir must not be empty")
	}

	policy, err := loadRatePolicy(v)
	if err != nil {
		return Config{}, err
	}
	cfg.RateLimit = RateLimit{Policy: policy, RedisAddr: v.GetString(KeyRateRedisAddr)}
	return cfg, nil
}

// loadRatePolicy prefers explicit burst/refill over the legacy string.
func loadRatePolicy(v *viper.Viper) (*ratelimit.Policy, error) {
	if v.IsSet(KeyRateBurst) || v.IsSet(KeyRateRefill) {
		p := ratelimit.Policy{
			Burst:           v.GetInt(KeyRateBurst),
			RefillPerSecond: v.GetFloat64(KeyRateRefill),
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("rate_limit: %w", err)
		}
		return &p, nil
	}
	if legacy := v.GetString(KeyRateLegacy); legacy != "" {
		p, err := ratelimit.ParseLegacy(legacy)
		if err != nil {
			return nil, fmt.Errorf("rate_limit.legacy: %w", err)
		}
		return &p, nil
	}
	return nil, nil
}
