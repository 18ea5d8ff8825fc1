// Package config loads server settings from flags, environment, an optional config file and .env.
//
// Precedence: flags > CS_* environment > config file > .env > defaults.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment key, e.g. CS_APP_SECRET.
const EnvPrefix = "CS"

// MinSecretLen mirrors the key derivation minimum.
const MinSecretLen = 32

// Replay store backends.
const (
	ReplayPostgres = "postgres"
	ReplayMemory   = "memory"
)

// DefaultAllowedDomains is the out-of-the-box video host allow-list.
var DefaultAllowedDomains = []string{
	"youtube.com",
	"youtu.be",
	"vimeo.com",
	"cdn.example.com",
	"video.example.com",
	"file-examples.com",
	"devstreaming-cdn.apple.com",
}

// ErrHelp is returned when --help was requested; usage has already been printed.
var ErrHelp = pflag.ErrHelp

// Videos configures link registration and stream tokens.
type Videos struct {
	AllowedDomains []string
	RequireHTTPS   bool
	HeadTimeout    time.Duration
	TokenTTL       time.Duration
}

// DeepLinks configures deep-link issuance.
type DeepLinks struct {
	TokenTTL       time.Duration
	AppLink        string
	FallbackURL    string
	IOSFallbackURL string
}

// Limiter configures the deep-link login limiter.
type Limiter struct {
	Window   time.Duration
	MaxFails int
	BlockFor time.Duration
}

// Replay configures the replay guard backend.
type Replay struct {
	Store         string
	SweepInterval time.Duration
}

// Health configures the gRPC health endpoint. Empty Addr disables it.
type Health struct {
	Addr    string
	TLSCert string
	TLSKey  string
	Dev     bool
}

// Config is the resolved server configuration.
type Config struct {
	Addr        string
	DSN         string
	AppSecret   []byte
	SessionTTL  time.Duration
	CORSOrigins []string
	Migrate     bool
	LogDev      bool

	Videos    Videos
	DeepLinks DeepLinks
	Limiter   Limiter
	Replay    Replay
	Health    Health
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", ":8080")
	v.SetDefault("dsn", "")
	v.SetDefault("app_secret", "")
	v.SetDefault("session_ttl", 24*time.Hour)
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("migrate", true)
	v.SetDefault("log.dev", false)

	v.SetDefault("videos.allowed_domains", DefaultAllowedDomains)
	v.SetDefault("videos.require_https", true)
	v.SetDefault("videos.head_request_timeout_seconds", 3)
	v.SetDefault("videos.token_ttl_minutes", 5)

	v.SetDefault("deep_links.token_ttl_minutes", 5)
	v.SetDefault("deep_links.app_link", "app://watch")
	v.SetDefault("deep_links.fallback_url", "https://play.google.com/store/apps/details?id=com.hakimyar.hekmat_sara")
	v.SetDefault("deep_links.ios_fallback_url", "https://apps.apple.com/app/hekmat-sara")

	v.SetDefault("limiter.window", 15*time.Minute)
	v.SetDefault("limiter.max_fails", 10)
	v.SetDefault("limiter.block_for", 15*time.Minute)

	v.SetDefault("replay.store", ReplayPostgres)
	v.SetDefault("replay.sweep_interval", time.Minute)

	v.SetDefault("health_addr", ":8081")
	v.SetDefault("health.tls_cert", "")
	v.SetDefault("health.tls_key", "")
	v.SetDefault("health.dev", false)
}

func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", "", "config file (yaml, toml or json)")
	fs.String("env-file", ".env", "dotenv file loaded into the environment when present")
	fs.String("addr", ":8080", "HTTP listen address")
	fs.String("health-addr", ":8081", "gRPC health listen address (empty disables)")
	fs.String("dsn", "", "PostgreSQL DSN")
	fs.String("app-secret", "", "master secret, raw or base64:<key>")
	fs.Bool("migrate", true, "apply migrations on startup")
	fs.Bool("log-dev", false, "development logger")
	fs.String("replay-store", ReplayPostgres, "replay guard backend: postgres or memory")
	fs.String("tls-cert", "", "TLS certificate for the health endpoint (PEM)")
	fs.String("tls-key", "", "TLS private key for the health endpoint (PEM)")
	fs.Bool("dev", false, "enable gRPC reflection on the health endpoint")
	return fs
}

// flag name -> viper key
var flagKeys = map[string]string{
	"addr":         "addr",
	"health-addr":  "health_addr",
	"dsn":          "dsn",
	"app-secret":   "app_secret",
	"migrate":      "migrate",
	"log-dev":      "log.dev",
	"replay-store": "replay.store",
	"tls-cert":     "health.tls_cert",
	"tls-key":      "health.tls_key",
	"dev":          "health.dev",
}

// Load parses args (without the program name) and resolves the configuration.
func Load(args []string) (Config, error) {
	fs := newFlagSet("course-stream")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	envFile, _ := fs.GetString("env-file")
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return Config{}, fmt.Errorf("load %s: %w", envFile, err)
			}
		}
	}

	v := viper.New()
	v.SetTypeByDefaultValue(true)
	setDefaults(v)

	if path, _ := fs.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AllowEmptyEnv(true)
	v.AutomaticEnv()

	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return Config{}, err
		}
	}

	secret, err := DecodeSecret(v.GetString("app_secret"))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Addr:        v.GetString("addr"),
		DSN:         v.GetString("dsn"),
		AppSecret:   secret,
		SessionTTL:  v.GetDuration("session_ttl"),
		CORSOrigins: stringList(v, "cors.allowed_origins"),
		Migrate:     v.GetBool("migrate"),
		LogDev:      v.GetBool("log.dev"),
		Videos: Videos{
			AllowedDomains: stringList(v, "videos.allowed_domains"),
			RequireHTTPS:   v.GetBool("videos.require_https"),
			HeadTimeout:    time.Duration(v.GetInt("videos.head_request_timeout_seconds")) * time.Second,
			TokenTTL:       time.Duration(v.GetInt("videos.token_ttl_minutes")) * time.Minute,
		},
		DeepLinks: DeepLinks{
			TokenTTL:       time.Duration(v.GetInt("deep_links.token_ttl_minutes")) * time.Minute,
			AppLink:        v.GetString("deep_links.app_link"),
			FallbackURL:    v.GetString("deep_links.fallback_url"),
			IOSFallbackURL: v.GetString("deep_links.ios_fallback_url"),
		},
		Limiter: Limiter{
			Window:   v.GetDuration("limiter.window"),
			MaxFails: v.GetInt("limiter.max_fails"),
			BlockFor: v.GetDuration("limiter.block_for"),
		},
		Replay: Replay{
			Store:         strings.ToLower(v.GetString("replay.store")),
			SweepInterval: v.GetDuration("replay.sweep_interval"),
		},
		Health: Health{
			Addr:    v.GetString("health_addr"),
			TLSCert: v.GetString("health.tls_cert"),
			TLSKey:  v.GetString("health.tls_key"),
			Dev:     v.GetBool("health.dev"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.DSN == "":
		return errors.New("config: dsn is required")
	case len(c.AppSecret) < MinSecretLen:
		return fmt.Errorf("config: app_secret must be at least %d bytes", MinSecretLen)
	case c.SessionTTL <= 0:
		return errors.New("config: session_ttl must be positive")
	case len(c.Videos.AllowedDomains) == 0:
		return errors.New("config: videos.allowed_domains is empty")
	case c.Videos.HeadTimeout <= 0:
		return errors.New("config: videos.head_request_timeout_seconds must be positive")
	case c.Videos.TokenTTL <= 0 || c.DeepLinks.TokenTTL <= 0:
		return errors.New("config: token ttl must be positive")
	case c.Limiter.MaxFails <= 0:
		return errors.New("config: limiter.max_fails must be positive")
	case c.Replay.Store != ReplayPostgres && c.Replay.Store != ReplayMemory:
		return fmt.Errorf("config: unknown replay.store %q", c.Replay.Store)
	case (c.Health.TLSCert == "") != (c.Health.TLSKey == ""):
		return errors.New("config: health.tls_cert and health.tls_key must be set together")
	}
	return nil
}

// DecodeSecret accepts a raw secret or "base64:<std-encoded key>".
func DecodeSecret(s string) ([]byte, error) {
	rest, ok := strings.CutPrefix(s, "base64:")
	if !ok {
		return []byte(s), nil
	}
	b, err := base64.StdEncoding.DecodeString(rest)
	if err != nil {
		return nil, fmt.Errorf("config: app_secret: %w", err)
	}
	return b, nil
}

// stringList reads a list from a slice value or a comma-separated string.
func stringList(v *viper.Viper, key string) []string {
	var out []string
	for _, item := range v.GetStringSlice(key) {
		for _, s := range strings.Split(item, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
