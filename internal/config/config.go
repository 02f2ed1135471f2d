// Package config resolves server settings with precedence
// defaults < config file < .env < environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type ConfigOption struct {
	Key     string
	Default any
	Comment string
}

// GetConfigOptions returns every option with its default and meaning.
func GetConfigOptions() []ConfigOption {
	return []ConfigOption{
		{Key: "http_addr", Default: ":8080", Comment: "HTTP listen address"},
		{Key: "log_level", Default: "info", Comment: "debug, info, warn or error"},
		{Key: "base_url", Default: "http://localhost:8080", Comment: "Public URL of this server, used in QR hand-off links"},

		{Key: "platform.api_base", Default: "https://discord.com/api/v10", Comment: "Platform REST API base URL"},
		{Key: "platform.token", Default: "", Comment: "Bot token for the REST API and the gateway"},
		{Key: "platform.gateway_url", Default: "", Comment: "Gateway websocket URL; empty disables the live feed"},
		{Key: "platform.requests_per_second", Default: 40.0, Comment: "Outbound REST rate limit"},
		{Key: "platform.burst", Default: 10, Comment: "Outbound REST burst size"},

		{Key: "cache.backend", Default: "memory", Comment: "memory or redis"},
		{Key: "cache.redis_url", Default: "", Comment: "redis:// URL, required when cache.backend is redis"},
		{Key: "cache.max_entries", Default: 10000, Comment: "Memory backend entry limit"},
		{Key: "cache.reference_ttl", Default: "10m", Comment: "How long fetched reply and forward targets stay cached"},

		{Key: "channel.window_size", Default: 100, Comment: "Messages kept per channel window"},
		{Key: "archive.path", Default: "", Comment: "SQLite message archive; empty disables it"},

		{Key: "render.default_timezone", Default: "UTC", Comment: "IANA zone for viewers without one"},
		{Key: "render.reference_workers", Default: 8, Comment: "Concurrent reply/forward target fetches per render"},
		{Key: "render.forward_preview_chars", Default: 100, Comment: "Characters of forwarded text shown before truncation"},
	}
}

func applyDefaults(v *viper.Viper) {
	for _, o := range GetConfigOptions() {
		v.SetDefault(o.Key, o.Default)
	}
}

// Load fills v from defaults, the first config file found, a .env file in
// the working directory and CHATVIEW_* environment variables.
func Load(v *viper.Viper) error {
	if v.ConfigFileUsed() == "" {
		v.SetConfigName("config")
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			v.AddConfigPath(filepath.Join(xdg, "chatview"))
		}
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "chatview"))
		}
		v.AddConfigPath(".")
	}

	applyDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	// .env only fills variables the process environment leaves unset.
	_ = godotenv.Load(".env")

	v.SetEnvPrefix("chatview")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return nil
}

// Config is the typed view of a loaded viper instance.
type Config struct {
	HTTPAddr string
	LogLevel string
	BaseURL  string

	APIBase           string
	Token             string
	GatewayURL        string
	RequestsPerSecond float64
	Burst             int

	CacheBackend string
	RedisURL     string
	MaxEntries   int
	ReferenceTTL time.Duration

	WindowSize  int
	ArchivePath string

	DefaultTimezone     string
	ReferenceWorkers    int
	ForwardPreviewChars int
}

// FromViper reads a Config out of v. Call CheckConfigValidity first.
func FromViper(v *viper.Viper) Config {
	return Config{
		HTTPAddr:            v.GetString("http_addr"),
		LogLevel:            v.GetString("log_level"),
		BaseURL:             strings.TrimRight(v.GetString("base_url"), "/"),
		APIBase:             v.GetString("platform.api_base"),
		Token:               v.GetString("platform.token"),
		GatewayURL:          v.GetString("platform.gateway_url"),
		RequestsPerSecond:   v.GetFloat64("platform.requests_per_second"),
		Burst:               v.GetInt("platform.burst"),
		CacheBackend:        v.GetString("cache.backend"),
		RedisURL:            v.GetString("cache.redis_url"),
		MaxEntries:          v.GetInt("cache.max_entries"),
		ReferenceTTL:        v.GetDuration("cache.reference_ttl"),
		WindowSize:          v.GetInt("channel.window_size"),
		ArchivePath:         v.GetString("archive.path"),
		DefaultTimezone:     v.GetString("render.default_timezone"),
		ReferenceWorkers:    v.GetInt("render.reference_workers"),
		ForwardPreviewChars: v.GetInt("render.forward_preview_chars"),
	}
}

// CheckConfigValidity reports every invalid option in one error.
func CheckConfigValidity(v *viper.Viper) error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if strings.TrimSpace(v.GetString("http_addr")) == "" {
		fail("http_addr is required")
	}
	switch strings.ToLower(v.GetString("log_level")) {
	case "debug", "info", "warn", "warning", "error":
	default:
		fail("log_level %q is not one of debug, info, warn, error", v.GetString("log_level"))
	}
	if !isHTTPURL(v.GetString("base_url")) {
		fail("base_url must be an http(s) URL")
	}
	if !isHTTPURL(v.GetString("platform.api_base")) {
		fail("platform.api_base must be an http(s) URL")
	}
	if gw := v.GetString("platform.gateway_url"); gw != "" {
		u, err := url.Parse(gw)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			fail("platform.gateway_url must be a ws(s) URL")
		}
		if v.GetString("platform.token") == "" {
			fail("platform.token is required when platform.gateway_url is set")
		}
	}
	if v.GetFloat64("platform.requests_per_second") < 0 {
		fail("platform.requests_per_second must not be negative")
	}
	if v.GetInt("platform.burst") <= 0 {
		fail("platform.burst must be greater than 0")
	}

	switch v.GetString("cache.backend") {
	case "memory":
	case "redis":
		if v.GetString("cache.redis_url") == "" {
			fail("cache.redis_url is required for the redis backend")
		}
	default:
		fail("cache.backend %q is not memory or redis", v.GetString("cache.backend"))
	}
	if v.GetInt("cache.max_entries") <= 0 {
		fail("cache.max_entries must be greater than 0")
	}
	if d, err := time.ParseDuration(v.GetString("cache.reference_ttl")); err != nil || d <= 0 {
		fail("cache.reference_ttl must be a positive duration")
	}

	if v.GetInt("channel.window_size") <= 0 {
		fail("channel.window_size must be greater than 0")
	}
	if tz := v.GetString("render.default_timezone"); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			fail("render.default_timezone %q is not a known zone", tz)
		}
	}
	if v.GetInt("render.reference_workers") <= 0 {
		fail("render.reference_workers must be greater than 0")
	}
	if v.GetInt("render.forward_preview_chars") <= 0 {
		fail("render.forward_preview_chars must be greater than 0")
	}
	return errors.Join(errs...)
}

func isHTTPURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
