package oauth2client

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Default values applied by Config.withDefaults.
const (
	DefaultTokenPath      = "/oauth/token"
	DefaultScope          = "api"
	DefaultProfileURL     = "https://api.slimpay.net"
	DefaultAPIVersion     = "v1"
	DefaultTimeout        = 30 * time.Second
	DefaultConnectTimeout = 10 * time.Second
	DefaultMaxRedirects   = 5
	DefaultUserAgent      = "swift-slimpay-client-go/1.0"
)

// Config holds everything the client needs to reach the payment API.
type Config struct {
	// ClientID is the application's ID.
	ClientID string `yaml:"client-id" json:"client-id"`

	// ClientSecret is the application's secret.
	ClientSecret string `yaml:"client-secret" json:"client-secret"`

	// BaseURL is the API root that relative endpoints are resolved against.
	BaseURL string `yaml:"base-url" json:"base-url"`

	// TokenURL is the token endpoint. Defaults to BaseURL + DefaultTokenPath.
	TokenURL string `yaml:"token-url" json:"token-url"`

	// Scope is the requested permission scope.
	Scope string `yaml:"scope" json:"scope"`

	// ProfileURL and APIVersion build the ALPS profile in the Accept header.
	ProfileURL string `yaml:"profile-url" json:"profile-url"`
	APIVersion string `yaml:"api-version" json:"api-version"`

	// Timeout bounds a whole request, ConnectTimeout only the dial.
	Timeout        time.Duration `yaml:"timeout" json:"timeout"`
	ConnectTimeout time.Duration `yaml:"connect-timeout" json:"connect-timeout"`

	// MaxRedirects is the longest redirect chain followed before a RedirectError. Zero
	// means DefaultMaxRedirects; a negative value follows no redirects at all.
	MaxRedirects int `yaml:"max-redirects" json:"max-redirects"`

	// ProxyURL is an optional http, https or socks5 proxy for outbound requests.
	ProxyURL string `yaml:"proxy-url" json:"proxy-url"`

	UserAgent string `yaml:"user-agent" json:"user-agent"`
}

// Credentials returns the immutable token exchange credentials.
func (c Config) Credentials() Credentials {
	return Credentials{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		TokenURL:     c.TokenURL,
		Scope:        c.Scope,
	}
}

// AcceptHeader is the HAL content negotiation header naming the API profile.
func (c Config) AcceptHeader() string {
	return fmt.Sprintf(`application/hal+json; profile="%s/alps/%s"`, strings.TrimRight(c.ProfileURL, "/"), c.APIVersion)
}

func (c Config) withDefaults() Config {
	if c.TokenURL == "" && c.BaseURL != "" {
		c.TokenURL = strings.TrimRight(c.BaseURL, "/") + DefaultTokenPath
	}
	if c.Scope == "" {
		c.Scope = DefaultScope
	}
	if c.ProfileURL == "" {
		c.ProfileURL = DefaultProfileURL
	}
	if c.APIVersion == "" {
		c.APIVersion = DefaultAPIVersion
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.MaxRedirects == 0 {
		c.MaxRedirects = DefaultMaxRedirects
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	return c
}

// Validate reports the first missing or malformed setting.
func (c Config) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("client-id is required")
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("client-secret is required")
	}
	for name, raw := range map[string]string{"base-url": c.BaseURL, "token-url": c.TokenURL, "profile-url": c.ProfileURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("%s must be an absolute http(s) URL, got %q", name, raw)
		}
	}
	if c.ProxyURL != "" {
		if _, err := url.Parse(c.ProxyURL); err != nil {
			return fmt.Errorf("invalid proxy-url: %w", err)
		}
	}
	return nil
}

// LoadConfig reads a YAML configuration file. ${VAR} references are expanded from the
// environment before parsing, so secrets can stay out of the file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfigFromEnv builds a Config from SLIMPAY_* variables. A .env file in the working
// directory is loaded first when present; variables already set take precedence.
func LoadConfigFromEnv() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		ClientID:     os.Getenv("SLIMPAY_CLIENT_ID"),
		ClientSecret: os.Getenv("SLIMPAY_CLIENT_SECRET"),
		BaseURL:      os.Getenv("SLIMPAY_BASE_URL"),
		TokenURL:     os.Getenv("SLIMPAY_TOKEN_URL"),
		Scope:        os.Getenv("SLIMPAY_SCOPE"),
		ProfileURL:   os.Getenv("SLIMPAY_PROFILE_URL"),
		APIVersion:   os.Getenv("SLIMPAY_API_VERSION"),
		ProxyURL:     os.Getenv("SLIMPAY_PROXY_URL"),
		UserAgent:    os.Getenv("SLIMPAY_USER_AGENT"),
	}

	var err error
	if cfg.Timeout, err = envDuration("SLIMPAY_TIMEOUT"); err != nil {
		return Config{}, err
	}
	if cfg.ConnectTimeout, err = envDuration("SLIMPAY_CONNECT_TIMEOUT"); err != nil {
		return Config{}, err
	}
	if v := os.Getenv("SLIMPAY_MAX_REDIRECTS"); v != "" {
		if cfg.MaxRedirects, err = strconv.Atoi(v); err != nil {
			return Config{}, fmt.Errorf("invalid SLIMPAY_MAX_REDIRECTS: %w", err)
		}
	}

	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func envDuration(key string) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
