package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/mohammad-safakhou/bulkcart/tools/browser/models"
	"github.com/spf13/viper"
)

// Config holds all configuration for a procurement run
type Config struct {
	General      GeneralConfig      `mapstructure:"general"`
	Storefront   StorefrontConfig   `mapstructure:"storefront"`
	Search       SearchConfig       `mapstructure:"search"`
	Session      SessionConfig      `mapstructure:"session"`
	Browser      BrowserConfig      `mapstructure:"browser"`
	Pacing       PacingConfig       `mapstructure:"pacing"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Sheets       SheetsConfig       `mapstructure:"sheets"`
	Credentials  CredentialsConfig  `mapstructure:"credentials"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry"`
	Schedule     ScheduleConfig     `mapstructure:"schedule"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug bool `mapstructure:"debug"`
}

// StorefrontConfig describes the shop being driven.
type StorefrontConfig struct {
	BaseURL         string            `mapstructure:"base_url"`
	LoginURL        string            `mapstructure:"login_url"`
	AccountURL      string            `mapstructure:"account_url"`
	CodeLabelPrefix string            `mapstructure:"code_label_prefix"`
	Selectors       map[string]string `mapstructure:"selectors"` // role -> CSS selector
}

// Role names understood by the storefront locator.
const (
	RoleConsent           = "consent"
	RoleLoginLink         = "login_link"
	RoleLoginIdentity     = "login_identity"
	RoleLoginSecret       = "login_secret"
	RoleLoginSubmit       = "login_submit"
	RoleAccountMarker     = "account_marker"
	RoleSearchInput       = "search_input"
	RoleSearchSubmit      = "search_submit"
	RoleListingLink       = "listing_link"
	RoleProductCode       = "product_code"
	RoleQuantity          = "quantity"
	RoleAddToCart         = "add_to_cart"
	RoleOverlayClose      = "overlay_close"
	RoleAvailableQuantity = "available_quantity"
)

// DefaultSelectors match the markup of the reference storefront.
var DefaultSelectors = map[string]string{
	RoleConsent:           `input[type="submit"]`,
	RoleLoginLink:         `#icon-navigation > ul > li:nth-child(3) > a`,
	RoleLoginIdentity:     `#register-box > div:nth-child(1) > form > input[type=text]:nth-child(2)`,
	RoleLoginSecret:       `#register-box > div:nth-child(1) > form > input[type=password]:nth-child(4)`,
	RoleLoginSubmit:       `#register-box > div:nth-child(1) > form > button`,
	RoleAccountMarker:     `a[href*="logoff"]`,
	RoleSearchInput:       `input[name="keywords"]`,
	RoleSearchSubmit:      `button[title="Search"]`,
	RoleListingLink:       `h2.product-listing-name a`,
	RoleProductCode:       `.product-info-model`,
	RoleQuantity:          `select[name="cart_quantity"]`,
	RoleAddToCart:         `form > div > button`,
	RoleOverlayClose:      `.modal.show .close, .popup-close`,
	RoleAvailableQuantity: `input[name="avail_products_qty"]`,
}

// Normalize fills unset selector roles and trims URLs.
func (s StorefrontConfig) Normalize() StorefrontConfig {
	s.BaseURL = strings.TrimSpace(s.BaseURL)
	s.LoginURL = strings.TrimSpace(s.LoginURL)
	if s.LoginURL == "" {
		s.LoginURL = s.BaseURL
	}
	s.AccountURL = strings.TrimSpace(s.AccountURL)
	merged := make(map[string]string, len(DefaultSelectors))
	for role, sel := range DefaultSelectors {
		merged[role] = sel
	}
	for role, sel := range s.Selectors {
		role = strings.ToLower(strings.TrimSpace(role))
		if strings.TrimSpace(sel) == "" {
			continue
		}
		merged[role] = sel
	}
	s.Selectors = merged
	return s
}

func (s StorefrontConfig) Validate() error {
	if s.BaseURL == "" {
		return fmt.Errorf("storefront.base_url required")
	}
	for key, raw := range map[string]string{"base_url": s.BaseURL, "login_url": s.LoginURL, "account_url": s.AccountURL} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("storefront.%s must be an absolute url, got %q", key, raw)
		}
	}
	return nil
}

// SearchConfig selects how a code is looked up.
type SearchConfig struct {
	Mode        string `mapstructure:"mode"`         // form or url
	URLTemplate string `mapstructure:"url_template"` // must contain {code} in url mode
}

const (
	SearchModeForm = "form"
	SearchModeURL  = "url"
)

func (s SearchConfig) Validate() error {
	switch s.Mode {
	case SearchModeForm:
		return nil
	case SearchModeURL:
		if !strings.Contains(s.URLTemplate, "{code}") {
			return fmt.Errorf("search.url_template must contain {code} in url mode")
		}
		return nil
	default:
		return fmt.Errorf("search.mode must be %q or %q, got %q", SearchModeForm, SearchModeURL, s.Mode)
	}
}

// SessionConfig controls login and session token reuse.
type SessionConfig struct {
	Store          string          `mapstructure:"store"` // file, redis or memory
	FilePath       string          `mapstructure:"file_path"`
	RedisKey       string          `mapstructure:"redis_key"`
	TTL            time.Duration   `mapstructure:"ttl"`
	Verify         bool            `mapstructure:"verify"`
	FailurePattern string          `mapstructure:"failure_pattern"`
	FailureOnForm  bool            `mapstructure:"failure_on_form"`
	LoginViewport  models.Viewport `mapstructure:"login_viewport"`
}

const (
	SessionStoreFile   = "file"
	SessionStoreRedis  = "redis"
	SessionStoreMemory = "memory"
)

func (s SessionConfig) Validate() error {
	switch s.Store {
	case SessionStoreFile:
		if strings.TrimSpace(s.FilePath) == "" {
			return fmt.Errorf("session.file_path required for the file store")
		}
	case SessionStoreRedis:
		if strings.TrimSpace(s.RedisKey) == "" {
			return fmt.Errorf("session.redis_key required for the redis store")
		}
	case SessionStoreMemory:
	default:
		return fmt.Errorf("session.store must be file, redis or memory, got %q", s.Store)
	}
	if s.FailurePattern != "" {
		if _, err := regexp.Compile(s.FailurePattern); err != nil {
			return fmt.Errorf("session.failure_pattern: %w", err)
		}
	}
	if s.LoginViewport.Width <= 0 || s.LoginViewport.Height <= 0 {
		return fmt.Errorf("session.login_viewport must have positive width and height")
	}
	return nil
}

// BrowserConfig configures the page engine.
type BrowserConfig struct {
	Type      string          `mapstructure:"type"`
	Headless  bool            `mapstructure:"headless"`
	NoSandbox bool            `mapstructure:"no_sandbox"`
	UserAgent string          `mapstructure:"user_agent"`
	ExecPath  string          `mapstructure:"exec_path"`
	Timeout   time.Duration   `mapstructure:"timeout"`
	Viewport  models.Viewport `mapstructure:"viewport"`
}

func (b BrowserConfig) Validate() error {
	if b.Timeout <= 0 {
		return fmt.Errorf("browser.timeout must be > 0")
	}
	if b.Viewport.Width <= 0 || b.Viewport.Height <= 0 {
		return fmt.Errorf("browser.viewport must have positive width and height")
	}
	return nil
}

// PacingConfig holds the settle delays inserted after network-bound steps.
type PacingConfig struct {
	AfterHome            time.Duration `mapstructure:"after_home"`
	AfterLogin           time.Duration `mapstructure:"after_login"`
	AfterSearch          time.Duration `mapstructure:"after_search"`
	AfterProductLoad     time.Duration `mapstructure:"after_product_load"`
	AfterSelect          time.Duration `mapstructure:"after_select"`
	AfterSubmit          time.Duration `mapstructure:"after_submit"`
	BetweenItems         time.Duration `mapstructure:"between_items"`
	NavigationsPerSecond float64       `mapstructure:"navigations_per_second"` // <= 0 disables the limiter
	Burst                int           `mapstructure:"burst"`
}

func (p PacingConfig) Validate() error {
	for name, d := range map[string]time.Duration{
		"after_home":         p.AfterHome,
		"after_login":        p.AfterLogin,
		"after_search":       p.AfterSearch,
		"after_product_load": p.AfterProductLoad,
		"after_select":       p.AfterSelect,
		"after_submit":       p.AfterSubmit,
		"between_items":      p.BetweenItems,
	} {
		if d < 0 {
			return fmt.Errorf("pacing.%s cannot be negative", name)
		}
	}
	if p.Burst < 0 {
		return fmt.Errorf("pacing.burst cannot be negative")
	}
	return nil
}

// OrchestratorConfig tunes the per-item loop.
type OrchestratorConfig struct {
	ResetBetweenItems bool `mapstructure:"reset_between_items"`
}

// SheetsConfig points at the procurement spreadsheet.
type SheetsConfig struct {
	SpreadsheetID   string `mapstructure:"spreadsheet_id"`
	Range           string `mapstructure:"range"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

func (s SheetsConfig) Validate() error {
	if strings.TrimSpace(s.SpreadsheetID) == "" {
		return fmt.Errorf("sheets.spreadsheet_id required")
	}
	if strings.TrimSpace(s.Range) == "" {
		return fmt.Errorf("sheets.range required")
	}
	if strings.TrimSpace(s.CredentialsFile) == "" {
		return fmt.Errorf("sheets.credentials_file required")
	}
	return nil
}

// CredentialsConfig selects where the storefront login comes from.
type CredentialsConfig struct {
	Provider      string `mapstructure:"provider"` // env or secretmanager
	Email         string `mapstructure:"email"`
	Password      string `mapstructure:"password"`
	GCPProject    string `mapstructure:"gcp_project"`
	SecretID      string `mapstructure:"secret_id"`
	SecretVersion string `mapstructure:"secret_version"`
}

const (
	CredentialsProviderEnv           = "env"
	CredentialsProviderSecretManager = "secretmanager"
)

func (c CredentialsConfig) Validate() error {
	switch c.Provider {
	case CredentialsProviderEnv:
		return nil
	case CredentialsProviderSecretManager:
		if strings.TrimSpace(c.GCPProject) == "" || strings.TrimSpace(c.SecretID) == "" {
			return fmt.Errorf("credentials.gcp_project and credentials.secret_id required for secretmanager")
		}
		return nil
	default:
		return fmt.Errorf("credentials.provider must be env or secretmanager, got %q", c.Provider)
	}
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("storage.redis.host required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required")
	}
	return nil
}

// Addr returns host:port.
func (r RedisConfig) Addr() string { return r.Host + ":" + r.Port }

// PostgresConfig contains Postgres connection settings for run history
type PostgresConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN builds a postgres connection string.
func (p PostgresConfig) DSN() (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	if p.URL != "" {
		return p.URL, nil
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     p.Host + ":" + port,
		Path:     "/" + p.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(ssl),
	}
	return u.String(), nil
}

// TelemetryConfig contains metrics and tracing settings
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	MetricsAddr  string `mapstructure:"metrics_addr"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"` // empty disables trace export
}

func (t TelemetryConfig) Validate() error {
	if t.Enabled && strings.TrimSpace(t.MetricsAddr) == "" {
		return fmt.Errorf("telemetry.metrics_addr required when telemetry is enabled")
	}
	return nil
}

// ScheduleConfig drives repeated runs.
type ScheduleConfig struct {
	Cron       string        `mapstructure:"cron"`
	RunOnStart bool          `mapstructure:"run_on_start"`
	Lock       bool          `mapstructure:"lock"` // take a redis lock so one host runs each tick
	LockKey    string        `mapstructure:"lock_key"`
	LockTTL    time.Duration `mapstructure:"lock_ttl"`
}

// Validate is used by the schedule command only; one-off runs need no cron.
func (s ScheduleConfig) Validate() error {
	if strings.TrimSpace(s.Cron) == "" {
		return fmt.Errorf("schedule.cron required")
	}
	if _, err := cronexpr.Parse(s.Cron); err != nil {
		return fmt.Errorf("schedule.cron: %w", err)
	}
	if s.Lock {
		if strings.TrimSpace(s.LockKey) == "" {
			return fmt.Errorf("schedule.lock_key required when locking")
		}
		if s.LockTTL <= 0 {
			return fmt.Errorf("schedule.lock_ttl must be positive")
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.debug", false)

	v.SetDefault("storefront.base_url", "https://www.satnam.de/en/")
	v.SetDefault("storefront.login_url", "")
	v.SetDefault("storefront.account_url", "")
	v.SetDefault("storefront.code_label_prefix", "Item No.:")

	v.SetDefault("search.mode", SearchModeForm)
	v.SetDefault("search.url_template", "")

	v.SetDefault("session.store", SessionStoreFile)
	v.SetDefault("session.file_path", "cookies.json")
	v.SetDefault("session.redis_key", "bulkcart:session")
	v.SetDefault("session.ttl", 7*24*time.Hour)
	v.SetDefault("session.verify", true)
	v.SetDefault("session.failure_pattern", `(?i)login.*(fail|error)`)
	v.SetDefault("session.failure_on_form", false)
	v.SetDefault("session.login_viewport.width", 500)
	v.SetDefault("session.login_viewport.height", 768)

	v.SetDefault("browser.type", "chromedp")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.no_sandbox", true)
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.timeout", 30*time.Second)
	v.SetDefault("browser.viewport.width", 1024)
	v.SetDefault("browser.viewport.height", 768)

	v.SetDefault("pacing.after_home", 3*time.Second)
	v.SetDefault("pacing.after_login", 2*time.Second)
	v.SetDefault("pacing.after_search", 3*time.Second)
	v.SetDefault("pacing.after_product_load", 3*time.Second)
	v.SetDefault("pacing.after_select", time.Second)
	v.SetDefault("pacing.after_submit", 5*time.Second)
	v.SetDefault("pacing.between_items", 2*time.Second)
	v.SetDefault("pacing.navigations_per_second", 1.0)
	v.SetDefault("pacing.burst", 2)

	v.SetDefault("orchestrator.reset_between_items", false)

	v.SetDefault("sheets.spreadsheet_id", "")
	v.SetDefault("sheets.range", "Sheet1!A:B")
	v.SetDefault("sheets.credentials_file", "./credential.json")

	v.SetDefault("credentials.provider", CredentialsProviderEnv)
	v.SetDefault("credentials.email", "")
	v.SetDefault("credentials.password", "")
	v.SetDefault("credentials.gcp_project", "")
	v.SetDefault("credentials.secret_id", "")
	v.SetDefault("credentials.secret_version", "latest")

	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", "6379")
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.timeout", 5*time.Second)
	v.SetDefault("storage.postgres.enabled", false)
	v.SetDefault("storage.postgres.url", "")
	v.SetDefault("storage.postgres.host", "")
	v.SetDefault("storage.postgres.port", "5432")
	v.SetDefault("storage.postgres.user", "")
	v.SetDefault("storage.postgres.password", "")
	v.SetDefault("storage.postgres.dbname", "")
	v.SetDefault("storage.postgres.sslmode", "disable")
	v.SetDefault("storage.postgres.timeout", 5*time.Second)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.metrics_addr", ":9464")
	v.SetDefault("telemetry.otlp_endpoint", "")

	v.SetDefault("schedule.cron", "")
	v.SetDefault("schedule.run_on_start", false)
	v.SetDefault("schedule.lock", false)
	v.SetDefault("schedule.lock_key", "bulkcart:lock:batch")
	v.SetDefault("schedule.lock_ttl", 2*time.Hour)
}

// LoadConfig loads config from path, or from the default search locations
// when path is empty. A missing default config file is not an error.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	setDefaults(v)

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		if exe, err := os.Executable(); err == nil {
			exeDir := filepath.Dir(exe)
			v.AddConfigPath(exeDir)
			v.AddConfigPath(filepath.Join(exeDir, "..", "config"))
		}
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("BULKCART")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv() // BULKCART_* overrides

	// plain names kept for environments prepared for the original tooling
	_ = v.BindEnv("credentials.email", "BULKCART_CREDENTIALS_EMAIL", "EMAIL")
	_ = v.BindEnv("credentials.password", "BULKCART_CREDENTIALS_PASSWORD", "PASSWORD")
	_ = v.BindEnv("sheets.spreadsheet_id", "BULKCART_SHEETS_SPREADSHEET_ID", "SPREADSHEET_ID")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Storefront = cfg.Storefront.Normalize()
	cfg.Search.Mode = strings.ToLower(strings.TrimSpace(cfg.Search.Mode))
	cfg.Session.Store = strings.ToLower(strings.TrimSpace(cfg.Session.Store))
	cfg.Credentials.Provider = strings.ToLower(strings.TrimSpace(cfg.Credentials.Provider))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section needed by all commands. Sheets and
// credentials are validated by the commands that use them.
func (c *Config) Validate() error {
	validators := []func() error{
		c.Storefront.Validate,
		c.Search.Validate,
		c.Session.Validate,
		c.Browser.Validate,
		c.Pacing.Validate,
		c.Telemetry.Validate,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}
	if c.Session.Store == SessionStoreRedis || c.Schedule.Lock {
		if err := c.Storage.Redis.Validate(); err != nil {
			return err
		}
	}
	if c.Storage.Postgres.Enabled {
		if err := c.Storage.Postgres.Validate(); err != nil {
			return err
		}
	}
	return nil
}
