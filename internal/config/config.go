// internal/config/config.go - Fleet registry and runtime configuration
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"solarwatch/internal/status"
)

type Config struct {
	Logging    LoggingConfig    `yaml:"logging"`
	Database   DatabaseConfig   `yaml:"database"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Growatt    GrowattConfig    `yaml:"growatt"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	Browser    BrowserConfig    `yaml:"browser"`
	Web        WebConfig        `yaml:"web"`
	Sites      []Site           `yaml:"sites"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`        // empty disables file logging
	MaxSizeMB  int    `yaml:"max_size_mb"` // rotation threshold
	MaxBackups int    `yaml:"max_backups"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type MonitoringConfig struct {
	Interval           time.Duration `yaml:"interval"`
	APIWorkers         int           `yaml:"api_workers"`
	BrowserSessions    int           `yaml:"browser_sessions"`
	RenewalWarningDays int           `yaml:"renewal_warning_days"`
}

// GrowattConfig covers the vendor telemetry API shared by every ApiPoll
// site. Tokens themselves are per site and resolved from the environment.
type GrowattConfig struct {
	BaseURL        string        `yaml:"base_url"`
	Timeout        time.Duration `yaml:"timeout"`
	UTCOffsetHours int           `yaml:"utc_offset_hours"` // zone of last_update_time strings
	RatePerSecond  float64       `yaml:"rate_per_second"`
}

// GatewayConfig describes the outbound message gateway used for alerts.
type GatewayConfig struct {
	Enabled   bool          `yaml:"enabled"`
	BaseURL   string        `yaml:"base_url"`
	Instance  string        `yaml:"instance"`
	APIKeyEnv string        `yaml:"api_key_env"`
	Number    string        `yaml:"number"`
	Timeout   time.Duration `yaml:"timeout"`
	DelayMS   int           `yaml:"delay_ms"`
	Template  string        `yaml:"template"` // optional override of the alert text
}

type BrowserConfig struct {
	BinaryPath   string        `yaml:"binary_path"` // empty lets chromedp find Chrome
	LoginTimeout time.Duration `yaml:"login_timeout"`
	LocatorWait  time.Duration `yaml:"locator_wait"`
	SettleDelay  time.Duration `yaml:"settle_delay"`
	DebugDir     string        `yaml:"debug_dir"`
	WindowWidth  int           `yaml:"window_width"`
	WindowHeight int           `yaml:"window_height"`
}

type WebConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Port         string        `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	MetricsPath  string        `yaml:"metrics_path"`
}

// Acquisition kinds. Exactly one applies per site.
const (
	KindGrowattAPI    = "growatt_api"
	KindBrowserLogin  = "browser_login"
	KindCookieSession = "cookie_session"
)

// Site describes one monitored installation. Which fields are required
// depends on the acquisition kind; Load validates that at startup.
type Site struct {
	Name    string `yaml:"name"`
	Contact string `yaml:"contact"`
	Kind    string `yaml:"kind"`

	// growatt_api
	PlantID  int64  `yaml:"plant_id"`
	TokenEnv string `yaml:"token_env"`

	// browser_login (also the fallback path for growatt_api sites)
	LoginURL     string `yaml:"login_url"`
	UsernameEnv  string `yaml:"username_env"`
	PasswordEnv  string `yaml:"password_env"`
	UserField    string `yaml:"user_field"`
	PassField    string `yaml:"pass_field"`
	SubmitButton string `yaml:"submit_button"`

	// cookie_session
	DashboardURL string `yaml:"dashboard_url"`
	CookieFile   string `yaml:"cookie_file"`

	// shared by the browser paths
	StatusLocator         string   `yaml:"status_locator"`
	FallbackStatusLocator string   `yaml:"fallback_status_locator"`
	OnlineToken           string   `yaml:"online_token"`
	OfflineMarkers        []string `yaml:"offline_markers"`

	// classification thresholds
	OnlinePowerThresholdKW float64 `yaml:"online_power_threshold_kw"`
	OfflineAfterMinutes    int     `yaml:"offline_after_minutes"`
	ErrorAfterMinutes      int     `yaml:"error_after_minutes"`
}

// Thresholds returns the classifier inputs for this site.
func (s *Site) Thresholds() status.Thresholds {
	return status.Thresholds{
		OnlinePowerKW:  s.OnlinePowerThresholdKW,
		OfflineAfter:   time.Duration(s.OfflineAfterMinutes) * time.Minute,
		ErrorAfter:     time.Duration(s.ErrorAfterMinutes) * time.Minute,
		OnlineToken:    s.OnlineToken,
		OfflineMarkers: s.OfflineMarkers,
	}
}

// HasLoginFallback reports whether an ApiPoll site carries enough
// browser-login configuration to attempt the secondary strategy.
func (s *Site) HasLoginFallback() bool {
	return s.LoginURL != "" && s.UsernameEnv != "" && s.PasswordEnv != "" &&
		s.UserField != "" && s.PassField != "" && s.SubmitButton != "" &&
		s.StatusLocator != ""
}

func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	setDefaults(&config)

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults(config *Config) {
	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
	if config.Logging.Format == "" {
		config.Logging.Format = "text"
	}
	if config.Logging.MaxSizeMB == 0 {
		config.Logging.MaxSizeMB = 1
	}
	if config.Logging.MaxBackups == 0 {
		config.Logging.MaxBackups = 5
	}

	if config.Database.Path == "" {
		config.Database.Path = "data/solarwatch.db"
	}

	if config.Monitoring.Interval == 0 {
		config.Monitoring.Interval = 5 * time.Minute
	}
	if config.Monitoring.APIWorkers == 0 {
		config.Monitoring.APIWorkers = 8
	}
	if config.Monitoring.BrowserSessions == 0 {
		config.Monitoring.BrowserSessions = 2
	}
	if config.Monitoring.RenewalWarningDays == 0 {
		config.Monitoring.RenewalWarningDays = 5
	}

	if config.Growatt.BaseURL == "" {
		config.Growatt.BaseURL = "https://openapi.growatt.com/v1"
	}
	if config.Growatt.Timeout == 0 {
		config.Growatt.Timeout = 15 * time.Second
	}
	if config.Growatt.UTCOffsetHours == 0 {
		config.Growatt.UTCOffsetHours = -3
	}
	if config.Growatt.RatePerSecond == 0 {
		config.Growatt.RatePerSecond = 1
	}

	if config.Gateway.Timeout == 0 {
		config.Gateway.Timeout = 15 * time.Second
	}
	if config.Gateway.DelayMS == 0 {
		config.Gateway.DelayMS = 1200
	}
	if config.Gateway.APIKeyEnv == "" {
		config.Gateway.APIKeyEnv = "GATEWAY_API_KEY"
	}

	if config.Browser.LoginTimeout == 0 {
		config.Browser.LoginTimeout = 90 * time.Second
	}
	if config.Browser.LocatorWait == 0 {
		config.Browser.LocatorWait = 30 * time.Second
	}
	if config.Browser.SettleDelay == 0 {
		config.Browser.SettleDelay = 8 * time.Second
	}
	if config.Browser.DebugDir == "" {
		config.Browser.DebugDir = "debug"
	}
	if config.Browser.WindowWidth == 0 {
		config.Browser.WindowWidth = 1920
	}
	if config.Browser.WindowHeight == 0 {
		config.Browser.WindowHeight = 1080
	}

	if config.Web.Port == "" {
		config.Web.Port = ":8080"
	}
	if config.Web.ReadTimeout == 0 {
		config.Web.ReadTimeout = 10 * time.Second
	}
	if config.Web.WriteTimeout == 0 {
		config.Web.WriteTimeout = 10 * time.Second
	}
	if config.Web.MetricsPath == "" {
		config.Web.MetricsPath = "/metrics"
	}

	for i := range config.Sites {
		site := &config.Sites[i]
		if site.OnlinePowerThresholdKW == 0 {
			site.OnlinePowerThresholdKW = 0.1
		}
		if site.OfflineAfterMinutes == 0 {
			site.OfflineAfterMinutes = 10
		}
		if site.ErrorAfterMinutes == 0 {
			site.ErrorAfterMinutes = 240
		}
	}
}

func validate(config *Config) error {
	if len(config.Sites) == 0 {
		return fmt.Errorf("no sites configured")
	}

	seen := make(map[string]bool)
	for i := range config.Sites {
		site := &config.Sites[i]
		if site.Name == "" {
			return fmt.Errorf("site %d: name is required", i)
		}
		if seen[site.Name] {
			return fmt.Errorf("site %q: duplicate name", site.Name)
		}
		seen[site.Name] = true

		if err := validateSite(site); err != nil {
			return fmt.Errorf("site %q: %w", site.Name, err)
		}
	}

	if config.Gateway.Enabled {
		if config.Gateway.BaseURL == "" {
			return fmt.Errorf("gateway: base_url is required")
		}
		if config.Gateway.Instance == "" {
			return fmt.Errorf("gateway: instance is required")
		}
		if config.Gateway.Number == "" {
			return fmt.Errorf("gateway: number is required")
		}
	}

	return nil
}

func validateSite(site *Site) error {
	switch site.Kind {
	case KindGrowattAPI:
		if site.PlantID == 0 {
			return fmt.Errorf("plant_id is required for %s", site.Kind)
		}
		if site.TokenEnv == "" {
			return fmt.Errorf("token_env is required for %s", site.Kind)
		}
	case KindBrowserLogin:
		if !site.HasLoginFallback() {
			return fmt.Errorf("login_url, username_env, password_env, user_field, pass_field, submit_button and status_locator are required for %s", site.Kind)
		}
		if site.OnlineToken == "" {
			return fmt.Errorf("online_token is required for %s", site.Kind)
		}
	case KindCookieSession:
		if site.DashboardURL == "" {
			return fmt.Errorf("dashboard_url is required for %s", site.Kind)
		}
		if site.CookieFile == "" {
			return fmt.Errorf("cookie_file is required for %s", site.Kind)
		}
		if site.StatusLocator == "" {
			return fmt.Errorf("status_locator is required for %s", site.Kind)
		}
		if site.OnlineToken == "" {
			return fmt.Errorf("online_token is required for %s", site.Kind)
		}
	case "":
		return fmt.Errorf("kind is required")
	default:
		return fmt.Errorf("unknown kind %q", site.Kind)
	}

	if site.OfflineAfterMinutes >= site.ErrorAfterMinutes {
		return fmt.Errorf("offline_after_minutes must be below error_after_minutes")
	}

	return nil
}
