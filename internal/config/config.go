// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Portal() PortalConfig
	Login() LoginConfig

	// Browser Setters
	SetBrowserHeadless(bool)
	SetBrowserDriver(string)

	// Login Setters
	SetLoginHoldOpen(bool)
	SetLoginWaitTimeout(d time.Duration)
}

// Config holds the entire application configuration.
// Fields are exported so viper can populate them; callers go through the getters.
type Config struct {
	LoggerCfg  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	BrowserCfg BrowserConfig `mapstructure:"browser" yaml:"browser"`
	PortalCfg  PortalConfig  `mapstructure:"portal" yaml:"portal"`
	LoginCfg   LoginConfig   `mapstructure:"login" yaml:"login"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig   { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig { return c.BrowserCfg }
func (c *Config) Portal() PortalConfig   { return c.PortalCfg }
func (c *Config) Login() LoginConfig     { return c.LoginCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserHeadless(b bool)  { c.BrowserCfg.Headless = b }
func (c *Config) SetBrowserDriver(d string)  { c.BrowserCfg.Driver = d }
func (c *Config) SetLoginHoldOpen(b bool)    { c.LoginCfg.HoldOpen = b }
func (c *Config) SetLoginWaitTimeout(d time.Duration) {
	c.LoginCfg.WaitTimeout = d
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// Supported browser automation drivers.
const (
	DriverChromedp   = "chromedp"
	DriverPlaywright = "playwright"
	DriverRod        = "rod"
)

// BrowserConfig holds settings for the automated browser instance.
type BrowserConfig struct {
	Driver         string         `mapstructure:"driver" yaml:"driver"`
	Headless       bool           `mapstructure:"headless" yaml:"headless"`
	Locale         string         `mapstructure:"locale" yaml:"locale"`
	DisableGPU     bool           `mapstructure:"disable_gpu" yaml:"disable_gpu"`
	ExecPath       string         `mapstructure:"exec_path" yaml:"exec_path"`
	Args           []string       `mapstructure:"args" yaml:"args"`
	Viewport       map[string]int `mapstructure:"viewport" yaml:"viewport"`
	Install        bool           `mapstructure:"install" yaml:"install"`
	InstallTimeout time.Duration  `mapstructure:"install_timeout" yaml:"install_timeout"`
}

// PortalConfig describes the identity provider entry point and its markup.
type PortalConfig struct {
	LoginURL          string         `mapstructure:"login_url" yaml:"login_url"`
	NavigationTimeout time.Duration  `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	Selectors         SelectorConfig `mapstructure:"selectors" yaml:"selectors"`
}

// SelectorConfig maps each logical UI role to the CSS selector that finds it.
type SelectorConfig struct {
	Username     string `mapstructure:"username" yaml:"username"`
	Password     string `mapstructure:"password" yaml:"password"`
	Submit       string `mapstructure:"submit" yaml:"submit"`
	OTP          string `mapstructure:"otp" yaml:"otp"`
	StaySignedIn string `mapstructure:"stay_signed_in" yaml:"stay_signed_in"`
}

// LoginConfig tunes the login sequence.
type LoginConfig struct {
	WaitTimeout time.Duration `mapstructure:"wait_timeout" yaml:"wait_timeout"`
	// HoldOpen keeps the authenticated page open until a key is pressed.
	HoldOpen bool `mapstructure:"hold_open" yaml:"hold_open"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "entra-login")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 7)
	v.SetDefault("logger.compress", false)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.driver", DriverChromedp)
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.args", []string{})
	v.SetDefault("browser.viewport.width", 0)
	v.SetDefault("browser.viewport.height", 0)
	v.SetDefault("browser.locale", "en-GB")
	v.SetDefault("browser.disable_gpu", false)
	v.SetDefault("browser.install", false)
	v.SetDefault("browser.install_timeout", "5m")

	// -- Portal --
	v.SetDefault("portal.login_url", "https://www.microsoft365.com/login")
	v.SetDefault("portal.navigation_timeout", "60s")
	v.SetDefault("portal.selectors.username", "input[type=email]")
	v.SetDefault("portal.selectors.password", "input[type=password]")
	v.SetDefault("portal.selectors.submit", "input[type=submit]")
	v.SetDefault("portal.selectors.otp", "input[name=otc]")
	v.SetDefault("portal.selectors.stay_signed_in", "#KmsiCheckboxField")

	// -- Login --
	v.SetDefault("login.wait_timeout", "30s")
	v.SetDefault("login.hold_open", true)
}

// EnvPrefix is prepended to every environment override, e.g. ENTRALOGIN_BROWSER_DRIVER.
const EnvPrefix = "ENTRALOGIN"

// BindEnvironment enables environment variable overrides for every key
// SetDefaults registers. List values such as browser.args are comma separated.
// Credentials are positional arguments only and have no key here.
func BindEnvironment(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves a leading "~" in user supplied file paths.
func (c *Config) expandPaths() error {
	logFile, err := homedir.Expand(c.LoggerCfg.LogFile)
	if err != nil {
		return fmt.Errorf("logger.log_file: %w", err)
	}
	c.LoggerCfg.LogFile = logFile

	execPath, err := homedir.Expand(c.BrowserCfg.ExecPath)
	if err != nil {
		return fmt.Errorf("browser.exec_path: %w", err)
	}
	c.BrowserCfg.ExecPath = execPath
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.BrowserCfg.Validate(); err != nil {
		return fmt.Errorf("browser configuration invalid: %w", err)
	}
	if err := c.PortalCfg.Validate(); err != nil {
		return fmt.Errorf("portal configuration invalid: %w", err)
	}
	if c.LoginCfg.WaitTimeout <= 0 {
		return fmt.Errorf("login.wait_timeout must be a positive duration")
	}
	return nil
}

// Validate checks the browser settings.
func (b *BrowserConfig) Validate() error {
	switch strings.ToLower(b.Driver) {
	case DriverChromedp, DriverPlaywright, DriverRod:
	default:
		return fmt.Errorf("driver must be one of %q, %q or %q, got %q", DriverChromedp, DriverPlaywright, DriverRod, b.Driver)
	}
	if b.Install && b.InstallTimeout <= 0 {
		return fmt.Errorf("install_timeout must be a positive duration when install is enabled")
	}
	return nil
}

// Validate checks the portal settings, including that every selector role is populated.
func (p *PortalConfig) Validate() error {
	u, err := url.Parse(p.LoginURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("login_url must be an absolute URL, got %q", p.LoginURL)
	}
	if p.NavigationTimeout <= 0 {
		return fmt.Errorf("navigation_timeout must be a positive duration")
	}

	roles := []struct{ name, selector string }{
		{"username", p.Selectors.Username},
		{"password", p.Selectors.Password},
		{"submit", p.Selectors.Submit},
		{"otp", p.Selectors.OTP},
		{"stay_signed_in", p.Selectors.StaySignedIn},
	}
	for _, r := range roles {
		if strings.TrimSpace(r.selector) == "" {
			return fmt.Errorf("selectors.%s must not be empty", r.name)
		}
	}
	return nil
}
