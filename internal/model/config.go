package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// ServerConfig holds connection settings for the member platform API.
type ServerConfig struct {
	// BaseURL is the root URL of the platform (e.g., https://hub.example.org).
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// PageSize is the activity feed page size requested from the server.
	PageSize int `mapstructure:"page_size" yaml:"page_size"`

	// DeviceToken, when set, is registered with the platform at startup
	// so pushes reach this device.
	DeviceToken string `mapstructure:"device_token" yaml:"device_token"`
}

// MailConfig holds settings for the optional inbox watcher that surfaces
// platform emails as in-app notifications. Disabled unless a host is set.
type MailConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Host     string `mapstructure:"host" yaml:"host"`
	Port     string `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	TLS      bool   `mapstructure:"tls" yaml:"tls"`

	// FromDomain restricts surfaced mail to senders of this domain
	// (the platform's outbound mail domain). Empty means no filter.
	FromDomain string `mapstructure:"from_domain" yaml:"from_domain"`

	// PollIntervalSec is how often (in seconds) to check the inbox.
	PollIntervalSec int `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`
}

// DisplayConfig holds UI preferences.
type DisplayConfig struct {
	Theme string `mapstructure:"theme" yaml:"theme"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Mail    MailConfig    `mapstructure:"mail" yaml:"mail"`
	Display DisplayConfig `mapstructure:"display" yaml:"display"`

	// LogFile is where structured logs go; the terminal belongs to the UI.
	LogFile string `mapstructure:"log_file" yaml:"log_file"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/memberhub/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "memberhub", "config.yaml")
}

// DefaultDataDir returns the directory holding the local database and logs.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share", "memberhub")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			PageSize: 10,
		},
		Mail: MailConfig{
			Port:            "993",
			TLS:             true,
			PollIntervalSec: 300,
		},
		Display: DisplayConfig{
			Theme: "default",
		},
		LogFile: filepath.Join(DefaultDataDir(), "memberhub.log"),
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("server.page_size", 10)
	v.SetDefault("mail.port", "993")
	v.SetDefault("mail.tls", true)
	v.SetDefault("mail.poll_interval_sec", 300)
	v.SetDefault("display.theme", "default")
	v.SetDefault("log_file", filepath.Join(DefaultDataDir(), "memberhub.log"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaultAppConfig(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaultAppConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.Server.PageSize <= 0 {
		cfg.Server.PageSize = 10
	}
	if cfg.Mail.PollIntervalSec <= 0 {
		cfg.Mail.PollIntervalSec = 300
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("server", cfg.Server)
	v.Set("mail", cfg.Mail)
	v.Set("display", cfg.Display)
	v.Set("log_file", cfg.LogFile)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
