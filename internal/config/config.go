package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// MailboxConfig selects and configures the mail source.
type MailboxConfig struct {
	// Source identifies the mail store backend ("gmail" or "imap").
	Source string `mapstructure:"source" yaml:"source"`

	// Query is the unread-search query passed to the mail store.
	Query string `mapstructure:"query" yaml:"query"`

	// MaxEmails caps how many messages one run may accept.
	MaxEmails int `mapstructure:"max_emails" yaml:"max_emails"`

	// IMAP settings, used only when Source is "imap".
	IMAPHost     string `mapstructure:"imap_host" yaml:"imap_host"`
	IMAPPort     string `mapstructure:"imap_port" yaml:"imap_port"`
	IMAPUsername string `mapstructure:"imap_username" yaml:"imap_username"`
	IMAPPassword string `mapstructure:"imap_password" yaml:"imap_password"`
	IMAPTLS      bool   `mapstructure:"imap_tls" yaml:"imap_tls"`
}

// SheetsConfig configures the tabular append target.
type SheetsConfig struct {
	SpreadsheetID string `mapstructure:"spreadsheet_id" yaml:"spreadsheet_id"`
	SheetName     string `mapstructure:"sheet_name" yaml:"sheet_name"`
}

// FilterConfig controls keyword filtering of accepted messages.
type FilterConfig struct {
	Enabled  bool     `mapstructure:"enabled" yaml:"enabled"`
	Keywords []string `mapstructure:"keywords" yaml:"keywords"`
}

// RetryConfig controls the retry budgets for remote calls.
type RetryConfig struct {
	Enabled       bool `mapstructure:"enabled" yaml:"enabled"`
	MaxRetries    int  `mapstructure:"max_retries" yaml:"max_retries"`
	BaseDelaySecs int  `mapstructure:"base_delay_secs" yaml:"base_delay_secs"`
}

// BaseDelay returns the configured base delay as a duration.
func (r RetryConfig) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelaySecs) * time.Second
}

// AuthConfig locates OAuth client credentials and the cached token.
type AuthConfig struct {
	CredentialsFile string   `mapstructure:"credentials_file" yaml:"credentials_file"`
	TokenFile       string   `mapstructure:"token_file" yaml:"token_file"`
	Scopes          []string `mapstructure:"scopes" yaml:"scopes"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
}

// Config is the top-level application configuration.
type Config struct {
	Mailbox     MailboxConfig `mapstructure:"mailbox" yaml:"mailbox"`
	Sheets      SheetsConfig  `mapstructure:"sheets" yaml:"sheets"`
	Filter      FilterConfig  `mapstructure:"filter" yaml:"filter"`
	Retry       RetryConfig   `mapstructure:"retry" yaml:"retry"`
	Auth        AuthConfig    `mapstructure:"auth" yaml:"auth"`
	Log         LogConfig     `mapstructure:"log" yaml:"log"`
	StateFile   string        `mapstructure:"state_file" yaml:"state_file"`
	ArchiveFile string        `mapstructure:"archive_file" yaml:"archive_file"`
}

// mutateScope is the OAuth scope that permits mailbox mutation.
const mutateScope = "https://www.googleapis.com/auth/gmail.modify"

// CanModifyMailbox reports whether the configured scope set permits
// marking messages as read. IMAP sessions always can.
func (c *Config) CanModifyMailbox() bool {
	if c.Mailbox.Source == "imap" {
		return true
	}
	for _, s := range c.Auth.Scopes {
		if strings.Contains(s, "gmail.modify") {
			return true
		}
	}
	return false
}

// DefaultConfigPath returns the default configuration file path,
// preferring ./config.yaml and falling back to
// ~/.config/mailsheets/config.yaml.
func DefaultConfigPath() string {
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".config", "mailsheets", "config.yaml")
}

// defaultConfig returns the configuration used when no file is present.
func defaultConfig() *Config {
	return &Config{
		Mailbox: MailboxConfig{
			Source:    "gmail",
			Query:     "in:inbox is:unread",
			MaxEmails: 5,
			IMAPPort:  "993",
			IMAPTLS:   true,
		},
		Sheets: SheetsConfig{
			SheetName: "Sheet1",
		},
		Filter: FilterConfig{
			Enabled:  false,
			Keywords: []string{"invoice", "order", "payment", "quote"},
		},
		Retry: RetryConfig{
			Enabled:       true,
			MaxRetries:    3,
			BaseDelaySecs: 2,
		},
		Auth: AuthConfig{
			CredentialsFile: filepath.Join("credentials", "credentials.json"),
			TokenFile:       filepath.Join("credentials", "token.json"),
			Scopes: []string{
				"https://www.googleapis.com/auth/gmail.readonly",
				mutateScope,
				"https://www.googleapis.com/auth/spreadsheets",
			},
		},
		Log: LogConfig{
			Level: "info",
			File:  "mailsheets.log",
		},
		StateFile:   "state.json",
		ArchiveFile: "mailsheets.db",
	}
}

// Load reads configuration from the given YAML file path using Viper.
// A missing file yields the default configuration; a malformed one is
// an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("mailbox.source", "gmail")
	v.SetDefault("mailbox.query", "in:inbox is:unread")
	v.SetDefault("mailbox.max_emails", 5)
	v.SetDefault("mailbox.imap_port", "993")
	v.SetDefault("mailbox.imap_tls", true)
	v.SetDefault("sheets.sheet_name", "Sheet1")
	v.SetDefault("filter.enabled", false)
	v.SetDefault("filter.keywords", []string{"invoice", "order", "payment", "quote"})
	v.SetDefault("retry.enabled", true)
	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.base_delay_secs", 2)
	v.SetDefault("auth.credentials_file", filepath.Join("credentials", "credentials.json"))
	v.SetDefault("auth.token_file", filepath.Join("credentials", "token.json"))
	v.SetDefault("auth.scopes", []string{
		"https://www.googleapis.com/auth/gmail.readonly",
		mutateScope,
		"https://www.googleapis.com/auth/spreadsheets",
	})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "mailsheets.log")
	v.SetDefault("state_file", "state.json")
	v.SetDefault("archive_file", "mailsheets.db")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaultConfig(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.Mailbox.MaxEmails < 1 {
		cfg.Mailbox.MaxEmails = 5
	}
	if cfg.Retry.MaxRetries < 0 {
		cfg.Retry.MaxRetries = 0
	}
	if !cfg.Retry.Enabled {
		cfg.Retry.MaxRetries = 0
	}

	return cfg, nil
}

// Validate checks settings that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	switch c.Mailbox.Source {
	case "gmail":
		if c.Auth.CredentialsFile == "" {
			return fmt.Errorf("auth.credentials_file is required for the gmail source")
		}
	case "imap":
		if c.Mailbox.IMAPHost == "" || c.Mailbox.IMAPUsername == "" {
			return fmt.Errorf("mailbox.imap_host and mailbox.imap_username are required for the imap source")
		}
	default:
		return fmt.Errorf("unknown mailbox source %q", c.Mailbox.Source)
	}
	if c.Sheets.SpreadsheetID == "" {
		return fmt.Errorf("sheets.spreadsheet_id is not set")
	}
	return nil
}
