// Package config
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

/*
YAML settings example:

api_key: "..."
api_secret: "..."
notifier: "sns" # "sns", "telegram", or "" to disable notifications
sns:
  topic_arn: "arn:aws:sns:us-east-1:123456789012:trading-alerts"
  region: "us-east-1"
  access_key_id: "..."
  secret_access_key: "..."
telegram:
  token: "..."
  chat_id: "..."
*/

// Settings holds credentials and the notification side channel, loaded from
// the YAML settings file with environment variable fallback.
type Settings struct {
	APIKey    string           `yaml:"api_key"`
	APISecret string           `yaml:"api_secret"`
	Notifier  string           `yaml:"notifier"`
	SNS       SNSSettings      `yaml:"sns"`
	Telegram  TelegramSettings `yaml:"telegram"`
}

type SNSSettings struct {
	TopicARN        string `yaml:"topic_arn"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type TelegramSettings struct {
	Token  string `yaml:"token"`
	ChatID string `yaml:"chat_id"`
}

// Config is everything one run needs.
type Config struct {
	Market         string
	Side           string
	Amount         string
	AmountCurrency string

	Sandbox      bool
	JobMode      bool
	WarnAfter    time.Duration
	PollInterval time.Duration
	LogLevel     string
	SettingsFile string

	Settings Settings
}

// Load parses flags and positional arguments (MARKET SIDE AMOUNT
// AMOUNT_CURRENCY) and reads the settings file.
func Load(args []string) (Config, error) {
	fs := flag.NewFlagSet("dcabot", flag.ContinueOnError)
	sandbox := fs.Bool("sandbox", false, "Run against the exchange testnet, skips the confirmation prompt")
	job := fs.Bool("job", false, "Suppress the confirmation prompt (for cron jobs)")
	warnAfter := fs.Duration("warn-after", 5*time.Minute, "How long to wait before warning that the order is unfilled")
	pollInterval := fs.Duration("poll-interval", time.Minute, "Delay between order status checks")
	settingsFile := fs.String("config", "settings.yaml", "Path to the YAML settings file")
	logLevel := fs.String("log-level", "info", "Log level: debug, info, warn, error")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: dcabot [flags] MARKET SIDE AMOUNT AMOUNT_CURRENCY\n\n")
		fmt.Fprintf(fs.Output(), "Examples:\n")
		fmt.Fprintf(fs.Output(), "  dcabot BTCUSDT BUY 14 USDT     buy 14 USDT worth of BTC\n")
		fmt.Fprintf(fs.Output(), "  dcabot BTCUSDT BUY 0.00125 BTC buy 0.00125 BTC\n")
		fmt.Fprintf(fs.Output(), "  dcabot -j ETHBTC SELL 0.1 ETH  sell 0.1 ETH without confirmation\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	rest := fs.Args()
	if len(rest) != 4 {
		fs.Usage()
		return Config{}, errors.New("expected arguments: MARKET SIDE AMOUNT AMOUNT_CURRENCY")
	}

	settings, err := loadSettings(*settingsFile)
	if err != nil {
		return Config{}, err
	}

	return Config{
		Market:         rest[0],
		Side:           rest[1],
		Amount:         rest[2],
		AmountCurrency: rest[3],
		Sandbox:        *sandbox,
		JobMode:        *job,
		WarnAfter:      *warnAfter,
		PollInterval:   *pollInterval,
		LogLevel:       *logLevel,
		SettingsFile:   *settingsFile,
		Settings:       settings,
	}, nil
}

// loadSettings reads the YAML settings file. A missing file is fine for
// env-only setups; missing fields fall back to environment variables.
func loadSettings(path string) (Settings, error) {
	var s Settings

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// Env-only setup.
	case err != nil:
		return Settings{}, fmt.Errorf("reading settings file %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &s); err != nil {
			return Settings{}, fmt.Errorf("parsing settings file %s: %w", path, err)
		}
	}

	if s.APIKey == "" {
		s.APIKey = os.Getenv("DCABOT_API_KEY")
	}
	if s.APISecret == "" {
		s.APISecret = os.Getenv("DCABOT_API_SECRET")
	}
	return s, nil
}
