/*
Package config loads deployment configuration.

PURPOSE:
  One typed Config for the whole binary, assembled by viper from three
  layers (later wins):
    1. built-in defaults
    2. an optional YAML file (-config)
    3. environment variables prefixed AVATAR_ (AVATAR_TELEGRAM_TOKEN maps
       to telegram.token)

  Secrets (bot token, backend API key, provider token) normally arrive via
  the environment; the file carries the tunables.

VALIDATION:
  Load fails fast on values the engine cannot run with: a missing bot
  token, an unknown timezone, an unknown selection policy. A config error
  is a deploy error.
*/
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/nanoavatar/avatar-engine/session"
)

// Config is the full deployment configuration.
type Config struct {
	HTTP struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"http"`

	Store struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"store"`

	Telegram struct {
		Token         string `mapstructure:"token"`
		ProviderToken string `mapstructure:"provider_token"`
	} `mapstructure:"telegram"`

	AI struct {
		BaseURL string        `mapstructure:"base_url"`
		APIKey  string        `mapstructure:"api_key"`
		Model   string        `mapstructure:"model"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"ai"`

	Credits struct {
		StartingBalance int64 `mapstructure:"starting_balance"`
		PromptPrice     int64 `mapstructure:"prompt_price"`
	} `mapstructure:"credits"`

	Bonus struct {
		Amount   int64  `mapstructure:"amount"`
		Hour     int    `mapstructure:"hour"`
		Minute   int    `mapstructure:"minute"`
		Timezone string `mapstructure:"timezone"`
	} `mapstructure:"bonus"`

	Payment struct {
		MinTopupRub   int64  `mapstructure:"min_topup_rub"`
		CreditsPerRub int64  `mapstructure:"credits_per_rub"`
		Currency      string `mapstructure:"currency"`
	} `mapstructure:"payment"`

	Session struct {
		Policy string `mapstructure:"policy"` // "single" or "multi"
	} `mapstructure:"session"`
}

// Location resolves the bonus anchor timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Bonus.Timezone)
}

// SelectionPolicy resolves the configured policy.
func (c *Config) SelectionPolicy() session.SelectionPolicy {
	return session.SelectionPolicy(c.Session.Policy)
}

// Load reads configuration from defaults, an optional file, and the
// environment. path may be empty.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("http.port", 8080)
	v.SetDefault("store.path", "avatar.db")
	v.SetDefault("ai.base_url", "https://generativelanguage.googleapis.com/v1beta/openai")
	v.SetDefault("ai.model", "gemini-2.0-flash-exp-image-generation")
	v.SetDefault("ai.timeout", 90*time.Second)
	v.SetDefault("credits.starting_balance", 15)
	v.SetDefault("credits.prompt_price", 1)
	v.SetDefault("bonus.amount", 1)
	v.SetDefault("bonus.hour", 10)
	v.SetDefault("bonus.minute", 0)
	v.SetDefault("bonus.timezone", "Europe/Moscow")
	v.SetDefault("payment.min_topup_rub", 100)
	v.SetDefault("payment.credits_per_rub", 1)
	v.SetDefault("payment.currency", "RUB")
	v.SetDefault("session.policy", string(session.SelectSingle))

	v.SetEnvPrefix("AVATAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("telegram.token is required (AVATAR_TELEGRAM_TOKEN)")
	}
	if c.AI.APIKey == "" {
		return fmt.Errorf("ai.api_key is required (AVATAR_AI_API_KEY)")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("bonus.timezone: %w", err)
	}
	switch c.SelectionPolicy() {
	case session.SelectSingle, session.SelectMulti:
	default:
		return fmt.Errorf("session.policy must be %q or %q, got %q",
			session.SelectSingle, session.SelectMulti, c.Session.Policy)
	}
	if c.Credits.PromptPrice <= 0 || c.Credits.StartingBalance < 0 {
		return fmt.Errorf("credits: prompt_price must be positive and starting_balance non-negative")
	}
	if c.Bonus.Hour < 0 || c.Bonus.Hour > 23 || c.Bonus.Minute < 0 || c.Bonus.Minute > 59 {
		return fmt.Errorf("bonus: %02d:%02d is not a valid time of day", c.Bonus.Hour, c.Bonus.Minute)
	}
	return nil
}
