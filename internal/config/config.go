package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log       LoggingConfig   `yaml:"log"`
	REST      RESTConfig      `yaml:"rest"`
	WS        WSConfig        `yaml:"ws"`
	State     StateConfig     `yaml:"state"`
	Strategy  StrategyConfig  `yaml:"strategy"`
	Fees      FeesConfig      `yaml:"fees"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Timescale TimescaleConfig `yaml:"timescale"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type RESTConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type WSConfig struct {
	URL            string        `yaml:"url"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	PingInterval   time.Duration `yaml:"ping_interval"`
}

type StateConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type StrategyConfig struct {
	// Coin is the perp name. SpotPair defaults to Coin/USDC.
	Coin             string        `yaml:"coin"`
	SpotPair         string        `yaml:"spot_pair"`
	FundingInterval  time.Duration `yaml:"funding_interval"`
	HealthInterval   time.Duration `yaml:"health_interval"`
	ErrorBackoff     time.Duration `yaml:"error_backoff"`
	Slippage         float64       `yaml:"slippage"`
	FillTimeout      time.Duration `yaml:"fill_timeout"`
	FillPollInterval time.Duration `yaml:"fill_poll_interval"`
	MarginMultiplier float64       `yaml:"margin_multiplier"`
}

type FeesConfig struct {
	Taker float64 `yaml:"taker"`
	Maker float64 `yaml:"maker"`
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
}

type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

func (m MetricsConfig) EnabledValue() bool {
	return m.Enabled != nil && *m.Enabled
}

type TimescaleConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	QueueSize       int           `yaml:"queue_size"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return &cfg, validate(&cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.REST.BaseURL == "" {
		cfg.REST.BaseURL = "https://api.hyperliquid.xyz"
	}
	if cfg.REST.Timeout == 0 {
		cfg.REST.Timeout = 10 * time.Second
	}
	if cfg.WS.URL == "" {
		cfg.WS.URL = wsURLFromREST(cfg.REST.BaseURL)
	}
	if cfg.WS.ReconnectDelay == 0 {
		cfg.WS.ReconnectDelay = 3 * time.Second
	}
	if cfg.WS.PingInterval == 0 {
		cfg.WS.PingInterval = 30 * time.Second
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/hl-funding-arb.db"
	}
	cfg.Strategy.Coin = strings.TrimSpace(cfg.Strategy.Coin)
	if cfg.Strategy.SpotPair == "" && cfg.Strategy.Coin != "" {
		cfg.Strategy.SpotPair = cfg.Strategy.Coin + "/USDC"
	}
	if cfg.Strategy.FundingInterval == 0 {
		cfg.Strategy.FundingInterval = 15 * time.Minute
	}
	if cfg.Strategy.HealthInterval == 0 {
		cfg.Strategy.HealthInterval = 5 * time.Minute
	}
	if cfg.Strategy.ErrorBackoff == 0 {
		cfg.Strategy.ErrorBackoff = time.Minute
	}
	if cfg.Strategy.Slippage == 0 {
		cfg.Strategy.Slippage = 0.01
	}
	if cfg.Strategy.FillTimeout == 0 {
		cfg.Strategy.FillTimeout = 10 * time.Minute
	}
	if cfg.Strategy.FillPollInterval == 0 {
		cfg.Strategy.FillPollInterval = 2 * time.Second
	}
	if cfg.Strategy.MarginMultiplier == 0 {
		cfg.Strategy.MarginMultiplier = 1.2
	}
	if cfg.Fees.Taker == 0 {
		cfg.Fees.Taker = 0.00035
	}
	if cfg.Fees.Maker == 0 {
		cfg.Fees.Maker = 0.0001
	}
	if cfg.Metrics.Enabled == nil {
		enabled := true
		cfg.Metrics.Enabled = &enabled
	}
	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = "127.0.0.1:9001"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Timescale.Schema == "" {
		cfg.Timescale.Schema = "public"
	}
	if cfg.Timescale.QueueSize == 0 {
		cfg.Timescale.QueueSize = 256
	}
}

// applyEnvOverrides lets secrets live in the environment instead of the yaml file.
func applyEnvOverrides(cfg *Config) {
	if token := strings.TrimSpace(os.Getenv("HL_TELEGRAM_TOKEN")); token != "" {
		cfg.Telegram.Token = token
	}
	if chatID := strings.TrimSpace(os.Getenv("HL_TELEGRAM_CHAT_ID")); chatID != "" {
		cfg.Telegram.ChatID = chatID
	}
	if dsn := strings.TrimSpace(os.Getenv("HL_TIMESCALE_DSN")); dsn != "" {
		cfg.Timescale.DSN = dsn
	}
}

func validate(cfg *Config) error {
	s := cfg.Strategy
	if s.Coin == "" {
		return errors.New("strategy.coin is required")
	}
	if !strings.Contains(s.SpotPair, "/") {
		return fmt.Errorf("strategy.spot_pair %q must look like BASE/QUOTE", s.SpotPair)
	}
	if s.FundingInterval < 0 || s.HealthInterval < 0 || s.ErrorBackoff < 0 {
		return errors.New("strategy intervals must be >= 0")
	}
	if s.FillTimeout < 0 || s.FillPollInterval < 0 {
		return errors.New("strategy fill timeout and poll interval must be >= 0")
	}
	if s.Slippage < 0 || s.Slippage >= 1 {
		return errors.New("strategy.slippage must be in [0, 1)")
	}
	if s.MarginMultiplier < 1 {
		return errors.New("strategy.margin_multiplier must be >= 1")
	}
	if cfg.Fees.Taker < 0 || cfg.Fees.Maker < 0 {
		return errors.New("fees must be >= 0")
	}
	if cfg.Metrics.EnabledValue() && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return errors.New("metrics.path must start with /")
	}
	if cfg.Telegram.Enabled && (cfg.Telegram.Token == "" || cfg.Telegram.ChatID == "") {
		return errors.New("telegram.token and telegram.chat_id are required when telegram is enabled")
	}
	if cfg.Timescale.Enabled && strings.TrimSpace(cfg.Timescale.DSN) == "" {
		return errors.New("timescale.dsn is required when timescale is enabled")
	}
	return nil
}

func wsURLFromREST(base string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://") + "/ws"
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://") + "/ws"
	default:
		return "wss://api.hyperliquid.xyz/ws"
	}
}
