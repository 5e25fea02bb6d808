package config

import (
	"os"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/xucheng2024/hour-trade/pkg/engine"
	postgres_wrapper "github.com/xucheng2024/hour-trade/pkg/infra/postgres"
	redis_wrapper "github.com/xucheng2024/hour-trade/pkg/infra/redis"
)

type ExchangeConfig struct {
	RestURL       string `yaml:"rest_url"`
	PublicWsURL   string `yaml:"public_ws_url"`
	BusinessWsURL string `yaml:"business_ws_url"`
	APIKey        string `yaml:"api_key"`
	APISecret     string `yaml:"api_secret"`
	APIPassphrase string `yaml:"api_passphrase"`
	DemoTrading   bool   `yaml:"demo_trading"`
}

type NatsConfig struct {
	Addr           string `yaml:"addr"`
	Stream         string `yaml:"stream"`
	Subject        string `yaml:"subject"`
	Durable        string `yaml:"durable"`
	AckWaitSeconds int    `yaml:"ack_wait_seconds"`
	MaxInflight    int    `yaml:"max_inflight"`
}

type EngineConfig struct {
	StrategyTag string `yaml:"strategy_tag"`
	TradeAmount string `yaml:"trade_amount"`

	OrderTimeoutSeconds        int `yaml:"order_timeout_seconds"`
	IntentTTLSeconds           int `yaml:"intent_ttl_seconds"`
	ReconcileIntervalSeconds   int `yaml:"reconcile_interval_seconds"`
	RecoveryWindowHours        int `yaml:"recovery_window_hours"`
	RecoveryLimit              int `yaml:"recovery_limit"`
	DeepRecoveryIntervalHours  int `yaml:"deep_recovery_interval_hours"`
	DeepRecoveryWindowHours    int `yaml:"deep_recovery_window_hours"`
	DeepRecoveryLimit          int `yaml:"deep_recovery_limit"`
	SellRetryAlertThreshold    int `yaml:"sell_retry_alert_threshold"`

	LimitsFile     string   `yaml:"limits_file"`
	Blacklist      []string `yaml:"blacklist"`
	SimulationMode bool     `yaml:"simulation_mode"`
}

// ToEngine converts the file representation into the engine's runtime config.
func (c *EngineConfig) ToEngine() (engine.Config, error) {
	amount, err := decimal.NewFromString(c.TradeAmount)
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		StrategyTag:             c.StrategyTag,
		TradeAmount:             amount,
		OrderTimeout:            time.Duration(c.OrderTimeoutSeconds) * time.Second,
		IntentTTL:               time.Duration(c.IntentTTLSeconds) * time.Second,
		ReconcileInterval:       time.Duration(c.ReconcileIntervalSeconds) * time.Second,
		RecoveryWindow:          time.Duration(c.RecoveryWindowHours) * time.Hour,
		RecoveryLimit:           c.RecoveryLimit,
		DeepRecoveryInterval:    time.Duration(c.DeepRecoveryIntervalHours) * time.Hour,
		DeepRecoveryWindow:      time.Duration(c.DeepRecoveryWindowHours) * time.Hour,
		DeepRecoveryLimit:       c.DeepRecoveryLimit,
		SellRetryAlertThreshold: c.SellRetryAlertThreshold,
		LimitsFile:              c.LimitsFile,
		Blacklist:               c.Blacklist,
		SimulationMode:          c.SimulationMode,
	}, nil
}

type AppConfig struct {
	ServiceName string                           `yaml:"service_name"`
	MetricsAddr string                           `yaml:"metrics_addr"`
	Engine      *EngineConfig                    `yaml:"engine"`
	Exchange    *ExchangeConfig                  `yaml:"exchange"`
	OmsDB       *postgres_wrapper.PostgresConfig `yaml:"oms_db"`
	Redis       *redis_wrapper.RedisConfig       `yaml:"redis"`
	Nats        *NatsConfig                      `yaml:"nats"`
}

// Load load config from file and environment variables.
func Load(filePath string) (*AppConfig, error) {
	if len(filePath) == 0 {
		filePath = os.Getenv("CONFIG_FILE")
	}

	sugar := zap.S().With("func", "config.Load", "filePath", filePath)
	sugar.Debug("Load config...")

	configBytes, err := os.ReadFile(filePath)
	if err != nil {
		sugar.Error("Failed to load config file")
		return nil, err
	}
	configBytes = []byte(os.ExpandEnv(string(configBytes)))

	cfg := &AppConfig{}
	if err := yaml.Unmarshal(configBytes, cfg); err != nil {
		sugar.Error("Failed to parse config file")
		return nil, err
	}

	// Secrets come from the environment, never from the file.
	if cfg.Exchange != nil {
		if v := os.Getenv("OKX_API_KEY"); v != "" {
			cfg.Exchange.APIKey = v
		}
		if v := os.Getenv("OKX_API_SECRET"); v != "" {
			cfg.Exchange.APISecret = v
		}
		if v := os.Getenv("OKX_API_PASSPHRASE"); v != "" {
			cfg.Exchange.APIPassphrase = v
		}
	}

	return cfg, nil
}
