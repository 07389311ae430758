package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Config 描述了 gelato 命令在启动阶段需要加载的全部配置。
type Config struct {
	Network NetworkConfig `json:"network"`
	Logging LoggingConfig `json:"logging"`
	Journal JournalConfig `json:"journal"`
	Notify  NotifyConfig  `json:"notify"`
	Gas     GasConfig     `json:"gas"`
	Demo    DemoConfig    `json:"demo"`
}

// NetworkConfig 指定默认网络以及网络描述文件的位置。
type NetworkConfig struct {
	Default      string `json:"default"`
	ProfilesFile string `json:"profiles_file"`
	EnvFile      string `json:"env_file"`
}

// LoggingConfig 控制结构化日志与交易审计日志。
type LoggingConfig struct {
	Level   string      `json:"level"`
	Format  string      `json:"format"`
	Outputs []string    `json:"outputs"`
	Audit   AuditConfig `json:"audit"`
}

// AuditConfig 控制交易审计日志文件。
type AuditConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// JournalConfig 描述交易流水的存储后端。driver 可选 memory、sqlite、mysql。
type JournalConfig struct {
	Driver                 string `json:"driver"`
	DSN                    string `json:"dsn"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
}

// NotifyConfig 描述交易结果的外部通知渠道，均为可选。
type NotifyConfig struct {
	Redis    RedisNotifyConfig    `json:"redis"`
	RabbitMQ RabbitMQNotifyConfig `json:"rabbitmq"`
}

// RedisNotifyConfig 将交易结果写入 Redis list。
type RedisNotifyConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	List     string `json:"list"`
	MaxLen   int64  `json:"max_len"`
}

// RabbitMQNotifyConfig 将交易结果投递到 RabbitMQ 队列。
type RabbitMQNotifyConfig struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url"`
	Queue   string `json:"queue"`
	Durable bool   `json:"durable"`
}

// GasConfig 控制交易的 gas 参数与等待确认的方式。
type GasConfig struct {
	Limit                 uint64  `json:"limit"`
	PriceGwei             float64 `json:"price_gwei"`
	ConfirmTimeoutSeconds int     `json:"confirm_timeout_seconds"`
	PollIntervalMillis    int     `json:"poll_interval_millis"`
}

// DemoConfig 保存演示场景使用的常量。
type DemoConfig struct {
	Create2Salt          uint64 `json:"create2_salt"`
	ProviderFundsEth     string `json:"provider_funds_eth"`
	UserFundsEth         string `json:"user_funds_eth"`
	DaiPerTrade          string `json:"dai_per_trade"`
	NumTrades            uint64 `json:"num_trades"`
	TradeIntervalSeconds uint64 `json:"trade_interval_seconds"`
	ExpirySeconds        uint64 `json:"expiry_seconds"`
	GasPerExecution      uint64 `json:"gas_per_execution"`
	MonitorSchedule      string `json:"monitor_schedule"`
	MonitorChanges       int    `json:"monitor_changes"`
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))
	return &cfg, nil
}

// Default 返回未提供配置文件时使用的配置，相对路径以 baseDir 为基准。
func Default(baseDir string) *Config {
	var cfg Config
	cfg.applyDefaults(baseDir)
	return &cfg
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Network.Default == "" {
		c.Network.Default = "rinkeby"
	}
	c.Network.ProfilesFile = resolve(baseDir, c.Network.ProfilesFile, "networks.yaml")
	c.Network.EnvFile = resolve(baseDir, c.Network.EnvFile, ".env")

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Logging.Audit.Enabled {
		c.Logging.Audit.Path = resolve(baseDir, c.Logging.Audit.Path, filepath.Join("data", "tx-audit.log"))
	}

	c.Journal.Driver = strings.ToLower(strings.TrimSpace(c.Journal.Driver))
	if c.Journal.Driver == "" {
		c.Journal.Driver = "memory"
	}
	if c.Journal.Driver == "sqlite" {
		c.Journal.DSN = resolve(baseDir, c.Journal.DSN, filepath.Join("data", "journal.db"))
	}

	if c.Notify.Redis.List == "" {
		c.Notify.Redis.List = "gelato:tx-outcomes"
	}
	if c.Notify.RabbitMQ.Queue == "" {
		c.Notify.RabbitMQ.Queue = "gelato.tx-outcomes"
	}

	if c.Gas.Limit == 0 {
		c.Gas.Limit = 6_000_000
	}
	if c.Gas.PriceGwei <= 0 {
		c.Gas.PriceGwei = 10
	}
	if c.Gas.PollIntervalMillis <= 0 {
		c.Gas.PollIntervalMillis = 2000
	}

	if c.Demo.Create2Salt == 0 {
		c.Demo.Create2Salt = 42069
	}
	if c.Demo.ProviderFundsEth == "" {
		c.Demo.ProviderFundsEth = "2"
	}
	if c.Demo.UserFundsEth == "" {
		c.Demo.UserFundsEth = "1"
	}
	if c.Demo.DaiPerTrade == "" {
		c.Demo.DaiPerTrade = "1"
	}
	if c.Demo.NumTrades == 0 {
		c.Demo.NumTrades = 3
	}
	if c.Demo.TradeIntervalSeconds == 0 {
		c.Demo.TradeIntervalSeconds = 120
	}
	if c.Demo.ExpirySeconds == 0 {
		c.Demo.ExpirySeconds = 900
	}
	if c.Demo.GasPerExecution == 0 {
		c.Demo.GasPerExecution = 700_000
	}
	if c.Demo.MonitorSchedule == "" {
		c.Demo.MonitorSchedule = "@every 20s"
	}
	if c.Demo.MonitorChanges <= 0 {
		c.Demo.MonitorChanges = 3
	}
}

func resolve(baseDir, value, fallback string) string {
	if value == "" {
		value = fallback
	}
	if filepath.IsAbs(value) {
		return value
	}
	return filepath.Join(baseDir, value)
}
