package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"payprocessor/internal/apperror"
	"payprocessor/internal/fee"
	"payprocessor/internal/reconciliation"
	"payprocessor/pkg/money"
)

// Config 全局配置结构
type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	MySQL          MySQLConfig          `mapstructure:"mysql"`
	Redis          RedisConfig          `mapstructure:"redis"`
	Kafka          KafkaConfig          `mapstructure:"kafka"`
	Stripe         StripeConfig         `mapstructure:"stripe"`
	Fees           FeesConfig           `mapstructure:"fees"`
	Reconciliation ReconciliationConfig `mapstructure:"reconciliation"`
	Business       BusinessConfig       `mapstructure:"business"`
	Log            LogConfig            `mapstructure:"log"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	DriftAlert  string `mapstructure:"drift_alert"`
	DomainEvent string `mapstructure:"domain_event"`
}

type StripeConfig struct {
	SecretKey     string `mapstructure:"secret_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

// FeesConfig 全局默认费率，百分比用字符串保存，"2.9" 这类值不经过 float
type FeesConfig struct {
	PlatformFeeCents   int64  `mapstructure:"platform_fee_cents"`
	PlatformFeePercent string `mapstructure:"platform_fee_percent"`
	PlatformFeeMode    string `mapstructure:"platform_fee_mode"`
	GatewayFeeCents    int64  `mapstructure:"gateway_fee_cents"`
	GatewayFeePercent  string `mapstructure:"gateway_fee_percent"`
	GatewayFeeMode     string `mapstructure:"gateway_fee_mode"`
}

type ReconciliationConfig struct {
	WarningThresholdCents  int64 `mapstructure:"warning_threshold_cents"`
	CriticalThresholdCents int64 `mapstructure:"critical_threshold_cents"`
}

type BusinessConfig struct {
	MaxRetryCount              int `mapstructure:"max_retry_count"`
	PayoutRetryIntervalSeconds int `mapstructure:"payout_retry_interval_seconds"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// LoadConfig 加载配置文件
// 先加载工作目录下的 .env（如果存在），环境变量覆盖配置文件，
// 嵌套键写作 STRIPE_SECRET_KEY、MYSQL_PASSWORD 等
func LoadConfig(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("mysql.max_open_conns", 100)
	v.SetDefault("mysql.max_idle_conns", 10)
	v.SetDefault("kafka.topic.drift_alert", "reconciliation.drift_alert")
	v.SetDefault("kafka.topic.domain_event", "payments.domain_event")
	v.SetDefault("fees.platform_fee_percent", "0")
	v.SetDefault("fees.platform_fee_mode", string(fee.ModeAbsorb))
	v.SetDefault("fees.gateway_fee_percent", "0")
	v.SetDefault("fees.gateway_fee_mode", string(fee.ModeAbsorb))
	v.SetDefault("reconciliation.warning_threshold_cents", 100)
	v.SetDefault("reconciliation.critical_threshold_cents", 1000)
	v.SetDefault("business.max_retry_count", 5)
	v.SetDefault("business.payout_retry_interval_seconds", 30)
	v.SetDefault("log.level", "info")
	// 显式声明，否则 AutomaticEnv 无法在 Unmarshal 时看到没有 yaml 值的键
	v.SetDefault("stripe.secret_key", "")
	v.SetDefault("stripe.webhook_secret", "")
}

// Validate 启动前校验配置
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return apperror.Configuration("server_port", "server port %d out of range", c.Server.Port)
	}
	if _, err := c.FeeConfig(); err != nil {
		return err
	}
	if _, err := c.Thresholds(); err != nil {
		return err
	}
	if c.Business.MaxRetryCount < 0 {
		return apperror.Configuration("max_retry_count", "max retry count must be >= 0")
	}
	if c.Business.PayoutRetryIntervalSeconds <= 0 {
		return apperror.Configuration("payout_retry_interval_seconds", "payout retry interval must be > 0")
	}
	return nil
}

// FeeConfig 构建默认费率
func (c *Config) FeeConfig() (fee.Config, error) {
	platform, err := c.Fees.rate("platform", c.Fees.PlatformFeeCents, c.Fees.PlatformFeePercent, c.Fees.PlatformFeeMode)
	if err != nil {
		return fee.Config{}, err
	}
	gateway, err := c.Fees.rate("gateway", c.Fees.GatewayFeeCents, c.Fees.GatewayFeePercent, c.Fees.GatewayFeeMode)
	if err != nil {
		return fee.Config{}, err
	}

	cfg := fee.Config{Platform: platform, Gateway: gateway}
	if err := cfg.Validate(); err != nil {
		return fee.Config{}, apperror.Wrap(apperror.KindConfiguration, apperror.RuleOf(err), err)
	}
	return cfg, nil
}

func (f FeesConfig) rate(name string, cents int64, percent, mode string) (fee.Rate, error) {
	pct, err := decimal.NewFromString(strings.TrimSpace(percent))
	if err != nil {
		return fee.Rate{}, apperror.Configuration(name+"_fee_percent", "%s fee percent %q is not a number", name, percent)
	}
	m, err := fee.ParseMode(mode)
	if err != nil {
		return fee.Rate{}, apperror.Configuration(name+"_fee_mode", "%s fee mode %q must be absorb or pass", name, mode)
	}
	return fee.Rate{FlatCents: money.Cents(cents), Percent: pct, Mode: m}, nil
}

func (c *Config) Thresholds() (reconciliation.Thresholds, error) {
	return reconciliation.NewThresholds(
		money.Cents(c.Reconciliation.WarningThresholdCents),
		money.Cents(c.Reconciliation.CriticalThresholdCents),
	)
}

// DSN 构建 MySQL 连接串
func (c MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
