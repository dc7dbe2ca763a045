package config

import (
	"github.com/bookbay/bms/internal/logger"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Commitment CommitmentConfig `mapstructure:"commitment"`
	Payment    PaymentConfig    `mapstructure:"payment"`
	Sweep      SweepConfig      `mapstructure:"sweep"`
	Admin      AdminConfig      `mapstructure:"admin"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// CommitmentConfig 卖家承诺窗口配置
type CommitmentConfig struct {
	WindowHours    int `mapstructure:"window_hours"`    // 付款后卖家响应窗口（小时）
	CollectionDays int `mapstructure:"collection_days"` // 承诺后的取书窗口（天）
}

// PaymentConfig 支付网关配置
type PaymentConfig struct {
	BaseURL        string `mapstructure:"base_url"`        // 网关API地址
	Secret         string `mapstructure:"secret"`          // API密钥
	CommissionBps  int64  `mapstructure:"commission_bps"`  // 平台佣金（基点，1000 = 10%）
	TimeoutSeconds int    `mapstructure:"timeout_seconds"` // 单次请求超时
	MaxAttempts    int    `mapstructure:"max_attempts"`    // 幂等调用最大重试次数
	Currency       string `mapstructure:"currency"`
}

// SweepConfig 过期扫描任务配置
type SweepConfig struct {
	Interval int `mapstructure:"interval"` // 秒
	Workers  int `mapstructure:"workers"`  // 并发处理订单数
}

type AdminConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type NotifyConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort string `mapstructure:"smtp_port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	FromAddr string `mapstructure:"from_addr"`
	FromName string `mapstructure:"from_name"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // 日志级别: debug, info, warn, error, fatal
	Output string `mapstructure:"output"` // 输出目标: stdout, file
	File   string `mapstructure:"file"`   // 日志文件路径（当output为file时使用）
}

func Load() *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/bms")

	// 设置默认值
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.dbname", "bookbay")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("commitment.window_hours", 48)
	viper.SetDefault("commitment.collection_days", 5)
	viper.SetDefault("payment.base_url", "https://api.paygate.example")
	viper.SetDefault("payment.commission_bps", 1000)
	viper.SetDefault("payment.timeout_seconds", 10)
	viper.SetDefault("payment.max_attempts", 3)
	viper.SetDefault("payment.currency", "ZAR")
	viper.SetDefault("sweep.interval", 300)
	viper.SetDefault("sweep.workers", 8)
	viper.SetDefault("notify.enabled", false)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.file", "logs/app.log")

	// 自动读取环境变量
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		logger.Warn("Warning: Could not read config file: %v", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		logger.Fatal("Unable to decode config into struct: %v", err)
	}

	return &config
}
