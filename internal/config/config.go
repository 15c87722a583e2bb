package config

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 包含所有应用配置
type Config struct {
	Server   ServerConfig   `mapstructure:"server"` // `mapstructure` 标签用于 Viper 绑定结构体
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Log      LogConfig      `mapstructure:"log"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Crypto   CryptoConfig   `mapstructure:"crypto"`
	Upload   UploadConfig   `mapstructure:"upload"`
	Quota    QuotaConfig    `mapstructure:"quota"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // gin 运行模式: debug, release, test
}

type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 只用于校验调用方身份，签发在外部完成
type JWTConfig struct {
	SecretKey string `mapstructure:"secret_key"`
	Issuer    string `mapstructure:"issuer"`
}

// zap 日志配置
type LogConfig struct {
	OutputPath string `mapstructure:"output_path"`
	ErrorPath  string `mapstructure:"error_path"`
	Level      string `mapstructure:"level"`
}

// TelegramConfig Bot API 调用相关配置
// BotToken / StorageChatID 是进程级默认凭证，仅在所有者未配置时使用
type TelegramConfig struct {
	APIBaseURL        string        `mapstructure:"api_base_url"`
	BotToken          string        `mapstructure:"bot_token"`
	StorageChatID     string        `mapstructure:"storage_chat_id"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	RetryBaseDelay    time.Duration `mapstructure:"retry_base_delay"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	HistoryLimit      int           `mapstructure:"history_limit"`
	ClientPoolSize    int           `mapstructure:"client_pool_size"`
	ClientIdleTTL     time.Duration `mapstructure:"client_idle_ttl"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	FilePathTTL       time.Duration `mapstructure:"file_path_ttl"`
}

// CryptoConfig 所有者 bot token 的加密密钥，为空时退回 jwt.secret_key
type CryptoConfig struct {
	TokenEncryptionKey string `mapstructure:"token_encryption_key"`
}

type UploadConfig struct {
	DefaultChunkSize int64         `mapstructure:"default_chunk_size"`
	MinChunkSize     int64         `mapstructure:"min_chunk_size"`
	MaxChunkSize     int64         `mapstructure:"max_chunk_size"`
	SessionTTL       time.Duration `mapstructure:"session_ttl"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval"`
	ReadConcurrency  int           `mapstructure:"read_concurrency"`
}

type QuotaConfig struct {
	DefaultBytes int64 `mapstructure:"default_bytes"`
}

const (
	MiB = int64(1) << 20
	GiB = int64(1) << 30
)

var AppConfig *Config // 全局应用配置实例

// SetDefaults 注册所有默认值，测试中也可直接使用
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("jwt.issuer", "go-tgdisk")
	v.SetDefault("log.output_path", "logs/app.log")
	v.SetDefault("log.error_path", "logs/error.log")
	v.SetDefault("log.level", "info")

	v.SetDefault("telegram.api_base_url", "https://api.telegram.org")
	v.SetDefault("telegram.max_attempts", 5)
	v.SetDefault("telegram.retry_base_delay", 800*time.Millisecond)
	v.SetDefault("telegram.request_timeout", 120*time.Second)
	v.SetDefault("telegram.history_limit", 500)
	v.SetDefault("telegram.client_pool_size", 128)
	v.SetDefault("telegram.client_idle_ttl", 30*time.Minute)
	v.SetDefault("telegram.requests_per_second", 20.0)
	v.SetDefault("telegram.file_path_ttl", 50*time.Minute)

	v.SetDefault("upload.default_chunk_size", 19*MiB)
	v.SetDefault("upload.min_chunk_size", 1*MiB)
	v.SetDefault("upload.max_chunk_size", 20*MiB)
	v.SetDefault("upload.session_ttl", 6*time.Hour)
	v.SetDefault("upload.sweep_interval", 10*time.Minute)
	v.SetDefault("upload.read_concurrency", 4)

	v.SetDefault("quota.default_bytes", 20*GiB)
}

// LoadConfig 加载配置: .env -> 配置文件 -> 环境变量 -> 默认值
func LoadConfig() (*Config, error) {
	// .env 不存在不是错误
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file loaded, relying on process environment.")
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/go-tgdisk/")

	// 例如 GO_TGDISK_TELEGRAM_BOT_TOKEN 对应 telegram.bot_token
	v.SetEnvPrefix("GO_TGDISK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 兼容常见的裸环境变量名
	_ = v.BindEnv("telegram.bot_token", "GO_TGDISK_TELEGRAM_BOT_TOKEN", "BOT_TOKEN")
	_ = v.BindEnv("telegram.storage_chat_id", "GO_TGDISK_TELEGRAM_STORAGE_CHAT_ID", "TELEGRAM_STORAGE_CHAT_ID", "CHANNEL_USERNAME")
	_ = v.BindEnv("crypto.token_encryption_key", "GO_TGDISK_CRYPTO_TOKEN_ENCRYPTION_KEY", "TELEGRAM_TOKEN_ENCRYPTION_KEY")
	_ = v.BindEnv("jwt.secret_key", "GO_TGDISK_JWT_SECRET_KEY", "JWT_SECRET")
	_ = v.BindEnv("mysql.dsn", "GO_TGDISK_MYSQL_DSN")

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		// 配置文件未找到不是致命错误，依赖环境变量和默认值
		log.Println("Warning: config file not found, using environment variables or default values.")
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	AppConfig = cfg
	return cfg, nil
}

// Validate 检查必须的配置项
func (c *Config) Validate() error {
	if c.TokenEncryptionSecret() == "" {
		return errors.New("config: crypto.token_encryption_key or jwt.secret_key must be set")
	}
	if c.Upload.MinChunkSize <= 0 || c.Upload.MaxChunkSize < c.Upload.MinChunkSize {
		return errors.New("config: upload chunk size bounds are invalid")
	}
	if c.Telegram.MaxAttempts <= 0 {
		return errors.New("config: telegram.max_attempts must be positive")
	}
	return nil
}

// TokenEncryptionSecret 返回 token 加密使用的密钥材料
func (c *Config) TokenEncryptionSecret() string {
	if c.Crypto.TokenEncryptionKey != "" {
		return c.Crypto.TokenEncryptionKey
	}
	return c.JWT.SecretKey
}
