package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/LJTian/NewsRelay/internal/logger"
	"github.com/joho/godotenv"
)

const (
	DefaultNewsURL   = "https://www.tasnimnews.com/fa/news/category/184"
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	DefaultTimeZone  = "Asia/Tehran"
	DefaultCursorKey = "lastSeenArticleId"
)

type Config struct {
	AppPort string

	// 新闻源
	NewsURL      string
	UserAgent    string
	FetchTimeout time.Duration
	TimeZone     string

	// Telegram
	BotToken     string
	ChatID       string
	TelegramAPI  string
	SendInterval time.Duration
	LinkLabel    string
	AtWord       string

	// 游标存储（redis 协议，例如 Upstash）
	StoreURL   string
	StoreToken string
	CursorKey  string

	// 可选：投递记录，为空则不落库
	PostgresDSN string

	CronSpec string

	BasicAuthUser string
	BasicAuthPass string
	// MetricsPublic 为 true 时 /metrics 不需要 Basic Auth
	MetricsPublic bool

	LogLevel string
	LogFile  string
}

// Load 读取环境变量；若当前目录存在 .env 则先加载（不覆盖已有变量）
func Load() *Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warnf("load .env failed: %v", err)
	}

	cfg := &Config{
		AppPort:       getEnv("APP_PORT", "9000"),
		NewsURL:       getEnv("NEWS_URL", DefaultNewsURL),
		UserAgent:     getEnv("USER_AGENT", DefaultUserAgent),
		FetchTimeout:  getDuration("FETCH_TIMEOUT", 15*time.Second),
		TimeZone:      getEnv("TIME_ZONE", DefaultTimeZone),
		BotToken:      os.Getenv("TELEGRAM_BOT_TOKEN"),
		ChatID:        os.Getenv("TELEGRAM_CHAT_ID"),
		TelegramAPI:   strings.TrimRight(getEnv("TELEGRAM_API_BASE", "https://api.telegram.org"), "/"),
		SendInterval:  getDuration("SEND_INTERVAL", time.Second),
		LinkLabel:     getEnv("MESSAGE_LINK_LABEL", "منبع خبر"),
		AtWord:        getEnv("MESSAGE_AT_WORD", "ساعت"),
		StoreURL:      os.Getenv("STORE_URL"),
		StoreToken:    os.Getenv("STORE_TOKEN"),
		CursorKey:     getEnv("CURSOR_KEY", DefaultCursorKey),
		PostgresDSN:   os.Getenv("POSTGRES_DSN"),
		CronSpec:      os.Getenv("CRON_SPEC"),
		BasicAuthUser: os.Getenv("APP_BASIC_USER"),
		BasicAuthPass: os.Getenv("APP_BASIC_PASS"),
		MetricsPublic: getBool("METRICS_PUBLIC", false),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFile:       os.Getenv("LOG_FILE"),
	}

	return cfg
}

// Summary 启动日志用的配置摘要，不含任何凭据
func (c *Config) Summary() string {
	return fmt.Sprintf("port=%s news=%s tz=%s cron=%q cursor_key=%s delivery_log=%t basic_auth=%t",
		c.AppPort, c.NewsURL, c.TimeZone, c.CronSpec, c.CursorKey, c.PostgresDSN != "", c.BasicAuthUser != "")
}

// Validate 检查必填项，一次性报告全部缺失的变量
func (c *Config) Validate() error {
	var errs []error
	required := []struct{ key, val string }{
		{"TELEGRAM_BOT_TOKEN", c.BotToken},
		{"TELEGRAM_CHAT_ID", c.ChatID},
		{"STORE_URL", c.StoreURL},
		{"STORE_TOKEN", c.StoreToken},
	}
	for _, r := range required {
		if strings.TrimSpace(r.val) == "" {
			errs = append(errs, errors.New(r.key+" is required"))
		}
	}
	return errors.Join(errs...)
}

// Location 加载配置时区；名称无效时回退到固定的 +03:30
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil || loc == nil {
		logger.Warnf("load time zone %q failed, fallback to +03:30: %v", c.TimeZone, err)
		return time.FixedZone("IRST", 3*3600+30*60)
	}
	return loc
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		logger.Warnf("invalid %s=%q, using %t", key, v, def)
		return def
	}
	return b
}

// getDuration 支持 "1s"、"500ms" 等写法，解析失败使用默认值
func getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		logger.Warnf("invalid %s=%q, using %s", key, v, def)
		return def
	}
	return d
}
