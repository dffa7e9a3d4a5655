package app

import (
	"fmt"

	"github.com/LJTian/NewsRelay/internal/collector"
	"github.com/LJTian/NewsRelay/internal/config"
	"github.com/LJTian/NewsRelay/internal/logger"
	"github.com/LJTian/NewsRelay/internal/metrics"
	"github.com/LJTian/NewsRelay/internal/notifier"
	"github.com/LJTian/NewsRelay/internal/scheduler"
	"github.com/LJTian/NewsRelay/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

// App 两个命令行入口共用的组件
type App struct {
	Config    *config.Config
	Redis     *redis.Client
	Registry  *prometheus.Registry
	Job       *scheduler.Job
	Scheduler *scheduler.Scheduler
	// Deliveries 未配置 POSTGRES_DSN 时为 nil
	Deliveries *storage.DeliveryLog
}

// Build 按配置组装抓取、游标、推送与调度
func Build(cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	rdb, err := storage.NewRedisClient(cfg.StoreURL, cfg.StoreToken)
	if err != nil {
		return nil, fmt.Errorf("init cursor store: %w", err)
	}

	a := &App{Config: cfg, Redis: rdb, Registry: prometheus.NewRegistry()}
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	loc := cfg.Location()
	deps := scheduler.Deps{
		Fetcher:   collector.NewHTMLFetcher(cfg.NewsURL, cfg.UserAgent, cfg.FetchTimeout),
		Extractor: collector.NewWidgetExtractor(loc),
		Cursor:    storage.NewCursorStore(rdb, cfg.CursorKey),
		Notifier: notifier.NewTelegramNotifier(notifier.TelegramConfig{
			APIBase:  cfg.TelegramAPI,
			BotToken: cfg.BotToken,
			ChatID:   cfg.ChatID,
			Interval: cfg.SendInterval,
			Formatter: notifier.Formatter{
				Location:  loc,
				LinkLabel: cfg.LinkLabel,
				AtWord:    cfg.AtWord,
			},
		}),
		Metrics: metrics.New(a.Registry),
	}

	if cfg.PostgresDSN != "" {
		db, err := storage.OpenDeliveryDB(cfg.PostgresDSN)
		if err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("init delivery log: %w", err)
		}
		a.Deliveries = storage.NewDeliveryLog(db)
		deps.Deliveries = a.Deliveries
	} else {
		logger.Infof("POSTGRES_DSN not set, delivery log disabled")
	}

	a.Job = scheduler.NewJob(deps)
	a.Scheduler, err = scheduler.New(cfg.CronSpec, a.Job)
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("init scheduler: %w", err)
	}
	return a, nil
}

// Close 释放 redis 连接
func (a *App) Close() error {
	return a.Redis.Close()
}
