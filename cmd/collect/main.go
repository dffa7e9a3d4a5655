package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/LJTian/NewsRelay/internal/app"
	"github.com/LJTian/NewsRelay/internal/collector"
	"github.com/LJTian/NewsRelay/internal/config"
	"github.com/LJTian/NewsRelay/internal/logger"
)

// 仅执行一次抓取推送的命令行入口：适合外部 cron 或手动触发，
// 标准输出为本次推送的新文章（格式化 JSON）
func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.Load()
	if err := logger.Init(logger.Config{Level: cfg.LogLevel, File: cfg.LogFile}); err != nil {
		logger.Errorf("init logger failed: %v", err)
	}
	defer logger.Sync()
	logger.Infof("config loaded: %s", cfg.Summary())

	a, err := app.Build(cfg)
	if err != nil {
		logger.Errorf("%v", err)
		return 1
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	res, err := a.Scheduler.RunOnce(ctx)
	if err != nil {
		logger.Errorf("run failed: %v", err)
		return 1
	}

	articles := res.New
	if articles == nil {
		articles = []collector.Article{}
	}
	out, err := json.MarshalIndent(articles, "", "    ")
	if err != nil {
		logger.Errorf("encode result: %v", err)
		return 1
	}
	fmt.Println(string(out))
	return 0
}
