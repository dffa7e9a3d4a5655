package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/LJTian/NewsRelay/internal/api"
	"github.com/LJTian/NewsRelay/internal/app"
	"github.com/LJTian/NewsRelay/internal/config"
	"github.com/LJTian/NewsRelay/internal/logger"
	"github.com/gin-gonic/gin"
)

func main() {
	os.Exit(run())
}

// run 返回进程退出码；所有 defer 都在退出前执行，保证日志落盘、连接关闭
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

	a.Scheduler.Start()
	defer a.Scheduler.Stop()

	r := gin.Default()
	// 若配置了全局访问密码，则启用 Basic Auth 保护（/health 仍然免认证）
	if cfg.BasicAuthUser != "" && cfg.BasicAuthPass != "" {
		public := []string{"/health"}
		if cfg.MetricsPublic {
			public = append(public, "/metrics")
		}
		r.Use(api.BasicAuth(cfg.BasicAuthUser, cfg.BasicAuthPass, public...))
	}

	var deliveries api.DeliveryLister
	if a.Deliveries != nil {
		deliveries = a.Deliveries
	}
	api.NewServer(a.Scheduler, deliveries, a.Registry).RegisterRoutes(r)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{Addr: ":" + cfg.AppPort, Handler: r}
	serveErr := make(chan error, 1)
	go func() {
		logger.Infof("starting api server at %s ...", srv.Addr)
		serveErr <- srv.ListenAndServe()
	}()

	code := 0
	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("server exit: %v", err)
			code = 1
		}
	case <-ctx.Done():
		logger.Infof("shutting down ...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	return code
}
