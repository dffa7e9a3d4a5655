package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/LJTian/NewsRelay/internal/logger"
	"github.com/robfig/cron/v3"
)

// RunTimeout 单次运行的上限，cron 与 HTTP 触发共用
const RunTimeout = 5 * time.Minute

type Scheduler struct {
	cron *cron.Cron
	job  *Job
	// 同一进程内 HTTP 触发与定时触发互斥，缩小游标竞争窗口
	mu sync.Mutex
}

type cronLogger struct{}

func (cronLogger) Printf(format string, args ...any) {
	logger.Infof(format, args...)
}

// New spec 为空时只支持手动触发
func New(spec string, job *Job) (*Scheduler, error) {
	c := cron.New(cron.WithChain(
		cron.Recover(cron.PrintfLogger(cronLogger{})),
		cron.SkipIfStillRunning(cron.PrintfLogger(cronLogger{})),
	))

	s := &Scheduler{cron: c, job: job}

	if spec != "" {
		if _, err := c.AddFunc(spec, s.runScheduled); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop 停止定时器并等待正在进行的运行结束
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) Cron() *cron.Cron {
	return s.cron
}

// RunOnce 对外暴露的单次执行入口（HTTP 触发、命令行）
func (s *Scheduler) RunOnce(ctx context.Context) (*RunResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.job.Run(ctx)
}

func (s *Scheduler) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), RunTimeout)
	defer cancel()
	if _, err := s.RunOnce(ctx); err != nil {
		logger.Errorf("scheduled run failed: %v", err)
	}
}
