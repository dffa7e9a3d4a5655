package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/LJTian/NewsRelay/internal/apperr"
	"github.com/LJTian/NewsRelay/internal/collector"
	"github.com/LJTian/NewsRelay/internal/logger"
	"github.com/LJTian/NewsRelay/internal/scheduler"
	"github.com/LJTian/NewsRelay/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Runner 触发一次完整运行
type Runner interface {
	RunOnce(ctx context.Context) (*scheduler.RunResult, error)
}

// DeliveryLister 投递记录查询
type DeliveryLister interface {
	Recent(ctx context.Context, limit int) ([]storage.Delivery, error)
}

type Server struct {
	runner     Runner
	deliveries DeliveryLister
	gatherer   prometheus.Gatherer
}

// NewServer deliveries 为 nil 时投递记录接口返回 503
func NewServer(runner Runner, deliveries DeliveryLister, gatherer prometheus.Gatherer) *Server {
	return &Server{runner: runner, deliveries: deliveries, gatherer: gatherer}
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.health)
	if s.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/api/v1")
	{
		v1.GET("/run", s.run)
		v1.POST("/run", s.run)
		v1.GET("/deliveries", s.listDeliveries)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// run 执行一次抓取推送，返回本次处理的新文章（格式化 JSON）。
// 调用方断开不会中断推送，否则已发送的文章会在下次运行时重发。
func (s *Server) run(c *gin.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), scheduler.RunTimeout)
	defer cancel()

	res, err := s.runner.RunOnce(ctx)
	if err != nil {
		logger.Errorf("api run failed: %v", err)
		c.JSON(apperr.StatusCode(err), gin.H{
			"error": err.Error(),
			"kind":  apperr.KindOf(err),
		})
		return
	}

	articles := res.New
	if articles == nil {
		articles = []collector.Article{}
	}
	c.IndentedJSON(http.StatusOK, articles)
}

func (s *Server) listDeliveries(c *gin.Context) {
	if s.deliveries == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"code":    "disabled",
			"message": "delivery log is not configured",
		})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		limit = 50
	}

	items, err := s.deliveries.Recent(c.Request.Context(), limit)
	if err != nil {
		logger.Errorf("list deliveries: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "internal_error",
			"message": "internal server error",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    items,
	})
}
