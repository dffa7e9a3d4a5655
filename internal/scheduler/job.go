package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LJTian/NewsRelay/internal/apperr"
	"github.com/LJTian/NewsRelay/internal/collector"
	"github.com/LJTian/NewsRelay/internal/logger"
	"github.com/LJTian/NewsRelay/internal/metrics"
	"github.com/LJTian/NewsRelay/internal/notifier"
	"github.com/LJTian/NewsRelay/internal/processor"
	"github.com/LJTian/NewsRelay/internal/storage"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// CursorStore 游标的读取与比较写入
type CursorStore interface {
	processor.CursorReader
	Advance(ctx context.Context, prev string, hadPrev bool, next string) error
}

// DeliveryRecorder 投递记录，可为 nil
type DeliveryRecorder interface {
	Record(ctx context.Context, d *storage.Delivery) error
}

type Deps struct {
	Fetcher    collector.Fetcher
	Extractor  collector.Extractor
	Cursor     CursorStore
	Notifier   notifier.Notifier
	Deliveries DeliveryRecorder
	Metrics    *metrics.Metrics
}

// RunResult 一次运行的摘要
type RunResult struct {
	RunID       string              `json:"runId"`
	StartedAt   time.Time           `json:"startedAt"`
	FinishedAt  time.Time           `json:"finishedAt"`
	Fetched     int                 `json:"fetched"`
	Cursor      string              `json:"cursor"`
	Fallback    bool                `json:"fallback"`
	CursorFound bool                `json:"cursorFound"`
	New         []collector.Article `json:"new"`
	Sent        int                 `json:"sent"`
	NextCursor  string              `json:"nextCursor,omitempty"`
	CursorMoved bool                `json:"cursorMoved,omitempty"`
}

// Job 抓取 → 解析 → 筛选 → 逐条推送 → 更新游标
type Job struct {
	fetcher    collector.Fetcher
	extractor  collector.Extractor
	cursor     CursorStore
	filter     *processor.Filter
	notifier   notifier.Notifier
	deliveries DeliveryRecorder
	metrics    *metrics.Metrics
}

func NewJob(d Deps) *Job {
	m := d.Metrics
	if m == nil {
		m = metrics.New(prometheus.NewRegistry())
	}
	return &Job{
		fetcher:    d.Fetcher,
		extractor:  d.Extractor,
		cursor:     d.Cursor,
		filter:     processor.NewFilter(d.Cursor),
		notifier:   d.Notifier,
		deliveries: d.Deliveries,
		metrics:    m,
	}
}

// Run 执行一次完整流程。任一步失败立即返回且不更新游标，
// 已发送的文章会在下次运行时重发（至少一次）。
func (j *Job) Run(ctx context.Context) (res *RunResult, err error) {
	res = &RunResult{RunID: uuid.NewString(), StartedAt: time.Now()}
	log := logger.With("run", res.RunID)
	log.Infof("run started")

	defer func() {
		res.FinishedAt = time.Now()
		j.observe(res, err)
		if err != nil {
			log.Errorf("run failed after sending %d/%d: %v", res.Sent, len(res.New), err)
			return
		}
		log.Infof("run done: fetched=%d new=%d sent=%d cursor=%s", res.Fetched, len(res.New), res.Sent, res.NextCursor)
	}()

	html, err := j.fetcher.Fetch(ctx)
	if err != nil {
		return res, fmt.Errorf("fetch: %w", err)
	}

	articles, err := j.extractor.Extract(html)
	if err != nil {
		return res, fmt.Errorf("extract: %w", err)
	}
	res.Fetched = len(articles)

	sel, err := j.filter.Apply(ctx, articles)
	if err != nil {
		return res, fmt.Errorf("filter: %w", err)
	}
	res.Cursor, res.Fallback, res.CursorFound = sel.Cursor, sel.Fallback, sel.Found
	res.New = sel.New
	if sel.Fallback {
		log.Infof("no stored cursor, cold start boundary %s", sel.Cursor)
	} else if !sel.Found && len(articles) > 0 {
		log.Warnf("cursor %s not in current page, treating all %d articles as new", sel.Cursor, len(articles))
	}

	// 严格串行，保证按时间顺序送达
	for _, a := range sel.New {
		receipt, err := j.notifier.Notify(ctx, a)
		if err != nil {
			j.metrics.NotifyFailures.WithLabelValues(kindLabel(err)).Inc()
			return res, fmt.Errorf("notify %s: %w", a.ArticleID, err)
		}
		res.Sent++
		j.metrics.NotificationsSent.Inc()
		j.record(ctx, log, res.RunID, a, receipt)
	}

	if len(articles) == 0 {
		log.Warnf("page has no articles, cursor left unchanged")
		return res, nil
	}

	next := articles[0].ArticleID
	if err := j.cursor.Advance(ctx, sel.Stored, sel.HasStore, next); err != nil {
		if !errors.Is(err, storage.ErrCursorMoved) {
			return res, fmt.Errorf("advance cursor: %w", err)
		}
		// 并发运行已推进游标，保留对方写入的值
		res.CursorMoved = true
		j.metrics.CursorConflicts.Inc()
		log.Warnf("cursor changed by another run, not overwriting with %s", next)
		return res, nil
	}
	res.NextCursor = next
	return res, nil
}

func (j *Job) record(ctx context.Context, log *zap.SugaredLogger, runID string, a collector.Article, r notifier.Receipt) {
	if j.deliveries == nil {
		return
	}
	d := &storage.Delivery{
		RunID:       runID,
		ArticleID:   a.ArticleID,
		Title:       a.Title,
		ShareURL:    a.ShareURL,
		PublishedAt: a.Date,
		SentAt:      r.SentAt,
		MessageID:   r.MessageID,
		ExtraData:   datatypes.JSONMap{"text": a.Text},
	}
	if err := j.deliveries.Record(ctx, d); err != nil {
		log.Warnf("record delivery %s: %v", a.ArticleID, err)
	}
}

func (j *Job) observe(res *RunResult, err error) {
	outcome := "ok"
	if err != nil {
		outcome = kindLabel(err)
	}
	j.metrics.Runs.WithLabelValues(outcome).Inc()
	j.metrics.RunDuration.Observe(res.FinishedAt.Sub(res.StartedAt).Seconds())
	j.metrics.ArticlesFetched.Add(float64(res.Fetched))
	j.metrics.ArticlesNew.Add(float64(len(res.New)))
}

func kindLabel(err error) string {
	if k := apperr.KindOf(err); k != "" {
		return string(k)
	}
	return "error"
}
