package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/LJTian/NewsRelay/internal/apperr"
	"github.com/LJTian/NewsRelay/internal/collector"
	"github.com/LJTian/NewsRelay/internal/metrics"
	"github.com/LJTian/NewsRelay/internal/notifier"
	"github.com/LJTian/NewsRelay/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticFetcher struct {
	html string
	err  error
}

func (f staticFetcher) Fetch(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", apperr.Network("fetch news page", 0, err)
	}
	return f.html, f.err
}

type memCursor struct {
	id       string
	ok       bool
	getErr   error
	moved    bool
	setCalls int
}

func (c *memCursor) LastSeen(context.Context) (string, bool, error) {
	return c.id, c.ok, c.getErr
}

func (c *memCursor) Advance(_ context.Context, prev string, hadPrev bool, next string) error {
	c.setCalls++
	if c.moved {
		return storage.ErrCursorMoved
	}
	if hadPrev != c.ok || prev != c.id {
		return storage.ErrCursorMoved
	}
	c.id, c.ok = next, true
	return nil
}

type recordingNotifier struct {
	sent   []string
	failAt int // 第几次调用失败（从 1 开始），0 表示不失败
}

func (n *recordingNotifier) Notify(_ context.Context, a collector.Article) (notifier.Receipt, error) {
	if n.failAt > 0 && len(n.sent)+1 == n.failAt {
		return notifier.Receipt{}, apperr.Delivery("telegram sendMessage", 429, errors.New("Too Many Requests"))
	}
	n.sent = append(n.sent, a.ArticleID)
	return notifier.Receipt{MessageID: int64(len(n.sent)), SentAt: time.Now()}, nil
}

type memDeliveries struct {
	rows []*storage.Delivery
	err  error
}

func (d *memDeliveries) Record(_ context.Context, row *storage.Delivery) error {
	if d.err != nil {
		return d.err
	}
	d.rows = append(d.rows, row)
	return nil
}

// feedPage 生成内联 widget 的列表页，文章 a{n-1}..a0 新→旧，日期与编号对应
func feedPage(n int) string {
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	items := make([]string, 0, n)
	for i := n - 1; i >= 0; i-- {
		items = append(items, fmt.Sprintf(`{\"articleId\":\"a%d\",\"title\":\"title %d\",\"text\":\"text %d\",\"date\":\"%s\",\"shareUrl\":\"https://news.example/a%d\"}`,
			i, i, i, base.Add(time.Duration(i)*time.Hour).Format(time.RFC3339), i))
	}
	return `<html><body><script>window.widgets.push({\"items\":[` + strings.Join(items, ",") + `]});</script></body></html>`
}

func newTestJob(fetcher collector.Fetcher, cursor *memCursor, n *recordingNotifier, d DeliveryRecorder) (*Job, *metrics.Metrics) {
	m := metrics.New(prometheus.NewRegistry())
	job := NewJob(Deps{
		Fetcher:    fetcher,
		Extractor:  collector.NewWidgetExtractor(time.UTC),
		Cursor:     cursor,
		Notifier:   n,
		Deliveries: d,
		Metrics:    m,
	})
	return job, m
}

func TestRunSendsNewArticlesOldestFirst(t *testing.T) {
	cursor := &memCursor{id: "a7", ok: true}
	n := &recordingNotifier{}
	deliveries := &memDeliveries{}
	job, m := newTestJob(staticFetcher{html: feedPage(10)}, cursor, n, deliveries)

	res, err := job.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"a8", "a9"}, n.sent)
	assert.Equal(t, 10, res.Fetched)
	assert.Equal(t, 2, res.Sent)
	assert.Equal(t, "a9", res.NextCursor)
	assert.Equal(t, "a9", cursor.id)
	assert.NotEmpty(t, res.RunID)

	require.Len(t, deliveries.rows, 2)
	assert.Equal(t, "a8", deliveries.rows[0].ArticleID)
	assert.Equal(t, res.RunID, deliveries.rows[0].RunID)
	assert.Equal(t, int64(1), deliveries.rows[0].MessageID)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.NotificationsSent))
}

func TestRunColdStartShortBatch(t *testing.T) {
	cursor := &memCursor{}
	n := &recordingNotifier{}
	job, _ := newTestJob(staticFetcher{html: feedPage(3)}, cursor, n, nil)

	res, err := job.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Fallback)
	assert.Equal(t, []string{"a1", "a2"}, n.sent)
	assert.Equal(t, "a2", cursor.id)
}

func TestRunNoNewArticlesStillAdvancesCursor(t *testing.T) {
	cursor := &memCursor{id: "a4", ok: true}
	n := &recordingNotifier{}
	job, _ := newTestJob(staticFetcher{html: feedPage(5)}, cursor, n, nil)

	res, err := job.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, n.sent)
	assert.Empty(t, res.New)
	assert.Equal(t, 1, cursor.setCalls)
	assert.Equal(t, "a4", cursor.id)
}

func TestRunDeliveryFailureKeepsCursor(t *testing.T) {
	cursor := &memCursor{id: "a7", ok: true}
	n := &recordingNotifier{failAt: 2}
	job, m := newTestJob(staticFetcher{html: feedPage(10)}, cursor, n, nil)

	_, err := job.Run(context.Background())
	require.Error(t, err)

	assert.Equal(t, apperr.DeliveryFailure, apperr.KindOf(err))
	assert.Equal(t, []string{"a8"}, n.sent)
	assert.Equal(t, 0, cursor.setCalls)
	assert.Equal(t, "a7", cursor.id)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues(string(apperr.DeliveryFailure))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotifyFailures.WithLabelValues(string(apperr.DeliveryFailure))))
}

func TestRunFetchFailure(t *testing.T) {
	cursor := &memCursor{id: "a1", ok: true}
	n := &recordingNotifier{}
	job, _ := newTestJob(staticFetcher{err: apperr.Network("fetch news page", 503, errors.New("Service Unavailable"))}, cursor, n, nil)

	_, err := job.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperr.NetworkFailure, apperr.KindOf(err))
	assert.Empty(t, n.sent)
	assert.Equal(t, 0, cursor.setCalls)
}

func TestRunParseFailure(t *testing.T) {
	cursor := &memCursor{id: "a1", ok: true}
	n := &recordingNotifier{}
	job, _ := newTestJob(staticFetcher{html: "<html><body>redesigned</body></html>"}, cursor, n, nil)

	_, err := job.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperr.ParseFailure, apperr.KindOf(err))
	assert.Equal(t, 0, cursor.setCalls)
}

func TestRunCursorReadFailure(t *testing.T) {
	cursor := &memCursor{getErr: apperr.Network("get lastSeenArticleId", 0, errors.New("i/o timeout"))}
	n := &recordingNotifier{}
	job, _ := newTestJob(staticFetcher{html: feedPage(3)}, cursor, n, nil)

	_, err := job.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperr.NetworkFailure, apperr.KindOf(err))
	assert.Empty(t, n.sent)
}

func TestRunCursorMovedIsNotFatal(t *testing.T) {
	cursor := &memCursor{id: "a7", ok: true, moved: true}
	n := &recordingNotifier{}
	job, m := newTestJob(staticFetcher{html: feedPage(10)}, cursor, n, nil)

	res, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.CursorMoved)
	assert.Empty(t, res.NextCursor)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CursorConflicts))
}

func TestRunEmptyPageLeavesCursor(t *testing.T) {
	cursor := &memCursor{id: "a7", ok: true}
	n := &recordingNotifier{}
	job, _ := newTestJob(staticFetcher{html: feedPage(0)}, cursor, n, nil)

	res, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Fetched)
	assert.Equal(t, 0, cursor.setCalls)
}

func TestRunDeliveryLogFailureIsNotFatal(t *testing.T) {
	cursor := &memCursor{id: "a8", ok: true}
	n := &recordingNotifier{}
	job, _ := newTestJob(staticFetcher{html: feedPage(10)}, cursor, n, &memDeliveries{err: errors.New("db down")})

	_, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a9"}, n.sent)
	assert.Equal(t, "a9", cursor.id)
}

func TestRunCanceledContextStopsAtFetch(t *testing.T) {
	cursor := &memCursor{id: "a7", ok: true}
	n := &recordingNotifier{}
	job, _ := newTestJob(staticFetcher{html: feedPage(10)}, cursor, n, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := job.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, apperr.NetworkFailure, apperr.KindOf(err))
	assert.Empty(t, n.sent)
	assert.Equal(t, 0, cursor.setCalls)
}
