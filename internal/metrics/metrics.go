package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "newsrelay"

// Metrics 运行指标；注册到传入的 Registerer，测试可用独立的 Registry
type Metrics struct {
	Runs              *prometheus.CounterVec
	RunDuration       prometheus.Histogram
	ArticlesFetched   prometheus.Counter
	ArticlesNew       prometheus.Counter
	NotificationsSent prometheus.Counter
	NotifyFailures    *prometheus.CounterVec
	CursorConflicts   prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Runs by outcome (ok, network_failure, parse_failure, delivery_failure, error).",
		}, []string{"outcome"}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a full fetch-filter-notify run.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		}),
		ArticlesFetched: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_fetched_total",
			Help:      "Articles extracted from the news page.",
		}),
		ArticlesNew: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_new_total",
			Help:      "Articles selected as new.",
		}),
		NotificationsSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_sent_total",
			Help:      "Notifications accepted by the messaging API.",
		}),
		NotifyFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_failures_total",
			Help:      "Failed notification sends by error kind.",
		}, []string{"kind"}),
		CursorConflicts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cursor_conflicts_total",
			Help:      "Cursor updates skipped because another run moved the cursor.",
		}),
	}
}
