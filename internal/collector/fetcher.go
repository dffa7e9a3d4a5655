package collector

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/LJTian/NewsRelay/internal/apperr"
	"github.com/LJTian/NewsRelay/internal/logger"
	"github.com/gocolly/colly/v2"
)

// Article 新闻列表页中的一条新闻
type Article struct {
	ArticleID string    `json:"articleId"`
	Date      time.Time `json:"date"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	ShareURL  string    `json:"shareUrl"`
}

// Fetcher 抽象新闻列表页的抓取，返回原始 HTML
type Fetcher interface {
	Fetch(ctx context.Context) (string, error)
}

// HTMLFetcher 使用 colly 抓取新闻分类页，带浏览器风格的请求头
type HTMLFetcher struct {
	URL       string
	UserAgent string
	Timeout   time.Duration
}

func NewHTMLFetcher(url, userAgent string, timeout time.Duration) *HTMLFetcher {
	return &HTMLFetcher{URL: url, UserAgent: userAgent, Timeout: timeout}
}

// Fetch 请求随 ctx 取消；Timeout 是单次请求的上限
func (f *HTMLFetcher) Fetch(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", apperr.Network("fetch news page", 0, err)
	}
	logger.Infof("fetch news page %s ...", f.URL)

	// 每次抓取新建 collector，避免 colly 的已访问 URL 去重
	c := colly.NewCollector(colly.UserAgent(f.UserAgent))
	if f.Timeout > 0 {
		c.SetRequestTimeout(f.Timeout)
	}
	c.WithTransport(contextTransport{ctx: ctx, base: http.DefaultTransport})

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "fa-IR,fa;q=0.9,en-US;q=0.8,en;q=0.7")
		r.Headers.Set("Cache-Control", "no-cache")
		r.Headers.Set("Pragma", "no-cache")
		r.Headers.Set("Upgrade-Insecure-Requests", "1")
	})

	var (
		body   string
		status int
	)
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = string(r.Body)
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
	})

	if err := c.Visit(f.URL); err != nil {
		return "", apperr.Network("fetch news page", status, err)
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return "", apperr.Network("fetch news page", status, errors.New(http.StatusText(status)))
	}

	logger.Infof("fetch news page done, %d bytes", len(body))
	return body, nil
}

// contextTransport 把调用方的 ctx 绑定到 colly 发出的请求上
type contextTransport struct {
	ctx  context.Context
	base http.RoundTripper
}

func (t contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.base.RoundTrip(req.WithContext(t.ctx))
}
