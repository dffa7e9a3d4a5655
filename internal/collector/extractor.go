package collector

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/LJTian/NewsRelay/internal/apperr"
	"github.com/PuerkitoBio/goquery"
)

// Extractor 把列表页 HTML 转换为新闻列表（新→旧，保持源顺序）。
// 页面结构随时可能调整，解析规则只放在实现里，下游只依赖这个接口。
type Extractor interface {
	Extract(html string) ([]Article, error)
}

// DefaultWidgetPattern 匹配 xxx.push({... "items": [...] ...}) 形式的脚本，
// 引号可能被转义成 \"，第 1 个分组是对象字面量本身
var DefaultWidgetPattern = regexp.MustCompile(`(?s)\.push\(\s*(\{.*?\\?"items\\?"\s*:\s*\[.*\})\s*\)`)

var ErrWidgetNotFound = errors.New("no script matches the widget pattern")

// 不带时区的日期按配置时区解释
var localDateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006/01/02 15:04:05",
	"2006-01-02 15:04",
}

// WidgetExtractor 从页面内联脚本里的 widget 配置中读取新闻
type WidgetExtractor struct {
	Location *time.Location
	Pattern  *regexp.Regexp
}

func NewWidgetExtractor(loc *time.Location) *WidgetExtractor {
	if loc == nil {
		loc = time.UTC
	}
	return &WidgetExtractor{Location: loc, Pattern: DefaultWidgetPattern}
}

type widgetPayload struct {
	Items []widgetItem `json:"items"`
}

type widgetItem struct {
	ArticleID flexString `json:"articleId"`
	Title     string     `json:"title"`
	Text      string     `json:"text"`
	Date      flexString `json:"date"`
	ShareURL  string     `json:"shareUrl"`
}

// flexString 兼容 JSON 里的字符串或数字
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expect string or number, got %s", b)
	}
	*f = flexString(n.String())
	return nil
}

func (e *WidgetExtractor) Extract(html string) ([]Article, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, apperr.Parse("parse html", err)
	}

	pattern := e.Pattern
	if pattern == nil {
		pattern = DefaultWidgetPattern
	}

	var literal string
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if m := pattern.FindStringSubmatch(s.Text()); m != nil {
			literal = m[1]
			return false
		}
		return true
	})
	if literal == "" {
		return nil, apperr.Parse("extract widget", ErrWidgetNotFound)
	}

	literal = strings.ReplaceAll(literal, `\"`, `"`)

	// 贪婪匹配可能把同一脚本里后续的 push(...) 一并带上，只解码第一个 JSON 值
	var payload widgetPayload
	if err := json.NewDecoder(strings.NewReader(literal)).Decode(&payload); err != nil {
		return nil, apperr.Parse("decode widget", err)
	}

	articles := make([]Article, 0, len(payload.Items))
	for i, it := range payload.Items {
		date, err := e.parseDate(string(it.Date))
		if err != nil {
			return nil, apperr.Parse("decode widget", fmt.Errorf("item %d (%s): %w", i, it.ArticleID, err))
		}
		articles = append(articles, Article{
			ArticleID: strings.TrimSpace(string(it.ArticleID)),
			Date:      date,
			Title:     strings.TrimSpace(it.Title),
			Text:      strings.TrimSpace(it.Text),
			ShareURL:  strings.TrimSpace(it.ShareURL),
		})
	}
	return articles, nil
}

// parseDate 支持 RFC3339、无时区的本地时间以及 unix 秒/毫秒
func (e *WidgetExtractor) parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty date")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(e.Location), nil
	}
	for _, layout := range localDateLayouts {
		if t, err := time.ParseInLocation(layout, s, e.Location); err == nil {
			return t, nil
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > 1e12 {
			return time.UnixMilli(n).In(e.Location), nil
		}
		return time.Unix(n, 0).In(e.Location), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}
