package notifier

import (
	"fmt"
	"strings"
	"time"

	"github.com/LJTian/NewsRelay/internal/collector"
)

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#039;",
)

// EscapeHTML 转义 Telegram HTML 模式下会破坏标记的字符
func EscapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}

// Formatter 把文章渲染为 Telegram HTML 消息
type Formatter struct {
	Location  *time.Location
	LinkLabel string
	AtWord    string
}

// Format 第一行是来源链接与发布时间，随后是标题与正文，均为转义后的纯文本，段落间空一行
func (f Formatter) Format(a collector.Article) string {
	loc := f.Location
	if loc == nil {
		loc = time.UTC
	}
	date := a.Date.In(loc)

	header := fmt.Sprintf(`<a href="%s">%s</a> %s %s %s`,
		EscapeHTML(a.ShareURL),
		EscapeHTML(f.LinkLabel),
		date.Format("02/01/2006"),
		EscapeHTML(f.AtWord),
		date.Format("15:04:05"),
	)

	var b strings.Builder
	b.WriteString(header)
	if a.Title != "" {
		b.WriteString("\n\n")
		b.WriteString(EscapeHTML(a.Title))
	}
	if a.Text != "" {
		b.WriteString("\n\n")
		b.WriteString(EscapeHTML(a.Text))
	}
	return b.String()
}
