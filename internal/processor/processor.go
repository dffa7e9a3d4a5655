package processor

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/LJTian/NewsRelay/internal/collector"
)

// ColdStartBacklog 没有游标时最多补发的条数
const ColdStartBacklog = 6

// CursorReader 读取上次处理到的文章 ID
type CursorReader interface {
	LastSeen(ctx context.Context) (id string, ok bool, err error)
}

// Selection 一次筛选的结果
type Selection struct {
	Stored   string // 存储中的原始值，更新游标时用于比较
	HasStore bool
	Cursor   string // 实际用于比较的边界；Fallback 为 true 时是冷启动边界
	Fallback bool
	Found    bool // 边界是否出现在本批文章中
	New      []collector.Article
}

// Filter 根据持久化游标计算本轮新增的文章
type Filter struct {
	cursor CursorReader
}

func NewFilter(cursor CursorReader) *Filter {
	return &Filter{cursor: cursor}
}

// Apply articles 需为新→旧顺序；返回的新文章按发布时间升序
func (f *Filter) Apply(ctx context.Context, articles []collector.Article) (*Selection, error) {
	stored, ok, err := f.cursor.LastSeen(ctx)
	if err != nil {
		return nil, fmt.Errorf("read cursor: %w", err)
	}

	sel := &Selection{Stored: stored, HasStore: ok}
	if ok {
		sel.Cursor = stored
	} else if id, fallbackOK := FallbackCursor(articles); fallbackOK {
		sel.Cursor = id
		sel.Fallback = true
	}

	sel.New, sel.Found = SelectNew(articles, sel.Cursor)
	return sel, nil
}

// FallbackCursor 冷启动边界：新→旧序列中下标 min(len-1, ColdStartBacklog) 的文章，
// 即最多补发最近 6 条；不足 7 条时以最旧的一条为边界
func FallbackCursor(articles []collector.Article) (string, bool) {
	if len(articles) == 0 {
		return "", false
	}
	idx := min(len(articles)-1, ColdStartBacklog)
	return articles[idx].ArticleID, true
}

// SelectNew 取游标之前（更新）的文章并按发布时间升序排列。
// 游标不在本批中时（例如停机太久），整批都视为新文章。
func SelectNew(articles []collector.Article, cursor string) ([]collector.Article, bool) {
	idx := slices.IndexFunc(articles, func(a collector.Article) bool {
		return a.ArticleID == cursor
	})

	found := idx >= 0
	if !found {
		idx = len(articles)
	}

	out := make([]collector.Article, idx)
	copy(out, articles[:idx])
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out, found
}
