package storage

import (
	"context"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Delivery 一条已成功发送的通知，只追加不修改
type Delivery struct {
	ID          uint              `gorm:"primaryKey" json:"id"`
	RunID       string            `gorm:"size:36;index" json:"runId"`
	ArticleID   string            `gorm:"size:64;index" json:"articleId"`
	Title       string            `gorm:"size:512" json:"title"`
	ShareURL    string            `gorm:"size:1024" json:"shareUrl"`
	PublishedAt time.Time         `json:"publishedAt"`
	SentAt      time.Time         `gorm:"index" json:"sentAt"`
	MessageID   int64             `json:"messageId"`
	ExtraData   datatypes.JSONMap `gorm:"type:jsonb" json:"extraData"`

	CreatedAt time.Time `json:"createdAt"`
}

// DeliveryLog 投递记录，仅用于审计与查询，不参与新文章判断
type DeliveryLog struct {
	db *gorm.DB
}

func NewDeliveryLog(db *gorm.DB) *DeliveryLog {
	return &DeliveryLog{db: db}
}

func (l *DeliveryLog) Record(ctx context.Context, d *Delivery) error {
	d.Title = truncateRunesDB(toValidUTF8(d.Title), 512)
	d.ShareURL = truncateRunesDB(d.ShareURL, 1024)
	return l.db.WithContext(ctx).Create(d).Error
}

// Recent 最近的投递记录，按发送时间倒序
func (l *DeliveryLog) Recent(ctx context.Context, limit int) ([]Delivery, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var list []Delivery
	err := l.db.WithContext(ctx).Order("sent_at DESC").Limit(limit).Find(&list).Error
	return list, err
}

// toValidUTF8 避免 PostgreSQL invalid byte sequence
func toValidUTF8(s string) string {
	return strings.ToValidUTF8(s, "\uFFFD")
}

// truncateRunesDB 按 rune 截断，确保不超过 varchar 长度
func truncateRunesDB(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	s = strings.TrimSpace(s)
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	return string(rs[:limit])
}
