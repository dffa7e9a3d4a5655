package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LJTian/NewsRelay/internal/logger"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const pingTimeout = 5 * time.Second

var ErrEmptyStoreURL = errors.New("store url is required")

// NewRedisClient 按 URL 连接游标存储。token 作为密码使用（Upstash 风格），
// URL 中已带密码时以 token 为准
func NewRedisClient(storeURL, token string) (*redis.Client, error) {
	if storeURL == "" {
		return nil, ErrEmptyStoreURL
	}
	opt, err := redis.ParseURL(storeURL)
	if err != nil {
		return nil, fmt.Errorf("parse store url: %w", err)
	}
	if token != "" {
		opt.Password = token
	}
	opt.DialTimeout = pingTimeout

	rdb := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

// OpenDeliveryDB 连接 PostgreSQL 并迁移投递记录表
func OpenDeliveryDB(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Delivery{}); err != nil {
		return nil, err
	}
	logger.Infof("delivery log ready")
	return db, nil
}
