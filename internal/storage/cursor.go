package storage

import (
	"context"
	"errors"

	"github.com/LJTian/NewsRelay/internal/apperr"
	"github.com/redis/go-redis/v9"
)

// ErrCursorMoved 读取之后游标已被其他运行修改
var ErrCursorMoved = errors.New("cursor moved by a concurrent run")

// CursorStore 在 redis 单个 key 上保存最近处理的文章 ID
type CursorStore struct {
	rdb *redis.Client
	key string
}

func NewCursorStore(rdb *redis.Client, key string) *CursorStore {
	return &CursorStore{rdb: rdb, key: key}
}

func (s *CursorStore) Key() string {
	return s.key
}

// LastSeen key 不存在时 ok 为 false
func (s *CursorStore) LastSeen(ctx context.Context) (string, bool, error) {
	val, err := s.rdb.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperr.Network("get "+s.key, 0, err)
	}
	return val, true, nil
}

// Advance 比较并写入：仅当当前值仍是 prev（hadPrev=false 表示 key 应不存在）时写入 next，
// 否则返回 ErrCursorMoved
func (s *CursorStore) Advance(ctx context.Context, prev string, hadPrev bool, next string) error {
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, s.key).Result()
		exists := true
		if errors.Is(err, redis.Nil) {
			exists = false
		} else if err != nil {
			return err
		}
		if exists != hadPrev || cur != prev {
			return ErrCursorMoved
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.key, next, 0)
			return nil
		})
		return err
	}, s.key)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrCursorMoved), errors.Is(err, redis.TxFailedErr):
		return ErrCursorMoved
	default:
		return apperr.Network("set "+s.key, 0, err)
	}
}
