package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/TIANLI0/HairTint/config"
	"github.com/TIANLI0/HairTint/model"
	"github.com/TIANLI0/HairTint/utils"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// MaskRepository 按图片标识查询/保存记录。
// Get 只返回掩码记录；染色结果单独存放，只出现在 List 中。
type MaskRepository interface {
	Get(ctx context.Context, md5 string) (*model.MaskRecord, error)
	Save(ctx context.Context, record *model.MaskRecord) error
	List(ctx context.Context, limit int) ([]*model.MaskRecord, error)
}

type RedisService struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisService(cfg *config.RedisConfig) *RedisService {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &RedisService{
		client: client,
		ttl:    cfg.TTL,
		prefix: cfg.KeyPrefix,
	}
}

func (s *RedisService) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// indexMember 时间索引成员，形如 "mask:<md5>" 或 "result:<md5>"
func indexMember(kind, md5 string) string {
	if kind == "" {
		kind = model.KindMask
	}
	return kind + ":" + md5
}

func (s *RedisService) recordKey(kind, md5 string) string {
	return s.prefix + indexMember(kind, md5)
}

func (s *RedisService) indexKey() string {
	return s.prefix + "index"
}

// Get 获取掩码记录，未命中返回 nil, nil
func (s *RedisService) Get(ctx context.Context, md5 string) (*model.MaskRecord, error) {
	return s.load(ctx, s.recordKey(model.KindMask, md5))
}

func (s *RedisService) load(ctx context.Context, key string) (*model.MaskRecord, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // 缓存未命中
		}
		return nil, err
	}

	var record model.MaskRecord
	if err := json.Unmarshal(data, &record); err != nil {
		utils.Logger.Error("failed to unmarshal mask record",
			zap.String("key", key), zap.Error(err))
		return nil, err
	}

	return &record, nil
}

// Save 按记录类型保存并写入时间索引
func (s *RedisService) Save(ctx context.Context, record *model.MaskRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.recordKey(record.Kind, record.MD5), data, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(record.Timestamp), Member: indexMember(record.Kind, record.MD5)})
	_, err = pipe.Exec(ctx)
	return err
}

// List 按时间倒序列出掩码与染色结果，跳过已过期的条目
func (s *RedisService) List(ctx context.Context, limit int) ([]*model.MaskRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	members, err := s.client.ZRevRange(ctx, s.indexKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	records := make([]*model.MaskRecord, 0, len(members))
	var stale []any
	for _, member := range members {
		record, err := s.load(ctx, s.prefix+member)
		if err != nil {
			return nil, err
		}
		if record == nil {
			stale = append(stale, member)
			continue
		}
		records = append(records, record)
	}

	if len(stale) > 0 {
		if err := s.client.ZRem(ctx, s.indexKey(), stale...).Err(); err != nil {
			utils.Logger.Warn("failed to prune mask index", zap.Error(err))
		}
	}

	return records, nil
}

func (s *RedisService) Close() error {
	return s.client.Close()
}
