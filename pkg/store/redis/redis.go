package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rmax-ai/readgraph/pkg/store"
	"go.uber.org/zap"
)

const canvasSet = "readgraph:canvases"

// RedisCanvasStore keeps graph snapshots in Redis for deployments that share
// canvases between instances.
type RedisCanvasStore struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisCanvasStore(client *redis.Client, logger *zap.Logger) *RedisCanvasStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCanvasStore{client: client, logger: logger}
}

func (s *RedisCanvasStore) makeKey(ownerID, documentID string) string {
	return fmt.Sprintf("readgraph:canvas:%s:%s", ownerID, documentID)
}

// SaveCanvas writes the canvas and records its key in the index set.
func (s *RedisCanvasStore) SaveCanvas(ctx context.Context, c *store.Canvas) error {
	if c == nil {
		return errors.New("canvas is nil")
	}
	key := s.makeKey(c.OwnerID, c.DocumentID)
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal canvas: %w", err)
	}
	if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to SET %s: %w", key, err)
	}
	if err := s.client.SAdd(ctx, canvasSet, key).Err(); err != nil {
		// The canvas itself is stored; only ListCanvases is affected.
		s.logger.Warn("canvas_index_failed", zap.String("key", key), zap.Error(err))
	}
	return nil
}

// LoadCanvas returns store.ErrNotFound when no canvas exists for the pair.
func (s *RedisCanvasStore) LoadCanvas(ctx context.Context, ownerID, documentID string) (*store.Canvas, error) {
	key := s.makeKey(ownerID, documentID)
	data, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to GET %s: %w", key, err)
	}
	var c store.Canvas
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal canvas %s: %w", key, err)
	}
	return &c, nil
}

// ListCanvases returns every indexed canvas. Entries that fail to decode are skipped.
func (s *RedisCanvasStore) ListCanvases(ctx context.Context) ([]store.Canvas, error) {
	keys, err := s.client.SMembers(ctx, canvasSet).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to SMEMBERS %s: %w", canvasSet, err)
	}
	if len(keys) == 0 {
		return []store.Canvas{}, nil
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to MGET canvases: %w", err)
	}
	canvases := make([]store.Canvas, 0, len(values))
	for i, val := range values {
		if val == nil {
			continue
		}
		str, ok := val.(string)
		if !ok {
			s.logger.Warn("canvas_non_string", zap.String("key", keys[i]))
			continue
		}
		var c store.Canvas
		if err := json.Unmarshal([]byte(str), &c); err != nil {
			s.logger.Warn("canvas_decode_failed", zap.String("key", keys[i]), zap.Error(err))
			continue
		}
		canvases = append(canvases, c)
	}
	return canvases, nil
}

// Clear removes all indexed canvases and the index itself.
func (s *RedisCanvasStore) Clear(ctx context.Context) error {
	keys, err := s.client.SMembers(ctx, canvasSet).Result()
	if err != nil {
		return fmt.Errorf("failed to SMEMBERS %s: %w", canvasSet, err)
	}
	if len(keys) > 0 {
		if err := s.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("failed to DEL canvases: %w", err)
		}
	}
	return s.client.Del(ctx, canvasSet).Err()
}
