package ranking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/quotepulse/stock-tracker/internal/entity"
	"github.com/redis/go-redis/v9"
)

const (
	boardCacheKeyPrefix = "stock-tracker:ranking:latest:"
	boardCacheDuration  = 2 * time.Hour
)

// BoardStore caches the latest ranking board per market.
type BoardStore interface {
	Load(ctx context.Context, market string) (*entity.RankingBoard, bool, error)
	Save(ctx context.Context, board *entity.RankingBoard) error
}

type RedisBoardStore struct {
	client *redis.Client
}

func NewRedisBoardStore(client *redis.Client) *RedisBoardStore {
	return &RedisBoardStore{client: client}
}

func (s *RedisBoardStore) Load(ctx context.Context, market string) (*entity.RankingBoard, bool, error) {
	raw, err := s.client.Get(ctx, boardCacheKeyPrefix+market).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var board entity.RankingBoard
	if err := json.Unmarshal(raw, &board); err != nil {
		return nil, false, fmt.Errorf("decode cached ranking board: %w", err)
	}

	return &board, true, nil
}

func (s *RedisBoardStore) Save(ctx context.Context, board *entity.RankingBoard) error {
	payload, err := json.Marshal(board)
	if err != nil {
		return err
	}

	return s.client.Set(ctx, boardCacheKeyPrefix+board.Market, payload, boardCacheDuration).Err()
}
