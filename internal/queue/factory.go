package queue

import (
	"context"
	"database/sql"
	"fmt"
)

// Type names accepted by New
const (
	TypeDatabase = "database"
	TypeRedis    = "redis"
)

// New builds the queue implementation selected by queueType.
// db is required for TypeDatabase and redisURL for TypeRedis.
func New(ctx context.Context, queueType string, db *sql.DB, redisURL string) (Queue, error) {
	switch queueType {
	case TypeDatabase:
		q, err := NewDBQueue(db)
		if err != nil {
			return nil, err
		}
		return q, nil
	case TypeRedis:
		q, err := NewRedisQueueFromURL(ctx, redisURL)
		if err != nil {
			return nil, err
		}
		return q, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownQueueType, queueType)
	}
}
