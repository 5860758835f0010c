// Package intents journals multi-step saves in Redis so that a save which
// dies halfway can be rolled back later.
package intents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	intentKeyPrefix = "save:intent:"         // save:intent:{id} -> JSON
	intentBlobsFmt  = "save:intent:%s:blobs" // set of blob keys written so far
	pendingKey      = "save:intents:pending" // sorted set of intent ids scored by start time (unix ms)
	intentTTL       = 7 * 24 * time.Hour
)

var ErrIntentNotFound = errors.New("save intent not found")

// Operation tells the reconciler how to undo an abandoned save.
type Operation string

const (
	// OpCreate covers a brand new project: rollback removes the whole project.
	OpCreate Operation = "create"
	// OpUpdate covers files written into an existing project: rollback only
	// removes blobs that never got a file record.
	OpUpdate Operation = "update"
)

const StatusPending = "pending"

// Intent describes an in-flight or failed save.
type Intent struct {
	ID        string    `json:"id"`
	Operation Operation `json:"operation"`
	ProjectID string    `json:"project_id"`
	Container string    `json:"container"`
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	BlobKeys  []string  `json:"-"`
}

// Log is the Redis-backed save intent journal.
type Log struct {
	client *redis.Client
	now    func() time.Time
}

func NewLog(client *redis.Client) *Log {
	return &Log{client: client, now: time.Now}
}

// WithClock overrides the time source. Used by tests.
func (l *Log) WithClock(now func() time.Time) *Log {
	l.now = now
	return l
}

// Begin records a pending intent for a save about to start.
func (l *Log) Begin(ctx context.Context, op Operation, projectID, container string) (*Intent, error) {
	in := &Intent{
		ID:        uuid.NewString(),
		Operation: op,
		ProjectID: projectID,
		Container: container,
		Status:    StatusPending,
		StartedAt: l.now().UTC(),
	}

	data, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal intent: %w", err)
	}

	pipe := l.client.TxPipeline()
	pipe.Set(ctx, intentKey(in.ID), data, intentTTL)
	pipe.ZAdd(ctx, pendingKey, redis.Z{Score: float64(in.StartedAt.UnixMilli()), Member: in.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin intent: %w", err)
	}
	return in, nil
}

// AddBlob records that key was written under the intent's container.
func (l *Log) AddBlob(ctx context.Context, intentID, key string) error {
	blobs := blobsKey(intentID)

	pipe := l.client.TxPipeline()
	pipe.SAdd(ctx, blobs, key)
	pipe.Expire(ctx, blobs, intentTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record blob: %w", err)
	}
	return nil
}

// Complete drops the intent once the save has finished.
func (l *Log) Complete(ctx context.Context, intentID string) error {
	return l.Remove(ctx, intentID)
}

// Get loads an intent together with the blob keys written so far.
func (l *Log) Get(ctx context.Context, intentID string) (*Intent, error) {
	data, err := l.client.Get(ctx, intentKey(intentID)).Result()
	if err == redis.Nil {
		return nil, ErrIntentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get intent: %w", err)
	}

	var in Intent
	if err := json.Unmarshal([]byte(data), &in); err != nil {
		return nil, fmt.Errorf("failed to unmarshal intent: %w", err)
	}

	keys, err := l.client.SMembers(ctx, blobsKey(intentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list intent blobs: %w", err)
	}
	in.BlobKeys = keys
	return &in, nil
}

// ListStale returns pending intents started at or before cutoff. Index
// entries whose intent already expired are pruned.
func (l *Log) ListStale(ctx context.Context, cutoff time.Time) ([]Intent, error) {
	ids, err := l.client.ZRangeByScore(ctx, pendingKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", cutoff.UnixMilli()),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list pending intents: %w", err)
	}

	out := make([]Intent, 0, len(ids))
	for _, id := range ids {
		in, err := l.Get(ctx, id)
		if errors.Is(err, ErrIntentNotFound) {
			l.client.ZRem(ctx, pendingKey, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *in)
	}
	return out, nil
}

// Remove deletes the intent and its blob set.
func (l *Log) Remove(ctx context.Context, intentID string) error {
	pipe := l.client.TxPipeline()
	pipe.Del(ctx, intentKey(intentID), blobsKey(intentID))
	pipe.ZRem(ctx, pendingKey, intentID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to remove intent: %w", err)
	}
	return nil
}

func intentKey(id string) string {
	return intentKeyPrefix + id
}

func blobsKey(id string) string {
	return fmt.Sprintf(intentBlobsFmt, id)
}
