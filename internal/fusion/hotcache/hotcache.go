// Package hotcache keeps recently-read HOT timelines in Redis so dashboard
// style callers do not re-scan the record store on every poll. The cache is
// strictly best-effort: every failure degrades to a store read, and
// retention state is always recomputed by the service after a hit, so a
// stale entry can never resurrect an archived record as HOT.
package hotcache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"fusionledger/internal/fusion/models"
	id "fusionledger/pkg/domain"
)

const keyPrefix = "fusion:timeline:"

// DefaultTTL bounds staleness between fusions for the same subject.
const DefaultTTL = 5 * time.Minute

// Cache is a Redis-backed timeline cache.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// New builds a cache over the given client. A zero ttl falls back to
// DefaultTTL.
func New(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{client: client, ttl: ttl, logger: logger}
}

func key(subjectID id.SubjectID) string {
	return keyPrefix + subjectID.String()
}

// GetTimeline returns the cached timeline and whether it was present.
func (c *Cache) GetTimeline(ctx context.Context, subjectID id.SubjectID) ([]*models.Record, bool) {
	payload, err := c.client.Get(ctx, key(subjectID)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.logger.WarnContext(ctx, "timeline cache read failed", "subject_id", subjectID, "error", err)
		return nil, false
	}

	var records []*models.Record
	if err := json.Unmarshal(payload, &records); err != nil {
		c.logger.WarnContext(ctx, "timeline cache entry corrupt, dropping", "subject_id", subjectID, "error", err)
		c.Invalidate(ctx, subjectID)
		return nil, false
	}
	return records, true
}

// SetTimeline stores a timeline. Only fully-HOT timelines are worth caching;
// callers gate on the retention predicate before calling.
func (c *Cache) SetTimeline(ctx context.Context, subjectID id.SubjectID, records []*models.Record) {
	payload, err := json.Marshal(records)
	if err != nil {
		c.logger.WarnContext(ctx, "timeline cache marshal failed", "subject_id", subjectID, "error", err)
		return
	}
	if err := c.client.Set(ctx, key(subjectID), payload, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "timeline cache write failed", "subject_id", subjectID, "error", err)
	}
}

// Invalidate drops a subject's cached timeline; called after every fusion
// for that subject.
func (c *Cache) Invalidate(ctx context.Context, subjectID id.SubjectID) {
	if err := c.client.Del(ctx, key(subjectID)).Err(); err != nil {
		c.logger.WarnContext(ctx, "timeline cache invalidation failed", "subject_id", subjectID, "error", err)
	}
}
