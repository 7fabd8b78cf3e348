package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"meetme/internal/agenda"
	"meetme/internal/models"
)

// Cached is a read-through LRU cache in front of another Store.
// Schedules are copied on the way in and out so callers can mutate what they get.
type Cached struct {
	next   Store
	cache  *lru.Cache[uuid.UUID, models.Schedule]
	logger *slog.Logger
}

// NewCached wraps next with an LRU holding up to size schedules.
func NewCached(next Store, size int, logger *slog.Logger) (*Cached, error) {
	cache, err := lru.New[uuid.UUID, models.Schedule](size)
	if err != nil {
		return nil, fmt.Errorf("create schedule cache: %w", err)
	}
	return &Cached{next: next, cache: cache, logger: logger}, nil
}

func (c *Cached) FindByID(ctx context.Context, id uuid.UUID) (*models.Schedule, error) {
	if sched, ok := c.cache.Get(id); ok {
		c.logger.Debug("Schedule cache hit", "id", id)
		return &sched, nil
	}
	c.logger.Debug("Schedule cache miss", "id", id)

	sched, err := c.next.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cache.Add(id, *sched)
	return sched, nil
}

func (c *Cached) Upsert(ctx context.Context, sched *models.Schedule) error {
	if err := c.next.Upsert(ctx, sched); err != nil {
		c.cache.Remove(sched.ID)
		return err
	}
	c.cache.Add(sched.ID, *sched)
	return nil
}

func (c *Cached) DeleteExpired(ctx context.Context, before agenda.Date) (int64, error) {
	n, err := c.next.DeleteExpired(ctx, before)
	if err != nil {
		return 0, err
	}
	for _, id := range c.cache.Keys() {
		if sched, ok := c.cache.Peek(id); ok && sched.Window.Last.Before(before) {
			c.cache.Remove(id)
		}
	}
	return n, nil
}

func (c *Cached) Close() error {
	c.cache.Purge()
	return c.next.Close()
}
