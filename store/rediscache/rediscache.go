// Package rediscache keeps the last successfully resolved schedule in
// Redis, so a configuration-store outage degrades to stale data across
// every server instance, not just the one that resolved last.
package rediscache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/warp/ojt-engine/schedule"
)

// DefaultTTL bounds staleness: a cached schedule older than this is not
// worth serving even in a degraded state.
const DefaultTTL = 7 * 24 * time.Hour

// Cache implements schedule.Cache on Redis. All operations are
// best-effort: a Redis failure is logged and reported as a miss.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ schedule.Cache = (*Cache)(nil)

// New connects to addr with short timeouts suitable for a cache that must
// never stall a gating decision.
func New(addr string) *Cache {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	return &Cache{client: client, ttl: DefaultTTL}
}

// NewWithClient wraps an existing client (tests).
func NewWithClient(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{client: client, ttl: ttl}
}

// Healthy verifies connectivity.
func (c *Cache) Healthy(ctx context.Context) bool {
	return c.client.Ping(ctx).Err() == nil
}

// entry is the wire form; only minute values travel, absent fields stay
// absent on round-trip.
type entry struct {
	AMIn  *int `json:"am_in,omitempty"`
	AMOut *int `json:"am_out,omitempty"`
	PMIn  *int `json:"pm_in,omitempty"`
	PMOut *int `json:"pm_out,omitempty"`
	OTIn  *int `json:"ot_in,omitempty"`
	OTOut *int `json:"ot_out,omitempty"`
}

func key(studentID string, date schedule.Date) string {
	return fmt.Sprintf("ojt:sched:%s:%s", studentID, date)
}

func (c *Cache) Get(ctx context.Context, studentID string, date schedule.Date) (schedule.Effective, bool) {
	raw, err := c.client.Get(ctx, key(studentID, date)).Bytes()
	if err == redis.Nil {
		return schedule.Effective{}, false
	}
	if err != nil {
		log.Printf("rediscache: get failed for %s/%s: %v", studentID, date, err)
		return schedule.Effective{}, false
	}
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return schedule.Effective{}, false
	}
	return schedule.Effective{
		AMIn: tod(e.AMIn), AMOut: tod(e.AMOut),
		PMIn: tod(e.PMIn), PMOut: tod(e.PMOut),
		OTIn: tod(e.OTIn), OTOut: tod(e.OTOut),
	}, true
}

func (c *Cache) Put(ctx context.Context, studentID string, date schedule.Date, sched schedule.Effective) {
	raw, err := json.Marshal(entry{
		AMIn: minutes(sched.AMIn), AMOut: minutes(sched.AMOut),
		PMIn: minutes(sched.PMIn), PMOut: minutes(sched.PMOut),
		OTIn: minutes(sched.OTIn), OTOut: minutes(sched.OTOut),
	})
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key(studentID, date), raw, c.ttl).Err(); err != nil {
		log.Printf("rediscache: put failed for %s/%s: %v", studentID, date, err)
	}
}

func minutes(t schedule.TimeOfDay) *int {
	if !t.Valid {
		return nil
	}
	m := t.Minutes
	return &m
}

func tod(m *int) schedule.TimeOfDay {
	if m == nil {
		return schedule.TimeOfDay{}
	}
	return schedule.TimeOfDay{Minutes: *m, Valid: true}
}
