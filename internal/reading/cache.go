package reading

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultViewTTL      = 30 * time.Minute
	DefaultViewCountTTL = time.Hour
)

// Cache keeps rendered views and view-count rate limits in Redis.
type Cache struct {
	client  *redis.Client
	prefix  string
	ttl     time.Duration
	rateTTL time.Duration
}

// NewCache connects to redisURL and checks the connection.
func NewCache(redisURL string, ttl time.Duration) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewCacheWithClient(client, ttl), nil
}

// NewCacheWithClient wraps an existing client.
func NewCacheWithClient(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultViewTTL
	}
	return &Cache{client: client, prefix: "view:", ttl: ttl, rateTTL: DefaultViewCountTTL}
}

func (c *Cache) viewKey(kind string, id int64, digest string) string {
	return fmt.Sprintf("%s%s:%d:%s", c.prefix, kind, id, digest)
}

func (c *Cache) rateKey(kind string, id int64, ip string) string {
	return fmt.Sprintf("%srate:%s:%d:%s", c.prefix, kind, id, ip)
}

// GetView returns a cached view, reporting false on a miss.
func (c *Cache) GetView(ctx context.Context, kind string, id int64, digest string) (View, bool, error) {
	raw, err := c.client.Get(ctx, c.viewKey(kind, id, digest)).Result()
	if errors.Is(err, redis.Nil) {
		return View{}, false, nil
	}
	if err != nil {
		return View{}, false, fmt.Errorf("get view: %w", err)
	}
	var view View
	if err := json.Unmarshal([]byte(raw), &view); err != nil {
		return View{}, false, fmt.Errorf("unmarshal view: %w", err)
	}
	return view, true, nil
}

func (c *Cache) SetView(ctx context.Context, view View) error {
	data, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("marshal view: %w", err)
	}
	if err := c.client.Set(ctx, c.viewKey(view.Kind, view.ID, view.Digest), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("set view: %w", err)
	}
	return nil
}

// Invalidate drops every cached view of one blog or document.
func (c *Cache) Invalidate(ctx context.Context, kind string, id int64) error {
	return c.deletePattern(ctx, fmt.Sprintf("%s%s:%d:*", c.prefix, kind, id))
}

func (c *Cache) deletePattern(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("scan %s: %w", pattern, err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("delete %s: %w", pattern, err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// FirstView reports whether ip has not viewed the item within the rate
// window, recording the view when it has not.
func (c *Cache) FirstView(ctx context.Context, kind string, id int64, ip string) (bool, error) {
	ok, err := c.client.SetNX(ctx, c.rateKey(kind, id, ip), "1", c.rateTTL).Result()
	if err != nil {
		return false, fmt.Errorf("view rate limit: %w", err)
	}
	return ok, nil
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Cache) Close() error {
	return c.client.Close()
}
