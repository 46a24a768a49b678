package geodata

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"

	"geo-dash/internal/logger"
	"geo-dash/internal/metrics"

	"github.com/redis/go-redis/v9"
)

// 文档注释：已解析要素集合的进程内 LRU
// 背景：同一州的区县集合在会话间反复使用，解析 GeoJSON 开销远大于查表；TTL 对应数据文件的更新周期。
// 约束：容量按条目计；过期条目在读取时惰性淘汰。
type LRU struct {
	mu   sync.Mutex
	cap  int
	ttl  time.Duration
	lst  *list.List
	dict map[string]*list.Element
	now  func() time.Time
}

type kv struct {
	k   string
	v   *GeometrySet
	exp time.Time
}

func NewLRU(capacity int, ttl time.Duration) *LRU {
	if capacity <= 0 {
		capacity = 64
	}
	return &LRU{cap: capacity, ttl: ttl, lst: list.New(), dict: make(map[string]*list.Element), now: time.Now}
}

func (c *LRU) Get(k string) (*GeometrySet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.dict[k]; ok {
		it := e.Value.(kv)
		if c.now().Before(it.exp) {
			c.lst.MoveToFront(e)
			return it.v, true
		}
		c.lst.Remove(e)
		delete(c.dict, k)
	}
	return nil, false
}

func (c *LRU) Set(k string, v *GeometrySet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	exp := c.now().Add(c.ttl)
	if e, ok := c.dict[k]; ok {
		e.Value = kv{k: k, v: v, exp: exp}
		c.lst.MoveToFront(e)
		return
	}
	c.dict[k] = c.lst.PushFront(kv{k: k, v: v, exp: exp})
	for c.lst.Len() > c.cap {
		back := c.lst.Back()
		if back == nil {
			break
		}
		delete(c.dict, back.Value.(kv).k)
		c.lst.Remove(back)
	}
}

func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lst.Len()
}

// 文档注释：Redis 共享字节缓存
// 背景：多实例部署时避免每个实例各自回源下载；状态目录也缓存在这里。
// 约束：nil 接收者或 nil 客户端时所有操作为空操作；Redis 错误只记日志不向上返回。
type RedisCache struct {
	rc     *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisCache(rc *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	if rc == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisCache{rc: rc, prefix: prefix, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c == nil || c.rc == nil {
		return nil, false
	}
	b, err := c.rc.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.L().Warn("redis_get_error", "key", key, "err", err)
		}
		metrics.RedisMissesTotal.Inc()
		return nil, false
	}
	metrics.RedisHitsTotal.Inc()
	return b, true
}

func (c *RedisCache) Set(ctx context.Context, key string, data []byte) {
	if c == nil || c.rc == nil {
		return
	}
	if err := c.rc.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		logger.L().Warn("redis_set_error", "key", key, "err", err)
	}
}
