// 包 session：按会话 ID 保存下钻控制器，空闲超时自动过期
package session

import (
	"context"
	"errors"
	"os"
	"strconv"
	"sync"
	"time"

	"geo-dash/internal/drilldown"
	"geo-dash/internal/logger"
	"geo-dash/internal/metrics"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
)

var ErrNotFound = errors.New("session not found")

// Session：一个浏览器会话；控制器非并发安全，所有访问经 Do 串行化
type Session struct {
	ID string

	mu   sync.Mutex
	ctrl *drilldown.Controller
}

// Do：持锁执行 fn
func (s *Session) Do(fn func(c *drilldown.Controller) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.ctrl)
}

// Dispatch：持锁处理一个动作
func (s *Session) Dispatch(ctx context.Context, a drilldown.Action) (drilldown.View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.Dispatch(ctx, a)
}

func (s *Session) View() drilldown.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.View()
}

// Factory：为新会话构造控制器
type Factory func() *drilldown.Controller

// 文档注释：会话存储
// 背景：基于 go-cache，读取时刷新过期时间（滑动过期）；过期或删除时更新活跃会话指标。
// 约束：TTL<=0 时取 30 分钟；清理间隔为 TTL 的一半，至少 1 秒。
type Store struct {
	c       *gocache.Cache
	ttl     time.Duration
	factory Factory
}

func NewStore(ttl time.Duration, factory Factory) *Store {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	sweep := ttl / 2
	if sweep < time.Second {
		sweep = time.Second
	}
	c := gocache.New(ttl, sweep)
	c.OnEvicted(func(id string, _ interface{}) {
		metrics.ActiveSessions.Dec()
		logger.L().Debug("session_evicted", "id", id)
	})
	return &Store{c: c, ttl: ttl, factory: factory}
}

// NewStoreFromEnv：SESSION_TTL_S 秒，默认 1800
func NewStoreFromEnv(factory Factory) *Store {
	ttl := 30 * time.Minute
	if v := os.Getenv("SESSION_TTL_S"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			ttl = time.Duration(n) * time.Second
		}
	}
	return NewStore(ttl, factory)
}

// Create：新建会话并以 state 启动；启动失败时不保存会话
func (s *Store) Create(ctx context.Context, state string) (*Session, drilldown.View, error) {
	sess := &Session{ID: uuid.NewString(), ctrl: s.factory()}
	v, err := sess.Dispatch(ctx, drilldown.Action{Kind: drilldown.ActionSelectState, Name: state})
	if err != nil {
		return nil, v, err
	}
	s.c.SetDefault(sess.ID, sess)
	metrics.ActiveSessions.Inc()
	logger.L().Debug("session_created", "id", sess.ID, "state", state)
	return sess, v, nil
}

// Get：取会话并刷新其过期时间
func (s *Store) Get(id string) (*Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	v, ok := s.c.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	sess := v.(*Session)
	s.c.SetDefault(id, sess)
	return sess, nil
}

func (s *Store) Delete(id string) bool {
	if _, ok := s.c.Get(id); !ok {
		return false
	}
	s.c.Delete(id)
	return true
}

func (s *Store) Len() int { return s.c.ItemCount() }

func (s *Store) TTL() time.Duration { return s.ttl }
