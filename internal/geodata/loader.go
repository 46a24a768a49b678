package geodata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"geo-dash/internal/logger"
	"geo-dash/internal/metrics"

	"golang.org/x/sync/singleflight"
)

// 文档注释：加载器配置
// 约束：RemoteBaseURL 为空时不回源；CatalogAPIURL 为空时状态列表只扫描本地目录。
type Config struct {
	DataDir       string
	RemoteBaseURL string
	CatalogAPIURL string
	RemoteTimeout time.Duration
	// RemoteMaxBytes：单个远端响应体的上限，超过即视为失败
	RemoteMaxBytes int64
	CacheTTL       time.Duration
	CacheCap       int
	RedisPrefix    string
}

func DefaultConfig() Config {
	return Config{
		DataDir:        "data/INDIAN-SHAPEFILES-master",
		RemoteBaseURL:  "https://raw.githubusercontent.com/SamNotLazy/KDLProject/master/INDIAN-SHAPEFILES-master/",
		CatalogAPIURL:  "https://api.github.com/repos/SamNotLazy/KDLProject/contents/INDIAN-SHAPEFILES-master/STATES",
		RemoteTimeout:  15 * time.Second,
		RemoteMaxBytes: DefaultRemoteMaxBytes,
		CacheTTL:       time.Hour,
		CacheCap:       64,
		RedisPrefix:    "geodash:",
	}
}

// ConfigFromEnv：GEO_* 环境变量覆盖默认值；GEO_REMOTE_BASE_URL=off 关闭回源
func ConfigFromEnv() Config {
	c := DefaultConfig()
	if v := os.Getenv("GEO_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v, ok := os.LookupEnv("GEO_REMOTE_BASE_URL"); ok {
		c.RemoteBaseURL = offToEmpty(v)
	}
	if v, ok := os.LookupEnv("GEO_CATALOG_API_URL"); ok {
		c.CatalogAPIURL = offToEmpty(v)
	}
	if n, err := strconv.Atoi(os.Getenv("GEO_REMOTE_TIMEOUT_S")); err == nil && n > 0 {
		c.RemoteTimeout = time.Duration(n) * time.Second
	}
	if n, err := strconv.ParseInt(os.Getenv("GEO_REMOTE_MAX_BYTES"), 10, 64); err == nil && n > 0 {
		c.RemoteMaxBytes = n
	}
	if n, err := strconv.Atoi(os.Getenv("GEO_CACHE_TTL_S")); err == nil && n > 0 {
		c.CacheTTL = time.Duration(n) * time.Second
	}
	if n, err := strconv.Atoi(os.Getenv("GEO_CACHE_CAP")); err == nil && n > 0 {
		c.CacheCap = n
	}
	if v := os.Getenv("REDIS_PREFIX"); v != "" {
		c.RedisPrefix = v
	}
	return c
}

func offToEmpty(v string) string {
	v = strings.TrimSpace(v)
	if strings.EqualFold(v, "off") {
		return ""
	}
	return v
}

// DistrictsPath：某州区县边界的逻辑路径
func DistrictsPath(state string) string {
	s := strings.TrimSpace(state)
	return "STATES/" + s + "/" + s + "_DISTRICTS.geojson"
}

// SubdistrictsPath：某州子区县边界的逻辑路径
func SubdistrictsPath(state string) string {
	s := strings.TrimSpace(state)
	return "STATES/" + s + "/" + s + "_SUBDISTRICTS.geojson"
}

// 文档注释：行政区几何加载器
// 背景：依次尝试进程内 LRU、本地目录、Redis 共享缓存、远端镜像；远端或 Redis 取回且解析成功的字节写回本地目录，下次直接读盘。
// 约束：任何失败都以包装 ErrAbsent 的错误返回，不 panic；可并发使用，同一路径的并发加载合并为一次。
type Loader struct {
	disk    *DiskSource
	remote  Source
	shared  *RedisCache
	memo    *LRU
	group   singleflight.Group
	timeout time.Duration
	log     *slog.Logger
}

// NewLoader：remote 与 shared 均可为 nil
func NewLoader(cfg Config, remote Source, shared *RedisCache) *Loader {
	timeout := cfg.RemoteTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Loader{
		disk:    &DiskSource{Dir: cfg.DataDir},
		remote:  remote,
		shared:  shared,
		memo:    NewLRU(cfg.CacheCap, cfg.CacheTTL),
		timeout: timeout,
		log:     logger.Component("geodata"),
	}
}

// NewLoaderFromConfig：按配置构造远端数据源
func NewLoaderFromConfig(cfg Config, shared *RedisCache) *Loader {
	var remote Source
	if cfg.RemoteBaseURL != "" {
		rs := NewRemoteSource(cfg.RemoteBaseURL, cfg.RemoteTimeout)
		rs.MaxBytes = cfg.RemoteMaxBytes
		remote = rs
	}
	return NewLoader(cfg, remote, shared)
}

func (l *Loader) Load(ctx context.Context, rel string) (*GeometrySet, error) {
	t0 := time.Now()
	defer func() { metrics.GeoLoadDurationMs.Observe(float64(time.Since(t0).Milliseconds())) }()
	if set, ok := l.memo.Get(rel); ok {
		metrics.GeoLoadsTotal.WithLabelValues("memo", "hit").Inc()
		return set, nil
	}
	// 同一路径的并发未命中只回源一次；回源与发起请求的客户端解绑，只受 timeout 约束
	v, err, _ := l.group.Do(rel, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
		defer cancel()
		return l.load(fctx, rel)
	})
	if err != nil {
		return nil, err
	}
	return v.(*GeometrySet), nil
}

func (l *Loader) load(ctx context.Context, rel string) (*GeometrySet, error) {
	if set, ok := l.memo.Get(rel); ok {
		return set, nil
	}
	data, src, err := l.fetch(ctx, rel)
	if err != nil {
		l.log.Warn("geo_load_absent", "path", rel, "err", err)
		return nil, err
	}
	set, err := Parse(rel, data)
	if err != nil {
		metrics.GeoLoadsTotal.WithLabelValues(src, "error").Inc()
		l.log.Error("geo_parse_error", "path", rel, "source", src, "err", err)
		return nil, fmt.Errorf("%w: %w", ErrAbsent, err)
	}
	switch src {
	case "redis":
		l.writeBack(rel, data)
	case "remote":
		l.writeBack(rel, data)
		l.shared.Set(ctx, "geo:"+rel, data)
	}
	l.memo.Set(rel, set)
	l.log.Debug("geo_loaded", "path", rel, "source", src, "features", len(set.Features))
	return set, nil
}

func (l *Loader) fetch(ctx context.Context, rel string) ([]byte, string, error) {
	b, err := l.disk.Fetch(ctx, rel)
	if err == nil {
		metrics.GeoLoadsTotal.WithLabelValues("disk", "hit").Inc()
		return b, "disk", nil
	}
	if !errors.Is(err, ErrAbsent) {
		metrics.GeoLoadsTotal.WithLabelValues("disk", "error").Inc()
		l.log.Error("geo_disk_error", "path", rel, "err", err)
	}
	if b, ok := l.shared.Get(ctx, "geo:"+rel); ok {
		metrics.GeoLoadsTotal.WithLabelValues("redis", "hit").Inc()
		return b, "redis", nil
	}
	if l.remote == nil {
		metrics.GeoLoadsTotal.WithLabelValues("disk", "miss").Inc()
		return nil, "", fmt.Errorf("%w: %s", ErrAbsent, rel)
	}
	b, err = l.remote.Fetch(ctx, rel)
	if err != nil {
		metrics.GeoLoadsTotal.WithLabelValues("remote", "miss").Inc()
		if errors.Is(err, ErrAbsent) {
			return nil, "", err
		}
		return nil, "", fmt.Errorf("%w: %s: %w", ErrAbsent, rel, err)
	}
	metrics.GeoLoadsTotal.WithLabelValues("remote", "hit").Inc()
	return b, "remote", nil
}

func (l *Loader) writeBack(rel string, b []byte) {
	if err := l.disk.Store(rel, b); err != nil {
		l.log.Warn("geo_disk_store_error", "path", rel, "err", err)
		return
	}
	l.log.Info("geo_saved", "path", rel, "bytes", len(b))
}
