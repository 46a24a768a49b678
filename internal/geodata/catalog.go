package geodata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"geo-dash/internal/logger"
	"geo-dash/internal/metrics"
)

// contentEntry：目录列表接口的单个条目，只取需要的字段
type contentEntry struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// 文档注释：州目录
// 背景：州名即数据仓库 STATES 下的子目录名；优先读远端目录接口（分页），不可达时扫描本地数据目录。
// 约束：结果排序去重；成功结果在进程内与 Redis 各缓存 ttl；两路都失败才返回错误。
type Catalog struct {
	apiURL string
	dir    string
	client *http.Client
	shared *RedisCache
	ttl    time.Duration
	limit  int64

	mu      sync.Mutex
	cached  []string
	expires time.Time
}

func NewCatalog(cfg Config, shared *RedisCache) *Catalog {
	timeout := cfg.RemoteTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Catalog{
		apiURL: cfg.CatalogAPIURL,
		dir:    filepath.Join(cfg.DataDir, "STATES"),
		client: &http.Client{Timeout: timeout},
		shared: shared,
		ttl:    ttl,
		limit:  cfg.RemoteMaxBytes,
	}
}

const catalogKey = "catalog:states"

func (c *Catalog) ListStates(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	if c.cached != nil && time.Now().Before(c.expires) {
		out := append([]string(nil), c.cached...)
		c.mu.Unlock()
		return out, nil
	}
	c.mu.Unlock()

	if b, ok := c.shared.Get(ctx, catalogKey); ok {
		if names := decodeCatalog(b); len(names) > 0 {
			c.remember(names)
			return names, nil
		}
	}
	names, err := c.remote(ctx)
	names = normalizeNames(names)
	if err != nil || len(names) == 0 {
		if err != nil {
			logger.L().Warn("catalog_remote_error", "err", err)
		}
		local, lerr := c.local()
		if lerr != nil {
			return nil, fmt.Errorf("list states: %w", errors.Join(err, lerr))
		}
		names = normalizeNames(local)
	} else if b, e := json.Marshal(names); e == nil {
		c.shared.Set(ctx, catalogKey, b)
	}
	c.remember(names)
	return names, nil
}

// decodeCatalog：共享缓存中的州名列表，读出后同样排序去重
func decodeCatalog(b []byte) []string {
	var names []string
	if err := json.Unmarshal(b, &names); err != nil {
		return nil
	}
	return normalizeNames(names)
}

func (c *Catalog) remember(names []string) {
	c.mu.Lock()
	c.cached = append([]string(nil), names...)
	c.expires = time.Now().Add(c.ttl)
	c.mu.Unlock()
}

// remote：按 per_page=100 分页读取目录接口，跟随 Link rel="next"
func (c *Catalog) remote(ctx context.Context) ([]string, error) {
	if c.apiURL == "" {
		return nil, errors.New("catalog api disabled")
	}
	u, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("per_page", "100")
	u.RawQuery = q.Encode()
	next := u.String()
	var names []string
	for pages := 0; next != "" && pages < 50; pages++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, next, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		t0 := time.Now()
		metrics.RemoteRequestsTotal.Inc()
		resp, err := c.client.Do(req)
		if err != nil {
			metrics.RemoteFailTotal.Inc()
			return nil, err
		}
		var entries []contentEntry
		limit := c.limit
		if limit <= 0 {
			limit = DefaultRemoteMaxBytes
		}
		derr := json.NewDecoder(io.LimitReader(resp.Body, limit)).Decode(&entries)
		link := resp.Header.Get("Link")
		status := resp.StatusCode
		resp.Body.Close()
		metrics.RemoteDurationMs.Observe(float64(time.Since(t0).Milliseconds()))
		if status/100 != 2 {
			metrics.RemoteFailTotal.Inc()
			return nil, fmt.Errorf("catalog %s: status %d", next, status)
		}
		if derr != nil {
			metrics.RemoteFailTotal.Inc()
			return nil, fmt.Errorf("catalog decode: %w", derr)
		}
		for _, e := range entries {
			if e.Type == "dir" {
				names = append(names, e.Name)
			}
		}
		next = nextLink(link)
	}
	logger.L().Debug("catalog_remote", "states", len(names))
	return names, nil
}

// local：扫描本地 STATES 下的子目录
func (c *Catalog) local() ([]string, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no state directories under %s", c.dir)
	}
	return names, nil
}

func normalizeNames(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, n := range in {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// nextLink：解析 RFC 8288 Link 头中的 rel="next" 目标
func nextLink(h string) string {
	for _, part := range strings.Split(h, ",") {
		segs := strings.Split(part, ";")
		if len(segs) < 2 {
			continue
		}
		target := strings.TrimSpace(segs[0])
		if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
			continue
		}
		for _, p := range segs[1:] {
			p = strings.TrimSpace(p)
			if p == `rel="next"` || p == "rel=next" {
				return strings.Trim(target, "<>")
			}
		}
	}
	return ""
}
