package main

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"geo-dash/internal/drilldown"
	"geo-dash/internal/geodata"
	"geo-dash/internal/logger"
	"geo-dash/internal/utils"
	"geo-dash/internal/viewport"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// 文档注释：为目录中的每个州生成视口布局文件
// 背景：按区县包围盒拟合州视图的中心、缩放与边界，输出为 MAP_LAYOUTS_PATH 可读取的 JSON，供人工微调后作为覆盖使用。
// 约束：单个州失败只记录日志并跳过；并发度由 LAYOUT_EXPORT_WORKERS 控制（默认 4）；输出先写临时文件再改名。
// LAYOUT_EXPORT_REDIS_ADDR 非空时改用该地址的 Redis 作为共享缓存（可与服务进程的 REDIS_* 不同）。
func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
	l := logger.Setup()
	out := os.Getenv("LAYOUT_EXPORT_PATH")
	if len(os.Args) > 1 {
		out = os.Args[1]
	}
	if out == "" {
		out = filepath.Join("data", "layouts.json")
	}
	workers := 4
	if s := os.Getenv("LAYOUT_EXPORT_WORKERS"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			workers = n
		}
	}

	cfg := geodata.ConfigFromEnv()
	var shared *geodata.RedisCache
	if rc := openShared(); rc != nil {
		defer rc.Close()
		shared = geodata.NewRedisCache(rc, cfg.RedisPrefix, cfg.CacheTTL)
	}
	loader := geodata.NewLoaderFromConfig(cfg, shared)
	fitter := viewport.NewFitter(viewport.ConfigFromEnv())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()
	states, err := geodata.NewCatalog(cfg, shared).ListStates(ctx)
	if err != nil {
		l.Error("catalog_error", "err", err)
		os.Exit(1)
	}
	l.Info("layout_export_begin", "states", len(states), "workers", workers)

	layouts := viewport.NewLayouts()
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, st := range states {
		st := st
		g.Go(func() error {
			vp, err := drilldown.FitState(gctx, loader, fitter, st)
			if err != nil {
				l.Warn("layout_fit_skip", "state", st, "err", err)
				return nil
			}
			mu.Lock()
			layouts.Set(st, vp)
			mu.Unlock()
			l.Debug("layout_fit", "state", st, "zoom", vp.Zoom)
			return nil
		})
	}
	_ = g.Wait()

	if err := write(out, layouts); err != nil {
		l.Error("layout_write_error", "path", out, "err", err)
		os.Exit(1)
	}
	l.Info("layout_export_done", "path", out, "states", layouts.Len())
}

// openShared：显式地址优先，否则沿用服务进程的 REDIS_* 配置
func openShared() *redis.Client {
	if addr := os.Getenv("LAYOUT_EXPORT_REDIS_ADDR"); addr != "" {
		return utils.OpenRedis(addr, os.Getenv("LAYOUT_EXPORT_REDIS_PASS"))
	}
	return utils.OpenRedisFromEnv()
}

func write(path string, layouts *viewport.Layouts) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := layouts.Encode(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
