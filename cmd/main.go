// 程序入口：仅负责读取配置、初始化依赖并启动服务；API 注册在 internal/api 以便扩展
package main

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"geo-dash/internal/api"
	"geo-dash/internal/drilldown"
	"geo-dash/internal/geodata"
	"geo-dash/internal/locate"
	"geo-dash/internal/logger"
	"geo-dash/internal/metric"
	"geo-dash/internal/metrics"
	"geo-dash/internal/middleware"
	"geo-dash/internal/migrate"
	"geo-dash/internal/render"
	"geo-dash/internal/session"
	"geo-dash/internal/store"
	"geo-dash/internal/utils"
	"geo-dash/internal/viewport"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
	// 日志初始化
	l := logger.Setup()
	l.Debug("log_init_ok")
	apiBase := os.Getenv("API_BASE")
	if apiBase == "" {
		apiBase = "/api"
	}
	l.Debug("config_api_base", "base", apiBase)
	ui := os.Getenv("UI_DIST")
	if ui == "" {
		ui = filepath.Join("ui", "dist")
	}
	l.Debug("config_ui_dir", "dir", ui)

	// 背景：数据库可选；未配置时指标只用演示数据，访问统计关闭
	var st *store.Store
	if utils.PostgresConfigured() {
		db, err := utils.OpenPostgresFromEnv()
		if err != nil {
			l.Error("db_open_error", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := db.PingContext(ctx); err != nil {
			l.Error("db_ping_error", "err", err)
		} else {
			l.Info("db_ping_ok")
		}
		err = migrate.EnsureSchema(ctx, db)
		cancel()
		if err != nil {
			l.Error("schema_error", "err", err)
			os.Exit(1)
		}
		st = store.AttachDB(db)
	} else {
		l.Info("db_disabled")
	}

	geoCfg := geodata.ConfigFromEnv()
	var shared *geodata.RedisCache
	rc := utils.OpenRedisFromEnv()
	if rc == nil {
		l.Info("redis_disabled")
	} else {
		defer rc.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := rc.Ping(ctx).Err(); err != nil {
			l.Error("redis_ping_error", "err", err)
		} else {
			l.Info("redis_ping_ok")
		}
		cancel()
		shared = geodata.NewRedisCache(rc, geoCfg.RedisPrefix, geoCfg.CacheTTL)
	}
	l.Debug("config_geodata", "dir", geoCfg.DataDir, "remote", geoCfg.RemoteBaseURL, "catalog", geoCfg.CatalogAPIURL)
	loader := geodata.NewLoaderFromConfig(geoCfg, shared)
	catalog := geodata.NewCatalog(geoCfg, shared)

	ddCfg, err := drilldown.ConfigFromEnv()
	if err != nil {
		l.Error("layouts_load_error", "path", os.Getenv("MAP_LAYOUTS_PATH"), "err", err)
		os.Exit(1)
	}
	l.Info("layouts_loaded", "states", ddCfg.Layouts.Len())
	fitter := viewport.NewFitter(viewport.ConfigFromEnv())
	source := metric.FromEnv(st)
	sessions := session.NewStoreFromEnv(func() *drilldown.Controller {
		return drilldown.New(ddCfg, loader, source, fitter)
	})

	locators := locate.FromEnv()
	origins := middleware.OriginsFromEnv()
	srv := api.NewServer(api.Deps{
		Sessions:       sessions,
		Catalog:        catalog,
		Hinter:         locate.NewHinter(catalog.ListStates, locators...),
		Renderer:       render.New(render.ConfigFromEnv()),
		Loader:         loader,
		Fitter:         fitter,
		Layouts:        ddCfg.Layouts,
		Store:          st,
		Redis:          rc,
		RedisPrefix:    geoCfg.RedisPrefix,
		AllowedOrigins: origins,
	})

	mux := http.NewServeMux()
	mux.Handle(apiBase+"/", http.StripPrefix(apiBase, srv.Routes()))
	mux.Handle(apiBase+"/metrics", metrics.Handler())
	mux.Handle("/", http.FileServer(http.Dir(ui)))
	// NOTE: 向前端暴露 API 基础路径，避免硬编码；生产环境由后端统一提供
	mux.HandleFunc("/config.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "application/javascript; charset=utf-8")
		w.Header().Set("cache-control", "no-store")
		_, _ = w.Write([]byte("window.__API_BASE__='" + apiBase + "'\n"))
		_, _ = w.Write([]byte("window.__COLOR_SCALE__='" + ddCfg.ColorScale + "'\n"))
	})

	addr := os.Getenv("ADDR")
	if addr == "" {
		addr = ":8080"
	}
	var handler http.Handler = mux
	handler = middleware.CORS(origins, handler)
	handler = middleware.LimitFromEnv(handler)
	handler = middleware.Recover(handler)
	handler = logger.AccessMiddleware(l)(handler)
	s := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	if os.Getenv("TLS_ENABLE") == "true" {
		certPath := os.Getenv("TLS_CERT_PATH")
		keyPath := os.Getenv("TLS_KEY_PATH")
		if certPath == "" {
			certPath = filepath.Join("data", "certs", "server.crt")
		}
		if keyPath == "" {
			keyPath = filepath.Join("data", "certs", "server.key")
		}
		if err := utils.EnsureSelfSignedCert(certPath, keyPath, "geo-dash.local"); err != nil {
			l.Error("tls_cert_error", "err", err)
			os.Exit(1)
		}
		l.Info("listening_tls", "addr", addr, "cert", certPath)
		if err := s.ListenAndServeTLS(certPath, keyPath); err != nil {
			l.Error("server_error", "err", err)
		}
		return
	}
	l.Info("listening", "addr", addr)
	if err := s.ListenAndServe(); err != nil {
		l.Error("server_error", "err", err)
	}
}
