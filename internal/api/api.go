// 包 api：集中注册 HTTP API 路由（州目录、会话、动作、图表、GeoJSON、视口、统计、WebSocket）
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"geo-dash/internal/drilldown"
	"geo-dash/internal/locate"
	"geo-dash/internal/logger"
	"geo-dash/internal/metrics"
	"geo-dash/internal/render"
	"geo-dash/internal/session"
	"geo-dash/internal/store"
	"geo-dash/internal/viewport"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
)

// StateLister：州目录
type StateLister interface {
	ListStates(ctx context.Context) ([]string, error)
}

// 文档注释：路由依赖
// 约束：Sessions/Catalog/Renderer/Loader 必填；Hinter/Layouts/Store/Redis 可为 nil；AllowedOrigins 为空时 WebSocket 接受任意来源。
type Deps struct {
	Sessions       *session.Store
	Catalog        StateLister
	Hinter         *locate.Hinter
	Renderer       *render.Renderer
	Loader         drilldown.Loader
	Fitter         *viewport.Fitter
	Layouts        *viewport.Layouts
	Store          *store.Store
	Redis          *redis.Client
	RedisPrefix    string
	AllowedOrigins []string
}

type Server struct {
	Deps
	rc          *redis.Client
	redisPrefix string
	log         *slog.Logger
}

func NewServer(d Deps) *Server {
	if d.Fitter == nil {
		d.Fitter = viewport.NewFitter(viewport.DefaultConfig())
	}
	return &Server{Deps: d, rc: d.Redis, redisPrefix: d.RedisPrefix, log: logger.Component("api")}
}

// 构建并返回 API 路由：独立路由器便于在主入口挂载到 API_BASE 前缀
func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()
	r.Use(routeMetrics)
	r.HandleFunc("/states", s.handleStates).Methods(http.MethodGet)
	r.HandleFunc("/sessions", s.handleCreate).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}", s.handleGetSession).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods(http.MethodDelete)
	r.HandleFunc("/sessions/{id}/actions", s.handleAction).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}/chart", s.handleChart).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{id}/geojson", s.handleGeoJSON).Methods(http.MethodGet)
	r.HandleFunc("/layouts/{state}", s.handleLayout).Methods(http.MethodGet)
	r.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// routeMetrics：按路由模板计数与计时
func routeMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := "unknown"
		if cr := mux.CurrentRoute(r); cr != nil {
			if t, err := cr.GetPathTemplate(); err == nil {
				route = t
			}
		}
		t0 := time.Now()
		next.ServeHTTP(w, r)
		metrics.RequestsTotal.WithLabelValues(route).Inc()
		metrics.RequestDurationMs.WithLabelValues(route).Observe(float64(time.Since(t0).Milliseconds()))
	})
}

// Notice：界面提示
type Notice struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func noticeOf(err error) *Notice {
	if err == nil {
		return nil
	}
	k, m := drilldown.Notice(err)
	return &Notice{Kind: k, Message: m}
}

// viewResponse：会话视图与可选提示
type viewResponse struct {
	ID     string         `json:"id,omitempty"`
	View   drilldown.View `json:"view"`
	Notice *Notice        `json:"notice,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg, "code": status})
}

// statusFor：动作错误对应的状态码；可恢复的提示类错误仍返回 200
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, drilldown.ErrUnknownAction):
		return http.StatusBadRequest
	case errors.Is(err, drilldown.ErrDataUnavailable), errors.Is(err, drilldown.ErrEmptyRegionSet), errors.Is(err, drilldown.ErrAmbiguousClick):
		return http.StatusOK
	}
	return http.StatusInternalServerError
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.Sessions.Get(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return sess, true
}

func (s *Server) handleStates(w http.ResponseWriter, r *http.Request) {
	names, err := s.Catalog.ListStates(r.Context())
	if err != nil {
		s.log.Error("states_error", "err", err)
		writeError(w, http.StatusServiceUnavailable, "state catalog unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"states": names})
}

// initialState：?state= 优先，其次按访问者 IP 提示，最后取目录第一个州
func (s *Server) initialState(ctx context.Context, r *http.Request) (string, error) {
	if q := r.URL.Query().Get("state"); q != "" {
		return q, nil
	}
	names, err := s.Catalog.ListStates(ctx)
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", errors.New("state catalog is empty")
	}
	if h := s.Hinter.Hint(ctx, clientIP(r)); h != "" {
		return h, nil
	}
	return names[0], nil
}

func (s *Server) createSession(ctx context.Context, r *http.Request) (*session.Session, drilldown.View, int, error) {
	state, err := s.initialState(ctx, r)
	if err != nil {
		s.log.Error("initial_state_error", "err", err)
		return nil, drilldown.View{}, http.StatusServiceUnavailable, err
	}
	sess, v, err := s.Sessions.Create(ctx, state)
	if err != nil {
		metrics.ActionsTotal.WithLabelValues(string(drilldown.ActionSelectState), "rejected").Inc()
		status := http.StatusServiceUnavailable
		if errors.Is(err, drilldown.ErrUnknownAction) {
			status = http.StatusBadRequest
		}
		return nil, v, status, err
	}
	metrics.ActionsTotal.WithLabelValues(string(drilldown.ActionSelectState), "applied").Inc()
	s.countView(ctx, r, v.State.State)
	return sess, v, http.StatusCreated, nil
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	sess, v, status, err := s.createSession(r.Context(), r)
	if err != nil {
		writeJSON(w, status, viewResponse{View: v, Notice: noticeOf(err)})
		return
	}
	writeJSON(w, status, viewResponse{ID: sess.ID, View: v})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewResponse{ID: sess.ID, View: sess.View()})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !s.Sessions.Delete(mux.Vars(r)["id"]) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// dispatch：执行动作并记录指标与访问统计
func (s *Server) dispatch(ctx context.Context, r *http.Request, sess *session.Session, a drilldown.Action) (drilldown.View, error) {
	v, err := sess.Dispatch(ctx, a)
	outcome := "applied"
	if err != nil {
		outcome = "rejected"
	}
	metrics.ActionsTotal.WithLabelValues(string(a.Kind), outcome).Inc()
	if err == nil && a.Kind == drilldown.ActionSelectState {
		s.countView(ctx, r, v.State.State)
	}
	return v, err
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var a drilldown.Action
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&a); err != nil {
		writeError(w, http.StatusBadRequest, "invalid action body")
		return
	}
	v, err := s.dispatch(r.Context(), r, sess, a)
	writeJSON(w, statusFor(err), viewResponse{ID: sess.ID, View: v, Notice: noticeOf(err)})
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var v drilldown.View
	var geo map[string]any
	_ = sess.Do(func(c *drilldown.Controller) error {
		v, geo = c.View(), c.FeatureCollection()
		return nil
	})
	w.Header().Set("content-type", "text/html; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	if err := s.Renderer.Render(w, v, geo); err != nil {
		s.log.Error("chart_render_error", "session", sess.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "render failed")
	}
}

func (s *Server) handleGeoJSON(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var fc map[string]any
	_ = sess.Do(func(c *drilldown.Controller) error {
		fc = c.FeatureCollection()
		return nil
	})
	w.Header().Set("content-type", "application/geo+json")
	w.Header().Set("cache-control", "no-store")
	_ = json.NewEncoder(w).Encode(fc)
}

// handleLayout：手工覆盖优先，否则按区县包围盒拟合
func (s *Server) handleLayout(w http.ResponseWriter, r *http.Request) {
	state := mux.Vars(r)["state"]
	if v, ok := s.Layouts.Lookup(state); ok {
		writeJSON(w, http.StatusOK, map[string]any{"state": state, "source": "override", "viewport": s.Fitter.Clamp(v)})
		return
	}
	v, err := drilldown.FitState(r.Context(), s.Loader, s.Fitter, state)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"state": state, "notice": noticeOf(err)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": state, "source": "fitted", "viewport": v})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "stats disabled")
		return
	}
	state := r.URL.Query().Get("state")
	t, err := s.Store.GetTotals(r.Context(), state)
	if err != nil {
		s.log.Error("stats_error", "state", state, "err", err)
		writeError(w, http.StatusInternalServerError, "stats unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": state, "total": t.Total, "today": t.Today})
}

// countView：州访问计数，同一访问者当天只计一次
func (s *Server) countView(ctx context.Context, r *http.Request, state string) {
	if s.Store == nil || state == "" {
		return
	}
	if !s.firstViewToday(ctx, clientIP(r), state) {
		return
	}
	s.Store.IncrViews(ctx, state)
}
