package middleware

import (
	"net/http"
	"runtime/debug"

	"geo-dash/internal/logger"
	"geo-dash/internal/metrics"
)

// Recover：捕获处理器 panic，记录堆栈并返回 500 JSON；http.ErrAbortHandler 原样抛出
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if v == http.ErrAbortHandler {
				panic(v)
			}
			metrics.PanicsTotal.Inc()
			logger.L().Error("http_panic", "method", r.Method, "path", r.URL.Path, "panic", v, "stack", string(debug.Stack()))
			writeJSONError(w, http.StatusInternalServerError, "internal server error")
		}()
		next.ServeHTTP(w, r)
	})
}
