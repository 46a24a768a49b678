package middleware

import (
	"net/http"
	"os"
	"strings"

	"github.com/rs/cors"
)

// OriginsFromEnv：CORS_ALLOWED_ORIGINS 逗号分隔；为空表示允许任意来源（页面常以 iframe 嵌入）
func OriginsFromEnv() []string {
	var origins []string
	for _, o := range strings.Split(os.Getenv("CORS_ALLOWED_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func CORS(origins []string, next http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Requested-With", "Origin"},
		ExposedHeaders: []string{"Content-Length"},
		MaxAge:         600,
	})
	return c.Handler(next)
}
