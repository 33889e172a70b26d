package middleware

import (
	"net/http"

	"github.com/rs/cors"

	"github.com/MorseWayne/phone_catalog/internal/config"
)

// CORS 按配置放行浏览器跨域请求
func CORS(cfg config.CORSConfig) func(http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: cfg.AllowedMethods,
		AllowedHeaders: cfg.AllowedHeaders,
		ExposedHeaders: []string{HeaderRequestID, HeaderReplayed},
		MaxAge:         cfg.MaxAge,
	})
	return c.Handler
}
