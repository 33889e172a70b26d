package middleware

import (
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/MorseWayne/phone_catalog/internal/resp"
)

// Recovery 捕获处理器 panic，记录堆栈并返回 500 JSON
// http.ErrAbortHandler 继续向上抛出，由 net/http 中止连接。
func Recovery(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error("panic recovered",
					zap.Any("panic", rec),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.ByteString("stack", debug.Stack()),
					zap.String("request_id", RequestIDFromContext(r.Context())),
				)
				resp.Error(w, http.StatusInternalServerError, "Internal server error", "An unexpected error occurred")
			}()
			next.ServeHTTP(w, r)
		})
	}
}
