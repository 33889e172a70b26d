package limiter

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/MorseWayne/phone_catalog/internal/resp"
)

// 限流相关响应头
const (
	RemainingHeader  = "X-RateLimit-Remaining"
	RetryAfterHeader = "Retry-After"
)

// ClientIPKey 以客户端 IP 作为限流 key
func ClientIPKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}

// Middleware 限流中间件
// 限流器本身出错时放行请求并记录告警。
func Middleware(l Limiter, keyFunc func(*http.Request) string, logger *zap.Logger) func(http.Handler) http.Handler {
	if keyFunc == nil {
		keyFunc = ClientIPKey
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)

			ctx, cancel := context.WithTimeout(r.Context(), time.Second)
			result, err := l.Allow(ctx, key)
			cancel()
			if err != nil {
				logger.Warn("rate limiter unavailable, allowing request", zap.String("key", key), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set(RemainingHeader, strconv.FormatInt(result.Remaining, 10))
			if !result.Allowed {
				w.Header().Set(RetryAfterHeader, strconv.Itoa(retryAfterSeconds(result.RetryAfter)))
				logger.Info("rate limit reached", zap.String("key", key), zap.Duration("retry_after", result.RetryAfter))
				resp.Error(w, http.StatusTooManyRequests, "Too many requests", "Rate limit exceeded, retry after "+result.RetryAfter.String())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// retryAfterSeconds 向上取整到整秒，至少为 1
func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}
