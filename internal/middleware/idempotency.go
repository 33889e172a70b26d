package middleware

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/MorseWayne/phone_catalog/internal/cache"
	"github.com/MorseWayne/phone_catalog/internal/resp"
)

// 幂等相关请求/响应头
const (
	HeaderIdempotencyKey = "X-Idempotency-Key"
	HeaderReplayed       = "Idempotent-Replayed"
)

// maxPendingTTL 处理中标记的最长保留时间，进程崩溃后标记最多占用这么久
const maxPendingTTL = 5 * time.Minute

// storedResponse 缓存中保存的首次响应，Pending 表示首个请求仍在处理
type storedResponse struct {
	Pending     bool   `json:"pending,omitempty"`
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// idempotencyState 由处理器标记本次响应不应被回放
type idempotencyState struct {
	skip atomic.Bool
}

// SkipIdempotencyStore 标记当前响应不保存，同一幂等键的重试会重新执行
// 用于临时性失败（如图片地址暂时无法连接）；不在幂等中间件之下时什么也不做。
func SkipIdempotencyStore(ctx context.Context) {
	if st, ok := ctx.Value(contextKeyIdemState).(*idempotencyState); ok {
		st.skip.Store(true)
	}
}

// Idempotency 幂等中间件
// 携带 X-Idempotency-Key 的请求先原子地占用该键，首个请求处理期间的重复提交返回 409；
// 处理完成后在 ttl 内直接回放首次响应。5xx 与被标记跳过的响应不保存，允许客户端重试。
// 没有该请求头时正常处理。
func Idempotency(c cache.Cache, ttl time.Duration, logger *zap.Logger) func(http.Handler) http.Handler {
	pendingTTL := ttl
	if pendingTTL > maxPendingTTL {
		pendingTTL = maxPendingTTL
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
			if key == "" || r.Method == http.MethodGet || r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}

			reqID := RequestIDFromContext(r.Context())
			cacheKey := "idempotency:" + r.Method + ":" + r.URL.Path + ":" + key
			storeCtx := context.WithoutCancel(r.Context())

			claimed, err := c.SetNX(storeCtx, cacheKey, storedResponse{Pending: true}, pendingTTL)
			if err != nil {
				logger.Warn("idempotency claim failed, processing without replay", zap.String("request_id", reqID), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if !claimed {
				replayOrConflict(w, r, c, cacheKey, key, logger)
				return
			}

			// 处理器 panic 或不保存时释放占用
			release := true
			defer func() {
				if release {
					if err := c.Del(storeCtx, cacheKey); err != nil {
						logger.Warn("idempotency release failed", zap.String("request_id", reqID), zap.Error(err))
					}
				}
			}()

			st := &idempotencyState{}
			rec := &recordingWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), contextKeyIdemState, st)))

			if rec.status >= http.StatusInternalServerError || st.skip.Load() {
				return
			}
			stored := storedResponse{
				Status:      rec.status,
				ContentType: rec.Header().Get("Content-Type"),
				Body:        rec.body.Bytes(),
			}
			if err := c.Set(storeCtx, cacheKey, stored, ttl); err != nil {
				logger.Warn("idempotency store failed", zap.String("request_id", reqID), zap.Error(err))
				return
			}
			release = false
		})
	}
}

// replayOrConflict 键已被占用：已完成则回放，仍在处理则返回 409
func replayOrConflict(w http.ResponseWriter, r *http.Request, c cache.Cache, cacheKey, key string, logger *zap.Logger) {
	reqID := RequestIDFromContext(r.Context())

	var stored storedResponse
	err := c.Get(r.Context(), cacheKey, &stored)
	if err == nil && !stored.Pending {
		logger.Info("idempotent replay",
			zap.String("request_id", reqID),
			zap.String("idempotency_key", key),
			zap.Int("status", stored.Status),
		)
		if stored.ContentType != "" {
			w.Header().Set("Content-Type", stored.ContentType)
		}
		w.Header().Set(HeaderReplayed, "true")
		w.WriteHeader(stored.Status)
		_, _ = w.Write(stored.Body)
		return
	}
	if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		logger.Warn("idempotency lookup failed", zap.String("request_id", reqID), zap.Error(err))
	}

	// 仍在处理，或首个请求刚刚释放了占用
	logger.Info("idempotent request in progress", zap.String("request_id", reqID), zap.String("idempotency_key", key))
	resp.Error(w, http.StatusConflict, "Request in progress",
		"A request with this idempotency key is still being processed, retry later")
}

// recordingWriter 在写出响应的同时保留一份副本
type recordingWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (rw *recordingWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *recordingWriter) Write(b []byte) (int, error) {
	rw.body.Write(b)
	return rw.ResponseWriter.Write(b)
}
