package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/MorseWayne/phone_catalog/internal/resp"
	"github.com/MorseWayne/phone_catalog/internal/service"
)

const bearerPrefix = "Bearer "

// TokenValidator 校验访问令牌
type TokenValidator interface {
	ValidateAccessToken(tokenString string) (*service.Claims, error)
}

// AuthMiddleware JWT认证中间件
// 验证请求头中的JWT令牌，并将声明注入到请求上下文中
func AuthMiddleware(tokens TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := RequestIDFromContext(r.Context())

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Warn("missing authorization header", zap.String("request_id", reqID))
				resp.Error(w, http.StatusUnauthorized, "Unauthorized", "Authorization header required")
				return
			}

			if !strings.HasPrefix(authHeader, bearerPrefix) {
				logger.Warn("invalid authorization header format", zap.String("request_id", reqID))
				resp.Error(w, http.StatusUnauthorized, "Unauthorized", "Invalid authorization header format")
				return
			}

			tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, bearerPrefix))
			if tokenString == "" {
				logger.Warn("empty token", zap.String("request_id", reqID))
				resp.Error(w, http.StatusUnauthorized, "Unauthorized", "Token required")
				return
			}

			claims, err := tokens.ValidateAccessToken(tokenString)
			if err != nil {
				logger.Warn("token validation failed",
					zap.String("request_id", reqID),
					zap.Error(err),
				)

				switch {
				case errors.Is(err, service.ErrTokenExpired):
					resp.Error(w, http.StatusUnauthorized, "Unauthorized", "Token expired")
				case errors.Is(err, service.ErrTokenNotReady):
					resp.Error(w, http.StatusUnauthorized, "Unauthorized", "Token not ready")
				default:
					resp.Error(w, http.StatusUnauthorized, "Unauthorized", "Invalid token")
				}
				return
			}

			ctx := context.WithValue(r.Context(), contextKeyClaims, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole 角色授权中间件，须位于 AuthMiddleware 之后
func RequireRole(requiredRole string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := RequestIDFromContext(r.Context())
			claims := ClaimsFromContext(r.Context())

			if claims == nil {
				logger.Error("claims not found in context", zap.String("request_id", reqID))
				resp.Error(w, http.StatusUnauthorized, "Unauthorized", "Authentication required")
				return
			}

			if claims.Role != requiredRole {
				logger.Warn("insufficient permissions",
					zap.String("request_id", reqID),
					zap.String("subject", claims.Subject),
					zap.String("role", claims.Role),
					zap.String("required_role", requiredRole),
				)
				resp.Error(w, http.StatusForbidden, "Forbidden", "Insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin 要求管理员角色
func RequireAdmin(tokens TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	auth := AuthMiddleware(tokens, logger)
	role := RequireRole(service.RoleAdmin, logger)
	return func(next http.Handler) http.Handler {
		return auth(role(next))
	}
}

// ClaimsFromContext 从请求上下文中获取令牌声明
func ClaimsFromContext(ctx context.Context) *service.Claims {
	if claims, ok := ctx.Value(contextKeyClaims).(*service.Claims); ok {
		return claims
	}
	return nil
}
