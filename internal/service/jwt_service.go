package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/MorseWayne/phone_catalog/internal/config"
)

// JWT相关错误定义
var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrTokenExpired  = errors.New("token expired")
	ErrTokenNotReady = errors.New("token used before valid")
)

// RoleAdmin 允许写入商品目录的角色
const RoleAdmin = "admin"

// Claims 定义JWT载荷结构
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// JWTService 定义JWT服务接口
type JWTService interface {
	GenerateAccessToken(subject, role string) (string, error)
	ValidateAccessToken(tokenString string) (*Claims, error)
}

// jwtService 是JWTService接口的实现
type jwtService struct {
	config config.AuthConfig
	logger *zap.Logger
}

// NewJWTService 创建JWT服务实例
func NewJWTService(cfg config.AuthConfig, logger *zap.Logger) JWTService {
	return &jwtService{
		config: cfg,
		logger: logger,
	}
}

// GenerateAccessToken 签发访问令牌
func (s *jwtService) GenerateAccessToken(subject, role string) (string, error) {
	now := time.Now()

	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.AccessTokenTTL)),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    s.config.Issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.JWTSecret))
	if err != nil {
		s.logger.Error("failed to sign access token", zap.Error(err))
		return "", fmt.Errorf("sign access token: %w", err)
	}

	s.logger.Info("access token generated",
		zap.String("subject", subject),
		zap.String("role", role),
		zap.Duration("ttl", s.config.AccessTokenTTL),
	)
	return signed, nil
}

// ValidateAccessToken 验证访问令牌
func (s *jwtService) ValidateAccessToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// 验证签名方法
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.JWTSecret), nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		if errors.Is(err, jwt.ErrTokenNotValidYet) {
			return nil, ErrTokenNotReady
		}
		s.logger.Warn("token validation failed", zap.Error(err))
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	// 验证发行者
	if claims.Issuer != s.config.Issuer {
		s.logger.Warn("token issuer mismatch",
			zap.String("expected", s.config.Issuer),
			zap.String("actual", claims.Issuer),
		)
		return nil, ErrInvalidToken
	}

	return claims, nil
}
