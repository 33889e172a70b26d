// Package main 签发访问令牌，用于调用启用了鉴权的写接口
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/MorseWayne/phone_catalog/internal/config"
	"github.com/MorseWayne/phone_catalog/internal/service"
)

func main() {
	var (
		subject = flag.String("subject", "admin", "Token subject")
		role    = flag.String("role", service.RoleAdmin, "Role claim")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if !cfg.Auth.Enabled() {
		fmt.Fprintln(os.Stderr, "AUTH_JWT_SECRET is not set, write endpoints are unauthenticated")
		os.Exit(1)
	}

	token, err := service.NewJWTService(cfg.Auth, zap.NewNop()).GenerateAccessToken(*subject, *role)
	if err != nil {
		log.Fatalf("generate token: %v", err)
	}
	fmt.Println(token)
}
