// Package main 提供索引迁移管理的命令行工具
// 基于 golang-migrate 的 mongodb 驱动，支持向上迁移、向下迁移和版本管理
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/MorseWayne/phone_catalog/internal/config"
	"github.com/MorseWayne/phone_catalog/internal/database"
	"github.com/MorseWayne/phone_catalog/internal/logger"
)

func usage() {
	fmt.Printf("Usage: %s -action=[up|down|version|force] [options]\n", os.Args[0])
	fmt.Println("Options:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  ./migrate -action=up")
	fmt.Println("  ./migrate -action=down -steps=1")
	fmt.Println("  ./migrate -action=version -target=1")
	fmt.Println("  ./migrate -action=force -target=0")
}

func main() {
	var (
		action = flag.String("action", "up", "Migration action: up, down, version, force")
		steps  = flag.Int("steps", 1, "Number of steps for down migration")
		target = flag.Uint("target", 0, "Target version for version or force migration")
	)
	flag.Usage = usage
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	lg, err := logger.New(cfg.App.Env, cfg.Log.Level, cfg.Log.Encoding, "migrate", cfg.App.Version)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	ctx := context.Background()
	db, err := database.New(ctx, cfg.Mongo, lg)
	if err != nil {
		lg.Fatal("failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(context.Background()); err != nil {
			lg.Error("failed to close database", zap.Error(err))
		}
	}()

	migrationsDir := cfg.Migrations.Dir

	switch *action {
	case "up":
		lg.Info("running up migrations", zap.String("path", migrationsDir))
		if err := db.RunMigrations(ctx, migrationsDir); err != nil {
			lg.Fatal("failed to run up migrations", zap.Error(err))
		}

	case "down":
		lg.Info("running down migrations", zap.Int("steps", *steps))
		if err := db.MigrateDown(ctx, migrationsDir, *steps); err != nil {
			lg.Fatal("failed to run down migrations", zap.Error(err))
		}

	case "version":
		if *target == 0 {
			lg.Fatal("target version must be specified for version migration")
		}
		if err := db.MigrateToVersion(ctx, migrationsDir, *target); err != nil {
			lg.Fatal("failed to migrate to version", zap.Error(err))
		}

	case "force":
		// 允许版本 0，表示重置到无迁移状态
		if err := db.ForceMigrationVersion(ctx, migrationsDir, int(*target)); err != nil {
			lg.Fatal("failed to force migration version", zap.Error(err))
		}
		lg.Info("migration version forced", zap.Uint("target", *target))

	default:
		usage()
		os.Exit(1)
	}
}
