// Package database 提供 MongoDB 连接管理与索引迁移功能。
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/mongodb"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/MorseWayne/phone_catalog/internal/config"
)

// DB 封装 MongoDB 客户端
// 驱动内部自带连接池，Client 可以被所有请求并发共享。
type DB struct {
	Client   *mongo.Client
	Database *mongo.Database
	logger   *zap.Logger
	cfg      config.MongoConfig
}

// New 建立连接并 ping 一次，失败时返回错误（启动阶段应视为致命错误）
func New(ctx context.Context, cfg config.MongoConfig, logger *zap.Logger) (*DB, error) {
	client, err := connect(ctx, cfg)
	if err != nil {
		return nil, err
	}

	db := &DB{
		Client:   client,
		Database: client.Database(cfg.Database),
		logger:   logger,
		cfg:      cfg,
	}

	if err := db.Ping(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	logger.Info("database connected",
		zap.String("database", cfg.Database),
		zap.String("collection", cfg.Collection),
		zap.Uint64("max_pool_size", cfg.MaxPoolSize),
	)

	return db, nil
}

func connect(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, error) {
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetServerSelectionTimeout(cfg.ConnectTimeout)
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	return client, nil
}

// Products 返回商品集合
func (db *DB) Products() *mongo.Collection {
	return db.Database.Collection(db.cfg.Collection)
}

// Ping 对数据库执行一次最小往返，用于健康检查
func (db *DB) Ping(ctx context.Context) error {
	return db.Database.RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err()
}

// Close 断开连接
func (db *DB) Close(ctx context.Context) error {
	return db.Client.Disconnect(ctx)
}

// newMigrate 创建 migrate 实例
// 迁移使用独立连接：mongodb 迁移驱动在 Close 时会断开它持有的客户端。
func (db *DB) newMigrate(ctx context.Context, migrationsDir string) (*migrate.Migrate, error) {
	client, err := connect(ctx, db.cfg)
	if err != nil {
		return nil, fmt.Errorf("open database for migration: %w", err)
	}

	driver, err := mongodb.WithInstance(client, &mongodb.Config{
		DatabaseName: db.cfg.Database,
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("create mongodb migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationsDir),
		"mongodb",
		driver,
	)
	if err != nil {
		_ = driver.Close()
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}
	return m, nil
}

// RunMigrations 执行所有待执行的迁移（up）
func (db *DB) RunMigrations(ctx context.Context, migrationsDir string) error {
	m, err := db.newMigrate(ctx, migrationsDir)
	if err != nil {
		return err
	}
	defer m.Close()

	currentVersion, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("get current version: %w", err)
	}
	if dirty {
		return fmt.Errorf("database is in dirty state at version %d, please check and fix manually", currentVersion)
	}

	db.logger.Info("current migration version", zap.Uint("version", currentVersion))

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			db.logger.Info("no new migrations to apply")
			return nil
		}
		return fmt.Errorf("run migrations: %w", err)
	}

	newVersion, _, err := m.Version()
	if err != nil {
		return fmt.Errorf("get new version: %w", err)
	}

	db.logger.Info("migrations completed successfully",
		zap.Uint("from_version", currentVersion),
		zap.Uint("to_version", newVersion),
	)
	return nil
}

// MigrateDown 回滚指定步数
func (db *DB) MigrateDown(ctx context.Context, migrationsDir string, steps int) error {
	m, err := db.newMigrate(ctx, migrationsDir)
	if err != nil {
		return err
	}
	defer m.Close()

	currentVersion, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}
	if dirty {
		return fmt.Errorf("database is in dirty state at version %d", currentVersion)
	}

	db.logger.Info("starting migration rollback",
		zap.Uint("current_version", currentVersion),
		zap.Int("steps", steps),
	)

	if err := m.Steps(-steps); err != nil {
		return fmt.Errorf("migrate down: %w", err)
	}

	newVersion, _, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("get new version: %w", err)
	}

	db.logger.Info("migration rollback completed",
		zap.Uint("from_version", currentVersion),
		zap.Uint("to_version", newVersion),
	)
	return nil
}

// MigrateToVersion 迁移到指定版本
func (db *DB) MigrateToVersion(ctx context.Context, migrationsDir string, version uint) error {
	m, err := db.newMigrate(ctx, migrationsDir)
	if err != nil {
		return err
	}
	defer m.Close()

	currentVersion, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("get current version: %w", err)
	}
	if dirty {
		return fmt.Errorf("database is in dirty state at version %d", currentVersion)
	}

	if err := m.Migrate(version); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			db.logger.Info("already at target version", zap.Uint("version", version))
			return nil
		}
		return fmt.Errorf("migrate to version %d: %w", version, err)
	}

	db.logger.Info("migration to version completed",
		zap.Uint("from_version", currentVersion),
		zap.Uint("to_version", version),
	)
	return nil
}

// ForceMigrationVersion 强制设置迁移版本，只用于修复脏状态
func (db *DB) ForceMigrationVersion(ctx context.Context, migrationsDir string, version int) error {
	m, err := db.newMigrate(ctx, migrationsDir)
	if err != nil {
		return err
	}
	defer m.Close()

	db.logger.Warn("forcing migration version", zap.Int("version", version))

	if err := m.Force(version); err != nil {
		return fmt.Errorf("force migration version: %w", err)
	}
	return nil
}
