package mongodb

import (
	"context"
	"fmt"
	"time"

	"casedesk/pkg/config"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// NewClient 创建 MongoDB 客户端并返回配置中的数据库
func NewClient(cfg config.MongoConfig, logger *zap.Logger) (*mongo.Client, *mongo.Database, error) {
	logger.Info("Initializing MongoDB client",
		zap.String("database", cfg.Database),
	)

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetServerSelectionTimeout(5 * time.Second).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true}) // metadata 解码为 map 而非 bson.D
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		logger.Error("MongoDB connection failed", zap.Error(err))
		return nil, nil, fmt.Errorf("failed to connect: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		logger.Error("MongoDB ping failed", zap.Error(err))
		return nil, nil, fmt.Errorf("failed to ping: %w", err)
	}

	logger.Info("MongoDB connection established successfully")
	return client, client.Database(cfg.Database), nil
}
