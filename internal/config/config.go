package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"casedesk/pkg/config"
	"casedesk/pkg/otel"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

type StoreConfig struct {
	Driver string `yaml:"driver"`
}

type NotificationConfig struct {
	MaxPageSize           int `yaml:"max_page_size"`
	SweepIntervalSeconds  int `yaml:"sweep_interval_seconds"`
	UnreadCacheTTLSeconds int `yaml:"unread_cache_ttl_seconds"`
}

// SweepInterval 过期清理间隔，默认 1 小时
func (c NotificationConfig) SweepInterval() time.Duration {
	if c.SweepIntervalSeconds <= 0 {
		return time.Hour
	}
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// UnreadCacheTTL 未读数缓存有效期，默认 60 秒
func (c NotificationConfig) UnreadCacheTTL() time.Duration {
	if c.UnreadCacheTTLSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.UnreadCacheTTLSeconds) * time.Second
}

type Config struct {
	Server       config.ServerConfig `yaml:"server"`
	Store        StoreConfig         `yaml:"store"`
	DB           config.DBConfig     `yaml:"db"`
	Mongo        config.MongoConfig  `yaml:"mongo"`
	Redis        config.RedisConfig  `yaml:"redis"`
	MQ           config.MQConfig     `yaml:"mq"`
	JWT          config.JWTConfig    `yaml:"jwt"`
	Otel         otel.Config         `yaml:"otel"`
	Notification NotificationConfig  `yaml:"notification"`
	Log          config.LogConfig    `yaml:"log"`
}

// Load reads config/<CONFIG_ENV>.yaml over config/base.yaml and applies the
// environment overrides.
func Load() (*Config, error) {
	env := config.GetConfigEnv()
	configDir := config.GetEnv("CONFIG_DIR", "config")
	return LoadFrom(env, configDir)
}

func LoadFrom(env, configDir string) (*Config, error) {
	var cfg Config
	if err := config.Decode(env, configDir, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 环境变量覆盖（优先级最高）
	config.OverrideServerFromEnv(&cfg.Server)
	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideMongoFromEnv(&cfg.Mongo)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideJWTFromEnv(&cfg.JWT)
	config.OverrideLogFromEnv(&cfg.Log)
	if driver := os.Getenv("STORE_DRIVER"); driver != "" {
		cfg.Store.Driver = driver
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate fills defaults and rejects unusable settings.
func (c *Config) Validate() error {
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	if c.Store.Driver == "" {
		c.Store.Driver = DriverPostgres
	}
	switch c.Store.Driver {
	case DriverPostgres, DriverMongo, DriverMemory:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	if c.JWT.Secret == "" || strings.Contains(c.JWT.Secret, "${") {
		return fmt.Errorf("jwt.secret is required")
	}
	if c.Server.Port == "" {
		c.Server.Port = "8085"
	}
	return nil
}

// Addr HTTP 监听地址
func (c *Config) Addr() string {
	return ":" + strings.TrimPrefix(c.Server.Port, ":")
}
