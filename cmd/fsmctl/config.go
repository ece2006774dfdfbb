package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/junbin-yang/go-fsmkit/pkg/config"
	"github.com/junbin-yang/go-fsmkit/pkg/logger"
	"github.com/junbin-yang/go-fsmkit/pkg/metrics"
	"github.com/junbin-yang/go-fsmkit/pkg/store"
)

// ServeConfig serve 命令配置
type ServeConfig struct {
	Server struct {
		Listen          string        `yaml:"listen" json:"listen" env:"FSM_LISTEN"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	} `yaml:"server" json:"server"`

	Logger struct {
		Level string `yaml:"level" json:"level" env:"FSM_LOG_LEVEL"`
		File  string `yaml:"file" json:"file"`
		// Rotate 滚动方式：size（默认）或 time
		Rotate string `yaml:"rotate" json:"rotate"`
		MaxAge int    `yaml:"max_age" json:"max_age"`
	} `yaml:"logger" json:"logger"`

	Store struct {
		Backend   string        `yaml:"backend" json:"backend" env:"FSM_STORE"`
		Dir       string        `yaml:"dir" json:"dir"`
		RedisAddr string        `yaml:"redis_addr" json:"redis_addr" env:"FSM_REDIS_ADDR"`
		Password  string        `yaml:"password" json:"password" env:"FSM_REDIS_PASSWORD"`
		DB        int           `yaml:"db" json:"db"`
		Prefix    string        `yaml:"prefix" json:"prefix"`
		TTL       time.Duration `yaml:"ttl" json:"ttl"`
	} `yaml:"store" json:"store"`

	Metrics struct {
		Enabled   bool   `yaml:"enabled" json:"enabled"`
		Path      string `yaml:"path" json:"path"`
		Namespace string `yaml:"namespace" json:"namespace"`
	} `yaml:"metrics" json:"metrics"`

	// Async 内置异步钩子使用的执行器
	Async struct {
		Workers   int `yaml:"workers" json:"workers" env:"FSM_ASYNC_WORKERS"`
		QueueSize int `yaml:"queue_size" json:"queue_size"`
	} `yaml:"async" json:"async"`

	// Definitions 状态机定义文件，相对路径以配置文件所在目录为基准
	Definitions string `yaml:"definitions" json:"definitions" env:"FSM_DEFINITIONS"`
	Watch       bool   `yaml:"watch" json:"watch"`
	History     int    `yaml:"history" json:"history"`
}

func (c *ServeConfig) setDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = "127.0.0.1:8080"
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "memory"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Async.Workers <= 0 {
		c.Async.Workers = 8
	}
	if c.Async.QueueSize <= 0 {
		c.Async.QueueSize = 256
	}
	if c.History <= 0 {
		c.History = 64
	}
}

func (c *ServeConfig) validate() error {
	if c.Definitions == "" {
		return errors.New("definitions path is required")
	}
	switch c.Store.Backend {
	case "memory", "file":
	case "redis":
		if c.Store.RedisAddr == "" {
			return errors.New("store.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	return nil
}

// loadServeConfig 读取配置文件，path 为空时按默认路径查找 fsm.yml/fsm.json
func loadServeConfig(path string) (*ServeConfig, string, error) {
	cfg := &ServeConfig{}
	cm := config.NewConfigManager(cfg, config.WithAppName("fsm"))
	if err := cm.LoadConfig(path); err != nil {
		return nil, "", err
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, "", fmt.Errorf("config %s: %w", cm.Path(), err)
	}

	defs := cfg.Definitions
	if !filepath.IsAbs(defs) {
		defs = filepath.Join(filepath.Dir(cm.Path()), defs)
	}
	return cfg, defs, nil
}

// buildLogger 按配置创建日志，写文件时滚动切割
func buildLogger(cfg *ServeConfig) (*logger.ZapLogger, error) {
	level, err := logger.ParseLevel(cfg.Logger.Level)
	if err != nil {
		return nil, err
	}
	if cfg.Logger.File == "" {
		return logger.New(os.Stderr, level, logger.AddCaller()), nil
	}

	rc := &logger.RotateConfig{
		Filename:  cfg.Logger.File,
		MaxSize:   100,
		MaxAge:    cfg.Logger.MaxAge,
		LocalTime: true,
		Compress:  true,
	}
	if rc.MaxAge <= 0 {
		rc.MaxAge = 7
	}
	switch cfg.Logger.Rotate {
	case "", "size":
		return logger.New(logger.NewRotateBySize(rc), level, logger.AddCaller()), nil
	case "time":
		rc.RotationTime = 24 * time.Hour
		return logger.New(logger.NewRotateByTime(rc), level, logger.AddCaller()), nil
	default:
		return nil, fmt.Errorf("unknown logger.rotate %q", cfg.Logger.Rotate)
	}
}

// buildStore 按 backend 创建快照存储
func buildStore(cfg *ServeConfig) (store.Store, error) {
	switch cfg.Store.Backend {
	case "memory":
		return store.NewMemoryStore(), nil
	case "file":
		return store.NewFileStore(cfg.Store.Dir), nil
	case "redis":
		var opts []store.RedisOption
		if cfg.Store.Prefix != "" {
			opts = append(opts, store.WithPrefix(cfg.Store.Prefix))
		}
		if cfg.Store.TTL > 0 {
			opts = append(opts, store.WithTTL(cfg.Store.TTL))
		}
		return store.NewRedisStore(cfg.Store.RedisAddr, cfg.Store.Password, cfg.Store.DB, opts...), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}

// buildMetrics 创建独立的注册表，避免与全局默认注册表冲突
func buildMetrics(cfg *ServeConfig) (*metrics.Collector, *prometheus.Registry, error) {
	if !cfg.Metrics.Enabled {
		return nil, nil, nil
	}
	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(cfg.Metrics.Namespace)
	if err := c.Register(reg); err != nil {
		return nil, nil, err
	}
	return c, reg, nil
}
