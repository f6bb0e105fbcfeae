// Package config 基于viper加载配置，优先级: 环境变量(TCC_前缀) > 配置文件 > 默认值
package config

import (
	"TCCTransaction/log"
	"TCCTransaction/recovery"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "TCC"

const (
	RepositoryMemory = "memory"
	RepositoryMySQL  = "mysql"
	RepositoryRedis  = "redis"
)

type Config struct {
	Repository RepositoryConfig `mapstructure:"repository"`
	Recovery   RecoveryConfig   `mapstructure:"recovery"`
	Async      AsyncConfig      `mapstructure:"async"`
	Transport  TransportConfig  `mapstructure:"transport"`
	Log        LogConfig        `mapstructure:"log"`
}

type RepositoryConfig struct {
	//memory | mysql | redis
	Type  string      `mapstructure:"type"`
	DSN   string      `mapstructure:"dsn"`
	Redis RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Network       string `mapstructure:"network"`
	Address       string `mapstructure:"address"`
	Password      string `mapstructure:"password"`
	Database      int    `mapstructure:"database"`
	Prefix        string `mapstructure:"prefix"`
	MaxIdle       int    `mapstructure:"max_idle"`
	MaxConnection int    `mapstructure:"max_connection"`

	//空闲连接释放时间(秒)
	IdleTimeoutSeconds int           `mapstructure:"idle_timeout_seconds"`
	DialTimeout        time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
}

type RecoveryConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	MonitorTick     time.Duration `mapstructure:"monitor_tick"`
	RecoverDuration time.Duration `mapstructure:"recover_duration"`
	MaxRetryCount   int           `mapstructure:"max_retry_count"`
	Concurrency     int           `mapstructure:"concurrency"`
	//多节点部署时通过redis锁选出恢复节点
	RedisLock bool `mapstructure:"redis_lock"`
}

type AsyncConfig struct {
	Workers int64 `mapstructure:"workers"`
}

type TransportConfig struct {
	Timeout  time.Duration `mapstructure:"timeout"`
	RetryMax int           `mapstructure:"retry_max"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
	JSON       bool   `mapstructure:"json"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("repository.type", RepositoryMemory)
	v.SetDefault("repository.dsn", "")
	v.SetDefault("repository.redis.network", "tcp")
	v.SetDefault("repository.redis.address", "127.0.0.1:6379")
	v.SetDefault("repository.redis.password", "")
	v.SetDefault("repository.redis.database", 0)
	v.SetDefault("repository.redis.prefix", "tcc:")
	v.SetDefault("repository.redis.max_idle", 20)
	v.SetDefault("repository.redis.max_connection", 100)
	v.SetDefault("repository.redis.idle_timeout_seconds", 10)
	v.SetDefault("repository.redis.dial_timeout", 3*time.Second)
	v.SetDefault("repository.redis.read_timeout", time.Duration(0))
	v.SetDefault("repository.redis.write_timeout", time.Duration(0))

	v.SetDefault("recovery.enabled", true)
	v.SetDefault("recovery.monitor_tick", recovery.DefaultMonitorTick)
	v.SetDefault("recovery.recover_duration", recovery.DefaultRecoverDuration)
	v.SetDefault("recovery.max_retry_count", recovery.DefaultMaxRetryCount)
	v.SetDefault("recovery.concurrency", recovery.DefaultConcurrency)
	v.SetDefault("recovery.redis_lock", false)

	v.SetDefault("async.workers", 16)

	v.SetDefault("transport.timeout", 10*time.Second)
	v.SetDefault("transport.retry_max", 3)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.filename", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", false)
	v.SetDefault("log.json", false)
}

// Load path为空时只使用默认值与环境变量
func Load(path string) (*Config, error) {
	return LoadFromViper(viper.New(), path)
}

// LoadFromViper 复用外部的viper，命令行可先BindPFlag
func LoadFromViper(v *viper.Viper, path string) (*Config, error) {
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct, %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Repository.Type {
	case RepositoryMemory, RepositoryRedis:
	case RepositoryMySQL:
		if c.Repository.DSN == "" {
			return fmt.Errorf("config: repository.dsn is required for %s", RepositoryMySQL)
		}
	default:
		return fmt.Errorf("config: unknown repository type %q", c.Repository.Type)
	}
	if c.Recovery.RedisLock && c.Repository.Redis.Address == "" {
		return fmt.Errorf("config: recovery.redis_lock requires repository.redis.address")
	}
	return nil
}

func (c LogConfig) Options() log.Options {
	return log.Options{
		Level:      c.Level,
		Filename:   c.Filename,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
		JSON:       c.JSON,
	}
}
