// Package config 提供应用程序的配置加载和管理功能
// 使用 TOML 格式的配置文件，支持多路径查找
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// MainConfig 主配置，包含应用基本信息
type MainConfig struct {
	AppName string `toml:"appName"` // 应用名称，用于日志标识等
	Host    string `toml:"host"`    // 服务器监听地址，如 "0.0.0.0"
	Port    int    `toml:"port"`    // 服务器监听端口，如 8000
	TlsHost string `toml:"tlsHost"` // TLS 重定向目标地址，留空则不启用
}

// MysqlConfig MySQL 数据库连接配置
type MysqlConfig struct {
	Host         string `toml:"host"`         // MySQL 服务器地址
	Port         int    `toml:"port"`         // MySQL 端口，默认 3306
	User         string `toml:"user"`         // 数据库用户名
	Password     string `toml:"password"`     // 数据库密码
	DatabaseName string `toml:"databaseName"` // 数据库名称
}

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Host     string `toml:"host"`     // Redis 服务器地址
	Port     int    `toml:"port"`     // Redis 端口，默认 6379
	Password string `toml:"password"` // Redis 密码，无密码留空
	Db       int    `toml:"db"`       // Redis 数据库编号，默认 0
}

// LogConfig 日志配置，使用 lumberjack 进行日志轮转
type LogConfig struct {
	LogPath    string `toml:"logPath"`    // 日志文件存储目录
	FileName   string `toml:"fileName"`   // 日志文件名
	MaxSize    int    `toml:"maxSize"`    // 单个日志文件最大大小（MB）
	MaxBackups int    `toml:"maxBackups"` // 保留旧日志文件的最大个数
	MaxAge     int    `toml:"maxAge"`     // 保留旧日志文件的最大天数
	Level      string `toml:"level"`      // 日志级别：debug, info, warn, error
}

// KafkaConfig 离线推送投递队列配置
// 网关只负责把"需要推送"这件事写进 topic，真正的推送由下游 worker 完成
type KafkaConfig struct {
	Enabled   bool   `toml:"enabled"`   // 是否启用 Kafka 推送队列，false 时降级为日志输出
	HostPort  string `toml:"hostPort"`  // Kafka 服务器地址，如 "localhost:9092"
	PushTopic string `toml:"pushTopic"` // 离线推送通知主题
	Timeout   int    `toml:"timeout"`   // 写入超时时间（秒）
}

// JWTConfig JWT 认证配置
type JWTConfig struct {
	Secret             string `toml:"secret"`             // JWT 签名密钥，建议 32 字符以上
	AccessTokenExpiry  int    `toml:"accessTokenExpiry"`  // Access Token 有效期（分钟）
	RefreshTokenExpiry int    `toml:"refreshTokenExpiry"` // Refresh Token 有效期（小时）
}

// SnowflakeConfig 雪花算法配置
type SnowflakeConfig struct {
	MachineID int64 `toml:"machineId"` // 雪花算法节点 ID，范围 0-1023，分布式部署时每台机器需唯一
}

// GatewayConfig 连接网关的行为配置
// 响铃超时和断线宽限期是两个面向用户的超时，必须可配置
type GatewayConfig struct {
	RingTimeoutSeconds  int `toml:"ringTimeoutSeconds"`  // 呼叫响铃超时（秒），0 取默认值
	CallGraceSeconds    int `toml:"callGraceSeconds"`    // 断线后通话保留宽限期（秒），0 取默认值
	PresenceTTLMinutes  int `toml:"presenceTtlMinutes"`  // 在线状态标记过期时间（分钟）
	SessionTTLMinutes   int `toml:"sessionTtlMinutes"`   // 凭证校验结果缓存时间（分钟）
	CatchupWindowHours  int `toml:"catchupWindowHours"`  // 重连补投回看窗口（小时）
	CatchupBatchLimit   int `toml:"catchupBatchLimit"`   // 重连补投单次上限
	MaxContentSizeBytes int `toml:"maxContentSizeBytes"` // 单条消息密文上限（字节）
}

// Config 应用程序总配置，聚合所有子配置
type Config struct {
	MainConfig      `toml:"mainConfig"`      // 主配置
	MysqlConfig     `toml:"mysqlConfig"`     // MySQL 配置
	RedisConfig     `toml:"redisConfig"`     // Redis 配置
	LogConfig       `toml:"logConfig"`       // 日志配置
	KafkaConfig     `toml:"kafkaConfig"`     // Kafka 推送队列配置
	JWTConfig       `toml:"jwtConfig"`       // JWT 配置
	SnowflakeConfig `toml:"snowflakeConfig"` // 雪花算法配置
	GatewayConfig   `toml:"gatewayConfig"`   // 网关行为配置
}

// config 全局配置单例，延迟加载
var config *Config

// LoadConfig 从多个候选路径加载配置文件
// 按顺序尝试加载，找到第一个可用的配置文件即停止
func LoadConfig() error {
	if config == nil {
		config = new(Config)
	}
	// 候选配置文件路径（优先加载本地配置）
	paths := []string{
		"configs/config_local.toml",       // 本地开发配置（优先）
		"configs/config.toml",             // 默认配置
		"../../configs/config_local.toml", // 从子目录运行时的路径
		"../../configs/config.toml",       // 从子目录运行时的路径
	}

	for _, path := range paths {
		if _, err := toml.DecodeFile(path, config); err == nil {
			return nil
		}
	}

	return fmt.Errorf("could not find configuration file in any of the search paths")
}

// GetConfig 获取全局配置实例（单例模式）
// 首次调用时会自动加载配置文件
func GetConfig() *Config {
	if config == nil {
		config = new(Config)
		_ = LoadConfig() // 忽略加载错误，使用默认值
	}
	return config
}
