// Package config 负责加载和管理应用程序的配置。
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	JWT         JWTConfig         `mapstructure:"jwt"`
	Log         LogConfig         `mapstructure:"log"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	Tika        TikaConfig        `mapstructure:"tika"`
	VectorIndex VectorIndexConfig `mapstructure:"vector_index"`
	MinIO       MinIOConfig       `mapstructure:"minio"`
	Embedding   EmbeddingConfig   `mapstructure:"embedding"`
	LLM         LLMConfig         `mapstructure:"llm"`
	RAG         RAGConfig         `mapstructure:"rag"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port           string        `mapstructure:"port"`
	Mode           string        `mapstructure:"mode"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxUploadMB    int64         `mapstructure:"max_upload_mb"`
	CORSOrigins    []string      `mapstructure:"cors_origins"`
	// SeedDir 中的文件在启动时导入，已存在同名文档则跳过
	SeedDir string `mapstructure:"seed_dir"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。URL 非空时优先于 Addr/Password/DB。
type RedisConfig struct {
	URL      string `mapstructure:"url"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储 JWT 相关的配置。
type JWTConfig struct {
	Secret                   string `mapstructure:"secret"`
	AccessTokenExpireMinutes int    `mapstructure:"access_token_expire_minutes"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers     string `mapstructure:"brokers"`
	Topic       string `mapstructure:"topic"`
	GroupID     string `mapstructure:"group_id"`
	MaxAttempts int    `mapstructure:"max_attempts"`
}

// TikaConfig 存储 Tika 服务器相关的配置。
type TikaConfig struct {
	ServerURL string        `mapstructure:"server_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// VectorIndexConfig 选择并配置向量索引后端。
type VectorIndexConfig struct {
	// Backend 取值 qdrant | elasticsearch | bolt
	Backend       string              `mapstructure:"backend"`
	Collection    string              `mapstructure:"collection"`
	Qdrant        QdrantConfig        `mapstructure:"qdrant"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Bolt          BoltConfig          `mapstructure:"bolt"`
}

// QdrantConfig 存储 Qdrant gRPC 连接配置。URL 形如 http://host:6334。
type QdrantConfig struct {
	URL    string `mapstructure:"url"`
	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port"`
	APIKey string `mapstructure:"api_key"`
	UseTLS bool   `mapstructure:"use_tls"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
}

// BoltConfig 存储本地 bbolt 文件索引的配置。
type BoltConfig struct {
	Path string `mapstructure:"path"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。Endpoint 为空时不启用原文归档。
type MinIOConfig struct {
	Endpoint        string        `mapstructure:"endpoint"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	UseSSL          bool          `mapstructure:"use_ssl"`
	BucketName      string        `mapstructure:"bucket_name"`
	PresignExpiry   time.Duration `mapstructure:"presign_expiry"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
type EmbeddingConfig struct {
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	Model             string        `mapstructure:"model"`
	Dimensions        int           `mapstructure:"dimensions"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// LLMConfig 存储大语言模型相关的配置。
type LLMConfig struct {
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Model      string              `mapstructure:"model"`
	Timeout    time.Duration       `mapstructure:"timeout"`
	Generation LLMGenerationConfig `mapstructure:"generation"`
}

// LLMGenerationConfig 配置生成相关参数（可选）。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// RAGConfig 存储检索增强问答流程的参数。
type RAGConfig struct {
	DefaultTopK        int `mapstructure:"default_top_k"`
	MaxTopK            int `mapstructure:"max_top_k"`
	CacheTTLSeconds    int `mapstructure:"cache_ttl_seconds"`
	AnswerMaxTokens    int `mapstructure:"answer_max_tokens"`
	SummaryMaxTokens   int `mapstructure:"summary_max_tokens"`
	SummaryPrefixChars int `mapstructure:"summary_prefix_chars"`
}

// CacheTTL 返回答案缓存的过期时间。
func (c RAGConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// envBindings 为常用的部署环境变量提供别名。
var envBindings = map[string][]string{
	"database.mysql.dsn":              {"DATABASE_URL"},
	"database.redis.url":              {"REDIS_URL"},
	"vector_index.qdrant.url":         {"QDRANT_URL"},
	"jwt.secret":                      {"JWT_SECRET"},
	"jwt.access_token_expire_minutes": {"ACCESS_TOKEN_EXPIRE_MINUTES"},
	"embedding.api_key":               {"OPENAI_API_KEY"},
	"llm.api_key":                     {"LLM_API_KEY", "CLAUDE_API_KEY"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.request_timeout", 120*time.Second)
	v.SetDefault("server.max_upload_mb", 50)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("jwt.access_token_expire_minutes", 60)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("tika.server_url", "http://localhost:9998")
	v.SetDefault("tika.timeout", 60*time.Second)
	v.SetDefault("minio.bucket_name", "documents")
	v.SetDefault("minio.presign_expiry", time.Hour)
	v.SetDefault("kafka.topic", "document-reindex")
	v.SetDefault("kafka.group_id", "rag-qa-go-reindexer")
	v.SetDefault("kafka.max_attempts", 3)
	v.SetDefault("vector_index.backend", "qdrant")
	v.SetDefault("vector_index.collection", "documents")
	v.SetDefault("vector_index.qdrant.host", "localhost")
	v.SetDefault("vector_index.qdrant.port", 6334)
	v.SetDefault("vector_index.bolt.path", "data/vectors.db")
	v.SetDefault("embedding.base_url", "https://api.openai.com/v1")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimensions", 384)
	v.SetDefault("embedding.timeout", 30*time.Second)
	v.SetDefault("llm.timeout", 120*time.Second)
	v.SetDefault("rag.default_top_k", 5)
	v.SetDefault("rag.max_top_k", 50)
	v.SetDefault("rag.cache_ttl_seconds", 3600)
	v.SetDefault("rag.answer_max_tokens", 500)
	v.SetDefault("rag.summary_max_tokens", 500)
	v.SetDefault("rag.summary_prefix_chars", 2000)
}

// Load 读取 .env（若存在）与指定的 YAML 文件，并用环境变量覆盖。
// 配置文件不存在时仅使用默认值与环境变量。
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("加载 .env 文件失败: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, envs := range envBindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("绑定环境变量失败 (%s): %w", key, err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("读取配置文件失败: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查会破坏检索流程不变量的配置组合。
func (c *Config) Validate() error {
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions 必须为正数, 当前为 %d", c.Embedding.Dimensions)
	}
	switch c.VectorIndex.Backend {
	case "qdrant", "elasticsearch", "bolt":
	default:
		return fmt.Errorf("不支持的向量索引后端: %q", c.VectorIndex.Backend)
	}
	if c.VectorIndex.Collection == "" {
		return errors.New("vector_index.collection 不能为空")
	}
	if c.RAG.DefaultTopK <= 0 {
		return fmt.Errorf("rag.default_top_k 必须为正数, 当前为 %d", c.RAG.DefaultTopK)
	}
	return nil
}
