// Package bootstrap 根据配置组装服务端与命令行工具共用的依赖。
package bootstrap

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"rag-qa-go/internal/config"
	"rag-qa-go/internal/handler"
	"rag-qa-go/internal/model"
	"rag-qa-go/internal/pipeline"
	"rag-qa-go/internal/repository"
	"rag-qa-go/internal/service"
	"rag-qa-go/pkg/database"
	"rag-qa-go/pkg/embedding"
	"rag-qa-go/pkg/kafka"
	"rag-qa-go/pkg/llm"
	"rag-qa-go/pkg/log"
	"rag-qa-go/pkg/storage"
	"rag-qa-go/pkg/tika"
	"rag-qa-go/pkg/token"
	"rag-qa-go/pkg/vectorindex"
)

// App 持有进程内的全部客户端与服务。
type App struct {
	Config    *config.Config
	DB        *gorm.DB
	Redis     *redis.Client
	Index     vectorindex.Index
	Embedder  embedding.Client
	LLM       llm.Client
	Processor *pipeline.Processor
	JWT       *token.JWTManager
	Blacklist repository.TokenBlacklist
	DocRepo   repository.DocumentRepository
	UserRepo  repository.UserRepository

	Users     service.UserService
	Documents service.DocumentService
	QA        service.QAService
	Admin     service.AdminService

	closers []func() error
}

// New 依次建立数据库、Redis、向量索引等连接并组装服务。
// MinIO 与 Kafka 为可选依赖：未配置时分别关闭原文归档与异步重建。
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	// 1. 数据库和 Redis
	db, err := database.NewMySQL(cfg.Database.MySQL.DSN, &model.User{}, &model.Document{})
	if err != nil {
		return nil, err
	}
	app.DB = db
	app.closers = append(app.closers, func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})

	rdb, err := database.NewRedis(ctx, cfg.Database.Redis)
	if err != nil {
		return nil, err
	}
	app.Redis = rdb
	app.closers = append(app.closers, rdb.Close)

	// 2. 向量索引
	index, err := vectorindex.New(cfg.VectorIndex)
	if err != nil {
		return nil, fmt.Errorf("初始化向量索引失败: %w", err)
	}
	app.Index = index
	app.closers = append(app.closers, index.Close)
	log.Infof("向量索引后端: %s, 集合: %s", cfg.VectorIndex.Backend, cfg.VectorIndex.Collection)

	// 3. 可选依赖
	var store storage.ObjectStore
	if cfg.MinIO.Endpoint != "" {
		minioStore, err := storage.NewMinIO(ctx, cfg.MinIO)
		if err != nil {
			log.Warnw("MinIO 不可用，原文归档已关闭", "error", err)
		} else {
			store = minioStore
		}
	}
	var producer kafka.TaskProducer
	if cfg.Kafka.Brokers != "" {
		p := kafka.NewProducer(cfg.Kafka)
		producer = p
		app.closers = append(app.closers, p.Close)
	}

	// 4. Repository 与客户端
	app.UserRepo = repository.NewUserRepository(db)
	app.DocRepo = repository.NewDocumentRepository(db)
	app.Blacklist = repository.NewTokenBlacklist(rdb)
	answerCache := repository.NewAnswerCache(rdb)
	app.JWT = token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireMinutes)
	app.Embedder = embedding.NewClient(cfg.Embedding)
	app.LLM = llm.NewClient(cfg.LLM)
	tikaClient := tika.NewClient(cfg.Tika)

	// 5. 入库流程与 Service (依赖注入)
	app.Processor = pipeline.NewProcessor(app.DocRepo, app.Embedder, index, app.LLM, cfg.RAG)
	generator := service.NewAnswerGenerator(app.LLM, cfg.RAG.AnswerMaxTokens)
	app.Users = service.NewUserService(app.UserRepo, app.Blacklist, app.JWT)
	app.Documents = service.NewDocumentService(app.DocRepo, app.Processor, tikaClient, index, store, producer)
	app.QA = service.NewQAService(app.Embedder, index, answerCache, generator, app.LLM, cfg.RAG)
	app.Admin = service.NewAdminService(app.UserRepo, app.DocRepo, index, app.Processor, producer, app.Embedder.Dimensions())

	ok = true
	return app, nil
}

// RouterDeps 返回注册 HTTP 路由所需的依赖。
func (a *App) RouterDeps() handler.RouterDeps {
	return handler.RouterDeps{
		UserService:     a.Users,
		DocumentService: a.Documents,
		QAService:       a.QA,
		AdminService:    a.Admin,
		JWTManager:      a.JWT,
		Blacklist:       a.Blacklist,
		CORSOrigins:     a.Config.Server.CORSOrigins,
		RequestTimeout:  a.Config.Server.RequestTimeout,
		MaxUploadMB:     a.Config.Server.MaxUploadMB,
	}
}

// Close 按创建的逆序释放资源。
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warnw("释放资源失败", "error", err)
		}
	}
	a.closers = nil
}
