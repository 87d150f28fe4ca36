// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"memchat-go/internal/config"
	"memchat-go/internal/handler"
	"memchat-go/internal/middleware"
	"memchat-go/internal/pipeline"
	"memchat-go/internal/repository"
	"memchat-go/internal/service"
	"memchat-go/pkg/database"
	"memchat-go/pkg/embedding"
	"memchat-go/pkg/es"
	"memchat-go/pkg/kafka"
	"memchat-go/pkg/llm"
	"memchat-go/pkg/log"
	"memchat-go/pkg/storage"
	"memchat-go/pkg/tika"
	"memchat-go/pkg/token"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("日志记录器初始化成功")

	// 3. 初始化存储与外部依赖
	// MySQL 连接延迟到首次使用时建立，DSN 缺失会在首个请求上失败
	store := database.NewStore(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)

	var objectStore service.ObjectStore
	minioClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		log.Errorf("MinIO 初始化失败，文件上传功能关闭: %v", err)
	} else {
		objectStore = minioClient
	}

	// ES 不可用时记忆层整体降级为空操作
	var factIndex service.FactIndex
	factStore, err := es.NewFactStore(cfg.Elasticsearch, cfg.Embedding.Dimensions)
	if err != nil {
		log.Errorf("Elasticsearch 初始化失败，记忆功能关闭: %v", err)
	} else {
		factIndex = factStore
	}
	kafka.InitProducer(cfg.Kafka)

	// 4. 初始化 Repository
	chatRepo := repository.NewChatRepository(store, database.RDB)

	// 5. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours)
	tikaClient := tika.NewClient(cfg.Tika)
	embeddingClient := embedding.NewClient(cfg.Embedding)
	llmClient := llm.NewClient(cfg.LLM)

	memoryService := service.NewMemoryService(embeddingClient, factIndex, cfg.Memory)
	contextBuilder := service.NewContextBuilder(memoryService, service.NewCharEstimator())
	uploadService := service.NewUploadService(objectStore, tikaClient)

	// 6. 初始化记忆写入管道
	processor := pipeline.NewProcessor(memoryService)
	directSink := pipeline.NewDirectSink(processor)
	var sink service.TaskSink = directSink
	if kafka.Enabled() {
		sink = pipeline.NewKafkaSink(directSink)
		// 7. 启动后台 Kafka 消费者
		go kafka.StartConsumer(cfg.Kafka, processor)
	}

	chatService := service.NewChatService(chatRepo, contextBuilder, llmClient, memoryService, sink, cfg.LLM)

	// 8. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 9. 注册路由，全部接口要求认证
	chatHandler := handler.NewChatHandler(chatService)
	chatsHandler := handler.NewChatsHandler(chatService)
	uploadHandler := handler.NewUploadHandler(uploadService)
	memoryHandler := handler.NewMemoryHandler(memoryService)

	api := r.Group("/api")
	api.Use(middleware.AuthMiddleware(jwtManager))
	{
		api.POST("/chat", chatHandler.Chat)
		api.POST("/edit-message", chatHandler.EditMessage)

		api.GET("/chats", chatsHandler.ListChats)
		api.GET("/chats/:chatId", chatsHandler.GetChat)
		api.DELETE("/chats/:chatId", chatsHandler.DeleteChat)

		api.POST("/upload-file", uploadHandler.UploadFile)
		api.GET("/memories", memoryHandler.GetMemories)
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}
	log.Info("服务已优雅关闭")
}
