package database

import (
	"context"

	"github.com/go-redis/redis/v8"

	"memchat-go/pkg/log"
)

// RDB 是全局的 Redis 客户端；未配置时保持为 nil，调用方降级为不使用缓存。
var RDB *redis.Client

// InitRedis 初始化 Redis 客户端连接。
// addr 为空表示不启用 Redis，聊天列表缓存与消费重试计数随之关闭。
func InitRedis(addr, password string, db int) {
	if addr == "" {
		log.Info("Redis 未配置，缓存功能关闭")
		return
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		log.Fatal("failed to connect to redis", err)
	}

	RDB = client
	log.Info("Redis client connected successfully")
}
