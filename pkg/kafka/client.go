// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"memchat-go/internal/config"
	"memchat-go/pkg/database"
	"memchat-go/pkg/log"
	"memchat-go/pkg/tasks"

	"github.com/segmentio/kafka-go"
)

// TaskProcessor defines the interface for any service that can process a task.
// This decouples the Kafka consumer from the concrete pipeline implementation.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.MemoryTask) error
}

var producer *kafka.Writer

// InitProducer 初始化 Kafka 生产者。brokers 未配置时保持关闭状态。
func InitProducer(cfg config.KafkaConfig) {
	if cfg.Brokers == "" {
		log.Info("Kafka 未配置，记忆任务改为进程内处理")
		return
	}
	producer = &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	log.Info("Kafka 生产者初始化成功")
}

// Enabled 报告生产者是否已初始化。
func Enabled() bool {
	return producer != nil
}

// ProduceMemoryTask 发送一个记忆写入任务到 Kafka。
func ProduceMemoryTask(task tasks.MemoryTask) error {
	if producer == nil {
		return fmt.Errorf("kafka 生产者未初始化")
	}
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}

	return producer.WriteMessages(context.Background(),
		kafka.Message{
			Key:   []byte(task.ChatID),
			Value: taskBytes,
		},
	)
}

// StartConsumer 启动一个 Kafka 消费者来处理记忆任务。
func StartConsumer(cfg config.KafkaConfig, processor TaskProcessor) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{cfg.Brokers},
		Topic:    cfg.Topic,
		GroupID:  "memchat-go-consumer",
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(context.Background())
		if err != nil {
			log.Error("从 Kafka 读取消息失败", err)
			break
		}

		log.Infof("收到 Kafka 消息: offset %d", m.Offset)

		var task tasks.MemoryTask
		if err := json.Unmarshal(m.Value, &task); err != nil {
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
			// 消息格式错误，直接提交，避免阻塞队列
			if err := r.CommitMessages(context.Background(), m); err != nil {
				log.Errorf("提交错误消息失败: %v", err)
			}
			continue
		}

		taskKey := fmt.Sprintf("%s:%d", task.ChatID, m.Offset)
		if err := processor.Process(context.Background(), task); err != nil {
			log.Errorf("处理记忆任务失败: chatId=%s, Error: %v", task.ChatID, err)
			// 使用 Redis 计数失败次数，达到阈值后提交 offset 终止重试
			attemptsKey := fmt.Sprintf("kafka:attempts:%s", taskKey)
			attempts, incErr := incrAttempts(attemptsKey)
			if incErr != nil {
				// Redis 异常时保守处理：不提交 offset，让 Kafka 重试
				continue
			}
			if attempts >= 3 {
				log.Errorf("记忆任务多次失败(>=3)，提交 offset 终止重试: chatId=%s", task.ChatID)
				if err := r.CommitMessages(context.Background(), m); err != nil {
					log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
				}
			}
			// attempts < 3 时，不提交 offset 让 Kafka 自动重试
		} else {
			log.Infof("记忆任务处理成功: chatId=%s", task.ChatID)
			clearAttempts(fmt.Sprintf("kafka:attempts:%s", taskKey))
			if err := r.CommitMessages(context.Background(), m); err != nil {
				log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
			}
		}
	}

	if err := r.Close(); err != nil {
		log.Fatalf("关闭 Kafka 消费者失败: %v", err)
	}
}

// incrAttempts 自增失败计数。Redis 未配置时无法计数，
// 返回阈值让消费者直接提交，避免坏消息无限重投。
func incrAttempts(key string) (int64, error) {
	if database.RDB == nil {
		return 3, nil
	}
	attempts, err := database.RDB.Incr(context.Background(), key).Result()
	if err != nil {
		return 0, err
	}
	_ = database.RDB.Expire(context.Background(), key, 24*time.Hour).Err()
	return attempts, nil
}

func clearAttempts(key string) {
	if database.RDB == nil {
		return
	}
	_ = database.RDB.Del(context.Background(), key).Err()
}
