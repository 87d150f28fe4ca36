// Package pipeline 定义了记忆写入的后台处理流程。
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"memchat-go/internal/service"
	"memchat-go/pkg/kafka"
	"memchat-go/pkg/log"
	"memchat-go/pkg/tasks"
)

// queryMaxLen 是写入记忆元数据的原始问题截断长度。
const queryMaxLen = 100

// Processor 把一次问答交互转换为记忆事实并写入记忆层。
type Processor struct {
	memory service.MemoryService
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(memory service.MemoryService) *Processor {
	return &Processor{memory: memory}
}

// Process 处理一条记忆任务。
func (p *Processor) Process(ctx context.Context, task tasks.MemoryTask) error {
	log.Infof("[Processor] 开始写入记忆, userId: %s, chatId: %s", task.UserID, task.ChatID)

	fact := formatFact(task)
	if strings.TrimSpace(fact) == "" {
		log.Warnf("[Processor] 记忆内容为空, 跳过, chatId: %s", task.ChatID)
		return nil
	}

	err := p.memory.Add(ctx, fact, service.MemoryAddOptions{
		UserID: task.UserID,
		ChatID: task.ChatID,
		Metadata: map[string]interface{}{
			"query":           truncateQuery(task.Query),
			"response_length": task.ResponseLength,
			"has_files":       task.HasFiles,
			"has_images":      task.HasImages,
		},
	})
	if err != nil {
		return fmt.Errorf("写入记忆失败: %w", err)
	}
	log.Infof("[Processor] 记忆写入完成, chatId: %s", task.ChatID)
	return nil
}

// formatFact 把一次问答压缩为单条陈述式的记忆文本。
func formatFact(task tasks.MemoryTask) string {
	var b strings.Builder
	if q := strings.TrimSpace(task.Query); q != "" {
		fmt.Fprintf(&b, "User asked: %s", q)
	}
	if s := strings.TrimSpace(task.Summary); s != "" {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "Assistant responded about: %s", s)
	}
	return b.String()
}

func truncateQuery(q string) string {
	runes := []rune(q)
	if len(runes) <= queryMaxLen {
		return q
	}
	return string(runes[:queryMaxLen])
}

// Sink 的两个实现分别走 Kafka 和进程内 goroutine，调用方无需区分。

// KafkaSink 把任务投递到 Kafka，由后台消费者处理。
type KafkaSink struct {
	fallback *DirectSink
}

// NewKafkaSink 创建 Kafka 投递器。投递失败时退回进程内处理。
func NewKafkaSink(fallback *DirectSink) *KafkaSink {
	return &KafkaSink{fallback: fallback}
}

// Enqueue 投递任务到 Kafka，失败时降级为进程内处理。
func (s *KafkaSink) Enqueue(task tasks.MemoryTask) {
	if err := kafka.ProduceMemoryTask(task); err != nil {
		log.Warnf("[KafkaSink] 投递记忆任务失败，降级本地处理, chatId: %s, err: %v", task.ChatID, err)
		if s.fallback != nil {
			s.fallback.Enqueue(task)
		}
	}
}

// DirectSink 在 Kafka 未配置时直接在本进程异步处理任务。
type DirectSink struct {
	processor *Processor
}

// NewDirectSink 创建进程内的任务投递器。
func NewDirectSink(processor *Processor) *DirectSink {
	return &DirectSink{processor: processor}
}

// Enqueue 异步处理任务，失败只记录日志。
func (s *DirectSink) Enqueue(task tasks.MemoryTask) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := s.processor.Process(ctx, task); err != nil {
			log.Warnf("[DirectSink] 记忆任务处理失败, chatId: %s, err: %v", task.ChatID, err)
		}
	}()
}
