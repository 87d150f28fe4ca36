// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"fmt"
	"time"

	"memchat-go/internal/config"
	"memchat-go/internal/model"
	"memchat-go/pkg/embedding"
	"memchat-go/pkg/log"
	"memchat-go/pkg/objectid"
)

// MemoryAddOptions 是写入一条记忆时的作用域与元数据。
type MemoryAddOptions struct {
	UserID   string
	ChatID   string
	Metadata map[string]interface{}
}

// MemorySearchOptions 控制相似度检索的范围与过滤条件。
// Limit 或 ScoreThreshold 为零值时采用配置默认。
type MemorySearchOptions struct {
	UserID         string
	Limit          int
	ScoreThreshold float64
}

// MemoryService 定义了长期记忆层的操作接口。
// 未配置后端时的实现契约完全一致：写入为空操作，读取返回空列表。
// 所有方法都返回 error，由调用方按策略记录后丢弃——记忆层的故障
// 永远不能破坏主聊天链路。
type MemoryService interface {
	Add(ctx context.Context, text string, opts MemoryAddOptions) error
	Search(ctx context.Context, query string, opts MemorySearchOptions) ([]model.MemoryFact, error)
	ListAll(ctx context.Context, userID string) ([]model.MemoryFact, error)
	DeleteForChat(ctx context.Context, userID, chatID string) error
}

// FactIndex 是记忆文档的向量索引后端（由 pkg/es 实现）。
type FactIndex interface {
	Index(ctx context.Context, doc model.MemoryDocument) error
	SearchByVector(ctx context.Context, userID string, vector []float32, k int) ([]model.MemoryFact, error)
	ListByUser(ctx context.Context, userID string) ([]model.MemoryFact, error)
	Delete(ctx context.Context, memoryID string) error
}

type memoryService struct {
	embedder embedding.Client
	index    FactIndex
	cfg      config.MemoryConfig
	enabled  bool
}

// NewMemoryService 创建一个新的 MemoryService 实例。
// embedder 或 index 为 nil 表示记忆后端未配置，服务以降级模式运行。
func NewMemoryService(embedder embedding.Client, index FactIndex, cfg config.MemoryConfig) MemoryService {
	return &memoryService{
		embedder: embedder,
		index:    index,
		cfg:      cfg,
		enabled:  embedder != nil && index != nil,
	}
}

// Add 将一段自然语言摘要写入记忆索引。
func (s *memoryService) Add(ctx context.Context, text string, opts MemoryAddOptions) error {
	if !s.enabled {
		return nil
	}
	if text == "" || opts.UserID == "" {
		return nil
	}

	vector, err := s.embedder.CreateEmbedding(ctx, text)
	if err != nil {
		return fmt.Errorf("failed to embed memory text: %w", err)
	}

	metadata := make(map[string]interface{}, len(opts.Metadata)+2)
	for k, v := range opts.Metadata {
		metadata[k] = v
	}
	if opts.ChatID != "" {
		metadata["chat_id"] = opts.ChatID
	}
	metadata["timestamp"] = time.Now().Format(time.RFC3339)

	doc := model.MemoryDocument{
		MemoryID:  objectid.New(),
		UserID:    opts.UserID,
		Memory:    text,
		Vector:    vector,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	}
	if err := s.index.Index(ctx, doc); err != nil {
		return fmt.Errorf("failed to index memory: %w", err)
	}

	log.Infof("[MemoryService] 记忆写入成功, user: %s, chat: %s, 长度: %d", opts.UserID, opts.ChatID, len(text))
	return nil
}

// Search 执行相似度检索：信任后端的降序排序，在客户端做阈值过滤、
// 按标识符去重，并截断到 limit 条。
func (s *memoryService) Search(ctx context.Context, query string, opts MemorySearchOptions) ([]model.MemoryFact, error) {
	if !s.enabled {
		return []model.MemoryFact{}, nil
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = s.cfg.SearchLimit
	}
	threshold := opts.ScoreThreshold
	if threshold == 0 {
		threshold = s.cfg.ScoreThreshold
	}

	vector, err := s.embedder.CreateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed search query: %w", err)
	}

	hits, err := s.index.SearchByVector(ctx, opts.UserID, vector, limit)
	if err != nil {
		return nil, fmt.Errorf("memory search failed: %w", err)
	}

	seen := make(map[string]struct{}, len(hits))
	results := make([]model.MemoryFact, 0, len(hits))
	for _, fact := range hits {
		if fact.Score < threshold {
			continue
		}
		if _, dup := seen[fact.ID]; dup {
			continue
		}
		seen[fact.ID] = struct{}{}
		results = append(results, fact)
		if len(results) >= limit {
			break
		}
	}

	log.Infof("[MemoryService] 相似度检索完成, user: %s, 命中: %d, 过滤后: %d", opts.UserID, len(hits), len(results))
	return results, nil
}

// ListAll 返回指定用户的全部记忆。
func (s *memoryService) ListAll(ctx context.Context, userID string) ([]model.MemoryFact, error) {
	if !s.enabled {
		return []model.MemoryFact{}, nil
	}
	return s.index.ListByUser(ctx, userID)
}

// DeleteForChat 删除某个聊天产生的全部记忆。
// 逐条删除，部分失败只记录日志，不重试也不向上传播。
func (s *memoryService) DeleteForChat(ctx context.Context, userID, chatID string) error {
	if !s.enabled {
		return nil
	}

	facts, err := s.index.ListByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to list memories for cleanup: %w", err)
	}

	deleted := 0
	for _, fact := range facts {
		if fact.Metadata == nil {
			continue
		}
		if cid, ok := fact.Metadata["chat_id"].(string); !ok || cid != chatID {
			continue
		}
		if err := s.index.Delete(ctx, fact.ID); err != nil {
			log.Warnf("[MemoryService] 删除记忆失败, id: %s, error: %v", fact.ID, err)
			continue
		}
		deleted++
	}

	log.Infof("[MemoryService] 已删除聊天 %s 的 %d 条记忆", chatID, deleted)
	return nil
}
