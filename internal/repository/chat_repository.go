// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"memchat-go/internal/model"
	"memchat-go/pkg/database"
	"memchat-go/pkg/log"
)

// ErrChatNotFound 表示聊天不存在或不归属于请求方。
// 两种情况对外不可区分，避免泄露他人聊天的存在性。
var ErrChatNotFound = errors.New("chat not found")

// ErrDuplicateChatID 表示创建时标识符与既有记录冲突。
// 调用方应重新生成标识符并重试一次。
var ErrDuplicateChatID = errors.New("duplicate chat id")

// chatListCacheTTL 是每用户聊天列表缓存的有效期。
const chatListCacheTTL = time.Minute

// ChatRepository 定义了聊天记录的持久化操作接口。
// 除 Create 外所有操作都以 (id, userID) 为作用域。
type ChatRepository interface {
	Create(ctx context.Context, chat *model.ChatRecord) error
	Find(ctx context.Context, id, userID string) (*model.ChatRecord, error)
	Save(ctx context.Context, chat *model.ChatRecord) error
	Delete(ctx context.Context, id, userID string) (int64, error)
	ListByUser(ctx context.Context, userID string) ([]model.ChatRecord, error)
}

type gormChatRepository struct {
	store       *database.Store
	redisClient *redis.Client
	migrateOnce sync.Once
}

// NewChatRepository 创建一个新的 ChatRepository 实例。
// redisClient 可以为 nil，此时聊天列表缓存退化为直查数据库。
func NewChatRepository(store *database.Store, redisClient *redis.Client) ChatRepository {
	return &gormChatRepository{store: store, redisClient: redisClient}
}

// conn 获取数据库连接并保证建表只执行一次。
func (r *gormChatRepository) conn(ctx context.Context) (*gorm.DB, error) {
	db, err := r.store.Conn(ctx)
	if err != nil {
		return nil, err
	}
	r.migrateOnce.Do(func() {
		if err := db.AutoMigrate(&model.ChatRecord{}); err != nil {
			log.Error("chats 表迁移失败", err)
		}
	})
	return db.WithContext(ctx), nil
}

// Create 插入一条新聊天；标识符冲突时返回 ErrDuplicateChatID。
func (r *gormChatRepository) Create(ctx context.Context, chat *model.ChatRecord) error {
	db, err := r.conn(ctx)
	if err != nil {
		return err
	}
	if chat.Title == "" {
		chat.Title = model.DefaultChatTitle
	}
	if err := db.Create(chat).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateChatID
		}
		return fmt.Errorf("failed to create chat: %w", err)
	}
	r.invalidateListCache(ctx, chat.UserID)
	return nil
}

// Find 按 (id, userID) 查询单条聊天。
func (r *gormChatRepository) Find(ctx context.Context, id, userID string) (*model.ChatRecord, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	var chat model.ChatRecord
	err = db.Where("id = ? AND user_id = ?", id, userID).First(&chat).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("failed to find chat: %w", err)
	}
	return &chat, nil
}

// Save 整行写回聊天记录（last-write-wins）并刷新 updated_at。
func (r *gormChatRepository) Save(ctx context.Context, chat *model.ChatRecord) error {
	db, err := r.conn(ctx)
	if err != nil {
		return err
	}
	chat.UpdatedAt = time.Now()
	if err := db.Save(chat).Error; err != nil {
		return fmt.Errorf("failed to save chat: %w", err)
	}
	r.invalidateListCache(ctx, chat.UserID)
	return nil
}

// Delete 按 (id, userID) 删除聊天，返回删除的行数。
func (r *gormChatRepository) Delete(ctx context.Context, id, userID string) (int64, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return 0, err
	}
	res := db.Where("id = ? AND user_id = ?", id, userID).Delete(&model.ChatRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete chat: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		r.invalidateListCache(ctx, userID)
	}
	return res.RowsAffected, nil
}

// ListByUser 返回用户的全部聊天，按 updated_at 降序。
// 结果缓存在 Redis 中一分钟，所有写操作都会使缓存失效。
func (r *gormChatRepository) ListByUser(ctx context.Context, userID string) ([]model.ChatRecord, error) {
	if cached, ok := r.listFromCache(ctx, userID); ok {
		return cached, nil
	}

	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	var chats []model.ChatRecord
	if err := db.Where("user_id = ?", userID).Order("updated_at DESC").Find(&chats).Error; err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}

	r.storeListCache(ctx, userID, chats)
	return chats, nil
}

func listCacheKey(userID string) string {
	return fmt.Sprintf("user:%s:chats", userID)
}

func (r *gormChatRepository) listFromCache(ctx context.Context, userID string) ([]model.ChatRecord, bool) {
	if r.redisClient == nil {
		return nil, false
	}
	data, err := r.redisClient.Get(ctx, listCacheKey(userID)).Result()
	if err != nil {
		if err != redis.Nil {
			log.Warnf("读取聊天列表缓存失败: %v", err)
		}
		return nil, false
	}
	var chats []model.ChatRecord
	if err := json.Unmarshal([]byte(data), &chats); err != nil {
		return nil, false
	}
	return chats, true
}

func (r *gormChatRepository) storeListCache(ctx context.Context, userID string, chats []model.ChatRecord) {
	if r.redisClient == nil {
		return
	}
	data, err := json.Marshal(chats)
	if err != nil {
		return
	}
	if err := r.redisClient.Set(ctx, listCacheKey(userID), data, chatListCacheTTL).Err(); err != nil {
		log.Warnf("写入聊天列表缓存失败: %v", err)
	}
}

func (r *gormChatRepository) invalidateListCache(ctx context.Context, userID string) {
	if r.redisClient == nil {
		return
	}
	if err := r.redisClient.Del(ctx, listCacheKey(userID)).Err(); err != nil {
		log.Warnf("清除聊天列表缓存失败: %v", err)
	}
}
