// Package model 包含了应用的数据模型定义。
package model

import "time"

// 消息角色。system 角色只出现在发送给模型的临时请求中，正常聊天流程不落库。
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// DefaultChatTitle 是新建聊天的默认标题。
const DefaultChatTitle = "New Chat"

// titleMaxLen 是从首条用户消息截取标题时的最大字符数。
const titleMaxLen = 50

// Message 代表聊天记录中的单条消息。
// 多模态内容在持久化层保持扁平文本加文件引用列表，
// 只有在模型调用边界才展开为分段形式。
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Files     []string  `json:"files,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ChatRecord 代表一次归属于单个用户的持久化对话。
// 消息列表以 JSON 文档形式整体存储，整行写入为 last-write-wins。
type ChatRecord struct {
	ID        string    `gorm:"type:char(24);primaryKey" json:"id"`
	UserID    string    `gorm:"type:varchar(64);index:idx_chats_user;not null" json:"userId"`
	Title     string    `gorm:"type:varchar(255);not null" json:"title"`
	Messages  []Message `gorm:"type:json;serializer:json" json:"messages"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (ChatRecord) TableName() string {
	return "chats"
}

// AppendMessage 将一条消息追加到对话末尾并设置时间戳。
// 当标题仍为默认值时，用首条用户消息的前 50 个字符覆盖标题（截断时追加省略号）。
func (c *ChatRecord) AppendMessage(msg Message) {
	now := time.Now()
	msg.CreatedAt = now
	msg.UpdatedAt = now
	c.Messages = append(c.Messages, msg)

	if msg.Role == RoleUser && (c.Title == "" || c.Title == DefaultChatTitle) {
		c.Title = deriveTitle(msg.Content)
	}
}

// TruncateAfter 保留下标 [0..index] 的消息，丢弃其后的全部消息。
// 这是一个破坏性操作，被丢弃的内容不可恢复。
func (c *ChatRecord) TruncateAfter(index int) {
	if index < 0 || index >= len(c.Messages) {
		return
	}
	c.Messages = c.Messages[:index+1]
}

func deriveTitle(content string) string {
	if content == "" {
		return DefaultChatTitle
	}
	runes := []rune(content)
	if len(runes) <= titleMaxLen {
		return content
	}
	return string(runes[:titleMaxLen]) + "..."
}
