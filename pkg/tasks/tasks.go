// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// MemoryTask 描述一次已完成的问答交互，等待被提炼为长期记忆。
// 助手回合结束后由聊天服务投递，消费端完成向量化与索引。
type MemoryTask struct {
	UserID         string `json:"user_id"`
	ChatID         string `json:"chat_id"`
	Query          string `json:"query"`
	Summary        string `json:"summary"`
	ResponseLength int    `json:"response_length"`
	HasFiles       bool   `json:"has_files"`
	HasImages      bool   `json:"has_images"`
}
