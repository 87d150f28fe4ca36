package model

import "time"

// MemoryFact 是一条长期记忆，按相似度检索时携带得分。
// Score 只在相似度搜索结果中有意义，不是存储属性。
type MemoryFact struct {
	ID       string                 `json:"id"`
	Memory   string                 `json:"memory"`
	Score    float64                `json:"score"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// MemoryDocument 定义了存储在 Elasticsearch 记忆索引中的文档结构。
// Metadata 在创建时一次性写入，之后不再更新。
type MemoryDocument struct {
	MemoryID  string                 `json:"memory_id"`
	UserID    string                 `json:"user_id"`
	Memory    string                 `json:"memory"`
	Vector    []float32              `json:"vector"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// Fact 将索引文档转换为对外的记忆条目。
func (d MemoryDocument) Fact(score float64) MemoryFact {
	return MemoryFact{
		ID:       d.MemoryID,
		Memory:   d.Memory,
		Score:    score,
		Metadata: d.Metadata,
	}
}
