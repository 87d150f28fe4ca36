// Package embedding 提供了文本向量化客户端，供记忆检索使用。
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"memchat-go/internal/config"
	"memchat-go/pkg/log"
)

// requestTimeout 限制单次向量化调用的总耗时，记忆检索不应拖慢聊天主链路。
const requestTimeout = 30 * time.Second

// ErrEmptyInput 表示待向量化的文本为空。
var ErrEmptyInput = errors.New("embedding input is empty")

// Client 定义文本向量化客户端的接口。
type Client interface {
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// restClient 调用 OpenAI 兼容的 /embeddings 接口。
type restClient struct {
	cfg  config.EmbeddingConfig
	http *http.Client
}

// NewClient 创建向量化客户端，模型与维度从配置读取。
func NewClient(cfg config.EmbeddingConfig) Client {
	return &restClient{
		cfg:  cfg,
		http: &http.Client{Timeout: requestTimeout},
	}
}

type embedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (c *restClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	payload, err := json.Marshal(embedRequest{
		Model:      c.cfg.Model,
		Input:      []string{text},
		Dimensions: c.cfg.Dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("序列化向量化请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("构造向量化请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		log.Errorf("[EmbeddingClient] 调用 Embedding API 失败: %v", err)
		return nil, fmt.Errorf("调用 embedding api 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Errorf("[EmbeddingClient] Embedding API 返回非 200 状态码: %s, body: %s", resp.Status, body)
		return nil, fmt.Errorf("embedding api 返回状态 %s", resp.Status)
	}

	var decoded embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("解析向量化响应失败: %w", err)
	}
	if len(decoded.Data) == 0 || len(decoded.Data[0].Embedding) == 0 {
		return nil, errors.New("embedding api 返回了空向量")
	}

	vector := decoded.Data[0].Embedding
	// 维度必须与 ES 索引映射一致，否则写入会失败
	if c.cfg.Dimensions > 0 && len(vector) != c.cfg.Dimensions {
		return nil, fmt.Errorf("向量维度不匹配: 期望 %d, 实际 %d", c.cfg.Dimensions, len(vector))
	}
	return vector, nil
}
