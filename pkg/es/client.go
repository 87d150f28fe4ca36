// Package es 提供了长期记忆索引的 Elasticsearch 客户端功能。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"memchat-go/internal/config"
	"memchat-go/internal/model"
	"memchat-go/pkg/log"
)

// maxFactsPerUser 是单个用户全量拉取记忆的返回上限。
// 列表接口和按会话清理都以它为界，超出部分需要分页支持。
const maxFactsPerUser = 1000

// FactStore 基于 Elasticsearch 提供记忆事实的索引与相似度检索。
type FactStore struct {
	client *elasticsearch.Client
	index  string
}

// NewFactStore 初始化 Elasticsearch 客户端并确保记忆索引存在。
// dims 是向量维度，与 Embedding 模型配置保持一致。
func NewFactStore(esCfg config.ElasticsearchConfig, dims int) (*FactStore, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{esCfg.Addresses},
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, err
	}

	s := &FactStore{client: client, index: esCfg.IndexName}
	if err := s.createIndexIfNotExists(dims); err != nil {
		return nil, err
	}
	return s, nil
}

// createIndexIfNotExists 检查记忆索引是否存在，不存在则按映射创建。
func (s *FactStore) createIndexIfNotExists(dims int) error {
	res, err := s.client.Indices.Exists([]string{s.index})
	if err != nil {
		return err
	}
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", s.index)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	if dims <= 0 {
		dims = 1536
	}
	mapping := fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"memory_id": { "type": "keyword" },
				"user_id": { "type": "keyword" },
				"memory": { "type": "text" },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				},
				"metadata": { "type": "object", "enabled": true },
				"created_at": { "type": "date" }
			}
		}
	}`, dims)

	res, err = s.client.Indices.Create(
		s.index,
		s.client.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		return err
	}
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", s.index, res.String())
		return errors.New("创建记忆索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", s.index)
	return nil
}

// Index 将单条记忆文档写入索引。
func (s *FactStore) Index(ctx context.Context, doc model.MemoryDocument) error {
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      s.index,
		DocumentID: doc.MemoryID,
		Body:       bytes.NewReader(docBytes),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("索引记忆文档到 Elasticsearch 出错: %s", res.String())
		return errors.New("failed to index memory document")
	}
	return nil
}

// SearchByVector 以向量相似度检索指定用户的记忆，按得分降序返回至多 k 条。
// 得分顺序由 Elasticsearch 给出并原样保留。
func (s *FactStore) SearchByVector(ctx context.Context, userID string, vector []float32, k int) ([]model.MemoryFact, error) {
	var buf bytes.Buffer
	esQuery := map[string]interface{}{
		"knn": map[string]interface{}{
			"field":          "vector",
			"query_vector":   vector,
			"k":              k,
			"num_candidates": k * 10,
			"filter": map[string]interface{}{
				"term": map[string]interface{}{"user_id": userID},
			},
		},
		"size": k,
	}
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.index),
		s.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch returned an error: %s", res.String())
	}

	return decodeHits(res)
}

// ListByUser 返回指定用户的全部记忆，按创建时间降序。
func (s *FactStore) ListByUser(ctx context.Context, userID string) ([]model.MemoryFact, error) {
	var buf bytes.Buffer
	esQuery := map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{"user_id": userID},
		},
		"sort": []map[string]interface{}{
			{"created_at": map[string]interface{}{"order": "desc"}},
		},
		"size": maxFactsPerUser,
	}
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.index),
		s.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch returned an error: %s", res.String())
	}

	facts, err := decodeHits(res)
	if err != nil {
		return nil, err
	}
	// 列表场景不存在相似度得分
	for i := range facts {
		facts[i].Score = 1.0
	}
	return facts, nil
}

// Delete 按标识符删除单条记忆。
func (s *FactStore) Delete(ctx context.Context, memoryID string) error {
	req := esapi.DeleteRequest{
		Index:      s.index,
		DocumentID: memoryID,
		Refresh:    "true",
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("failed to delete memory document: %s", res.String())
	}
	return nil
}

func decodeHits(res *esapi.Response) ([]model.MemoryFact, error) {
	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source model.MemoryDocument `json:"_source"`
				Score  float64              `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}

	facts := make([]model.MemoryFact, 0, len(esResponse.Hits.Hits))
	for _, hit := range esResponse.Hits.Hits {
		facts = append(facts, hit.Source.Fact(hit.Score))
	}
	return facts, nil
}
