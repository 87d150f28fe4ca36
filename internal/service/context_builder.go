package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"memchat-go/internal/model"
	"memchat-go/pkg/llm"
	"memchat-go/pkg/log"
)

// systemPrompt 是每次模型调用的固定首条 system 消息。
const systemPrompt = "You are ChatGPT, a large language model trained by OpenAI. " +
	"Follow the user's instructions carefully. Respond using Markdown. " +
	"When analyzing images, provide detailed and helpful descriptions and answers."

const (
	// reservedResponseTokens 为模型自身的回复预留的 token 额度。
	reservedResponseTokens = 4000
	// defaultTokenLimit 是未知模型的保守上下文窗口。
	defaultTokenLimit = 8192
	// maxMemoryContexts 是注入提示词的记忆条数上限。
	maxMemoryContexts = 5
	// fallbackHistorySize 是降级路径保留的原始历史消息条数。
	fallbackHistorySize = 10
	// budgetCeiling 是可用额度的软上限比例，最后一条被接纳的消息可能略微越界。
	budgetCeiling = 0.8
)

// modelTokenLimits 是静态的模型到上下文窗口的映射。
var modelTokenLimits = map[string]int{
	"gpt-4o":        128000,
	"gpt-4-turbo":   128000,
	"gpt-4":         8192,
	"gpt-3.5-turbo": 16385,
	"gpt-4o-mini":   128000,
}

// ModelTokenLimit 返回模型的上下文窗口大小，未知模型取保守默认值。
func ModelTokenLimit(modelName string) int {
	if limit, ok := modelTokenLimits[modelName]; ok {
		return limit
	}
	return defaultTokenLimit
}

// TokenEstimator 估算一段文本的 token 开销。
// 默认实现是粗粒度的字符数启发式，可替换为真实分词器而不影响打包算法。
type TokenEstimator interface {
	EstimateTokens(text string) int
}

type charEstimator struct{}

// EstimateTokens 以每 4 个字符约 1 token 的粗糙启发式估算，向上取整。
// 刻意高估以保持保守，不依赖真实分词器。
func (charEstimator) EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// NewCharEstimator 返回默认的字符数估算器。
func NewCharEstimator() TokenEstimator {
	return charEstimator{}
}

// ContextBuilder 负责把系统指令、相关记忆和近期历史
// 组装为一次模型调用的有序消息列表，并遵守 token 预算。
type ContextBuilder struct {
	memory    MemoryService
	estimator TokenEstimator
}

// NewContextBuilder 创建一个新的 ContextBuilder。
func NewContextBuilder(memory MemoryService, estimator TokenEstimator) *ContextBuilder {
	if estimator == nil {
		estimator = NewCharEstimator()
	}
	return &ContextBuilder{memory: memory, estimator: estimator}
}

// BuildContext 构建带记忆增强的上下文。
// 任一步骤失败时退回到固定 system 指令加最近 10 条原始历史的安全路径。
func (b *ContextBuilder) BuildContext(ctx context.Context, query string, recent []model.Message, userID, modelName string) []llm.Message {
	msgs, err := b.buildWithMemory(ctx, query, recent, userID, modelName)
	if err != nil {
		log.Warnf("[ContextBuilder] 记忆增强上下文构建失败，使用降级路径: %v", err)
		return b.fallbackContext(recent)
	}
	return msgs
}

func (b *ContextBuilder) buildWithMemory(ctx context.Context, query string, recent []model.Message, userID, modelName string) ([]llm.Message, error) {
	maxTokens := ModelTokenLimit(modelName)
	availableTokens := maxTokens - reservedResponseTokens

	contextMessages := []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
	}

	relevant, err := b.memory.Search(ctx, query, MemorySearchOptions{UserID: userID})
	if err != nil {
		return nil, err
	}
	if len(relevant) > 0 {
		top := relevant
		if len(top) > maxMemoryContexts {
			top = top[:maxMemoryContexts]
		}
		lines := make([]string, 0, len(top))
		for _, fact := range top {
			lines = append(lines, fmt.Sprintf("[score %.2f] %s", fact.Score, fact.Memory))
		}
		contextMessages = append(contextMessages, llm.Message{
			Role:    llm.RoleSystem,
			Content: "Previous conversation context:\n" + strings.Join(lines, "\n"),
		})
	}

	currentTokens := 0
	for _, m := range contextMessages {
		currentTokens += b.estimator.EstimateTokens(m.Content)
	}

	// 从最新消息向旧消息贪心打包，超过可用额度的 80% 即停止
	ceiling := int(float64(availableTokens) * budgetCeiling)
	var packed []llm.Message
	for i := len(recent) - 1; i >= 0; i-- {
		msg := recent[i]
		cost := b.estimator.EstimateTokens(serializeForEstimate(msg))
		if currentTokens+cost > ceiling {
			log.Infof("[ContextBuilder] 达到 token 预算上限，纳入 %d 条近期消息", len(packed))
			break
		}
		packed = append([]llm.Message{historyMessage(msg)}, packed...)
		currentTokens += cost
	}

	contextMessages = append(contextMessages, packed...)
	log.Infof("[ContextBuilder] 上下文构建完成, 记忆: %d, 历史: %d, 估算 tokens: %d",
		len(relevant), len(packed), currentTokens)
	return contextMessages, nil
}

// fallbackContext 是降级路径：固定 system 指令加最近的原始历史，不做预算过滤。
func (b *ContextBuilder) fallbackContext(recent []model.Message) []llm.Message {
	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
	}
	start := 0
	if len(recent) > fallbackHistorySize {
		start = len(recent) - fallbackHistorySize
	}
	for _, m := range recent[start:] {
		msgs = append(msgs, historyMessage(m))
	}
	return msgs
}

// historyMessage 将持久化消息转换为模型消息，保持扁平文本。
func historyMessage(m model.Message) llm.Message {
	return llm.Message{Role: m.Role, Content: m.Content}
}

// serializeForEstimate 以消息的 JSON 序列化长度作为估算输入。
func serializeForEstimate(m model.Message) string {
	data, err := json.Marshal(m)
	if err != nil {
		return m.Content
	}
	return string(data)
}
