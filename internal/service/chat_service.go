// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"memchat-go/internal/config"
	"memchat-go/internal/model"
	"memchat-go/internal/repository"
	"memchat-go/pkg/llm"
	"memchat-go/pkg/log"
	"memchat-go/pkg/objectid"
	"memchat-go/pkg/tasks"
)

var (
	// ErrEmptyMessage 表示消息内容为空且没有附件。
	ErrEmptyMessage = errors.New("message content is empty")
	// ErrChatNotFound 表示目标会话不存在或不属于当前用户。
	ErrChatNotFound = repository.ErrChatNotFound
	// ErrInvalidMessageIndex 表示编辑目标下标越界。
	ErrInvalidMessageIndex = errors.New("message index out of range")
	// ErrNotUserMessage 表示编辑目标不是用户消息。
	ErrNotUserMessage = errors.New("only user messages can be edited")
)

// summaryMaxLen 是写入记忆任务的回答摘要长度上限。
const summaryMaxLen = 300

// SendRequest 携带一次发送消息请求的全部输入。
// IsEdit 表示这是编辑后的重新生成，用户消息已在库中，不再追加也不写记忆。
type SendRequest struct {
	UserID  string
	ChatID  string
	Content string
	Files   []model.UploadedFile
	IsEdit  bool
}

// EditRequest 携带一次编辑消息请求的全部输入。
type EditRequest struct {
	UserID       string
	ChatID       string
	MessageIndex int
	NewContent   string
}

// TaskSink 接收流式回答完成后产生的记忆任务，投递是 fire-and-forget 的。
type TaskSink interface {
	Enqueue(task tasks.MemoryTask)
}

// ChatService 定义会话相关的业务操作。
type ChatService interface {
	// Send 处理一条新消息：持久化用户消息，流式生成并持久化助手回答。
	// 流式输出写入 writer，返回本次使用的会话 id。
	Send(ctx context.Context, req SendRequest, writer llm.ChunkWriter) (string, error)
	// Edit 覆盖指定的用户消息，丢弃其后的所有消息并重新生成回答。
	Edit(ctx context.Context, req EditRequest, writer llm.ChunkWriter) error
	// List 返回当前用户的全部会话。
	List(ctx context.Context, userID string) ([]model.ChatRecord, error)
	// Get 返回单个会话。
	Get(ctx context.Context, id, userID string) (*model.ChatRecord, error)
	// Delete 删除会话并尽力清理其关联的记忆。
	Delete(ctx context.Context, id, userID string) error
}

type chatService struct {
	repo    repository.ChatRepository
	builder *ContextBuilder
	llm     llm.Client
	memory  MemoryService
	sink    TaskSink
	cfg     config.LLMConfig
}

// NewChatService 创建会话服务。sink 为 nil 时跳过记忆写入。
func NewChatService(repo repository.ChatRepository, builder *ContextBuilder, llmClient llm.Client, memory MemoryService, sink TaskSink, cfg config.LLMConfig) ChatService {
	return &chatService{
		repo:    repo,
		builder: builder,
		llm:     llmClient,
		memory:  memory,
		sink:    sink,
		cfg:     cfg,
	}
}

func (s *chatService) Send(ctx context.Context, req SendRequest, writer llm.ChunkWriter) (string, error) {
	if strings.TrimSpace(req.Content) == "" && len(req.Files) == 0 {
		return "", ErrEmptyMessage
	}

	var chat *model.ChatRecord
	var err error
	userMsg := buildUserMessage(req)
	if req.IsEdit {
		// 编辑重发：历史已经截断落库，只重新生成回答
		if !objectid.IsValid(req.ChatID) {
			return "", ErrChatNotFound
		}
		chat, err = s.repo.Find(ctx, req.ChatID, req.UserID)
		if err != nil {
			return "", err
		}
	} else {
		chat, err = s.resolveChat(ctx, req.UserID, req.ChatID)
		if err != nil {
			return "", err
		}
		chat.AppendMessage(userMsg)
		if err := s.repo.Save(ctx, chat); err != nil {
			return "", fmt.Errorf("保存用户消息失败: %w", err)
		}
	}

	contextMessages := s.builder.BuildContext(ctx, req.Content, chat.Messages, req.UserID, s.cfg.Model)

	modelName := s.cfg.Model
	hasImages := hasImageFiles(req.Files)
	if hasImages {
		modelName = s.cfg.VisionModel
		// 最后一条是刚追加的用户消息，替换为带 image_url 分片的多模态形式
		vm := visionMessage(userMsg, req.Files)
		if last := len(contextMessages) - 1; last >= 0 && contextMessages[last].Role == llm.RoleUser {
			contextMessages[last] = vm
		} else {
			contextMessages = append(contextMessages, vm)
		}
		log.Infof("[ChatService] 检测到图片附件，切换视觉模型: %s", modelName)
	}

	answer, err := s.streamAnswer(ctx, modelName, contextMessages, writer)
	if err != nil {
		return chat.ID, err
	}

	if err := s.appendAssistant(chat.ID, req.UserID, answer); err != nil {
		return chat.ID, err
	}

	if !req.IsEdit {
		s.enqueueMemoryTask(req, chat.ID, answer)
	}
	return chat.ID, nil
}

func (s *chatService) Edit(ctx context.Context, req EditRequest, writer llm.ChunkWriter) error {
	if !objectid.IsValid(req.ChatID) {
		return ErrChatNotFound
	}
	chat, err := s.repo.Find(ctx, req.ChatID, req.UserID)
	if err != nil {
		return err
	}
	if req.MessageIndex < 0 || req.MessageIndex >= len(chat.Messages) {
		return ErrInvalidMessageIndex
	}
	if chat.Messages[req.MessageIndex].Role != model.RoleUser {
		return ErrNotUserMessage
	}

	chat.Messages[req.MessageIndex].Content = req.NewContent
	chat.Messages[req.MessageIndex].UpdatedAt = time.Now()
	chat.TruncateAfter(req.MessageIndex)
	if err := s.repo.Save(ctx, chat); err != nil {
		return fmt.Errorf("保存编辑后的会话失败: %w", err)
	}

	// 编辑路径不做记忆注入，直接用截断后的历史重建上下文
	contextMessages := []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
	}
	for _, m := range chat.Messages {
		contextMessages = append(contextMessages, historyMessage(m))
	}

	answer, err := s.streamAnswer(ctx, s.cfg.Model, contextMessages, writer)
	if err != nil {
		return err
	}
	return s.appendAssistant(chat.ID, req.UserID, answer)
}

func (s *chatService) List(ctx context.Context, userID string) ([]model.ChatRecord, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *chatService) Get(ctx context.Context, id, userID string) (*model.ChatRecord, error) {
	// 格式非法的 id 不可能存在于库中，直接按未找到处理
	if !objectid.IsValid(id) {
		return nil, ErrChatNotFound
	}
	return s.repo.Find(ctx, id, userID)
}

func (s *chatService) Delete(ctx context.Context, id, userID string) error {
	if !objectid.IsValid(id) {
		return ErrChatNotFound
	}
	rows, err := s.repo.Delete(ctx, id, userID)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrChatNotFound
	}
	if s.memory != nil {
		// 记忆清理是尽力而为的，失败不影响删除结果
		go func() {
			cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := s.memory.DeleteForChat(cleanupCtx, userID, id); err != nil {
				log.Warnf("[ChatService] 清理会话记忆失败, chatId: %s, err: %v", id, err)
			}
		}()
	}
	return nil
}

// resolveChat 按客户端提供的 id 查找会话，不存在或未提供时新建。
// 新建撞上重复主键时换 id 重试一次。
func (s *chatService) resolveChat(ctx context.Context, userID, chatID string) (*model.ChatRecord, error) {
	if chatID != "" && objectid.IsValid(chatID) {
		chat, err := s.repo.Find(ctx, chatID, userID)
		if err == nil {
			return chat, nil
		}
		if !errors.Is(err, repository.ErrChatNotFound) {
			return nil, err
		}
		// 客户端预生成的 id，首条消息时落库
		chat = &model.ChatRecord{ID: chatID, UserID: userID, Title: model.DefaultChatTitle}
		err = s.repo.Create(ctx, chat)
		if err == nil {
			return chat, nil
		}
		if !errors.Is(err, repository.ErrDuplicateChatID) {
			return nil, err
		}
	}

	chat := &model.ChatRecord{ID: objectid.New(), UserID: userID, Title: model.DefaultChatTitle}
	err := s.repo.Create(ctx, chat)
	if errors.Is(err, repository.ErrDuplicateChatID) {
		chat.ID = objectid.New()
		err = s.repo.Create(ctx, chat)
	}
	if err != nil {
		return nil, err
	}
	log.Infof("[ChatService] 创建新会话, chatId: %s, userId: %s", chat.ID, userID)
	return chat, nil
}

// streamAnswer 通过拦截器同时把分片写给客户端并累积完整回答。
func (s *chatService) streamAnswer(ctx context.Context, modelName string, messages []llm.Message, writer llm.ChunkWriter) (string, error) {
	capture := &capturingWriter{next: writer}
	gen := &llm.GenerationParams{}
	if s.cfg.Temperature > 0 {
		t := s.cfg.Temperature
		gen.Temperature = &t
	}
	if err := s.llm.StreamChat(ctx, modelName, messages, gen, capture); err != nil {
		return "", fmt.Errorf("模型流式调用失败: %w", err)
	}
	return capture.buf.String(), nil
}

// appendAssistant 重新加载会话后追加助手消息。
// 使用独立的后台 context 持久化，客户端断开不影响已生成回答的落库。
func (s *chatService) appendAssistant(chatID, userID, answer string) error {
	saveCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	chat, err := s.repo.Find(saveCtx, chatID, userID)
	if err != nil {
		return fmt.Errorf("流式结束后重载会话失败: %w", err)
	}
	chat.AppendMessage(model.Message{Role: model.RoleAssistant, Content: answer})
	if err := s.repo.Save(saveCtx, chat); err != nil {
		return fmt.Errorf("保存助手消息失败: %w", err)
	}
	return nil
}

func (s *chatService) enqueueMemoryTask(req SendRequest, chatID, answer string) {
	if s.sink == nil {
		return
	}
	s.sink.Enqueue(tasks.MemoryTask{
		UserID:         req.UserID,
		ChatID:         chatID,
		Query:          req.Content,
		Summary:        truncateRunes(answer, summaryMaxLen),
		ResponseLength: len(answer),
		HasFiles:       len(req.Files) > 0,
		HasImages:      hasImageFiles(req.Files),
	})
}

type capturingWriter struct {
	next llm.ChunkWriter
	buf  strings.Builder
}

func (w *capturingWriter) WriteChunk(data []byte) error {
	w.buf.Write(data)
	return w.next.WriteChunk(data)
}

// buildUserMessage 组装待持久化的用户消息。
// 文档附件的抽取文本并入消息内容，图片只记录 URL。
func buildUserMessage(req SendRequest) model.Message {
	content := req.Content
	urls := make([]string, 0, len(req.Files))
	for _, f := range req.Files {
		urls = append(urls, f.URL)
		if !f.IsImage() && f.ExtractedContent != "" {
			content += fmt.Sprintf("\n\nContent of uploaded file \"%s\":\n%s", f.FileName, f.ExtractedContent)
		}
	}
	return model.Message{Role: model.RoleUser, Content: content, Files: urls}
}

// visionMessage 把用户消息改写为文本加 image_url 分片的多模态形式。
func visionMessage(msg model.Message, files []model.UploadedFile) llm.Message {
	parts := []llm.Part{llm.TextPart(msg.Content)}
	for _, f := range files {
		if f.IsImage() {
			parts = append(parts, llm.ImagePart(f.URL))
		}
	}
	return llm.Message{Role: llm.RoleUser, Parts: parts}
}

func hasImageFiles(files []model.UploadedFile) bool {
	for _, f := range files {
		if f.IsImage() {
			return true
		}
	}
	return false
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
