package handler

import (
	"errors"
	"net/http"

	"memchat-go/internal/middleware"
	"memchat-go/internal/model"
	"memchat-go/internal/service"
	"memchat-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// ChatHandler 负责处理聊天消息的流式接口。
type ChatHandler struct {
	chatService service.ChatService
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// inboundMessage 是客户端消息历史中的一条。
type inboundMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// inboundFile 是客户端随消息附带的已上传文件描述。
type inboundFile struct {
	URL              string `json:"url"`
	FileName         string `json:"fileName"`
	FileType         string `json:"fileType"`
	ExtractedContent string `json:"extractedContent"`
}

// ChatRequest 定义了发送消息接口的请求体结构。
type ChatRequest struct {
	Messages []inboundMessage `json:"messages"`
	ChatID   string           `json:"chatId"`
	Files    []inboundFile    `json:"files"`
	IsEdit   bool             `json:"isEdit"`
}

// EditMessageRequest 定义了编辑消息接口的请求体结构。
type EditMessageRequest struct {
	ChatID       string `json:"chatId" binding:"required"`
	MessageIndex *int   `json:"messageIndex" binding:"required"`
	NewContent   string `json:"newContent"`
}

// streamWriter 把流式分片写入 HTTP 响应并立即刷出。
// 响应头在首个分片时才写出，流开始前的错误仍能返回 JSON 状态码。
type streamWriter struct {
	c *gin.Context
}

func (w streamWriter) WriteChunk(data []byte) error {
	if !w.c.Writer.Written() {
		w.c.Writer.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.c.Writer.Header().Set("Cache-Control", "no-cache")
	}
	if _, err := w.c.Writer.Write(data); err != nil {
		return err
	}
	w.c.Writer.Flush()
	return nil
}

// Chat 处理 POST /api/chat：追加用户消息并流式返回模型回答。
func (h *ChatHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Bad Request",
			"details": "invalid request body",
		})
		return
	}

	content := ""
	if len(req.Messages) > 0 {
		content = req.Messages[len(req.Messages)-1].Content
	}

	sendReq := service.SendRequest{
		UserID:  middleware.UserID(c),
		ChatID:  req.ChatID,
		Content: content,
		Files:   toUploadedFiles(req.Files),
		IsEdit:  req.IsEdit,
	}

	chatID, err := h.chatService.Send(c.Request.Context(), sendReq, streamWriter{c: c})
	if err != nil {
		h.streamError(c, err)
		return
	}
	log.Infof("[ChatHandler] 消息处理完成, chatId: %s", chatID)
}

// EditMessage 处理 POST /api/edit-message：覆盖用户消息并重新生成回答。
func (h *ChatHandler) EditMessage(c *gin.Context) {
	var req EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Bad Request",
			"details": "invalid request body",
		})
		return
	}

	editReq := service.EditRequest{
		UserID:       middleware.UserID(c),
		ChatID:       req.ChatID,
		MessageIndex: *req.MessageIndex,
		NewContent:   req.NewContent,
	}

	if err := h.chatService.Edit(c.Request.Context(), editReq, streamWriter{c: c}); err != nil {
		h.streamError(c, err)
		return
	}
}

// streamError 把服务层错误映射为 HTTP 状态码。
// 流一旦开始写出就只能记日志，无法再改状态码。
func (h *ChatHandler) streamError(c *gin.Context, err error) {
	if c.Writer.Written() {
		log.Error("[ChatHandler] 流式输出中途失败", err)
		return
	}
	switch {
	case errors.Is(err, service.ErrEmptyMessage):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Bad Request",
			"details": "message content cannot be empty",
		})
	case errors.Is(err, service.ErrInvalidMessageIndex), errors.Is(err, service.ErrNotUserMessage):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Bad Request",
			"details": err.Error(),
		})
	case errors.Is(err, service.ErrChatNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Not Found",
			"details": "chat not found",
		})
	default:
		// 内部错误可能包含上游响应体，细节只进日志
		log.Error("[ChatHandler] 处理聊天请求失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Internal Server Error",
			"details": "failed to process chat request",
		})
	}
}

func toUploadedFiles(files []inboundFile) []model.UploadedFile {
	if len(files) == 0 {
		return nil
	}
	out := make([]model.UploadedFile, 0, len(files))
	for _, f := range files {
		out = append(out, model.UploadedFile{
			URL:              f.URL,
			FileName:         f.FileName,
			FileType:         f.FileType,
			ExtractedContent: f.ExtractedContent,
		})
	}
	return out
}
