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

// ChatsHandler 负责会话历史的查询与删除接口。
type ChatsHandler struct {
	chatService service.ChatService
}

// NewChatsHandler 创建一个新的 ChatsHandler 实例。
func NewChatsHandler(chatService service.ChatService) *ChatsHandler {
	return &ChatsHandler{chatService: chatService}
}

// ListChats 处理 GET /api/chats，返回以会话 id 为键的映射。
func (h *ChatsHandler) ListChats(c *gin.Context) {
	userID := middleware.UserID(c)
	chats, err := h.chatService.List(c.Request.Context(), userID)
	if err != nil {
		log.Error("ListChats: failed to list chats", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Internal Server Error",
			"details": "failed to fetch chats",
		})
		return
	}

	result := make(map[string]model.ChatRecord, len(chats))
	for _, chat := range chats {
		result[chat.ID] = chat
	}
	c.JSON(http.StatusOK, result)
}

// GetChat 处理 GET /api/chats/:chatId。
func (h *ChatsHandler) GetChat(c *gin.Context) {
	userID := middleware.UserID(c)
	chatID := c.Param("chatId")

	chat, err := h.chatService.Get(c.Request.Context(), chatID, userID)
	if err != nil {
		if errors.Is(err, service.ErrChatNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "Not Found",
				"details": "chat not found",
			})
			return
		}
		log.Error("GetChat: failed to load chat", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Internal Server Error",
			"details": "failed to fetch chat",
		})
		return
	}
	c.JSON(http.StatusOK, chat)
}

// DeleteChat 处理 DELETE /api/chats/:chatId。
func (h *ChatsHandler) DeleteChat(c *gin.Context) {
	userID := middleware.UserID(c)
	chatID := c.Param("chatId")

	if err := h.chatService.Delete(c.Request.Context(), chatID, userID); err != nil {
		if errors.Is(err, service.ErrChatNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "Not Found",
				"details": "chat not found",
			})
			return
		}
		log.Error("DeleteChat: failed to delete chat", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Internal Server Error",
			"details": "failed to delete chat",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
