package handler

import (
	"net/http"

	"memchat-go/internal/middleware"
	"memchat-go/internal/service"
	"memchat-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// MemoryHandler 负责长期记忆的查询接口。
type MemoryHandler struct {
	memoryService service.MemoryService
}

// NewMemoryHandler 创建一个新的 MemoryHandler 实例。
func NewMemoryHandler(memoryService service.MemoryService) *MemoryHandler {
	return &MemoryHandler{memoryService: memoryService}
}

// GetMemories 处理 GET /api/memories。
// 带 query 参数时做相似度检索，否则列出该用户的全部记忆。
func (h *MemoryHandler) GetMemories(c *gin.Context) {
	userID := middleware.UserID(c)
	query := c.Query("query")

	var (
		facts interface{}
		err   error
	)
	if query != "" {
		facts, err = h.memoryService.Search(c.Request.Context(), query, service.MemorySearchOptions{UserID: userID})
	} else {
		facts, err = h.memoryService.ListAll(c.Request.Context(), userID)
	}
	if err != nil {
		log.Error("GetMemories: failed to fetch memories", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Internal Server Error",
			"details": "failed to fetch memories",
		})
		return
	}
	c.JSON(http.StatusOK, facts)
}
