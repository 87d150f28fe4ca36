// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"io"
	"net/http"

	"memchat-go/internal/service"
	"memchat-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// UploadHandler 负责处理文件上传相关的 API 请求。
type UploadHandler struct {
	uploadService service.UploadService
}

// NewUploadHandler 创建一个新的 UploadHandler 实例。
func NewUploadHandler(uploadService service.UploadService) *UploadHandler {
	return &UploadHandler{uploadService: uploadService}
}

// UploadFile 处理 multipart 文件上传请求。
func (h *UploadHandler) UploadFile(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Bad Request",
			"details": "no file provided",
		})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		log.Error("UploadFile: failed to open uploaded file", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Internal Server Error",
			"details": "failed to read uploaded file",
		})
		return
	}
	defer file.Close()

	// 多读一个字节以探测超限，避免把超大文件整个读入内存
	data, err := io.ReadAll(io.LimitReader(file, service.MaxUploadSize+1))
	if err != nil {
		log.Error("UploadFile: failed to read uploaded file", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Internal Server Error",
			"details": "failed to read uploaded file",
		})
		return
	}

	contentType := fileHeader.Header.Get("Content-Type")
	uploaded, err := h.uploadService.Ingest(c.Request.Context(), data, contentType, fileHeader.Filename)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnsupportedFileType):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Bad Request",
				"details": "unsupported file type: " + contentType,
			})
		case errors.Is(err, service.ErrFileTooLarge):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Bad Request",
				"details": "file exceeds 10MB limit",
			})
		default:
			log.Error("UploadFile: ingest failed", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "Internal Server Error",
				"details": "failed to upload file",
			})
		}
		return
	}

	resp := gin.H{
		"success":  true,
		"url":      uploaded.URL,
		"fileName": uploaded.FileName,
		"fileType": uploaded.FileType,
	}
	if uploaded.ExtractedContent != "" {
		resp["extractedContent"] = uploaded.ExtractedContent
	}
	c.JSON(http.StatusOK, resp)
}
