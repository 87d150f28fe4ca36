package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"memchat-go/internal/model"
	"memchat-go/pkg/log"
	"memchat-go/pkg/objectid"
)

var (
	// ErrUnsupportedFileType 表示文件 MIME 类型不在允许列表内。
	ErrUnsupportedFileType = errors.New("unsupported file type")
	// ErrFileTooLarge 表示文件超出大小上限。
	ErrFileTooLarge = errors.New("file exceeds size limit")
	// ErrInvalidTextEncoding 表示纯文本文件不是合法的 UTF-8。
	ErrInvalidTextEncoding = errors.New("text file is not valid UTF-8")
)

// MaxUploadSize 是单个上传文件的大小上限。
const MaxUploadSize = 10 << 20

// uploadFolder 是对象存储中的上传目录前缀。
const uploadFolder = "chatgpt-uploads"

// pdfExtractionFallback 是 PDF 抽取失败时写入的占位文本。
const pdfExtractionFallback = "PDF document uploaded. Content analysis available through vision model."

// imageTypes 与 documentTypes 共同构成上传允许列表。
var imageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/jpg":  true,
	"image/gif":  true,
	"image/webp": true,
}

var documentTypes = map[string]bool{
	"application/pdf": true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"text/plain":    true,
	"text/markdown": true,
}

// ObjectStore 抽象对象存储的写入能力，返回可公开访问的 URL。
type ObjectStore interface {
	Put(ctx context.Context, objectName string, data []byte, contentType string) (string, error)
}

// Extractor 抽象文档文本抽取能力。
type Extractor interface {
	ExtractText(ctx context.Context, fileReader io.Reader, contentType string) (string, error)
}

// UploadService 处理文件上传：校验、落对象存储、按需抽取文本。
type UploadService interface {
	Ingest(ctx context.Context, data []byte, contentType, fileName string) (*model.UploadedFile, error)
}

type uploadService struct {
	store     ObjectStore
	extractor Extractor
}

// NewUploadService 创建上传服务。extractor 为 nil 时文档抽取降级为空文本。
func NewUploadService(store ObjectStore, extractor Extractor) UploadService {
	return &uploadService{store: store, extractor: extractor}
}

func (s *uploadService) Ingest(ctx context.Context, data []byte, contentType, fileName string) (*model.UploadedFile, error) {
	fileType, err := classify(contentType)
	if err != nil {
		return nil, err
	}
	if len(data) > MaxUploadSize {
		return nil, ErrFileTooLarge
	}
	if s.store == nil {
		return nil, errors.New("对象存储未配置")
	}

	objectName := fmt.Sprintf("%s/%s_%s", uploadFolder, objectid.New(), sanitizeFileName(fileName))
	url, err := s.store.Put(ctx, objectName, data, contentType)
	if err != nil {
		return nil, fmt.Errorf("上传对象存储失败: %w", err)
	}

	uploaded := &model.UploadedFile{
		URL:      url,
		FileName: fileName,
		FileType: fileType,
	}
	if fileType == model.FileTypeDocument {
		uploaded.ExtractedContent = s.extractContent(ctx, data, contentType)
	}
	log.Infof("[UploadService] 文件上传完成, object: %s, type: %s, size: %d", objectName, fileType, len(data))
	return uploaded, nil
}

// extractContent 按文档类型抽取文本，抽取失败不阻断上传。
func (s *uploadService) extractContent(ctx context.Context, data []byte, contentType string) string {
	switch contentType {
	case "text/plain", "text/markdown":
		if !utf8.Valid(data) {
			log.Warnf("[UploadService] 文本文件不是合法 UTF-8，跳过内容抽取")
			return ""
		}
		return string(data)
	case "application/pdf":
		text, err := s.extract(ctx, data, contentType)
		if err != nil {
			log.Warnf("[UploadService] PDF 文本抽取失败: %v", err)
			return pdfExtractionFallback
		}
		return text
	default:
		// Word 文档抽取失败时静默降级为空内容
		text, err := s.extract(ctx, data, contentType)
		if err != nil {
			log.Warnf("[UploadService] 文档文本抽取失败: %v", err)
			return ""
		}
		return text
	}
}

func (s *uploadService) extract(ctx context.Context, data []byte, contentType string) (string, error) {
	if s.extractor == nil {
		return "", errors.New("文本抽取服务未配置")
	}
	return s.extractor.ExtractText(ctx, bytes.NewReader(data), contentType)
}

func classify(contentType string) (string, error) {
	switch {
	case imageTypes[contentType]:
		return model.FileTypeImage, nil
	case documentTypes[contentType]:
		return model.FileTypeDocument, nil
	default:
		return "", ErrUnsupportedFileType
	}
}

// sanitizeFileName 把空白替换为下划线，避免对象名里的歧义字符。
func sanitizeFileName(name string) string {
	return strings.Join(strings.Fields(name), "_")
}
