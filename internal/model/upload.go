package model

// 上传文件的粗粒度类型分类。
const (
	FileTypeImage    = "image"
	FileTypeDocument = "document"
)

// UploadedFile 是单次上传请求的产物，不单独落库；
// 消息随后通过 URL 引用它，对象存储中的副本不会被本系统删除。
type UploadedFile struct {
	URL              string `json:"url"`
	FileName         string `json:"fileName"`
	FileType         string `json:"fileType"`
	ExtractedContent string `json:"extractedContent,omitempty"`
}

// IsImage 判断是否为图片类型附件。
func (f UploadedFile) IsImage() bool {
	return f.FileType == FileTypeImage
}
