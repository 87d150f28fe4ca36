package llm

import "encoding/json"

// 消息角色常量。
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// PartType 是多模态内容分段的显式判别标记。
type PartType string

const (
	PartTypeText  PartType = "text"
	PartTypeImage PartType = "image_url"
)

// Part 表示一条消息中的一个内容分段（文本或图片引用）。
type Part struct {
	Type     PartType
	Text     string
	ImageURL string
}

// TextPart 构造一个文本分段。
func TextPart(text string) Part {
	return Part{Type: PartTypeText, Text: text}
}

// ImagePart 构造一个图片引用分段。
func ImagePart(url string) Part {
	return Part{Type: PartTypeImage, ImageURL: url}
}

// Message 表示发送给模型的一条角色消息。
// Content 与 Parts 互斥：Parts 非空时按多模态分段序列化，
// 否则序列化为扁平字符串。这一转换只发生在模型调用边界。
type Message struct {
	Role    string
	Content string
	Parts   []Part
}

type wirePart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *wireImageURL `json:"image_url,omitempty"`
}

type wireImageURL struct {
	URL string `json:"url"`
}

// MarshalJSON 将消息编码为 OpenAI 聊天接口的线上格式。
func (m Message) MarshalJSON() ([]byte, error) {
	if len(m.Parts) == 0 {
		return json.Marshal(struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		}{Role: m.Role, Content: m.Content})
	}

	parts := make([]wirePart, 0, len(m.Parts))
	for _, p := range m.Parts {
		switch p.Type {
		case PartTypeImage:
			parts = append(parts, wirePart{Type: string(PartTypeImage), ImageURL: &wireImageURL{URL: p.ImageURL}})
		default:
			parts = append(parts, wirePart{Type: string(PartTypeText), Text: p.Text})
		}
	}
	return json.Marshal(struct {
		Role    string     `json:"role"`
		Content []wirePart `json:"content"`
	}{Role: m.Role, Content: parts})
}

// PlainText 返回消息的纯文本内容，多模态消息拼接其中的文本分段。
func (m Message) PlainText() string {
	if len(m.Parts) == 0 {
		return m.Content
	}
	var out string
	for _, p := range m.Parts {
		if p.Type == PartTypeText {
			out += p.Text
		}
	}
	return out
}
