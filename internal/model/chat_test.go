package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendMessageSetsTitleFromFirstUserMessage(t *testing.T) {
	chat := &ChatRecord{ID: "507f1f77bcf86cd799439011", Title: DefaultChatTitle}

	chat.AppendMessage(Message{Role: RoleUser, Content: "Hello"})
	assert.Equal(t, "Hello", chat.Title)

	// 标题一旦设置就不再被后续消息覆盖
	chat.AppendMessage(Message{Role: RoleUser, Content: "Another question"})
	assert.Equal(t, "Hello", chat.Title)
}

func TestAppendMessageTitleTruncation(t *testing.T) {
	long := strings.Repeat("a", 80)
	chat := &ChatRecord{Title: DefaultChatTitle}
	chat.AppendMessage(Message{Role: RoleUser, Content: long})

	assert.Equal(t, strings.Repeat("a", 50)+"...", chat.Title)
}

func TestAppendMessageTitleMultibyte(t *testing.T) {
	long := strings.Repeat("你", 60)
	chat := &ChatRecord{Title: DefaultChatTitle}
	chat.AppendMessage(Message{Role: RoleUser, Content: long})

	assert.Equal(t, strings.Repeat("你", 50)+"...", chat.Title)
}

func TestAppendMessageAssistantDoesNotChangeTitle(t *testing.T) {
	chat := &ChatRecord{Title: DefaultChatTitle}
	chat.AppendMessage(Message{Role: RoleAssistant, Content: "Hi, how can I help?"})
	assert.Equal(t, DefaultChatTitle, chat.Title)
}

func TestAppendMessageSetsTimestamps(t *testing.T) {
	chat := &ChatRecord{}
	chat.AppendMessage(Message{Role: RoleUser, Content: "hi"})

	require.Len(t, chat.Messages, 1)
	assert.False(t, chat.Messages[0].CreatedAt.IsZero())
	assert.False(t, chat.Messages[0].UpdatedAt.IsZero())
}

func TestTruncateAfter(t *testing.T) {
	chat := &ChatRecord{Messages: []Message{
		{Role: RoleUser, Content: "one"},
		{Role: RoleAssistant, Content: "two"},
		{Role: RoleUser, Content: "three"},
		{Role: RoleAssistant, Content: "four"},
	}}

	chat.TruncateAfter(2)
	require.Len(t, chat.Messages, 3)
	assert.Equal(t, "three", chat.Messages[2].Content)
}

func TestTruncateAfterOutOfRange(t *testing.T) {
	chat := &ChatRecord{Messages: []Message{{Role: RoleUser, Content: "one"}}}

	chat.TruncateAfter(-1)
	assert.Len(t, chat.Messages, 1)

	chat.TruncateAfter(5)
	assert.Len(t, chat.Messages, 1)
}
