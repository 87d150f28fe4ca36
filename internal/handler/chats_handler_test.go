package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"memchat-go/internal/middleware"
	"memchat-go/internal/model"
	"memchat-go/internal/service"
	"memchat-go/pkg/llm"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChatService struct {
	chats   map[string]*model.ChatRecord
	stream  string
	sendErr error
}

func (f *fakeChatService) Send(_ context.Context, req service.SendRequest, writer llm.ChunkWriter) (string, error) {
	if f.sendErr != nil {
		return "", f.sendErr
	}
	if strings.TrimSpace(req.Content) == "" && len(req.Files) == 0 {
		return "", service.ErrEmptyMessage
	}
	if err := writer.WriteChunk([]byte(f.stream)); err != nil {
		return "", err
	}
	return req.ChatID, nil
}

func (f *fakeChatService) Edit(_ context.Context, req service.EditRequest, writer llm.ChunkWriter) error {
	if _, ok := f.chats[req.ChatID]; !ok {
		return service.ErrChatNotFound
	}
	return writer.WriteChunk([]byte(f.stream))
}

func (f *fakeChatService) List(_ context.Context, _ string) ([]model.ChatRecord, error) {
	var out []model.ChatRecord
	for _, chat := range f.chats {
		out = append(out, *chat)
	}
	return out, nil
}

func (f *fakeChatService) Get(_ context.Context, id, _ string) (*model.ChatRecord, error) {
	chat, ok := f.chats[id]
	if !ok {
		return nil, service.ErrChatNotFound
	}
	return chat, nil
}

func (f *fakeChatService) Delete(_ context.Context, id, _ string) error {
	if _, ok := f.chats[id]; !ok {
		return service.ErrChatNotFound
	}
	delete(f.chats, id)
	return nil
}

func newTestRouter(svc service.ChatService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	// 测试路由直接注入用户身份，绕过 JWT 校验
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserIDKey, "u1")
	})

	chatHandler := NewChatHandler(svc)
	chatsHandler := NewChatsHandler(svc)
	r.POST("/api/chat", chatHandler.Chat)
	r.POST("/api/edit-message", chatHandler.EditMessage)
	r.GET("/api/chats", chatsHandler.ListChats)
	r.GET("/api/chats/:chatId", chatsHandler.GetChat)
	r.DELETE("/api/chats/:chatId", chatsHandler.DeleteChat)
	return r
}

func TestListChatsReturnsMapKeyedByID(t *testing.T) {
	svc := &fakeChatService{chats: map[string]*model.ChatRecord{
		"507f1f77bcf86cd799439011": {ID: "507f1f77bcf86cd799439011", UserID: "u1", Title: "Hello"},
		"507f1f77bcf86cd799439012": {ID: "507f1f77bcf86cd799439012", UserID: "u1", Title: "Second"},
	}}
	r := newTestRouter(svc)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/chats", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]model.ChatRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body, 2)
	assert.Equal(t, "Hello", body["507f1f77bcf86cd799439011"].Title)
}

func TestGetChatNotFound(t *testing.T) {
	r := newTestRouter(&fakeChatService{chats: map[string]*model.ChatRecord{}})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/chats/507f1f77bcf86cd799439099", nil))

	require.Equal(t, http.StatusNotFound, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Not Found", body["error"])
	assert.NotEmpty(t, body["details"])
}

func TestDeleteChat(t *testing.T) {
	svc := &fakeChatService{chats: map[string]*model.ChatRecord{
		"507f1f77bcf86cd799439011": {ID: "507f1f77bcf86cd799439011", UserID: "u1"},
	}}
	r := newTestRouter(svc)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/chats/507f1f77bcf86cd799439011", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success": true}`, w.Body.String())
	assert.Empty(t, svc.chats)
}

func TestChatStreamsPlainText(t *testing.T) {
	r := newTestRouter(&fakeChatService{stream: "streamed answer"})

	body := strings.NewReader(`{"messages":[{"role":"user","content":"hi"}],"chatId":""}`)
	req := httptest.NewRequest(http.MethodPost, "/api/chat", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
	assert.Equal(t, "streamed answer", w.Body.String())
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	r := newTestRouter(&fakeChatService{})

	body := strings.NewReader(`{"messages":[{"role":"user","content":"  "}]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/chat", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Bad Request", resp["error"])
}

func TestChatInternalErrorHidesDetails(t *testing.T) {
	r := newTestRouter(&fakeChatService{sendErr: errors.New(`upstream 502: {"error":{"message":"secret key xyz"}}`)})

	body := strings.NewReader(`{"messages":[{"role":"user","content":"hi"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/chat", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Internal Server Error", resp["error"])
	assert.Equal(t, "failed to process chat request", resp["details"])
	assert.NotContains(t, w.Body.String(), "secret key")
}

func TestEditMessageUnknownChat(t *testing.T) {
	r := newTestRouter(&fakeChatService{chats: map[string]*model.ChatRecord{}})

	body := strings.NewReader(`{"chatId":"507f1f77bcf86cd799439011","messageIndex":0,"newContent":"x"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/edit-message", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEditMessageMissingFields(t *testing.T) {
	r := newTestRouter(&fakeChatService{})

	body := strings.NewReader(`{"newContent":"x"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/edit-message", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
