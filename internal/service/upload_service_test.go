package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"memchat-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObjectStore struct {
	objects map[string][]byte
	err     error
}

func (f *fakeObjectStore) Put(_ context.Context, objectName string, data []byte, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.objects == nil {
		f.objects = make(map[string][]byte)
	}
	f.objects[objectName] = data
	return "http://minio.local/bucket/" + objectName, nil
}

type fakeExtractor struct {
	text string
	err  error
}

func (f *fakeExtractor) ExtractText(_ context.Context, _ io.Reader, _ string) (string, error) {
	return f.text, f.err
}

func TestIngestImage(t *testing.T) {
	store := &fakeObjectStore{}
	svc := NewUploadService(store, &fakeExtractor{})

	uploaded, err := svc.Ingest(context.Background(), []byte("fake-png"), "image/png", "photo.png")
	require.NoError(t, err)
	assert.Equal(t, model.FileTypeImage, uploaded.FileType)
	assert.Equal(t, "photo.png", uploaded.FileName)
	assert.Empty(t, uploaded.ExtractedContent)
	assert.Contains(t, uploaded.URL, "chatgpt-uploads/")
}

func TestIngestRejectsUnsupportedType(t *testing.T) {
	store := &fakeObjectStore{}
	svc := NewUploadService(store, &fakeExtractor{})

	_, err := svc.Ingest(context.Background(), []byte("MZ"), "application/x-msdownload", "tool.exe")
	assert.ErrorIs(t, err, ErrUnsupportedFileType)
	assert.Empty(t, store.objects, "rejected file must not reach object storage")
}

func TestIngestRejectsOversizeFile(t *testing.T) {
	store := &fakeObjectStore{}
	svc := NewUploadService(store, &fakeExtractor{})

	big := bytes.Repeat([]byte("a"), MaxUploadSize+1)
	_, err := svc.Ingest(context.Background(), big, "text/plain", "big.txt")
	assert.ErrorIs(t, err, ErrFileTooLarge)
	assert.Empty(t, store.objects)
}

func TestIngestPlainTextExtractsInline(t *testing.T) {
	svc := NewUploadService(&fakeObjectStore{}, &fakeExtractor{})

	uploaded, err := svc.Ingest(context.Background(), []byte("# notes\nhello"), "text/markdown", "notes.md")
	require.NoError(t, err)
	assert.Equal(t, model.FileTypeDocument, uploaded.FileType)
	assert.Equal(t, "# notes\nhello", uploaded.ExtractedContent)
}

func TestIngestInvalidUTF8TextDegrades(t *testing.T) {
	svc := NewUploadService(&fakeObjectStore{}, &fakeExtractor{})

	uploaded, err := svc.Ingest(context.Background(), []byte{0xff, 0xfe, 0x01}, "text/plain", "weird.txt")
	require.NoError(t, err)
	assert.Empty(t, uploaded.ExtractedContent)
}

func TestIngestPDFUsesExtractor(t *testing.T) {
	svc := NewUploadService(&fakeObjectStore{}, &fakeExtractor{text: "pdf body"})

	uploaded, err := svc.Ingest(context.Background(), []byte("%PDF-1.7"), "application/pdf", "doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, "pdf body", uploaded.ExtractedContent)
}

func TestIngestPDFExtractionFailureFallsBack(t *testing.T) {
	svc := NewUploadService(&fakeObjectStore{}, &fakeExtractor{err: errors.New("tika down")})

	uploaded, err := svc.Ingest(context.Background(), []byte("%PDF-1.7"), "application/pdf", "doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, pdfExtractionFallback, uploaded.ExtractedContent)
}

func TestIngestWordExtractionFailureIsSilent(t *testing.T) {
	svc := NewUploadService(&fakeObjectStore{}, &fakeExtractor{err: errors.New("tika down")})

	uploaded, err := svc.Ingest(context.Background(), []byte("doc"), "application/msword", "doc.doc")
	require.NoError(t, err)
	assert.Empty(t, uploaded.ExtractedContent)
}

func TestIngestSanitizesObjectName(t *testing.T) {
	store := &fakeObjectStore{}
	svc := NewUploadService(store, &fakeExtractor{})

	uploaded, err := svc.Ingest(context.Background(), []byte("x"), "image/png", "my holiday photo.png")
	require.NoError(t, err)
	assert.NotContains(t, uploaded.URL, " ")
	assert.True(t, strings.HasSuffix(uploaded.URL, "my_holiday_photo.png"))
}

func TestIngestStorageError(t *testing.T) {
	svc := NewUploadService(&fakeObjectStore{err: errors.New("bucket gone")}, &fakeExtractor{})

	_, err := svc.Ingest(context.Background(), []byte("x"), "image/png", "p.png")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnsupportedFileType)
}
