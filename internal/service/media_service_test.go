package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/maheshrc27/pinscheduler/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memoryStore struct {
	objects map[string][]byte
	types   map[string]string
	err     error
}

func (m *memoryStore) Put(ctx context.Context, key string, body []byte, contentType string) error {
	if m.err != nil {
		return m.err
	}
	if m.objects == nil {
		m.objects = map[string][]byte{}
		m.types = map[string]string{}
	}
	m.objects[key] = body
	m.types[key] = contentType
	return nil
}

var pngHeader = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 32)...)

func TestUploadImage(t *testing.T) {
	store := &memoryStore{}
	svc := NewMediaService(store, "https://media.example.com/", zap.NewNop())

	upload, err := svc.Upload(context.Background(), "user-1", bytes.NewReader(pngHeader))
	require.NoError(t, err)
	assert.Equal(t, models.MediaTypeImage, upload.MediaType)
	assert.True(t, strings.HasPrefix(upload.URL, "https://media.example.com/user-1/"))
	assert.True(t, strings.HasSuffix(upload.URL, ".png"))

	require.Len(t, store.objects, 1)
	for key, contentType := range store.types {
		assert.Equal(t, "image/png", contentType)
		assert.Equal(t, pngHeader, store.objects[key])
	}
}

func TestUploadRejects(t *testing.T) {
	svc := NewMediaService(&memoryStore{}, "https://media.example.com", zap.NewNop())
	ctx := context.Background()

	_, err := svc.Upload(ctx, "user-1", strings.NewReader("plain text is not media"))
	assert.Equal(t, KindInvalid, KindOf(err))

	_, err = svc.Upload(ctx, "user-1", bytes.NewReader(nil))
	assert.Equal(t, KindInvalid, KindOf(err))

	_, err = svc.Upload(ctx, "", bytes.NewReader(pngHeader))
	assert.Equal(t, KindUnauthorized, KindOf(err))

	unconfigured := NewMediaService(&memoryStore{}, "", zap.NewNop())
	_, err = unconfigured.Upload(ctx, "user-1", bytes.NewReader(pngHeader))
	assert.Equal(t, KindConfiguration, KindOf(err))

	failing := NewMediaService(&memoryStore{err: errors.New("bucket gone")}, "https://media.example.com", zap.NewNop())
	_, err = failing.Upload(ctx, "user-1", bytes.NewReader(pngHeader))
	assert.Equal(t, KindExternalService, KindOf(err))
}
