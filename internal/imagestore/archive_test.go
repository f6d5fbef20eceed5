package imagestore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memUploader struct {
	objects map[string][]byte
	types   map[string]string
	err     error
}

func newMemUploader() *memUploader {
	return &memUploader{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memUploader) Upload(_ context.Context, key string, data []byte, contentType string) error {
	if m.err != nil {
		return m.err
	}
	m.objects[key] = data
	m.types[key] = contentType
	return nil
}

func (m *memUploader) URL(key string) string { return publicURL("https://cdn.example.test/", "", key) }

func (m *memUploader) Close() error { return nil }

func TestArchive(t *testing.T) {
	up := newMemUploader()
	a := NewArchiver(up)
	a.newID = func() string { return "fixed" }

	url, err := a.Archive(context.Background(), "u1", []byte("img"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.test/users/u1/fixed.jpg", url)
	assert.Equal(t, []byte("img"), up.objects["users/u1/fixed.jpg"])
	assert.Equal(t, "image/jpeg", up.types["users/u1/fixed.jpg"])
}

func TestArchive_Errors(t *testing.T) {
	up := newMemUploader()
	a := NewArchiver(up)

	_, err := a.Archive(context.Background(), "", []byte("img"), "image/png")
	assert.Error(t, err)

	up.err = errors.New("denied")
	_, err = a.Archive(context.Background(), "u1", []byte("img"), "image/png")
	assert.ErrorIs(t, err, up.err)
}

func TestExtension(t *testing.T) {
	tests := []struct {
		contentType string
		expected    string
	}{
		{"image/jpeg", ".jpg"},
		{"IMAGE/PNG", ".png"},
		{"image/webp; charset=binary", ".webp"},
		{"application/octet-stream", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, extension(tt.contentType), tt.contentType)
	}
}

func TestNew_None(t *testing.T) {
	a, err := New(context.Background(), Config{Backend: "none"})
	require.NoError(t, err)
	assert.Nil(t, a)

	_, err = New(context.Background(), Config{Backend: "ftp"})
	assert.Error(t, err)

	_, err = New(context.Background(), Config{Backend: BackendS3})
	assert.Error(t, err, "bucket is required")
}

func TestPublicURL(t *testing.T) {
	assert.Equal(t, "https://x.test/k", publicURL("https://x.test/", "fallback", "k"))
	assert.Equal(t, "fallback", publicURL("", "fallback", "k"))
}
