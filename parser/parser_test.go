package parser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}
}

func TestLastImageIndexEmptyDir(t *testing.T) {
	n, err := LastImageIndex(t.TempDir(), "image")
	require.NoError(t, err)
	assert.Equal(t, -1, n)
}

func TestLastImageIndexReturnsMax(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "image_0.jpg", "image_1.jpeg", "image_2.png", "image_3.webp", "image_4.png")

	n, err := LastImageIndex(dir, "image")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestLastImageIndexNumericNotLexical(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "image_9.jpg", "image_10.jpg", "image_2.jpg")

	n, err := LastImageIndex(dir, "image")
	require.NoError(t, err)
	assert.Equal(t, 10, n)
}

func TestLastImageIndexIgnoresNonConforming(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir,
		"image_x.jpg",
		"image_3.gif",
		"image_7.jpg.tmp",
		"photo_12.jpg",
		"image_.png",
		"notes.txt",
		"image_5.JPG",
	)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "image_99.jpg"), 0755))

	n, err := LastImageIndex(dir, "image")
	require.NoError(t, err)
	assert.Equal(t, -1, n)
}

func TestLastImageIndexCustomPrefix(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "image_20.jpg", "page_3.png", "page_1.png")

	n, err := LastImageIndex(dir, "page")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestLastImageIndexMissingDir(t *testing.T) {
	_, err := LastImageIndex(filepath.Join(t.TempDir(), "missing"), "image")
	assert.Error(t, err)
}

func TestSupportedExtension(t *testing.T) {
	tests := []struct {
		url     string
		ext     string
		allowed bool
	}{
		{"https://cdn.example.com/ch1/01.jpg", "jpg", true},
		{"https://cdn.example.com/ch1/01.JPEG", "jpeg", true},
		{"https://cdn.example.com/ch1/01.Png", "png", true},
		{"https://cdn.example.com/ch1/01.webp", "webp", true},
		{"  https://cdn.example.com/ch1/01.jpg\n", "jpg", true},
		{"https://cdn.example.com/ch1/01.gif", "", false},
		{"https://cdn.example.com/ch1/01.jpg?w=800", "", false},
		{"https://cdn.example.com/logo.svg", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			ext, ok := SupportedExtension(tt.url)
			assert.Equal(t, tt.allowed, ok)
			assert.Equal(t, tt.ext, ext)
		})
	}
}

func TestImageFileName(t *testing.T) {
	assert.Equal(t, "image_0.jpg", ImageFileName("image", 0, "jpg"))
	assert.Equal(t, "image_5.png", ImageFileName("image", 5, ".png"))
	assert.Equal(t, filepath.Join("out", "page_12.webp"), OutputPath("out", "page", 12, "webp"))
}

func TestMimeType(t *testing.T) {
	assert.Equal(t, "image/jpeg", MimeType("jpg"))
	assert.Equal(t, "image/jpeg", MimeType(".JPEG"))
	assert.Equal(t, "image/png", MimeType("png"))
	assert.Equal(t, "image/webp", MimeType("webp"))
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := ExpandPath("~/downloads")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "downloads"), got)

	got, err = ExpandPath("/tmp/images")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/images", got)
}

func TestEnsureDirCreatesMissing(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	got, err := EnsureDir(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, got)
	assert.DirExists(t, dir)
}
