package parser

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 40, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDecodeDataURL(t *testing.T) {
	data := samplePNG(t)

	got, err := DecodeDataURL("data:image/png;base64," + base64.StdEncoding.EncodeToString(data))
	require.NoError(t, err)
	assert.Equal(t, data, got)

	_, err = DecodeDataURL("data:,")
	assert.ErrorIs(t, err, ErrEmptyDataURL)

	_, err = DecodeDataURL("https://cdn.example.com/1.png")
	assert.Error(t, err)

	_, err = DecodeDataURL("data:text/plain,hello")
	assert.Error(t, err)
}

func TestDetectFormat(t *testing.T) {
	format, err := DetectFormat(samplePNG(t))
	require.NoError(t, err)
	assert.Equal(t, "png", format)

	_, err = DetectFormat([]byte("short"))
	assert.Error(t, err)
}

func TestConformImage(t *testing.T) {
	data := samplePNG(t)

	same, err := ConformImage(data, "png")
	require.NoError(t, err)
	assert.Equal(t, data, same)

	jpg, err := ConformImage(data, ".jpg")
	require.NoError(t, err)
	format, err := DetectFormat(jpg)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)

	webp, err := ConformImage(data, "webp")
	require.NoError(t, err)
	assert.Equal(t, data, webp)

	_, err = ConformImage(nil, "png")
	assert.Error(t, err)
}

func TestSaveImageLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	path := OutputPath(dir, "image", 7, "png")
	assert.Equal(t, filepath.Join(dir, "image_7.png"), path)

	require.NoError(t, SaveImage(samplePNG(t), path))

	_, err := os.Stat(path)
	require.NoError(t, err)
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}
