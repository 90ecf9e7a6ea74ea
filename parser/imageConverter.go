package parser

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/image/webp"
)

// ErrEmptyDataURL is returned when a canvas export produced no payload
var ErrEmptyDataURL = errors.New("data URL has no payload")

// detectImageFormat reads the magic bytes and returns the current image format string
func detectImageFormat(data []byte) (string, error) {
	if len(data) < 12 {
		return "", errors.New("data too short to determine format")
	}

	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "jpeg", nil
	}
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "png", nil
	}
	if string(data[0:6]) == "GIF87a" || string(data[0:6]) == "GIF89a" {
		return "gif", nil
	}
	if string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP" {
		return "webp", nil
	}

	return "", errors.New("unknown image format")
}

// DetectFormat is the exported form of the magic byte check.
func DetectFormat(data []byte) (string, error) {
	return detectImageFormat(data)
}

// DecodeDataURL decodes a base64 data URI (data:image/png;base64,....)
// as returned by canvas.toDataURL. A bare "data:," means the canvas was empty.
func DecodeDataURL(dataURL string) ([]byte, error) {
	if !strings.HasPrefix(dataURL, "data:") {
		return nil, fmt.Errorf("not a data URL")
	}

	comma := strings.IndexByte(dataURL, ',')
	if comma < 0 {
		return nil, fmt.Errorf("malformed data URL")
	}

	header, payload := dataURL[:comma], dataURL[comma+1:]
	if payload == "" {
		return nil, ErrEmptyDataURL
	}
	if !strings.HasSuffix(header, ";base64") {
		return nil, fmt.Errorf("data URL is not base64 encoded")
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 payload: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyDataURL
	}
	return data, nil
}

// ConformImage makes the bytes match the target extension.
// Data already in the right format is returned untouched; jpg/png targets
// are re-encoded; webp targets are returned as-is since webp can't be encoded here.
func ConformImage(imgBytes []byte, ext string) ([]byte, error) {
	if len(imgBytes) == 0 {
		return nil, errors.New("empty image data")
	}

	format, err := detectImageFormat(imgBytes)
	if err != nil {
		return nil, err
	}

	target := strings.ToLower(strings.TrimPrefix(ext, "."))
	if target == "jpg" {
		target = "jpeg"
	}
	if format == target || target == "webp" {
		return imgBytes, nil
	}

	img, err := decodeImage(imgBytes, format)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	switch target {
	case "jpeg":
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(90))
	case "png":
		err = imaging.Encode(&buf, img, imaging.PNG)
	default:
		return nil, errors.New("unsupported target format: " + target)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", target, err)
	}
	return buf.Bytes(), nil
}

func decodeImage(imgBytes []byte, format string) (image.Image, error) {
	var (
		img image.Image
		err error
	)
	reader := bytes.NewReader(imgBytes)

	switch format {
	case "jpeg":
		img, err = jpeg.Decode(reader)
	case "png":
		img, err = png.Decode(reader)
	case "gif":
		img, err = gif.Decode(reader)
	case "webp":
		img, err = webp.Decode(reader)
	default:
		return nil, errors.New("unsupported image format: " + format)
	}
	if err != nil {
		return nil, errors.New("failed to decode " + format + " image: " + err.Error())
	}
	return img, nil
}

// SaveImage writes data to outputPath through a temporary file and rename.
func SaveImage(data []byte, outputPath string) error {
	tempFile := outputPath + ".tmp"

	out, err := os.Create(tempFile)
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	_, err = io.Copy(out, bytes.NewReader(data))
	closeErr := out.Close()

	if err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to write image data: %w", err)
	}
	if closeErr != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to close file: %w", closeErr)
	}

	if err := os.Rename(tempFile, outputPath); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	return nil
}

// OutputPath joins the download directory and the generated file name.
func OutputPath(dir, prefix string, index int, ext string) string {
	return filepath.Join(dir, ImageFileName(prefix, index, ext))
}
