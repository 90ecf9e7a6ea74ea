package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// SupportedExtensions lists the image extensions the downloader will save.
var SupportedExtensions = []string{"jpg", "jpeg", "png", "webp"}

// LastImageIndex returns the highest N among files named <prefix>_<N>.<ext>
// in rootDir, or -1 when no file matches. Other names are ignored.
func LastImageIndex(rootDir, prefix string) (int, error) {
	expandedPath, err := ExpandPath(rootDir)
	if err != nil {
		return -1, err
	}

	entries, err := os.ReadDir(expandedPath)
	if err != nil {
		return -1, fmt.Errorf("failed to read directory %s: %w", expandedPath, err)
	}

	pattern := imageNamePattern(prefix)
	last := -1

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		m := pattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}

		n, err := strconv.Atoi(m[1])
		if err != nil {
			// out of int range
			continue
		}
		if n > last {
			last = n
		}
	}

	return last, nil
}

// ImageFileName builds the output name for an image index, e.g. image_5.png
func ImageFileName(prefix string, index int, ext string) string {
	return fmt.Sprintf("%s_%d.%s", prefix, index, strings.TrimPrefix(ext, "."))
}

// SupportedExtension reports the lower-cased extension of imageURL when the
// URL ends in one of SupportedExtensions (case-insensitive).
func SupportedExtension(imageURL string) (string, bool) {
	lower := strings.ToLower(strings.TrimSpace(imageURL))
	if lower == "" {
		return "", false
	}

	for _, ext := range SupportedExtensions {
		if strings.HasSuffix(lower, "."+ext) {
			return ext, true
		}
	}
	return "", false
}

// MimeType maps a supported extension to the MIME type used for canvas export.
func MimeType(ext string) string {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "webp":
		return "image/webp"
	default:
		return "image/png"
	}
}

// EnsureDir creates dir (after ~ expansion) if missing and returns the expanded path.
func EnsureDir(dir string) (string, error) {
	expanded, err := ExpandPath(dir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(expanded, 0755); err != nil {
		return "", fmt.Errorf("error creating directory %s: %w", expanded, err)
	}
	return expanded, nil
}

// ExpandPath expands ~ to the user's home directory, or returns the path as-is
func ExpandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(homeDir, path[2:]), nil
	}
	return path, nil
}

func imageNamePattern(prefix string) *regexp.Regexp {
	return regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `_(\d+)\.(?:` + strings.Join(SupportedExtensions, "|") + `)$`)
}
