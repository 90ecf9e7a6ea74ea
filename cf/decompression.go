package cf

import (
	"bytes"
	"compress/gzip"
	"io"

	"github.com/andybalholm/brotli"
)

// DecompressBody returns the decoded body when it is gzip (detected by magic
// bytes) or Brotli (by Content-Encoding or a likely first byte). The bool
// reports whether anything was decompressed.
func DecompressBody(body []byte, contentEncoding string) ([]byte, bool, error) {
	if len(body) == 0 {
		return body, false, nil
	}

	if len(body) >= 2 && body[0] == 0x1f && body[1] == 0x8b {
		reader, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, false, err
		}
		defer reader.Close()

		decompressed, err := io.ReadAll(reader)
		if err != nil {
			return nil, false, err
		}
		return decompressed, true, nil
	}

	if contentEncoding == "br" {
		decompressed, err := io.ReadAll(brotli.NewReader(bytes.NewReader(body)))
		if err != nil {
			return nil, false, err
		}
		return decompressed, true, nil
	}

	// Heuristic: brotli streams often start in 0x80-0x8f. Image bytes never
	// do (jpeg ff, png 89, webp 'R'), so a failed attempt means plain data.
	if body[0] >= 0x80 && body[0] <= 0x8f && body[0] != 0x89 {
		decompressed, err := io.ReadAll(brotli.NewReader(bytes.NewReader(body)))
		if err != nil {
			return body, false, nil
		}
		return decompressed, true, nil
	}

	return body, false, nil
}
