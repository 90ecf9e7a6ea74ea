package logger

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/nxadm/tail"
)

// LastLines returns up to n trailing lines of the log file that contain
// filter (case-insensitive; empty matches everything), plus the total number
// of matching lines. n <= 0 returns them all.
func LastLines(path string, n int, filter string) ([]string, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	var lines []string
	for scanner.Scan() {
		if line := scanner.Text(); Matches(line, filter) {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("error reading log file: %w", err)
	}

	total := len(lines)
	if n > 0 && total > n {
		lines = lines[total-n:]
	}
	return lines, total, nil
}

// Matches reports whether line contains filter, ignoring case
func Matches(line, filter string) bool {
	return filter == "" || strings.Contains(strings.ToLower(line), strings.ToLower(filter))
}

// Follow calls fn for every line appended to the log file until ctx is
// done. Rotation is followed by reopening the path.
func Follow(ctx context.Context, path string, fn func(line string)) error {
	t, err := tail.TailFile(path, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: true,
		Location:  &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd},
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to follow log file: %w", err)
	}
	defer t.Cleanup()

	for {
		select {
		case <-ctx.Done():
			_ = t.Stop()
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				return t.Err()
			}
			if line.Err != nil {
				return line.Err
			}
			fn(line.Text)
		}
	}
}
