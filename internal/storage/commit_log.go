package storage

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
)

// Note: the log is intended to be single-writer. AppendLine hands the whole
// line to one write call on an O_APPEND handle so that two appends never
// interleave inside a line; readers open their own handle and replay.

// ErrTornLine marks a final line with no terminating newline, the footprint
// of a write interrupted mid-line.
var ErrTornLine = errors.New("torn line: missing newline terminator")

// AppendLine appends one newline-terminated line in a single write. Caller
// owns file lifecycle.
func AppendLine(file *os.File, line []byte) error {
	if len(line) == 0 || line[len(line)-1] != '\n' {
		line = append(line, '\n')
	}
	n, err := file.Write(line)
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if n != len(line) {
		return fmt.Errorf("write: %w", io.ErrShortWrite)
	}
	return nil
}

// LineFunc receives each line (without its newline) and its 1-based number.
// err is non-nil for a line that could not be read whole.
type LineFunc func(lineNo int, line []byte, err error)

// ScanLines replays every line of the file at path in order. A missing file
// is an empty log.
func ScanLines(path string, fn LineFunc) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	lineNo := 0
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			lineNo++
			if line[len(line)-1] == '\n' {
				fn(lineNo, bytes.TrimRight(line, "\r\n"), nil)
			} else {
				fn(lineNo, line, ErrTornLine)
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
	}
}

// HasTornTail reports whether a non-empty file at path lacks a final newline.
func HasTornTail(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return false, fmt.Errorf("stat: %w", err)
	}
	if info.Size() == 0 {
		return false, nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return false, fmt.Errorf("read tail: %w", err)
	}
	return last[0] != '\n', nil
}
