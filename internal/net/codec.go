package net

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

// ErrFrameTooLarge is returned when a line exceeds the configured limit.
var ErrFrameTooLarge = errors.New("frame too large")

// ReadFrame reads one newline-terminated message from r.
// Wire format: [JSON envelope]['\n']; a trailing '\r' is tolerated.
// The returned slice does not include the line terminator. A final line
// without a terminator is returned before io.EOF.
func ReadFrame(r *bufio.Reader, maxBytes int) ([]byte, error) {
	var line []byte
	for {
		chunk, err := r.ReadSlice('\n')
		if len(line)+len(chunk) > maxBytes+1 {
			return nil, fmt.Errorf("%w: more than %d bytes", ErrFrameTooLarge, maxBytes)
		}
		line = append(line, chunk...)
		switch {
		case err == nil:
			return trimEOL(line), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && len(line) > 0:
			return trimEOL(line), nil
		default:
			return nil, fmt.Errorf("read frame: %w", err)
		}
	}
}

// WriteFrame writes data followed by a newline.
func WriteFrame(w io.Writer, data []byte) error {
	buf := make([]byte, 0, len(data)+1)
	buf = append(buf, data...)
	buf = append(buf, '\n')
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func trimEOL(b []byte) []byte {
	b = bytes.TrimSuffix(b, []byte{'\n'})
	return bytes.TrimSuffix(b, []byte{'\r'})
}
