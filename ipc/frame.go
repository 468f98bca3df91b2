// Package ipc implements newline-delimited JSON framing over byte streams.
//
// Every message is one JSON value on one line. Readers surface lines that
// are not JSON as diagnostic passthrough rather than dropping them.
package ipc

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/pithecene-io/scriptrun/iox"
)

// MaxLineSize is the default maximum line size (16 MiB), excluding the newline.
const MaxLineSize = 16 * 1024 * 1024

// FrameErrorKind classifies framing errors.
type FrameErrorKind int

const (
	// FrameErrorTooLarge indicates a line exceeding the maximum size.
	FrameErrorTooLarge FrameErrorKind = iota
	// FrameErrorDecode indicates a line that does not decode into the target.
	FrameErrorDecode
	// FrameErrorEncode indicates a value that cannot be written as one line.
	FrameErrorEncode
)

// FrameError represents a framing error.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether the offending line was dropped unread. Only
// oversized lines are; the reader has already skipped past them, so callers
// may keep reading. Decode and encode errors are per-message.
func (e *FrameError) IsFatal() bool {
	return e.Kind == FrameErrorTooLarge
}

// IsFatalFrameError returns true if the error is a fatal frame error, that is,
// an oversized line that was discarded.
func IsFatalFrameError(err error) bool {
	var frameErr *FrameError
	if errors.As(err, &frameErr) {
		return frameErr.IsFatal()
	}
	return false
}

// Frame is one line read from a stream.
type Frame struct {
	// Raw is the line without its trailing newline or carriage return.
	Raw []byte
	// Valid reports whether Raw is syntactically valid JSON.
	Valid bool
}

// LineReader reads newline-delimited frames from a stream.
type LineReader struct {
	reader  *bufio.Reader
	maxLine int
}

// NewLineReader creates a reader. maxLine <= 0 selects MaxLineSize.
func NewLineReader(r io.Reader, maxLine int) *LineReader {
	if maxLine <= 0 {
		maxLine = MaxLineSize
	}
	return &LineReader{reader: bufio.NewReaderSize(r, 64*1024), maxLine: maxLine}
}

// Next returns the next non-blank line.
//
// Errors:
//   - io.EOF: stream ended cleanly (a final unterminated line is still returned first)
//   - *FrameError with Kind=FrameErrorTooLarge: line exceeds the limit; it is
//     discarded and the next call resumes at the following line
func (l *LineReader) Next() (Frame, error) {
	for {
		line, err := l.readLine()
		if err != nil && len(line) == 0 {
			return Frame{}, err
		}
		line = bytes.TrimRight(line, "\r")
		if len(bytes.TrimSpace(line)) == 0 {
			if err != nil {
				return Frame{}, err
			}
			continue
		}
		return Frame{Raw: line, Valid: json.Valid(line)}, nil
	}
}

func (l *LineReader) readLine() ([]byte, error) {
	var buf []byte
	for {
		chunk, err := l.reader.ReadSlice('\n')
		if len(buf)+len(chunk) > l.maxLine+1 {
			l.discardLine(err)
			return nil, &FrameError{
				Kind: FrameErrorTooLarge,
				Msg:  fmt.Sprintf("line exceeds maximum %d bytes", l.maxLine),
			}
		}
		buf = append(buf, chunk...)
		switch {
		case err == nil:
			return buf[:len(buf)-1], nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		default:
			return buf, err
		}
	}
}

// discardLine skips the remainder of an oversized line.
func (l *LineReader) discardLine(err error) {
	for errors.Is(err, bufio.ErrBufferFull) {
		_, err = l.reader.ReadSlice('\n')
	}
}

// Decode unmarshals a frame into v.
func Decode(f Frame, v any) error {
	if !f.Valid {
		return &FrameError{Kind: FrameErrorDecode, Msg: "line is not valid JSON"}
	}
	if err := json.Unmarshal(f.Raw, v); err != nil {
		return &FrameError{Kind: FrameErrorDecode, Msg: "failed to decode line", Err: err}
	}
	return nil
}

// LineWriter writes one JSON message per line. Safe for concurrent use.
type LineWriter struct {
	w *iox.SyncWriter
}

// NewLineWriter creates a writer.
func NewLineWriter(w io.Writer) *LineWriter {
	return &LineWriter{w: iox.NewSyncWriter(w)}
}

// WriteJSON encodes v and writes it as one line.
func (w *LineWriter) WriteJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return &FrameError{Kind: FrameErrorEncode, Msg: "failed to encode message", Err: err}
	}
	return w.w.WriteLine(data)
}

// WriteRaw validates raw as JSON, compacts it onto one line and writes it.
func (w *LineWriter) WriteRaw(raw []byte) error {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return &FrameError{Kind: FrameErrorEncode, Msg: "message is not valid JSON", Err: err}
	}
	return w.w.WriteLine(buf.Bytes())
}
