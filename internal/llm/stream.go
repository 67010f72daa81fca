package llm

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

const maxLineSize = 1024 * 1024

// ErrIncompleteStream is returned when the body ends before any content,
// finish reason or [DONE] marker arrived.
var ErrIncompleteStream = errors.New("stream ended without a completion")

// StreamParser handles parsing of Server-Sent Events (SSE) streams. A body
// that is a plain JSON completion instead of an event stream is also accepted.
type StreamParser struct {
	scanner  *bufio.Scanner
	sawEvent bool
	progress bool
	plain    strings.Builder
}

// NewStreamParser creates a new stream parser
func NewStreamParser(reader io.Reader) *StreamParser {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &StreamParser{scanner: scanner}
}

// StreamChunk represents a single chunk from the stream
type StreamChunk struct {
	Content      string
	FinishReason string
	Done         bool
}

// Next reads the next chunk from the stream. An error object sent by the
// API is returned as an *ErrorBody.
func (p *StreamParser) Next() (*StreamChunk, error) {
	for p.scanner.Scan() {
		line := p.scanner.Text()

		if !strings.HasPrefix(line, "data:") {
			if !p.sawEvent {
				p.plain.WriteString(line)
				p.plain.WriteByte('\n')
			}
			continue
		}
		p.sawEvent = true

		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))

		if data == "[DONE]" {
			return &StreamChunk{Done: true}, nil
		}

		var resp Response
		if err := json.Unmarshal([]byte(data), &resp); err != nil {
			// Skip invalid JSON lines
			continue
		}
		if resp.Error != nil {
			return nil, resp.Error
		}

		if len(resp.Choices) > 0 {
			choice := resp.Choices[0]
			if choice.Delta.Content != "" || choice.FinishReason != "" {
				p.progress = true
			}
			return &StreamChunk{
				Content:      choice.Delta.Content,
				FinishReason: choice.FinishReason,
				Done:         choice.FinishReason != "",
			}, nil
		}
	}

	if err := p.scanner.Err(); err != nil {
		return nil, err
	}

	if p.sawEvent {
		// Content without a terminator is kept; a stream with nothing is not.
		if !p.progress {
			return nil, ErrIncompleteStream
		}
		return &StreamChunk{Done: true}, nil
	}

	// Not an event stream; fall back to a non-streamed completion body
	var resp Response
	if err := json.Unmarshal([]byte(p.plain.String()), &resp); err == nil {
		if resp.Error != nil {
			return nil, resp.Error
		}
		if len(resp.Choices) > 0 {
			return &StreamChunk{Content: resp.Choices[0].Message.Content, Done: true}, nil
		}
	}
	return nil, ErrIncompleteStream
}
