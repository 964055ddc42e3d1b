package client

import (
	"bufio"
	"bytes"
	"io"
)

// Stream reads server-sent events from an open subscription. Comment frames
// (the server's keep-alive pings) are consumed and never surface to the
// caller.
type Stream struct {
	rc io.ReadCloser
	r  *bufio.Reader
}

// NewStream wraps a raw SSE body.
func NewStream(rc io.ReadCloser) *Stream {
	return &Stream{rc: rc, r: bufio.NewReader(rc)}
}

// Next blocks until the next data frame arrives and returns its payload. It
// returns io.EOF (or the transport error) when the stream ends.
func (s *Stream) Next() ([]byte, error) {
	var data []byte
	for {
		line, err := s.r.ReadBytes('\n')
		if err != nil {
			return nil, err
		}
		line = bytes.TrimRight(line, "\r\n")
		switch {
		case len(line) == 0:
			if len(data) > 0 {
				return data, nil
			}
		case line[0] == ':':
			// keep-alive comment
		case bytes.HasPrefix(line, []byte("data:")):
			chunk := bytes.TrimPrefix(line, []byte("data:"))
			chunk = bytes.TrimPrefix(chunk, []byte(" "))
			if len(data) > 0 {
				data = append(data, '\n')
			}
			data = append(data, chunk...)
		}
	}
}

// Close terminates the subscription.
func (s *Stream) Close() error {
	return s.rc.Close()
}
