package protocol

import (
	"bytes"
	"errors"
	"io"
	"strings"
)

const (
	readSize = 4096

	// maxBlockSize bounds one buffered event block.
	maxBlockSize = 1 << 20
)

// ErrBlockTooLarge is returned when an event block exceeds maxBlockSize.
var ErrBlockTooLarge = errors.New("sse: event block too large")

// Block is one raw server-sent event.
type Block struct {
	Event string
	Data  string
	ID    string
}

// BlockReader splits a byte stream into SSE blocks on blank lines.
// Bytes are buffered until a whole block is present, so a multi-byte
// character or a payload split across reads is reassembled before parsing.
// Lines end with LF, CRLF or a lone CR.
type BlockReader struct {
	r   io.Reader
	buf []byte
	eof bool

	// pendingCR holds a CR that ended a read until the next byte shows
	// whether it starts a CRLF pair.
	pendingCR bool
}

// NewBlockReader creates a BlockReader over r.
func NewBlockReader(r io.Reader) *BlockReader {
	return &BlockReader{r: r}
}

// Next returns the next block that has at least one field.
// Comment-only blocks are skipped. It returns io.EOF at end of input.
func (br *BlockReader) Next() (Block, error) {
	for {
		if idx := bytes.Index(br.buf, []byte("\n\n")); idx >= 0 {
			raw := br.buf[:idx]
			br.buf = br.buf[idx+2:]

			if block, ok := parseBlock(raw); ok {
				return block, nil
			}
			continue
		}

		if br.eof {
			raw := br.buf
			br.buf = nil
			if block, ok := parseBlock(raw); ok {
				return block, nil
			}
			return Block{}, io.EOF
		}

		if len(br.buf) > maxBlockSize {
			return Block{}, ErrBlockTooLarge
		}

		if err := br.fill(); err != nil {
			return Block{}, err
		}
	}
}

func (br *BlockReader) fill() error {
	chunk := make([]byte, readSize)
	n, err := br.r.Read(chunk)
	data := chunk[:n]
	if br.pendingCR {
		data = append([]byte{'\r'}, data...)
		br.pendingCR = false
	}

	eof := errors.Is(err, io.EOF)
	if !eof && len(data) > 0 && data[len(data)-1] == '\r' {
		data = data[:len(data)-1]
		br.pendingCR = true
	}
	br.buf = append(br.buf, normalizeNewlines(data)...)

	switch {
	case eof:
		br.eof = true
		return nil
	case err != nil:
		return err
	default:
		return nil
	}
}

func normalizeNewlines(data []byte) []byte {
	if bytes.IndexByte(data, '\r') < 0 {
		return data
	}
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	return bytes.ReplaceAll(data, []byte("\r"), []byte("\n"))
}

func parseBlock(raw []byte) (Block, bool) {
	var block Block
	var data []string
	seen := false

	for _, line := range strings.Split(string(raw), "\n") {
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "event":
			block.Event = value
			seen = true
		case "data":
			data = append(data, value)
			seen = true
		case "id":
			block.ID = value
			seen = true
		}
	}

	block.Data = strings.Join(data, "\n")
	return block, seen
}
