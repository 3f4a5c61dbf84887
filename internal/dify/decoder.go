package dify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	dataPrefix  = "data:"
	doneMarker  = "[DONE]"
	readBufSize = 4096
)

// StreamError is an error event reported by the chat API inside the stream.
type StreamError struct {
	Status  int
	Code    string
	Message string
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("chat stream error (%d %s): %s", e.Status, e.Code, e.Message)
}

// record is one decoded `data:` payload.
type record struct {
	Event   string  `json:"event"`
	Answer  *string `json:"answer"`
	Status  int     `json:"status"`
	Code    string  `json:"code"`
	Message string  `json:"message"`
}

// Decoder turns a newline-delimited event stream into sanitized answer
// fragments. Chunk boundaries of the underlying reader do not matter:
// incomplete lines are held back until their newline arrives. It is not
// safe for concurrent use and cannot be restarted.
type Decoder struct {
	r       io.Reader
	buf     []byte
	pending []byte
	queue   []string
	done    bool
	err     error
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r, buf: make([]byte, readBufSize)}
}

// Next returns the next fragment. It returns io.EOF when the stream ended or
// the [DONE] sentinel was seen, and any other error exactly once.
func (d *Decoder) Next() (string, error) {
	for {
		if len(d.queue) > 0 {
			f := d.queue[0]
			d.queue = d.queue[1:]
			return f, nil
		}
		if d.err != nil {
			err := d.err
			d.err = io.EOF
			return "", err
		}
		if d.done {
			return "", io.EOF
		}
		d.fill()
	}
}

// fill reads one chunk and queues the fragments of every complete line.
func (d *Decoder) fill() {
	n, err := d.r.Read(d.buf)
	if n > 0 {
		d.pending = append(d.pending, d.buf[:n]...)
		for !d.done && d.err == nil {
			i := bytes.IndexByte(d.pending, '\n')
			if i < 0 {
				break
			}
			line := string(d.pending[:i])
			d.pending = d.pending[i+1:]
			d.processLine(line)
		}
	}

	if err == nil || d.done || d.err != nil {
		return
	}
	if err == io.EOF {
		if len(d.pending) > 0 {
			line := string(d.pending)
			d.pending = nil
			d.processLine(line)
		}
		d.done = true
		return
	}
	d.err = errors.Wrap(err, "read chat stream")
}

func (d *Decoder) processLine(line string) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, dataPrefix) {
		return
	}
	payload := strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))
	if payload == "" {
		return
	}
	if payload == doneMarker {
		d.done = true
		return
	}

	var rec record
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		log.Debug().Err(err).Str("payload", payload).Msg("Skipping malformed stream record")
		return
	}

	if rec.Event == "error" {
		d.err = &StreamError{Status: rec.Status, Code: rec.Code, Message: rec.Message}
		return
	}
	if rec.Answer == nil || *rec.Answer == "" {
		return
	}
	if text := Sanitize(*rec.Answer); text != "" {
		d.queue = append(d.queue, text)
	}
}
