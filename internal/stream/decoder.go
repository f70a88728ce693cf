// Package stream decodes the model gateway's event-stream wire format
// into content deltas and tool-call fragments, independent of chat
// semantics.
package stream

import (
	"bytes"
	"encoding/json"
	"strings"
)

const (
	dataPrefix   = "data: "
	doneSentinel = "[DONE]"
)

// ToolCallFragment is one partial tool invocation carried by a frame.
// Name arrives once; Arguments is a fragment of the eventual JSON
// argument text and must be concatenated in arrival order.
type ToolCallFragment struct {
	Index     int
	Name      string
	Arguments string
}

// Event is the decoded result of one complete frame.
type Event struct {
	Content   string
	ToolCalls []ToolCallFragment
	Done      bool
}

// Decoder turns raw byte chunks into Events. Feed may be called with
// arbitrary chunk boundaries, including splits inside a multi-byte
// character or inside a frame's JSON payload; undelivered bytes stay
// buffered until the next call. After the end sentinel the decoder is
// terminal and further input is ignored.
type Decoder struct {
	buf  []byte
	done bool
}

func NewDecoder() *Decoder { return &Decoder{} }

// Done reports whether the end sentinel has been observed.
func (d *Decoder) Done() bool { return d.done }

type frame struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int `json:"index"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
	} `json:"choices"`
}

// Feed appends p to the internal buffer and drains every complete line.
// A payload that fails to parse is assumed to be a partially received
// frame: the line is kept in the buffer and retried once more bytes
// arrive. Events already decoded in this call are always returned.
func (d *Decoder) Feed(p []byte) []Event {
	if d.done {
		return nil
	}
	d.buf = append(d.buf, p...)

	var events []Event
	for {
		nl := bytes.IndexByte(d.buf, '\n')
		if nl < 0 {
			return events
		}
		line := string(d.buf[:nl])
		line = strings.TrimSuffix(line, "\r")

		if strings.HasPrefix(line, ":") || strings.TrimSpace(line) == "" {
			d.buf = d.buf[nl+1:]
			continue
		}
		if !strings.HasPrefix(line, dataPrefix) {
			d.buf = d.buf[nl+1:]
			continue
		}

		payload := strings.TrimSpace(line[len(dataPrefix):])
		if payload == doneSentinel {
			d.done = true
			d.buf = nil
			events = append(events, Event{Done: true})
			return events
		}

		var f frame
		if err := json.Unmarshal([]byte(payload), &f); err != nil {
			// Incomplete frame: leave the line buffered and retry
			// on the next chunk. Dropping it here would lose data.
			return events
		}
		d.buf = d.buf[nl+1:]

		ev := Event{}
		if len(f.Choices) > 0 {
			delta := f.Choices[0].Delta
			ev.Content = delta.Content
			for _, tc := range delta.ToolCalls {
				ev.ToolCalls = append(ev.ToolCalls, ToolCallFragment{
					Index:     tc.Index,
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				})
			}
		}
		if ev.Content != "" || len(ev.ToolCalls) > 0 {
			events = append(events, ev)
		}
	}
}
