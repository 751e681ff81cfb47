package core

import (
	"bytes"
	"encoding/json"
)

// Message is the frame exchanged on the signal channel in both directions:
// {"type": "<event>", "data": <any JSON>}.
type Message struct {
	Type EventKind       `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ParseMessage decodes an inbound frame. Data is kept as the exact bytes the
// client sent.
func ParseMessage(f Frame) (Message, error) {
	var m Message
	if err := json.Unmarshal(f, &m); err != nil {
		return Message{}, err
	}
	return m, nil
}

// Encode writes the frame by hand instead of json.Marshal, which would
// compact and HTML-escape Data and so alter relayed payloads.
func (m Message) Encode() (Frame, error) {
	kind, err := json.Marshal(string(m.Type))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Grow(len(kind) + len(m.Data) + 20)
	buf.WriteString(`{"type":`)
	buf.Write(kind)
	if len(m.Data) > 0 {
		buf.WriteString(`,"data":`)
		buf.Write(m.Data)
	}
	buf.WriteByte('}')
	return Frame(buf.Bytes()), nil
}
