package core

import "encoding/json"

// Envelope is one routed message. Payload is the inbound data object as
// received; Fields indexes its top-level keys without decoding the values.
type Envelope struct {
	Kind    EventKind
	From    SessionID
	To      SessionID
	Fields  map[string]json.RawMessage
	Payload json.RawMessage
}
