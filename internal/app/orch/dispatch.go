package orch

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/dkeye/CallRelay/internal/core"
)

// route is one row of the relay table: where an inbound event goes and what
// the target receives.
type route struct {
	out      core.EventKind
	requires []string
	build    func(env core.Envelope) json.RawMessage
}

// parseEnvelope reads only the routing fields. Everything else in data stays
// raw and is never inspected.
func parseEnvelope(sid core.SessionID, m core.Message) (core.Envelope, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(m.Data, &fields); err != nil || fields == nil {
		return core.Envelope{}, fmt.Errorf("%w: %s data is not an object", ErrMalformed, m.Type)
	}
	rawTo, ok := fields["to"]
	if !ok {
		return core.Envelope{}, fmt.Errorf("%w: %s missing \"to\"", ErrMalformed, m.Type)
	}
	var to string
	if err := json.Unmarshal(rawTo, &to); err != nil || to == "" {
		return core.Envelope{}, fmt.Errorf("%w: %s \"to\" is not an identity", ErrMalformed, m.Type)
	}
	return core.Envelope{
		Kind:    m.Type,
		From:    sid,
		To:      core.SessionID(to),
		Fields:  fields,
		Payload: m.Data,
	}, nil
}

// verbatim forwards the inbound data unchanged.
func verbatim(env core.Envelope) json.RawMessage { return env.Payload }

// empty forwards no data at all.
func empty(core.Envelope) json.RawMessage { return nil }

// field forwards the raw value of a single key.
func field(key string) func(core.Envelope) json.RawMessage {
	return func(env core.Envelope) json.RawMessage { return env.Fields[key] }
}

// pick rebuilds an object from the given keys, keeping each raw value.
func pick(keys ...string) func(core.Envelope) json.RawMessage {
	return func(env core.Envelope) json.RawMessage {
		var buf bytes.Buffer
		buf.WriteByte('{')
		n := 0
		for _, key := range keys {
			v, ok := env.Fields[key]
			if !ok {
				continue
			}
			if n > 0 {
				buf.WriteByte(',')
			}
			k, _ := json.Marshal(key)
			buf.Write(k)
			buf.WriteByte(':')
			buf.Write(v)
			n++
		}
		buf.WriteByte('}')
		return buf.Bytes()
	}
}

// sender forwards {"from": <identity of the sending connection>}.
func sender(env core.Envelope) json.RawMessage {
	from, _ := json.Marshal(string(env.From))
	return json.RawMessage(`{"from":` + string(from) + `}`)
}
