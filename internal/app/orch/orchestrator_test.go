package orch

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/dkeye/CallRelay/internal/app"
	"github.com/dkeye/CallRelay/internal/core"
	"github.com/dkeye/CallRelay/internal/domain"
)

func TestConnectSendsIdentity(t *testing.T) {
	o := newOrchestrator(Options{})
	a := connect(t, o, "A1")

	msgs := a.signal.messages(t)
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if msgs[0].Type != core.EventYourID || string(msgs[0].Data) != `"A1"` {
		t.Fatalf("got %s %s", msgs[0].Type, msgs[0].Data)
	}
	if _, ok := o.Registry.Lookup("A1"); !ok {
		t.Fatal("connection not registered")
	}
}

func TestCallScenario(t *testing.T) {
	o := newOrchestrator(Options{})
	a := connect(t, o, "A1")
	b := connect(t, o, "B1")
	a.signal.drain(t)
	b.signal.drain(t)

	if err := o.Dispatch("A1", msg(core.EventCallInitiate, `{"to":"B1","from":"A1","signal":"offerX"}`)); err != nil {
		t.Fatalf("call-initiate: %v", err)
	}
	got := b.signal.drain(t)
	if len(got) != 1 || got[0].Type != core.EventCallIncoming {
		t.Fatalf("B got %+v", got)
	}
	var incoming struct {
		From   string `json:"from"`
		Signal string `json:"signal"`
	}
	if err := json.Unmarshal(got[0].Data, &incoming); err != nil {
		t.Fatalf("decode call-incoming: %v", err)
	}
	if incoming.From != "A1" || incoming.Signal != "offerX" {
		t.Fatalf("call-incoming = %+v", incoming)
	}

	if err := o.Dispatch("B1", msg(core.EventCallAnswer, `{"to":"A1","signal":"answerY"}`)); err != nil {
		t.Fatalf("call-answer: %v", err)
	}
	got = a.signal.drain(t)
	if len(got) != 1 || got[0].Type != core.EventCallAccepted || string(got[0].Data) != `"answerY"` {
		t.Fatalf("A got %+v", got)
	}

	if err := o.Dispatch("A1", msg(core.EventCallTerminate, `{"to":"B1"}`)); err != nil {
		t.Fatalf("call-terminate: %v", err)
	}
	got = b.signal.drain(t)
	if len(got) != 1 || got[0].Type != core.EventCallEnded || len(got[0].Data) != 0 {
		t.Fatalf("B got %+v", got)
	}

	if n := len(a.signal.messages(t)); n != 0 {
		t.Fatalf("sender A received %d extra messages", n)
	}
}

func TestCallIncomingKeepsSignalBytes(t *testing.T) {
	o := newOrchestrator(Options{})
	connect(t, o, "A1")
	b := connect(t, o, "B1")
	b.signal.drain(t)

	signal := `{ "type" : "offer", "sdp" : "v=0\r\no=- 46117 2 IN IP4 127.0.0.1\r\na=<x&y>" }`
	data := `{"to":"B1","from":"A1","signal":` + signal + `}`
	if err := o.Dispatch("A1", msg(core.EventCallInitiate, data)); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	got := b.signal.drain(t)
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(got[0].Data, &fields); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(fields["signal"]) != signal {
		t.Fatalf("signal = %s\nwant     %s", fields["signal"], signal)
	}
	if _, ok := fields["to"]; ok {
		t.Fatal("call-incoming leaked the to field")
	}
}

func TestUnknownTargetIsDropped(t *testing.T) {
	o := newOrchestrator(Options{ForwardReject: true})
	a := connect(t, o, "A1")
	b := connect(t, o, "B1")
	a.signal.drain(t)
	b.signal.drain(t)

	events := []core.Message{
		msg(core.EventCallInitiate, `{"to":"ghost","from":"A1","signal":"offerX"}`),
		msg(core.EventCallAnswer, `{"to":"ghost","signal":"answerY"}`),
		msg(core.EventCallReject, `{"to":"ghost"}`),
		msg(core.EventCallTerminate, `{"to":"ghost"}`),
		msg(core.EventCandidateExchange, `{"to":"ghost","candidate":{}}`),
		msg(core.EventScreenShareStart, `{"to":"ghost","from":"A1"}`),
		msg(core.EventScreenShareStop, `{"to":"ghost","from":"A1"}`),
		msg(core.EventChatSend, `{"to":"ghost","from":"A1","text":"hi"}`),
		msg(core.EventFileSend, `{"to":"ghost","from":"A1","fileName":"a","fileType":"b","data":"c"}`),
	}
	for _, m := range events {
		err := o.Dispatch("A1", m)
		if !errors.Is(err, ErrUnknownTarget) {
			t.Fatalf("%s: err = %v, want ErrUnknownTarget", m.Type, err)
		}
	}
	if n := len(a.signal.messages(t)) + len(b.signal.messages(t)); n != 0 {
		t.Fatalf("%d messages delivered for an unknown target", n)
	}
}

func TestMalformedEnvelopes(t *testing.T) {
	o := newOrchestrator(Options{})
	a := connect(t, o, "A1")
	b := connect(t, o, "B1")
	a.signal.drain(t)
	b.signal.drain(t)

	cases := []struct {
		name string
		m    core.Message
		want error
	}{
		{"unknown event", msg("dance", `{"to":"B1"}`), ErrUnknownEvent},
		{"no data", msg(core.EventCallTerminate, ""), ErrMalformed},
		{"data not object", msg(core.EventCallTerminate, `"B1"`), ErrMalformed},
		{"null data", msg(core.EventCallTerminate, `null`), ErrMalformed},
		{"missing to", msg(core.EventCallTerminate, `{}`), ErrMalformed},
		{"to not string", msg(core.EventCallTerminate, `{"to":42}`), ErrMalformed},
		{"empty to", msg(core.EventCallTerminate, `{"to":""}`), ErrMalformed},
		{"initiate without signal", msg(core.EventCallInitiate, `{"to":"B1","from":"A1"}`), ErrMalformed},
		{"initiate without from", msg(core.EventCallInitiate, `{"to":"B1","signal":"x"}`), ErrMalformed},
		{"answer without signal", msg(core.EventCallAnswer, `{"to":"B1"}`), ErrMalformed},
		{"candidate without candidate", msg(core.EventCandidateExchange, `{"to":"B1"}`), ErrMalformed},
		{"reject disabled", msg(core.EventCallReject, `{"to":"B1"}`), ErrUnknownEvent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := o.Dispatch("A1", tc.m); !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
	if n := len(b.signal.messages(t)); n != 0 {
		t.Fatalf("%d messages delivered for malformed input", n)
	}
}

func TestChatAndFileBodiesAreNotValidated(t *testing.T) {
	o := newOrchestrator(Options{})
	connect(t, o, "A1")
	b := connect(t, o, "B1")
	b.signal.drain(t)

	cases := []struct {
		name string
		in   core.EventKind
		out  core.EventKind
		data string
	}{
		{"chat without text", core.EventChatSend, core.EventChatDeliver, `{"from":"A1","to":"B1","message":"hi"}`},
		{"chat with only to", core.EventChatSend, core.EventChatDeliver, `{"to":"B1"}`},
		{"file without fileType", core.EventFileSend, core.EventFileDeliver, `{"from":"A1","to":"B1","fileName":"a.txt","data":"aGk="}`},
		{"file without data", core.EventFileSend, core.EventFileDeliver, `{"to":"B1","from":"A1","fileName":"a","fileType":"b"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := o.Dispatch("A1", msg(tc.in, tc.data)); err != nil {
				t.Fatalf("dispatch: %v", err)
			}
			got := b.signal.drain(t)
			if len(got) != 1 || got[0].Type != tc.out || string(got[0].Data) != tc.data {
				t.Fatalf("got %+v", got)
			}
		})
	}
}

func TestReplacedConnectionIsNotRoutable(t *testing.T) {
	o := newOrchestrator(Options{})
	connect(t, o, "A1")
	oldB := connect(t, o, "B1")
	newB := connect(t, o, "B1")
	oldB.signal.drain(t)
	newB.signal.drain(t)

	if err := o.Dispatch("A1", msg(core.EventCallTerminate, `{"to":"B1"}`)); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if n := len(oldB.signal.messages(t)); n != 0 {
		t.Fatalf("replaced connection got %d messages", n)
	}
	if n := len(newB.signal.messages(t)); n != 1 {
		t.Fatalf("current connection got %d messages, want 1", n)
	}

	// The old socket closing later must leave the new registration alone.
	if o.Disconnect(oldB.sess) {
		t.Fatal("disconnect of replaced connection reported a release")
	}
	if got, ok := o.Registry.Lookup("B1"); !ok || got != newB.sess {
		t.Fatal("disconnect of replaced connection evicted the current one")
	}
}

func TestDisconnectRemovesIdentity(t *testing.T) {
	o := newOrchestrator(Options{})
	a := connect(t, o, "A1")
	b := connect(t, o, "B1")
	a.signal.drain(t)
	b.signal.drain(t)

	if !o.Disconnect(b.sess) {
		t.Fatal("disconnect of current connection reported no release")
	}
	if _, ok := o.Registry.Lookup("B1"); ok {
		t.Fatal("identity still registered after disconnect")
	}
	err := o.Dispatch("A1", msg(core.EventCallInitiate, `{"to":"B1","from":"A1","signal":"offerX"}`))
	if !errors.Is(err, ErrUnknownTarget) {
		t.Fatalf("err = %v, want ErrUnknownTarget", err)
	}
	if n := len(b.signal.messages(t)); n != 0 {
		t.Fatalf("disconnected connection got %d messages", n)
	}
}

func TestBackpressureDrop(t *testing.T) {
	o := New(app.NewRegistry(), app.DropPolicy{}, Options{})
	connect(t, o, "A1")
	sig := &fakeSignal{limit: 1}
	slow := core.NewSession(domain.NewConnection("B1", ""), sig)
	canceled := false
	if err := o.Connect(slow, func() { canceled = true }); err != nil {
		t.Fatalf("connect: %v", err)
	}

	err := o.Dispatch("A1", msg(core.EventCallTerminate, `{"to":"B1"}`))
	if !errors.Is(err, core.ErrBackpressure) {
		t.Fatalf("err = %v, want ErrBackpressure", err)
	}
	if canceled {
		t.Fatal("drop policy canceled the slow session")
	}
	if _, ok := o.Registry.Lookup("B1"); !ok {
		t.Fatal("slow session was removed")
	}
}

func TestBackpressureKick(t *testing.T) {
	o := New(app.NewRegistry(), app.KickPolicy{}, Options{})
	connect(t, o, "A1")
	sig := &fakeSignal{limit: 1}
	slow := core.NewSession(domain.NewConnection("B1", ""), sig)
	canceled := false
	if err := o.Connect(slow, func() { canceled = true }); err != nil {
		t.Fatalf("connect: %v", err)
	}

	_ = o.Dispatch("A1", msg(core.EventCallTerminate, `{"to":"B1"}`))
	if !canceled {
		t.Fatal("kick policy did not cancel the slow session")
	}
}

func TestNewDefaultsToDropPolicy(t *testing.T) {
	o := New(app.NewRegistry(), nil, Options{})
	if _, ok := o.Policy.(app.DropPolicy); !ok {
		t.Fatalf("policy = %T", o.Policy)
	}
}

func TestRoutes(t *testing.T) {
	o := newOrchestrator(Options{})
	if !o.Routes(core.EventCallInitiate) || !o.Routes(core.EventFileSend) {
		t.Fatal("baseline routes missing")
	}
	if o.Routes(core.EventCallReject) {
		t.Fatal("call-reject routed without ForwardReject")
	}
	if !newOrchestrator(Options{ForwardReject: true}).Routes(core.EventCallReject) {
		t.Fatal("call-reject not routed with ForwardReject")
	}
}
