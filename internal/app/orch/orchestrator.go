package orch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/CallRelay/internal/app"
	"github.com/dkeye/CallRelay/internal/core"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnknownEvent  = errors.New("unknown event")
	ErrMalformed     = errors.New("malformed envelope")
	ErrUnknownTarget = errors.New("unknown target")
)

type Options struct {
	// ForwardReject enables the call-reject -> call-rejected route.
	ForwardReject bool
}

// Orchestrator owns the session lifecycle and the route table. It keeps no
// call state: every event is forwarded on its own.
type Orchestrator struct {
	Registry *app.Registry
	Policy   app.Policy

	routes map[core.EventKind]route
}

func New(reg *app.Registry, policy app.Policy, opts Options) *Orchestrator {
	if policy == nil {
		policy = app.DropPolicy{}
	}
	routes := make(map[core.EventKind]route, len(callRoutes)+len(auxRoutes))
	for kind, rt := range callRoutes {
		if kind == core.EventCallReject && !opts.ForwardReject {
			continue
		}
		routes[kind] = rt
	}
	for kind, rt := range auxRoutes {
		routes[kind] = rt
	}
	return &Orchestrator{
		Registry: reg,
		Policy:   policy,
		routes:   routes,
	}
}

// Connect registers sess under its identity and tells the client who it is.
func (o *Orchestrator) Connect(sess *core.Session, cancel context.CancelFunc) error {
	o.Registry.Register(sess, cancel)

	id, err := json.Marshal(string(sess.ID()))
	if err != nil {
		return fmt.Errorf("encode identity: %w", err)
	}
	if err := o.send(sess, core.Message{Type: core.EventYourID, Data: id}); err != nil {
		return fmt.Errorf("send %s: %w", core.EventYourID, err)
	}
	log.Info().Str("module", "orch").Str("sid", string(sess.ID())).Msg("identity assigned")
	return nil
}

// Disconnect must run before the transport is closed so nothing is routed to
// a dead channel. It returns false when sess had already been replaced under
// its identity, in which case per-identity state belongs to the successor.
func (o *Orchestrator) Disconnect(sess *core.Session) bool {
	if !o.Registry.Release(sess.ID(), sess) {
		log.Debug().Str("module", "orch").Str("sid", string(sess.ID())).Msg("disconnect of replaced session")
		return false
	}
	return true
}

// Routes reports whether kind has a route.
func (o *Orchestrator) Routes(kind core.EventKind) bool {
	_, ok := o.routes[kind]
	return ok
}

// Dispatch forwards one inbound message from sid. The sender never hears
// about failures; the returned error is for the transport's log only.
func (o *Orchestrator) Dispatch(sid core.SessionID, m core.Message) error {
	rt, ok := o.routes[m.Type]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEvent, m.Type)
	}

	env, err := parseEnvelope(sid, m)
	if err != nil {
		return err
	}
	for _, key := range rt.requires {
		if _, ok := env.Fields[key]; !ok {
			return fmt.Errorf("%w: %s missing %q", ErrMalformed, m.Type, key)
		}
	}

	target, ok := o.Registry.Lookup(env.To)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTarget, env.To)
	}

	out := core.Message{Type: rt.out, Data: rt.build(env)}
	if err := o.send(target, out); err != nil {
		return fmt.Errorf("forward %s to %s: %w", rt.out, env.To, err)
	}
	log.Debug().
		Str("module", "orch").
		Str("sid", string(sid)).
		Str("to", string(env.To)).
		Str("in", string(m.Type)).
		Str("out", string(rt.out)).
		Msg("relayed")
	return nil
}

func (o *Orchestrator) send(target *core.Session, m core.Message) error {
	frame, err := m.Encode()
	if err != nil {
		return err
	}
	err = target.Signal().TrySend(frame)
	if errors.Is(err, core.ErrBackpressure) {
		switch o.Policy.OnBackPressure(target) {
		case app.KickMember:
			log.Warn().Str("module", "orch").Str("sid", string(target.ID())).Msg("kicking slow session")
			o.Registry.Cancel(target.ID())
		case app.DropFrame:
			log.Warn().Str("module", "orch").Str("sid", string(target.ID())).Str("type", string(m.Type)).Msg("dropping frame for slow session")
		}
	}
	return err
}
