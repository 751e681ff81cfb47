package orch

import "github.com/dkeye/CallRelay/internal/core"

var callRoutes = map[core.EventKind]route{
	core.EventCallInitiate: {
		out:      core.EventCallIncoming,
		requires: []string{"from", "signal"},
		build:    pick("from", "signal"),
	},
	core.EventCallAnswer: {
		out:      core.EventCallAccepted,
		requires: []string{"signal"},
		build:    field("signal"),
	},
	core.EventCallReject: {
		out:   core.EventCallRejected,
		build: sender,
	},
	core.EventCallTerminate: {
		out:   core.EventCallEnded,
		build: empty,
	},
}
