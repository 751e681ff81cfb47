package orch

import "github.com/dkeye/CallRelay/internal/core"

var auxRoutes = map[core.EventKind]route{
	core.EventCandidateExchange: {
		out:      core.EventCandidateReceived,
		requires: []string{"candidate"},
		build:    field("candidate"),
	},
	core.EventScreenShareStart: {
		out:   core.EventScreenShareStart,
		build: verbatim,
	},
	core.EventScreenShareStop: {
		out:   core.EventScreenShareStop,
		build: verbatim,
	},
	// Chat and file bodies are opaque; only "to" is read.
	core.EventChatSend: {
		out:   core.EventChatDeliver,
		build: verbatim,
	},
	core.EventFileSend: {
		out:   core.EventFileDeliver,
		build: verbatim,
	},
}
