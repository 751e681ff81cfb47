package core

// EventKind names a message on the signal channel.
type EventKind string

// Server to client.
const (
	EventYourID            EventKind = "yourID"
	EventCallIncoming      EventKind = "call-incoming"
	EventCallAccepted      EventKind = "call-accepted"
	EventCallRejected      EventKind = "call-rejected"
	EventCallEnded         EventKind = "call-ended"
	EventCandidateReceived EventKind = "candidate-received"
	EventChatDeliver       EventKind = "chat-deliver"
	EventFileDeliver       EventKind = "file-deliver"
	EventPong              EventKind = "pong"
)

// Client to server.
const (
	EventCallInitiate      EventKind = "call-initiate"
	EventCallAnswer        EventKind = "call-answer"
	EventCallReject        EventKind = "call-reject"
	EventCallTerminate     EventKind = "call-terminate"
	EventCandidateExchange EventKind = "candidate-exchange"
	EventChatSend          EventKind = "chat-send"
	EventFileSend          EventKind = "file-send"
	EventPing              EventKind = "ping"
)

// Screen-share notices keep their name in both directions.
const (
	EventScreenShareStart EventKind = "screen-share-start"
	EventScreenShareStop  EventKind = "screen-share-stop"
)
