// Package domain contains entity without logic, just meta-data
package domain

import "time"

// Connection describes one live client channel.
// No transport or lifecycle logic here.
type Connection struct {
	ID          string    `json:"id"`
	RemoteAddr  string    `json:"remote_addr,omitempty"`
	ConnectedAt time.Time `json:"connected_at"`
}

// NewConnection stamps the connect time so adapters don't build raw literals.
func NewConnection(id, remoteAddr string) *Connection {
	return &Connection{
		ID:          id,
		RemoteAddr:  remoteAddr,
		ConnectedAt: time.Now(),
	}
}
