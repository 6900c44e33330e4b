// Package queue defines message payloads exchanged over the message broker.
package queue

// ChatEvent is published once for every chat message the service answers.
// It carries the message, the canned reply and request metadata so a
// downstream consumer can audit traffic without calling the service.
type ChatEvent struct {
    Message    string `json:"message"`
    Reply      string `json:"reply"`
    RemoteIP   string `json:"remote_ip"`
    RequestID  string `json:"request_id,omitempty"`
    ReceivedAt string `json:"received_at"` // RFC 3339, UTC
}
