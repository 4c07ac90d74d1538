// Package models defines the subtitle event model shared by the session
// manager, the HTTP layer, the archive and the Kafka publisher.
package models

import "time"

// Subtitle is one emitted subtitle. Times are seconds from the start of the
// overall input stream.
type Subtitle struct {
	ID        int64   `json:"id"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	Text      string  `json:"text"`
	Speaker   *string `json:"speaker"`
	IsFinal   bool    `json:"is_final"`
	// Timestamp is the wall-clock emission time in Unix seconds.
	Timestamp float64 `json:"timestamp"`
}

// SpeakerLabel returns the speaker or "" when none was attributed.
func (s Subtitle) SpeakerLabel() string {
	if s.Speaker == nil {
		return ""
	}
	return *s.Speaker
}

// Duration returns EndTime - StartTime.
func (s Subtitle) Duration() float64 {
	return s.EndTime - s.StartTime
}

// StringPtr returns nil for "" and a pointer to s otherwise.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Event types pushed to streaming clients.
const (
	EventInit     = "init"
	EventSubtitle = "subtitle"
	EventError    = "error"
	EventComplete = "complete"
	EventPong     = "pong"
)

// ErrorInfo describes a terminal session failure.
type ErrorInfo struct {
	// Kind is unreachable, processing or timeout.
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Event is the envelope written to SSE and WebSocket clients.
type Event struct {
	Type      string     `json:"type"`
	SessionID string     `json:"session_id,omitempty"`
	Data      *Subtitle  `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Message   string     `json:"message,omitempty"`
}

// SubtitleEvent wraps sub in a subtitle event.
func SubtitleEvent(sessionID string, sub Subtitle) Event {
	return Event{Type: EventSubtitle, SessionID: sessionID, Data: &sub}
}

// ErrorEvent builds a terminal error event.
func ErrorEvent(sessionID, kind, message string) Event {
	return Event{Type: EventError, SessionID: sessionID, Error: &ErrorInfo{Kind: kind, Message: message}}
}

// Kafka event types.
const (
	EventTypeSubtitleFinal   = "subtitle.final"
	EventTypeSubtitlePreview = "subtitle.preview"
)

// SubtitleFinal is the Kafka payload for a committed subtitle.
type SubtitleFinal struct {
	EventType string  `json:"eventType"`
	SessionID string  `json:"sessionId"`
	Engine    string  `json:"engine"`
	Timestamp int64   `json:"timestamp"`
	ID        int64   `json:"id"`
	StartTime float64 `json:"startTime"`
	EndTime   float64 `json:"endTime"`
	Text      string  `json:"text"`
	Speaker   string  `json:"speaker,omitempty"`
}

// SubtitlePreview is the Kafka payload for an uncommitted transcript tail.
type SubtitlePreview struct {
	EventType string  `json:"eventType"`
	SessionID string  `json:"sessionId"`
	Engine    string  `json:"engine"`
	Timestamp int64   `json:"timestamp"`
	StartTime float64 `json:"startTime"`
	Text      string  `json:"text"`
}

// NewSubtitleFinal builds the Kafka payload for sub.
func NewSubtitleFinal(sessionID, engine string, sub Subtitle) SubtitleFinal {
	return SubtitleFinal{
		EventType: EventTypeSubtitleFinal,
		SessionID: sessionID,
		Engine:    engine,
		Timestamp: time.Now().UnixMilli(),
		ID:        sub.ID,
		StartTime: sub.StartTime,
		EndTime:   sub.EndTime,
		Text:      sub.Text,
		Speaker:   sub.SpeakerLabel(),
	}
}

// NewSubtitlePreview builds the Kafka payload for a preview subtitle.
func NewSubtitlePreview(sessionID, engine string, sub Subtitle) SubtitlePreview {
	return SubtitlePreview{
		EventType: EventTypeSubtitlePreview,
		SessionID: sessionID,
		Engine:    engine,
		Timestamp: time.Now().UnixMilli(),
		StartTime: sub.StartTime,
		Text:      sub.Text,
	}
}
