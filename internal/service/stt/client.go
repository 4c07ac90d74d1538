// Package stt defines the contract between the session manager and the
// streaming speech-to-text backends.
package stt

import (
	"context"
	"errors"
	"time"

	"ktv-subtitle-service/internal/service/postprocess"
)

var (
	// ErrUnknownEngine is returned by Registry.Get for an unregistered engine.
	ErrUnknownEngine = errors.New("unknown stt engine")

	// ErrBackendUnreachable wraps connection failures (refused, reset, handshake).
	ErrBackendUnreachable = errors.New("stt backend unreachable")

	// ErrMalformedMessage wraps backend messages that could not be decoded.
	// Sessions log and skip them.
	ErrMalformedMessage = errors.New("malformed backend message")

	// ErrConnClosed is returned by writes after Close.
	ErrConnClosed = errors.New("backend connection closed")
)

// Candidate is one raw subtitle candidate decoded from a backend message.
// Times are backend-local seconds; Normalize applies the session offset.
type Candidate struct {
	Start   float64
	End     float64
	Text    string
	Speaker string
	Final   bool
	Scores  *postprocess.Scores
}

// Options describe one session as seen by a backend.
type Options struct {
	SampleRate  int
	Language    string
	Diarization bool
	// RealTime paces sends at roughly playback speed (sync mode).
	RealTime bool
	// Previews asks backends that support it to emit non-final candidates.
	Previews bool
	// ConnectTimeout bounds the connection handshake when > 0.
	ConnectTimeout time.Duration
}

// Pacing is how the session feeds audio to a backend.
type Pacing struct {
	ChunkSize int
	// Prefetch chunks are sent with PrefetchDelay before Delay applies.
	Prefetch       int
	PrefetchDelay  time.Duration
	Delay          time.Duration
	StripWAVHeader bool
}

// DelayAfter returns the pause after the n-th chunk (1-based).
func (p Pacing) DelayAfter(n int) time.Duration {
	if n <= p.Prefetch {
		return p.PrefetchDelay
	}
	return p.Delay
}

// Client opens streaming connections to one backend.
type Client interface {
	Name() string
	Pacing(opts Options) Pacing
	Open(ctx context.Context, opts Options) (Conn, error)
}

// Conn is one open backend connection. SendAudio and CloseSend are called
// from a single sending goroutine and Receive from a single receiving
// goroutine; Close may be called from anywhere.
type Conn interface {
	SendAudio(ctx context.Context, chunk []byte) error
	// CloseSend writes the backend's end-of-stream marker.
	CloseSend(ctx context.Context) error
	// Receive decodes the next backend message into zero or more candidates.
	// It returns io.EOF once the backend signals completion; candidates
	// returned together with io.EOF are still delivered.
	Receive(ctx context.Context) ([]Candidate, error)
	Close() error
}
