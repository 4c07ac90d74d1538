// Package livekit speaks the WhisperLiveKit /asr protocol. The server sends
// snapshots of all committed lines plus an uncommitted buffer; only lines
// beyond those already seen become candidates.
package livekit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"ktv-subtitle-service/internal/observability/logging"
	"ktv-subtitle-service/internal/service/stt"
)

const (
	Name = "livekit"

	asrPath       = "/asr"
	greetingWait  = 5 * time.Second
	chunkDuration = 100 * time.Millisecond
	realTimeDelay = 100 * time.Millisecond
	fastDelay     = 10 * time.Millisecond

	typeConfig      = "config"
	typeReadyToStop = "ready_to_stop"
)

type Config struct {
	URL           string
	SpeakerPrefix string
}

type Client struct {
	cfg Config
}

func New(cfg Config) *Client {
	if cfg.SpeakerPrefix == "" {
		cfg.SpeakerPrefix = "화자"
	}
	return &Client{cfg: cfg}
}

func (c *Client) Name() string { return Name }

// Pacing sends 100ms chunks, at playback speed in real-time mode.
func (c *Client) Pacing(opts stt.Options) stt.Pacing {
	rate := opts.SampleRate
	if rate <= 0 {
		rate = 16000
	}
	p := stt.Pacing{
		ChunkSize: rate * 2 * int(chunkDuration/time.Millisecond) / 1000,
		Delay:     fastDelay,
	}
	if opts.RealTime {
		p.Delay = realTimeDelay
	}
	return p
}

func (c *Client) Open(ctx context.Context, opts stt.Options) (stt.Conn, error) {
	u, err := stt.BackendURL(c.cfg.URL, asrPath)
	if err != nil {
		return nil, err
	}
	ws, err := stt.DialWS(ctx, u.String(), nil, opts.ConnectTimeout)
	if err != nil {
		return nil, err
	}

	cn := &conn{
		ws:         ws,
		prefix:     c.cfg.SpeakerPrefix,
		sampleRate: opts.SampleRate,
		previews:   opts.Previews,
		logger:     logging.WithComponent("stt.livekit"),
	}
	if err := cn.awaitGreeting(ctx); err != nil {
		_ = ws.Close()
		return nil, err
	}
	return cn, nil
}

type conn struct {
	ws         *stt.WSConn
	prefix     string
	sampleRate int
	previews   bool
	logger     zerolog.Logger

	sent atomic.Int64

	// Receive side only.
	pending   *stt.Message
	seenLines int
}

// awaitGreeting consumes the optional config message the server sends on
// connect. Anything else is kept for the first Receive.
func (c *conn) awaitGreeting(ctx context.Context) error {
	msg, ok, err := c.ws.ReadTimeout(ctx, greetingWait)
	if err != nil {
		if err == io.EOF {
			return fmt.Errorf("%w: closed before greeting", stt.ErrBackendUnreachable)
		}
		return err
	}
	if !ok {
		c.logger.Debug().Msg("no config greeting, continuing")
		return nil
	}
	var m struct {
		Type            string `json:"type"`
		UseAudioWorklet bool   `json:"useAudioWorklet"`
	}
	if json.Unmarshal(msg.Data, &m) == nil && m.Type == typeConfig {
		c.logger.Debug().Bool("useAudioWorklet", m.UseAudioWorklet).Msg("server config")
		return nil
	}
	c.pending = &msg
	return nil
}

func (c *conn) SendAudio(ctx context.Context, chunk []byte) error {
	if err := c.ws.WriteBinary(ctx, chunk); err != nil {
		return err
	}
	c.sent.Add(int64(len(chunk)))
	return nil
}

// CloseSend writes an empty binary frame.
func (c *conn) CloseSend(ctx context.Context) error {
	return c.ws.WriteBinary(ctx, []byte{})
}

func (c *conn) Close() error {
	return c.ws.Close()
}

type line struct {
	Text    string `json:"text"`
	Start   any    `json:"start"`
	End     any    `json:"end"`
	Speaker int    `json:"speaker"`
}

type message struct {
	Type                string `json:"type"`
	Status              string `json:"status"`
	Lines               []line `json:"lines"`
	BufferTranscription string `json:"buffer_transcription"`
}

func (c *conn) Receive(ctx context.Context) ([]stt.Candidate, error) {
	if m := c.pending; m != nil {
		c.pending = nil
		return c.decode(m.Data)
	}
	msg, err := c.ws.Read(ctx)
	if err != nil {
		return nil, err
	}
	return c.decode(msg.Data)
}

func (c *conn) decode(data []byte) ([]stt.Candidate, error) {
	var m message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", stt.ErrMalformedMessage, err)
	}

	switch m.Type {
	case typeReadyToStop:
		return nil, io.EOF
	case typeConfig:
		return nil, nil
	}

	now := stt.AudioSeconds(c.sent.Load(), c.sampleRate)
	var out []stt.Candidate
	for i := c.seenLines; i < len(m.Lines); i++ {
		l := m.Lines[i]
		start, ok := stt.ParseSeconds(l.Start)
		if !ok {
			start = now
		}
		end, ok := stt.ParseSeconds(l.End)
		if !ok {
			end = start + stt.DefaultSpan
		}
		cand := stt.Candidate{Start: start, End: end, Text: l.Text, Final: true}
		if l.Speaker > 0 {
			cand.Speaker = stt.SpeakerLabel(c.prefix, l.Speaker)
		}
		out = append(out, cand)
	}
	// The server may reset or shorten lines; track its current length.
	c.seenLines = len(m.Lines)

	if c.previews {
		if buf := strings.TrimSpace(m.BufferTranscription); buf != "" {
			out = append(out, stt.Candidate{Start: now, End: now + 2, Text: buf})
		}
	}
	return out, nil
}
