// Package haiv speaks the HAIV speech WebSocket protocol: WAV-stripped PCM in,
// per-utterance final hypotheses out, "EOS" to finish.
package haiv

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ktv-subtitle-service/internal/observability/logging"
	"ktv-subtitle-service/internal/service/stt"
)

const (
	Name = "haiv"

	speechPath     = "/client/ws/speech"
	endOfStream    = "EOS"
	progressPrefix = "Progress:"
	chunkInterval  = 250 * time.Millisecond
)

type Config struct {
	URL        string
	ProjectID  string
	Model      string
	ByteRate   int
	NumSpeaker int
	// SpeakerPrefix labels speakers, e.g. "화자".
	SpeakerPrefix string
}

// Client opens HAIV sessions.
type Client struct {
	cfg Config
}

func New(cfg Config) *Client {
	if cfg.ByteRate <= 0 {
		cfg.ByteRate = 16000
	}
	if cfg.Model == "" {
		cfg.Model = "KOREAN_ONLINE_8K"
	}
	if cfg.SpeakerPrefix == "" {
		cfg.SpeakerPrefix = "화자"
	}
	return &Client{cfg: cfg}
}

func (c *Client) Name() string { return Name }

// Pacing sends a quarter second of audio per chunk, throttled only in
// real-time mode.
func (c *Client) Pacing(opts stt.Options) stt.Pacing {
	p := stt.Pacing{
		ChunkSize:      c.cfg.ByteRate / 4,
		StripWAVHeader: true,
	}
	if opts.RealTime {
		p.Delay = chunkInterval
	}
	return p
}

func (c *Client) Open(ctx context.Context, opts stt.Options) (stt.Conn, error) {
	target, err := buildURL(c.cfg, opts)
	if err != nil {
		return nil, err
	}
	ws, err := stt.DialWS(ctx, target, nil, opts.ConnectTimeout)
	if err != nil {
		return nil, err
	}
	logger := logging.WithComponent("stt.haiv")
	logger.Debug().Str("url", target).Msg("backend connected")
	return &conn{
		ws:     ws,
		prefix: c.cfg.SpeakerPrefix,
		logger: logger,
	}, nil
}

func buildURL(cfg Config, opts stt.Options) (string, error) {
	u, err := stt.BackendURL(cfg.URL, speechPath)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("model", cfg.Model)
	if cfg.ProjectID != "" {
		q.Set("project", cfg.ProjectID)
	}
	if cfg.NumSpeaker > 0 {
		q.Set("num-speaker", strconv.Itoa(cfg.NumSpeaker))
	}
	if !opts.RealTime {
		q.Set("mode", "batch")
	}
	q.Set("verbosity", "final")
	if opts.Language != "" {
		q.Set("lang", opts.Language)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type conn struct {
	ws     *stt.WSConn
	prefix string
	logger zerolog.Logger
}

func (c *conn) SendAudio(ctx context.Context, chunk []byte) error {
	return c.ws.WriteBinary(ctx, chunk)
}

func (c *conn) CloseSend(ctx context.Context) error {
	return c.ws.WriteText(ctx, endOfStream)
}

func (c *conn) Close() error {
	return c.ws.Close()
}

type hypothesis struct {
	Transcript string `json:"transcript"`
}

type response struct {
	Status *int `json:"status"`
	EOS    bool `json:"EOS"`
	Result *struct {
		Final      bool         `json:"final"`
		Hypotheses []hypothesis `json:"hypotheses"`
	} `json:"result"`
	Speaker       *int    `json:"speaker"`
	SegmentStart  float64 `json:"segment-start"`
	SegmentLength float64 `json:"segment-length"`
}

func (c *conn) Receive(ctx context.Context) ([]stt.Candidate, error) {
	msg, err := c.ws.Read(ctx)
	if err != nil {
		return nil, err
	}
	return c.decode(msg.Data)
}

func (c *conn) decode(data []byte) ([]stt.Candidate, error) {
	if bytes.HasPrefix(data, []byte(progressPrefix)) {
		c.logger.Debug().
			Str("progress", strings.TrimSpace(string(data[len(progressPrefix):]))).
			Msg("backend progress")
		return nil, nil
	}

	var r response
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", stt.ErrMalformedMessage, err)
	}

	var out []stt.Candidate
	if r.Status != nil && r.Result != nil && r.Result.Final && len(r.Result.Hypotheses) > 0 {
		cand := stt.Candidate{
			Start: r.SegmentStart,
			End:   r.SegmentStart + r.SegmentLength,
			Text:  r.Result.Hypotheses[0].Transcript,
			Final: true,
		}
		if r.Speaker != nil {
			cand.Speaker = stt.SpeakerLabel(c.prefix, *r.Speaker)
		}
		out = append(out, cand)
	}

	if r.Status != nil && *r.Status == 0 && r.EOS {
		return out, io.EOF
	}
	return out, nil
}
