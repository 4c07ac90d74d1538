// Package whisper speaks the Whisper STT-Full-Service WebSocket protocol.
//
// The service streams one "segment" message per utterance and, after "EOS",
// a "final" message that carries every segment again as a batch. Some
// deployments only send the batch; both paths yield candidates, and the batch
// is ignored when segments were already streamed. The final message ends the
// session.
package whisper

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
	"ktv-subtitle-service/internal/service/postprocess"
	"ktv-subtitle-service/internal/service/stt"
)

const (
	Name = "whisper"

	speechPath  = "/client/ws/speech"
	endOfStream = "EOS"
	chunkSize   = 8000
)

type Config struct {
	URL           string
	Model         string
	SpeakerPrefix string
}

type Client struct {
	cfg Config
}

func New(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = "KOREAN_16K"
	}
	if cfg.SpeakerPrefix == "" {
		cfg.SpeakerPrefix = "화자"
	}
	return &Client{cfg: cfg}
}

func (c *Client) Name() string { return Name }

// Pacing buffers a few seconds up front, then sends faster than real time
// (1.5x in sync mode, 5x otherwise).
func (c *Client) Pacing(opts stt.Options) stt.Pacing {
	if opts.RealTime {
		return stt.Pacing{
			ChunkSize:     chunkSize,
			Prefetch:      16,
			PrefetchDelay: 10 * time.Millisecond,
			Delay:         167 * time.Millisecond,
		}
	}
	return stt.Pacing{
		ChunkSize:     chunkSize,
		Prefetch:      40,
		PrefetchDelay: 10 * time.Millisecond,
		Delay:         50 * time.Millisecond,
	}
}

func (c *Client) Open(ctx context.Context, opts stt.Options) (stt.Conn, error) {
	u, err := stt.BackendURL(c.cfg.URL, speechPath)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("model", c.cfg.Model)
	if opts.Language != "" {
		q.Set("lang", opts.Language)
	}
	u.RawQuery = q.Encode()

	ws, err := stt.DialWS(ctx, u.String(), nil, opts.ConnectTimeout)
	if err != nil {
		return nil, err
	}
	return &conn{
		ws:         ws,
		prefix:     c.cfg.SpeakerPrefix,
		sampleRate: opts.SampleRate,
		speaker:    1,
		logger:     logging.WithComponent("stt.whisper"),
	}, nil
}

type conn struct {
	ws         *stt.WSConn
	prefix     string
	sampleRate int
	logger     zerolog.Logger

	sent atomic.Int64

	// Receive side only.
	speaker  int // toggles between 1 and 2 on speaker_changed
	streamed int
}

func (c *conn) SendAudio(ctx context.Context, chunk []byte) error {
	if err := c.ws.WriteBinary(ctx, chunk); err != nil {
		return err
	}
	c.sent.Add(int64(len(chunk)))
	return nil
}

func (c *conn) CloseSend(ctx context.Context) error {
	return c.ws.WriteText(ctx, endOfStream)
}

func (c *conn) Close() error {
	return c.ws.Close()
}

type segment struct {
	Text           string   `json:"text"`
	Start          float64  `json:"start"`
	End            *float64 `json:"end"`
	SpeakerChanged bool     `json:"speaker_changed"`
	AvgLogprob     *float64 `json:"avg_logprob"`
	NoSpeechProb   *float64 `json:"no_speech_prob"`
}

type message struct {
	Type  string `json:"type"`
	Final bool   `json:"final"`
	segment
	Segments []segment `json:"segments"`
}

func (c *conn) Receive(ctx context.Context) ([]stt.Candidate, error) {
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

	switch {
	case m.Type == "segment":
		if cand, ok := c.fromSegment(m.segment); ok {
			c.streamed++
			return []stt.Candidate{cand}, nil
		}
		return nil, nil
	case m.Type == "final" || m.Final:
		if c.streamed > 0 {
			// The batch repeats segments already delivered.
			return nil, io.EOF
		}
		if len(m.Segments) > 0 {
			out := make([]stt.Candidate, 0, len(m.Segments))
			for _, seg := range m.Segments {
				if cand, ok := c.fromSegment(seg); ok {
					out = append(out, cand)
				}
			}
			return out, io.EOF
		}
		return c.fromText(m.Text), io.EOF
	default:
		c.logger.Debug().Str("type", m.Type).Msg("ignoring message")
		return nil, nil
	}
}

func (c *conn) fromSegment(seg segment) (stt.Candidate, bool) {
	text := strings.TrimSpace(seg.Text)
	if text == "" {
		return stt.Candidate{}, false
	}
	end := seg.Start + stt.DefaultSpan
	if seg.End != nil {
		end = *seg.End
	}
	if seg.SpeakerChanged {
		c.speaker = 3 - c.speaker
	}
	cand := stt.Candidate{
		Start:   seg.Start,
		End:     end,
		Text:    text,
		Speaker: stt.SpeakerLabel(c.prefix, c.speaker),
		Final:   true,
	}
	if seg.AvgLogprob != nil || seg.NoSpeechProb != nil {
		cand.Scores = &postprocess.Scores{}
		if seg.AvgLogprob != nil {
			cand.Scores.AvgLogprob = *seg.AvgLogprob
		}
		if seg.NoSpeechProb != nil {
			cand.Scores.NoSpeechProb = *seg.NoSpeechProb
		}
	}
	return cand, true
}

// fromText times each line of a segment-less final message at the last
// three seconds of audio sent.
func (c *conn) fromText(text string) []stt.Candidate {
	audio := stt.AudioSeconds(c.sent.Load(), c.sampleRate)
	start := audio - stt.DefaultSpan
	if start < 0 {
		start = 0
	}
	var out []stt.Candidate
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, stt.Candidate{
			Start: start,
			End:   start + stt.DefaultSpan,
			Text:  line,
			Final: true,
		})
	}
	return out
}
