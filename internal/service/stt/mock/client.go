// Package mock provides a scripted STT backend for development and tests.
// It simulates realistic behavior: progressive partial transcripts while
// audio arrives, exactly one final per utterance, and completion after the
// end-of-stream marker.
package mock

import (
	"context"
	"io"
	"math"
	"sync"
	"time"

	"ktv-subtitle-service/internal/service/postprocess"
	"ktv-subtitle-service/internal/service/stt"
)

const Name = "mock"

// SimulatedUtterance represents a mock utterance with progressive transcripts.
type SimulatedUtterance struct {
	Partials   []string // Progressive partial transcripts
	Final      string   // Final transcript text
	Confidence float64  // Confidence score for final
}

// DefaultUtterances provides sample utterances for simulation.
var DefaultUtterances = []SimulatedUtterance{
	{
		Partials:   []string{"오늘 국회", "오늘 국회 본회의에서는"},
		Final:      "오늘 국회 본회의에서는 내년도 예산안이 상정되었습니다",
		Confidence: 0.94,
	},
	{
		Partials:   []string{"위원장님", "위원장님 질의"},
		Final:      "위원장님 질의 시작하겠습니다",
		Confidence: 0.97,
	},
	{
		Partials:   []string{"정부는", "정부는 이번 대책으로"},
		Final:      "정부는 이번 대책으로 물가 안정을 기대하고 있습니다",
		Confidence: 0.91,
	},
	{
		Partials:   []string{"다음은", "다음은 지역"},
		Final:      "다음은 지역 소식 전해드리겠습니다",
		Confidence: 0.89,
	},
	{
		Partials:   []string{"이상으로"},
		Final:      "이상으로 오늘 회의를 마치겠습니다",
		Confidence: 0.98,
	},
}

type Config struct {
	// UtteranceDuration is how much audio makes one utterance.
	UtteranceDuration time.Duration
	Utterances        []SimulatedUtterance
	SpeakerPrefix     string
}

// Client implements stt.Client with scripted responses.
type Client struct {
	cfg Config

	counterMu sync.Mutex
	counter   int // cycles the starting utterance across sessions
}

func New(cfg Config) *Client {
	if cfg.UtteranceDuration <= 0 {
		cfg.UtteranceDuration = 2 * time.Second
	}
	if len(cfg.Utterances) == 0 {
		cfg.Utterances = DefaultUtterances
	}
	if cfg.SpeakerPrefix == "" {
		cfg.SpeakerPrefix = "화자"
	}
	return &Client{cfg: cfg}
}

func (c *Client) Name() string { return Name }

func (c *Client) Pacing(opts stt.Options) stt.Pacing {
	rate := opts.SampleRate
	if rate <= 0 {
		rate = 16000
	}
	p := stt.Pacing{ChunkSize: rate / 2, StripWAVHeader: true}
	if opts.RealTime {
		p.Delay = 250 * time.Millisecond
	}
	return p
}

func (c *Client) Open(ctx context.Context, opts stt.Options) (stt.Conn, error) {
	c.counterMu.Lock()
	start := c.counter % len(c.cfg.Utterances)
	c.counter++
	c.counterMu.Unlock()

	rate := opts.SampleRate
	if rate <= 0 {
		rate = 16000
	}
	return &conn{
		cfg:            c.cfg,
		previews:       opts.Previews,
		utteranceBytes: int64(c.cfg.UtteranceDuration.Seconds() * float64(rate*2)),
		next:           start,
		results:        make(chan []stt.Candidate, 256),
		done:           make(chan struct{}),
	}, nil
}

type conn struct {
	cfg            Config
	previews       bool
	utteranceBytes int64

	// Sender side only.
	received     int64 // bytes in the current utterance
	index        int   // utterances finished
	next         int   // script position
	partialIndex int
	eosSent      bool

	results   chan []stt.Candidate
	done      chan struct{}
	closeOnce sync.Once
}

func (c *conn) utterance() SimulatedUtterance {
	return c.cfg.Utterances[c.next%len(c.cfg.Utterances)]
}

// SendAudio advances the simulation: partials while the utterance is
// in progress, one final once it is complete.
func (c *conn) SendAudio(ctx context.Context, chunk []byte) error {
	if c.eosSent {
		return nil
	}
	c.received += int64(len(chunk))

	utt := c.utterance()
	if c.previews && c.partialIndex < len(utt.Partials) {
		progress := float64(c.received) / float64(c.utteranceBytes)
		if progress*float64(len(utt.Partials)+1) >= float64(c.partialIndex+1) {
			start := c.utteranceStart()
			partial := stt.Candidate{Start: start, End: start + 2, Text: utt.Partials[c.partialIndex]}
			c.partialIndex++
			if err := c.emit(ctx, partial); err != nil {
				return err
			}
		}
	}

	if c.received >= c.utteranceBytes {
		return c.finish(ctx)
	}
	return nil
}

// CloseSend flushes the utterance in progress and completes the stream.
func (c *conn) CloseSend(ctx context.Context) error {
	if c.eosSent {
		return nil
	}
	c.eosSent = true
	if c.received > 0 {
		if err := c.finish(ctx); err != nil {
			return err
		}
	}
	select {
	case <-c.done:
	default:
		close(c.results)
	}
	return nil
}

func (c *conn) utteranceStart() float64 {
	return float64(c.index) * c.cfg.UtteranceDuration.Seconds()
}

func (c *conn) finish(ctx context.Context) error {
	utt := c.utterance()
	start := c.utteranceStart()
	end := start + c.cfg.UtteranceDuration.Seconds()*float64(c.received)/float64(c.utteranceBytes)
	cand := stt.Candidate{
		Start:   start,
		End:     end - 0.2,
		Text:    utt.Final,
		Speaker: stt.SpeakerLabel(c.cfg.SpeakerPrefix, c.index%2+1),
		Final:   true,
		Scores: &postprocess.Scores{
			AvgLogprob:   math.Log(utt.Confidence),
			NoSpeechProb: 1 - utt.Confidence,
		},
	}
	c.index++
	c.next++
	c.received = 0
	c.partialIndex = 0
	return c.emit(ctx, cand)
}

func (c *conn) emit(ctx context.Context, cand stt.Candidate) error {
	select {
	case c.results <- []stt.Candidate{cand}:
		return nil
	case <-c.done:
		return stt.ErrConnClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *conn) Receive(ctx context.Context) ([]stt.Candidate, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, io.EOF
	case batch, ok := <-c.results:
		if !ok {
			return nil, io.EOF
		}
		return batch, nil
	}
}

// Close ends the mock session.
func (c *conn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}
