// Package google provides a Google Cloud Speech-to-Text streaming backend.
package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"ktv-subtitle-service/internal/observability/logging"
	"ktv-subtitle-service/internal/service/stt"
)

const (
	Name = "google"

	chunkDuration = 100 * time.Millisecond
	realTimeDelay = 100 * time.Millisecond
	fastDelay     = 10 * time.Millisecond
)

// Config holds Google STT settings.
type Config struct {
	LanguageCode   string
	SampleRateHz   int
	InterimResults bool
	AudioEncoding  string
	SpeakerPrefix  string
}

// DefaultConfig returns Korean 16kHz LINEAR16 with interim results.
func DefaultConfig() Config {
	return Config{
		LanguageCode:   "ko-KR",
		SampleRateHz:   16000,
		InterimResults: true,
		AudioEncoding:  "LINEAR16",
		SpeakerPrefix:  "화자",
	}
}

func parseAudioEncoding(s string) speechpb.RecognitionConfig_AudioEncoding {
	if v, ok := speechpb.RecognitionConfig_AudioEncoding_value[s]; ok && v != 0 {
		return speechpb.RecognitionConfig_AudioEncoding(v)
	}
	return speechpb.RecognitionConfig_LINEAR16
}

// Client creates the underlying speech client on first use so the service
// starts without credentials when the engine is never selected.
// Requires GOOGLE_APPLICATION_CREDENTIALS when used.
type Client struct {
	cfg Config

	mu     sync.Mutex
	client *speech.Client
}

func New(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = def.LanguageCode
	}
	if cfg.SampleRateHz <= 0 {
		cfg.SampleRateHz = def.SampleRateHz
	}
	if cfg.AudioEncoding == "" {
		cfg.AudioEncoding = def.AudioEncoding
	}
	if cfg.SpeakerPrefix == "" {
		cfg.SpeakerPrefix = def.SpeakerPrefix
	}
	return &Client{cfg: cfg}
}

func (c *Client) Name() string { return Name }

func (c *Client) Pacing(opts stt.Options) stt.Pacing {
	rate := opts.SampleRate
	if rate <= 0 {
		rate = c.cfg.SampleRateHz
	}
	p := stt.Pacing{
		ChunkSize:      rate * 2 * int(chunkDuration/time.Millisecond) / 1000,
		Delay:          fastDelay,
		StripWAVHeader: true,
	}
	if opts.RealTime {
		p.Delay = realTimeDelay
	}
	return p
}

func (c *Client) speechClient(ctx context.Context) (*speech.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, nil
	}
	sc, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	c.client = sc
	return sc, nil
}

// Shutdown releases the speech client.
func (c *Client) Shutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}

// Open begins a streaming recognition session and sends the initial config.
func (c *Client) Open(ctx context.Context, opts stt.Options) (stt.Conn, error) {
	sc, err := c.speechClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", stt.ErrBackendUnreachable, err)
	}

	sctx, cancel := context.WithCancel(ctx)
	stream, err := sc.StreamingRecognize(sctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", stt.ErrBackendUnreachable, err)
	}

	rate := opts.SampleRate
	if rate <= 0 {
		rate = c.cfg.SampleRateHz
	}
	recognition := &speechpb.RecognitionConfig{
		Encoding:                   parseAudioEncoding(c.cfg.AudioEncoding),
		SampleRateHertz:            int32(rate),
		LanguageCode:               c.cfg.LanguageCode,
		EnableAutomaticPunctuation: true,
		EnableWordTimeOffsets:      true,
	}
	if opts.Diarization {
		recognition.DiarizationConfig = &speechpb.SpeakerDiarizationConfig{
			EnableSpeakerDiarization: true,
			MinSpeakerCount:          1,
			MaxSpeakerCount:          2,
		}
	}

	// Send streaming config as the first message
	err = stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config:         recognition,
				InterimResults: c.cfg.InterimResults && opts.Previews,
			},
		},
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: send streaming config: %v", stt.ErrBackendUnreachable, err)
	}

	return &conn{
		stream: stream,
		cancel: cancel,
		prefix: c.cfg.SpeakerPrefix,
		logger: logging.WithComponent("stt.google"),
	}, nil
}

type conn struct {
	stream speechpb.Speech_StreamingRecognizeClient
	cancel context.CancelFunc
	prefix string
	logger zerolog.Logger

	// Receive side only.
	lastEnd float64
}

// SendAudio sends audio bytes to Google Speech-to-Text.
func (c *conn) SendAudio(ctx context.Context, chunk []byte) error {
	return c.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: chunk,
		},
	})
}

// CloseSend half-closes the stream; Google then flushes final results.
func (c *conn) CloseSend(ctx context.Context) error {
	return c.stream.CloseSend()
}

func (c *conn) Close() error {
	c.cancel()
	return nil
}

// Receive converts one StreamingRecognizeResponse into candidates.
func (c *conn) Receive(ctx context.Context) ([]stt.Candidate, error) {
	resp, err := c.stream.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if status.Code(err) == codes.Canceled && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("recognize: %w", err)
	}
	if st := resp.GetError(); st != nil && st.GetCode() != 0 {
		return nil, fmt.Errorf("recognize: %s (code %d)", st.GetMessage(), st.GetCode())
	}

	var out []stt.Candidate
	for _, r := range resp.GetResults() {
		if len(r.GetAlternatives()) == 0 {
			continue
		}
		alt := r.GetAlternatives()[0]
		end := c.lastEnd
		if d := r.GetResultEndTime(); d != nil {
			end = d.AsDuration().Seconds()
		}
		cand := stt.Candidate{
			Start: c.lastEnd,
			End:   end,
			Text:  alt.GetTranscript(),
			Final: r.GetIsFinal(),
		}
		if words := alt.GetWords(); len(words) > 0 {
			if tag := words[len(words)-1].GetSpeakerTag(); tag > 0 {
				cand.Speaker = stt.SpeakerLabel(c.prefix, int(tag))
			}
		}
		if r.GetIsFinal() {
			c.lastEnd = end
		}
		out = append(out, cand)
	}
	return out, nil
}
