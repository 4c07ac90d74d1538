// Package speaker detects speaker changes in 16 kHz mono PCM by comparing
// voice embeddings of consecutive segments.
package speaker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"ktv-subtitle-service/internal/audio"
	"ktv-subtitle-service/internal/observability/metrics"
)

const defaultEmbedTimeout = 10 * time.Second

// ErrEmptyEmbedding is returned when the embedding service answers without
// a vector.
var ErrEmptyEmbedding = errors.New("empty voice embedding")

// Embedder computes a voice embedding for a PCM segment.
type Embedder interface {
	Embed(ctx context.Context, pcm []byte) ([]float64, error)
}

// HTTPEmbedder posts segments as WAV to an embedding service and reads
// {"embedding": [...]} back.
type HTTPEmbedder struct {
	url        string
	sampleRate int
	httpClient *http.Client
}

// Option customizes the HTTP embedder.
type Option func(*HTTPEmbedder)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(e *HTTPEmbedder) {
		if client != nil {
			e.httpClient = client
		}
	}
}

// WithSampleRate sets the rate written into the WAV header (default 16000).
func WithSampleRate(rate int) Option {
	return func(e *HTTPEmbedder) {
		if rate > 0 {
			e.sampleRate = rate
		}
	}
}

// NewHTTPEmbedder returns an embedder calling baseURL + "/embed".
func NewHTTPEmbedder(baseURL string, opts ...Option) *HTTPEmbedder {
	e := &HTTPEmbedder{
		url:        strings.TrimRight(strings.TrimSpace(baseURL), "/") + "/embed",
		sampleRate: 16000,
		httpClient: &http.Client{Timeout: defaultEmbedTimeout},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
	Error     string    `json:"error,omitempty"`
}

func (e *HTTPEmbedder) Embed(ctx context.Context, pcm []byte) ([]float64, error) {
	body := append(audio.WAVHeader(audio.PCM16Mono(e.sampleRate), len(pcm)), pcm...)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embed request: %w", err)
	}
	req.Header.Set("Content-Type", "audio/wav")
	req.Header.Set("Accept", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read embed response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embed request: http %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var out embedResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("embed service: %s", out.Error)
	}
	if len(out.Embedding) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return out.Embedding, nil
}

// Pool bounds concurrent embedding calls shared by all detectors and
// records their latency.
type Pool struct {
	embedder Embedder
	sem      *semaphore.Weighted
}

// NewPool allows at most workers embeddings in flight (minimum 1).
func NewPool(embedder Embedder, workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{embedder: embedder, sem: semaphore.NewWeighted(int64(workers))}
}

func (p *Pool) Embed(ctx context.Context, pcm []byte) ([]float64, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer p.sem.Release(1)

	start := time.Now()
	vec, err := p.embedder.Embed(ctx, pcm)
	metrics.DefaultMetrics.RecordEmbeddingLatency(time.Since(start).Seconds())
	return vec, err
}
