package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"ktv-subtitle-service/internal/audio"
	"ktv-subtitle-service/internal/models"
	"ktv-subtitle-service/internal/observability/metrics"
	"ktv-subtitle-service/internal/schema"
	"ktv-subtitle-service/internal/service/postprocess"
	"ktv-subtitle-service/internal/service/stt"
)

// ErrorKind classifies a terminal session failure for the caller.
type ErrorKind string

const (
	KindUnreachable ErrorKind = "unreachable"
	KindProcessing  ErrorKind = "processing"
	KindTimeout     ErrorKind = "timeout"
)

var (
	errIdleTimeout = errors.New("no backend activity")
	errMaxDuration = errors.New("maximum session duration reached")
)

// Session is one streaming transcription run. It is single-use: Events is
// closed after the terminal complete or error event.
type Session struct {
	info      Info
	cfg       Config
	client    stt.Client
	source    io.Reader
	pipeline  *postprocess.Pipeline
	validator *schema.Validator
	recorder  Recorder
	lifecycle *Lifecycle
	logger    zerolog.Logger

	events chan models.Event
	cancel context.CancelFunc
	done   chan struct{}

	eosOnce  sync.Once
	eosErr   error
	activity atomic.Int64 // unix nanos of the last send or backend message
	nextID   int64        // receive goroutine only

	mu  sync.Mutex
	err error
}

func (s *Session) ID() string     { return s.info.ID }
func (s *Session) Engine() string { return s.info.Engine }
func (s *Session) Info() Info     { return s.info }
func (s *Session) State() State   { return s.lifecycle.State() }

// Events delivers subtitle events followed by exactly one complete or error
// event, unless the session was cancelled.
func (s *Session) Events() <-chan models.Event {
	return s.events
}

// Done is closed once both goroutines stopped and the backend connection
// was released.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns the terminal error, or nil for completed and cancelled
// sessions.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close cancels the session and waits until it released its resources.
// Queued events are discarded. Close is safe to call more than once.
func (s *Session) Close() error {
	s.cancel()
	<-s.done
	return nil
}

func (s *Session) touch() {
	s.activity.Store(time.Now().UnixNano())
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.events)
	defer s.cancel()

	err := s.stream(ctx)
	state := s.outcome(ctx, err)

	s.lifecycle.Finish(state)
	duration := time.Since(s.info.StartedAt)
	metrics.DefaultMetrics.RecordSessionEnd(s.info.Engine, stateLabel(state), duration.Seconds())
	s.recorder.SessionEnded(context.WithoutCancel(ctx), s.info, state)

	switch state {
	case StateClosed:
		s.logger.Info().Int64("subtitles", s.nextID).Dur("duration", duration).Msg("session completed")
		s.deliver(ctx, models.Event{Type: models.EventComplete, SessionID: s.info.ID, Message: "transcription complete"})
	case StateCancelled:
		s.logger.Info().Dur("duration", duration).Msg("session cancelled")
	case StateFailed:
		kind := classify(err)
		metrics.DefaultMetrics.RecordBackendError(s.info.Engine, string(kind))
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		s.logger.Error().Err(err).Str("kind", string(kind)).Msg("session failed")
		s.deliver(ctx, models.ErrorEvent(s.info.ID, string(kind), message(kind, err)))
	}
}

// stream opens the backend and runs the send and receive goroutines until
// the backend completes or one of them fails.
func (s *Session) stream(ctx context.Context) error {
	if s.cfg.MaxDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, s.cfg.MaxDuration, errMaxDuration)
		defer cancel()
	}
	ctx, fail := context.WithCancelCause(ctx)
	defer fail(nil)

	opts := stt.Options{
		SampleRate:     s.cfg.SampleRate,
		Language:       s.cfg.Language,
		Diarization:    s.info.Request.Diarization,
		RealTime:       s.info.Request.RealTime,
		Previews:       s.info.Request.Previews,
		ConnectTimeout: s.cfg.ConnectTimeout,
	}
	conn, err := s.client.Open(ctx, opts)
	if err != nil {
		s.closeSource()
		return s.cause(ctx, err)
	}
	defer conn.Close()

	g, gctx := errgroup.WithContext(ctx)
	// Unblocks a goroutine stuck in a backend or source read.
	stop := context.AfterFunc(gctx, func() {
		_ = conn.Close()
		s.closeSource()
	})
	defer stop()

	sendCtx, stopSend := context.WithCancel(gctx)
	defer stopSend()

	s.touch()
	g.Go(func() error {
		err := s.send(sendCtx, conn, s.pacing(opts))
		if err != nil && sendCtx.Err() != nil && gctx.Err() == nil {
			// Receive finished first.
			return nil
		}
		return err
	})
	g.Go(func() error {
		err := s.receive(gctx, conn)
		if err == nil {
			stopSend()
		}
		return err
	})
	if s.cfg.IdleTimeout > 0 {
		go s.watchIdle(gctx, fail)
	}
	return s.cause(ctx, g.Wait())
}

// cause prefers a timeout cause over the error it produced.
func (s *Session) cause(ctx context.Context, err error) error {
	if c := context.Cause(ctx); errors.Is(c, errIdleTimeout) || errors.Is(c, errMaxDuration) {
		return c
	}
	return err
}

func (s *Session) pacing(opts stt.Options) stt.Pacing {
	p := s.client.Pacing(opts)
	if p.ChunkSize <= 0 {
		p.ChunkSize = 4096
	}
	if s.cfg.PrefetchChunks > 0 {
		p.Prefetch = s.cfg.PrefetchChunks
	}
	if s.cfg.ChunkDelay > 0 {
		p.Delay = s.cfg.ChunkDelay
	}
	return p
}

// send forwards fixed-size chunks, pausing per the pacing policy, then
// sends the end-of-stream marker once.
func (s *Session) send(ctx context.Context, conn stt.Conn, p stt.Pacing) error {
	src := s.source
	if p.StripWAVHeader {
		src = audio.SkipWAVHeader(src)
	}

	buf := make([]byte, p.ChunkSize)
	for n := 1; ; n++ {
		read, err := io.ReadFull(src, buf)
		if read > 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := conn.SendAudio(ctx, buf[:read]); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("send audio: %w: %w", stt.ErrBackendUnreachable, err)
			}
			s.touch()
			metrics.DefaultMetrics.RecordAudioSent(s.info.Engine, read)
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read audio source: %w", err)
		}
		if d := p.DelayAfter(n); d > 0 {
			if err := sleep(ctx, d); err != nil {
				return err
			}
		}
	}

	if err := s.endOfStream(ctx, conn); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("send end of stream: %w: %w", stt.ErrBackendUnreachable, err)
	}
	return nil
}

// endOfStream sends the backend's end-of-stream marker exactly once.
func (s *Session) endOfStream(ctx context.Context, conn stt.Conn) error {
	s.eosOnce.Do(func() {
		s.eosErr = conn.CloseSend(ctx)
		if s.eosErr == nil {
			_ = s.lifecycle.Drain()
			s.logger.Debug().Msg("end of stream sent")
		}
	})
	return s.eosErr
}

func (s *Session) receive(ctx context.Context, conn stt.Conn) error {
	for {
		batch, err := conn.Receive(ctx)
		if len(batch) > 0 || err == nil {
			s.touch()
		}
		for _, c := range batch {
			if err := s.handle(ctx, c); err != nil {
				return err
			}
		}
		switch {
		case err == nil:
		case ctx.Err() != nil:
			// A close triggered by cancellation reads as EOF.
			return ctx.Err()
		case errors.Is(err, io.EOF):
			return nil
		case errors.Is(err, stt.ErrMalformedMessage):
			metrics.DefaultMetrics.RecordMalformedMessage(s.info.Engine)
			s.logger.Warn().Err(err).Msg("skipping malformed backend message")
		default:
			return fmt.Errorf("receive: %w: %w", stt.ErrBackendUnreachable, err)
		}
	}
}

// handle normalizes and postprocesses one candidate and emits the result.
func (s *Session) handle(ctx context.Context, c stt.Candidate) error {
	req := s.info.Request
	c, ok := stt.Normalize(c, req.StartOffset, req.Diarization)
	if !ok {
		return nil
	}
	metrics.DefaultMetrics.RecordCandidate(s.info.Engine)

	sub := models.Subtitle{
		StartTime: c.Start,
		EndTime:   c.End,
		Speaker:   models.StringPtr(c.Speaker),
		IsFinal:   c.Final,
	}
	if c.Final {
		res := s.pipeline.Process(c.Text, postprocess.Options{
			Scores:              c.Scores,
			DetectSpeakerChange: req.DetectSpeakerChange,
		})
		if res.Dropped {
			return nil
		}
		sub.Text = res.Text
	} else {
		if !req.Previews {
			return nil
		}
		if sub.Text = s.pipeline.Preview(c.Text); sub.Text == "" {
			return nil
		}
	}

	if sub.IsFinal {
		sub.ID = s.nextID + 1
	}
	sub.Timestamp = float64(time.Now().UnixNano()) / 1e9
	if err := s.validator.Validate(sub); err != nil {
		s.logger.Warn().Err(err).Msg("discarding invalid subtitle")
		return nil
	}
	if sub.IsFinal {
		s.nextID = sub.ID
	}

	s.recorder.SubtitleEmitted(ctx, s.info, sub)
	metrics.DefaultMetrics.RecordSubtitle(s.info.Engine, sub.IsFinal)
	select {
	case s.events <- models.SubtitleEvent(s.info.ID, sub):
		s.touch()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// watchIdle fails the session when neither audio was sent nor a backend
// message arrived for IdleTimeout.
func (s *Session) watchIdle(ctx context.Context, fail context.CancelCauseFunc) {
	tick := s.cfg.IdleTimeout / 4
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			idle := time.Since(time.Unix(0, s.activity.Load()))
			if idle >= s.cfg.IdleTimeout {
				fail(fmt.Errorf("%w for %v", errIdleTimeout, idle.Round(time.Millisecond)))
				return
			}
		}
	}
}

func (s *Session) outcome(ctx context.Context, err error) State {
	switch {
	case ctx.Err() != nil:
		return StateCancelled
	case err != nil:
		return StateFailed
	default:
		return StateClosed
	}
}

// deliver queues a terminal event unless the caller already went away.
func (s *Session) deliver(ctx context.Context, ev models.Event) {
	select {
	case s.events <- ev:
	case <-ctx.Done():
	}
}

func (s *Session) closeSource() {
	if c, ok := s.source.(io.Closer); ok {
		_ = c.Close()
	}
}

func classify(err error) ErrorKind {
	switch {
	case errors.Is(err, errIdleTimeout), errors.Is(err, errMaxDuration), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, stt.ErrBackendUnreachable):
		return KindUnreachable
	default:
		return KindProcessing
	}
}

func message(kind ErrorKind, err error) string {
	switch kind {
	case KindUnreachable:
		return fmt.Sprintf("STT backend unreachable: %v", err)
	case KindTimeout:
		return fmt.Sprintf("session timed out: %v", err)
	default:
		return fmt.Sprintf("processing error: %v", err)
	}
}

func stateLabel(s State) string {
	switch s {
	case StateClosed:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
