// Package audio provides the PCM sources fed into streaming sessions: an
// ffmpeg decoder subprocess, WAV header handling and a push stream for live
// clients.
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

var commandContext = exec.CommandContext

const stopGrace = 1200 * time.Millisecond

// Decoder converts media files and URLs into mono 16-bit little-endian PCM.
type Decoder struct {
	Binary     string
	SampleRate int
}

// NewDecoder returns a decoder using binary (default "ffmpeg").
func NewDecoder(binary string, sampleRate int) *Decoder {
	if binary == "" {
		binary = "ffmpeg"
	}
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	return &Decoder{Binary: binary, SampleRate: sampleRate}
}

// Available reports whether the ffmpeg binary can be executed.
func (d *Decoder) Available(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if out, err := commandContext(ctx, d.Binary, "-version").CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg unavailable: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Args returns the ffmpeg arguments that decode input from startOffset
// seconds to raw PCM on stdout.
func (d *Decoder) Args(input string, startOffset float64) []string {
	args := []string{"-nostdin", "-hide_banner", "-loglevel", "error"}
	if startOffset > 0 {
		args = append(args, "-ss", strconv.FormatFloat(startOffset, 'f', -1, 64))
	}
	return append(args,
		"-i", input,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(d.SampleRate),
		"-ac", "1",
		"-f", "s16le",
		"pipe:1",
	)
}

// Decode starts ffmpeg on input. The returned stream must be closed; Close
// stops the subprocess.
func (d *Decoder) Decode(ctx context.Context, input string, startOffset float64) (*Stream, error) {
	if input == "" {
		return nil, errors.New("decode: empty input")
	}
	cmd := commandContext(ctx, d.Binary, d.Args(input, startOffset)...) //nolint:gosec
	stderr := &syncBuffer{}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	return &Stream{
		cmd:      cmd,
		stdout:   stdout,
		stderr:   stderr,
		waitDone: make(chan struct{}),
	}, nil
}

// Open is Decode returning the stream as an io.ReadCloser.
func (d *Decoder) Open(ctx context.Context, input string, startOffset float64) (io.ReadCloser, error) {
	s, err := d.Decode(ctx, input, startOffset)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Stream is the stdout of a running ffmpeg process.
type Stream struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *syncBuffer

	waitOnce sync.Once
	waitDone chan struct{}
	waitErr  error

	readErr error

	stopOnce sync.Once
	stopErr  error
}

// wait reaps the process once. Callers must have drained stdout or be
// stopping the process.
func (s *Stream) wait() <-chan struct{} {
	s.waitOnce.Do(func() {
		go func() {
			s.waitErr = s.cmd.Wait()
			close(s.waitDone)
		}()
	})
	return s.waitDone
}

// Read returns decoded PCM. At the end of the output it returns io.EOF, or
// the ffmpeg error when the process failed.
func (s *Stream) Read(p []byte) (int, error) {
	if s.readErr != nil {
		return 0, s.readErr
	}
	n, err := s.stdout.Read(p)
	if errors.Is(err, io.EOF) {
		<-s.wait()
		if s.waitErr != nil {
			s.readErr = fmt.Errorf("ffmpeg: %w: %s", s.waitErr, strings.TrimSpace(s.stderr.String()))
			return n, s.readErr
		}
		s.readErr = io.EOF
	}
	return n, err
}

// Close interrupts ffmpeg, killing it if it does not exit in time.
func (s *Stream) Close() error {
	s.stopOnce.Do(func() {
		select {
		case <-s.waitDone:
			return
		default:
		}
		if p := s.cmd.Process; p != nil {
			_ = p.Signal(os.Interrupt)
		}

		timer := time.NewTimer(stopGrace)
		defer timer.Stop()
		select {
		case <-s.wait():
		case <-timer.C:
			if p := s.cmd.Process; p != nil {
				_ = p.Kill()
			}
			<-s.wait()
		}
		s.stopErr = normalizeStopErr(s.waitErr)
	})
	return s.stopErr
}

// normalizeStopErr treats exits caused by our own signals as success.
func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
