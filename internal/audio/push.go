package audio

import (
	"errors"
	"io"
	"sync"
)

// ErrStreamClosed is returned by PushStream.Write after CloseWrite or Close.
var ErrStreamClosed = errors.New("push stream closed")

// PushStream turns frames pushed by a live client into a pull-based audio
// source. Write blocks until the session reads the frame.
type PushStream struct {
	r *io.PipeReader
	w *io.PipeWriter

	mu     sync.Mutex
	closed bool
	bytes  int64
}

func NewPushStream() *PushStream {
	r, w := io.Pipe()
	return &PushStream{r: r, w: w}
}

// Write pushes one frame.
func (s *PushStream) Write(p []byte) (int, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return 0, ErrStreamClosed
	}
	n, err := s.w.Write(p)
	if errors.Is(err, io.ErrClosedPipe) {
		err = ErrStreamClosed
	}
	s.mu.Lock()
	s.bytes += int64(n)
	s.mu.Unlock()
	return n, err
}

// CloseWrite marks the end of the audio; readers see io.EOF after the
// frames already written.
func (s *PushStream) CloseWrite() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.w.Close()
}

// Read implements io.Reader for the session.
func (s *PushStream) Read(p []byte) (int, error) {
	return s.r.Read(p)
}

// Close releases the stream from the reading side; pending and later
// writes fail.
func (s *PushStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.r.CloseWithError(ErrStreamClosed)
}

// Written returns the number of bytes pushed so far.
func (s *PushStream) Written() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytes
}
