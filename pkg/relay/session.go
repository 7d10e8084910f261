package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zachfi/streamrelay/pkg/shoutcast"
)

// Session is one live transcode-and-stream operation. It owns exactly one
// transcoder process and its pipes; Close releases all of them.
type Session struct {
	ID         string
	Source     string
	Input      string
	Bitrate    int
	SampleRate int
	Started    time.Time

	chunkSize int
	logger    *slog.Logger

	cmd    *exec.Cmd
	stdout io.ReadCloser
	cancel context.CancelFunc

	// fetch input only
	src  *shoutcast.Stream
	feed *errgroup.Group

	written atomic.Int64

	mu    sync.Mutex
	title string

	closeOnce sync.Once
	closeErr  error
}

// Read reads transcoded MP3 bytes.
func (s *Session) Read(p []byte) (int, error) {
	n, err := s.stdout.Read(p)
	s.written.Add(int64(n))
	return n, err
}

// Stream copies the transcoded output to dst one chunk at a time, calling
// flush after every write so the chunk leaves immediately. A slow dst stalls
// the transcoder. It returns nil when the output ends, and an error wrapping
// ErrClientGone when dst stops accepting data.
func (s *Session) Stream(dst io.Writer, flush func() error) error {
	buf := make([]byte, s.chunkSize)
	first := true

	for {
		n, err := s.Read(buf)
		if n > 0 {
			if first {
				first = false
				if shoutcast.FindFrameSync(buf[:n]) < 0 {
					s.logger.Warn("no MP3 frame sync found in first chunk, writing anyway", "bytes", n)
				}
			}

			if _, werr := dst.Write(buf[:n]); werr != nil {
				return fmt.Errorf("%w: %v", ErrClientGone, werr)
			}
			if flush != nil {
				if ferr := flush(); ferr != nil {
					return fmt.Errorf("%w: %v", ErrClientGone, ferr)
				}
			}
		}

		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// Close terminates the transcoder and releases its pipes and the source. It
// is safe to call more than once. The returned error reports a transcoder that
// failed on its own; a transcoder killed by Close is not an error.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()

		if s.src != nil {
			_ = s.src.Close()
		}

		// Wait also closes stdout.
		err := s.cmd.Wait()

		if s.feed != nil {
			if ferr := s.feed.Wait(); ferr != nil {
				s.logger.Debug("source feed ended", "err", ferr)
			}
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == -1 {
			// Terminated by a signal, normally ours.
			err = nil
		}
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		if err != nil {
			s.closeErr = fmt.Errorf("transcoder exited: %w", err)
		}

		s.logger.Debug("relay closed", "written", s.written.Load(), "duration", time.Since(s.Started))
	})

	return s.closeErr
}

// Terminate kills the transcoder without waiting for it. The goroutine
// streaming the session sees the output end and still has to Close it.
func (s *Session) Terminate() {
	s.cancel()
}

// Pid is the transcoder's process ID.
func (s *Session) Pid() int {
	return s.cmd.Process.Pid
}

// Written is the number of transcoded bytes read so far.
func (s *Session) Written() int64 {
	return s.written.Load()
}

// Title is the last stream title announced by the source, when known.
func (s *Session) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title
}

func (s *Session) setTitle(title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.title = title
}
