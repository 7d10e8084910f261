// Package relay transcodes an arbitrary audio source into a speaker-compatible
// MP3 stream by running an external transcoder per listener.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/zachfi/streamrelay/pkg/playlist"
	"github.com/zachfi/streamrelay/pkg/shoutcast"
)

var (
	// ErrTranscoderNotFound means no relay is possible on this host.
	ErrTranscoderNotFound = errors.New("transcoder not found")
	// ErrEmptySource is returned when no source URI was given.
	ErrEmptySource = errors.New("empty source uri")
	// ErrClientGone wraps write failures towards the listener.
	ErrClientGone = errors.New("client gone")
)

// How long Close waits for the transcoder's pipes after killing it.
const waitDelay = 2 * time.Second

// Resolver expands a playlist URI into candidates.
type Resolver interface {
	Resolve(ctx context.Context, uri string) playlist.Resolution
}

// Opener starts relay sessions. It holds no per-session state.
type Opener struct {
	cfg      Config
	resolver Resolver
	client   *http.Client
	logger   *slog.Logger
}

func NewOpener(cfg Config, resolver Resolver, logger *slog.Logger) (*Opener, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if logger == nil {
		logger = slog.Default()
	}

	return &Opener{
		cfg:      cfg,
		resolver: resolver,
		// The source is read for as long as someone listens.
		client: shoutcast.NewClient(cfg.UserAgent, 0),
		logger: logger,
	}, nil
}

// LookupTranscoder returns the absolute path of the configured transcoder.
func (o *Opener) LookupTranscoder() (string, error) {
	path, err := exec.LookPath(o.cfg.Binary)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrTranscoderNotFound, o.cfg.Binary, err)
	}
	return path, nil
}

// Open starts transcoding source. Playlist URLs are replaced by their first
// candidate without further probing. The session lives until Close is called
// or ctx is done; either terminates the transcoder.
func (o *Opener) Open(ctx context.Context, source string, opts Options) (*Session, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, ErrEmptySource
	}

	if playlist.HasPlaylistExt(source) {
		if res := o.resolver.Resolve(ctx, source); len(res.Candidates) > 0 {
			o.logger.Debug("relaying first playlist candidate", "playlist", source, "candidate", res.Candidates[0])
			source = res.Candidates[0]
		} else if res.Err != nil {
			o.logger.Warn("playlist resolution failed, relaying as is", "playlist", source, "err", res.Err)
		}
	}

	path, err := o.LookupTranscoder()
	if err != nil {
		return nil, err
	}

	if opts.Bitrate <= 0 {
		opts.Bitrate = o.cfg.Bitrate
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = o.cfg.SampleRate
	}

	ctx, cancel := context.WithCancel(ctx)

	s := &Session{
		ID:         ulid.Make().String(),
		Source:     source,
		Input:      o.cfg.Input,
		Bitrate:    opts.Bitrate,
		SampleRate: opts.SampleRate,
		Started:    time.Now(),
		chunkSize:  o.cfg.ChunkSize,
		cancel:     cancel,
	}
	s.logger = o.logger.With("session", s.ID)

	input := source
	if o.cfg.Input == InputFetch {
		src, err := shoutcast.Open(ctx, o.client, source)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to open source: %w", err)
		}
		src.MetadataCallbackFunc = func(m *shoutcast.Metadata) {
			s.setTitle(m.StreamTitle)
			s.logger.Info("now playing", "title", m.StreamTitle)
		}
		s.src = src
		input = stdinInput
	}

	cmd := exec.CommandContext(ctx, path, transcoderArgs(input, o.cfg.UserAgent, opts.Bitrate, opts.SampleRate)...)
	// Transcoder diagnostics are discarded.
	cmd.Stderr = nil
	cmd.WaitDelay = waitDelay

	if err := s.start(cmd); err != nil {
		cancel()
		if s.src != nil {
			_ = s.src.Close()
		}
		return nil, err
	}

	s.logger.Debug("relay started", "source", source, "pid", cmd.Process.Pid, "bitrate", opts.Bitrate, "sample_rate", opts.SampleRate)

	return s, nil
}

// start launches cmd with its pipes attached to the session.
func (s *Session) start(cmd *exec.Cmd) error {
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe error: %w", err)
	}

	var stdin io.WriteCloser
	if s.src != nil {
		stdin, err = cmd.StdinPipe()
		if err != nil {
			return fmt.Errorf("stdin pipe error: %w", err)
		}
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start transcoder: %w", err)
	}

	s.cmd = cmd
	s.stdout = stdout

	if stdin != nil {
		s.feed = &errgroup.Group{}
		s.feed.Go(func() error {
			defer stdin.Close()
			// One chunk in flight: a stalled transcoder stalls the source read.
			buf := make([]byte, s.chunkSize)
			_, err := io.CopyBuffer(struct{ io.Writer }{stdin}, s.src, buf)
			return err
		})
	}

	return nil
}
