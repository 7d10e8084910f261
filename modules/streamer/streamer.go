package streamer

import (
	"context"
	"log/slog"
	"sync"

	"github.com/grafana/dskit/services"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/zachfi/streamrelay/pkg/playlist"
	"github.com/zachfi/streamrelay/pkg/probe"
	"github.com/zachfi/streamrelay/pkg/relay"
)

var module = "streamer"

// Streamer wires probe, resolve and relay requests to the packages doing the
// work, and keeps track of live relay sessions.
type Streamer struct {
	services.Service
	cfg    *Config
	logger *slog.Logger
	tracer trace.Tracer

	resolver *playlist.Resolver
	prober   *probe.Prober
	opener   *relay.Opener

	mu       sync.Mutex
	sessions map[string]*relay.Session
}

// New creates and returns a new Streamer.
func New(cfg Config, logger slog.Logger) (*Streamer, error) {
	l := logger.With("module", module)

	resolver := playlist.NewResolver(cfg.Playlist)

	opener, err := relay.NewOpener(cfg.Relay, resolver, l)
	if err != nil {
		return nil, errors.Wrap(err, "invalid relay config")
	}

	s := &Streamer{
		cfg:      &cfg,
		logger:   l,
		tracer:   otel.Tracer(module),
		resolver: resolver,
		prober:   probe.New(cfg.Probe, resolver),
		opener:   opener,
		sessions: make(map[string]*relay.Session),
	}

	s.Service = services.NewBasicService(s.starting, s.running, s.stopping)

	return s, nil
}

func (s *Streamer) starting(_ context.Context) error {
	// A missing transcoder only fails relay requests; probing still works.
	if path, err := s.opener.LookupTranscoder(); err != nil {
		s.logger.Warn("relay unavailable", "err", err)
	} else {
		s.logger.Info("relay ready", "transcoder", path, "input", s.cfg.Relay.Input)
	}

	return nil
}

func (s *Streamer) running(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (s *Streamer) stopping(_ error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("stopping", "sessions", len(s.sessions))

	// Handlers close their own sessions once the output ends.
	for _, sess := range s.sessions {
		sess.Terminate()
	}

	return nil
}

func (s *Streamer) track(sess *relay.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	metricSessionsActive.Inc()
}

func (s *Streamer) untrack(sess *relay.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; ok {
		delete(s.sessions, sess.ID)
		metricSessionsActive.Dec()
	}
}

func (s *Streamer) liveSessions() []*relay.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*relay.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}

// PlayTarget classifies uri and returns what a speaker should be told to play:
// the direct stream when it is playable, or the relay URL otherwise.
func (s *Streamer) PlayTarget(ctx context.Context, uri, base string) (string, bool, probe.Result) {
	res := s.prober.Probe(ctx, uri)
	metricProbes.WithLabelValues(outcome(res)).Inc()

	if res.Playable {
		return res.FinalURL, false, res
	}
	return RelayURL(base, uri), true, res
}

func outcome(res probe.Result) string {
	switch {
	case res.Playable:
		return "playable"
	case res.NeedsRelay:
		return "relay"
	default:
		return "invalid"
	}
}
