// Package probe classifies a URI as directly playable by the speakers, or as
// needing the transcoding relay.
package probe

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zachfi/zkit/pkg/util"

	"github.com/zachfi/streamrelay/pkg/playlist"
	"github.com/zachfi/streamrelay/pkg/shoutcast"
)

const (
	defaultTimeout     = 6 * time.Second
	defaultHeadTimeout = 4 * time.Second
)

type Config struct {
	Timeout     time.Duration `yaml:"timeout,omitempty"`
	HeadTimeout time.Duration `yaml:"head-timeout,omitempty"`
	ChunkTest   bool          `yaml:"chunk-test,omitempty"`
	UserAgent   string        `yaml:"user-agent,omitempty"`
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.DurationVar(&cfg.Timeout, util.PrefixConfig(prefix, "timeout"), defaultTimeout, "Timeout for the probing GET request.")
	f.DurationVar(&cfg.HeadTimeout, util.PrefixConfig(prefix, "head-timeout"), defaultHeadTimeout, "Timeout for header-only checks of playlist candidates.")
	f.BoolVar(&cfg.ChunkTest, util.PrefixConfig(prefix, "chunk-test"), true, "Sniff the first bytes of audio responses to catch mislabeled text.")
	f.StringVar(&cfg.UserAgent, util.PrefixConfig(prefix, "user-agent"), shoutcast.SonosUserAgent, "User agent sent when probing.")
}

// Result is the classification of one URI. When a decision is reached exactly
// one of Playable and NeedsRelay is set; both are false only when the input
// itself was unusable, with the cause in Reason.
type Result struct {
	HTTPStatus  int    `json:"http_status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	FinalURL    string `json:"final_url"`
	Playable    bool   `json:"playable"`
	NeedsRelay  bool   `json:"needs_relay"`
	Reason      string `json:"reason,omitempty"`
}

// Resolver expands a playlist URI into candidates.
type Resolver interface {
	Resolve(ctx context.Context, uri string) playlist.Resolution
}

// Prober classifies URIs. It holds no per-request state and is safe for
// concurrent use.
type Prober struct {
	cfg      Config
	client   *http.Client
	head     *http.Client
	resolver Resolver
}

func New(cfg Config, resolver Resolver) *Prober {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.HeadTimeout == 0 {
		cfg.HeadTimeout = defaultHeadTimeout
	}

	return &Prober{
		cfg:      cfg,
		client:   shoutcast.NewClient(cfg.UserAgent, cfg.Timeout),
		head:     shoutcast.NewClient(cfg.UserAgent, cfg.HeadTimeout),
		resolver: resolver,
	}
}

// Probe classifies uri. It never fails: transport errors degrade to a result
// that needs the relay.
func (p *Prober) Probe(ctx context.Context, uri string) Result {
	res := Result{FinalURL: uri}

	if strings.TrimSpace(uri) == "" {
		res.Reason = "empty uri"
		return res
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return needsRelay(res, "probe error: %v", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return needsRelay(res, "probe error: %v", err)
	}
	defer resp.Body.Close()

	res.HTTPStatus = resp.StatusCode
	res.FinalURL = resp.Request.URL.String()
	res.ContentType = MediaType(resp.Header.Get("Content-Type"))

	switch {
	case playlist.HasPlaylistExt(res.FinalURL) || isHTML(res.ContentType):
		resp.Body.Close()
		return p.probeCandidates(ctx, res)

	case IsAudio(res.ContentType):
		if !p.cfg.ChunkTest {
			res.Playable = true
			return res
		}
		return sniff(resp.Body, res)

	case res.ContentType == "":
		if ctype, _, err := p.headCheck(ctx, res.FinalURL); err == nil {
			res.ContentType = ctype
			if IsAudio(ctype) {
				res.Playable = true
				return res
			}
		}
	}

	return needsRelay(res, "unsupported MIME: %s", res.ContentType)
}

// probeCandidates resolves the playlist at res.FinalURL and accepts the first
// candidate, in playlist order, whose headers announce audio.
func (p *Prober) probeCandidates(ctx context.Context, res Result) Result {
	res.Reason = "redirects to playlist or HTML"
	res.NeedsRelay = true

	resolution := p.resolver.Resolve(ctx, res.FinalURL)
	for _, candidate := range resolution.Candidates {
		ctype, finalURL, err := p.headCheck(ctx, candidate)
		if err != nil || !IsAudio(ctype) {
			continue
		}

		res.Playable = true
		res.NeedsRelay = false
		res.FinalURL = finalURL
		return res
	}

	return res
}

// headCheck issues a header-only request and returns the media type and the
// URL reached after redirects.
func (p *Prober) headCheck(ctx context.Context, uri string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, uri, nil)
	if err != nil {
		return "", "", err
	}

	resp, err := p.head.Do(req)
	if err != nil {
		return "", "", err
	}
	resp.Body.Close()

	return MediaType(resp.Header.Get("Content-Type")), resp.Request.URL.String(), nil
}

// sniff reads the first chunk of an audio-typed body and rejects empty or
// text-like content.
func sniff(body io.Reader, res Result) Result {
	chunk := make([]byte, sniffSize)
	n, err := io.ReadFull(body, chunk)
	chunk = chunk[:n]

	// A partial chunk is judged on what arrived before the error.
	if n == 0 {
		if errors.Is(err, io.EOF) {
			return needsRelay(res, "no data")
		}
		return needsRelay(res, "chunk read failed: %v", err)
	}

	if looksLikeText(chunk, res.ContentType) {
		return needsRelay(res, "first chunk looks like text")
	}

	res.Playable = true
	return res
}

func needsRelay(res Result, format string, args ...any) Result {
	res.Playable = false
	res.NeedsRelay = true
	res.Reason = fmt.Sprintf(format, args...)
	return res
}
