package playlist

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/zachfi/zkit/pkg/util"
	"golang.org/x/net/html/charset"

	"github.com/zachfi/streamrelay/pkg/shoutcast"
)

const (
	defaultTimeout   = 6 * time.Second
	defaultUserAgent = "Linux UPnP/1.0 Sonos/99.9 (PlaylistResolver)"

	// Playlists are small; anything larger is not worth parsing.
	maxPlaylistBytes = 1 << 20
)

type Config struct {
	Timeout   time.Duration `yaml:"timeout,omitempty"`
	UserAgent string        `yaml:"user-agent,omitempty"`
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.DurationVar(&cfg.Timeout, util.PrefixConfig(prefix, "timeout"), defaultTimeout, "Timeout for fetching a playlist.")
	f.StringVar(&cfg.UserAgent, util.PrefixConfig(prefix, "user-agent"), defaultUserAgent, "User agent sent when fetching playlists.")
}

// Resolution is the outcome of resolving one URI. A failed resolution has no
// candidates and carries the reason in Err; callers treat it as "no
// candidates found".
type Resolution struct {
	URI        string   `json:"uri"`
	FinalURL   string   `json:"final_url,omitempty"`
	Format     Format   `json:"format"`
	Candidates []string `json:"candidates"`
	Err        error    `json:"-"`
}

// OK reports whether at least one candidate was found.
func (r Resolution) OK() bool {
	return r.Err == nil && len(r.Candidates) > 0
}

// Resolver fetches playlists and extracts absolute candidate URIs.
type Resolver struct {
	client *http.Client
}

func NewResolver(cfg Config) *Resolver {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	return NewResolverWithClient(shoutcast.NewClient(cfg.UserAgent, cfg.Timeout))
}

// NewResolverWithClient uses client for all fetches. The client is expected to
// follow redirects and carry its own timeout.
func NewResolverWithClient(client *http.Client) *Resolver {
	return &Resolver{client: client}
}

// Resolve fetches uri, parses it as a playlist and returns its candidates in
// file order, made absolute against the final fetched URL.
func (r *Resolver) Resolve(ctx context.Context, uri string) Resolution {
	res := Resolution{URI: uri}

	text, finalURL, err := r.fetch(ctx, uri)
	if err != nil {
		res.Err = err
		return res
	}
	res.FinalURL = finalURL
	res.Format = DetectFormat(finalURL, text)

	for _, c := range ParserFor(res.Format)(text) {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		res.Candidates = append(res.Candidates, absolutize(finalURL, c))
	}

	return res
}

func (r *Resolver) fetch(ctx context.Context, uri string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return "", "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("failed to fetch playlist: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", "", fmt.Errorf("failed to fetch playlist: status %d", resp.StatusCode)
	}

	var body io.Reader = io.LimitReader(resp.Body, maxPlaylistBytes)
	if decoded, err := charset.NewReader(body, resp.Header.Get("Content-Type")); err == nil {
		body = decoded
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return "", "", fmt.Errorf("failed to read playlist: %w", err)
	}

	return string(data), resp.Request.URL.String(), nil
}

// absolutize resolves a relative candidate against the directory of base:
// the last path segment is dropped and the candidate, without leading
// slashes, is appended. Candidates with a scheme are returned as is.
func absolutize(base, candidate string) string {
	if u, err := url.Parse(candidate); err == nil && u.IsAbs() {
		return candidate
	}

	dir := base
	if u, err := url.Parse(base); err == nil {
		u.RawQuery = ""
		u.Fragment = ""
		if u.Path == "" {
			u.Path = "/"
		}
		dir = u.String()
	}
	if i := strings.LastIndex(dir, "/"); i >= 0 {
		dir = dir[:i]
	}

	return dir + "/" + strings.TrimLeft(candidate, "/")
}
