package streamer

import (
	"net/http"
	"net/url"
	"strings"
)

// RelayURL is the address a speaker plays to hear source through the relay.
func RelayURL(base, source string) string {
	return strings.TrimRight(base, "/") + "/relay?url=" + url.QueryEscape(source)
}

// baseURL prefers the configured public URL and falls back to the address the
// request was sent to, which is the controller's LAN address rather than
// localhost when the request came from the web UI.
func (s *Streamer) baseURL(r *http.Request) string {
	if s.cfg.PublicURL != "" {
		return s.cfg.PublicURL
	}
	return "http://" + r.Host
}
