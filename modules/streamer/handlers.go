package streamer

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/v4/process"
	"github.com/zachfi/zkit/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zachfi/streamrelay/pkg/playlist"
	"github.com/zachfi/streamrelay/pkg/probe"
	"github.com/zachfi/streamrelay/pkg/relay"
)

// RegisterRoutes installs the streamer's HTTP API on router.
func (s *Streamer) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/streams/probe", s.probeHandler).Methods(http.MethodPost)
	router.HandleFunc("/streams/resolve", s.resolveHandler).Methods(http.MethodPost)
	router.HandleFunc("/playlist/resolve", s.playlistHandler).Methods(http.MethodGet)
	router.HandleFunc("/relay/sessions", s.sessionsHandler).Methods(http.MethodGet)
	router.HandleFunc("/relay", s.relayHandler).Methods(http.MethodGet, http.MethodHead)
}

type uriRequest struct {
	URI string `json:"uri"`
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeURI(r *http.Request) string {
	var req uriRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return ""
	}
	return strings.TrimSpace(req.URI)
}

func (s *Streamer) probeHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.tracer.Start(r.Context(), "Streamer.Probe")
	defer span.End()

	uri := decodeURI(r)
	if uri == "" {
		writeJSON(w, http.StatusBadRequest, statusResponse{Status: "error", Message: "no uri"})
		return
	}

	res := s.prober.Probe(ctx, uri)
	metricProbes.WithLabelValues(outcome(res)).Inc()

	span.SetAttributes(
		attribute.String("uri", uri),
		attribute.String("final_url", res.FinalURL),
		attribute.Bool("playable", res.Playable),
		attribute.Bool("needs_relay", res.NeedsRelay),
	)
	s.logger.Debug("probed", "uri", uri, "final_url", res.FinalURL, "playable", res.Playable, "needs_relay", res.NeedsRelay, "reason", res.Reason)

	writeJSON(w, http.StatusOK, res)
}

type resolveResponse struct {
	Status string       `json:"status"`
	URI    string       `json:"uri"`
	Relay  bool         `json:"relay"`
	Probe  probe.Result `json:"probe"`
}

func (s *Streamer) resolveHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.tracer.Start(r.Context(), "Streamer.Resolve")
	defer span.End()

	uri := decodeURI(r)
	if uri == "" {
		writeJSON(w, http.StatusBadRequest, statusResponse{Status: "error", Message: "no uri"})
		return
	}

	target, relayed, res := s.PlayTarget(ctx, uri, s.baseURL(r))
	span.SetAttributes(attribute.String("uri", uri), attribute.String("target", target), attribute.Bool("relay", relayed))
	s.logger.Info("play target", "uri", uri, "target", target, "relay", relayed, "reason", res.Reason)

	writeJSON(w, http.StatusOK, resolveResponse{Status: "ok", URI: target, Relay: relayed, Probe: res})
}

type playlistResponse struct {
	playlist.Resolution
	Error string `json:"error,omitempty"`
}

func (s *Streamer) playlistHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.tracer.Start(r.Context(), "Streamer.ResolvePlaylist")
	defer span.End()

	target := strings.TrimSpace(r.URL.Query().Get("url"))
	if target == "" {
		writeJSON(w, http.StatusBadRequest, statusResponse{Status: "error", Message: "no url"})
		return
	}

	res := s.resolver.Resolve(ctx, target)
	resp := playlistResponse{Resolution: res}
	if res.Err != nil {
		resp.Error = res.Err.Error()
		s.logger.Debug("playlist resolution failed", "url", target, "err", res.Err)
	}
	span.SetAttributes(attribute.Int("candidates", len(res.Candidates)))

	writeJSON(w, http.StatusOK, resp)
}

func (s *Streamer) relayHandler(w http.ResponseWriter, r *http.Request) {
	var err error

	ctx, span := s.tracer.Start(r.Context(), "Streamer.Relay")
	defer func() {
		_ = tracing.ErrHandler(span, err, "relay failed", s.logger)
	}()

	q := r.URL.Query()
	target := strings.TrimSpace(q.Get("url"))
	if target == "" {
		http.Error(w, "No URL provided", http.StatusBadRequest)
		return
	}
	span.SetAttributes(attribute.String("url", target))

	opts, perr := relayOptions(q.Get("bitrate"), q.Get("samplerate"))
	if perr != nil {
		http.Error(w, perr.Error(), http.StatusBadRequest)
		return
	}

	if r.Method == http.MethodHead {
		if _, err = s.opener.LookupTranscoder(); err != nil {
			http.Error(w, "Relay failed: "+err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.WriteHeader(http.StatusOK)
		return
	}

	sess, err := s.opener.Open(ctx, target, opts)
	if err != nil {
		metricSessions.WithLabelValues("failed").Inc()
		code := http.StatusInternalServerError
		if errors.Is(err, relay.ErrEmptySource) {
			code = http.StatusBadRequest
		}
		http.Error(w, "Relay failed: "+err.Error(), code)
		return
	}

	s.track(sess)
	defer s.untrack(sess)

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	flush := func() error {
		if ferr := rc.Flush(); ferr != nil && !errors.Is(ferr, http.ErrNotSupported) {
			return ferr
		}
		return nil
	}

	streamErr := sess.Stream(w, flush)
	closeErr := sess.Close()
	metricRelayBytes.Add(float64(sess.Written()))

	switch {
	case errors.Is(streamErr, relay.ErrClientGone):
		metricSessions.WithLabelValues("client_gone").Inc()
		s.logger.Info("listener disconnected", "session", sess.ID, "written", sess.Written())
	case streamErr != nil:
		metricSessions.WithLabelValues("error").Inc()
		err = streamErr
	case closeErr != nil:
		metricSessions.WithLabelValues("error").Inc()
		err = closeErr
	default:
		metricSessions.WithLabelValues("ended").Inc()
		s.logger.Info("relay ended", "session", sess.ID, "written", sess.Written())
	}
}

func relayOptions(bitrate, sampleRate string) (relay.Options, error) {
	var opts relay.Options

	if bitrate != "" {
		br, err := relay.ParseBitrate(bitrate)
		if err != nil || br <= 0 {
			return opts, errors.New("invalid bitrate")
		}
		opts.Bitrate = br
	}

	if sampleRate != "" {
		sr, err := strconv.Atoi(sampleRate)
		if err != nil || sr <= 0 {
			return opts, errors.New("invalid samplerate")
		}
		opts.SampleRate = sr
	}

	return opts, nil
}

type sessionInfo struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	Input      string    `json:"input"`
	Title      string    `json:"title,omitempty"`
	Bitrate    int       `json:"bitrate"`
	SampleRate int       `json:"sample_rate"`
	Started    time.Time `json:"started"`
	Bytes      int64     `json:"bytes"`
	Pid        int       `json:"pid"`
	RSS        uint64    `json:"rss,omitempty"`
	CPUPercent float64   `json:"cpu_percent,omitempty"`
}

func (s *Streamer) sessionsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sessions := s.liveSessions()
	slices.SortFunc(sessions, func(a, b *relay.Session) int {
		return a.Started.Compare(b.Started)
	})

	infos := make([]sessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		info := sessionInfo{
			ID:         sess.ID,
			Source:     sess.Source,
			Input:      sess.Input,
			Title:      sess.Title(),
			Bitrate:    sess.Bitrate,
			SampleRate: sess.SampleRate,
			Started:    sess.Started,
			Bytes:      sess.Written(),
			Pid:        sess.Pid(),
		}

		// Stats are best effort; the process may exit at any moment.
		if p, err := process.NewProcessWithContext(ctx, int32(info.Pid)); err == nil {
			if mem, err := p.MemoryInfoWithContext(ctx); err == nil {
				info.RSS = mem.RSS
			}
			if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
				info.CPUPercent = cpu
			}
		}

		infos = append(infos, info)
	}

	writeJSON(w, http.StatusOK, map[string]any{"sessions": infos})
}
