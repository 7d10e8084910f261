package streamer

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/v4/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zachfi/streamrelay/pkg/probe"
	"github.com/zachfi/streamrelay/pkg/relay"
)

func fakeTranscoder(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake transcoder needs a POSIX shell")
	}

	path := filepath.Join(t.TempDir(), "fake-ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func newTestStreamer(t *testing.T, cfg Config) (*Streamer, *httptest.Server) {
	t.Helper()

	cfg.Probe.ChunkTest = true
	cfg.Probe.Timeout = 2 * time.Second
	cfg.Probe.HeadTimeout = time.Second
	cfg.Playlist.Timeout = 2 * time.Second

	s, err := New(cfg, *slog.Default())
	require.NoError(t, err)

	router := mux.NewRouter()
	s.RegisterRoutes(router)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return s, srv
}

func postURI(t *testing.T, endpoint, uri string) *http.Response {
	t.Helper()
	body, err := json.Marshal(uriRequest{URI: uri})
	require.NoError(t, err)

	resp, err := http.Post(endpoint, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp
}

func audioOrigin(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/direct.mp3":
			w.Header().Set("Content-Type", "audio/mpeg")
			_, _ = w.Write(bytes.Repeat([]byte{0xFF, 0xFB, 0x90, 0x00}, 1024))
		default:
			w.Header().Set("Content-Type", "video/mp2t")
			_, _ = w.Write(bytes.Repeat([]byte{0x47, 0x00}, 1024))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestProbeEndpoint(t *testing.T) {
	origin := audioOrigin(t)
	_, srv := newTestStreamer(t, Config{})

	t.Run("no uri", func(t *testing.T) {
		resp := postURI(t, srv.URL+"/streams/probe", "")
		defer resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var body statusResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "no uri", body.Message)
	})

	t.Run("playable", func(t *testing.T) {
		resp := postURI(t, srv.URL+"/streams/probe", origin.URL+"/direct.mp3")
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)

		var raw map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
		assert.Equal(t, true, raw["playable"])
		assert.Equal(t, false, raw["needs_relay"])
		assert.Equal(t, "audio/mpeg", raw["content_type"])
		assert.Equal(t, float64(200), raw["http_status"])
		assert.Equal(t, origin.URL+"/direct.mp3", raw["final_url"])
	})
}

func TestResolveEndpoint(t *testing.T) {
	origin := audioOrigin(t)
	_, srv := newTestStreamer(t, Config{PublicURL: "http://192.168.1.10:3030/"})

	t.Run("direct", func(t *testing.T) {
		resp := postURI(t, srv.URL+"/streams/resolve", origin.URL+"/direct.mp3")
		defer resp.Body.Close()

		var body resolveResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "ok", body.Status)
		assert.False(t, body.Relay)
		assert.Equal(t, origin.URL+"/direct.mp3", body.URI)
		assert.True(t, body.Probe.Playable)
	})

	t.Run("relayed", func(t *testing.T) {
		source := origin.URL + "/live.ts?token=abc&x=1"
		resp := postURI(t, srv.URL+"/streams/resolve", source)
		defer resp.Body.Close()

		var body resolveResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.True(t, body.Relay)
		assert.Equal(t, "http://192.168.1.10:3030/relay?url="+url.QueryEscape(source), body.URI)
		assert.True(t, body.Probe.NeedsRelay)
		assert.Equal(t, "unsupported MIME: video/mp2t", body.Probe.Reason)
	})
}

func TestPlayTargetDefaultsToRequestHost(t *testing.T) {
	s, _ := newTestStreamer(t, Config{})

	r := httptest.NewRequest(http.MethodPost, "http://controller.lan:5000/streams/resolve", nil)
	assert.Equal(t, "http://controller.lan:5000", s.baseURL(r))

	target, relayed, res := s.PlayTarget(context.Background(), "http://127.0.0.1:1/unreachable", s.baseURL(r))
	assert.True(t, relayed)
	assert.True(t, res.NeedsRelay)
	assert.Equal(t, "http://controller.lan:5000/relay?url=http%3A%2F%2F127.0.0.1%3A1%2Funreachable", target)
}

func TestPlaylistEndpoint(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("#EXTM3U\nhttp://a.example/one\ntwo.mp3\n"))
	}))
	defer origin.Close()

	_, srv := newTestStreamer(t, Config{})

	resp, err := http.Get(srv.URL + "/playlist/resolve?url=" + url.QueryEscape(origin.URL+"/dir/list.m3u"))
	require.NoError(t, err)
	defer resp.Body.Close()

	var raw map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	assert.Equal(t, "m3u", raw["format"])
	assert.Equal(t, []any{"http://a.example/one", origin.URL + "/dir/two.mp3"}, raw["candidates"])
	assert.NotContains(t, raw, "error")
}

func TestRelayEndpoint(t *testing.T) {
	t.Run("no url", func(t *testing.T) {
		_, srv := newTestStreamer(t, Config{})

		resp, err := http.Get(srv.URL + "/relay")
		require.NoError(t, err)
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, string(body), "No URL provided")
	})

	t.Run("missing transcoder", func(t *testing.T) {
		_, srv := newTestStreamer(t, Config{Relay: relay.Config{Binary: "streamrelay-no-such-transcoder"}})

		resp, err := http.Get(srv.URL + "/relay?url=" + url.QueryEscape("http://radio.example/stream"))
		require.NoError(t, err)
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.Contains(t, string(body), "Relay failed")
		assert.Contains(t, string(body), relay.ErrTranscoderNotFound.Error())
	})

	t.Run("invalid bitrate", func(t *testing.T) {
		_, srv := newTestStreamer(t, Config{Relay: relay.Config{Binary: fakeTranscoder(t, "exec yes")}})

		resp, err := http.Get(srv.URL + "/relay?bitrate=loud&url=" + url.QueryEscape("http://radio.example/stream"))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("streams transcoder output", func(t *testing.T) {
		_, srv := newTestStreamer(t, Config{Relay: relay.Config{Binary: fakeTranscoder(t, `echo "$@"`)}})

		resp, err := http.Get(srv.URL + "/relay?bitrate=64k&samplerate=32000&url=" + url.QueryEscape("http://radio.example/stream"))
		require.NoError(t, err)
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "audio/mpeg", resp.Header.Get("Content-Type"))
		assert.Contains(t, string(body), "-i http://radio.example/stream")
		assert.Contains(t, string(body), "-b:a 64k")
		assert.Contains(t, string(body), "-ar 32000")
	})

	t.Run("head", func(t *testing.T) {
		_, srv := newTestStreamer(t, Config{Relay: relay.Config{Binary: fakeTranscoder(t, "exec yes")}})

		resp, err := http.Head(srv.URL + "/relay?url=" + url.QueryEscape("http://radio.example/stream"))
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "audio/mpeg", resp.Header.Get("Content-Type"))
	})
}

func sessionList(t *testing.T, srvURL string) []sessionInfo {
	t.Helper()

	resp, err := http.Get(srvURL + "/relay/sessions")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Sessions []sessionInfo `json:"sessions"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.Sessions
}

func TestRelayDisconnectTerminatesTranscoder(t *testing.T) {
	_, srv := newTestStreamer(t, Config{Relay: relay.Config{Binary: fakeTranscoder(t, "exec yes relay")}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/relay?url="+url.QueryEscape("http://radio.example/stream"), nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	buf := make([]byte, 16*1024)
	_, err = io.ReadFull(resp.Body, buf)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(buf), "relay\n"))

	sessions := sessionList(t, srv.URL)
	require.Len(t, sessions, 1)
	assert.Equal(t, "http://radio.example/stream", sessions[0].Source)
	assert.Equal(t, relay.InputDirect, sessions[0].Input)
	pid := sessions[0].Pid
	require.NotZero(t, pid)

	cancel()
	resp.Body.Close()

	require.Eventually(t, func() bool {
		exists, err := process.PidExists(int32(pid))
		return err == nil && !exists
	}, 5*time.Second, 50*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(sessionList(t, srv.URL)) == 0
	}, 5*time.Second, 50*time.Millisecond)
}

func TestStoppingTerminatesSessions(t *testing.T) {
	s, srv := newTestStreamer(t, Config{Relay: relay.Config{Binary: fakeTranscoder(t, "exec yes relay")}})

	resp, err := http.Get(srv.URL + "/relay?url=" + url.QueryEscape("http://radio.example/stream"))
	require.NoError(t, err)
	defer resp.Body.Close()

	buf := make([]byte, 1024)
	_, err = io.ReadFull(resp.Body, buf)
	require.NoError(t, err)

	require.NoError(t, s.stopping(nil))

	// The response ends once the transcoder is gone.
	done := make(chan struct{})
	go func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("relay response did not end")
	}
}

func TestRelayURL(t *testing.T) {
	assert.Equal(t,
		"http://host:5000/relay?url=https%3A%2F%2Fradio.example%2Fa.pls%3Fx%3D1",
		RelayURL("http://host:5000/", "https://radio.example/a.pls?x=1"))
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "playable", outcome(probe.Result{Playable: true}))
	assert.Equal(t, "relay", outcome(probe.Result{NeedsRelay: true}))
	assert.Equal(t, "invalid", outcome(probe.Result{Reason: "empty uri"}))
}

func TestNewRejectsBadRelayInput(t *testing.T) {
	_, err := New(Config{Relay: relay.Config{Input: "carrier-pigeon"}}, *slog.Default())
	assert.Error(t, err)
}
