package probe

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zachfi/streamrelay/pkg/playlist"
)

var binaryAudio = bytes.Repeat([]byte{0xFF, 0xFB, 0x90, 0x00, 0x12, 0x80}, 700)

func newTestProber(chunkTest bool) *Prober {
	resolver := playlist.NewResolver(playlist.Config{Timeout: 2 * time.Second})
	return New(Config{
		Timeout:     2 * time.Second,
		HeadTimeout: time.Second,
		ChunkTest:   chunkTest,
	}, resolver)
}

func serveBody(contentType string, body []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if contentType == "" {
			w.Header()["Content-Type"] = nil
		} else {
			w.Header().Set("Content-Type", contentType)
		}
		if r.Method == http.MethodHead {
			return
		}
		_, _ = w.Write(body)
	}
}

func TestProbeEmptyURI(t *testing.T) {
	res := newTestProber(true).Probe(context.Background(), "  ")

	assert.Equal(t, "empty uri", res.Reason)
	assert.False(t, res.Playable)
	assert.False(t, res.NeedsRelay)
}

func TestProbeDirectAudio(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/live", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/stream.mp3", http.StatusFound)
	})
	mux.Handle("/stream.mp3", serveBody("audio/mpeg; charset=binary", binaryAudio))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	res := newTestProber(true).Probe(context.Background(), srv.URL+"/live")

	assert.True(t, res.Playable)
	assert.False(t, res.NeedsRelay)
	assert.Equal(t, http.StatusOK, res.HTTPStatus)
	assert.Equal(t, "audio/mpeg", res.ContentType)
	assert.Equal(t, srv.URL+"/stream.mp3", res.FinalURL)
}

func TestProbePlaylistFirstCandidateWins(t *testing.T) {
	var first, second atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/station", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/radio.m3u", http.StatusFound)
	})
	mux.Handle("/radio.m3u", serveBody("audio/x-mpegurl", []byte("#EXTM3U\nfirst.aac\nsecond.aac\n")))
	mux.HandleFunc("/first.aac", func(w http.ResponseWriter, r *http.Request) {
		first.Add(1)
		w.Header().Set("Content-Type", "audio/aac")
	})
	mux.HandleFunc("/second.aac", func(w http.ResponseWriter, r *http.Request) {
		second.Add(1)
		w.Header().Set("Content-Type", "audio/aac")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	res := newTestProber(true).Probe(context.Background(), srv.URL+"/station")

	assert.True(t, res.Playable)
	assert.False(t, res.NeedsRelay)
	assert.Equal(t, srv.URL+"/first.aac", res.FinalURL)
	assert.Equal(t, int32(1), first.Load())
	assert.Equal(t, int32(0), second.Load())
}

func TestProbePlaylistSkipsUnplayableCandidates(t *testing.T) {
	mux := http.NewServeMux()
	mux.Handle("/radio.pls", serveBody("audio/x-scpls", []byte("[playlist]\nFile1=page.html\nFile2=missing\nFile3=ok.ogg\n")))
	mux.Handle("/page.html", serveBody("text/html", []byte("<html></html>")))
	mux.Handle("/ok.ogg", serveBody("audio/ogg", nil))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	res := newTestProber(true).Probe(context.Background(), srv.URL+"/radio.pls")

	assert.True(t, res.Playable)
	assert.Equal(t, srv.URL+"/ok.ogg", res.FinalURL)
}

func TestProbeHTMLWithoutPlayableCandidates(t *testing.T) {
	mux := http.NewServeMux()
	mux.Handle("/", serveBody("text/html; charset=utf-8", []byte("<html><body>Listen live!</body></html>")))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	res := newTestProber(true).Probe(context.Background(), srv.URL+"/landing")

	assert.False(t, res.Playable)
	assert.True(t, res.NeedsRelay)
	assert.Equal(t, "text/html", res.ContentType)
	assert.Equal(t, "redirects to playlist or HTML", res.Reason)
}

func TestProbeMislabeledText(t *testing.T) {
	srv := httptest.NewServer(serveBody("audio/mpeg", []byte(strings.Repeat("not audio at all ", 200))))
	defer srv.Close()

	res := newTestProber(true).Probe(context.Background(), srv.URL+"/stream")

	assert.False(t, res.Playable)
	assert.True(t, res.NeedsRelay)
	assert.Contains(t, res.Reason, "text")
}

func TestProbeNoData(t *testing.T) {
	srv := httptest.NewServer(serveBody("audio/mpeg", nil))
	defer srv.Close()

	res := newTestProber(true).Probe(context.Background(), srv.URL+"/stream")

	assert.True(t, res.NeedsRelay)
	assert.Equal(t, "no data", res.Reason)
}

func TestProbeChunkTestDisabled(t *testing.T) {
	srv := httptest.NewServer(serveBody("audio/mpeg", nil))
	defer srv.Close()

	res := newTestProber(false).Probe(context.Background(), srv.URL+"/stream")

	assert.True(t, res.Playable)
	assert.False(t, res.NeedsRelay)
}

func TestProbeMissingContentTypeFallsBackToHead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Type", "audio/aacp")
			return
		}
		w.Header()["Content-Type"] = nil
		_, _ = w.Write(binaryAudio)
	}))
	defer srv.Close()

	res := newTestProber(true).Probe(context.Background(), srv.URL+"/stream")

	assert.True(t, res.Playable)
	assert.Equal(t, "audio/aacp", res.ContentType)
}

func TestProbeUnsupportedMIME(t *testing.T) {
	srv := httptest.NewServer(serveBody("application/octet-stream", binaryAudio))
	defer srv.Close()

	res := newTestProber(true).Probe(context.Background(), srv.URL+"/stream")

	assert.False(t, res.Playable)
	assert.True(t, res.NeedsRelay)
	assert.Equal(t, "unsupported MIME: application/octet-stream", res.Reason)
}

func TestProbeNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	res := newTestProber(true).Probe(context.Background(), url+"/stream")

	assert.False(t, res.Playable)
	assert.True(t, res.NeedsRelay)
	require.NotEmpty(t, res.Reason)
	assert.True(t, strings.HasPrefix(res.Reason, "probe error: "))
	assert.Equal(t, url+"/stream", res.FinalURL)
}
