package shoutcast

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
)

// MetadataCallbackFunc is the type of the function called when the stream metadata changes
type MetadataCallbackFunc func(m *Metadata)

// Stream represents an open shoutcast stream.
type Stream struct {
	// The name of the server
	Name string

	// What category the server falls under
	Genre string

	// The description of the stream
	Description string

	// Homepage of the server
	URL string

	// Bitrate of the server
	Bitrate int

	// ContentType is the media type announced by the server
	ContentType string

	// Optional function to be executed when stream metadata changes
	MetadataCallbackFunc MetadataCallbackFunc

	// Amount of bytes to read before expecting a metadata block, zero when the
	// server does not interleave metadata
	metaint int

	// Stream metadata
	metadata *Metadata

	// The number of bytes read since last metadata block
	pos int

	// The underlying data stream
	rc io.ReadCloser
}

// Open establishes a connection to a remote server. The client should not carry
// an overall timeout, since the stream is expected to be read indefinitely.
func Open(ctx context.Context, client *http.Client, url string) (*Stream, error) {
	slog.Debug("opening stream", "url", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Add("icy-metadata", "1")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}

	for k, v := range resp.Header {
		slog.Debug("HTTP header", "key", k, "value", v[0])
	}

	var bitrate int
	if rawBitrate := resp.Header.Get("icy-br"); rawBitrate != "" {
		// Some servers send "128,128"; only the leading value matters.
		bitrate, _ = strconv.Atoi(leadingDigits(rawBitrate))
	}

	var metaint int
	if rawMetaint := resp.Header.Get("icy-metaint"); rawMetaint != "" {
		metaint, err = strconv.Atoi(rawMetaint)
		if err != nil || metaint < 0 {
			resp.Body.Close()
			return nil, fmt.Errorf("cannot parse metaint %q: %v", rawMetaint, err)
		}
	}

	s := &Stream{
		Name:        resp.Header.Get("icy-name"),
		Genre:       resp.Header.Get("icy-genre"),
		Description: resp.Header.Get("icy-description"),
		URL:         resp.Header.Get("icy-url"),
		Bitrate:     bitrate,
		ContentType: resp.Header.Get("Content-Type"),
		metaint:     metaint,
		rc:          resp.Body,
	}

	return s, nil
}

// NewStream wraps an already open body. A metaint of zero passes bytes through.
func NewStream(rc io.ReadCloser, metaint int) *Stream {
	return &Stream{rc: rc, metaint: metaint}
}

// Read implements the standard Read interface. Only audio bytes are returned;
// metadata blocks are consumed and reported through MetadataCallbackFunc.
func (s *Stream) Read(buf []byte) (int, error) {
	if s.metaint == 0 {
		return s.rc.Read(buf)
	}

	if s.pos == s.metaint {
		if err := s.readMetadata(); err != nil {
			return 0, err
		}
		s.pos = 0
	}

	// Never read past the next metadata boundary.
	if remaining := s.metaint - s.pos; len(buf) > remaining {
		buf = buf[:remaining]
	}

	n, err := s.rc.Read(buf)
	s.pos += n

	return n, err
}

// readMetadata consumes one metadata block: a length byte (in units of 16
// bytes) followed by the block itself.
func (s *Stream) readMetadata() error {
	var metaLenByte [1]byte
	if _, err := io.ReadFull(s.rc, metaLenByte[:]); err != nil {
		return err
	}

	metaBlockLen := int(metaLenByte[0]) * 16
	if metaBlockLen == 0 {
		return nil
	}

	metaBuf := make([]byte, metaBlockLen)
	if _, err := io.ReadFull(s.rc, metaBuf); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return err
	}

	if m := NewMetadata(metaBuf); !m.Equals(s.metadata) {
		s.metadata = m
		if s.MetadataCallbackFunc != nil {
			s.MetadataCallbackFunc(s.metadata)
		}
	}

	return nil
}

// Metadata returns the most recent metadata block seen, or nil.
func (s *Stream) Metadata() *Metadata {
	return s.metadata
}

// Close closes the stream
func (s *Stream) Close() error {
	slog.Debug("closing stream", "url", s.URL)
	return s.rc.Close()
}

func leadingDigits(s string) string {
	for i, r := range s {
		if r < '0' || r > '9' {
			return s[:i]
		}
	}
	return s
}
