package shoutcast

import (
	"bytes"
	"strings"
)

// Metadata holds the fields of an ICY metadata block.
type Metadata struct {
	StreamTitle string
	StreamURL   string
}

// NewMetadata parses a raw metadata block of the form
// StreamTitle='...';StreamUrl='...'; padded with NUL bytes.
func NewMetadata(b []byte) *Metadata {
	m := &Metadata{}

	s := string(bytes.TrimRight(b, "\x00"))
	for _, field := range strings.Split(s, "';") {
		key, value, ok := strings.Cut(field, "='")
		if !ok {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "streamtitle":
			m.StreamTitle = value
		case "streamurl":
			m.StreamURL = value
		}
	}

	return m
}

// Equals reports whether two metadata blocks carry the same fields.
func (m *Metadata) Equals(other *Metadata) bool {
	if m == nil || other == nil {
		return m == other
	}
	return m.StreamTitle == other.StreamTitle && m.StreamURL == other.StreamURL
}
