package probe

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMediaType(t *testing.T) {
	assert.Equal(t, "audio/mpeg", MediaType("Audio/MPEG; charset=binary"))
	assert.Equal(t, "", MediaType(""))
	assert.Equal(t, "text/html", MediaType(" text/html ;charset=utf-8"))
}

func TestIsAudio(t *testing.T) {
	assert.True(t, IsAudio("audio/aacp"))
	assert.True(t, IsAudio("audio/x-flac"))
	assert.True(t, IsAudio("application/x-audio"))
	assert.False(t, IsAudio("application/ogg"))
	assert.False(t, IsAudio(""))
}

func TestPrintableRatio(t *testing.T) {
	assert.Equal(t, 0.0, printableRatio(nil))
	assert.Equal(t, 1.0, printableRatio([]byte("abc")))
	assert.Equal(t, 0.5, printableRatio([]byte{'a', 0x00}))
}

func TestLooksLikeText(t *testing.T) {
	text := bytes.Repeat([]byte("plain text "), 100)

	tests := []struct {
		name      string
		chunk     []byte
		mediaType string
		want      bool
	}{
		{"binary audio", binaryAudio, "audio/mpeg", false},
		{"text declared audio", text, "audio/mpeg", true},
		{"text declared loosely", text, "application/x-audio", true},
		{"printable ogg page", append([]byte("OggS"), text...), "audio/ogg", false},
		{"printable id3 header", append([]byte("ID3"), text...), "audio/mpeg", false},
		{"signature does not save non audio types", append([]byte("ID3"), text...), "application/x-audio", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, looksLikeText(tc.chunk, tc.mediaType))
		})
	}
}
