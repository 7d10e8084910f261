package probe

import (
	"bytes"
	"strings"

	"github.com/zachfi/streamrelay/pkg/shoutcast"
)

const (
	sniffSize = 2048

	// A chunk with more printable ASCII than this is treated as text.
	textRatio = 0.9
)

// signature reports whether a chunk carries a recognizable audio marker.
type signature func(chunk []byte) bool

// audioSignatures are tried in order; the first match wins.
var audioSignatures = []signature{
	func(chunk []byte) bool { return shoutcast.FindFrameSync(chunk) >= 0 },
	func(chunk []byte) bool { return bytes.HasPrefix(chunk, []byte("OggS")) },
	func(chunk []byte) bool { return bytes.HasPrefix(chunk, []byte("ID3")) },
	func(chunk []byte) bool { return bytes.HasPrefix(chunk, []byte("fLaC")) },
}

func hasAudioSignature(chunk []byte) bool {
	for _, match := range audioSignatures {
		if match(chunk) {
			return true
		}
	}
	return false
}

// printableRatio is the fraction of bytes in [32,126].
func printableRatio(chunk []byte) float64 {
	if len(chunk) == 0 {
		return 0
	}
	var n int
	for _, b := range chunk {
		if b >= 32 && b <= 126 {
			n++
		}
	}
	return float64(n) / float64(len(chunk))
}

// looksLikeText decides whether the first chunk of a body declared as
// mediaType is mislabeled text. Declared audio/* types are only overruled when
// the chunk also lacks every known audio signature.
func looksLikeText(chunk []byte, mediaType string) bool {
	if printableRatio(chunk) <= textRatio {
		return false
	}
	if !strings.HasPrefix(mediaType, "audio/") {
		return true
	}
	return !hasAudioSignature(chunk)
}
