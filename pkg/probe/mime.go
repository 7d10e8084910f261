package probe

import "strings"

// AcceptedAudio is the set of MIME types the speakers play directly.
var AcceptedAudio = map[string]struct{}{
	"audio/mpeg":   {},
	"audio/mp3":    {},
	"audio/x-mpeg": {},
	"audio/aac":    {},
	"audio/aacp":   {},
	"audio/mp4":    {},
	"audio/ogg":    {},
	"audio/vorbis": {},
}

// MediaType returns the lowercased MIME token of a Content-Type header, without
// parameters.
func MediaType(contentType string) string {
	token, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(token))
}

// IsAudio reports whether a media type is in the accepted set or mentions
// "audio" at all.
func IsAudio(mediaType string) bool {
	if mediaType == "" {
		return false
	}
	if _, ok := AcceptedAudio[mediaType]; ok {
		return true
	}
	return strings.Contains(mediaType, "audio")
}

func isHTML(mediaType string) bool {
	return strings.Contains(mediaType, "text/html") || strings.Contains(mediaType, "application/xhtml+xml")
}
