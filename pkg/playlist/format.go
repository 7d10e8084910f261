// Package playlist turns playlist files (m3u, pls, xspf, asx) into ordered
// candidate media URIs, and resolves remote playlists into absolute candidates.
package playlist

import (
	"net/url"
	"strings"
)

// Format identifies a playlist file format.
type Format int

const (
	Unknown Format = iota
	M3U
	PLS
	XSPF
	ASX
)

func (f Format) String() string {
	switch f {
	case M3U:
		return "m3u"
	case PLS:
		return "pls"
	case XSPF:
		return "xspf"
	case ASX:
		return "asx"
	default:
		return "unknown"
	}
}

// MarshalText renders the format by name in JSON responses.
func (f Format) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// Extensions lists the file extensions recognized as playlists.
var Extensions = []string{".m3u", ".m3u8", ".pls", ".asx", ".xspf"}

var extFormats = map[string]Format{
	".m3u":  M3U,
	".m3u8": M3U,
	".pls":  PLS,
	".xspf": XSPF,
	".asx":  ASX,
}

// FormatFromURL returns the format implied by the extension of the URL path,
// or Unknown.
func FormatFromURL(rawURL string) Format {
	p := strings.ToLower(urlPath(rawURL))
	for ext, f := range extFormats {
		if strings.HasSuffix(p, ext) {
			return f
		}
	}
	return Unknown
}

// HasPlaylistExt reports whether the URL path ends in a known playlist extension.
func HasPlaylistExt(rawURL string) bool {
	return FormatFromURL(rawURL) != Unknown
}

// DetectFormat determines the format from the URL extension, falling back to
// an ASX root tag in the body.
func DetectFormat(finalURL, body string) Format {
	if f := FormatFromURL(finalURL); f != Unknown {
		return f
	}
	if strings.Contains(strings.ToLower(body), "<asx") {
		return ASX
	}
	return Unknown
}

// urlPath strips the query and fragment so "list.pls?sid=1" still matches.
func urlPath(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Path
}
