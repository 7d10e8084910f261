package playlist

import (
	"regexp"
	"strings"
)

// Parser extracts candidate URIs from playlist text. Parsers never fail;
// malformed input yields an empty result.
type Parser func(text string) []string

var (
	xspfLocationRe = regexp.MustCompile(`(?is)<location>(.*?)</location>`)
	asxHrefRe      = regexp.MustCompile(`(?i)href=["'](.*?)["']`)
	bareURLRe      = regexp.MustCompile(`https?://[^\s'">]+`)
)

// heuristicParsers are tried in order when the format is unknown.
var heuristicParsers = []Parser{ParseM3U, ParsePLS, ParseXSPF}

// ParserFor returns the parser for a format. Unknown maps to ParseHeuristic.
func ParserFor(f Format) Parser {
	switch f {
	case M3U:
		return ParseM3U
	case PLS:
		return ParsePLS
	case XSPF:
		return ParseXSPF
	case ASX:
		return ParseASX
	default:
		return ParseHeuristic
	}
}

// ParseM3U returns every non-blank line that is not a # comment, in file order.
func ParseM3U(text string) []string {
	var uris []string
	for _, line := range splitLines(text) {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		uris = append(uris, line)
	}
	return uris
}

// ParsePLS returns the value of every key=value line whose key starts with
// "file" (case-insensitive), in line order. Numeric suffixes are not sorted.
func ParsePLS(text string) []string {
	var uris []string
	for _, line := range splitLines(text) {
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(k)), "file") {
			uris = append(uris, strings.TrimSpace(v))
		}
	}
	return uris
}

// ParseXSPF returns the text of every <location> element.
func ParseXSPF(text string) []string {
	return submatches(xspfLocationRe, text)
}

// ParseASX returns every href attribute value in the document.
func ParseASX(text string) []string {
	return submatches(asxHrefRe, text)
}

// ParseHeuristic tries M3U, PLS and XSPF in order and returns the first
// non-empty result, then falls back to every bare http(s) URL in the text.
func ParseHeuristic(text string) []string {
	for _, parse := range heuristicParsers {
		if uris := parse(text); len(uris) > 0 {
			return uris
		}
	}
	return bareURLRe.FindAllString(text, -1)
}

func submatches(re *regexp.Regexp, text string) []string {
	var out []string
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		out = append(out, strings.TrimSpace(m[1]))
	}
	return out
}

func splitLines(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool { return r == '\n' || r == '\r' })
}
