package relay

import (
	"strconv"
	"strings"
)

// Options override the configured output format for one session.
type Options struct {
	Bitrate    int // kbps
	SampleRate int // Hz
}

// transcoderArgs builds the command line: decode whatever input is given and
// emit a constant MP3 stream on stdout. Bare MP3 frames are produced; the
// ID3 and Xing headers mean nothing to a live listener.
func transcoderArgs(input, userAgent string, bitrate, sampleRate int) []string {
	args := []string{"-hide_banner", "-loglevel", "error"}

	if input == stdinInput {
		args = append(args, "-i", input)
	} else {
		args = append(args, "-nostdin", "-user_agent", userAgent, "-i", input)
	}

	return append(args,
		"-vn",
		"-c:a", "libmp3lame",
		"-ar", strconv.Itoa(sampleRate),
		"-b:a", strconv.Itoa(bitrate)+"k",
		"-id3v2_version", "0",
		"-write_xing", "0",
		"-f", "mp3",
		"pipe:1",
	)
}

const stdinInput = "pipe:0"

// ParseBitrate accepts "128", "128k" or "128K" and returns kbps.
func ParseBitrate(s string) (int, error) {
	s = strings.TrimSuffix(strings.TrimSuffix(strings.TrimSpace(s), "k"), "K")
	return strconv.Atoi(s)
}
