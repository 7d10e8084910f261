package relay

import (
	"flag"
	"fmt"

	"github.com/zachfi/zkit/pkg/util"

	"github.com/zachfi/streamrelay/pkg/shoutcast"
)

const (
	defaultBinary     = "ffmpeg"
	defaultBitrate    = 128 // kbps
	defaultSampleRate = 44100
	defaultChunkSize  = 8 * 1024
)

// Input selects who reads the source.
const (
	// InputDirect hands the source URL to the transcoder.
	InputDirect = "direct"
	// InputFetch reads the source here, strips ICY metadata and pipes the
	// audio into the transcoder's stdin.
	InputFetch = "fetch"
)

type Config struct {
	Binary     string `yaml:"binary,omitempty"`
	Bitrate    int    `yaml:"bitrate,omitempty"`     // kbps
	SampleRate int    `yaml:"sample-rate,omitempty"` // Hz
	ChunkSize  int    `yaml:"chunk-size,omitempty"`  // bytes forwarded per write
	Input      string `yaml:"input,omitempty"`
	UserAgent  string `yaml:"user-agent,omitempty"`
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&cfg.Binary, util.PrefixConfig(prefix, "binary"), defaultBinary, "Transcoder executable, looked up on PATH when not absolute.")
	f.IntVar(&cfg.Bitrate, util.PrefixConfig(prefix, "bitrate"), defaultBitrate, "Default MP3 bitrate in kbps.")
	f.IntVar(&cfg.SampleRate, util.PrefixConfig(prefix, "sample-rate"), defaultSampleRate, "Default output sample rate in Hz.")
	f.IntVar(&cfg.ChunkSize, util.PrefixConfig(prefix, "chunk-size"), defaultChunkSize, "Bytes read from the transcoder and written to the client at a time.")
	f.StringVar(&cfg.Input, util.PrefixConfig(prefix, "input"), InputDirect, "How the source is read: direct (by the transcoder) or fetch (by the relay, piped to the transcoder).")
	f.StringVar(&cfg.UserAgent, util.PrefixConfig(prefix, "user-agent"), shoutcast.SonosUserAgent, "User agent used to read the source.")
}

func (cfg *Config) applyDefaults() {
	if cfg.Binary == "" {
		cfg.Binary = defaultBinary
	}
	if cfg.Bitrate <= 0 {
		cfg.Bitrate = defaultBitrate
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = defaultSampleRate
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	if cfg.Input == "" {
		cfg.Input = InputDirect
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = shoutcast.SonosUserAgent
	}
}

// Validate rejects settings the relay cannot run with.
func (cfg *Config) Validate() error {
	switch cfg.Input {
	case "", InputDirect, InputFetch:
	default:
		return fmt.Errorf("unknown relay input %q", cfg.Input)
	}
	return nil
}
