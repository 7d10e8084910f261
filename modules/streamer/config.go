package streamer

import (
	"flag"

	"github.com/zachfi/zkit/pkg/util"

	"github.com/zachfi/streamrelay/pkg/playlist"
	"github.com/zachfi/streamrelay/pkg/probe"
	"github.com/zachfi/streamrelay/pkg/relay"
)

type Config struct {
	// PublicURL is the base URL speakers use to reach the relay, eg.
	// http://192.168.1.10:3030. Empty means the Host of the inbound request.
	PublicURL string          `yaml:"public-url,omitempty"`
	Probe     probe.Config    `yaml:"probe,omitempty"`
	Playlist  playlist.Config `yaml:"playlist,omitempty"`
	Relay     relay.Config    `yaml:"relay,omitempty"`
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&cfg.PublicURL, util.PrefixConfig(prefix, "public-url"), "", "Base URL advertised to speakers for relay streams. Defaults to the Host of the request.")

	cfg.Probe.RegisterFlagsAndApplyDefaults(util.PrefixConfig(prefix, "probe"), f)
	cfg.Playlist.RegisterFlagsAndApplyDefaults(util.PrefixConfig(prefix, "playlist"), f)
	cfg.Relay.RegisterFlagsAndApplyDefaults(util.PrefixConfig(prefix, "relay"), f)
}
