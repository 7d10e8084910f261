// Package shoutcast provides the outbound HTTP identity shared by every fetch the
// relay makes, and an ICY/Shoutcast stream reader with metadata stripping.
//
// It began as a fork of github.com/romantomjak/shoutcast and was reshaped for relaying:
//   - Every client identifies itself as the speaker hardware, since origin servers vary behavior by client identity
//   - Correct metadata stripping: ICY metadata blocks are read and skipped so only audio bytes are returned
//   - Streams without icy-metaint are passed through untouched
//   - No client timeout on the stream so long-running relays are supported
package shoutcast
