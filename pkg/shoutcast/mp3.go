package shoutcast

// FindFrameSync finds the position of the first MPEG audio frame sync word.
// MPEG frame sync is 0xFF followed by a byte whose high nibble is 0xE or 0xF;
// this covers MP3 frames and ADTS AAC headers alike.
// Returns -1 if not found.
func FindFrameSync(data []byte) int {
	for i := 0; i < len(data)-1; i++ {
		if data[i] == 0xFF && (data[i+1]&0xE0) == 0xE0 {
			return i
		}
	}
	return -1
}
