// ABOUTME: MP3 format adapter for MPEG-1/2/2.5 Layer III streams
// ABOUTME: Parses frame headers, frame lengths, durations, and ID3v2 tags
package adapter

// Bitrate tables in kbps, indexed by the 4-bit bitrate field.
// Index 0 (free format) and 15 (reserved) are unusable.
var (
	bitratesV1L3 = [16]int{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 0}
	bitratesV2L3 = [16]int{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, 0}
)

// Sample rate tables in Hz, indexed by the 2-bit sample rate field.
var (
	sampleRatesV1  = [4]int{44100, 48000, 32000, 0}
	sampleRatesV2  = [4]int{22050, 24000, 16000, 0}
	sampleRatesV25 = [4]int{11025, 12000, 8000, 0}
)

const (
	mpegVersion1  = 3
	mpegVersion2  = 2
	mpegVersion25 = 0

	layerIII = 1
)

// MP3FrameInfo is the per-frame metadata extracted from an MPEG audio
// frame header.
type MP3FrameInfo struct {
	Version     byte // 3 = MPEG-1, 2 = MPEG-2, 0 = MPEG-2.5
	BitrateKbps int
	Rate        int
	Padding     bool
}

// SampleRate returns the frame's sample rate in Hz.
func (m *MP3FrameInfo) SampleRate() int { return m.Rate }

// MP3 is the bundled adapter for MPEG Layer III streams. It is stateless
// and safe for concurrent use.
type MP3 struct{}

// NewMP3 returns the MP3 format adapter.
func NewMP3() *MP3 { return &MP3{} }

// ValidateFrame reports whether a decodable Layer III frame header starts
// at offset. It requires the full 4-byte header to be present.
func (a *MP3) ValidateFrame(data []byte, offset int) bool {
	_, ok := a.parseHeader(data, offset)
	return ok
}

// FrameMetadata extracts the frame header fields at offset.
func (a *MP3) FrameMetadata(data []byte, offset int) (Metadata, bool) {
	info, ok := a.parseHeader(data, offset)
	if !ok {
		return nil, false
	}
	return info, true
}

// FrameLength returns the frame's byte length, computed from the bitrate,
// sample rate, and padding fields.
func (a *MP3) FrameLength(data []byte, meta Metadata, offset int) (int, bool) {
	info, ok := meta.(*MP3FrameInfo)
	if !ok || info.Rate == 0 || info.BitrateKbps == 0 {
		return 0, false
	}
	// 144 coefficient for MPEG-1, 72 for MPEG-2/2.5 (half the samples
	// per frame).
	multiplier := 144
	if info.Version != mpegVersion1 {
		multiplier = 72
	}
	length := multiplier * info.BitrateKbps * 1000 / info.Rate
	if info.Padding {
		length++
	}
	if length <= 4 {
		return 0, false
	}
	return length, true
}

// FrameDuration returns the frame's playback duration in seconds:
// samples-per-frame divided by sample rate.
func (a *MP3) FrameDuration(data []byte, meta Metadata, offset int) (float64, bool) {
	info, ok := meta.(*MP3FrameInfo)
	if !ok || info.Rate == 0 {
		return 0, false
	}
	samples := 1152.0 // MPEG-1 Layer III
	if info.Version != mpegVersion1 {
		samples = 576.0 // MPEG-2 and 2.5 use half-size granules
	}
	return samples / float64(info.Rate), true
}

// HeaderLength returns the total byte size of a leading ID3v2 tag, or 0
// when the stream does not start with one. At least 10 bytes of data are
// needed to size the tag; with fewer the result is 0.
func (a *MP3) HeaderLength(data []byte) int {
	if len(data) < 10 {
		return 0
	}
	if data[0] != 'I' || data[1] != 'D' || data[2] != '3' {
		return 0
	}
	// Tag size is a 28-bit syncsafe integer (high bit of each byte clear).
	size := int(data[6]&0x7f)<<21 | int(data[7]&0x7f)<<14 | int(data[8]&0x7f)<<7 | int(data[9]&0x7f)
	total := 10 + size
	if data[5]&0x10 != 0 {
		total += 10 // footer present
	}
	return total
}

// parseHeader reads and sanity-checks the 4-byte frame header at offset.
func (a *MP3) parseHeader(data []byte, offset int) (*MP3FrameInfo, bool) {
	if offset < 0 || offset+4 > len(data) {
		return nil, false
	}
	h0, h1, h2, h3 := data[offset], data[offset+1], data[offset+2], data[offset+3]

	// Frame sync: 11 set bits.
	if h0 != 0xff || h1&0xe0 != 0xe0 {
		return nil, false
	}

	version := (h1 >> 3) & 0x03
	layer := (h1 >> 1) & 0x03
	if version == 1 || layer != layerIII {
		return nil, false
	}

	bitrateIdx := (h2 >> 4) & 0x0f
	if bitrateIdx == 0 || bitrateIdx == 0x0f {
		return nil, false
	}
	sampleRateIdx := (h2 >> 2) & 0x03
	if sampleRateIdx == 3 {
		return nil, false
	}
	if h3&0x03 == 2 { // reserved emphasis value
		return nil, false
	}

	info := &MP3FrameInfo{
		Version: version,
		Padding: (h2>>1)&1 == 1,
	}
	switch version {
	case mpegVersion1:
		info.BitrateKbps = bitratesV1L3[bitrateIdx]
		info.Rate = sampleRatesV1[sampleRateIdx]
	case mpegVersion2:
		info.BitrateKbps = bitratesV2L3[bitrateIdx]
		info.Rate = sampleRatesV2[sampleRateIdx]
	default: // MPEG-2.5
		info.BitrateKbps = bitratesV2L3[bitrateIdx]
		info.Rate = sampleRatesV25[sampleRateIdx]
	}
	if info.BitrateKbps == 0 || info.Rate == 0 {
		return nil, false
	}
	return info, true
}
