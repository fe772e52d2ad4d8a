// ABOUTME: Format adapter contract for frame-aligned audio streams
// ABOUTME: Defines frame validation, sizing, and duration interfaces
// Package adapter defines the pluggable format adapter used to locate and
// measure compressed audio frames inside a raw byte stream.
//
// An adapter is a set of stateless functions over a byte slice: validate a
// position as a frame start, extract per-frame metadata, compute the frame's
// byte length, and compute its playback duration. The bundled MP3 adapter
// covers MPEG-1/2/2.5 Layer III; other formats plug in behind the same
// interface.
package adapter

// Metadata carries per-frame information extracted by an adapter. Concrete
// adapters return their own type; consumers only rely on the sample rate.
type Metadata interface {
	// SampleRate returns the frame's sample rate in Hz.
	SampleRate() int
}

// Adapter identifies and measures frames in a raw compressed byte stream.
// Implementations must be stateless: every method is a pure function of its
// arguments so that segmentation is deterministic regardless of how the
// stream was split into delivery pieces.
type Adapter interface {
	// ValidateFrame reports whether a frame starts at offset.
	ValidateFrame(data []byte, offset int) bool

	// FrameMetadata extracts metadata for the frame at offset.
	// ok is false if the bytes at offset do not form a readable header.
	FrameMetadata(data []byte, offset int) (meta Metadata, ok bool)

	// FrameLength returns the byte length of the frame at offset.
	FrameLength(data []byte, meta Metadata, offset int) (length int, ok bool)

	// FrameDuration returns the playback duration in seconds of the frame
	// at offset.
	FrameDuration(data []byte, meta Metadata, offset int) (seconds float64, ok bool)
}

// HeaderSizer is implemented by adapters whose container format carries a
// leading file header (such as an ID3v2 tag) that must be stripped before
// frame decoding. HeaderLength returns the header size in bytes, or 0 when
// no header is present. It may return a size larger than len(data) when the
// header extends past the bytes seen so far.
type HeaderSizer interface {
	HeaderLength(data []byte) int
}
