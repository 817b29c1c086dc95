package models

// Kind classifies a segment as video or audio content.
type Kind int

const (
	KindUnknown Kind = iota
	KindVideo
	KindAudio
)

func (k Kind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// SegmentRef is one normalized manifest entry pointing at a downloadable
// media segment. It is immutable after normalization.
type SegmentRef struct {
	// URL is the fully-qualified URL to fetch the segment from.
	URL string
	// StartOffset is the segment's start position on the session timeline,
	// in seconds from the beginning of the recording.
	StartOffset float64
	// Kind is the manifest's hint for the segment type. Probing the fetched
	// file is authoritative; the hint is informational only.
	Kind Kind
	// Filename is the derived cache filename, stable across runs for the same URL.
	Filename string
	// Index is the segment's position in the manifest. It is the stable
	// tie-break when segments share a start offset.
	Index int
}

// FetchedSegment is a segment that exists in the local cache and has been
// successfully probed.
type FetchedSegment struct {
	Ref       SegmentRef
	LocalPath string
	// Duration is the probed duration in seconds.
	Duration float64
	// Kind is the probed kind, either KindVideo or KindAudio.
	Kind Kind
}
