package types

// Stats counts pipeline events since startup.
type Stats struct {
	FramesStarted     uint64 `json:"frames_started"`
	FramesCompleted   uint64 `json:"frames_completed"`
	FramesOverflowed  uint64 `json:"frames_overflowed"`
	ChecksumFailures  uint64 `json:"checksum_failures"`
	DecodeErrors      uint64 `json:"decode_errors"`
	IncompleteReading uint64 `json:"incomplete_readings"`
	Published         uint64 `json:"published"`
}
