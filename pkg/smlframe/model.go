package smlframe

import "github.com/sigurn/crc16"

type Err string

func (e Err) Error() string {
	return string(e)
}

const (
	ErrCapacityTooSmall = Err("frame capacity too small")
	ErrCapacityTooLarge = Err("frame capacity too large")

	// Each transmission opens with four escape bytes and four version bytes
	// and closes with four escape bytes followed by the terminator.
	escapeByte     byte = 0x1b
	versionByte    byte = 0x01
	terminatorByte byte = 0x1a
	markerLength        = 4

	// The terminator is followed by a padding count and two CRC bytes.
	checksumTrailerLength = 3

	MinCapacity = 64
	MaxCapacity = 1 << 20

	// Enough for 2s at 9600 baud.
	DefaultCapacity = 2560
)

// State of the framing machine.
type State uint8

const (
	StateIdle State = iota
	StateStarting
	StateVersionCheck
	StateCollecting
	StatePossibleTrailer
	StateReady
	StateChecksum
)

var stateNames = [...]string{"idle", "starting", "version", "collecting", "trailer", "ready", "checksum"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Event is returned by Feed for each byte.
type Event uint8

const (
	EventNone Event = iota
	// Start and version markers were seen, a frame is being collected.
	EventActivity
	// Frame holds exactly one completed frame payload.
	EventFrameReady
	// The in-progress frame exceeded capacity and was dropped.
	EventOverflow
	// The trailer checksum did not match, the frame was dropped.
	EventChecksumMismatch
)

// Counters are running totals kept by an Extractor.
type Counters struct {
	Started          uint64
	Completed        uint64
	Overflowed       uint64
	ChecksumFailures uint64
}

// Options configure an Extractor.
type Options struct {
	Capacity       int
	VerifyChecksum bool
}

var (
	startSequence = []byte{escapeByte, escapeByte, escapeByte, escapeByte, versionByte, versionByte, versionByte, versionByte}
	crcTable      = crc16.MakeTable(crc16.CRC16_X_25)
)
