package smlframe

import (
	"bytes"
	"fmt"

	"github.com/sigurn/crc16"
)

// Extractor carves SML transmissions out of a serial byte stream, one byte
// at a time. Any unexpected byte drops the partial frame and scanning
// resumes at the next escape byte.
type Extractor struct {
	opts  Options
	state State

	// marker bytes seen while in Starting or VersionCheck
	markers int

	buf      []byte
	n        int
	frameLen int

	trailer  [checksumTrailerLength]byte
	trailerN int

	counters Counters
}

// Create a new extractor. A zero capacity selects DefaultCapacity.
func NewExtractor(opts Options) (*Extractor, error) {
	if opts.Capacity == 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Capacity < MinCapacity {
		return nil, fmt.Errorf("%w: %d < %d", ErrCapacityTooSmall, opts.Capacity, MinCapacity)
	}
	if opts.Capacity > MaxCapacity {
		return nil, fmt.Errorf("%w: %d > %d", ErrCapacityTooLarge, opts.Capacity, MaxCapacity)
	}
	return &Extractor{
		opts: opts,
		buf:  make([]byte, opts.Capacity),
	}, nil
}

// Feed consumes one byte. After EventFrameReady, Frame returns the payload
// until the next call to Feed.
func (e *Extractor) Feed(b byte) Event {
	switch e.state {
	case StateIdle:
		if b == escapeByte {
			e.state = StateStarting
			e.markers = 1
		}

	case StateStarting:
		if b != escapeByte {
			e.reset()
			break
		}
		e.markers++
		if e.markers == markerLength {
			e.state = StateVersionCheck
			e.markers = 0
		}

	case StateVersionCheck:
		if b != versionByte {
			e.reset()
			break
		}
		e.markers++
		if e.markers == markerLength {
			e.state = StateCollecting
			e.markers = 0
			e.n = 0
			e.counters.Started++
			return EventActivity
		}

	case StateCollecting:
		if !e.append(b) {
			return EventOverflow
		}
		// Real escape sequences are always aligned to four bytes.
		if e.n%markerLength == 1 && b == escapeByte {
			e.state = StatePossibleTrailer
		}

	case StatePossibleTrailer:
		if !e.append(b) {
			return EventOverflow
		}
		if e.n%markerLength != 0 && b != escapeByte {
			e.state = StateCollecting
		} else if e.n%markerLength == 0 {
			e.n -= markerLength
			e.state = StateReady
		}

	case StateReady:
		if b != terminatorByte {
			e.reset()
			break
		}
		if e.opts.VerifyChecksum {
			e.state = StateChecksum
			e.trailerN = 0
			break
		}
		return e.complete()

	case StateChecksum:
		e.trailer[e.trailerN] = b
		e.trailerN++
		if e.trailerN < checksumTrailerLength {
			break
		}
		if !e.checksumValid() {
			e.counters.ChecksumFailures++
			e.reset()
			return EventChecksumMismatch
		}
		return e.complete()
	}
	return EventNone
}

// Frame returns the payload of the last completed frame, trailer excluded.
// The slice aliases the internal buffer.
func (e *Extractor) Frame() []byte {
	return e.buf[:e.frameLen]
}

func (e *Extractor) State() State {
	return e.state
}

func (e *Extractor) Counters() Counters {
	return e.counters
}

func (e *Extractor) Capacity() int {
	return len(e.buf)
}

// Reset drops any partial frame.
func (e *Extractor) Reset() {
	e.reset()
}

func (e *Extractor) append(b byte) bool {
	if e.n >= len(e.buf) {
		e.counters.Overflowed++
		e.reset()
		return false
	}
	e.buf[e.n] = b
	e.n++
	return true
}

func (e *Extractor) complete() Event {
	e.frameLen = e.n
	e.counters.Completed++
	e.reset()
	return EventFrameReady
}

func (e *Extractor) reset() {
	e.state = StateIdle
	e.markers = 0
	e.n = 0
}

// The CRC covers everything from the start sequence up to the padding count.
func (e *Extractor) checksumValid() bool {
	data := make([]byte, 0, len(startSequence)+e.n+markerLength+2)
	data = append(data, startSequence...)
	data = append(data, e.buf[:e.n+markerLength]...)
	data = append(data, terminatorByte, e.trailer[0])
	crc := crc16.Checksum(data, crcTable)

	hi, lo := e.trailer[1], e.trailer[2]
	return crc == uint16(hi)<<8|uint16(lo) || crc == uint16(lo)<<8|uint16(hi)
}

// HasStartSequence reports whether data contains a transmission start.
func HasStartSequence(data []byte) bool {
	return bytes.Contains(data, startSequence)
}
