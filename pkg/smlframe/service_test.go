package smlframe

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/NotCoffee418/sml_smart_meter/internal/smltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newExtractor(t *testing.T, opts Options) *Extractor {
	t.Helper()
	e, err := NewExtractor(opts)
	require.NoError(t, err)
	return e
}

// feedAll returns a copy of every frame completed while feeding data.
func feedAll(e *Extractor, data []byte) (frames [][]byte, events map[Event]int) {
	events = map[Event]int{}
	for _, b := range data {
		ev := e.Feed(b)
		events[ev]++
		if ev == EventFrameReady {
			frames = append(frames, append([]byte{}, e.Frame()...))
		}
	}
	return frames, events
}

func TestNewExtractorCapacity(t *testing.T) {
	e, err := NewExtractor(Options{})
	require.NoError(t, err)
	assert.Equal(t, DefaultCapacity, e.Capacity())

	_, err = NewExtractor(Options{Capacity: 8})
	assert.ErrorIs(t, err, ErrCapacityTooSmall)

	_, err = NewExtractor(Options{Capacity: MaxCapacity + 1})
	assert.ErrorIs(t, err, ErrCapacityTooLarge)
}

func TestRoundTrip(t *testing.T) {
	payload := []byte{
		0x76, 0x05, 0x01, 0x02, 0x03, 0x04, 0x62, 0x00,
		0x62, 0x00, 0x72, 0x63, 0x01, 0x01, 0x76, 0x01,
	}
	e := newExtractor(t, Options{})

	frames, events := feedAll(e, smltest.Wrap(payload))

	require.Len(t, frames, 1)
	assert.Equal(t, payload, frames[0])
	assert.Equal(t, 1, events[EventActivity])
	assert.Equal(t, uint64(1), e.Counters().Completed)
}

func TestUnalignedPayloadKeepsPadding(t *testing.T) {
	payload := []byte{0x76, 0x05, 0x01, 0x02, 0x03}
	e := newExtractor(t, Options{})

	frames, _ := feedAll(e, smltest.Wrap(payload))

	require.Len(t, frames, 1)
	assert.Equal(t, append(payload, 0x00, 0x00, 0x00), frames[0])
}

func TestNoStartPatternNeverEmits(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		data := make([]byte, 4096)
		rng.Read(data)
		// bias towards the interesting bytes
		for j := range data {
			switch rng.Intn(4) {
			case 0:
				data[j] = escapeByte
			case 1:
				data[j] = versionByte
			case 2:
				data[j] = terminatorByte
			}
		}
		if bytes.Contains(data, startSequence) {
			continue
		}
		e := newExtractor(t, Options{})
		frames, events := feedAll(e, data)
		assert.Empty(t, frames)
		assert.Zero(t, events[EventActivity])
	}
}

func TestIncompleteStartResets(t *testing.T) {
	e := newExtractor(t, Options{})

	for _, b := range []byte{0x1b, 0x1b, 0x1b, 0x00} {
		e.Feed(b)
	}
	assert.Equal(t, StateIdle, e.State())

	for _, b := range []byte{0x1b, 0x1b, 0x1b, 0x1b, 0x01, 0x01, 0x02} {
		e.Feed(b)
	}
	assert.Equal(t, StateIdle, e.State())
	assert.Zero(t, e.Counters().Started)
}

func TestEmbeddedEscapeReverts(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"single escape aligned", []byte{0x1b, 0x05, 0x00, 0x00, 0x76, 0x01, 0x02, 0x03}},
		{"two escapes aligned", []byte{0x1b, 0x1b, 0x07, 0x00, 0x76, 0x01, 0x02, 0x03}},
		{"escapes in consecutive groups", []byte{0x1b, 0x01, 0x00, 0x00, 0x1b, 0x1b, 0x62, 0x03}},
		{"escape not aligned", []byte{0x76, 0x1b, 0x1b, 0x1b, 0x1b, 0x01, 0x02, 0x03}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newExtractor(t, Options{})
			frames, _ := feedAll(e, smltest.Wrap(tt.payload))
			require.Len(t, frames, 1)
			assert.Equal(t, tt.payload, frames[0])
		})
	}
}

func TestEscapeStateTransitions(t *testing.T) {
	e := newExtractor(t, Options{})
	feedAll(e, startSequence)
	require.Equal(t, StateCollecting, e.State())

	e.Feed(0x1b)
	assert.Equal(t, StatePossibleTrailer, e.State())
	e.Feed(0x05)
	assert.Equal(t, StateCollecting, e.State())

	// not at an aligned position
	e.Feed(0x1b)
	assert.Equal(t, StateCollecting, e.State())
	e.Feed(0x00)

	for _, b := range []byte{0x1b, 0x1b, 0x1b} {
		e.Feed(b)
		assert.Equal(t, StatePossibleTrailer, e.State())
	}
	e.Feed(0x1b)
	assert.Equal(t, StateReady, e.State())
	assert.Equal(t, EventFrameReady, e.Feed(terminatorByte))
	assert.Equal(t, []byte{0x1b, 0x05, 0x1b, 0x00}, e.Frame())
}

func TestWrongTerminatorDropsFrame(t *testing.T) {
	data := smltest.Wrap([]byte{0x76, 0x01, 0x02, 0x03})
	data[len(data)-4] = 0x1c

	e := newExtractor(t, Options{})
	frames, _ := feedAll(e, data)

	assert.Empty(t, frames)
}

func TestResyncAfterGarbage(t *testing.T) {
	payload := []byte{0x76, 0x01, 0x02, 0x03}
	truncated := smltest.Wrap([]byte{0x76, 0x09, 0x09, 0x09, 0x09, 0x09, 0x09, 0x09})[:12]

	var data []byte
	data = append(data, 0x00, 0x1b, 0x42, 0x1a, 0x01)
	data = append(data, truncated...)
	// the restart is swallowed by the interrupted frame
	data = append(data, smltest.Stream(smltest.Wrap(payload), smltest.Wrap(payload))...)

	e := newExtractor(t, Options{})
	frames, _ := feedAll(e, data)

	require.Len(t, frames, 1)
	assert.Equal(t, payload, frames[0])
}

func TestOverflowResynchronizes(t *testing.T) {
	big := bytes.Repeat([]byte{0x62, 0x01, 0x62, 0x02}, 40)
	small := []byte{0x76, 0x01, 0x02, 0x03}

	e := newExtractor(t, Options{Capacity: MinCapacity})
	frames, events := feedAll(e, smltest.Stream(smltest.Wrap(big), smltest.Wrap(small)))

	require.Len(t, frames, 1)
	assert.Equal(t, small, frames[0])
	assert.Equal(t, 1, events[EventOverflow])
	assert.Equal(t, uint64(1), e.Counters().Overflowed)
}

func TestVerifyChecksum(t *testing.T) {
	payload := []byte{0x76, 0x05, 0x01, 0x02, 0x03, 0x04, 0x62, 0x00}

	t.Run("low byte first", func(t *testing.T) {
		e := newExtractor(t, Options{VerifyChecksum: true})
		frames, _ := feedAll(e, smltest.Wrap(payload))
		require.Len(t, frames, 1)
		assert.Equal(t, payload, frames[0])
	})

	t.Run("high byte first", func(t *testing.T) {
		e := newExtractor(t, Options{VerifyChecksum: true})
		frames, _ := feedAll(e, smltest.WrapBigEndianCRC(payload))
		require.Len(t, frames, 1)
	})

	t.Run("corrupted", func(t *testing.T) {
		data := smltest.Wrap(payload)
		data[len(data)-1] ^= 0xff
		data[len(data)-2] ^= 0x0f

		e := newExtractor(t, Options{VerifyChecksum: true})
		frames, events := feedAll(e, data)
		assert.Empty(t, frames)
		assert.Equal(t, 1, events[EventChecksumMismatch])
		assert.Equal(t, uint64(1), e.Counters().ChecksumFailures)
	})
}

func TestHasStartSequence(t *testing.T) {
	assert.True(t, HasStartSequence(smltest.Wrap([]byte{0x00})))
	assert.False(t, HasStartSequence([]byte{0x76, 0x05, 0x1b, 0x1b}))
}
