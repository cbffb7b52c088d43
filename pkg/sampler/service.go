package sampler

import (
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/NotCoffee418/sml_smart_meter/pkg/interpreter"
	"github.com/NotCoffee418/sml_smart_meter/pkg/smlframe"
	"github.com/NotCoffee418/sml_smart_meter/pkg/smltlv"
	"github.com/NotCoffee418/sml_smart_meter/pkg/types"
	"github.com/sirupsen/logrus"
)

// Sampler drives the decoding pipeline. OnByte and Write must be called
// from a single goroutine; the accessors are safe from any goroutine.
type Sampler struct {
	frames       *smlframe.Extractor
	publishEvery uint64
	frameCount   uint64

	emit       EmitFunc
	onActivity func()
	tracer     smltlv.Visitor
	logger     *logrus.Entry
	now        func() time.Time

	mu             sync.RWMutex
	lastFrame      []byte
	lastReading    types.MeterReading
	hasReading     bool
	lastComplete   types.MeterReading
	lastCompleteAt time.Time
	hasComplete    bool
	frameCounters  smlframe.Counters
	decodeErrors   uint64
	incomplete     uint64
	published      uint64
}

// Create a new sampler. emit may be nil.
func New(cfg Config, emit EmitFunc, logger *logrus.Entry) (*Sampler, error) {
	if cfg.PublishEvery == 0 {
		cfg.PublishEvery = DefaultPublishEvery
	}
	if cfg.PublishEvery < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPublishEvery, cfg.PublishEvery)
	}
	frames, err := smlframe.NewExtractor(smlframe.Options{
		Capacity:       cfg.FrameCapacity,
		VerifyChecksum: cfg.VerifyChecksum,
	})
	if err != nil {
		return nil, fmt.Errorf("frame extractor: %w", err)
	}
	if emit == nil {
		emit = func(types.MeterReading) {}
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Sampler{
		frames:       frames,
		publishEvery: uint64(cfg.PublishEvery),
		emit:         emit,
		logger:       logger.WithField("component", "sampler"),
		now:          time.Now,
	}, nil
}

// OnActivity registers a callback for every detected transmission start.
// Set before feeding bytes.
func (s *Sampler) OnActivity(fn func()) {
	s.onActivity = fn
}

// SetTracer registers a visitor receiving every decoded element. Set before
// feeding bytes.
func (s *Sampler) SetTracer(v smltlv.Visitor) {
	s.tracer = v
}

// Write feeds p byte by byte. It never fails.
func (s *Sampler) Write(p []byte) (int, error) {
	for _, b := range p {
		s.OnByte(b)
	}
	return len(p), nil
}

func (s *Sampler) OnByte(b byte) {
	ev := s.frames.Feed(b)
	if ev == smlframe.EventNone {
		return
	}

	s.mu.Lock()
	s.frameCounters = s.frames.Counters()
	s.mu.Unlock()

	switch ev {
	case smlframe.EventActivity:
		if s.onActivity != nil {
			s.onActivity()
		}
	case smlframe.EventOverflow:
		s.logger.WithField("capacity", s.frames.Capacity()).Warn("Frame exceeds buffer capacity, dropped")
	case smlframe.EventChecksumMismatch:
		s.logger.Debug("Frame checksum mismatch, dropped")
	case smlframe.EventFrameReady:
		s.onFrame(s.frames.Frame())
	}
}

func (s *Sampler) onFrame(frame []byte) {
	reading, err := interpreter.Interpret(frame, s.tracer)
	s.frameCount++
	atCadence := (s.frameCount-1)%s.publishEvery == 0
	complete := reading.Complete()

	s.mu.Lock()
	s.lastFrame = append(s.lastFrame[:0], frame...)
	s.lastReading = reading
	s.hasReading = true
	if err != nil {
		s.decodeErrors++
	}
	if complete {
		s.lastComplete = reading
		s.lastCompleteAt = s.now()
		s.hasComplete = true
	} else {
		s.incomplete++
	}
	if atCadence && complete {
		s.published++
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.WithError(err).Debug("Frame decoding stopped early")
	}
	if !atCadence {
		return
	}

	entry := s.logger.WithFields(logrus.Fields{
		"frame":  s.frameCount,
		"record": reading.RecordID,
	})
	if !complete {
		entry.WithFields(logrus.Fields{
			"validity": fmt.Sprintf("0x%02x", uint8(reading.Validity)),
			"sml":      hex.EncodeToString(frame),
		}).Warn("Incomplete reading: ", reading)
		return
	}
	if reading.IsFineResolution {
		entry.Info(reading)
	} else {
		entry.Warn("Coarse resolution: ", reading)
	}
	s.emit(reading)
}

// LastRawFrame returns a copy of the most recent completed frame.
func (s *Sampler) LastRawFrame() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastFrame == nil {
		return nil
	}
	return append([]byte{}, s.lastFrame...)
}

// LastReading returns the reading of the most recent frame, complete or not.
func (s *Sampler) LastReading() (types.MeterReading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastReading, s.hasReading
}

// LastComplete returns the most recent complete reading and when it was
// decoded.
func (s *Sampler) LastComplete() (types.MeterReading, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastComplete, s.lastCompleteAt, s.hasComplete
}

func (s *Sampler) Stats() types.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return types.Stats{
		FramesStarted:     s.frameCounters.Started,
		FramesCompleted:   s.frameCounters.Completed,
		FramesOverflowed:  s.frameCounters.Overflowed,
		ChecksumFailures:  s.frameCounters.ChecksumFailures,
		DecodeErrors:      s.decodeErrors,
		IncompleteReading: s.incomplete,
		Published:         s.published,
	}
}

// LogTracer logs every decoded element at debug level.
func LogTracer(logger *logrus.Entry) smltlv.Visitor {
	return func(e smltlv.Element) {
		if logger.Logger.IsLevelEnabled(logrus.DebugLevel) {
			logger.Debug(e.String())
		}
	}
}
