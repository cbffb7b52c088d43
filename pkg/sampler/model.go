package sampler

import "github.com/NotCoffee418/sml_smart_meter/pkg/types"

type Err string

func (e Err) Error() string {
	return string(e)
}

const ErrInvalidPublishEvery = Err("publish cadence must be at least one frame")

// DefaultPublishEvery approximates one reading per minute on a meter
// sending once per second.
const DefaultPublishEvery = 60

type Config struct {
	FrameCapacity  int
	VerifyChecksum bool
	// Surface a reading once per this many completed frames. Zero selects
	// DefaultPublishEvery.
	PublishEvery int
}

// EmitFunc receives complete readings at the publish cadence. It runs on
// the byte loop and must not block.
type EmitFunc func(reading types.MeterReading)
