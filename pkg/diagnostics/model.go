package diagnostics

import (
	"time"

	"github.com/NotCoffee418/sml_smart_meter/pkg/types"
)

// ReadingSource is the read side of the sampler.
type ReadingSource interface {
	LastReading() (types.MeterReading, bool)
	LastComplete() (types.MeterReading, time.Time, bool)
	LastRawFrame() []byte
	Stats() types.Stats
}

// Meta describes the running service.
type Meta struct {
	Device  string
	Program string
	Version string
	Started time.Time
}

type statusResponse struct {
	Meta     statusMeta   `json:"meta"`
	Energy   statusEnergy `json:"energy"`
	Complete bool         `json:"complete"`
	Stats    types.Stats  `json:"stats"`
}

type statusMeta struct {
	Device   string `json:"device"`
	Program  string `json:"program"`
	Version  string `json:"version"`
	Started  string `json:"started"`
	Posted   string `json:"posted,omitempty"`
	Received string `json:"received,omitempty"`
}

// Energy registers in 1/10 Wh as read from the meter.
type statusEnergy struct {
	ID       string `json:"id"`
	Serial   string `json:"serial"`
	Detailed bool   `json:"detailed"`
	Uptime   uint32 `json:"uptime"`
	APlus    uint64 `json:"aplus"`
	AMinus   uint64 `json:"aminus"`
}
