package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/NotCoffee418/sml_smart_meter/pkg/esmutils"
)

// Validity holds one bit per required reading field.
type Validity uint8

const (
	ValidRecordID Validity = 1 << iota
	ValidUptime
	ValidMeterID
	ValidSerial
	ValidImported
	ValidExported

	ValidAll = ValidRecordID | ValidUptime | ValidMeterID | ValidSerial | ValidImported | ValidExported
)

// MeterReading is the typed result of one decoded frame.
// Energy registers are fixed-point in 1/10 Wh.
type MeterReading struct {
	Validity         Validity
	MeterID          [3]byte
	SerialNumber     [10]byte
	RecordID         uint64
	UptimeSeconds    uint32
	EnergyImported   uint64
	EnergyExported   uint64
	IsFineResolution bool
}

// Complete reports whether every required field was observed.
func (r MeterReading) Complete() bool {
	return r.Validity == ValidAll
}

// SerialHex renders the serial number as dash separated hex bytes.
func (r MeterReading) SerialHex() string {
	parts := make([]string, len(r.SerialNumber))
	for i, b := range r.SerialNumber {
		parts[i] = hex.EncodeToString([]byte{b})
	}
	return strings.Join(parts, "-")
}

func (r MeterReading) String() string {
	return fmt.Sprintf(
		"valid[0x3f]=0x%02x, detailed=%t, id='%s', serial='%s', record=%d, uptime[s]=%d, A+[0.1Wh]=%d, A-[0.1Wh]=%d",
		uint8(r.Validity), r.IsFineResolution, r.MeterID[:], r.SerialHex(),
		r.RecordID, r.UptimeSeconds, r.EnergyImported, r.EnergyExported,
	)
}

// ReadingReport is the JSON shape of a reading on the live feed and MQTT.
type ReadingReport struct {
	Timestamp        string  `json:"timestamp"`
	MeterID          string  `json:"meter_id"`
	Serial           string  `json:"serial"`
	RecordID         uint64  `json:"record_id"`
	UptimeSeconds    uint32  `json:"uptime_s"`
	ImportedDeciWh   uint64  `json:"imported_dwh"`
	ExportedDeciWh   uint64  `json:"exported_dwh"`
	ImportedKWh      float64 `json:"imported_kwh"`
	ExportedKWh      float64 `json:"exported_kwh"`
	IsFineResolution bool    `json:"detailed"`
	Complete         bool    `json:"complete"`
}

func NewReadingReport(r MeterReading, timestamp string) *ReadingReport {
	return &ReadingReport{
		Timestamp:        timestamp,
		MeterID:          string(r.MeterID[:]),
		Serial:           r.SerialHex(),
		RecordID:         r.RecordID,
		UptimeSeconds:    r.UptimeSeconds,
		ImportedDeciWh:   r.EnergyImported,
		ExportedDeciWh:   r.EnergyExported,
		ImportedKWh:      esmutils.DeciWhToKWh(r.EnergyImported),
		ExportedKWh:      esmutils.DeciWhToKWh(r.EnergyExported),
		IsFineResolution: r.IsFineResolution,
		Complete:         r.Complete(),
	}
}

func (r *ReadingReport) ToJsonBytes() []byte {
	data, err := json.Marshal(r)
	if err != nil {
		return []byte("{}")
	}
	return data
}

// Returns nil when the payload is not a report.
func ReadingReportFromJsonBytes(data []byte) *ReadingReport {
	var report ReadingReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil
	}
	return &report
}
