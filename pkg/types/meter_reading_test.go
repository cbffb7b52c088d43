package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testReading() MeterReading {
	r := MeterReading{
		Validity:         ValidAll,
		MeterID:          [3]byte{'I', 'S', 'K'},
		SerialNumber:     [10]byte{0x0a, 0x01, 0x49, 0x53, 0x4b, 0x00, 0x04, 0x7c, 0x2e, 0x11},
		RecordID:         42,
		UptimeSeconds:    3600,
		EnergyImported:   123456,
		EnergyExported:   789,
		IsFineResolution: true,
	}
	return r
}

func TestComplete(t *testing.T) {
	r := testReading()
	assert.True(t, r.Complete())

	r.Validity &^= ValidExported
	assert.False(t, r.Complete())
	assert.Equal(t, Validity(0x3f), ValidAll)
}

func TestSerialHex(t *testing.T) {
	r := testReading()
	assert.Equal(t, "0a-01-49-53-4b-00-04-7c-2e-11", r.SerialHex())
}

func TestReadingString(t *testing.T) {
	s := testReading().String()
	assert.Contains(t, s, "valid[0x3f]=0x3f")
	assert.Contains(t, s, "id='ISK'")
	assert.Contains(t, s, "A+[0.1Wh]=123456")
}

func TestReadingReportJson(t *testing.T) {
	report := NewReadingReport(testReading(), "2026-10-19T12:00:00Z")
	data := report.ToJsonBytes()

	assert.Contains(t, string(data), `"meter_id":"ISK"`)
	assert.Contains(t, string(data), `"complete":true`)
	assert.Contains(t, string(data), `"imported_kwh":12.3456`)

	back := ReadingReportFromJsonBytes(data)
	require.NotNil(t, back)
	assert.Equal(t, *report, *back)

	assert.Nil(t, ReadingReportFromJsonBytes([]byte("not json")))
}
