package interpreter

import (
	"github.com/NotCoffee418/sml_smart_meter/pkg/smltlv"
	"github.com/NotCoffee418/sml_smart_meter/pkg/types"
)

// Extractor picks the meter reading out of the element stream of one frame.
// Use a new Extractor for every frame.
type Extractor struct {
	messageType MessageType
	fileOpen    bool

	isMeterID bool
	isSerial  bool
	isImport  bool
	isExport  bool

	unit  uint8
	scale int8

	reading types.MeterReading
}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// Interpret decodes a frame payload and returns whatever reading could be
// extracted. The reading is returned even when decoding fails part way.
// trace may be nil.
func Interpret(frame []byte, trace smltlv.Visitor) (types.MeterReading, error) {
	x := NewExtractor()
	_, err := smltlv.DecodeFrame(frame, smltlv.Tee(x.OnElement, trace))
	return x.Reading(), err
}

func (x *Extractor) Reading() types.MeterReading {
	return x.reading
}

func (x *Extractor) MessageType() MessageType {
	return x.messageType
}

// OnElement is an smltlv.Visitor.
func (x *Extractor) OnElement(e smltlv.Element) {
	pos := at(e)

	if pos == slotMessageType && e.Kind == smltlv.KindUnsignedInt {
		x.messageType = MessageType(e.Uint)
		switch x.messageType {
		case MessageOpen:
			x.fileOpen = true
		case MessageClose:
			x.fileOpen = false
		}
		return
	}

	if x.messageType == MessageOpen {
		if pos == slotRecordID && e.Kind == smltlv.KindOctetString && len(e.Bytes) > 0 {
			var id uint64
			for i := 0; i < len(e.Bytes) && i < 8; i++ {
				id = id<<8 | uint64(e.Bytes[i])
			}
			x.reading.RecordID = id
			x.reading.Validity |= types.ValidRecordID
		}
		return
	}

	if !x.fileOpen || x.messageType != MessageList {
		return
	}

	switch pos {
	case slotUptime:
		if e.Kind == smltlv.KindUnsignedInt {
			x.reading.UptimeSeconds = uint32(e.Uint)
			x.reading.Validity |= types.ValidUptime
		}

	case slotAddress:
		if e.Kind != smltlv.KindOctetString || len(e.Bytes) < 5 {
			return
		}
		if e.Bytes[0] != obisPrefix[0] || e.Bytes[1] != obisPrefix[1] {
			return
		}
		switch obisRegisters[[3]byte{e.Bytes[2], e.Bytes[3], e.Bytes[4]}] {
		case RegisterMeterID:
			x.isMeterID = true
		case RegisterSerial:
			x.isSerial = true
		case RegisterImport:
			x.isImport = true
		case RegisterExport:
			x.isExport = true
		}

	case slotUnit:
		if e.Kind == smltlv.KindUnsignedInt && x.energyRegister() {
			x.unit = uint8(e.Uint)
		}

	case slotScale:
		if e.Kind == smltlv.KindSignedInt && x.energyRegister() {
			x.scale = int8(e.Int)
			x.reading.IsFineResolution = x.scale != CoarseScale
		}

	case slotValue:
		x.onValue(e)
	}
}

func (x *Extractor) energyRegister() bool {
	return x.isImport || x.isExport
}

func (x *Extractor) onValue(e smltlv.Element) {
	switch {
	case x.isMeterID && e.Kind == smltlv.KindOctetString:
		if len(e.Bytes) >= len(x.reading.MeterID) {
			copy(x.reading.MeterID[:], e.Bytes)
			x.reading.Validity |= types.ValidMeterID
		}
		x.isMeterID = false

	case x.isSerial && e.Kind == smltlv.KindOctetString:
		if len(e.Bytes) >= len(x.reading.SerialNumber) {
			copy(x.reading.SerialNumber[:], e.Bytes)
			x.reading.Validity |= types.ValidSerial
		}
		x.isSerial = false

	case x.energyRegister() && e.Kind == smltlv.KindUnsignedInt:
		if x.unit == WattHourUnit {
			value := scaleToDeciWh(e.Uint, x.scale)
			if x.isImport {
				x.reading.EnergyImported = value
				x.reading.Validity |= types.ValidImported
			} else {
				x.reading.EnergyExported = value
				x.reading.Validity |= types.ValidExported
			}
		}
		if x.isImport {
			x.isImport = false
		} else {
			x.isExport = false
		}
		x.unit = 0
		x.scale = 0
	}
}

// scaleToDeciWh applies value * 10^(scale+1). Register values are Wh at the
// given power of ten and readings are kept in 1/10 Wh.
func scaleToDeciWh(value uint64, scale int8) uint64 {
	exp := int(scale) + 1
	for ; exp > 0; exp-- {
		value *= 10
	}
	for ; exp < 0; exp++ {
		value /= 10
	}
	return value
}
