package interpreter

import "github.com/NotCoffee418/sml_smart_meter/pkg/smltlv"

// MessageType is the 16 bit message body tag of an SML message.
type MessageType uint16

const (
	MessageNone  MessageType = 0x0000
	MessageOpen  MessageType = 0x0101
	MessageClose MessageType = 0x0201
	MessageList  MessageType = 0x0701
)

func (m MessageType) String() string {
	switch m {
	case MessageNone:
		return "none"
	case MessageOpen:
		return "open"
	case MessageClose:
		return "close"
	case MessageList:
		return "list"
	}
	return "unknown"
}

// Register selects which value the current list entry carries.
type Register int

const (
	RegisterNone Register = iota
	RegisterMeterID
	RegisterSerial
	RegisterImport
	RegisterExport
)

// WattHourUnit is the DLMS unit code for Wh.
const WattHourUnit = 30

// CoarseScale marks readings the meter reports after a power outage.
const CoarseScale = 3

// Only addresses starting with this medium/channel pair are considered.
var obisPrefix = [2]byte{0x01, 0x00}

// Bytes 2..4 of the six byte OBIS address.
var obisRegisters = map[[3]byte]Register{
	{0x60, 0x32, 0x01}: RegisterMeterID, // 1-0:96.50.1
	{0x60, 0x01, 0x00}: RegisterSerial,  // 1-0:96.1.0
	{0x01, 0x08, 0x00}: RegisterImport,  // 1-0:1.8.0
	{0x02, 0x08, 0x00}: RegisterExport,  // 1-0:2.8.0
}

// slot is a (level, position) coordinate in the element stream of a frame.
//
//	slot           level pos  kind    message
//	messageType    2     0    uint    any
//	recordID       3     2    octet   open
//	uptime         4     1    uint    list
//	address        5     0    octet   list
//	unit           5     3    uint    list
//	scale          5     4    int     list
//	value          5     5    any     list
type slot struct {
	level    int
	position int
}

var (
	slotMessageType = slot{2, 0}
	slotRecordID    = slot{3, 2}
	slotUptime      = slot{4, 1}
	slotAddress     = slot{5, 0}
	slotUnit        = slot{5, 3}
	slotScale       = slot{5, 4}
	slotValue       = slot{5, 5}
)

func at(e smltlv.Element) slot {
	return slot{e.Level, e.Position}
}
