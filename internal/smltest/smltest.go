// Package smltest builds synthetic SML transmissions for tests.
package smltest

import (
	"encoding/binary"

	"github.com/sigurn/crc16"
)

var crcTable = crc16.MakeTable(crc16.CRC16_X_25)

// Start is the escape + version sequence opening every transmission.
var Start = []byte{0x1b, 0x1b, 0x1b, 0x1b, 0x01, 0x01, 0x01, 0x01}

// Wrap frames payload the way a meter sends it: start sequence, payload
// padded with zeros to a multiple of four, trailer escape, terminator,
// padding count and CRC (low byte first).
func Wrap(payload []byte) []byte {
	return wrap(payload, false)
}

// WrapBigEndianCRC is Wrap with the CRC high byte first.
func WrapBigEndianCRC(payload []byte) []byte {
	return wrap(payload, true)
}

func wrap(payload []byte, bigEndian bool) []byte {
	pad := (4 - len(payload)%4) % 4
	out := append([]byte{}, Start...)
	out = append(out, payload...)
	out = append(out, make([]byte, pad)...)
	out = append(out, 0x1b, 0x1b, 0x1b, 0x1b, 0x1a, byte(pad))
	crc := crc16.Checksum(out, crcTable)
	var tail [2]byte
	if bigEndian {
		binary.BigEndian.PutUint16(tail[:], crc)
	} else {
		binary.LittleEndian.PutUint16(tail[:], crc)
	}
	return append(out, tail[:]...)
}

// Stream joins transmissions with a one byte gap, as a meter pauses
// between them.
func Stream(transmissions ...[]byte) []byte {
	var out []byte
	for _, tr := range transmissions {
		out = append(out, tr...)
		out = append(out, 0x00)
	}
	return out
}

// header encodes a type/length header. For scalars the length counts the
// header bytes themselves, for lists it is the item count.
func header(typ byte, size int, list bool) []byte {
	n := 1
	for {
		length := size
		if !list {
			length += n
		}
		if length < 1<<(4*n) {
			out := make([]byte, n)
			for i := n - 1; i >= 0; i-- {
				out[i] = byte(length & 0x0f)
				length >>= 4
				if i < n-1 {
					out[i] |= 0x80
				}
			}
			out[0] |= typ << 4
			return out
		}
		n++
	}
}

func Octet(b ...byte) []byte {
	return append(header(0x0, len(b), false), b...)
}

func Bool(v bool) []byte {
	if v {
		return []byte{0x42, 0x01}
	}
	return []byte{0x42, 0x00}
}

// Uint encodes v big-endian in width bytes.
func Uint(v uint64, width int) []byte {
	out := header(0x6, width, false)
	for i := width - 1; i >= 0; i-- {
		out = append(out, byte(v>>(8*uint(i))))
	}
	return out
}

// Int encodes v as two's complement in width bytes.
func Int(v int64, width int) []byte {
	out := header(0x5, width, false)
	for i := width - 1; i >= 0; i-- {
		out = append(out, byte(uint64(v)>>(8*uint(i))))
	}
	return out
}

func List(items ...[]byte) []byte {
	out := header(0x7, len(items), true)
	for _, item := range items {
		out = append(out, item...)
	}
	return out
}

// Omitted is an empty optional value.
func Omitted() []byte {
	return []byte{0x01}
}

func End() []byte {
	return []byte{0x00}
}

// Itron describes the registers of one synthetic meter file.
type Itron struct {
	RecordID     uint64
	Uptime       uint32
	MeterID      string
	Serial       [10]byte
	Imported     uint64
	Exported     uint64
	ImportUnit   uint8
	ExportUnit   uint8
	Scale        int8
	ServerID     []byte
	SkipExported bool
}

func DefaultItron() Itron {
	return Itron{
		RecordID:   0x0000000100a1b2c3,
		Uptime:     1234567,
		MeterID:    "ISK",
		Serial:     [10]byte{0x0a, 0x01, 0x49, 0x53, 0x4b, 0x00, 0x04, 0x7c, 0x2e, 0x11},
		Imported:   123456789,
		Exported:   4567,
		ImportUnit: 30,
		ExportUnit: 30,
		Scale:      -1,
		ServerID:   []byte{0x0a, 0x01, 0x49, 0x53, 0x4b, 0x00, 0x04, 0x7c, 0x2e, 0x11},
	}
}

var (
	obisMeterID = []byte{0x01, 0x00, 0x60, 0x32, 0x01, 0x01}
	obisSerial  = []byte{0x01, 0x00, 0x60, 0x01, 0x00, 0xff}
	obisImport  = []byte{0x01, 0x00, 0x01, 0x08, 0x00, 0xff}
	obisExport  = []byte{0x01, 0x00, 0x02, 0x08, 0x00, 0xff}
	obisPower   = []byte{0x01, 0x00, 0x10, 0x07, 0x00, 0xff}
)

// File returns the open, list and close messages of one transmission.
func (m Itron) File() []byte {
	fileID := make([]byte, 8)
	binary.BigEndian.PutUint64(fileID, m.RecordID)

	open := message(0x01, 0x0101, List(
		Omitted(),
		Omitted(),
		Octet(fileID...),
		Octet(m.ServerID...),
		Omitted(),
		Omitted(),
	))

	entries := [][]byte{
		List(Octet(obisMeterID...), Omitted(), Omitted(), Omitted(), Omitted(), Octet([]byte(m.MeterID)...), Omitted()),
		List(Octet(obisSerial...), Omitted(), Omitted(), Omitted(), Omitted(), Octet(m.Serial[:]...), Omitted()),
		List(Octet(obisImport...), Uint(0x00010182, 4), Omitted(), Uint(uint64(m.ImportUnit), 1), Int(int64(m.Scale), 1), Uint(m.Imported, 8), Omitted()),
	}
	if !m.SkipExported {
		entries = append(entries,
			List(Octet(obisExport...), Omitted(), Omitted(), Uint(uint64(m.ExportUnit), 1), Int(int64(m.Scale), 1), Uint(m.Exported, 8), Omitted()))
	}
	entries = append(entries,
		List(Octet(obisPower...), Omitted(), Omitted(), Uint(27, 1), Int(0, 1), Int(-350, 4), Omitted()))

	list := message(0x02, 0x0701, List(
		Omitted(),
		Octet(m.ServerID...),
		Octet(0x01, 0x00, 0x62, 0x0a, 0xff, 0xff),
		List(Uint(1, 1), Uint(uint64(m.Uptime), 4)),
		List(entries...),
		Omitted(),
		Omitted(),
	))

	closing := message(0x03, 0x0201, List(Omitted()))

	out := append([]byte{}, open...)
	out = append(out, list...)
	return append(out, closing...)
}

// Transmission is File wrapped for the serial line.
func (m Itron) Transmission() []byte {
	return Wrap(m.File())
}

func message(transaction byte, kind uint16, body []byte) []byte {
	return List(
		Octet(0x00, 0x00, transaction),
		Uint(0, 1),
		Uint(0, 1),
		List(Uint(uint64(kind), 2), body),
		Uint(0xabcd, 2),
		End(),
	)
}
