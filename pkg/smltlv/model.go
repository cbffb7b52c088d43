package smltlv

import (
	"encoding/hex"
	"fmt"
	"strings"
)

type Err string

func (e Err) Error() string {
	return string(e)
}

const (
	ErrTruncated      = Err("element truncated")
	ErrInvalidLength  = Err("invalid element length")
	ErrIntegerTooWide = Err("integer wider than 64 bits")
	ErrUnknownType    = Err("unknown element type")
	ErrTooDeep        = Err("lists nested too deep")
)

const (
	// Unbounded decodes items until the buffer or an end marker is reached.
	Unbounded = -1

	MaxDepth = 32

	// A type/length field never needs more than this many bytes.
	maxHeaderBytes = 8
)

// Kind is the type of an element. Values match the 3 bit wire type field,
// except KindEndMarker which has no wire code of its own.
type Kind uint8

const (
	KindOctetString Kind = 0x0
	KindBoolean     Kind = 0x4
	KindSignedInt   Kind = 0x5
	KindUnsignedInt Kind = 0x6
	KindList        Kind = 0x7
	KindEndMarker   Kind = 0xf
)

func (k Kind) String() string {
	switch k {
	case KindOctetString:
		return "octet"
	case KindBoolean:
		return "bool"
	case KindSignedInt:
		return "int"
	case KindUnsignedInt:
		return "uint"
	case KindList:
		return "list"
	case KindEndMarker:
		return "end"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Element is one decoded value, reported in document order.
type Element struct {
	Level    int
	Position int
	Kind     Kind

	// Octet string payload. Aliases the decoded buffer.
	Bytes []byte
	Bool  bool
	// Integers are accumulated big-endian without sign extension; Int and
	// Uint hold the same bits.
	Int  int64
	Uint uint64
	// Declared item count of a list.
	Items int
}

// String renders the element indented by its level.
func (e Element) String() string {
	indent := strings.Repeat("  ", e.Level)
	var value string
	switch e.Kind {
	case KindOctetString:
		if len(e.Bytes) == 0 {
			value = "default"
		} else {
			value = hex.EncodeToString(e.Bytes)
		}
	case KindBoolean:
		value = fmt.Sprintf("%t", e.Bool)
	case KindSignedInt:
		value = fmt.Sprintf("%d", e.Int)
	case KindUnsignedInt:
		value = fmt.Sprintf("%d", e.Uint)
	case KindList:
		value = fmt.Sprintf("list[%d]", e.Items)
	case KindEndMarker:
		value = "end"
	}
	return fmt.Sprintf("%s[%d,%d] %s %s", indent, e.Level, e.Position, e.Kind, value)
}

// Visitor receives every element before decoding continues.
type Visitor func(Element)

// Tee returns a visitor calling each non-nil visitor in turn.
func Tee(visitors ...Visitor) Visitor {
	return func(e Element) {
		for _, v := range visitors {
			if v != nil {
				v(e)
			}
		}
	}
}
